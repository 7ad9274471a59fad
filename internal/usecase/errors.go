package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrSwarm          = errors.New("swarm error")
	ErrRepository     = errors.New("repository error")
	ErrMagnetRequired = errors.New("magnet link is required")
)

func wrapSwarm(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrSwarm, err)
}

func wrapRepo(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrRepository, err)
}
