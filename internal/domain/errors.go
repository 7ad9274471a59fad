package domain

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")
var ErrAlreadyExists = errors.New("already exists")
var ErrNotReady = errors.New("not ready for streaming")
var ErrInvalidInput = errors.New("invalid input")

// NotReadyError carries the asset status that blocked a streaming request,
// so the API can report it. Unwraps to ErrNotReady.
type NotReadyError struct {
	Status AssetStatus
}

func (e NotReadyError) Error() string {
	return fmt.Sprintf("not ready for streaming (status: %s)", e.Status)
}

func (e NotReadyError) Unwrap() error { return ErrNotReady }

// SegmentNotFoundError distinguishes a missing segment from a missing movie.
// Unwraps to ErrNotFound.
type SegmentNotFoundError struct {
	Index int
}

func (e SegmentNotFoundError) Error() string {
	return fmt.Sprintf("segment %d not found", e.Index)
}

func (e SegmentNotFoundError) Unwrap() error { return ErrNotFound }
