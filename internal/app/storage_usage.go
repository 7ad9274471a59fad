package app

import (
	"os"
	"path/filepath"
	"time"
)

// StorageUsage is a point-in-time scan of the download root.
type StorageUsage struct {
	Root           string    `json:"root"`
	RootExists     bool      `json:"rootExists"`
	SizeBytes      int64     `json:"sizeBytes"`
	AllocatedBytes int64     `json:"allocatedBytes"`
	Movies         int       `json:"movies"`
	ScannedAt      time.Time `json:"scannedAt"`
}

// ScanStorageUsage walks the download root and sums file sizes. Sparse files
// (in-flight torrent payloads) are also reported by allocated blocks, which
// is what actually hits the disk.
func ScanStorageUsage(root string) StorageUsage {
	usage := StorageUsage{
		Root:      root,
		ScannedAt: time.Now().UTC(),
	}
	if root == "" {
		return usage
	}

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return usage
	}
	usage.RootExists = true

	moviesDir := filepath.Join(root, "movies")
	if entries, err := os.ReadDir(moviesDir); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				usage.Movies++
			}
		}
	}

	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return nil
		}
		fileInfo, err := d.Info()
		if err != nil {
			return nil
		}
		usage.SizeBytes += fileInfo.Size()
		usage.AllocatedBytes += fileAllocatedBytes(fileInfo)
		return nil
	})
	return usage
}
