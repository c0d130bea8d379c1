package extract

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CleanupExtensions reports whether fileName's extension is present in
// cleanupMap, used by the post-processor's cleanup stage to drop archive/par leftovers per
// a category's cleanup-disk list (spec §4.5 "ext-cleanup-disk").
func CleanupExtensions(fileName string, cleanupMap map[string]struct{}) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	_, ok := cleanupMap[ext]
	return ok
}

// MoveFile relocates a file, falling back to a copy-then-delete when the
// source and destination straddle filesystems (spec §4.5 MOVING: dest_dir
// and interim/work dirs are not guaranteed to share a mount).
func MoveFile(source, dest string) error {
	if err := os.Rename(source, dest); err == nil {
		return nil
	}
	return moveCrossDevice(source, dest)
}

func moveCrossDevice(sourcePath, destPath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	tempDest := filepath.Join(filepath.Dir(destPath), "."+filepath.Base(destPath)+".tmp")
	dst, err := os.Create(tempDest)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tempDest)
		return err
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(tempDest)
		return err
	}
	src.Close()
	dst.Close()

	if err := os.Rename(tempDest, destPath); err != nil {
		os.Remove(tempDest)
		return err
	}
	return os.Remove(sourcePath)
}
