package ioutils

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// WriteFileAtomic writes data to path so that readers only ever see the old
// content or the complete new content.
//
// The data goes to a uniquely named ".part" file next to path which is then
// renamed over it. On failure the temporary file is removed. Parent
// directories are created as needed.
//
// Example:
//
//	err := WriteFileAtomic(ctx, "/music/123/Artist - Title.mp3", payload)
func WriteFileAtomic(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	tmp := fmt.Sprintf("%s.%s.part", path, uuid.NewString())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// IsTempFile reports whether name is a leftover from an interrupted
// WriteFileAtomic.
func IsTempFile(name string) bool {
	return filepath.Ext(name) == ".part"
}

// EnsureDir creates a directory and all parent directories if they don't exist.
//
// Directories are created with mode 0755 (rwxr-xr-x).
// If the directory already exists, no error is returned.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// Exists reports whether path exists. Errors other than "not exist" are
// returned.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// RemoveDir removes path and everything below it. A missing path is not an
// error.
func RemoveDir(path string) error {
	err := os.RemoveAll(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
