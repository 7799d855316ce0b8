package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

//go:embed default_catalog.json
var defaultCatalog []byte

// BackupSuffix is appended to the catalog path to name its backup copy.
const BackupSuffix = ".old"

// DefaultCatalog returns the built-in catalog document.
func DefaultCatalog() []byte {
	out := make([]byte, len(defaultCatalog))
	copy(out, defaultCatalog)
	return out
}

// BackupFile copies path to path+BackupSuffix, replacing an older backup.
// With deleteOriginal the original is removed after the copy. A missing
// original is not an error and yields an empty backup path.
func BackupFile(path string, deleteOriginal bool) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("open catalog for backup: %w", err)
	}
	defer src.Close()

	backup := path + BackupSuffix
	tmp := backup + ".tmp"
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create catalog backup: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("copy catalog backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close catalog backup: %w", err)
	}
	if err := os.Rename(tmp, backup); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename catalog backup: %w", err)
	}

	if deleteOriginal {
		src.Close()
		if err := os.Remove(path); err != nil {
			return backup, fmt.Errorf("remove original catalog: %w", err)
		}
	}
	return backup, nil
}

// RestoreDefault replaces path with the built-in catalog, backing up any
// existing file first.
func RestoreDefault(path string) error {
	if _, err := BackupFile(path, false); err != nil {
		return err
	}
	return WriteFile(path, defaultCatalog)
}

// EnsureFile writes the built-in catalog to path if no readable catalog with
// a version exists there. It reports whether the default was written.
func EnsureFile(path string) (bool, error) {
	if VersionOf(path) != "" {
		return false, nil
	}
	if err := RestoreDefault(path); err != nil {
		return false, err
	}
	return true, nil
}
