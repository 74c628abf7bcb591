package utils

import (
	"io/fs"
	"os"
	"path/filepath"
)

// EnsurePath creates path with perm if it does not exist yet. It reports whether the path was created.
func EnsurePath(path string, perm fs.FileMode) (bool, error) {
	createdPath := false
	st, err := os.Stat(path)
	if err != nil && os.IsNotExist(err) {
		err = os.MkdirAll(path, perm)
		createdPath = (err == nil)
	} else {
		if err != nil {
			return false, err
		}
		if !st.IsDir() {
			return false, fs.ErrExist
		}
		if st.Mode().Perm() != perm {
			return false, fs.ErrPermission
		}
	}
	return createdPath, err
}

// IsNonEmptyFile reports whether dir/file is a regular file with content.
func IsNonEmptyFile(dir, file string) bool {
	if file == "" {
		return false
	}
	p := filepath.Join(dir, file)
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}

// WriteFile writes data to dir/file, creating missing parent directories, and checks that a
// non-empty file is in place afterwards.
func WriteFile(dir, file string, data []byte, perm fs.FileMode) error {
	target := filepath.Join(dir, file)
	if parent := filepath.Dir(target); !exists(parent) {
		if _, err := EnsurePath(parent, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(target, data, perm); err != nil {
		return err
	}
	if len(data) > 0 && !IsNonEmptyFile(dir, file) {
		return fs.ErrNotExist
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
