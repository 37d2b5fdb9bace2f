//go:build darwin

package hoardlib

import (
	"os"
	"path/filepath"
)

// moveToTrash moves path into the user's ~/.Trash.
func moveToTrash(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return err
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	return os.Rename(abs, filepath.Join(home, ".Trash", filepath.Base(abs)))
}
