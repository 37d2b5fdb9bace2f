//go:build !windows && !darwin

package hoardlib

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// moveToTrash moves path into the XDG trash (files/ plus a .trashinfo
// record). A missing source propagates os.ErrNotExist so callers can
// distinguish it.
func moveToTrash(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return err
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	trashFiles := filepath.Join(dataHome, "Trash", "files")
	trashInfo := filepath.Join(dataHome, "Trash", "info")
	for _, dir := range []string{trashFiles, trashInfo} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	name := filepath.Base(abs)
	target := filepath.Join(trashFiles, name)
	for i := 1; ; i++ {
		if _, err := os.Lstat(target); os.IsNotExist(err) {
			break
		}
		target = filepath.Join(trashFiles, fmt.Sprintf("%s.%d", name, i))
	}

	info := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		abs, time.Now().Format("2006-01-02T15:04:05"))
	infoPath := filepath.Join(trashInfo, filepath.Base(target)+".trashinfo")
	if err := os.WriteFile(infoPath, []byte(info), 0o600); err != nil {
		return err
	}
	if err := os.Rename(abs, target); err != nil {
		os.Remove(infoPath)
		return err
	}
	return nil
}
