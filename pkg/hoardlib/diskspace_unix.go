//go:build !windows

package hoardlib

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

// freeSpace returns the available bytes for unprivileged users at path.
// Filesystems that cannot answer the query (certain FUSE mounts) yield
// the -1 sentinel instead of an error.
func freeSpace(path string) (int64, error) {
	var stat unix.Statfs_t
	err := unix.Statfs(path, &stat)
	if err != nil {
		if errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.ENOSYS) {
			return -1, nil
		}
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}

// mountPoint resolves the mount point containing path by walking up until
// the device id changes.
func mountPoint(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	dev, err := deviceID(abs)
	if err != nil {
		// The folder may not exist yet; use its closest existing parent.
		for parent := filepath.Dir(abs); parent != abs; abs, parent = parent, filepath.Dir(parent) {
			if dev, err = deviceID(parent); err == nil {
				abs = parent
				break
			}
		}
		if err != nil {
			return "", err
		}
	}
	for {
		parent := filepath.Dir(abs)
		if parent == abs {
			return abs, nil
		}
		parentDev, err := deviceID(parent)
		if err != nil {
			return abs, nil
		}
		if parentDev != dev {
			return abs, nil
		}
		abs = parent
	}
}

func deviceID(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, errors.New("no stat data for path")
	}
	return uint64(sys.Dev), nil
}
