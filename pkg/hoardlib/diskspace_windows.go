//go:build windows

package hoardlib

import (
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"
)

// freeSpace returns the available bytes for the caller at path.
func freeSpace(path string) (int64, error) {
	var free, total, totalFree uint64
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	err = windows.GetDiskFreeSpaceEx(p, &free, &total, &totalFree)
	if err != nil {
		return 0, err
	}
	return int64(free), nil
}

// mountPoint returns the volume root for path. UNC paths keep their
// share prefix as the mount; they are treated as network drives and
// discovered lazily by the monitor.
func mountPoint(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	vol := filepath.VolumeName(abs)
	if vol == "" {
		return abs, nil
	}
	if strings.HasPrefix(vol, `\\`) {
		return vol, nil
	}
	return vol + `\`, nil
}
