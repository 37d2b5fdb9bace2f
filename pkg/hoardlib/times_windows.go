//go:build windows

package hoardlib

import (
	"time"

	"golang.org/x/sys/windows"
)

// setCreationTime sets the file's creation time via SetFileTime;
// failures are ignored.
func setCreationTime(path string, t time.Time) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return
	}
	h, err := windows.CreateFile(p, windows.FILE_WRITE_ATTRIBUTES,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE, nil,
		windows.OPEN_EXISTING, windows.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		return
	}
	defer windows.CloseHandle(h)
	ft := windows.NsecToFiletime(t.UnixNano())
	_ = windows.SetFileTime(h, &ft, nil, nil)
}
