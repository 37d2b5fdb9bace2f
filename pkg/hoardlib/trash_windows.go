//go:build windows

package hoardlib

import "os"

// moveToTrash falls back to unlinking on Windows; routing through the
// shell recycle bin needs COM interop the engine does not carry.
func moveToTrash(path string) error {
	return os.Remove(path)
}
