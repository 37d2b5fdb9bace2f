//go:build !windows && !darwin

package hoardlib

import "time"

// setCreationTime is best-effort; most unix filesystems have no
// settable birth time, so this is a no-op.
func setCreationTime(path string, t time.Time) {
	_ = path
	_ = t
}
