package logger

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultKeepLogs is how many rotated main.log files survive.
const DefaultKeepLogs = 5

// OpenRotating opens folder/name for the current run, rotating previous
// runs' files to name.1, name.2, ... and dropping anything beyond keep.
// keep <= 0 selects the default.
func OpenRotating(folder, name string, keep int) (*os.File, error) {
	if keep <= 0 {
		keep = DefaultKeepLogs
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, err
	}
	base := filepath.Join(folder, name)

	// Shift older files up, oldest first so nothing is clobbered.
	os.Remove(fmt.Sprintf("%s.%d", base, keep))
	for i := keep - 1; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", base, i), fmt.Sprintf("%s.%d", base, i+1))
	}
	if _, err := os.Stat(base); err == nil {
		os.Rename(base, base+".1")
	}

	return os.OpenFile(base, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}
