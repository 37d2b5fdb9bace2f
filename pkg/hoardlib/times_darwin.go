//go:build darwin

package hoardlib

import (
	"os/exec"
	"time"
)

// setCreationTime shells out to SetFile when the developer tools are
// installed; any failure is ignored.
func setCreationTime(path string, t time.Time) {
	setFile, err := exec.LookPath("SetFile")
	if err != nil {
		return
	}
	stamp := t.Format("01/02/2006 15:04:05")
	_ = exec.Command(setFile, "-d", stamp, path).Run()
}
