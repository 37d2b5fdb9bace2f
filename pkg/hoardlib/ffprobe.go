package hoardlib

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// FFProbeDuration probes a media file's duration with ffprobe. It is
// the default DurationProber when ffprobe is on PATH.
func FFProbeDuration(path string) (float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
}

// HaveFFProbe reports whether ffprobe is available.
func HaveFFProbe() bool {
	_, err := exec.LookPath("ffprobe")
	return err == nil
}
