package hoardlib

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Size unit constants for byte conversions.
const (
	// B represents one byte.
	B int64 = 1
	// KB represents one kilobyte (1024 bytes).
	KB = 1024 * B
	// MB represents one megabyte (1024 kilobytes).
	MB = 1024 * KB
	// GB represents one gigabyte (1024 megabytes).
	GB = 1024 * MB
	// TB represents one terabyte (1024 gigabytes).
	TB = 1024 * GB
)

const (
	DEF_CHUNK_SIZE = 64 * KB
	DEF_USER_AGENT = "Hoard/1.0"

	// DEF_REQUIRED_FREE_SPACE is the default free-space threshold
	// below which downloads are refused.
	DEF_REQUIRED_FREE_SPACE = 5 * GB

	// MIN_REQUIRED_FREE_SPACE is the floor for the configurable
	// free-space threshold.
	MIN_REQUIRED_FREE_SPACE = 512 * MB

	// DEF_DOWNLOAD_SLOTS is the default number of simultaneous
	// non-segment downloads across all domains.
	DEF_DOWNLOAD_SLOTS = 5

	// DEF_DOMAIN_SLOTS is the default per-domain download limit.
	DEF_DOMAIN_SLOTS = 3

	// DEF_CRAWLER_SLOTS is the default per-crawler scrape limit.
	DEF_CRAWLER_SLOTS = 20

	// DEF_HASH_CONCURRENCY bounds the number of files hashed in parallel.
	DEF_HASH_CONCURRENCY = 20

	// DEF_DOWNLOAD_ATTEMPTS is the default number of attempts for a
	// retry-eligible download error.
	DEF_DOWNLOAD_ATTEMPTS = 5
)

// PartExt is the suffix appended to in-progress download files.
const PartExt = ".part"

// DefaultFileMode is the permission mode applied to completed files.
const DefaultFileMode = 0o666

// DefaultDirMode is the permission mode for created directories.
const DefaultDirMode = 0o755

// GetPath joins a download directory and a file name.
func GetPath(dir, fileName string) string {
	return filepath.Join(dir, fileName)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func fileSizeOrZero(path string) int64 {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0
	}
	return info.Size()
}

// wlog writes a formatted message to the provided logger, ignoring nil loggers.
func wlog(l *log.Logger, s string, a ...any) {
	if l == nil {
		return
	}
	l.Printf(s+"\n", a...)
}

// ContentLength is a wrapper over int64 that prints itself
// in a human-friendly unit.
type ContentLength int64

func (c ContentLength) v() int64 {
	return int64(c)
}

// String formats the content length using binary units.
func (c ContentLength) String() string {
	v := c.v()
	switch {
	case v == -1:
		return "Unknown"
	case v < KB:
		return fmt.Sprintf("%dB", v)
	case v < MB:
		return fmt.Sprintf("%.2fKB", float64(v)/float64(KB))
	case v < GB:
		return fmt.Sprintf("%.2fMB", float64(v)/float64(MB))
	default:
		return fmt.Sprintf("%.2fGB", float64(v)/float64(GB))
	}
}

// parseHTTPDate parses a Last-Modified style header value and returns
// seconds since epoch, or 0 if the value cannot be parsed.
func parseHTTPDate(value string) int64 {
	if value == "" {
		return 0
	}
	for _, layout := range []string{time.RFC1123, time.RFC1123Z, time.RFC850, time.ANSIC} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Unix()
		}
	}
	return 0
}

// hasExt reports whether ext (with leading dot, any case) is in the set.
func hasExt(set map[string]struct{}, ext string) bool {
	_, ok := set[strings.ToLower(ext)]
	return ok
}

func extSet(exts ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		m[strings.ToLower(e)] = struct{}{}
	}
	return m
}

// File format groups used by skip predicates, the duration check and
// the hasher's chunk-size selection.
var (
	VideoExts = extSet(".mp4", ".m4v", ".mkv", ".webm", ".mov", ".avi", ".wmv", ".flv", ".ts", ".mpg", ".mpeg")
	AudioExts = extSet(".mp3", ".m4a", ".flac", ".wav", ".ogg", ".opus", ".aac")
	ImageExts = extSet(".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".heic", ".avif", ".svg")
	TextExts  = extSet(".txt", ".html", ".htm", ".md", ".json", ".xml", ".csv", ".srt", ".vtt")
)
