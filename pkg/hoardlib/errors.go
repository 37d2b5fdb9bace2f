package hoardlib

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientFreeSpace is returned when free space on the
	// destination mount fell below the configured floor.
	ErrInsufficientFreeSpace = errors.New("insufficient free space on download drive")

	// ErrSlowDownload is returned when the instantaneous download speed
	// stayed below the configured threshold for longer than the slow period.
	ErrSlowDownload = errors.New("download speed is below threshold")

	// ErrInvalidContentType is returned when the response body's declared
	// type is incompatible with the expected file.
	ErrInvalidContentType = errors.New("received html or text content type")

	// ErrRestrictedFiletype is returned when the file's extension fails
	// a config predicate.
	ErrRestrictedFiletype = errors.New("filetype is excluded by config")

	// ErrRestrictedDateRange is returned when the item's timestamp falls
	// outside the configured date range.
	ErrRestrictedDateRange = errors.New("date is outside the configured range")

	// ErrDurationOutOfRange is returned when the media duration fails the
	// configured video/audio duration limits.
	ErrDurationOutOfRange = errors.New("media duration is outside the configured range")

	// ErrRestrictedFilesize is returned when Content-Length fails the
	// configured size limits for the file's category.
	ErrRestrictedFilesize = errors.New("file size is outside the configured limits")

	// ErrMaxChildren is returned when a scraper produced more children
	// than allowed for its item type.
	ErrMaxChildren = errors.New("maximum children reached")

	// ErrInvalidURL is returned for malformed input URLs.
	ErrInvalidURL = errors.New("url is invalid")

	// ErrNoExtension is returned when a filename has no extension.
	ErrNoExtension = errors.New("filename has no extension")

	// ErrInvalidExtension is returned when a filename's extension is not
	// a known media extension.
	ErrInvalidExtension = errors.New("filename has an unknown extension")

	// ErrLogin is returned when credentialed access is required and failed.
	ErrLogin = errors.New("login required but failed")

	// ErrDDoSGuard is returned when a protective challenge page was detected.
	ErrDDoSGuard = errors.New("ddos protection page detected")

	// ErrSchemaTooOld is returned when the history database's installed
	// schema version is below the minimum required version.
	ErrSchemaTooOld = errors.New("history database schema is too old")

	// ErrShuttingDown is returned when new work is submitted after
	// shutdown has been signalled.
	ErrShuttingDown = errors.New("shutting down")
)

// DownloadError is an HTTP-level or I/O failure specific to one file.
// Retry marks the error as eligible for another attempt.
type DownloadError struct {
	Status  int
	Message string
	Retry   bool
}

func (e *DownloadError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("download failed with status %d", e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// NewDownloadError creates a non-retryable DownloadError.
func NewDownloadError(status int, message string) *DownloadError {
	return &DownloadError{Status: status, Message: message}
}

// NewRetryableDownloadError creates a DownloadError eligible for retry.
func NewRetryableDownloadError(status int, message string) *DownloadError {
	return &DownloadError{Status: status, Message: message, Retry: true}
}

// ScrapeError reports that a scraper could not extract items from a page.
type ScrapeError struct {
	Status  int
	Message string
}

func (e *ScrapeError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("scrape failed with status %d", e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// NewScrapeError creates a ScrapeError with the given status and message.
func NewScrapeError(status int, message string) *ScrapeError {
	return &ScrapeError{Status: status, Message: message}
}

// IsRetryable reports whether err should loop back for another attempt.
// DownloadErrors carry the decision explicitly; slow-download aborts
// always retry; everything else goes through ClassifyError.
func IsRetryable(err error) bool {
	var de *DownloadError
	if errors.As(err, &de) {
		return de.Retry
	}
	if errors.Is(err, ErrSlowDownload) {
		return true
	}
	return ClassifyError(err) != ErrCategoryFatal
}
