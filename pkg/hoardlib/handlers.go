package hoardlib

import "log"

// ProgressHook receives byte advances for one file and supplies the
// recent speed reading used by the slow-abort check. Hooks are cheap to
// create and destroy; Close with bytes still in flight is a no-op.
type ProgressHook interface {
	Advance(n int)
	// Speed returns the recent throughput in bytes per second.
	Speed() float64
	Close()
}

// NewHookFunc creates a progress hook for a file about to stream.
// total is -1 when the size is unknown.
type NewHookFunc func(filename string, total int64) ProgressHook

// nopHook is used when no progress reporter is installed.
type nopHook struct{}

func (nopHook) Advance(int)    {}
func (nopHook) Speed() float64 { return 0 }
func (nopHook) Close()         {}

type (
	// PreviouslyDownloadedHandlerFunc runs when the history pre-check
	// short-circuits a download.
	PreviouslyDownloadedHandlerFunc func(item *MediaItem)
	// SkippedHandlerFunc runs when a config predicate rejects an item.
	SkippedHandlerFunc func(item *MediaItem, reason string)
	// CompletedHandlerFunc runs after a successful promote+finalize.
	CompletedHandlerFunc func(item *MediaItem)
	// FailedHandlerFunc runs when an item's error is final.
	FailedHandlerFunc func(item *MediaItem, err error)
	// RetryHandlerFunc runs before each retry sleep.
	RetryHandlerFunc func(item *MediaItem, attempt, max int, err error)
)

// Handlers are the downloader's event callbacks. Unset fields get no-op
// defaults; the error path always logs.
type Handlers struct {
	NewHook                     NewHookFunc
	PreviouslyDownloadedHandler PreviouslyDownloadedHandlerFunc
	SkippedHandler              SkippedHandlerFunc
	CompletedHandler            CompletedHandlerFunc
	FailedHandler               FailedHandlerFunc
	RetryHandler                RetryHandlerFunc
}

func (h *Handlers) setDefault(l *log.Logger) {
	if h.NewHook == nil {
		h.NewHook = func(string, int64) ProgressHook { return nopHook{} }
	}
	if h.PreviouslyDownloadedHandler == nil {
		h.PreviouslyDownloadedHandler = func(*MediaItem) {}
	}
	if h.SkippedHandler == nil {
		h.SkippedHandler = func(*MediaItem, string) {}
	}
	if h.CompletedHandler == nil {
		h.CompletedHandler = func(*MediaItem) {}
	}
	if h.FailedHandler == nil {
		h.FailedHandler = func(item *MediaItem, err error) {
			wlog(l, "%s: Error: %s", item.Filename, err.Error())
		}
	} else {
		failed := h.FailedHandler
		h.FailedHandler = func(item *MediaItem, err error) {
			wlog(l, "%s: Error: %s", item.Filename, err.Error())
			failed(item, err)
		}
	}
	if h.RetryHandler == nil {
		h.RetryHandler = func(*MediaItem, int, int, error) {}
	}
}

// HistoryStore is what the engine needs from the persistent history.
// internal/history implements it on sqlite.
type HistoryStore interface {
	CheckComplete(domain, urlStr, refererStr, dbPath string) (bool, error)
	InsertIncompleted(domain string, item *MediaItem) error
	MarkComplete(domain string, item *MediaItem) error
	AddFilesize(domain string, item *MediaItem, size int64) error
	AddDuration(domain string, item *MediaItem) error
	SetAlbumID(domain string, item *MediaItem) error
	GetDuration(domain string, item *MediaItem) (float64, error)
}

// HashDB is the hash-cache surface of the history store.
type HashDB interface {
	GetFileHash(folder, filename string, algo HashAlgo) (hash string, size int64, mtime int64, ok bool, err error)
	InsertOrUpdateHash(folder, filename string, algo HashAlgo, hash string, size int64, mtime int64) error
	InsertOrUpdateFile(folder, filename, originalFilename, referer string, size int64, date int64) error
	GetFilesWithHashMatch(algo HashAlgo, hash string, size int64) ([]HashMatch, error)
}

// HashMatch is one row answering "which files share this fingerprint".
type HashMatch struct {
	Folder    string
	Filename  string
	Referer   string
	CreatedAt int64
}
