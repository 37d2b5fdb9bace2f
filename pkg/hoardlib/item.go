// Package hoardlib implements the download execution engine of hoard:
// the streaming downloader, the concurrency and rate-limit gates, the
// storage monitor, the hasher and the deduper. Site scrapers and the
// orchestrator live on top of it and feed it MediaItems.
package hoardlib

import (
	"net/url"
	"path/filepath"
	"time"
)

// MediaItem is the atomic unit handed to the downloader; one file on disk.
// It carries everything the engine needs: origin, destination, history
// identity and runtime counters.
type MediaItem struct {
	// Url is the origin of the bytes.
	Url *url.URL
	// Domain is the logical scraper key, not necessarily the URL host.
	Domain string
	// Referer is the page that yielded this item. Used for request
	// headers and history keying.
	Referer *url.URL
	// DownloadFolder and Filename form the destination.
	DownloadFolder string
	Filename       string
	// OriginalFilename is the unchanged server-reported name.
	OriginalFilename string
	// DbPath is the stable identity used in the history store, derived
	// per-scraper from the URL. Empty only for metadata pseudo-items.
	DbPath string
	// AlbumID groups items, optional.
	AlbumID string
	// Filesize is the total bytes expected; populated from
	// Content-Length plus the resume offset. Zero means unknown.
	Filesize int64
	// Duration in seconds for media files; zero means unknown.
	Duration float64
	// Timestamp is the upload time in seconds since epoch; used to set
	// the file's mtime. Zero means unknown.
	Timestamp int64
	// IsSegment marks segments of a larger stream. Segments are not
	// counted in the UI, not hashed and not history-tracked.
	IsSegment bool
	// DebridUrl is an alternate fetch URL via an unlock service.
	DebridUrl *url.URL
	// Headers are the request headers; mutated to inject Range on resume.
	Headers Headers
	// CurrentAttempt is the retry counter. It resets each time the item
	// enters the downloader's gate section.
	CurrentAttempt int
	// Hash is filled by the hasher after a successful download.
	Hash string
	// Downloaded is set true on successful completion.
	Downloaded bool

	// Ancestry copied forward from the scrape item.
	Parents []*url.URL
}

// NewMediaItem builds a MediaItem from a scrape item, copying ancestry
// and timestamp forward.
func NewMediaItem(si *ScrapeItem, u *url.URL, domain, downloadFolder, filename, dbPath string) *MediaItem {
	m := &MediaItem{
		Url:              u,
		Domain:           domain,
		Referer:          si.Url,
		DownloadFolder:   downloadFolder,
		Filename:         filename,
		OriginalFilename: filename,
		DbPath:           dbPath,
		AlbumID:          si.AlbumID,
		Timestamp:        si.Timestamp,
		Headers:          make(Headers, 0),
	}
	if len(si.Parents) != 0 {
		m.Parents = make([]*url.URL, len(si.Parents))
		copy(m.Parents, si.Parents)
	}
	if si.Url != nil {
		m.Headers.InitOrUpdate(REFERER_KEY, si.Url.String())
	}
	return m
}

// RealUrl returns the URL the bytes are actually fetched from, preferring
// the debrid URL when present.
func (m *MediaItem) RealUrl() *url.URL {
	if m.DebridUrl != nil {
		return m.DebridUrl
	}
	return m.Url
}

// CompleteFile is the final on-disk location of this item.
func (m *MediaItem) CompleteFile() string {
	return filepath.Join(m.DownloadFolder, m.Filename)
}

// PartialFile is the in-progress on-disk location of this item.
func (m *MediaItem) PartialFile() string {
	return m.CompleteFile() + PartExt
}

// Ext returns the filename extension, including the dot, in its original
// case; hasExt lower-cases it when matching extension sets.
func (m *MediaItem) Ext() string {
	return filepath.Ext(m.Filename)
}

// IsMetadata reports whether this is a pseudo-item that never touches
// the network.
func (m *MediaItem) IsMetadata() bool {
	return m.Url != nil && m.Url.Scheme == "metadata"
}

// Date returns the item's timestamp as a time.Time, or the zero value
// when no timestamp is known.
func (m *MediaItem) Date() time.Time {
	if m.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(m.Timestamp, 0)
}
