package scraper

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/NTFSvolume/hoard/pkg/hoardlib"
)

// DirectHTTP is the fallback scraper for bare links whose extension is
// known media. It emits exactly one media item per scrape item, keyed in
// history by the URL path.
type DirectHTTP struct {
	downloadDir string
}

// NewDirectHTTP creates the fallback scraper writing under downloadDir.
func NewDirectHTTP(downloadDir string) *DirectHTTP {
	return &DirectHTTP{downloadDir: downloadDir}
}

// Domain implements Scraper.
func (d *DirectHTTP) Domain() string { return "no_crawler" }

// PrimaryURL implements Scraper; the direct scraper has no site.
func (d *DirectHTTP) PrimaryURL() *url.URL { return nil }

// Ready implements Scraper.
func (d *DirectHTTP) Ready(ctx context.Context) error { return nil }

// Supports reports whether the URL looks like a direct media file.
func (d *DirectHTTP) Supports(u *url.URL) bool {
	return IsMediaExt(path.Ext(u.Path))
}

// Fetch implements Scraper.
func (d *DirectHTTP) Fetch(ctx context.Context, item *hoardlib.ScrapeItem, sink MediaSink) error {
	u := item.Url
	filename := SanitizeFilename(path.Base(u.Path))
	if filename == "" || path.Ext(filename) == "" {
		return fmt.Errorf("%w: %s", hoardlib.ErrNoExtension, u)
	}
	folder := d.downloadDir
	if item.ParentTitle != "" {
		folder = path.Join(folder, SanitizeFilename(strings.ReplaceAll(item.ParentTitle, "/", " - ")))
	} else {
		folder = path.Join(folder, "Loose Files")
	}
	media := hoardlib.NewMediaItem(item, u, d.Domain(), folder, filename, u.Path)
	return sink.HandleMediaItem(ctx, media)
}

// FetchUnlocked emits the media item for a URL resolved by an unlock
// service, keeping the original URL as history identity and the
// unlocked one as the fetch location.
func (d *DirectHTTP) FetchUnlocked(ctx context.Context, item *hoardlib.ScrapeItem, unlocked *url.URL, sink MediaSink) error {
	filename := SanitizeFilename(path.Base(unlocked.Path))
	if filename == "" || path.Ext(filename) == "" {
		return fmt.Errorf("%w: %s", hoardlib.ErrNoExtension, unlocked)
	}
	folder := path.Join(d.downloadDir, "Loose Files")
	if item.ParentTitle != "" {
		folder = path.Join(d.downloadDir, SanitizeFilename(strings.ReplaceAll(item.ParentTitle, "/", " - ")))
	}
	media := hoardlib.NewMediaItem(item, item.Url, d.Domain(), folder, filename, item.Url.Path)
	media.DebridUrl = unlocked
	return sink.HandleMediaItem(ctx, media)
}

// IsMediaExt reports whether ext (with dot) is a known media extension.
func IsMediaExt(ext string) bool {
	ext = strings.ToLower(ext)
	for _, set := range []map[string]struct{}{
		hoardlib.VideoExts, hoardlib.AudioExts, hoardlib.ImageExts,
	} {
		if _, ok := set[ext]; ok {
			return true
		}
	}
	switch ext {
	case ".zip", ".rar", ".7z", ".pdf", ".torrent":
		return true
	}
	return false
}

// SanitizeFilename strips characters that are unsafe on common
// filesystems. Folders and names are sanitized before items reach the
// downloader.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '\x00':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
