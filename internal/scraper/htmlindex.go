package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/NTFSvolume/hoard/pkg/hoardlib"
)

// HTMLIndex is a generic album scraper: it fetches a page, extracts
// every anchor and image whose target looks like a media file, and emits
// one media item per target. It serves plain directory listings and
// simple gallery pages that have no dedicated scraper.
type HTMLIndex struct {
	domain      string
	primary     *url.URL
	client      *http.Client
	downloadDir string
	// ChildLimit bounds how many items one page may yield; zero is
	// unlimited.
	ChildLimit int
}

// NewHTMLIndex creates a generic scraper registered under domain.
func NewHTMLIndex(domain string, primary *url.URL, client *http.Client, downloadDir string) *HTMLIndex {
	return &HTMLIndex{
		domain:      domain,
		primary:     primary,
		client:      client,
		downloadDir: downloadDir,
	}
}

// Domain implements Scraper.
func (h *HTMLIndex) Domain() string { return h.domain }

// PrimaryURL implements Scraper.
func (h *HTMLIndex) PrimaryURL() *url.URL { return h.primary }

// Ready implements Scraper.
func (h *HTMLIndex) Ready(ctx context.Context) error { return nil }

// Fetch implements Scraper.
func (h *HTMLIndex) Fetch(ctx context.Context, item *hoardlib.ScrapeItem, sink MediaSink) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.Url.String(), nil)
	if err != nil {
		return hoardlib.NewScrapeError(0, err.Error())
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return hoardlib.NewScrapeError(0, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return hoardlib.NewScrapeError(resp.StatusCode, "unexpected status fetching index page")
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return hoardlib.NewScrapeError(0, err.Error())
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title != "" {
		item.AddToParentTitle(SanitizeFilename(title))
	}
	item.ChildrenLimit = h.ChildLimit
	item.Type = hoardlib.ScrapeFileHostAlbum

	folder := path.Join(h.downloadDir, folderFor(item, h.domain))

	var ferr error
	collect := func(_ int, sel *goquery.Selection) bool {
		attr := "href"
		if goquery.NodeName(sel) == "img" {
			attr = "src"
		}
		raw, ok := sel.Attr(attr)
		if !ok {
			return true
		}
		target, err := item.Url.Parse(raw)
		if err != nil || !IsMediaExt(path.Ext(target.Path)) {
			return true
		}
		// Thumbnails name a smaller rendition of the full file.
		target.Path = strings.Replace(target.Path, ".md.", ".", 1)
		target.Path = strings.Replace(target.Path, ".th.", ".", 1)

		if err := item.AddChildren(1); err != nil {
			ferr = err
			return false
		}
		filename := SanitizeFilename(path.Base(target.Path))
		media := hoardlib.NewMediaItem(item, target, h.domain, folder, filename, target.Path)
		if err := sink.HandleMediaItem(ctx, media); err != nil {
			ferr = err
			return false
		}
		return true
	}
	doc.Find("a[href]").EachWithBreak(collect)
	if ferr == nil {
		doc.Find("img[src]").EachWithBreak(collect)
	}
	return ferr
}

func folderFor(item *hoardlib.ScrapeItem, domain string) string {
	if item.ParentTitle != "" {
		return fmt.Sprintf("%s (%s)", SanitizeFilename(strings.ReplaceAll(item.ParentTitle, "/", " - ")), domain)
	}
	return domain
}
