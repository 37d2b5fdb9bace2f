// Package scraper defines the Scraper capability the orchestrator
// dispatches URLs to, the static domain registry, and the two built-in
// scrapers: the direct-HTTP fallback for bare media links and a generic
// HTML index scraper.
package scraper

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/NTFSvolume/hoard/pkg/hoardlib"
)

// MediaSink receives resolved media items from scrapers. The
// orchestrator implements it; it runs the history pre-check and spawns
// the downloader task.
type MediaSink interface {
	HandleMediaItem(ctx context.Context, item *hoardlib.MediaItem) error
	// HandleExternalLinks feeds new scrape items back into the run.
	HandleExternalLinks(ctx context.Context, items ...*hoardlib.ScrapeItem) error
}

// Scraper enumerates the actual media items behind a page.
type Scraper interface {
	// Domain is the logical key this scraper registers under.
	Domain() string
	// PrimaryURL is the canonical site URL, used for host matching.
	PrimaryURL() *url.URL
	// Ready performs one-shot async setup (login, token acquisition).
	// It is called once before the first Fetch.
	Ready(ctx context.Context) error
	// Fetch resolves the scrape item, emitting media items into the sink.
	Fetch(ctx context.Context, item *hoardlib.ScrapeItem, sink MediaSink) error
}

// oldDomains maps hosts that moved to the domain their scraper
// registers under.
var oldDomains = map[string]string{
	"cyberdrop.cc": "cyberdrop.me",
	"cyberdrop.to": "cyberdrop.me",
	"bunkr.ru":     "bunkr.si",
	"bunkr.su":     "bunkr.si",
	"coomer.party": "coomer.su",
	"kemono.party": "kemono.su",
}

// Registry is the static domain -> scraper table. Lookup walks a sorted
// host list so subdomains match their parent registration.
type Registry struct {
	scrapers map[string]Scraper
	hosts    []string // sorted, longest first
}

// NewRegistry builds a registry from the given scrapers.
func NewRegistry(scrapers ...Scraper) *Registry {
	r := &Registry{scrapers: make(map[string]Scraper, len(scrapers))}
	for _, s := range scrapers {
		r.scrapers[s.Domain()] = s
		r.hosts = append(r.hosts, s.Domain())
		if p := s.PrimaryURL(); p != nil && p.Hostname() != s.Domain() {
			r.scrapers[p.Hostname()] = s
			r.hosts = append(r.hosts, p.Hostname())
		}
	}
	sort.Slice(r.hosts, func(i, j int) bool { return len(r.hosts[i]) > len(r.hosts[j]) })
	return r
}

// Match returns the scraper responsible for a URL's host, honoring the
// old-domain substitutions.
func (r *Registry) Match(u *url.URL) (Scraper, bool) {
	host := strings.ToLower(u.Hostname())
	if replacement, moved := oldDomains[host]; moved {
		host = replacement
	}
	for _, h := range r.hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return r.scrapers[h], true
		}
	}
	return nil, false
}

// All returns every distinct registered scraper.
func (r *Registry) All() []Scraper {
	seen := make(map[string]struct{})
	var out []Scraper
	for _, s := range r.scrapers {
		if _, dup := seen[s.Domain()]; dup {
			continue
		}
		seen[s.Domain()] = struct{}{}
		out = append(out, s)
	}
	return out
}
