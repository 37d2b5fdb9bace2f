// Package orchestrator owns a run: it parses the input URL list, hands
// each URL to its site scraper (or the direct-HTTP fallback), feeds the
// resolved media items into the download engine, and coordinates the
// post-runtime steps (batch hashing, dedup sweep) and shutdown. The
// sorter is not run here; the CLI runs it after Run returns.
package orchestrator

import (
	"context"
	"errors"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/NTFSvolume/hoard/internal/progress"
	"github.com/NTFSvolume/hoard/internal/scraper"
	"github.com/NTFSvolume/hoard/pkg/hoardlib"
)

// Unlocker is an external unlock/debrid service. Supported URLs are
// rewritten to a direct fetch URL before download.
type Unlocker interface {
	Supports(u *url.URL) bool
	Unlock(ctx context.Context, u *url.URL) (*url.URL, error)
}

// Handoff is an external download manager taking whitelisted URLs
// instead of the built-in engine.
type Handoff interface {
	Whitelisted(u *url.URL) bool
	Send(ctx context.Context, u *url.URL) error
}

// Opts wires the orchestrator's collaborators.
type Opts struct {
	Settings  *hoardlib.Settings
	States    *hoardlib.States
	Streamer  *hoardlib.Streamer
	Hasher    *hoardlib.Hasher
	Deduper   *hoardlib.Deduper
	Registry  *scraper.Registry
	Direct    *scraper.DirectHTTP
	Reporter  *progress.Reporter
	LogFolder string
	Logger    *log.Logger
	// Unlocker and Handoff are optional external collaborators tried
	// after the registry and the direct scraper.
	Unlocker Unlocker
	Handoff  Handoff
	// CrawlerSlots bounds concurrent scrapes per crawler; zero selects
	// the default of 20.
	CrawlerSlots int64
}

// Orchestrator drives one run. It is the only component that holds the
// task group; downloaders receive just the handles they need.
type Orchestrator struct {
	settings *hoardlib.Settings
	states   *hoardlib.States
	streamer *hoardlib.Streamer
	hasher   *hoardlib.Hasher
	deduper  *hoardlib.Deduper
	registry *scraper.Registry
	direct   *scraper.DirectHTTP
	reporter *progress.Reporter
	l        *log.Logger

	runID string

	group    *errgroup.Group
	groupCtx context.Context

	seen      *hoardlib.VMap[string, struct{}]
	crawlSems map[string]*semaphore.Weighted
	crawlMu   sync.Mutex
	readyOnce map[string]*sync.Once
	slots     int64

	// successes collects completed items for post-download hashing.
	successMu sync.Mutex
	successes []*hoardlib.MediaItem

	unlocker Unlocker
	handoff  Handoff

	downloadErrors  *csvLog
	scrapeErrors    *csvLog
	unsupportedURLs *csvLog
	forumPosts      *csvLog
}

// New builds an orchestrator.
func New(opts *Opts) *Orchestrator {
	slots := opts.CrawlerSlots
	if slots == 0 {
		slots = hoardlib.DEF_CRAWLER_SLOTS
	}
	return &Orchestrator{
		settings:        opts.Settings,
		states:          opts.States,
		streamer:        opts.Streamer,
		hasher:          opts.Hasher,
		deduper:         opts.Deduper,
		registry:        opts.Registry,
		direct:          opts.Direct,
		reporter:        opts.Reporter,
		l:               opts.Logger,
		runID:           uuid.NewString(),
		seen:            hoardlib.NewVMap[string, struct{}](),
		crawlSems:       make(map[string]*semaphore.Weighted),
		readyOnce:       make(map[string]*sync.Once),
		slots:           slots,
		unlocker:        opts.Unlocker,
		handoff:         opts.Handoff,
		downloadErrors:  newCSVLog(opts.LogFolder, DownloadErrorsCSV),
		scrapeErrors:    newCSVLog(opts.LogFolder, ScrapeErrorsCSV),
		unsupportedURLs: newCSVLog(opts.LogFolder, UnsupportedURLsCSV),
		forumPosts:      newCSVLog(opts.LogFolder, LastForumPostsCSV),
	}
}

// RunID returns the random id generated for this run. The orchestrator
// does not write it into the run log or the CSV reports.
func (o *Orchestrator) RunID() string { return o.runID }

// Run executes the whole pipeline for the parsed input groups and blocks
// until every scrape and download task has finished, then runs the
// post-runtime steps.
func (o *Orchestrator) Run(ctx context.Context, groups []InputGroup) error {
	o.states.SetRunning()
	o.group, o.groupCtx = errgroup.WithContext(ctx)

	for _, g := range groups {
		for _, u := range g.URLs {
			o.dispatchURL(g.Name, u)
		}
	}

	// Task errors are reported per item; the group only propagates
	// context cancellation.
	err := o.group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		wlog(o.l, "run: task group finished with error: %s", err.Error())
	}

	if !o.states.ShuttingDown() {
		o.postRuntime(ctx)
	}

	o.downloadErrors.close()
	o.scrapeErrors.close()
	o.unsupportedURLs.close()
	o.forumPosts.close()
	return err
}

// dispatchURL routes one input URL: registered scraper, direct-HTTP
// fallback, or the unsupported log.
func (o *Orchestrator) dispatchURL(groupName string, u *url.URL) {
	key := u.String()
	if _, dup := o.seen.Get(key); dup {
		return
	}
	o.seen.Set(key, struct{}{})

	if hostMatchesAny(u, o.settings.BlockedDomains) {
		wlog(o.l, "scrape: %s is blocked by config", u)
		return
	}
	if o.settings.SkipByHost(u) {
		wlog(o.l, "scrape: %s skipped by host filters", u)
		return
	}

	item := hoardlib.NewScrapeItem(u)
	if groupName != "" {
		item.AddToParentTitle(groupName)
	}
	o.dispatchScrapeItem(item)
}

func (o *Orchestrator) dispatchScrapeItem(item *hoardlib.ScrapeItem) {
	if s, ok := o.registry.Match(item.Url); ok {
		o.spawnScrape(s, item)
		return
	}
	if o.direct != nil && o.direct.Supports(item.Url) {
		o.spawnScrape(o.direct, item)
		return
	}
	if o.unlocker != nil && o.unlocker.Supports(item.Url) {
		o.spawnUnlock(item)
		return
	}
	if o.handoff != nil && o.handoff.Whitelisted(item.Url) {
		o.group.Go(func() error {
			if err := o.handoff.Send(o.groupCtx, item.Url); err != nil {
				wlog(o.l, "handoff: %s failed: %s", item.Url, err.Error())
				o.recordScrapeError(item, err)
			}
			return nil
		})
		return
	}
	wlog(o.l, "scrape: unsupported url %s", item.Url)
	var referer string
	if len(item.Parents) != 0 {
		referer = item.Parents[len(item.Parents)-1].String()
	}
	if err := o.unsupportedURLs.write(item.Url.String(), referer); err != nil {
		wlog(o.l, "failed to record unsupported url: %s", err.Error())
	}
}

func (o *Orchestrator) spawnScrape(s scraper.Scraper, item *hoardlib.ScrapeItem) {
	o.group.Go(func() error {
		if err := o.states.WaitRunning(o.groupCtx); err != nil {
			return nil
		}
		sem := o.crawlerSemaphore(s.Domain())
		if err := sem.Acquire(o.groupCtx, 1); err != nil {
			return nil
		}
		defer sem.Release(1)

		if err := o.ready(s); err != nil {
			wlog(o.l, "scrape: %s setup failed: %s", s.Domain(), err.Error())
			o.recordScrapeError(item, err)
			return nil
		}
		if err := s.Fetch(o.groupCtx, item, o); err != nil {
			wlog(o.l, "scrape: %s failed for %s: %s", s.Domain(), item.Url, err.Error())
			o.recordScrapeError(item, err)
		}
		return nil
	})
}

// ready runs a scraper's one-shot setup exactly once per run.
func (o *Orchestrator) ready(s scraper.Scraper) error {
	o.crawlMu.Lock()
	once, ok := o.readyOnce[s.Domain()]
	if !ok {
		once = &sync.Once{}
		o.readyOnce[s.Domain()] = once
	}
	o.crawlMu.Unlock()
	var err error
	once.Do(func() { err = s.Ready(o.groupCtx) })
	return err
}

func (o *Orchestrator) crawlerSemaphore(domain string) *semaphore.Weighted {
	o.crawlMu.Lock()
	defer o.crawlMu.Unlock()
	sem, ok := o.crawlSems[domain]
	if !ok {
		sem = semaphore.NewWeighted(o.slots)
		o.crawlSems[domain] = sem
	}
	return sem
}

// HandleMediaItem implements scraper.MediaSink: it spawns the download
// task for a resolved media item.
func (o *Orchestrator) HandleMediaItem(ctx context.Context, item *hoardlib.MediaItem) error {
	if o.states.ShuttingDown() {
		return hoardlib.ErrShuttingDown
	}
	o.group.Go(func() error {
		downloaded, err := o.streamer.Download(o.groupCtx, item)
		if err != nil {
			o.recordDownloadError(item, err)
			return nil
		}
		if !downloaded {
			return nil
		}
		if o.settings.Hashing == hoardlib.HashingInPlace {
			if err := o.hasher.HashItem(o.groupCtx, item); err != nil {
				wlog(o.l, "hash: %s failed: %s", item.Filename, err.Error())
			}
		}
		o.successMu.Lock()
		o.successes = append(o.successes, item)
		o.successMu.Unlock()
		return nil
	})
	return nil
}

// HandleExternalLinks implements scraper.MediaSink for scrapers that
// discover further pages.
func (o *Orchestrator) HandleExternalLinks(ctx context.Context, items ...*hoardlib.ScrapeItem) error {
	if o.states.ShuttingDown() {
		return hoardlib.ErrShuttingDown
	}
	for _, item := range items {
		key := item.Url.String()
		if _, dup := o.seen.Get(key); dup {
			continue
		}
		o.seen.Set(key, struct{}{})
		if item.Type == hoardlib.ScrapeForumPost {
			if err := o.forumPosts.write(item.ParentTitle, item.Url.String()); err != nil {
				wlog(o.l, "failed to record forum post: %s", err.Error())
			}
		}
		o.dispatchScrapeItem(item)
	}
	return nil
}

// spawnUnlock resolves a debrid link and feeds the unlocked URL through
// the direct scraper with the debrid URL attached.
func (o *Orchestrator) spawnUnlock(item *hoardlib.ScrapeItem) {
	o.group.Go(func() error {
		unlocked, err := o.unlocker.Unlock(o.groupCtx, item.Url)
		if err != nil {
			wlog(o.l, "unlock: %s failed: %s", item.Url, err.Error())
			o.recordScrapeError(item, err)
			return nil
		}
		if err := o.direct.FetchUnlocked(o.groupCtx, item, unlocked, o); err != nil {
			o.recordScrapeError(item, err)
		}
		return nil
	})
}

// postRuntime runs after the task group drains: batch hashing and the
// dedup sweep. Run closes the CSV reports after it returns.
func (o *Orchestrator) postRuntime(ctx context.Context) {
	if o.settings.Hashing == hoardlib.HashingPostDownload {
		o.successMu.Lock()
		items := make([]*hoardlib.MediaItem, len(o.successes))
		copy(items, o.successes)
		o.successMu.Unlock()
		for _, item := range items {
			if err := o.hasher.HashItem(ctx, item); err != nil {
				wlog(o.l, "hash: %s failed: %s", item.Filename, err.Error())
			}
		}
	}
	if o.settings.Hashing != hoardlib.HashingOff {
		if err := o.deduper.Run(ctx, o.hasher.Results()); err != nil {
			wlog(o.l, "dedupe: sweep failed: %s", err.Error())
		}
	}
}

func (o *Orchestrator) recordDownloadError(item *hoardlib.MediaItem, err error) {
	o.reporter.AddFailed()
	var referer string
	if item.Referer != nil {
		referer = item.Referer.String()
	}
	if werr := o.downloadErrors.write(item.Url.String(), referer, err.Error()); werr != nil {
		wlog(o.l, "failed to record download error: %s", werr.Error())
	}
}

func (o *Orchestrator) recordScrapeError(item *hoardlib.ScrapeItem, err error) {
	if werr := o.scrapeErrors.write(item.Url.String(), err.Error()); werr != nil {
		wlog(o.l, "failed to record scrape error: %s", werr.Error())
	}
}

func hostMatchesAny(u *url.URL, domains []string) bool {
	host := strings.ToLower(u.Hostname())
	for _, d := range domains {
		if d == "" {
			continue
		}
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func wlog(l *log.Logger, format string, a ...any) {
	if l == nil {
		return
	}
	l.Printf(format, a...)
}
