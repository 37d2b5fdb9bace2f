package hoardlib

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// GateOpts configures the rate-limit fabric.
type GateOpts struct {
	// DownloadSlots is the global simultaneous download cap.
	DownloadSlots int64
	// DomainSlots is the default per-domain download cap. Scrapers may
	// override individual domains through DomainOverrides.
	DomainSlots     int64
	DomainOverrides map[string]int64
	// RequestsPerSecond is the per-domain request rate; zero disables it.
	RequestsPerSecond float64
	// GlobalRequestsPerSecond runs in parallel with the per-domain
	// limiter; zero disables it.
	GlobalRequestsPerSecond float64
	// SpeedLimit caps download throughput in bytes per second across the
	// whole run; zero disables byte-rate limiting.
	SpeedLimit int64
	// ChunkSize is the token acquisition unit for the byte bucket.
	ChunkSize int64
	// ServerLockedDomains lists domains whose requests are serialized
	// per physical server.
	ServerLockedDomains []string
}

// Gates is the concurrency and rate-limit fabric. Four coordinated gate
// levels govern downloads: the global slot semaphore, per-domain
// semaphores, per-server mutexes for opted-in domains, and token-bucket
// request limiters. Acquisition order is always global, then domain,
// then server, then file.
type Gates struct {
	global *semaphore.Weighted

	mu        sync.Mutex
	domains   map[string]*semaphore.Weighted
	overrides map[string]int64
	limiters  map[string]*rate.Limiter

	globalLimiter *rate.Limiter
	byteBucket    *rate.Limiter

	serverLocked map[string]struct{}
	serverLocks  *KeyedLocks[string]
	fileLocks    *KeyedLocks[string]

	domainSlots int64
	maxSlots    int64
	reqRate     float64
	chunkSize   int64
}

// NewGates builds the fabric from opts, applying defaults for zero values.
func NewGates(opts *GateOpts) *Gates {
	if opts == nil {
		opts = &GateOpts{}
	}
	if opts.DownloadSlots == 0 {
		opts.DownloadSlots = DEF_DOWNLOAD_SLOTS
	}
	if opts.DomainSlots == 0 {
		opts.DomainSlots = DEF_DOMAIN_SLOTS
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DEF_CHUNK_SIZE
	}
	g := &Gates{
		global:       semaphore.NewWeighted(opts.DownloadSlots),
		domains:      make(map[string]*semaphore.Weighted),
		overrides:    make(map[string]int64),
		limiters:     make(map[string]*rate.Limiter),
		serverLocked: make(map[string]struct{}),
		serverLocks:  NewKeyedLocks[string](),
		fileLocks:    NewKeyedLocks[string](),
		domainSlots:  opts.DomainSlots,
		maxSlots:     opts.DownloadSlots,
		reqRate:      opts.RequestsPerSecond,
		chunkSize:    opts.ChunkSize,
	}
	for domain, n := range opts.DomainOverrides {
		g.overrides[domain] = n
	}
	if opts.GlobalRequestsPerSecond > 0 {
		g.globalLimiter = rate.NewLimiter(rate.Limit(opts.GlobalRequestsPerSecond), int(opts.GlobalRequestsPerSecond)+1)
	}
	if opts.SpeedLimit > 0 {
		g.byteBucket = rate.NewLimiter(rate.Limit(opts.SpeedLimit), int(opts.ChunkSize))
	}
	for _, domain := range opts.ServerLockedDomains {
		g.serverLocked[domain] = struct{}{}
	}
	return g
}

// SetDomainLimit registers a scraper override for a domain's download
// slots. It takes effect for domains not yet seen.
func (g *Gates) SetDomainLimit(domain string, slots int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.overrides[domain] = slots
}

// AddServerLockedDomain opts a domain into per-server serialization.
func (g *Gates) AddServerLockedDomain(domain string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.serverLocked[domain] = struct{}{}
}

func (g *Gates) domainSemaphore(domain string) *semaphore.Weighted {
	g.mu.Lock()
	defer g.mu.Unlock()
	sem, ok := g.domains[domain]
	if ok {
		return sem
	}
	slots := g.domainSlots
	if o, ok := g.overrides[domain]; ok {
		slots = o
	}
	if slots > g.maxSlots {
		slots = g.maxSlots
	}
	sem = semaphore.NewWeighted(slots)
	g.domains[domain] = sem
	return sem
}

func (g *Gates) domainLimiter(domain string) *rate.Limiter {
	if g.reqRate <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[domain]
	if !ok {
		l = rate.NewLimiter(rate.Limit(g.reqRate), int(g.reqRate)+1)
		g.limiters[domain] = l
	}
	return l
}

// WaitRequest acquires one request token from the per-domain and global
// limiters. Every outgoing HTTP request goes through here.
func (g *Gates) WaitRequest(ctx context.Context, domain string) error {
	if l := g.domainLimiter(domain); l != nil {
		if err := l.Wait(ctx); err != nil {
			return err
		}
	}
	if g.globalLimiter != nil {
		return g.globalLimiter.Wait(ctx)
	}
	return nil
}

// WaitBytes acquires n byte tokens from the speed-cap bucket. A zero cap
// disables acquisition entirely.
func (g *Gates) WaitBytes(ctx context.Context, n int) error {
	if g.byteBucket == nil || n <= 0 {
		return nil
	}
	// rate.Limiter caps a single WaitN at its burst.
	burst := g.byteBucket.Burst()
	for n > 0 {
		take := n
		if take > burst {
			take = burst
		}
		if err := g.byteBucket.WaitN(ctx, take); err != nil {
			return err
		}
		n -= take
	}
	return nil
}

// DownloadGuard holds all slot acquisitions for one media item and
// releases them in LIFO order.
type DownloadGuard struct {
	gates    *Gates
	domain   string
	server   string
	filename string
	held     bool
}

// AcquireDownload takes the global slot, the domain slot, the server lock
// (when the domain is server-locked) and the per-file lock, in that
// order. Segments bypass the fabric; callers must not acquire for them.
func (g *Gates) AcquireDownload(ctx context.Context, domain, server, filename string) (*DownloadGuard, error) {
	if err := g.global.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := g.domainSemaphore(domain).Acquire(ctx, 1); err != nil {
		g.global.Release(1)
		return nil, err
	}
	guard := &DownloadGuard{gates: g, domain: domain, filename: filename, held: true}
	if _, locked := g.serverLocked[domain]; locked && server != "" {
		guard.server = server
		g.serverLocks.Lock(server)
	}
	g.fileLocks.Lock(filename)
	return guard, nil
}

// Release frees everything the guard holds, newest first. Safe to call
// more than once.
func (dg *DownloadGuard) Release() {
	if !dg.held {
		return
	}
	dg.held = false
	dg.gates.fileLocks.Unlock(dg.filename)
	if dg.server != "" {
		dg.gates.serverLocks.Unlock(dg.server)
	}
	dg.gates.domainSemaphore(dg.domain).Release(1)
	dg.gates.global.Release(1)
}

// ChunkSize returns the byte bucket's acquisition unit.
func (g *Gates) ChunkSize() int64 {
	return g.chunkSize
}
