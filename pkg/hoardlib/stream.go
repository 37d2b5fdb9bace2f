package hoardlib

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// slowDownloadPeriod is how long the speed may stay below threshold
	// before the transfer is aborted.
	slowDownloadPeriod = 10 * time.Second
	// freeSpaceCheckPeriod re-checks free space every N chunks.
	freeSpaceCheckPeriod = 5
)

// DurationProber reports the duration of a media file in seconds.
type DurationProber func(path string) (float64, error)

// StreamerOpts wires the streamer's collaborators.
type StreamerOpts struct {
	Settings *Settings
	Pool     *ClientPool
	Gates    *Gates
	Storage  *StorageMonitor
	History  HistoryStore
	States   *States
	Handlers *Handlers
	Retry    *RetryConfig
	Probe    DurationProber
	Logger   *log.Logger
}

// Streamer runs the download state machine for media items: history
// pre-check, gate acquisition, range-aware streaming into the partial
// file, promote, post checks and history finalization. One Streamer
// serves all items; per-item state lives on the stack.
type Streamer struct {
	settings *Settings
	pool     *ClientPool
	gates    *Gates
	storage  *StorageMonitor
	history  HistoryStore
	states   *States
	handlers *Handlers
	retry    RetryConfig
	probe    DurationProber
	l        *log.Logger

	// rangeDisabled holds domains whose servers ignored Range once.
	rangeDisabled *VMap[string, struct{}]
}

// NewStreamer builds a streamer, applying defaults for missing options.
func NewStreamer(opts *StreamerOpts) *Streamer {
	if opts == nil {
		opts = &StreamerOpts{}
	}
	if opts.Settings == nil {
		opts.Settings = &Settings{}
	}
	if opts.Handlers == nil {
		opts.Handlers = &Handlers{}
	}
	opts.Handlers.setDefault(opts.Logger)
	retry := DefaultRetryConfig()
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	retry.MaxAttempts = opts.Settings.MaxAttempts()
	st := opts.States
	if st == nil {
		st = NewStates()
		st.SetRunning()
	}
	return &Streamer{
		settings:      opts.Settings,
		pool:          opts.Pool,
		gates:         opts.Gates,
		storage:       opts.Storage,
		history:       opts.History,
		states:        st,
		handlers:      opts.Handlers,
		retry:         retry,
		probe:         opts.Probe,
		l:             opts.Logger,
		rangeDisabled: NewVMap[string, struct{}](),
	}
}

// Download runs the full state machine for one item and reports whether
// bytes were fetched. Errors that survive the retry budget are returned;
// skip decisions return (false, nil) after firing their handler.
func (s *Streamer) Download(ctx context.Context, item *MediaItem) (downloaded bool, err error) {
	if item.IsMetadata() {
		return false, nil
	}

	// Config-level skips issue no request at all.
	if s.settings.SkipByHost(item.Url) {
		s.handlers.SkippedHandler(item, "host filter")
		return false, nil
	}
	if s.settings.SkipByFilename(item) {
		s.handlers.SkippedHandler(item, "filename filter")
		return false, nil
	}
	if s.settings.SkipByDate(item) {
		s.handlers.SkippedHandler(item, "date range")
		return false, nil
	}

	if !item.IsSegment {
		done, er := s.preflight(item)
		if er != nil {
			return false, er
		}
		if done {
			return false, nil
		}
		if s.settings.SkipDownloadMarkCompleted {
			s.Log("download removed %s due to mark completed option", item.Url)
			s.handlers.SkippedHandler(item, "mark completed")
			if er := s.history.MarkComplete(item.Domain, item); er != nil {
				return false, er
			}
			return false, nil
		}
		if er := s.history.InsertIncompleted(item.Domain, item); er != nil {
			return false, er
		}
	}

	// Gate acquisition: global, then domain, then server, then file.
	// Segments ride on their parent's slots.
	if !item.IsSegment {
		item.CurrentAttempt = 0
		server := item.RealUrl().Hostname()
		guard, er := s.gates.AcquireDownload(ctx, item.Domain, server, item.Filename)
		if er != nil {
			return false, er
		}
		defer guard.Release()
	}

	downloaded, err = s.downloadWithRetry(ctx, item)
	if err != nil {
		s.handlers.FailedHandler(item, err)
		return false, err
	}
	if downloaded && !item.IsSegment {
		s.handlers.CompletedHandler(item)
	}
	return downloaded, nil
}

// preflight checks history; returns done=true when the item is already
// complete and the run can skip it.
func (s *Streamer) preflight(item *MediaItem) (done bool, err error) {
	if s.settings.IgnoreHistory || item.DbPath == "" {
		return false, nil
	}
	var referer string
	if item.Referer != nil {
		referer = item.Referer.String()
	}
	complete, err := s.history.CheckComplete(item.Domain, item.Url.String(), referer, item.DbPath)
	if err != nil {
		return false, err
	}
	if !complete {
		return false, nil
	}
	if item.AlbumID != "" {
		if er := s.history.SetAlbumID(item.Domain, item); er != nil {
			s.Log("failed to set album id for %s: %s", item.Url, er.Error())
		}
	}
	s.Log("skipping %s, already downloaded", item.Url)
	s.handlers.PreviouslyDownloadedHandler(item)
	return true, nil
}

// errRestartAttempt restarts the state machine without consuming one of
// the item's attempts (416 after a Range request).
var errRestartAttempt = errors.New("restart attempt")

func (s *Streamer) downloadWithRetry(ctx context.Context, item *MediaItem) (bool, error) {
	for {
		downloaded, err := s.attempt(ctx, item)
		if err == nil {
			return downloaded, nil
		}
		if errors.Is(err, errRestartAttempt) {
			continue
		}
		if !IsRetryable(err) {
			return false, err
		}
		item.CurrentAttempt++
		if item.CurrentAttempt >= s.retry.MaxAttempts {
			return false, err
		}
		s.Log("download failed (%s), retry attempt %d/%d for %s",
			err.Error(), item.CurrentAttempt+1, s.retry.MaxAttempts, item.Url)
		s.handlers.RetryHandler(item, item.CurrentAttempt, s.retry.MaxAttempts, err)
		if werr := s.retry.WaitForRetry(ctx, item.CurrentAttempt, ClassifyError(err)); werr != nil {
			return false, werr
		}
	}
}

// attempt performs one pass of steps 2–10 of the state machine.
func (s *Streamer) attempt(ctx context.Context, item *MediaItem) (bool, error) {
	if err := s.states.WaitRunning(ctx); err != nil {
		return false, err
	}

	realUrl := item.RealUrl()
	if status, bad := knownBadURLs[realUrl.String()]; bad {
		return false, NewDownloadError(status, "server returned a known placeholder file")
	}

	// Resume computation. A stale Range header from a previous attempt
	// must not survive once the partial is gone.
	var resumePoint int64
	if s.rangeSupported(item.Domain) {
		if size := fileSizeOrZero(item.PartialFile()); size > 0 {
			resumePoint = size
			item.Headers.SetRange(size)
		}
	}
	if resumePoint == 0 {
		item.Headers.Drop(RANGE_KEY)
	}

	s.sleepDelay(ctx)

	if err := s.gates.WaitRequest(ctx, item.Domain); err != nil {
		return false, err
	}
	req, err := s.pool.NewRequest(ctx, http.MethodGet, realUrl.String(), item.Domain, item.Headers)
	if err != nil {
		return false, err
	}
	resp, err := s.pool.ClientFor(item.Domain).Do(req)
	if err != nil {
		return false, promoteTransportError(err)
	}
	defer resp.Body.Close()

	downloaded, err := s.processResponse(ctx, item, resumePoint, resp)
	if err != nil || !downloaded {
		return downloaded, err
	}

	// Promote partial to complete; atomic on the same filesystem.
	if err := os.Rename(item.PartialFile(), item.CompleteFile()); err != nil {
		return false, promoteTransportError(err)
	}

	if !item.IsSegment {
		proceed, err := s.checkDuration(item)
		if err != nil {
			return false, err
		}
		if !proceed {
			s.Log("download skip %s due to duration restrictions", item.Url)
			os.Remove(item.CompleteFile())
			s.handlers.SkippedHandler(item, "duration")
			return false, nil
		}
	}

	if err := s.finalize(item); err != nil {
		return false, err
	}
	item.Downloaded = true
	return true, nil
}

func (s *Streamer) processResponse(ctx context.Context, item *MediaItem, resumePoint int64, resp *http.Response) (bool, error) {
	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		// The partial no longer matches what the server has; start over
		// without consuming an attempt. A 416 with no Range sent is a
		// plain status error.
		if resumePoint == 0 {
			return false, statusToError(resp.StatusCode)
		}
		os.Remove(item.PartialFile())
		item.Headers.Drop(RANGE_KEY)
		return false, errRestartAttempt
	}

	if msg, bad := badETags[resp.Header.Get("ETag")]; bad {
		return false, NewDownloadError(http.StatusNotFound, msg)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return false, statusToError(resp.StatusCode)
	}

	if resumePoint > 0 && resp.StatusCode != http.StatusPartialContent {
		// Server ignored the Range header; the partial is useless.
		os.Remove(item.PartialFile())
		item.Headers.Drop(RANGE_KEY)
		resumePoint = 0
	}

	if !item.IsSegment {
		if err := checkContentType(item.Ext(), resp.Header); err != nil {
			return false, err
		}
	}

	if cl := resp.ContentLength; cl > 0 {
		item.Filesize = resumePoint + cl
	}
	if !s.settings.CheckFilesize(item) {
		s.handlers.SkippedHandler(item, "size limits")
		return false, nil
	}

	if !item.IsSegment && item.Timestamp == 0 {
		if lm := parseHTTPDate(resp.Header.Get("Last-Modified")); lm != 0 {
			s.Log("no upload date for %s, using Last-Modified header", item.Url)
			item.Timestamp = lm
		}
	}

	return true, s.appendContent(ctx, item, resumePoint, resp.Body)
}

// appendContent streams the body into the partial file, gating on free
// space, the byte bucket and the slow-speed abort.
func (s *Streamer) appendContent(ctx context.Context, item *MediaItem, resumePoint int64, body io.Reader) error {
	if err := s.checkFreeSpace(item); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(item.PartialFile()), DefaultDirMode); err != nil {
		return promoteTransportError(err)
	}
	f, err := os.OpenFile(item.PartialFile(), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return promoteTransportError(err)
	}
	defer f.Close()

	total := int64(-1)
	if item.Filesize > 0 {
		total = item.Filesize
	}
	var hook ProgressHook = nopHook{}
	if !item.IsSegment {
		hook = s.handlers.NewHook(item.Filename, total)
		hook.Advance(int(resumePoint))
	}
	defer hook.Close()

	chunkSize := s.gates.ChunkSize()
	buf := make([]byte, chunkSize)
	var chunk int
	var lastSlowRead time.Time
	for {
		if err := s.states.WaitRunning(ctx); err != nil {
			return err
		}
		n, rerr := io.ReadFull(body, buf)
		if n > 0 {
			chunk++
			if chunk%freeSpaceCheckPeriod == 0 {
				if err := s.checkFreeSpace(item); err != nil {
					return err
				}
			}
			if err := s.gates.WaitBytes(ctx, n); err != nil {
				return err
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				return promoteTransportError(werr)
			}
			hook.Advance(n)
			if err := s.checkSpeed(hook, &lastSlowRead); err != nil {
				return err
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
				break
			}
			return promoteTransportError(rerr)
		}
	}

	if err := f.Sync(); err != nil {
		return promoteTransportError(err)
	}
	return s.postDownloadCheck(item)
}

func (s *Streamer) postDownloadCheck(item *MediaItem) error {
	if fileSizeOrZero(item.PartialFile()) == 0 {
		os.Remove(item.PartialFile())
		return NewRetryableDownloadError(http.StatusInternalServerError, "File is empty")
	}
	return nil
}

func (s *Streamer) checkSpeed(hook ProgressHook, lastSlowRead *time.Time) error {
	threshold := s.settings.SlowDownloadSpeed
	if threshold <= 0 {
		return nil
	}
	if hook.Speed() > threshold {
		*lastSlowRead = time.Time{}
		return nil
	}
	if lastSlowRead.IsZero() {
		*lastSlowRead = time.Now()
		return nil
	}
	if time.Since(*lastSlowRead) > slowDownloadPeriod {
		return fmt.Errorf("%w for over %s", ErrSlowDownload, slowDownloadPeriod)
	}
	return nil
}

func (s *Streamer) checkFreeSpace(item *MediaItem) error {
	if s.storage == nil {
		return nil
	}
	return s.storage.CheckFreeSpace(item)
}

func (s *Streamer) checkDuration(item *MediaItem) (bool, error) {
	ext := item.Ext()
	if !hasExt(VideoExts, ext) && !hasExt(AudioExts, ext) {
		return true, nil
	}
	noLimits := s.settings.MinVideoDuration == 0 && s.settings.MaxVideoDuration == 0 &&
		s.settings.MinAudioDuration == 0 && s.settings.MaxAudioDuration == 0
	if noLimits {
		return true, nil
	}
	if item.Duration == 0 && s.probe != nil {
		d, err := s.probe(item.CompleteFile())
		if err != nil {
			s.Log("duration probe failed for %s: %s", item.Filename, err.Error())
			return true, nil
		}
		item.Duration = d
	}
	if item.Duration != 0 {
		if err := s.history.AddDuration(item.Domain, item); err != nil {
			s.Log("failed to record duration for %s: %s", item.Filename, err.Error())
		}
	}
	return s.settings.CheckDuration(item), nil
}

// finalize sets permissions and timestamps and records completion.
func (s *Streamer) finalize(item *MediaItem) error {
	complete := item.CompleteFile()
	if err := os.Chmod(complete, DefaultFileMode); err != nil {
		s.Log("chmod failed for %s: %s", complete, err.Error())
	}
	if !s.settings.DisableFileTimestamps && item.Timestamp != 0 {
		ts := time.Unix(item.Timestamp, 0)
		setCreationTime(complete, ts)
		if err := os.Chtimes(complete, ts, ts); err != nil {
			s.Log("utime failed for %s: %s", complete, err.Error())
		}
	}
	if item.IsSegment {
		return nil
	}
	if err := s.history.MarkComplete(item.Domain, item); err != nil {
		return err
	}
	if size := fileSizeOrZero(complete); size > 0 {
		if err := s.history.AddFilesize(item.Domain, item, size); err != nil {
			return err
		}
	}
	return nil
}

func (s *Streamer) rangeSupported(domain string) bool {
	if s.settings.DisableRanges {
		return false
	}
	_, off := s.rangeDisabled.Get(domain)
	return !off
}

// DisableRangesFor turns off resume for one domain; scrapers use this
// for hosts that serve corrupt partial content.
func (s *Streamer) DisableRangesFor(domain string) {
	s.rangeDisabled.Set(domain, struct{}{})
}

func (s *Streamer) sleepDelay(ctx context.Context) {
	delay := s.settings.DownloadDelay
	if s.settings.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(s.settings.Jitter)))
	}
	if delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// Log writes to the run log.
func (s *Streamer) Log(format string, a ...any) {
	wlog(s.l, format, a...)
}

// statusToError maps an HTTP status to a DownloadError, marking server
// errors and throttling as retryable.
func statusToError(status int) *DownloadError {
	retry := status >= 500 || status == http.StatusTooManyRequests
	return &DownloadError{Status: status, Message: http.StatusText(status), Retry: retry}
}

// promoteTransportError wraps connection resets, timeouts and filesystem
// errors as retryable download errors; context cancellation passes through.
func promoteTransportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if ClassifyError(err) != ErrCategoryFatal {
		return &DownloadError{Status: http.StatusInternalServerError, Message: err.Error(), Retry: true}
	}
	return err
}

// checkContentType rejects html/text bodies for non-text files before
// any bytes are written.
func checkContentType(ext string, header http.Header) error {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		if header.Get("Content-Length") == "" {
			return fmt.Errorf("%w: no content type in response headers", ErrInvalidContentType)
		}
		return nil
	}
	contentType = strings.ToLower(contentType)
	for needle, override := range contentTypeOverrides {
		if strings.Contains(contentType, needle) {
			contentType = override
			break
		}
	}
	isText := strings.Contains(contentType, "html") || strings.Contains(contentType, "text")
	if isText && !hasExt(TextExts, ext) {
		return fmt.Errorf("%w: received %q, was expecting other", ErrInvalidContentType, contentType)
	}
	return nil
}
