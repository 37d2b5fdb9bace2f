package orchestrator

import (
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/NTFSvolume/hoard/internal/progress"
	"github.com/NTFSvolume/hoard/internal/scraper"
	"github.com/NTFSvolume/hoard/pkg/hoardlib"
)

// memHistory implements hoardlib.HistoryStore in memory.
type memHistory struct {
	mu       sync.Mutex
	complete map[string]bool
}

func newMemHistory() *memHistory {
	return &memHistory{complete: make(map[string]bool)}
}

func (m *memHistory) CheckComplete(domain, urlStr, referer, dbPath string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.complete[domain+"|"+dbPath], nil
}

func (m *memHistory) InsertIncompleted(domain string, item *hoardlib.MediaItem) error {
	return nil
}

func (m *memHistory) MarkComplete(domain string, item *hoardlib.MediaItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.complete[domain+"|"+item.DbPath] = true
	return nil
}

func (m *memHistory) AddFilesize(string, *hoardlib.MediaItem, int64) error { return nil }
func (m *memHistory) AddDuration(string, *hoardlib.MediaItem) error        { return nil }
func (m *memHistory) SetAlbumID(string, *hoardlib.MediaItem) error         { return nil }
func (m *memHistory) GetDuration(string, *hoardlib.MediaItem) (float64, error) {
	return 0, nil
}

type testRig struct {
	orch     *Orchestrator
	settings *hoardlib.Settings
	history  *memHistory
	reporter *progress.Reporter
	logDir   string
}

func newTestRig(t *testing.T, settings *hoardlib.Settings) *testRig {
	t.Helper()
	if settings.DownloadDir == "" {
		settings.DownloadDir = t.TempDir()
	}
	pool, err := hoardlib.NewClientPool(nil)
	if err != nil {
		t.Fatal(err)
	}
	history := newMemHistory()
	states := hoardlib.NewStates()
	reporter := progress.New(nil)
	streamer := hoardlib.NewStreamer(&hoardlib.StreamerOpts{
		Settings: settings,
		Pool:     pool,
		Gates:    hoardlib.NewGates(nil),
		History:  history,
		States:   states,
		Handlers: &hoardlib.Handlers{
			PreviouslyDownloadedHandler: func(*hoardlib.MediaItem) { reporter.AddPreviouslyCompleted() },
			SkippedHandler:              func(*hoardlib.MediaItem, string) { reporter.AddSkipped() },
			CompletedHandler:            func(*hoardlib.MediaItem) { reporter.AddCompleted() },
		},
	})
	logDir := t.TempDir()
	orch := New(&Opts{
		Settings:  settings,
		States:    states,
		Streamer:  streamer,
		Hasher:    hoardlib.NewHasher(nil),
		Deduper:   hoardlib.NewDeduper(&hoardlib.DeduperOpts{Settings: settings}),
		Registry:  scraper.NewRegistry(),
		Direct:    scraper.NewDirectHTTP(settings.DownloadDir),
		Reporter:  reporter,
		LogFolder: logDir,
	})
	return &testRig{orch: orch, settings: settings, history: history, reporter: reporter, logDir: logDir}
}

func serveMedia(t *testing.T, payload string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunDownloadsDirectURL(t *testing.T) {
	srv := serveMedia(t, "media payload")
	rig := newTestRig(t, &hoardlib.Settings{})

	groups := []InputGroup{{URLs: ExtractURLs(srv.URL + "/clip.mp4")}}
	if err := rig.orch.Run(context.Background(), groups); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stats := rig.reporter.Stats()
	if stats.Completed != 1 {
		t.Errorf("Completed = %d", stats.Completed)
	}
	matches, _ := filepath.Glob(filepath.Join(rig.settings.DownloadDir, "*", "clip.mp4"))
	if len(matches) != 1 {
		t.Fatalf("downloaded file not found: %v", matches)
	}
	data, _ := os.ReadFile(matches[0])
	if string(data) != "media payload" {
		t.Errorf("content = %q", data)
	}
}

func TestRunSecondPassIsIdempotent(t *testing.T) {
	srv := serveMedia(t, "payload")
	settings := &hoardlib.Settings{}
	rig := newTestRig(t, settings)

	groups := []InputGroup{{URLs: ExtractURLs(srv.URL + "/a.jpg")}}
	if err := rig.orch.Run(context.Background(), groups); err != nil {
		t.Fatal(err)
	}

	// A fresh orchestrator against the same history skips the download.
	rig2 := newTestRig(t, settings)
	rig2.history.complete = rig.history.complete
	if err := rig2.orch.Run(context.Background(), groups); err != nil {
		t.Fatal(err)
	}
	stats := rig2.reporter.Stats()
	if stats.Completed != 0 {
		t.Errorf("second pass downloaded %d files", stats.Completed)
	}
	if stats.PreviouslyDownloaded != 1 {
		t.Errorf("previously-downloaded count = %d", stats.PreviouslyDownloaded)
	}
}

func TestRunRecordsUnsupportedURLs(t *testing.T) {
	rig := newTestRig(t, &hoardlib.Settings{})
	groups := []InputGroup{{URLs: ExtractURLs("https://nobody-knows.test/page")}}
	if err := rig.orch.Run(context.Background(), groups); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(rig.logDir, UnsupportedURLsCSV))
	if err != nil {
		t.Fatalf("unsupported csv missing: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 { // header + one row
		t.Fatalf("expected header + 1 row, got %d", len(rows))
	}
	if rows[0][0] != "url" {
		t.Errorf("header = %v", rows[0])
	}
	if !strings.Contains(rows[1][0], "nobody-knows.test") {
		t.Errorf("row = %v", rows[1])
	}
}

func TestRunRecordsDownloadErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	rig := newTestRig(t, &hoardlib.Settings{DisableAttemptLimit: true})
	groups := []InputGroup{{URLs: ExtractURLs(srv.URL + "/gone.mp4")}}
	if err := rig.orch.Run(context.Background(), groups); err != nil {
		t.Fatal(err)
	}

	if rig.reporter.Stats().Failed != 1 {
		t.Errorf("Failed = %d", rig.reporter.Stats().Failed)
	}
	if _, err := os.Stat(filepath.Join(rig.logDir, DownloadErrorsCSV)); err != nil {
		t.Error("download error csv missing")
	}
}

func TestRunDeduplicatesInput(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	rig := newTestRig(t, &hoardlib.Settings{})
	u := srv.URL + "/same.jpg"
	groups := []InputGroup{{URLs: ExtractURLs(u + " " + u + " " + u)}}
	if err := rig.orch.Run(context.Background(), groups); err != nil {
		t.Fatal(err)
	}
	if requests != 1 {
		t.Errorf("duplicate input urls caused %d requests", requests)
	}
}

func TestRunBlockedDomains(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("blocked domain must not be contacted")
	}))
	defer srv.Close()

	rig := newTestRig(t, &hoardlib.Settings{BlockedDomains: []string{"127.0.0.1"}})
	groups := []InputGroup{{URLs: ExtractURLs(srv.URL + "/a.jpg")}}
	if err := rig.orch.Run(context.Background(), groups); err != nil {
		t.Fatal(err)
	}
}
