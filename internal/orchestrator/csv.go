package orchestrator

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
)

// CSV report file names, written under the log folder.
const (
	DownloadErrorsCSV  = "Download_Error_URLs.csv"
	ScrapeErrorsCSV    = "Scrape_Error_URLs.csv"
	LastForumPostsCSV  = "Last_Scraped_Forum_Posts.csv"
	UnsupportedURLsCSV = "Unsupported_URLs.csv"
)

var csvHeaders = map[string][]string{
	DownloadErrorsCSV:  {"url", "referer", "error"},
	ScrapeErrorsCSV:    {"url", "error"},
	LastForumPostsCSV:  {"forum", "url"},
	UnsupportedURLsCSV: {"url", "referer"},
}

// csvLog appends rows to one report file, writing the fixed header on
// first use. Writers are cheap; the file stays open for the run.
type csvLog struct {
	mu     sync.Mutex
	path   string
	header []string
	w      *csv.Writer
	f      *os.File
}

func newCSVLog(folder, name string) *csvLog {
	return &csvLog{
		path:   filepath.Join(folder, name),
		header: csvHeaders[name],
	}
}

func (c *csvLog) write(row ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(c.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		c.f = f
		c.w = csv.NewWriter(f)
		if err := c.w.Write(c.header); err != nil {
			return err
		}
	}
	if err := c.w.Write(row); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *csvLog) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f != nil {
		c.w.Flush()
		c.f.Close()
		c.f = nil
	}
}
