package hoardlib

import (
	"net/url"
	"path/filepath"
	"testing"
)

func parse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestMediaItemPaths(t *testing.T) {
	m := &MediaItem{DownloadFolder: "/dl/album", Filename: "a.mp4"}
	if got := m.CompleteFile(); got != filepath.Join("/dl/album", "a.mp4") {
		t.Errorf("CompleteFile = %q", got)
	}
	if got := m.PartialFile(); got != filepath.Join("/dl/album", "a.mp4")+PartExt {
		t.Errorf("PartialFile = %q", got)
	}
	if m.Ext() != ".mp4" {
		t.Errorf("Ext = %q", m.Ext())
	}
}

func TestMediaItemRealUrl(t *testing.T) {
	direct := parse(t, "https://host.test/a.mp4")
	debrid := parse(t, "https://unlock.test/dl/xyz")
	m := &MediaItem{Url: direct}
	if m.RealUrl() != direct {
		t.Error("RealUrl should be the origin without a debrid link")
	}
	m.DebridUrl = debrid
	if m.RealUrl() != debrid {
		t.Error("RealUrl should prefer the debrid link")
	}
}

func TestNewMediaItemCopiesAncestry(t *testing.T) {
	root := parse(t, "https://forum.test/thread/1")
	child := parse(t, "https://host.test/album/2")
	si := NewScrapeItem(child)
	si.Parents = []*url.URL{root}
	si.AlbumID = "alb"
	si.Timestamp = 12345

	m := NewMediaItem(si, parse(t, "https://host.test/f/3.jpg"), "host", "/dl", "3.jpg", "/f/3.jpg")
	if len(m.Parents) != 1 || m.Parents[0] != root {
		t.Error("ancestry not copied")
	}
	if m.AlbumID != "alb" || m.Timestamp != 12345 {
		t.Error("album/timestamp not copied")
	}
	if m.Referer != child {
		t.Error("referer should be the scrape item url")
	}
	if m.Headers.Value(REFERER_KEY) != child.String() {
		t.Error("referer header should be pre-set")
	}
}

func TestMediaItemMetadata(t *testing.T) {
	m := &MediaItem{Url: parse(t, "metadata://x")}
	if !m.IsMetadata() {
		t.Error("metadata scheme should be detected")
	}
	if (&MediaItem{Url: parse(t, "https://x.test/a")}).IsMetadata() {
		t.Error("https is not metadata")
	}
}

func TestScrapeItemCreateChild(t *testing.T) {
	parent := NewScrapeItem(parse(t, "https://forum.test/thread/9"))
	parent.AddToParentTitle("Thread Nine")
	parent.AlbumID = "a9"
	parent.ParentThreads["https://forum.test/thread/9"] = struct{}{}

	child := parent.CreateChild(parse(t, "https://host.test/album/1"))
	if len(child.Parents) != 1 || child.Parents[0] != parent.Url {
		t.Error("parent url should be appended to ancestry")
	}
	if child.ParentTitle != "Thread Nine" || child.AlbumID != "a9" {
		t.Error("breadcrumb/album should carry forward")
	}

	// Mutating the child must not touch the parent.
	child.ParentThreads["other"] = struct{}{}
	if len(parent.ParentThreads) != 1 {
		t.Error("child maps must be deep copies")
	}
}

func TestScrapeItemChildrenLimit(t *testing.T) {
	s := NewScrapeItem(parse(t, "https://host.test/album"))
	s.ChildrenLimit = 2
	if err := s.AddChildren(1); err != nil {
		t.Fatal(err)
	}
	if err := s.AddChildren(1); err != nil {
		t.Fatal(err)
	}
	if err := s.AddChildren(1); err == nil {
		t.Error("third child should exceed the limit")
	}

	unlimited := NewScrapeItem(parse(t, "https://host.test/big"))
	for i := 0; i < 1000; i++ {
		if err := unlimited.AddChildren(1); err != nil {
			t.Fatalf("zero limit means unlimited: %v", err)
		}
	}
}

func TestScrapeItemReset(t *testing.T) {
	s := NewScrapeItem(parse(t, "https://host.test/x"))
	s.AlbumID = "a"
	s.Timestamp = 99
	s.Type = ScrapeFileHostAlbum
	s.Reset()
	if s.AlbumID != "" || s.Timestamp != 0 || s.Type != ScrapeForum {
		t.Errorf("Reset left %+v", s)
	}
}

func TestAddToParentTitle(t *testing.T) {
	s := NewScrapeItem(parse(t, "https://host.test/x"))
	s.AddToParentTitle("  ")
	if s.ParentTitle != "" {
		t.Error("blank segments are ignored")
	}
	s.AddToParentTitle("One")
	s.AddToParentTitle("Two")
	if s.ParentTitle != "One/Two" {
		t.Errorf("ParentTitle = %q", s.ParentTitle)
	}
}
