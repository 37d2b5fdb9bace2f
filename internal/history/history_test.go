package history

import (
	"errors"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/NTFSvolume/hoard/pkg/hoardlib"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testMediaItem(t *testing.T, rawUrl string) *hoardlib.MediaItem {
	t.Helper()
	u, err := url.Parse(rawUrl)
	if err != nil {
		t.Fatal(err)
	}
	return &hoardlib.MediaItem{
		Url:              u,
		Referer:          u,
		Domain:           "example",
		DownloadFolder:   "/downloads/example",
		Filename:         "a.mp4",
		OriginalFilename: "a.mp4",
		DbPath:           u.Path,
	}
}

func TestInsertAndMarkComplete(t *testing.T) {
	s := openTestStore(t)
	item := testMediaItem(t, "https://example.test/a.mp4")

	if err := s.InsertIncompleted("example", item); err != nil {
		t.Fatal(err)
	}
	complete, err := s.CheckComplete("example", item.Url.String(), item.Referer.String(), item.DbPath)
	if err != nil {
		t.Fatal(err)
	}
	if complete {
		t.Error("row should start incomplete")
	}

	if err := s.MarkComplete("example", item); err != nil {
		t.Fatal(err)
	}
	complete, err = s.CheckComplete("example", item.Url.String(), item.Referer.String(), item.DbPath)
	if err != nil {
		t.Fatal(err)
	}
	if !complete {
		t.Error("row should be complete after MarkComplete")
	}
}

func TestInsertIncompletedIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	item := testMediaItem(t, "https://example.test/a.mp4")
	for i := 0; i < 3; i++ {
		if err := s.InsertIncompleted("example", item); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if err := s.MarkComplete("example", item); err != nil {
		t.Fatal(err)
	}
	// A re-insert after completion must not reset the row.
	if err := s.InsertIncompleted("example", item); err != nil {
		t.Fatal(err)
	}
	complete, err := s.CheckComplete("example", item.Url.String(), item.Referer.String(), item.DbPath)
	if err != nil {
		t.Fatal(err)
	}
	if !complete {
		t.Error("insert-or-ignore must not clear the completed flag")
	}
}

func TestCheckCompleteRewritesReferer(t *testing.T) {
	s := openTestStore(t)
	item := testMediaItem(t, "https://example.test/file/42")
	oldReferer, _ := url.Parse("https://example.test/album/old")
	item.Referer = oldReferer
	if err := s.InsertIncompleted("example", item); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkComplete("example", item); err != nil {
		t.Fatal(err)
	}

	newReferer := "https://example.test/album/new"
	complete, err := s.CheckComplete("example", item.Url.String(), newReferer, item.DbPath)
	if err != nil {
		t.Fatal(err)
	}
	if !complete {
		t.Fatal("row should be complete")
	}

	// The rewrite makes the referer lookup succeed for the new URL.
	found, err := s.CheckCompleteByReferer("example", newReferer)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Error("referer should have been rewritten")
	}
	found, err = s.CheckCompleteByReferer("", newReferer)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Error("empty domain should match any crawler")
	}
}

func TestFilesizeDurationAlbum(t *testing.T) {
	s := openTestStore(t)
	item := testMediaItem(t, "https://example.test/a.mp4")
	if err := s.InsertIncompleted("example", item); err != nil {
		t.Fatal(err)
	}
	if err := s.AddFilesize("example", item, 2048); err != nil {
		t.Fatal(err)
	}
	item.Duration = 12.5
	if err := s.AddDuration("example", item); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetDuration("example", item)
	if err != nil {
		t.Fatal(err)
	}
	if got != 12.5 {
		t.Errorf("GetDuration = %v", got)
	}

	item.AlbumID = "alb-1"
	if err := s.SetAlbumID("example", item); err != nil {
		t.Fatal(err)
	}
	album, err := s.CheckAlbum("example", "alb-1")
	if err != nil {
		t.Fatal(err)
	}
	if done, ok := album[item.DbPath]; !ok || done {
		t.Errorf("CheckAlbum = %v", album)
	}
}

func TestGetDurationMissingRow(t *testing.T) {
	s := openTestStore(t)
	item := testMediaItem(t, "https://example.test/none.mp4")
	got, err := s.GetDuration("example", item)
	if err != nil {
		t.Fatalf("missing row is not an error: %v", err)
	}
	if got != 0 {
		t.Errorf("GetDuration = %v", got)
	}
}

func TestHashRoundTrip(t *testing.T) {
	s := openTestStore(t)
	if err := s.InsertOrUpdateFile("/dl", "a.bin", "orig.bin", "https://r.test", 10, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertOrUpdateHash("/dl", "a.bin", hoardlib.HashXXH128, "cafe", 10, 111); err != nil {
		t.Fatal(err)
	}

	hash, size, mtime, ok, err := s.GetFileHash("/dl", "a.bin", hoardlib.HashXXH128)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || hash != "cafe" || size != 10 || mtime != 111 {
		t.Errorf("GetFileHash = %q %d %d %v", hash, size, mtime, ok)
	}

	exists, err := s.CheckHashExists(hoardlib.HashXXH128, "cafe")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("hash should exist")
	}

	// Upsert replaces in place.
	if err := s.InsertOrUpdateHash("/dl", "a.bin", hoardlib.HashXXH128, "beef", 12, 222); err != nil {
		t.Fatal(err)
	}
	hash, size, _, _, err = s.GetFileHash("/dl", "a.bin", hoardlib.HashXXH128)
	if err != nil {
		t.Fatal(err)
	}
	if hash != "beef" || size != 12 {
		t.Errorf("upsert result = %q %d", hash, size)
	}

	_, _, _, ok, err = s.GetFileHash("/dl", "a.bin", hoardlib.HashMD5)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("md5 row should be absent")
	}
}

func TestGetFilesWithHashMatch(t *testing.T) {
	s := openTestStore(t)
	for _, f := range []string{"one.bin", "two.bin"} {
		if err := s.InsertOrUpdateFile("/dl", f, f, "https://r.test", 10, 0); err != nil {
			t.Fatal(err)
		}
		if err := s.InsertOrUpdateHash("/dl", f, hoardlib.HashXXH128, "same", 10, 1); err != nil {
			t.Fatal(err)
		}
	}
	matches, err := s.GetFilesWithHashMatch(hoardlib.HashXXH128, "same", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	// Size mismatch excludes rows.
	matches, err = s.GetFilesWithHashMatch(hoardlib.HashXXH128, "same", 999)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("size mismatch should return nothing, got %d", len(matches))
	}
}

func TestSchemaVersionTooOld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Rewrite the version table with an ancient version.
	if _, err := s.db.Exec("DELETE FROM schema_version"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES ('0.1.0')"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	_, err = Open(path, nil)
	if !errors.Is(err, hoardlib.ErrSchemaTooOld) {
		t.Fatalf("expected ErrSchemaTooOld, got %v", err)
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.2.0", "1.10.0", -1},
		{"2.0", "1.9.9", 1},
		{"1.0", "1.0.1", -1},
	}
	for _, tc := range tests {
		if got := compareVersions(tc.a, tc.b); got != tc.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
