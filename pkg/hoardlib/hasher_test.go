package hoardlib

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// fakeHashDB implements HashDB in memory.
type fakeHashDB struct {
	mu     sync.Mutex
	hashes map[string]HashResult // folder|filename|algo
	files  map[string]int64      // folder|filename -> size
	lookups, hits int
}

func newFakeHashDB() *fakeHashDB {
	return &fakeHashDB{
		hashes: make(map[string]HashResult),
		files:  make(map[string]int64),
	}
}

func (f *fakeHashDB) key(folder, filename string, algo HashAlgo) string {
	return folder + "|" + filename + "|" + string(algo)
}

func (f *fakeHashDB) GetFileHash(folder, filename string, algo HashAlgo) (string, int64, int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	res, ok := f.hashes[f.key(folder, filename, algo)]
	if !ok {
		return "", 0, 0, false, nil
	}
	f.hits++
	return res.Hash, res.FileSize, res.Mtime, true, nil
}

func (f *fakeHashDB) InsertOrUpdateHash(folder, filename string, algo HashAlgo, hash string, size, mtime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes[f.key(folder, filename, algo)] = HashResult{Hash: hash, FileSize: size, Mtime: mtime}
	return nil
}

func (f *fakeHashDB) InsertOrUpdateFile(folder, filename, originalFilename, referer string, size, date int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[folder+"|"+filename] = size
	return nil
}

func (f *fakeHashDB) GetFilesWithHashMatch(algo HashAlgo, hash string, size int64) ([]HashMatch, error) {
	return nil, nil
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestComputeHashStable(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "a.bin", "some stable content")

	first, err := ComputeHash(path, HashXXH128)
	if err != nil {
		t.Fatal(err)
	}
	second, err := ComputeHash(path, HashXXH128)
	if err != nil {
		t.Fatal(err)
	}
	if first == "" || first != second {
		t.Errorf("xxh128 not stable: %q vs %q", first, second)
	}
	if len(first) != 32 {
		t.Errorf("xxh128 hex should be 32 chars, got %d", len(first))
	}
}

func TestComputeHashAlgos(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "x.txt", "abc")

	for algo, want := range map[HashAlgo]string{
		HashMD5:    "900150983cd24fb0d6963f7d28e17f72",
		HashSHA256: "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
	} {
		got, err := ComputeHash(path, algo)
		if err != nil {
			t.Fatalf("%s: %v", algo, err)
		}
		if got != want {
			t.Errorf("%s = %q, want %q", algo, got, want)
		}
	}
	if _, err := ComputeHash(path, HashAlgo("crc32")); err == nil {
		t.Error("unknown algorithm should error")
	}
}

func TestHasherCacheReuse(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "cached.bin", "cache me")

	db := newFakeHashDB()
	var prevHashed int
	h := NewHasher(&HasherOpts{
		DB:         db,
		PrevHashed: func() { prevHashed++ },
	})

	first, err := h.HashFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	// Simulate the recorded row from the first run.
	folder, filename := filepath.Dir(path), filepath.Base(path)
	res := first[HashXXH128]
	if err := db.InsertOrUpdateHash(folder, filename, HashXXH128, res.Hash, res.FileSize, res.Mtime); err != nil {
		t.Fatal(err)
	}

	second, err := h.HashFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if second[HashXXH128].Hash != res.Hash {
		t.Error("cached hash should match")
	}
	if prevHashed != 1 {
		t.Errorf("expected 1 cache reuse, got %d", prevHashed)
	}
}

func TestHasherCacheIgnoredOnSizeMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "grown.bin", "v1")

	db := newFakeHashDB()
	folder, filename := filepath.Dir(path), filepath.Base(path)
	// Stale row recorded against a different size.
	if err := db.InsertOrUpdateHash(folder, filename, HashXXH128, "deadbeef", 999, 123); err != nil {
		t.Fatal(err)
	}

	var prevHashed int
	h := NewHasher(&HasherOpts{DB: db, PrevHashed: func() { prevHashed++ }})
	results, err := h.HashFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if results[HashXXH128].Hash == "deadbeef" {
		t.Error("stale cached hash must not be reused")
	}
	if prevHashed != 0 {
		t.Errorf("no cache reuse expected, got %d", prevHashed)
	}
}

func TestHashItemRecordsResults(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "done.jpg", "image bytes")

	db := newFakeHashDB()
	h := NewHasher(&HasherOpts{DB: db, ExtraAlgos: []HashAlgo{HashMD5}})

	u, _ := url.Parse("https://example.test/done.jpg")
	item := &MediaItem{
		Url:              u,
		Referer:          u,
		Domain:           "example",
		DownloadFolder:   dir,
		Filename:         "done.jpg",
		OriginalFilename: "done.jpg",
	}
	if err := h.HashItem(context.Background(), item); err != nil {
		t.Fatal(err)
	}
	if item.Hash == "" {
		t.Error("item.Hash should be filled with the xxh128 value")
	}
	folder, filename := filepath.Dir(path), filepath.Base(path)
	if _, _, _, ok, _ := db.GetFileHash(folder, filename, HashXXH128); !ok {
		t.Error("xxh128 row missing")
	}
	if _, _, _, ok, _ := db.GetFileHash(folder, filename, HashMD5); !ok {
		t.Error("md5 row missing")
	}
	if len(h.Results()) != 1 {
		t.Errorf("expected 1 recorded result, got %d", len(h.Results()))
	}
}

func TestHashItemSkipsSegments(t *testing.T) {
	h := NewHasher(nil)
	item := &MediaItem{IsSegment: true, Filename: "00001.ts"}
	if err := h.HashItem(context.Background(), item); err != nil {
		t.Fatal(err)
	}
	if item.Hash != "" {
		t.Error("segments are never hashed")
	}
}
