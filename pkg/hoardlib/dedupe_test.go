package hoardlib

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// matchDB serves canned hash matches.
type matchDB struct {
	fakeHashDB
	matches []HashMatch
}

func (m *matchDB) GetFilesWithHashMatch(algo HashAlgo, hash string, size int64) ([]HashMatch, error) {
	return m.matches, nil
}

func TestDeduperKeepsOldest(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "older.bin")
	newer := filepath.Join(dir, "newer.bin")
	for _, p := range []string{older, newer} {
		if err := os.WriteFile(p, []byte("same content"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	db := &matchDB{matches: []HashMatch{
		{Folder: dir, Filename: "newer.bin", CreatedAt: 200},
		{Folder: dir, Filename: "older.bin", CreatedAt: 100},
	}}

	var removed int
	d := NewDeduper(&DeduperOpts{
		DB:       db,
		Settings: &Settings{AutoDedupe: true, SendToTrash: false},
		OnDelete: func() { removed++ },
	})

	results := map[string]HashResult{
		newer: {Hash: "aabb", FileSize: 12},
	}
	if err := d.Run(context.Background(), results); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(older); err != nil {
		t.Error("oldest copy must survive")
	}
	if _, err := os.Stat(newer); !os.IsNotExist(err) {
		t.Error("newer duplicate must be deleted")
	}
	if removed != 1 {
		t.Errorf("expected 1 removal, got %d", removed)
	}
}

func TestDeduperMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	db := &matchDB{matches: []HashMatch{
		{Folder: dir, Filename: "kept.bin", CreatedAt: 1},
		{Folder: dir, Filename: "already-gone.bin", CreatedAt: 2},
	}}
	d := NewDeduper(&DeduperOpts{
		DB:       db,
		Settings: &Settings{AutoDedupe: true},
	})
	results := map[string]HashResult{
		filepath.Join(dir, "kept.bin"): {Hash: "cc", FileSize: 4},
	}
	if err := d.Run(context.Background(), results); err != nil {
		t.Fatalf("missing duplicate should be tolerated: %v", err)
	}
}

func TestDeduperDisabled(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
	}{
		{"ignore history", Settings{AutoDedupe: true, IgnoreHistory: true}},
		{"auto dedupe off", Settings{AutoDedupe: false}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDeduper(&DeduperOpts{DB: &matchDB{}, Settings: &tc.settings})
			if d.Enabled() {
				t.Error("deduper should be disabled")
			}
		})
	}
}

func TestDeduperSingleMatchUntouched(t *testing.T) {
	dir := t.TempDir()
	only := filepath.Join(dir, "only.bin")
	if err := os.WriteFile(only, []byte("unique"), 0o644); err != nil {
		t.Fatal(err)
	}
	db := &matchDB{matches: []HashMatch{{Folder: dir, Filename: "only.bin", CreatedAt: 5}}}
	d := NewDeduper(&DeduperOpts{DB: db, Settings: &Settings{AutoDedupe: true}})
	if err := d.Run(context.Background(), map[string]HashResult{only: {Hash: "dd", FileSize: 6}}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(only); err != nil {
		t.Error("a lone copy must never be deleted")
	}
}
