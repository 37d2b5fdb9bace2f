package hoardlib

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"sort"
)

// DeduperOpts configures the duplicate remover.
type DeduperOpts struct {
	DB       HashDB
	Settings *Settings
	Logger   *log.Logger
	// OnDelete is bumped per removed duplicate.
	OnDelete func()
}

// Deduper removes freshly downloaded files whose fingerprint already
// exists in the store. Exactly one copy survives: the oldest row by
// created_at. Dedup is skipped entirely when IgnoreHistory is set or
// AutoDedupe is off.
type Deduper struct {
	db       HashDB
	settings *Settings
	l        *log.Logger
	onDelete func()
}

// NewDeduper builds a deduper.
func NewDeduper(opts *DeduperOpts) *Deduper {
	if opts == nil {
		opts = &DeduperOpts{}
	}
	if opts.Settings == nil {
		opts.Settings = &Settings{}
	}
	if opts.OnDelete == nil {
		opts.OnDelete = func() {}
	}
	return &Deduper{
		db:       opts.DB,
		settings: opts.Settings,
		l:        opts.Logger,
		onDelete: opts.OnDelete,
	}
}

// Enabled reports whether dedup runs at all this run.
func (d *Deduper) Enabled() bool {
	return d.db != nil && d.settings.AutoDedupe && !d.settings.IgnoreHistory
}

// Run sweeps the hasher's results and deletes confirmed duplicates.
func (d *Deduper) Run(ctx context.Context, results map[string]HashResult) error {
	if !d.Enabled() {
		return nil
	}
	for file, result := range results {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := d.dedupeOne(file, result); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deduper) dedupeOne(file string, result HashResult) error {
	matches, err := d.db.GetFilesWithHashMatch(HashXXH128, result.Hash, result.FileSize)
	if err != nil {
		return err
	}
	if len(matches) < 2 {
		return nil
	}
	// Keep the oldest copy; delete everything newer.
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt < matches[j].CreatedAt
	})
	keep := filepath.Join(matches[0].Folder, matches[0].Filename)
	for _, m := range matches[1:] {
		path := filepath.Join(m.Folder, m.Filename)
		if path == keep {
			continue
		}
		deleted, err := d.deleteFile(path)
		if err != nil {
			wlog(d.l, "dedupe: unable to remove %q (xxh128:%s): %s", path, result.Hash, err.Error())
			return err
		}
		if deleted {
			wlog(d.l, "dedupe: removed %q, fingerprint matches previous download %q (xxh128:%s)", path, keep, result.Hash)
			d.onDelete()
		}
	}
	return nil
}

// deleteFile removes path, preferring the OS trash, and reports whether
// anything was actually deleted. A missing file is not an error.
func (d *Deduper) deleteFile(path string) (bool, error) {
	var err error
	if d.settings.SendToTrash {
		err = moveToTrash(path)
	} else {
		err = os.Remove(path)
	}
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
