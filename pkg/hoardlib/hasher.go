package hoardlib

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/semaphore"
)

// HashAlgo names a fingerprint algorithm.
type HashAlgo string

const (
	// HashXXH128 is the always-computed fast fingerprint.
	HashXXH128 HashAlgo = "xxh128"
	HashMD5    HashAlgo = "md5"
	HashSHA256 HashAlgo = "sha256"
)

// HashingMode selects when files are fingerprinted.
type HashingMode int

const (
	// HashingOff disables hashing entirely.
	HashingOff HashingMode = iota
	// HashingInPlace hashes each item immediately after it completes.
	HashingInPlace
	// HashingPostDownload hashes all successful items in one batch at
	// the end of the run.
	HashingPostDownload
)

const (
	hashChunkVideo = 10 * MB
	hashChunkOther = 1 * MB
)

// HashResult is one computed fingerprint with the file state it was
// computed against.
type HashResult struct {
	Hash     string
	FileSize int64
	Mtime    int64
}

// HashResults maps algorithm to result for one file.
type HashResults map[HashAlgo]HashResult

// HasherOpts configures the hasher.
type HasherOpts struct {
	DB          HashDB
	ExtraAlgos  []HashAlgo
	Concurrency int64
	Logger      *log.Logger
	// PrevHashed is bumped when a cached hash is reused.
	PrevHashed func()
	// Hashed is bumped per freshly computed hash.
	Hashed func(HashAlgo)
}

// Hasher computes multi-algorithm fingerprints with a bounded number of
// files in flight. xxh128 is always computed; md5/sha256 are opt-in. A
// file is hashed by one worker start to finish.
type Hasher struct {
	db         HashDB
	algos      []HashAlgo
	sem        *semaphore.Weighted
	l          *log.Logger
	prevHashed func()
	hashed     func(HashAlgo)

	mu      sync.Mutex
	results map[string]HashResult // complete-file path -> xxh128 result
}

// NewHasher builds a hasher; concurrency zero selects the default of 20.
func NewHasher(opts *HasherOpts) *Hasher {
	if opts == nil {
		opts = &HasherOpts{}
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = DEF_HASH_CONCURRENCY
	}
	algos := []HashAlgo{HashXXH128}
	for _, a := range opts.ExtraAlgos {
		if a != HashXXH128 {
			algos = append(algos, a)
		}
	}
	h := &Hasher{
		db:         opts.DB,
		algos:      algos,
		sem:        semaphore.NewWeighted(opts.Concurrency),
		l:          opts.Logger,
		prevHashed: opts.PrevHashed,
		hashed:     opts.Hashed,
		results:    make(map[string]HashResult),
	}
	if h.prevHashed == nil {
		h.prevHashed = func() {}
	}
	if h.hashed == nil {
		h.hashed = func(HashAlgo) {}
	}
	return h
}

// HashItem fingerprints a completed media item, fills item.Hash with the
// xxh128 value and records every result in the store. Segments are
// skipped.
func (h *Hasher) HashItem(ctx context.Context, item *MediaItem) error {
	if item.IsSegment {
		return nil
	}
	results, err := h.HashFile(ctx, item.CompleteFile())
	if err != nil {
		return err
	}
	xxh := results[HashXXH128]
	item.Hash = xxh.Hash
	h.mu.Lock()
	h.results[item.CompleteFile()] = xxh
	h.mu.Unlock()

	if h.db != nil {
		folder, filename := splitFile(item.CompleteFile())
		var referer string
		if item.Referer != nil {
			referer = item.Referer.String()
		}
		if err := h.db.InsertOrUpdateFile(folder, filename, item.OriginalFilename, referer, xxh.FileSize, item.Timestamp); err != nil {
			return err
		}
		for algo, res := range results {
			if err := h.db.InsertOrUpdateHash(folder, filename, algo, res.Hash, res.FileSize, res.Mtime); err != nil {
				return err
			}
		}
	}
	return nil
}

// HashFile computes (or retrieves from cache) every configured algorithm
// for one file. The semaphore bounds files in flight, not algorithms.
func (h *Hasher) HashFile(ctx context.Context, path string) (HashResults, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer h.sem.Release(1)

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	size := info.Size()
	mtime := info.ModTime().Unix()

	results := make(HashResults, len(h.algos))
	for _, algo := range h.algos {
		res, err := h.hashOrCached(path, algo, size, mtime)
		if err != nil {
			return nil, err
		}
		results[algo] = res
	}
	return results, nil
}

// Results returns the xxh128 results recorded so far, keyed by file path.
func (h *Hasher) Results() map[string]HashResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]HashResult, len(h.results))
	for k, v := range h.results {
		out[k] = v
	}
	return out
}

func (h *Hasher) hashOrCached(path string, algo HashAlgo, size, mtime int64) (HashResult, error) {
	folder, filename := splitFile(path)
	if h.db != nil {
		cached, dbSize, dbMtime, ok, err := h.db.GetFileHash(folder, filename, algo)
		if err != nil {
			return HashResult{}, err
		}
		// Size must match; a legacy row with no mtime is tolerated but
		// recomputed.
		if ok && dbSize == size && dbMtime != 0 {
			h.prevHashed()
			return HashResult{Hash: cached, FileSize: size, Mtime: mtime}, nil
		}
	}
	value, err := ComputeHash(path, algo)
	if err != nil {
		return HashResult{}, err
	}
	h.hashed(algo)
	return HashResult{Hash: value, FileSize: size, Mtime: mtime}, nil
}

// ComputeHash fingerprints one file with the given algorithm, using a
// 10MB chunk for video files and 1MB otherwise with a single reusable
// buffer.
func ComputeHash(path string, algo HashAlgo) (string, error) {
	var hasher hash.Hash
	switch algo {
	case HashXXH128:
		hasher = xxh128Hasher{xxh3.New()}
	case HashMD5:
		hasher = md5.New()
	case HashSHA256:
		hasher = sha256.New()
	default:
		return "", fmt.Errorf("unknown hash algorithm %q", algo)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	chunk := hashChunkOther
	if hasExt(VideoExts, filepath.Ext(path)) {
		chunk = hashChunkVideo
	}
	buf := make([]byte, chunk)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return "", rerr
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// xxh128Hasher adapts xxh3's 128-bit state to hash.Hash.
type xxh128Hasher struct {
	*xxh3.Hasher
}

func (x xxh128Hasher) Sum(b []byte) []byte {
	sum := x.Sum128().Bytes()
	return append(b, sum[:]...)
}

func (x xxh128Hasher) Size() int { return 16 }

func splitFile(path string) (folder, filename string) {
	return filepath.Dir(path), filepath.Base(path)
}
