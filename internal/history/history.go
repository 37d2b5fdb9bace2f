// Package history persists every download attempt in an embedded sqlite
// database and answers the engine's "seen before?" queries. The store
// also holds the file and fingerprint tables used by the hasher and
// deduper.
package history

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/NTFSvolume/hoard/pkg/hoardlib"
)

const (
	// SchemaVersion is written on every successful open.
	SchemaVersion = "1.2.0"
	// MinRequiredVersion refuses startup for older installs.
	MinRequiredVersion = "1.0.0"
)

// freelistFloor is the free-page count (4MB at the 4KB default page size)
// at or below which preAllocate grows the freelist by ~100MB, so the
// database does not fail mid-run on a disk-full condition.
const freelistFloor = 1024

const createTables = `
CREATE TABLE IF NOT EXISTS media (
	domain TEXT NOT NULL,
	url_path TEXT NOT NULL,
	referer TEXT NOT NULL,
	album_id TEXT,
	download_path TEXT NOT NULL,
	download_filename TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	file_size INT,
	duration FLOAT,
	completed INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	completed_at TIMESTAMP,
	PRIMARY KEY (domain, url_path, original_filename)
);
CREATE TABLE IF NOT EXISTS files (
	folder TEXT NOT NULL,
	download_filename TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	file_size INT,
	referer TEXT NOT NULL,
	date TIMESTAMP,
	PRIMARY KEY (folder, download_filename)
);
CREATE TABLE IF NOT EXISTS hash (
	folder TEXT NOT NULL,
	download_filename TEXT NOT NULL,
	hash_type TEXT NOT NULL,
	hash TEXT NOT NULL,
	file_size INT,
	mtime INT,
	PRIMARY KEY (folder, download_filename, hash_type),
	FOREIGN KEY (folder, download_filename) REFERENCES files (folder, download_filename)
);
CREATE TABLE IF NOT EXISTS schema_version (
	version VARCHAR(50) PRIMARY KEY UNIQUE NOT NULL,
	applied_on TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_hash_type_hash ON hash (hash_type, hash);
`

// Store is the sqlite-backed history. A single connection serves the
// whole run; every mutating operation commits immediately.
type Store struct {
	db *sql.DB
	l  *log.Logger
}

// Open connects to (or creates) the database at path, pre-allocates
// freelist pages, verifies the installed schema version and stamps the
// current one.
func Open(path string, l *log.Logger) (s *Store, err error) {
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_time_format=sqlite&_pragma=busy_timeout(20000)")
	if err != nil {
		return
	}
	// One writer keeps commit-per-statement semantics simple; readers
	// may still pipeline through the same connection.
	db.SetMaxOpenConns(1)

	s = &Store{db: db, l: l}
	if err = s.checkVersion(); err != nil {
		db.Close()
		return nil, err
	}
	if err = s.preAllocate(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err = db.Exec(createTables); err != nil {
		db.Close()
		return nil, err
	}
	if err = s.writeVersion(); err != nil {
		db.Close()
		return nil, err
	}
	return
}

// Close closes the connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// preAllocate grows the freelist to ~100MB once per install.
func (s *Store) preAllocate() error {
	var free int64
	if err := s.db.QueryRow("PRAGMA freelist_count;").Scan(&free); err != nil {
		return err
	}
	if free > freelistFloor {
		return nil
	}
	_, err := s.db.Exec(
		"CREATE TABLE IF NOT EXISTS t(x);" +
			"INSERT INTO t VALUES(zeroblob(100*1024*1024));" +
			"DROP TABLE t;")
	return err
}

func (s *Store) checkVersion() error {
	var exists int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&exists)
	if err != nil || exists == 0 {
		// Fresh database; nothing to verify.
		return nil
	}
	var version string
	err = s.db.QueryRow(
		"SELECT version FROM schema_version ORDER BY ROWID DESC LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return err
	}
	if s.l != nil {
		s.l.Printf("history: installed schema version %s, required >= %s", version, MinRequiredVersion)
	}
	if compareVersions(version, MinRequiredVersion) < 0 {
		return fmt.Errorf("%w: installed %s, minimum %s",
			hoardlib.ErrSchemaTooOld, version, MinRequiredVersion)
	}
	return nil
}

func (s *Store) writeVersion() error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO schema_version (version) VALUES (?)", SchemaVersion)
	return err
}

// compareVersions compares dotted numeric versions; returns -1, 0 or 1.
func compareVersions(a, b string) int {
	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var na, nb int
		if i < len(pa) {
			na, _ = strconv.Atoi(pa[i])
		}
		if i < len(pb) {
			nb, _ = strconv.Atoi(pb[i])
		}
		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
	}
	return 0
}

// CheckComplete reports whether a completed row exists for the key. When
// it does and the stored referer differs from the current one (and the
// URL is not its own referer), the stored referer is rewritten so later
// referer lookups still succeed for pages whose canonical URL changed.
func (s *Store) CheckComplete(domain, urlStr, referer, dbPath string) (bool, error) {
	var storedReferer string
	var completed int
	err := s.db.QueryRow(
		"SELECT referer, completed FROM media WHERE domain = ? AND url_path = ?",
		domain, dbPath).Scan(&storedReferer, &completed)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if completed == 1 && urlStr != referer && referer != "" && storedReferer != referer {
		if s.l != nil {
			s.l.Printf("history: updating referer of %s from %s to %s", urlStr, storedReferer, referer)
		}
		_, err = s.db.Exec(
			"UPDATE media SET referer = ? WHERE domain = ? AND url_path = ?",
			referer, domain, dbPath)
		if err != nil {
			return false, err
		}
	}
	return completed == 1, nil
}

// CheckCompleteByReferer reports whether any completed row carries the
// referer; an empty domain matches any crawler.
func (s *Store) CheckCompleteByReferer(domain, referer string) (bool, error) {
	var n int
	var err error
	if domain == "" {
		err = s.db.QueryRow(
			"SELECT COUNT(*) FROM media WHERE completed = 1 AND referer = ?", referer).Scan(&n)
	} else {
		err = s.db.QueryRow(
			"SELECT COUNT(*) FROM media WHERE completed = 1 AND referer = ? AND domain = ?",
			referer, domain).Scan(&n)
	}
	return n > 0, err
}

// CheckAlbum returns url_path -> completed for every row of an album.
func (s *Store) CheckAlbum(domain, albumID string) (map[string]bool, error) {
	rows, err := s.db.Query(
		"SELECT url_path, completed FROM media WHERE domain = ? AND album_id = ?",
		domain, albumID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var urlPath string
		var completed int
		if err := rows.Scan(&urlPath, &completed); err != nil {
			return nil, err
		}
		out[urlPath] = completed == 1
	}
	return out, rows.Err()
}

// InsertIncompleted records an attempt with completed=0, ignoring
// conflicts with an existing row.
func (s *Store) InsertIncompleted(domain string, item *hoardlib.MediaItem) error {
	var referer string
	if item.Referer != nil {
		referer = item.Referer.String()
	}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO media
		(domain, url_path, referer, album_id, download_path, download_filename, original_filename)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		domain, item.DbPath, referer, nullable(item.AlbumID),
		item.DownloadFolder, item.Filename, item.OriginalFilename)
	return err
}

// MarkComplete sets completed=1 and stamps completed_at.
func (s *Store) MarkComplete(domain string, item *hoardlib.MediaItem) error {
	_, err := s.db.Exec(
		`UPDATE media SET completed = 1, completed_at = CURRENT_TIMESTAMP
		WHERE domain = ? AND url_path = ?`,
		domain, item.DbPath)
	return err
}

// AddFilesize records the on-disk size of the completed file.
func (s *Store) AddFilesize(domain string, item *hoardlib.MediaItem, size int64) error {
	_, err := s.db.Exec(
		"UPDATE media SET file_size = ? WHERE domain = ? AND url_path = ?",
		size, domain, item.DbPath)
	return err
}

// AddDuration records the probed media duration.
func (s *Store) AddDuration(domain string, item *hoardlib.MediaItem) error {
	_, err := s.db.Exec(
		"UPDATE media SET duration = ? WHERE domain = ? AND url_path = ?",
		item.Duration, domain, item.DbPath)
	return err
}

// GetDuration returns a previously recorded duration, zero when unknown.
func (s *Store) GetDuration(domain string, item *hoardlib.MediaItem) (float64, error) {
	var duration sql.NullFloat64
	err := s.db.QueryRow(
		"SELECT duration FROM media WHERE domain = ? AND url_path = ?",
		domain, item.DbPath).Scan(&duration)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return duration.Float64, nil
}

// SetAlbumID updates the album grouping of an existing row.
func (s *Store) SetAlbumID(domain string, item *hoardlib.MediaItem) error {
	_, err := s.db.Exec(
		"UPDATE media SET album_id = ? WHERE domain = ? AND url_path = ?",
		item.AlbumID, domain, item.DbPath)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
