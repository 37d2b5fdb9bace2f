package history

import (
	"database/sql"

	"github.com/NTFSvolume/hoard/pkg/hoardlib"
)

// GetFileHash looks up a cached fingerprint by (folder, filename, algo).
func (s *Store) GetFileHash(folder, filename string, algo hoardlib.HashAlgo) (hash string, size int64, mtime int64, ok bool, err error) {
	var dbSize, dbMtime sql.NullInt64
	err = s.db.QueryRow(
		`SELECT hash, file_size, mtime FROM hash
		WHERE folder = ? AND download_filename = ? AND hash_type = ?`,
		folder, filename, string(algo)).Scan(&hash, &dbSize, &dbMtime)
	if err == sql.ErrNoRows {
		return "", 0, 0, false, nil
	}
	if err != nil {
		return "", 0, 0, false, err
	}
	return hash, dbSize.Int64, dbMtime.Int64, true, nil
}

// CheckHashExists reports whether any row carries the fingerprint.
func (s *Store) CheckHashExists(algo hoardlib.HashAlgo, hash string) (bool, error) {
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM hash WHERE hash_type = ? AND hash = ?",
		string(algo), hash).Scan(&n)
	return n > 0, err
}

// InsertOrUpdateHash upserts a fingerprint keyed by
// (folder, filename, algo).
func (s *Store) InsertOrUpdateHash(folder, filename string, algo hoardlib.HashAlgo, hash string, size int64, mtime int64) error {
	_, err := s.db.Exec(
		`INSERT INTO hash (folder, download_filename, hash_type, hash, file_size, mtime)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (folder, download_filename, hash_type)
		DO UPDATE SET hash = excluded.hash, file_size = excluded.file_size, mtime = excluded.mtime`,
		folder, filename, string(algo), hash, size, mtime)
	return err
}

// InsertOrUpdateFile upserts the file row backing the hash table's
// foreign key.
func (s *Store) InsertOrUpdateFile(folder, filename, originalFilename, referer string, size int64, date int64) error {
	_, err := s.db.Exec(
		`INSERT INTO files (folder, download_filename, original_filename, file_size, referer, date)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (folder, download_filename)
		DO UPDATE SET original_filename = excluded.original_filename,
			file_size = excluded.file_size, referer = excluded.referer, date = excluded.date`,
		folder, filename, originalFilename, size, referer, nullableInt(date))
	return err
}

// GetFilesWithHashMatch lists every file sharing a fingerprint and size,
// oldest first by the media table's created_at when available.
func (s *Store) GetFilesWithHashMatch(algo hoardlib.HashAlgo, hash string, size int64) ([]hoardlib.HashMatch, error) {
	rows, err := s.db.Query(
		`SELECT h.folder, h.download_filename, f.referer,
			COALESCE(CAST(strftime('%s', m.created_at) AS INTEGER), 0)
		FROM hash h
		JOIN files f ON f.folder = h.folder AND f.download_filename = h.download_filename
		LEFT JOIN media m ON m.download_path = h.folder AND m.download_filename = h.download_filename
		WHERE h.hash_type = ? AND h.hash = ? AND h.file_size = ?
		ORDER BY 4 ASC`,
		string(algo), hash, size)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []hoardlib.HashMatch
	for rows.Next() {
		var m hoardlib.HashMatch
		if err := rows.Scan(&m.Folder, &m.Filename, &m.Referer, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullableInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
