package cookies

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// ParseFirefox reads all cookies from a Firefox cookies.sqlite file.
// The dbPath should be a path to a copied (not in-use) SQLite database.
// Expired cookies load anyway, with a warning.
func ParseFirefox(dbPath string, l *log.Logger) ([]Cookie, error) {
	dsn := fmt.Sprintf("file:%s?immutable=1", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open firefox cookie database: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`
        SELECT name, value, host, path, expiry, isSecure, isHttpOnly
        FROM moz_cookies
        ORDER BY host ASC, path DESC, name ASC
    `)
	if err != nil {
		return nil, fmt.Errorf("failed to query firefox cookies: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	var cookies []Cookie
	for rows.Next() {
		var (
			name, value, host, path string
			expiry                  int64
			isSecure, isHttpOnly    int
		)
		if err := rows.Scan(&name, &value, &host, &path, &expiry, &isSecure, &isHttpOnly); err != nil {
			return nil, fmt.Errorf("failed to scan firefox cookie row: %w", err)
		}
		c := Cookie{
			Name:     name,
			Value:    value,
			Domain:   host,
			Path:     path,
			Secure:   isSecure != 0,
			HttpOnly: isHttpOnly != 0,
		}
		if expiry > 0 {
			c.Expiry = time.Unix(expiry, 0)
		}
		if c.Expired(now) {
			warn(l, "cookie %q for %q is expired, loading it anyway", c.Name, c.Domain)
		}
		cookies = append(cookies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate firefox cookie rows: %w", err)
	}
	return cookies, nil
}
