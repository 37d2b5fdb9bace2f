// Package cookies loads cookies from Netscape-format text files and
// browser profile databases and installs them into the shared cookie jar.
package cookies

import (
	"net/http"
	"time"
)

// Format identifies the format of a cookie store.
type Format int

const (
	// FormatUnknown means the cookie store format could not be detected.
	FormatUnknown Format = iota
	// FormatNetscape is the tab-separated text format.
	FormatNetscape
	// FormatFirefox is the moz_cookies SQLite schema.
	FormatFirefox
)

// Cookie is a single cookie read from a store. Values are sensitive and
// never appear in logs; only Name and Domain may.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Expiry   time.Time
	Secure   bool
	HttpOnly bool
}

// Expired reports whether the cookie's expiry has passed. Cookies with
// no explicit expiry never report expired.
func (c *Cookie) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && c.Expiry.Unix() > 0 && c.Expiry.Before(now)
}

// ToHTTP converts to the net/http representation for jar insertion.
func (c *Cookie) ToHTTP() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Expires:  c.Expiry,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
}

// Source describes where a batch of cookies came from.
type Source struct {
	Path    string
	Format  Format
	Browser string
}
