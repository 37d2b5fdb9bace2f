package cookies

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// ParseNetscape reads every cookie from a Netscape-format cookie text
// file. Lines starting with # are skipped, except #HttpOnly_ which sets
// the HttpOnly flag. Malformed lines are skipped with a warning log.
// Expired cookies load anyway, with a warning.
func ParseNetscape(filePath string, l *log.Logger) ([]Cookie, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("cannot open netscape cookie file: %w", err)
	}
	defer f.Close()

	now := time.Now()
	var cookies []Cookie

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		httpOnly := false
		if strings.HasPrefix(line, "#HttpOnly_") {
			httpOnly = true
			line = line[len("#HttpOnly_"):]
		} else if strings.HasPrefix(line, "#") {
			continue
		}

		// Split by tab — expect exactly 7 fields
		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			warn(l, "skipping malformed netscape cookie line in %s", filePath)
			continue
		}

		expiry, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			warn(l, "skipping cookie with invalid expiry %q", fields[4])
			continue
		}

		c := Cookie{
			Name:     fields[5],
			Value:    fields[6],
			Domain:   fields[0],
			Path:     fields[2],
			Secure:   strings.EqualFold(fields[3], "TRUE"),
			HttpOnly: httpOnly,
		}
		if expiry > 0 {
			c.Expiry = time.Unix(expiry, 0)
		}
		if c.Expired(now) {
			warn(l, "cookie %q for %q is expired, loading it anyway", c.Name, c.Domain)
		}
		cookies = append(cookies, c)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read netscape cookie file: %w", err)
	}
	return cookies, nil
}

func warn(l *log.Logger, format string, a ...any) {
	if l == nil {
		return
	}
	l.Printf("cookies: "+format, a...)
}
