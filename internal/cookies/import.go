package cookies

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var sqliteMagic = []byte("SQLite format 3\x00")

// DetectFormat sniffs a cookie store's format from its leading bytes.
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()
	head := make([]byte, len(sqliteMagic))
	n, _ := f.Read(head)
	if n >= len(sqliteMagic) && bytes.Equal(head, sqliteMagic) {
		return FormatFirefox, nil
	}
	return FormatNetscape, nil
}

// Import reads cookies from one store, detecting its format. SQLite
// stores are copied aside first so a running browser cannot lock us out.
func Import(sourcePath string, l *log.Logger) ([]Cookie, *Source, error) {
	format, err := DetectFormat(sourcePath)
	if err != nil {
		return nil, nil, err
	}
	source := &Source{Path: sourcePath, Format: format}

	var cookies []Cookie
	switch format {
	case FormatFirefox:
		source.Browser = "Firefox"
		var tempDir string
		var cleanup func()
		tempDir, cleanup, err = SafeCopy(sourcePath)
		if err != nil {
			return nil, nil, err
		}
		defer cleanup()
		cookies, err = ParseFirefox(filepath.Join(tempDir, filepath.Base(sourcePath)), l)
	case FormatNetscape:
		source.Browser = "Netscape"
		cookies, err = ParseNetscape(sourcePath, l)
	default:
		return nil, nil, fmt.Errorf("unsupported cookie store at %s", sourcePath)
	}
	if err != nil {
		return nil, nil, err
	}
	return cookies, source, nil
}

// LoadDir imports every *.txt cookie file under dir plus the optional
// browser store, installs everything into jar and returns the sources
// used. When two stores carry cookies for the same domain the later one
// overwrites, with a warning.
func LoadDir(dir, browserStore string, jar http.CookieJar, l *log.Logger) ([]*Source, error) {
	var stores []string
	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
				continue
			}
			stores = append(stores, filepath.Join(dir, e.Name()))
		}
	}
	if browserStore != "" {
		stores = append(stores, browserStore)
	}

	seenDomains := make(map[string]string)
	var sources []*Source
	for _, store := range stores {
		cookies, source, err := Import(store, l)
		if err != nil {
			return sources, err
		}
		for domain := range domainsOf(cookies) {
			if prev, dup := seenDomains[domain]; dup && prev != store {
				warn(l, "cookies for %q from %s overwrite the ones from %s", domain, store, prev)
			}
			seenDomains[domain] = store
		}
		installJar(jar, cookies)
		sources = append(sources, source)
	}
	return sources, nil
}

func domainsOf(cookies []Cookie) map[string]struct{} {
	out := make(map[string]struct{}, len(cookies))
	for _, c := range cookies {
		out[strings.TrimPrefix(c.Domain, ".")] = struct{}{}
	}
	return out
}

func installJar(jar http.CookieJar, cookies []Cookie) {
	byDomain := make(map[string][]*http.Cookie)
	for i := range cookies {
		domain := strings.TrimPrefix(cookies[i].Domain, ".")
		byDomain[domain] = append(byDomain[domain], cookies[i].ToHTTP())
	}
	for domain, batch := range byDomain {
		u := &url.URL{Scheme: "https", Host: domain}
		jar.SetCookies(u, batch)
	}
}
