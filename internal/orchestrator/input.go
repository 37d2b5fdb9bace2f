package orchestrator

import (
	"bufio"
	"io"
	"net/url"
	"os"
	"regexp"
	"strings"
)

// urlRegex matches http(s) URLs up to whitespace, quotes or common
// forum-tag delimiters.
var urlRegex = regexp.MustCompile(`https?://[^\s"'<>]+`)

// tagDelims are forum-markup fragments that terminate a URL when they
// survive the regex match.
var tagDelims = []string{"[/URL]", "[/url]", "[/img]", "[/IMG]", "']['", "][", "]"}

// InputGroup is a batch of URLs sharing a group name from the input file.
type InputGroup struct {
	Name string
	URLs []*url.URL
}

// ParseInputReader reads the input URL list: one URL per line, `#`
// comments, a bare `#` toggling a block-comment region, and `---`/`===`
// lines starting a named group applied to every following URL.
func ParseInputReader(r io.Reader) ([]InputGroup, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	groups := []InputGroup{{}}
	current := &groups[0]
	blockQuote := false
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "---") || strings.HasPrefix(trimmed, "===") {
			name := strings.TrimSpace(strings.NewReplacer("---", "", "===", "").Replace(trimmed))
			groups = append(groups, InputGroup{Name: name})
			current = &groups[len(groups)-1]
			continue
		}
		if trimmed == "#" {
			blockQuote = !blockQuote
			continue
		}
		if blockQuote || strings.HasPrefix(trimmed, "#") {
			continue
		}
		current.URLs = append(current.URLs, ExtractURLs(line)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Drop empty groups, keeping declared order.
	out := groups[:0]
	for i := range groups {
		if len(groups[i].URLs) != 0 {
			out = append(out, groups[i])
		}
	}
	return out, nil
}

// ParseInputFile is ParseInputReader over a file path.
func ParseInputFile(path string) ([]InputGroup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseInputReader(f)
}

// ExtractURLs pulls every URL out of one line of text. The first `.md.`
// thumbnail marker in a URL is rewritten to point at the full file.
func ExtractURLs(line string) []*url.URL {
	var out []*url.URL
	for _, match := range urlRegex.FindAllString(line, -1) {
		for _, delim := range tagDelims {
			if i := strings.Index(match, delim); i >= 0 {
				match = match[:i]
			}
		}
		match = strings.TrimRight(match, ".,;)")
		match = strings.Replace(match, ".md.", ".", 1)
		u, err := url.Parse(match)
		if err != nil || u.Host == "" {
			continue
		}
		out = append(out, u)
	}
	return out
}
