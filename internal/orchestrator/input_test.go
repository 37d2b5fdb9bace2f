package orchestrator

import (
	"strings"
	"testing"
)

func TestParseInputGroups(t *testing.T) {
	input := `
# a comment
https://one.test/a.jpg

--- My Album
https://two.test/b.jpg https://two.test/c.jpg

=== Another Group ===
https://three.test/d.mp4
`
	groups, err := ParseInputReader(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	if groups[0].Name != "" || len(groups[0].URLs) != 1 {
		t.Errorf("ungrouped = %q with %d urls", groups[0].Name, len(groups[0].URLs))
	}
	if groups[1].Name != "My Album" || len(groups[1].URLs) != 2 {
		t.Errorf("group 1 = %q with %d urls", groups[1].Name, len(groups[1].URLs))
	}
	if groups[2].Name != "Another Group" || len(groups[2].URLs) != 1 {
		t.Errorf("group 2 = %q with %d urls", groups[2].Name, len(groups[2].URLs))
	}
}

func TestParseInputBlockComment(t *testing.T) {
	input := `https://keep.test/a.jpg
#
https://dropped.test/b.jpg
https://dropped.test/c.jpg
#
https://keep.test/d.jpg
`
	groups, err := ParseInputReader(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	var hosts []string
	for _, u := range groups[0].URLs {
		hosts = append(hosts, u.Host)
	}
	if len(hosts) != 2 || hosts[0] != "keep.test" || hosts[1] != "keep.test" {
		t.Errorf("block comment not honored: %v", hosts)
	}
}

func TestExtractURLs(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{
			"plain",
			"https://host.test/a.jpg",
			[]string{"https://host.test/a.jpg"},
		},
		{
			"two urls one line",
			"https://a.test/1.jpg and https://b.test/2.jpg",
			[]string{"https://a.test/1.jpg", "https://b.test/2.jpg"},
		},
		{
			"forum url tag",
			"[URL]https://a.test/x.png[/URL]",
			[]string{"https://a.test/x.png"},
		},
		{
			"img tag",
			"[img]https://a.test/y.png[/img]",
			[]string{"https://a.test/y.png"},
		},
		{
			"quoted",
			`<a href="https://a.test/z.gif">link</a>`,
			[]string{"https://a.test/z.gif"},
		},
		{
			"thumbnail rewritten",
			"https://a.test/photo.md.jpg",
			[]string{"https://a.test/photo.jpg"},
		},
		{
			"no scheme ignored",
			"www.a.test/nope.jpg",
			nil,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractURLs(tc.line)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d urls, want %d: %v", len(got), len(tc.want), got)
			}
			for i := range got {
				if got[i].String() != tc.want[i] {
					t.Errorf("url %d = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestParseInputFileMissing(t *testing.T) {
	if _, err := ParseInputFile("/does/not/exist.txt"); err == nil {
		t.Error("missing input file should error")
	}
}
