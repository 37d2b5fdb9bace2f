package hoardlib

import (
	"net/url"
	"strings"
)

// ScrapeItemType describes what kind of page a scrape item points at.
type ScrapeItemType int

const (
	// ScrapeForum is a whole forum thread listing.
	ScrapeForum ScrapeItemType = iota
	// ScrapeForumPost is a single forum post.
	ScrapeForumPost
	// ScrapeFileHostProfile is a user profile on a file host.
	ScrapeFileHostProfile
	// ScrapeFileHostAlbum is an album or gallery on a file host.
	ScrapeFileHostAlbum
)

// ScrapeItem is an intermediate unit representing a page or collection;
// it yields zero or more MediaItems via a scraper.
type ScrapeItem struct {
	Url *url.URL
	// ParentTitle is the slash-joined breadcrumb of ancestor titles.
	ParentTitle string
	AlbumID     string
	Timestamp   int64
	// Parents is the ordered list of ancestor URLs.
	Parents []*url.URL
	// ParentThreads tracks forum threads already seen on this branch.
	ParentThreads map[string]struct{}
	// Children counts children spawned by this item; ChildrenLimit of
	// zero means unlimited.
	Children      int
	ChildrenLimit int
	Type          ScrapeItemType
	Password      string
}

// NewScrapeItem creates a scrape item for the given URL.
func NewScrapeItem(u *url.URL) *ScrapeItem {
	return &ScrapeItem{
		Url:           u,
		ParentThreads: make(map[string]struct{}),
	}
}

// CreateChild returns a deep copy of the item pointing at childUrl, with
// the parent URL appended to the ancestry. Children are counted on the
// producer; AddChildren returns ErrMaxChildren when the limit is hit.
func (s *ScrapeItem) CreateChild(childUrl *url.URL) *ScrapeItem {
	child := &ScrapeItem{
		Url:           childUrl,
		ParentTitle:   s.ParentTitle,
		AlbumID:       s.AlbumID,
		Timestamp:     s.Timestamp,
		ChildrenLimit: s.ChildrenLimit,
		Type:          s.Type,
		Password:      s.Password,
	}
	child.Parents = make([]*url.URL, 0, len(s.Parents)+1)
	child.Parents = append(child.Parents, s.Parents...)
	if s.Url != nil {
		child.Parents = append(child.Parents, s.Url)
	}
	child.ParentThreads = make(map[string]struct{}, len(s.ParentThreads))
	for k := range s.ParentThreads {
		child.ParentThreads[k] = struct{}{}
	}
	return child
}

// AddChildren counts n new children against the limit.
func (s *ScrapeItem) AddChildren(n int) error {
	s.Children += n
	if s.ChildrenLimit != 0 && s.Children > s.ChildrenLimit {
		return ErrMaxChildren
	}
	return nil
}

// AddToParentTitle appends a breadcrumb segment.
func (s *ScrapeItem) AddToParentTitle(title string) {
	title = strings.TrimSpace(title)
	if title == "" {
		return
	}
	if s.ParentTitle == "" {
		s.ParentTitle = title
		return
	}
	s.ParentTitle += "/" + title
}

// Reset clears album, type and timestamp before handing the item off to
// an external crawler.
func (s *ScrapeItem) Reset() {
	s.AlbumID = ""
	s.Type = ScrapeForum
	s.Timestamp = 0
}
