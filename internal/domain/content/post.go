package content

import (
	"time"
)

const (
	DefaultTitle = "Untitled"
	DateLayout   = time.DateOnly

	// BlogPath is the URL prefix posts are served under.
	BlogPath = "/blog"
)

// Metadata is the structured record carried by a post's header block.
// Tags is nil when the header has no tags key and non-nil (possibly empty)
// when it does.
type Metadata struct {
	Title       string   `json:"title"`
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// WithDefaults fills an empty Title and an empty Date independently. The
// default date is the UTC calendar day of now. Description already defaults
// to "" and Tags are left untouched.
func (m Metadata) WithDefaults(now time.Time) Metadata {
	if m.Title == "" {
		m.Title = DefaultTitle
	}
	if m.Date == "" {
		m.Date = now.UTC().Format(DateLayout)
	}
	return m
}

func (m Metadata) HasTags() bool {
	return len(m.Tags) > 0
}

// ValidDate reports whether Date is in YYYY-MM-DD form, the only form for
// which string ordering equals chronological ordering.
func (m Metadata) ValidDate() bool {
	_, err := time.Parse(DateLayout, m.Date)
	return err == nil
}

type Post struct {
	Slug string `json:"slug"`
	Metadata
	// Content is only populated when a single post is fetched in full.
	Content string `json:"content,omitempty"`
}

// PostPath returns the URL path of the post with the given slug.
func PostPath(slug string) string {
	return BlogPath + "/" + slug
}

func (p Post) Path() string { return PostPath(p.Slug) }

// Summary returns a copy of p without its body.
func (p Post) Summary() Post {
	p.Content = ""
	return p
}

// SourceStamp identifies one revision of a post file well enough to decide
// whether a cached metadata record is still current.
type SourceStamp struct {
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
}

func (s SourceStamp) Equal(o SourceStamp) bool {
	return s.Size == o.Size && s.ModTime.Equal(o.ModTime)
}

func (s SourceStamp) IsZero() bool {
	return s.ModTime.IsZero() && s.Size == 0
}
