package book

import (
	"time"

	"github.com/google/uuid"
)

// Title holds the display title split the way the upstream catalogue splits it.
type Title struct {
	Main       string `json:"main" yaml:"main"`
	Subtitle   string `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
	Collection string `json:"collection,omitempty" yaml:"collection,omitempty"`
}

// Chapter is one entry of the flattened table of contents.
type Chapter struct {
	Position int    `json:"position" yaml:"position"`
	Title    string `json:"title" yaml:"title"`
	URL      string `json:"url" yaml:"url"`
	// PathKey is the spine's original path, before address reconstruction.
	PathKey string `json:"path_key" yaml:"path_key"`
	// Offset is the chapter start within its part, in seconds.
	Offset float64 `json:"offset,omitempty" yaml:"offset,omitempty"`
}

// Record is the state recovered for one session.
// It is filled incrementally from independent observations; values are only
// ever set or overwritten with non-empty values, never cleared.
type Record struct {
	// Generation identifies the session the record belongs to.
	Generation string `json:"generation"`

	ResourceID  string     `json:"resource_id"`
	Title       Title      `json:"title"`
	Authors     []string   `json:"authors,omitempty"`
	Narrators   []string   `json:"narrators,omitempty"`
	Description string     `json:"description,omitempty"`
	CoverHref   string     `json:"cover_href,omitempty"`
	Credential  string     `json:"-"`
	Expires     *time.Time `json:"expires,omitempty"`
	Chapters    []Chapter  `json:"chapters,omitempty"`
}

// NewRecord returns an empty record with a fresh generation.
func NewRecord() *Record {
	return &Record{Generation: uuid.NewString()}
}

// Ready reports whether the minimum field set required to start a run is present.
func (r *Record) Ready() bool {
	return r.Title.Main != "" && len(r.Chapters) > 0 && r.Credential != ""
}

// SetResourceID stores id if none has been recorded yet.
// It reports whether the record now carries id.
func (r *Record) SetResourceID(id string) bool {
	if id == "" {
		return false
	}
	if r.ResourceID == "" {
		r.ResourceID = id
	}
	return r.ResourceID == id
}

func (r *Record) SetTitle(t Title) {
	if t.Main != "" {
		r.Title = t
	}
}

func (r *Record) SetCreators(authors, narrators []string) {
	if len(authors) > 0 {
		r.Authors = authors
	}
	if len(narrators) > 0 {
		r.Narrators = narrators
	}
}

func (r *Record) SetDescription(d string) {
	if d != "" {
		r.Description = d
	}
}

func (r *Record) SetCover(href string) {
	if href != "" {
		r.CoverHref = href
	}
}

func (r *Record) SetCredential(c string) {
	if c != "" {
		r.Credential = c
	}
}

func (r *Record) SetExpires(t time.Time) {
	if !t.IsZero() {
		r.Expires = &t
	}
}

func (r *Record) SetChapters(chapters []Chapter) {
	if len(chapters) > 0 {
		r.Chapters = chapters
	}
}

// Clone returns a deep copy that can be read without holding the owner's lock.
func (r *Record) Clone() *Record {
	c := *r
	c.Authors = append([]string(nil), r.Authors...)
	c.Narrators = append([]string(nil), r.Narrators...)
	c.Chapters = append([]Chapter(nil), r.Chapters...)
	if r.Expires != nil {
		t := *r.Expires
		c.Expires = &t
	}
	return &c
}

// FullTitle joins main title and subtitle for file names and CUE headers.
func (r *Record) FullTitle() string {
	if r.Title.Subtitle == "" {
		return r.Title.Main
	}
	return r.Title.Main + " - " + r.Title.Subtitle
}
