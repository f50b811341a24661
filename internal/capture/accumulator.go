package capture

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"audiobook-capture/internal/book"
	"audiobook-capture/internal/descriptor"
	"audiobook-capture/internal/intercept"
)

// Kind names the observation a mutation came from.
type Kind string

const (
	KindNone       Kind = ""
	KindNavigation Kind = "navigation"
	KindSync       Kind = "sync"
	KindMedia      Kind = "media"
	KindDescriptor Kind = "descriptor"
)

// Mutation writes one slice of the session record. The pipeline applies it
// under its lock.
type Mutation func(rec *book.Record)

// Accumulator turns observations into record mutations. It holds no session
// state of its own and is safe for concurrent use.
type Accumulator struct {
	decoder    descriptor.Decoder
	hostPrefix string
}

// NewAccumulator returns an Accumulator recognising descriptor pages on hosts
// starting with hostPrefix.
func NewAccumulator(decoder descriptor.Decoder, hostPrefix string) *Accumulator {
	return &Accumulator{decoder: decoder, hostPrefix: hostPrefix}
}

// Navigation reads the resource id from a top-level navigation. It returns a
// nil mutation when the URL carries no id.
func (a *Accumulator) Navigation(o intercept.Observation) Mutation {
	id := lastSegment(o.URL)
	if id == "" {
		return nil
	}
	return func(rec *book.Record) {
		rec.SetResourceID(id)
	}
}

// Route classifies a non-navigation observation against the session's
// resource id and parses it. Unmatched traffic yields KindNone.
func (a *Accumulator) Route(o intercept.Observation, resourceID string) (Kind, Mutation, error) {
	if !strings.EqualFold(o.Method, "GET") {
		return KindNone, nil, nil
	}
	u, err := url.Parse(o.URL)
	if err != nil {
		return KindNone, nil, nil
	}

	switch {
	case strings.HasSuffix(u.Path, "/sync"):
		m, err := parseSync(o.Body)
		return KindSync, m, err
	case resourceID != "" && strings.HasSuffix(u.Path, "/media/"+resourceID):
		m, err := parseMedia(o.Body)
		return KindMedia, m, err
	case a.hostPrefix != "" && strings.HasPrefix(u.Host, a.hostPrefix) && (u.Path == "/" || u.Path == ""):
		m, err := a.parseDescriptor(u, o.Body)
		return KindDescriptor, m, err
	}
	return KindNone, nil, nil
}

type loan struct {
	ID      flexID `json:"id"`
	Expires string `json:"expires"`
}

// flexID accepts loan ids sent as strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func parseSync(body string) (Mutation, error) {
	var payload struct {
		Loans []loan `json:"loans"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("%w: sync: %v", ErrObservation, err)
	}

	expiries := make(map[string]time.Time, len(payload.Loans))
	for _, l := range payload.Loans {
		if l.Expires == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, l.Expires)
		if err != nil {
			return nil, fmt.Errorf("%w: sync: loan %s expiry: %v", ErrObservation, l.ID, err)
		}
		expiries[string(l.ID)] = t
	}

	return func(rec *book.Record) {
		if t, ok := expiries[rec.ResourceID]; ok {
			rec.SetExpires(t)
		}
	}, nil
}

func parseMedia(body string) (Mutation, error) {
	var payload struct {
		Covers map[string]book.CoverRef `json:"covers"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("%w: media: %v", ErrObservation, err)
	}
	href, ok := book.PickCover(payload.Covers)
	if !ok {
		return func(*book.Record) {}, nil
	}
	return func(rec *book.Record) {
		rec.SetCover(href)
	}, nil
}

func (a *Accumulator) parseDescriptor(origin *url.URL, body string) (Mutation, error) {
	d, err := a.decoder.Decode(body)
	if err != nil {
		return nil, err
	}
	spine, err := descriptor.BuildSpine(origin, d.Spine)
	if err != nil {
		return nil, err
	}
	chapters := descriptor.FlattenToc(spine, d.Nav.Toc)

	title := book.Title{Main: d.Title.Main, Subtitle: d.Title.Subtitle, Collection: d.Title.Collection}
	authors, narrators := d.Authors(), d.Narrators()
	description := d.PreferredDescription()
	credential := d.Credential

	return func(rec *book.Record) {
		rec.SetTitle(title)
		rec.SetCreators(authors, narrators)
		rec.SetDescription(description)
		rec.SetCredential(credential)
		rec.SetChapters(chapters)
	}, nil
}

// lastSegment returns the final path segment of a URL, ignoring query and
// fragment.
func lastSegment(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		raw = u.Path
	}
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		raw = raw[i+1:]
	}
	return raw
}
