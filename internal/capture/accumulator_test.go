package capture

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiobook-capture/internal/book"
	"audiobook-capture/internal/descriptor"
	"audiobook-capture/internal/intercept"
)

const (
	testResourceID = "12345"
	secret40       = "0123456789abcdefghijABCDEFGHIJ0123456789"
	badPage        = "<html>no marker</html>"
)

// stubDecoder returns a fixed descriptor for any page except badPage.
type stubDecoder struct{}

func (stubDecoder) Version() string { return "stub" }

func (stubDecoder) DecodeEnvelope(page string) (json.RawMessage, error) {
	return nil, errors.New("not used")
}

func (stubDecoder) Decode(page string) (*descriptor.Descriptor, error) {
	if page == badPage {
		return nil, descriptor.ErrMarkerNotFound
	}
	d := &descriptor.Descriptor{
		Creator: []descriptor.Creator{
			{Role: "author", Name: "Ann"},
			{Role: "narrator", Name: "Ned"},
			{Role: "author", Name: "Bob"},
		},
		Description: &descriptor.Description{Short: "short", Full: "full"},
		Credential:  "cred=1",
		Spine: []descriptor.SpineEntry{
			{Path: "{X}Fmt425-Part01.mp3?cmpt=abc--" + secret40, OriginalPath: "Part01.mp3"},
			{Path: "{X}Fmt425-Part02.mp3?cmpt=abc--" + secret40, OriginalPath: "Part02.mp3"},
		},
		Nav: descriptor.Nav{Toc: []descriptor.TocEntry{
			{Title: "Chapter 1", Path: "Part01.mp3"},
			{Title: "Chapter 2", Path: "Part01.mp3#600"},
			{Title: "Chapter 3", Path: "Part02.mp3"},
		}},
	}
	d.Title.Main = "Book"
	d.Title.Subtitle = "Sub"
	return d, nil
}

func newTestAccumulator() *Accumulator {
	return NewAccumulator(stubDecoder{}, "dewey-")
}

func navObservation() intercept.Observation {
	return intercept.Observation{URL: "https://libby.example.com/open/loan/1/" + testResourceID, Method: "GET", Kind: intercept.KindMainFrame}
}

func syncObservation() intercept.Observation {
	return intercept.Observation{
		URL:    "https://sentry.example.com/chip/sync",
		Method: "GET",
		Kind:   "xmlhttprequest",
		Body:   `{"loans":[{"id":"999","expires":"2030-01-01T00:00:00Z"},{"id":12345,"expires":"2026-11-20T10:00:00Z"}]}`,
	}
}

func mediaObservation() intercept.Observation {
	return intercept.Observation{
		URL:    "https://thunder.example.com/v2/libraries/x/media/" + testResourceID,
		Method: "GET",
		Kind:   "xmlhttprequest",
		Body:   `{"covers":{"cover510Wide":{"href":"https://img/510"},"cover150Wide":{"href":"https://img/150"}}}`,
	}
}

func descriptorObservation(body string) intercept.Observation {
	return intercept.Observation{URL: "https://dewey-abc.example.com/?m=1", Method: "GET", Kind: "sub_frame", Body: body}
}

func TestAccumulator_Navigation(t *testing.T) {
	acc := newTestAccumulator()
	rec := book.NewRecord()
	acc.Navigation(navObservation())(rec)
	assert.Equal(t, testResourceID, rec.ResourceID)

	acc.Navigation(intercept.Observation{URL: "https://libby.example.com/open/loan/1/777?x=1"})(rec)
	assert.Equal(t, testResourceID, rec.ResourceID, "resource id is set once")

	assert.Nil(t, acc.Navigation(intercept.Observation{URL: "https://libby.example.com/"}))
}

func TestLastSegment(t *testing.T) {
	assert.Equal(t, "123", lastSegment("https://a.example.com/x/y/123"))
	assert.Equal(t, "123", lastSegment("https://a.example.com/x/123?q=1#f"))
	assert.Equal(t, "", lastSegment("https://a.example.com/x/"))
}

func TestAccumulator_Route_sync(t *testing.T) {
	acc := newTestAccumulator()
	kind, m, err := acc.Route(syncObservation(), testResourceID)
	require.NoError(t, err)
	assert.Equal(t, KindSync, kind)

	rec := book.NewRecord()
	rec.SetResourceID(testResourceID)
	m(rec)
	require.NotNil(t, rec.Expires)
	assert.True(t, rec.Expires.Equal(time.Date(2026, 11, 20, 10, 0, 0, 0, time.UTC)))
}

func TestAccumulator_Route_sync_other_loan(t *testing.T) {
	acc := newTestAccumulator()
	_, m, err := acc.Route(syncObservation(), testResourceID)
	require.NoError(t, err)

	rec := book.NewRecord()
	rec.SetResourceID("555")
	m(rec)
	assert.Nil(t, rec.Expires)
}

func TestAccumulator_Route_sync_malformed(t *testing.T) {
	acc := newTestAccumulator()
	o := syncObservation()
	o.Body = "not json"
	kind, _, err := acc.Route(o, testResourceID)
	assert.Equal(t, KindSync, kind)
	assert.ErrorIs(t, err, ErrObservation)

	o.Body = `{"loans":[{"id":"1","expires":"yesterday"}]}`
	_, _, err = acc.Route(o, testResourceID)
	assert.ErrorIs(t, err, ErrObservation)
}

func TestAccumulator_Route_media(t *testing.T) {
	acc := newTestAccumulator()
	kind, m, err := acc.Route(mediaObservation(), testResourceID)
	require.NoError(t, err)
	assert.Equal(t, KindMedia, kind)

	rec := book.NewRecord()
	m(rec)
	assert.Equal(t, "https://img/150", rec.CoverHref)
}

func TestAccumulator_Route_media_other_resource(t *testing.T) {
	acc := newTestAccumulator()
	kind, _, _ := acc.Route(mediaObservation(), "999")
	assert.Equal(t, KindNone, kind)
}

func TestAccumulator_Route_media_without_covers(t *testing.T) {
	acc := newTestAccumulator()
	o := mediaObservation()
	o.Body = `{"covers":{}}`
	_, m, err := acc.Route(o, testResourceID)
	require.NoError(t, err)

	rec := book.NewRecord()
	m(rec)
	assert.Empty(t, rec.CoverHref)
}

func TestAccumulator_Route_descriptor(t *testing.T) {
	acc := newTestAccumulator()
	kind, m, err := acc.Route(descriptorObservation("page"), testResourceID)
	require.NoError(t, err)
	assert.Equal(t, KindDescriptor, kind)

	rec := book.NewRecord()
	rec.SetResourceID(testResourceID)
	m(rec)
	assert.Equal(t, "Book", rec.Title.Main)
	assert.Equal(t, []string{"Ann", "Bob"}, rec.Authors)
	assert.Equal(t, []string{"Ned"}, rec.Narrators)
	assert.Equal(t, "full", rec.Description)
	assert.Equal(t, "cred=1", rec.Credential)
	require.Len(t, rec.Chapters, 3)
	assert.Equal(t, "Part01.mp3", rec.Chapters[1].PathKey)
	assert.Equal(t, float64(600), rec.Chapters[1].Offset)
	assert.Contains(t, rec.Chapters[0].URL, "https://dewey-abc.example.com/{X}Fmt425-Part01.mp3?cmpt=")
	assert.True(t, rec.Ready())
}

func TestAccumulator_Route_descriptor_decode_error(t *testing.T) {
	acc := newTestAccumulator()
	kind, _, err := acc.Route(descriptorObservation(badPage), testResourceID)
	assert.Equal(t, KindDescriptor, kind)
	assert.ErrorIs(t, err, descriptor.ErrMarkerNotFound)
}

func TestAccumulator_Route_ignored(t *testing.T) {
	acc := newTestAccumulator()
	cases := []intercept.Observation{
		{URL: "https://sentry.example.com/chip/sync", Method: "POST"},
		{URL: "https://dewey-abc.example.com/other", Method: "GET"},
		{URL: "https://other.example.com/", Method: "GET"},
		{URL: "https://cdn.example.com/app.js", Method: "GET"},
	}
	for _, o := range cases {
		kind, m, err := acc.Route(o, testResourceID)
		assert.Equal(t, KindNone, kind, o.URL)
		assert.Nil(t, m)
		assert.NoError(t, err)
	}
}
