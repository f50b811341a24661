package descriptor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// VersionTouchIcon is the encoding carried in the inline touch-icon data URI.
const VersionTouchIcon = "touch-icon-v1"

// Decoder recovers a descriptor from a page body.
type Decoder interface {
	// Version names the encoding the decoder understands.
	Version() string
	// DecodeEnvelope returns the decoded JSON envelope as raw text.
	DecodeEnvelope(page string) (json.RawMessage, error)
	// Decode returns the payload nested under PayloadKey.
	Decode(page string) (*Descriptor, error)
}

// NewDecoder returns the decoder registered for version.
// An empty version selects VersionTouchIcon.
func NewDecoder(version string) (Decoder, error) {
	switch version {
	case "", VersionTouchIcon:
		return touchIconDecoder{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVersion, version)
	}
}

var touchIconMarker = regexp.MustCompile(`apple-touch-icon-precomposed-inline.*img/jpeg;base64,([A-Za-z0-9+./=]*)"`)

type touchIconDecoder struct{}

func (touchIconDecoder) Version() string { return VersionTouchIcon }

func (d touchIconDecoder) Decode(page string) (*Descriptor, error) {
	env, err := d.DecodeEnvelope(page)
	if err != nil {
		return nil, err
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(env, &envelope); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrDecode, err)
	}
	payload, ok := envelope[PayloadKey]
	if !ok {
		return nil, fmt.Errorf("%w: envelope has no %q key", ErrDecode, PayloadKey)
	}
	var desc Descriptor
	if err := json.Unmarshal(payload, &desc); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrDecode, err)
	}
	return &desc, nil
}

func (touchIconDecoder) DecodeEnvelope(page string) (json.RawMessage, error) {
	m := touchIconMarker.FindStringSubmatch(page)
	if m == nil || m[1] == "" {
		return nil, ErrMarkerNotFound
	}

	outer, err := decodeBase64(m[1])
	if err != nil {
		return nil, fmt.Errorf("%w: outer value: %v", ErrDecode, err)
	}

	parts := strings.Split(string(outer), "-")
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: expected delimited segments, got %d", ErrDecode, len(parts))
	}
	// Interior segments are noise.
	joined := parts[0] + parts[len(parts)-1]
	joined = strings.ReplaceAll(joined, ".", "=")

	inner, err := decodeBase64(transposeBlocks(joined))
	if err != nil {
		return nil, fmt.Errorf("%w: inner value: %v", ErrDecode, err)
	}
	if !json.Valid(inner) {
		return nil, fmt.Errorf("%w: inner value is not JSON", ErrDecode)
	}
	return json.RawMessage(inner), nil
}

// transposeBlocks swaps the first and last character of every complete
// 4-character block. A trailing partial block is left as is.
// The transform is its own inverse.
func transposeBlocks(s string) string {
	b := []byte(s)
	for i := 0; i+4 <= len(b); i += 4 {
		b[i], b[i+3] = b[i+3], b[i]
	}
	return string(b)
}

func decodeBase64(s string) ([]byte, error) {
	out, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return out, nil
	}
	// Some pages drop the padding.
	if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rawErr == nil {
		return raw, nil
	}
	return nil, err
}
