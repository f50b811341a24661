package descriptor

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"audiobook-capture/internal/urlcodec"
)

const (
	secretLength = 40
	// secretOffset is where the secret starts inside a ShapeA token.
	secretOffset = 9
)

// ShapeKind tags which address layout a spine path uses.
type ShapeKind int

const (
	// ShapeA paths end in "--"; the secret sits at a fixed offset in the token.
	ShapeA ShapeKind = iota + 1
	// ShapeB tokens carry the secret between hyphen delimiters.
	ShapeB
)

func (k ShapeKind) String() string {
	switch k {
	case ShapeA:
		return "A"
	case ShapeB:
		return "B"
	default:
		return "unknown"
	}
}

// Shape is the classified form of a spine path: the file part and the
// secret needed to rebuild its query.
type Shape struct {
	Kind   ShapeKind
	File   string
	Secret string
}

var (
	shapeAPattern = regexp.MustCompile(`(.*\.mp3)\?cmpt=([\w%]*)`)
	shapeBPattern = regexp.MustCompile(`(.*\.mp3)\?cmpt=([\w%]*)(--?)([\w]{40})([\w%]*-?)`)
)

// Classify determines the shape of a spine path and extracts its parts.
func Classify(path string) (Shape, error) {
	if strings.HasSuffix(path, "--") {
		m := shapeAPattern.FindStringSubmatch(path)
		if m == nil {
			return Shape{}, fmt.Errorf("%w: %q", ErrSpineShape, path)
		}
		token := m[2]
		if len(token) < secretOffset+secretLength {
			return Shape{}, fmt.Errorf("%w: token of %q is %d characters", ErrSpineShape, path, len(token))
		}
		return Shape{Kind: ShapeA, File: m[1], Secret: token[secretOffset : secretOffset+secretLength]}, nil
	}

	m := shapeBPattern.FindStringSubmatch(path)
	if m == nil {
		return Shape{}, fmt.Errorf("%w: %q", ErrSpineShape, path)
	}
	return Shape{Kind: ShapeB, File: m[1], Secret: m[4]}, nil
}

// Query rebuilds the cmpt query value for the spine entry at index.
func (s Shape) Query(index int) string {
	prefix := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf(`{"spine":%d}`, index)))
	return urlcodec.EscapeComponent(prefix + "--" + s.Secret)
}

// SpineAddress is the reconstructed address of one spine entry.
type SpineAddress struct {
	Index   int
	PathKey string
	URL     string
}

// BuildSpine reconstructs a fully qualified URL for every spine entry, in
// order. origin is the URL of the page the descriptor was served from; only
// its scheme and host are used.
func BuildSpine(origin *url.URL, entries []SpineEntry) ([]SpineAddress, error) {
	out := make([]SpineAddress, 0, len(entries))
	for i, e := range entries {
		shape, err := Classify(e.Path)
		if err != nil {
			return nil, fmt.Errorf("spine entry %d: %w", i, err)
		}
		out = append(out, SpineAddress{
			Index:   i,
			PathKey: e.OriginalPath,
			URL:     fmt.Sprintf("%s://%s/%s?cmpt=%s", origin.Scheme, origin.Host, shape.File, shape.Query(i)),
		})
	}
	return out, nil
}
