package book

// Cover keys as they appear in the media response, in order of preference.
// Earlier keys win even when a larger rendition is also present.
const (
	CoverWide300 = "cover300Wide"
	CoverWide150 = "cover150Wide"
	CoverWide510 = "cover510Wide"
)

// CoverPreference is the fixed selection order for cover references.
var CoverPreference = []string{CoverWide300, CoverWide150, CoverWide510}

// CoverRef is one entry of the media response's covers map.
type CoverRef struct {
	Href string `json:"href"`
}

// PickCover returns the href of the first preferred cover present in covers.
func PickCover(covers map[string]CoverRef) (string, bool) {
	for _, key := range CoverPreference {
		if c, ok := covers[key]; ok && c.Href != "" {
			return c.Href, true
		}
	}
	return "", false
}
