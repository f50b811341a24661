package descriptor

import "encoding/json"

// PayloadKey is the envelope key the descriptor payload is nested under.
const PayloadKey = "b"

// Creator is one contributor entry.
type Creator struct {
	Role string `json:"role"`
	Name string `json:"name"`
}

// Description carries both description forms.
type Description struct {
	Short string `json:"short"`
	Full  string `json:"full"`
}

// SpineEntry is one segment of the audio spine.
type SpineEntry struct {
	Path         string `json:"path"`
	OriginalPath string `json:"-odread-original-path"`
}

// TocEntry is one node of the nested table of contents.
type TocEntry struct {
	Title    string     `json:"title"`
	Path     string     `json:"path"`
	Contents []TocEntry `json:"contents,omitempty"`
}

// Nav holds navigation data of the descriptor.
type Nav struct {
	Toc []TocEntry `json:"toc"`
}

// Descriptor is the decoded book payload.
type Descriptor struct {
	Title struct {
		Main       string `json:"main"`
		Subtitle   string `json:"subtitle"`
		Collection string `json:"collection"`
	} `json:"title"`
	Creator     []Creator       `json:"creator"`
	Description *Description    `json:"description"`
	Short       json.RawMessage `json:"short,omitempty"`
	Credential  string          `json:"-odread-bonafides-d"`
	Spine       []SpineEntry    `json:"spine"`
	Nav         Nav             `json:"nav"`
}

// Authors returns the names of all creators with the author role, in input order.
func (d *Descriptor) Authors() []string {
	return d.creatorsWithRole("author")
}

// Narrators returns the names of all creators with the narrator role, in input order.
func (d *Descriptor) Narrators() []string {
	return d.creatorsWithRole("narrator")
}

func (d *Descriptor) creatorsWithRole(role string) []string {
	var names []string
	for _, c := range d.Creator {
		if c.Role == role {
			names = append(names, c.Name)
		}
	}
	return names
}

// PreferredDescription returns the short form when the short indicator is
// set, otherwise the full form.
func (d *Descriptor) PreferredDescription() string {
	if d.Description == nil {
		return ""
	}
	if truthy(d.Short) {
		return d.Description.Short
	}
	return d.Description.Full
}

// truthy mirrors loose truthiness for the JSON values the indicator is seen with.
func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case nil:
		return false
	default:
		return true
	}
}
