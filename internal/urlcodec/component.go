package urlcodec

import (
	"net/url"
	"strings"
)

// componentFixups undoes the differences between url.QueryEscape and the
// browser's encodeURIComponent: spaces become %20 and the sub-delimiters
// !'()* stay literal.
var componentFixups = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EscapeComponent percent-encodes s the way encodeURIComponent does.
func EscapeComponent(s string) string {
	return componentFixups.Replace(url.QueryEscape(s))
}
