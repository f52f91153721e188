package slug

import (
	"regexp"
	"strings"
)

var nonAlphaNum = regexp.MustCompile(`[^a-z0-9]+`)

// Make lowercases input and collapses every run of non-alphanumerics into "-".
func Make(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	s = nonAlphaNum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Key joins slugged parts with ":" and skips parts that slug to nothing,
// e.g. Key("shortcut", "Focus Region", "cardiovascular") = "shortcut:focus-region:cardiovascular".
func Key(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if s := Make(part); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, ":")
}
