// Package prune bounds free-form tool output before it is embedded in a
// completion prompt.
package prune

import (
	"strings"
	"unicode/utf8"
)

const (
	DefaultMarker   = "[truncated]"
	DefaultMaxChars = 1200
)

// Clip bounds s to maxChars bytes, cutting on a rune boundary and
// appending the marker when anything was dropped. Whitespace is collapsed
// at the cut edge so prompts stay tidy.
func Clip(s string, maxChars int) string {
	return ClipWithMarker(s, maxChars, DefaultMarker)
}

// ClipWithMarker is Clip with a caller-chosen marker.
func ClipWithMarker(s string, maxChars int, marker string) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if len(s) <= maxChars {
		return s
	}
	cut := safeUTF8Prefix(s, maxChars)
	cut = strings.TrimRight(cut, " \t\n")
	if cut == "" {
		return marker
	}
	if marker == "" {
		return cut
	}
	return cut + " " + marker
}

func safeUTF8Prefix(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) == 0 {
		return ""
	}
	if maxBytes >= len(s) {
		return s
	}
	cut := maxBytes
	for cut > 0 && cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut <= 0 {
		return ""
	}
	return s[:cut]
}
