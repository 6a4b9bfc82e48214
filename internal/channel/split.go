package channel

import (
	"strings"
	"unicode/utf8"
)

// SplitText breaks text into chunks no longer than maxLen bytes, cutting
// on a newline or space near the limit when one exists and never inside a
// rune.
func SplitText(text string, maxLen int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxLen <= 0 || len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > maxLen {
		cut := safeCut(text, maxLen)
		window := text[:cut]
		if idx := strings.LastIndexByte(window, '\n'); idx > maxLen/2 {
			cut = idx
		} else if idx := strings.LastIndexByte(window, ' '); idx > maxLen/2 {
			cut = idx
		}
		chunk := strings.TrimSpace(text[:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func safeCut(s string, max int) int {
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		return max
	}
	return cut
}
