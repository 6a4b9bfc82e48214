package prune

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestClip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       string
		maxChars int
		want     string
	}{
		{name: "under budget", in: "short", maxChars: 10, want: "short"},
		{name: "exact budget", in: "12345", maxChars: 5, want: "12345"},
		{name: "over budget", in: "hello world", maxChars: 5, want: "hello " + DefaultMarker},
		{name: "trailing space trimmed", in: "ab \nrest of it", maxChars: 3, want: "ab " + DefaultMarker},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Clip(tt.in, tt.maxChars)
			if got != tt.want {
				t.Fatalf("Clip(%q, %d) = %q, want %q", tt.in, tt.maxChars, got, tt.want)
			}
		})
	}
}

func TestClipKeepsRuneBoundary(t *testing.T) {
	t.Parallel()

	in := strings.Repeat("é", 100)
	got := Clip(in, 101)
	if !utf8.ValidString(got) {
		t.Fatalf("clip produced invalid UTF-8: %q", got)
	}
}
