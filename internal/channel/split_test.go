package channel

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitText(t *testing.T) {
	t.Parallel()

	t.Run("short text is one chunk", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, []string{"hello"}, SplitText("hello", 100))
	})

	t.Run("empty text is no chunks", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, SplitText("  \n ", 100))
	})

	t.Run("long text is chunked under limit", func(t *testing.T) {
		t.Parallel()
		words := strings.Repeat("word ", 400)
		chunks := SplitText(words, 100)
		require.Greater(t, len(chunks), 1)
		for _, chunk := range chunks {
			assert.LessOrEqual(t, len(chunk), 100)
			assert.NotEmpty(t, chunk)
		}
	})

	t.Run("prefers newline breaks", func(t *testing.T) {
		t.Parallel()
		text := strings.Repeat("a", 80) + "\n" + strings.Repeat("b", 80)
		chunks := SplitText(text, 100)
		require.Len(t, chunks, 2)
		assert.Equal(t, strings.Repeat("a", 80), chunks[0])
		assert.Equal(t, strings.Repeat("b", 80), chunks[1])
	})

	t.Run("never splits a rune", func(t *testing.T) {
		t.Parallel()
		text := strings.Repeat("ü", 300)
		for _, chunk := range SplitText(text, 101) {
			assert.True(t, utf8.ValidString(chunk))
		}
	})

	t.Run("reassembles to original words", func(t *testing.T) {
		t.Parallel()
		text := strings.Repeat("alpha beta gamma ", 50)
		joined := strings.Join(SplitText(text, 64), " ")
		assert.Equal(t, strings.Fields(text), strings.Fields(joined))
	})
}
