package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstTextDirectWinsOverNested(t *testing.T) {
	t.Parallel()

	env := Envelope{
		Text:      "direct",
		Ephemeral: &Envelope{Text: "nested"},
	}
	assert.Equal(t, "direct", env.FirstText())
}

func TestFirstTextUnwrapsDeeply(t *testing.T) {
	t.Parallel()

	env := Envelope{
		Ephemeral: &Envelope{
			ViewOnce: &Envelope{
				Edited: &Envelope{Text: "  buried body  "},
			},
		},
	}
	assert.Equal(t, "buried body", env.FirstText())
}

func TestFirstTextEmpty(t *testing.T) {
	t.Parallel()

	env := Envelope{Ephemeral: &Envelope{Text: "   "}}
	assert.Equal(t, "", env.FirstText())

	var nilEnv *Envelope
	assert.Equal(t, "", nilEnv.FirstText())
}

func TestFirstAudioNested(t *testing.T) {
	t.Parallel()

	ref := &MediaRef{URL: "https://example.com/a.ogg", MimeType: "audio/ogg"}
	env := Envelope{ViewOnce: &Envelope{Audio: ref}}
	assert.Same(t, ref, env.FirstAudio())
	assert.Nil(t, env.FirstImage())
}

func TestFirstImageWithCaption(t *testing.T) {
	t.Parallel()

	ref := &MediaRef{URL: "https://example.com/p.jpg", MimeType: "image/jpeg", DeclaredSize: 1024}
	env := Envelope{
		Edited: &Envelope{Image: ref, Caption: "look at this"},
	}
	assert.Same(t, ref, env.FirstImage())
	assert.Equal(t, "look at this", env.FirstCaption())
}

func TestConversationKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "telegram:12345", ConversationKey("telegram", " 12345 "))
}
