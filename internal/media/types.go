// Package media resolves inbound message content into the text fed to the
// completion client, driving transcription and image analysis for media.
package media

import (
	"context"

	"github.com/llamabridge/llamabridge/internal/tool"
)

// Source tags where the resolved text came from.
type Source string

const (
	// SourceText is plain message text.
	SourceText Source = "text"
	// SourceAudio is a voice transcript.
	SourceAudio Source = "audio"
	// SourceImage is a synthesized image-analysis prompt.
	SourceImage Source = "image"
	// SourceNoEvidence means image analysis ran under a required-evidence
	// policy and no modality produced anything.
	SourceNoEvidence Source = "no-evidence"
	// SourceNone means the message carries nothing to respond to.
	SourceNone Source = "none"
)

// Resolved is the outcome of content resolution. Empty Text means "do not
// respond".
type Resolved struct {
	Text   string
	Source Source
}

// Runner executes analysis tool jobs. Satisfied by *tool.Runner.
type Runner interface {
	Run(ctx context.Context, job tool.Job) (tool.Result, error)
}
