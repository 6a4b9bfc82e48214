package media

import "errors"

var (
	// ErrAudioTooLarge indicates a voice payload exceeds the configured
	// audio byte ceiling, before or after download.
	ErrAudioTooLarge = errors.New("audio payload too large")
	// ErrImageTooLarge indicates an image payload exceeds the configured
	// image byte ceiling, before or after download.
	ErrImageTooLarge = errors.New("image payload too large")
	// ErrTranscription indicates both the remote and local transcription
	// paths failed or produced empty text.
	ErrTranscription = errors.New("transcription failed")
)
