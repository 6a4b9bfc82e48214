package channel

import "strings"

// Envelope is the raw content of an inbound message. Platforms wrap the
// actual body in optional layers (ephemeral, view-once, edits, quoted
// context); each wrapper is modeled explicitly so new variants are new
// fields, not new string checks.
type Envelope struct {
	// Text is the direct message body.
	Text string
	// Caption accompanies an image or other media.
	Caption string
	Audio   *MediaRef
	Image   *MediaRef

	// Wrapper variants. Each holds a full nested envelope.
	Ephemeral *Envelope
	ViewOnce  *Envelope
	Edited    *Envelope
	Quoted    *Envelope
}

// wrappers returns the nested envelopes in precedence order.
func (e *Envelope) wrappers() []*Envelope {
	return []*Envelope{e.Ephemeral, e.ViewOnce, e.Edited, e.Quoted}
}

// FirstText returns the first non-empty text body, preferring the direct
// field over nested wrappers, walking wrappers recursively in order.
func (e *Envelope) FirstText() string {
	if e == nil {
		return ""
	}
	if t := strings.TrimSpace(e.Text); t != "" {
		return t
	}
	for _, w := range e.wrappers() {
		if t := w.FirstText(); t != "" {
			return t
		}
	}
	return ""
}

// FirstCaption returns the first non-empty caption, direct before nested.
func (e *Envelope) FirstCaption() string {
	if e == nil {
		return ""
	}
	if c := strings.TrimSpace(e.Caption); c != "" {
		return c
	}
	for _, w := range e.wrappers() {
		if c := w.FirstCaption(); c != "" {
			return c
		}
	}
	return ""
}

// FirstAudio returns the first audio reference, direct before nested.
func (e *Envelope) FirstAudio() *MediaRef {
	if e == nil {
		return nil
	}
	if e.Audio != nil {
		return e.Audio
	}
	for _, w := range e.wrappers() {
		if ref := w.FirstAudio(); ref != nil {
			return ref
		}
	}
	return nil
}

// FirstImage returns the first image reference, direct before nested.
func (e *Envelope) FirstImage() *MediaRef {
	if e == nil {
		return nil
	}
	if e.Image != nil {
		return e.Image
	}
	for _, w := range e.wrappers() {
		if ref := w.FirstImage(); ref != nil {
			return ref
		}
	}
	return nil
}
