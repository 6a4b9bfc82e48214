// Package channel abstracts the messaging platforms the bridge listens on.
// It defines the inbound envelope model, the outbound sender seam, and the
// adapter lifecycle implemented by each platform.
package channel

import (
	"context"
	"strings"
	"time"
)

// ChannelType identifies a messaging platform (e.g. "telegram", "discord").
type ChannelType string

func (c ChannelType) String() string {
	return string(c)
}

// ConversationKey builds the canonical conversation identifier used across
// the bridge: platform:conversation_id.
func ConversationKey(platform ChannelType, conversationID string) string {
	return string(platform) + ":" + strings.TrimSpace(conversationID)
}

// SplitKey breaks a conversation key back into platform and target.
func SplitKey(key string) (ChannelType, string) {
	platform, target, found := strings.Cut(key, ":")
	if !found {
		return "", key
	}
	return ChannelType(platform), target
}

// MediaRef points at a downloadable media payload attached to a message.
// DeclaredSize is the transport's advertised byte size, zero when unknown.
type MediaRef struct {
	URL          string
	MimeType     string
	DeclaredSize int64
}

// InboundMessage is one message received from a platform adapter.
type InboundMessage struct {
	Channel    ChannelType
	Key        string
	Sender     string
	MessageID  string
	ReceivedAt time.Time
	// FromSelf marks messages the platform attributes to the bridge's own
	// account (echoes of our sends, or the operator typing in self-chat).
	FromSelf bool
	Envelope Envelope
}

// OutboundMessage is a reply handed to a platform adapter.
type OutboundMessage struct {
	Key string
	// Target is the platform conversation identifier (without the
	// platform prefix).
	Target    string
	Text      string
	PhotoPath string
	ReplyTo   string
}

// Sender delivers outbound messages and returns the platform's delivery
// identifier for the send.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) (string, error)
}

// Handler consumes inbound messages from an adapter.
type Handler func(ctx context.Context, msg InboundMessage)

// Adapter is a platform connection with a lifecycle.
type Adapter interface {
	Sender
	Type() ChannelType
	// Start connects and begins delivering inbound messages to handler
	// until Stop is called.
	Start(ctx context.Context, handler Handler) error
	Stop(ctx context.Context) error
}
