// Package discord implements the Discord channel adapter.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/llamabridge/llamabridge/internal/channel"
)

// Type is the Discord channel identifier.
const Type = channel.ChannelType("discord")

const maxMessageLength = 2000

// Adapter connects one Discord bot account.
type Adapter struct {
	logger *slog.Logger
	token  string
	delay  time.Duration

	session *discordgo.Session
	remove  func()
}

// NewAdapter creates a Discord adapter for the given bot token. delay is
// the pause between consecutive chunks of a long reply.
func NewAdapter(log *slog.Logger, token string, delay time.Duration) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger: log.With(slog.String("adapter", "discord")),
		token:  token,
		delay:  delay,
	}
}

func (a *Adapter) Type() channel.ChannelType {
	return Type
}

// Start opens the gateway session and forwards message events to handler.
func (a *Adapter) Start(ctx context.Context, handler channel.Handler) error {
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	a.remove = session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if ctx.Err() != nil {
			return
		}
		msg, ok := a.convert(s, m)
		if !ok {
			return
		}
		handler(ctx, msg)
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	a.session = session
	a.logger.Info("connected", slog.String("user", session.State.User.Username))
	return nil
}

// Stop closes the gateway session.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.remove != nil {
		a.remove()
	}
	if a.session != nil {
		return a.session.Close()
	}
	return nil
}

func (a *Adapter) convert(s *discordgo.Session, m *discordgo.MessageCreate) (channel.InboundMessage, bool) {
	if m.Author == nil {
		return channel.InboundMessage{}, false
	}

	env := channel.Envelope{Text: strings.TrimSpace(m.Content)}
	for _, att := range m.Attachments {
		ref := &channel.MediaRef{
			URL:          att.URL,
			MimeType:     att.ContentType,
			DeclaredSize: int64(att.Size),
		}
		switch {
		case strings.HasPrefix(att.ContentType, "audio/"):
			if env.Audio == nil {
				env.Audio = ref
			}
		case strings.HasPrefix(att.ContentType, "image/"):
			if env.Image == nil {
				env.Image = ref
				env.Caption = env.Text
			}
		}
	}

	receivedAt := time.Now().UTC()
	if ts := m.Timestamp; !ts.IsZero() {
		receivedAt = ts.UTC()
	}

	return channel.InboundMessage{
		Channel:    Type,
		Key:        channel.ConversationKey(Type, m.ChannelID),
		Sender:     m.Author.ID,
		MessageID:  m.ID,
		ReceivedAt: receivedAt,
		FromSelf:   s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID,
		Envelope:   env,
	}, true
}

// Send delivers the outbound message, chunked to Discord's message length
// limit. The returned identifier is the message ID of the first chunk.
func (a *Adapter) Send(ctx context.Context, msg channel.OutboundMessage) (string, error) {
	if a.session == nil {
		return "", fmt.Errorf("discord adapter not started")
	}

	if msg.PhotoPath != "" {
		file, err := os.Open(msg.PhotoPath)
		if err != nil {
			return "", fmt.Errorf("open photo: %w", err)
		}
		defer file.Close()
		sent, err := a.session.ChannelMessageSendComplex(msg.Target, &discordgo.MessageSend{
			Content: msg.Text,
			Files: []*discordgo.File{{
				Name:   filepath.Base(msg.PhotoPath),
				Reader: file,
			}},
		})
		if err != nil {
			return "", fmt.Errorf("send photo: %w", err)
		}
		return sent.ID, nil
	}

	chunks := channel.SplitText(msg.Text, maxMessageLength)
	deliveryID := ""
	for i, chunk := range chunks {
		if i > 0 && a.delay > 0 {
			select {
			case <-ctx.Done():
				return deliveryID, ctx.Err()
			case <-time.After(a.delay):
			}
		}
		var sent *discordgo.Message
		var err error
		if i == 0 && msg.ReplyTo != "" {
			sent, err = a.session.ChannelMessageSendReply(msg.Target, chunk, &discordgo.MessageReference{
				MessageID: msg.ReplyTo,
				ChannelID: msg.Target,
			})
		} else {
			sent, err = a.session.ChannelMessageSend(msg.Target, chunk)
		}
		if err != nil {
			return deliveryID, fmt.Errorf("send chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if i == 0 {
			deliveryID = sent.ID
		}
	}
	return deliveryID, nil
}
