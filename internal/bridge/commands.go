package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/llamabridge/llamabridge/internal/channel"
)

const helpText = `Commands:
/help - show this message
/status - bridge status
/reset - clear this conversation's history
/enable - start replying in this chat
/disable - stop replying in this chat
/image <prompt> - generate an image`

// handleCommand is thin dispatch over control commands; anything
// unrecognized gets a pointer to /help.
func (b *Bridge) handleCommand(ctx context.Context, msg channel.InboundMessage, text string) error {
	command, args, _ := strings.Cut(strings.TrimSpace(text), " ")
	args = strings.TrimSpace(args)

	switch strings.ToLower(command) {
	case "/help", "/start":
		_, err := b.send(ctx, msg.Key, helpText, msg.MessageID)
		return err

	case "/status":
		stats := b.Stats()
		reply := fmt.Sprintf(
			"Active lanes: %d\nConversations with history: %d\nEndpoints: %s",
			stats.ActiveLanes,
			stats.Conversations,
			strings.Join(stats.Endpoints, ", "),
		)
		_, err := b.send(ctx, msg.Key, reply, msg.MessageID)
		return err

	case "/reset":
		b.store.Reset(msg.Key)
		_, err := b.send(ctx, msg.Key, "Conversation history cleared.", msg.MessageID)
		return err

	case "/enable":
		b.gate.Enable(msg.Key)
		_, err := b.send(ctx, msg.Key, "Replies enabled for this chat.", msg.MessageID)
		return err

	case "/disable":
		b.gate.Disable(msg.Key)
		_, err := b.send(ctx, msg.Key, "Replies disabled for this chat.", msg.MessageID)
		return err

	case "/image":
		return b.handleImageCommand(ctx, msg, args)

	default:
		_, err := b.send(ctx, msg.Key, "Unknown command. Try /help.", msg.MessageID)
		return err
	}
}

func (b *Bridge) handleImageCommand(ctx context.Context, msg channel.InboundMessage, prompt string) error {
	if b.imageGen == nil || !b.imageGen.enabled() {
		_, err := b.send(ctx, msg.Key, "Image generation is not enabled.", msg.MessageID)
		return err
	}
	if prompt == "" {
		_, err := b.send(ctx, msg.Key, "Usage: /image <prompt>", msg.MessageID)
		return err
	}

	path, err := b.imageGen.generate(ctx, prompt)
	if err != nil {
		b.logger.Error("image generation failed", slog.String("key", msg.Key), slog.Any("error", err))
		_, sendErr := b.send(ctx, msg.Key, "Image generation failed.", msg.MessageID)
		if sendErr != nil {
			return sendErr
		}
		return err
	}

	_, err = b.sendMessage(ctx, msg.Key, channel.OutboundMessage{
		PhotoPath: path,
		ReplyTo:   msg.MessageID,
	})
	return err
}
