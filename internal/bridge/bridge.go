// Package bridge is the top-level orchestrator: it receives inbound
// messages from channel adapters, serializes them per conversation, and
// produces replies via the media resolver and completion client.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/llamabridge/llamabridge/internal/channel"
	"github.com/llamabridge/llamabridge/internal/completion"
	"github.com/llamabridge/llamabridge/internal/config"
	"github.com/llamabridge/llamabridge/internal/dedup"
	"github.com/llamabridge/llamabridge/internal/history"
	"github.com/llamabridge/llamabridge/internal/lane"
	"github.com/llamabridge/llamabridge/internal/media"
)

// Resolver is the content-resolution seam, satisfied by *media.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, msg channel.InboundMessage) (media.Resolved, error)
}

// Completer is the completion seam, satisfied by *completion.Client.
type Completer interface {
	Complete(ctx context.Context, messages []completion.Message) (completion.Reply, error)
	Endpoints() []completion.Endpoint
}

// Bridge wires the pipeline together. All processing for one conversation
// runs on that conversation's lane.
type Bridge struct {
	cfg        config.ChatConfig
	scheduler  *lane.Scheduler
	suppressor *dedup.Suppressor
	resolver   Resolver
	completer  Completer
	store      *history.Store
	gate       *Gate
	imageGen   *ImageGenerator
	logger     *slog.Logger

	senders map[channel.ChannelType]channel.Sender
}

func New(
	log *slog.Logger,
	cfg config.ChatConfig,
	scheduler *lane.Scheduler,
	suppressor *dedup.Suppressor,
	resolver Resolver,
	completer Completer,
	store *history.Store,
	gate *Gate,
	imageGen *ImageGenerator,
) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		cfg:        cfg,
		scheduler:  scheduler,
		suppressor: suppressor,
		resolver:   resolver,
		completer:  completer,
		store:      store,
		gate:       gate,
		imageGen:   imageGen,
		logger:     log.With(slog.String("service", "bridge")),
		senders:    make(map[channel.ChannelType]channel.Sender),
	}
}

// RegisterSender attaches the outbound path for a platform.
func (b *Bridge) RegisterSender(platform channel.ChannelType, sender channel.Sender) {
	b.senders[platform] = sender
}

// HandleInbound is the adapter callback. Cheap filters run inline; the
// rest of the pipeline is queued on the conversation's lane.
func (b *Bridge) HandleInbound(ctx context.Context, msg channel.InboundMessage) {
	if strings.TrimSpace(msg.Key) == "" {
		return
	}
	if b.suppressor.SeenDelivery(msg.MessageID) {
		b.logger.Debug("dropped own delivery echo", slog.String("key", msg.Key))
		return
	}
	if msg.FromSelf {
		b.logger.Debug("dropped self message", slog.String("key", msg.Key))
		return
	}

	// Commands bypass the gate only in active mode, so /enable can reach
	// a chat that is currently disabled. Allow-list mode drops commands
	// from non-allowed keys like any other message.
	commandBypass := b.gate.mode == GateActive && strings.HasPrefix(msg.Envelope.FirstText(), "/")
	if !commandBypass && !b.gate.Allowed(msg.Key) {
		b.logger.Debug("dropped by gate", slog.String("key", msg.Key))
		return
	}

	b.scheduler.Submit(msg.Key, func(taskCtx context.Context) error {
		return b.process(taskCtx, msg)
	})
}

func (b *Bridge) process(ctx context.Context, msg channel.InboundMessage) error {
	if text := msg.Envelope.FirstText(); text != "" && b.suppressor.IsDuplicate(msg.Key, text) {
		b.logger.Debug("dropped duplicate of own output", slog.String("key", msg.Key))
		return nil
	}

	resolved, err := b.resolver.Resolve(ctx, msg)
	if err != nil {
		return b.replyResolveError(ctx, msg, err)
	}

	switch resolved.Source {
	case media.SourceNone:
		return nil
	case media.SourceNoEvidence:
		_, err := b.send(ctx, msg.Key, "I couldn't extract anything useful from that image.", msg.MessageID)
		return err
	}

	if strings.HasPrefix(resolved.Text, "/") {
		return b.handleCommand(ctx, msg, resolved.Text)
	}
	return b.respond(ctx, msg, resolved)
}

// respond runs the completion with windowed history and delivers the reply.
func (b *Bridge) respond(ctx context.Context, msg channel.InboundMessage, resolved media.Resolved) error {
	messages := b.buildMessages(msg.Key, resolved.Text)

	reply, err := b.completer.Complete(ctx, messages)
	if err != nil {
		b.logger.Error("completion failed",
			slog.String("key", msg.Key),
			slog.Any("error", err),
		)
		// Endpoint failure detail stays in the log, never in the chat.
		_, sendErr := b.send(ctx, msg.Key, "Sorry, I can't reach my language model right now.", msg.MessageID)
		if sendErr != nil {
			return sendErr
		}
		return err
	}

	b.logger.Info("reply produced",
		slog.String("key", msg.Key),
		slog.String("endpoint", reply.Endpoint.Name),
		slog.String("source", string(resolved.Source)),
		slog.Int("chars", len(reply.Text)),
	)

	if _, err := b.send(ctx, msg.Key, reply.Text, msg.MessageID); err != nil {
		return err
	}
	b.store.Append(msg.Key, history.RoleUser, resolved.Text)
	b.store.Append(msg.Key, history.RoleAssistant, reply.Text)
	return nil
}

func (b *Bridge) buildMessages(key, userText string) []completion.Message {
	window := b.store.Window(key)
	messages := make([]completion.Message, 0, len(window)+2)
	if prompt := strings.TrimSpace(b.cfg.SystemPrompt); prompt != "" {
		messages = append(messages, completion.Message{Role: completion.RoleSystem, Content: prompt})
	}
	for _, entry := range window {
		messages = append(messages, completion.Message{Role: entry.Role, Content: entry.Text})
	}
	return append(messages, completion.Message{Role: completion.RoleUser, Content: userText})
}

func (b *Bridge) replyResolveError(ctx context.Context, msg channel.InboundMessage, err error) error {
	var text string
	switch {
	case errors.Is(err, media.ErrAudioTooLarge):
		text = "That voice message is too large for me to process."
	case errors.Is(err, media.ErrImageTooLarge):
		text = "That image is too large for me to process."
	case errors.Is(err, media.ErrTranscription):
		text = "I couldn't transcribe that voice message."
	default:
		text = "I couldn't process that message."
	}
	b.logger.Warn("resolve rejected message", slog.String("key", msg.Key), slog.Any("error", err))
	if _, sendErr := b.send(ctx, msg.Key, text, msg.MessageID); sendErr != nil {
		return sendErr
	}
	return err
}

// send delivers text to the conversation and records it for echo
// suppression along with its delivery identifier.
func (b *Bridge) send(ctx context.Context, key, text, replyTo string) (string, error) {
	return b.sendMessage(ctx, key, channel.OutboundMessage{Text: text, ReplyTo: replyTo})
}

func (b *Bridge) sendMessage(ctx context.Context, key string, out channel.OutboundMessage) (string, error) {
	platform, target := channel.SplitKey(key)
	sender, ok := b.senders[platform]
	if !ok {
		return "", fmt.Errorf("no sender registered for platform %q", platform)
	}
	out.Key = key
	out.Target = target

	deliveryID, err := sender.Send(ctx, out)
	if err != nil {
		return "", fmt.Errorf("send to %s: %w", key, err)
	}
	b.suppressor.RecordDelivery(deliveryID)
	if out.Text != "" {
		b.suppressor.RecordSent(key, out.Text)
	}
	return deliveryID, nil
}

// Drain stops accepting work and waits for active lanes.
func (b *Bridge) Drain(ctx context.Context) error {
	return b.scheduler.Shutdown(ctx)
}

// Stats reports live counters for the status endpoint.
func (b *Bridge) Stats() Stats {
	endpoints := make([]string, 0)
	for _, ep := range b.completer.Endpoints() {
		endpoints = append(endpoints, ep.Name)
	}
	return Stats{
		ActiveLanes:   b.scheduler.Len(),
		Conversations: b.store.Len(),
		Endpoints:     endpoints,
	}
}

// Stats is a point-in-time snapshot of bridge activity.
type Stats struct {
	ActiveLanes   int      `json:"active_lanes"`
	Conversations int      `json:"conversations"`
	Endpoints     []string `json:"endpoints"`
}

// FlushHistory forces the history snapshot out, used by the status server
// and shutdown path.
func (b *Bridge) FlushHistory() error {
	return b.store.Flush()
}
