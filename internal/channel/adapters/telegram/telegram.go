// Package telegram implements the Telegram channel adapter via long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/llamabridge/llamabridge/internal/channel"
)

// Type is the Telegram channel identifier.
const Type = channel.ChannelType("telegram")

const maxMessageLength = 4096

// Adapter connects one Telegram bot account.
type Adapter struct {
	logger *slog.Logger
	token  string
	delay  time.Duration

	bot    *tgbotapi.BotAPI
	cancel context.CancelFunc
}

// NewAdapter creates a Telegram adapter for the given bot token. delay is
// the pause between consecutive chunks of a long reply.
func NewAdapter(log *slog.Logger, token string, delay time.Duration) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger: log.With(slog.String("adapter", "telegram")),
		token:  token,
		delay:  delay,
	}
}

func (a *Adapter) Type() channel.ChannelType {
	return Type
}

// Start connects the bot and long-polls for updates until Stop.
func (a *Adapter) Start(ctx context.Context, handler channel.Handler) error {
	bot, err := tgbotapi.NewBotAPI(a.token)
	if err != nil {
		return fmt.Errorf("create bot: %w", err)
	}
	a.bot = bot
	a.logger.Info("connected", slog.String("username", bot.Self.UserName))

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := bot.GetUpdatesChan(updateConfig)

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					a.logger.Info("updates channel closed")
					return
				}
				msg, ok := a.convert(update)
				if !ok {
					continue
				}
				handler(runCtx, msg)
			}
		}
	}()
	return nil
}

// Stop halts polling.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.bot != nil {
		a.bot.StopReceivingUpdates()
	}
	return nil
}

// convert maps a Telegram update onto the bridge envelope. Edits arrive as
// a distinct update kind and are wrapped under Edited so the resolver can
// treat them like the original platforms' edit wrappers.
func (a *Adapter) convert(update tgbotapi.Update) (channel.InboundMessage, bool) {
	raw := update.Message
	edited := false
	if raw == nil && update.EditedMessage != nil {
		raw = update.EditedMessage
		edited = true
	}
	if raw == nil || raw.Chat == nil {
		return channel.InboundMessage{}, false
	}

	env := channel.Envelope{
		Text:    strings.TrimSpace(raw.Text),
		Caption: strings.TrimSpace(raw.Caption),
	}
	if len(raw.Photo) > 0 {
		photo := raw.Photo[len(raw.Photo)-1]
		env.Image = a.mediaRef(photo.FileID, "image/jpeg", int64(photo.FileSize))
	}
	if raw.Voice != nil {
		env.Audio = a.mediaRef(raw.Voice.FileID, raw.Voice.MimeType, int64(raw.Voice.FileSize))
	} else if raw.Audio != nil {
		env.Audio = a.mediaRef(raw.Audio.FileID, raw.Audio.MimeType, int64(raw.Audio.FileSize))
	}
	if edited {
		inner := env
		env = channel.Envelope{Edited: &inner}
	}

	chatID := strconv.FormatInt(raw.Chat.ID, 10)
	sender := ""
	fromSelf := false
	if raw.From != nil {
		sender = strconv.FormatInt(raw.From.ID, 10)
		fromSelf = a.bot != nil && raw.From.ID == a.bot.Self.ID
	}

	return channel.InboundMessage{
		Channel:    Type,
		Key:        channel.ConversationKey(Type, chatID),
		Sender:     sender,
		MessageID:  strconv.Itoa(raw.MessageID),
		ReceivedAt: time.Unix(int64(raw.Date), 0).UTC(),
		FromSelf:   fromSelf,
		Envelope:   env,
	}, true
}

func (a *Adapter) mediaRef(fileID, mime string, size int64) *channel.MediaRef {
	url := ""
	if a.bot != nil && strings.TrimSpace(fileID) != "" {
		value, err := a.bot.GetFileDirectURL(fileID)
		if err != nil {
			a.logger.Warn("resolve file url failed", slog.Any("error", err))
		} else {
			url = value
		}
	}
	return &channel.MediaRef{
		URL:          strings.TrimSpace(url),
		MimeType:     strings.TrimSpace(mime),
		DeclaredSize: size,
	}
}

// Send delivers the outbound message, splitting long text into chunks with
// a short pause between them. The returned identifier is the platform
// message ID of the first chunk.
func (a *Adapter) Send(ctx context.Context, msg channel.OutboundMessage) (string, error) {
	if a.bot == nil {
		return "", fmt.Errorf("telegram adapter not started")
	}
	chatID, err := strconv.ParseInt(msg.Target, 10, 64)
	if err != nil {
		return "", fmt.Errorf("telegram target must be a chat id: %q", msg.Target)
	}

	if msg.PhotoPath != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(msg.PhotoPath))
		photo.Caption = msg.Text
		sent, err := a.bot.Send(photo)
		if err != nil {
			return "", fmt.Errorf("send photo: %w", err)
		}
		return strconv.Itoa(sent.MessageID), nil
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
		out := tgbotapi.NewMessage(chatID, chunk)
		if i == 0 && msg.ReplyTo != "" {
			if replyTo, err := strconv.Atoi(msg.ReplyTo); err == nil {
				out.ReplyToMessageID = replyTo
			}
		}
		sent, err := a.bot.Send(out)
		if err != nil {
			return deliveryID, fmt.Errorf("send chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if i == 0 {
			deliveryID = strconv.Itoa(sent.MessageID)
		}
	}
	return deliveryID, nil
}
