package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/llamabridge/llamabridge/internal/channel"
	"github.com/llamabridge/llamabridge/internal/config"
)

// Resolver turns an inbound envelope into completion-ready text.
//
// Media policy precedence is deterministic: feature toggle, declared-size
// ceiling, downloaded-size ceiling, remote-then-local path selection, and
// the required-evidence check last, after all modalities settle. An
// oversize rejection always wins over a disabled fallback path.
type Resolver struct {
	audio      config.AudioConfig
	vision     config.VisionConfig
	tools      config.ToolsConfig
	runner     Runner
	logger     *slog.Logger
	httpClient *http.Client
}

func NewResolver(log *slog.Logger, runner Runner, audio config.AudioConfig, vision config.VisionConfig, tools config.ToolsConfig) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		audio:      audio,
		vision:     vision,
		tools:      tools,
		runner:     runner,
		logger:     log.With(slog.String("service", "media")),
		httpClient: &http.Client{},
	}
}

// Resolve determines what the message asks of the bridge. The only errors
// it returns are policy rejections (oversize media) and total transcription
// failure, both meant for a short descriptive reply; analysis failures
// degrade into the resolved text instead.
func (r *Resolver) Resolve(ctx context.Context, msg channel.InboundMessage) (Resolved, error) {
	env := &msg.Envelope

	text := env.FirstText()
	image := env.FirstImage()
	if text != "" && (image == nil || strings.HasPrefix(text, "/")) {
		return Resolved{Text: text, Source: SourceText}, nil
	}

	if audio := env.FirstAudio(); audio != nil {
		return r.resolveAudio(ctx, msg.Key, audio)
	}

	if image != nil {
		if r.vision.Enabled {
			return r.resolveImage(ctx, msg.Key, image, env.FirstCaption())
		}
		// With vision off the caption is still a usable message.
		if caption := env.FirstCaption(); caption != "" {
			return Resolved{Text: caption, Source: SourceText}, nil
		}
	}

	return Resolved{Source: SourceNone}, nil
}

// download fetches the media payload to a temp file, enforcing maxBytes on
// the actual body. Caller removes the file.
func (r *Resolver) download(ctx context.Context, ref *channel.MediaRef, maxBytes int64, sizeErr error) (string, error) {
	if strings.TrimSpace(ref.URL) == "" {
		return "", fmt.Errorf("media has no download url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("download media: status %d", resp.StatusCode)
	}

	data, err := readAllWithLimit(resp.Body, maxBytes, sizeErr)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp("", "bridge-media-*"+extensionForMime(ref.MimeType))
	if err != nil {
		return "", err
	}
	path := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func extensionForMime(mime string) string {
	switch {
	case strings.Contains(mime, "ogg"):
		return ".ogg"
	case strings.Contains(mime, "mpeg"):
		return ".mp3"
	case strings.Contains(mime, "wav"):
		return ".wav"
	case strings.Contains(mime, "png"):
		return ".png"
	case strings.Contains(mime, "webp"):
		return ".webp"
	case strings.Contains(mime, "jpeg"), strings.Contains(mime, "jpg"):
		return ".jpg"
	default:
		return ""
	}
}

func (r *Resolver) scriptPath(script string) string {
	if filepath.IsAbs(script) {
		return script
	}
	return filepath.Join(r.tools.ScriptsDir, script)
}
