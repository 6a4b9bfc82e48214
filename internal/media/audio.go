package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/llamabridge/llamabridge/internal/channel"
	"github.com/llamabridge/llamabridge/internal/tool"
)

func (r *Resolver) resolveAudio(ctx context.Context, key string, ref *channel.MediaRef) (Resolved, error) {
	if !r.audio.Enabled {
		r.logger.Debug("audio disabled, skipping", slog.String("key", key))
		return Resolved{Source: SourceNone}, nil
	}
	if ref.DeclaredSize > 0 && ref.DeclaredSize > r.audio.MaxBytes {
		return Resolved{}, fmt.Errorf("%w: declared %d bytes, max %d", ErrAudioTooLarge, ref.DeclaredSize, r.audio.MaxBytes)
	}

	path, err := r.download(ctx, ref, r.audio.MaxBytes, ErrAudioTooLarge)
	if err != nil {
		if isSizeErr(err) {
			return Resolved{}, err
		}
		r.logger.Warn("audio download failed", slog.String("key", key), slog.Any("error", err))
		return Resolved{Source: SourceNone}, nil
	}
	defer func() {
		_ = os.Remove(path)
	}()

	transcript, err := r.transcribe(ctx, path)
	if err != nil {
		return Resolved{}, fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	return Resolved{Text: transcript, Source: SourceAudio}, nil
}

func isSizeErr(err error) bool {
	return errors.Is(err, ErrAudioTooLarge) || errors.Is(err, ErrImageTooLarge)
}

// transcribe prefers the remote endpoint when enabled and falls back to
// the local STT tool when the remote path is disabled or fails.
func (r *Resolver) transcribe(ctx context.Context, path string) (string, error) {
	var remoteErr error
	if r.audio.RemoteEnabled {
		text, err := r.transcribeRemote(ctx, path)
		if err == nil {
			return text, nil
		}
		remoteErr = err
		r.logger.Warn("remote transcription failed, trying local", slog.Any("error", err))
	}

	text, localErr := r.transcribeLocal(ctx, path)
	if localErr == nil {
		return text, nil
	}
	if remoteErr != nil {
		return "", fmt.Errorf("remote: %v; local: %v", remoteErr, localErr)
	}
	return "", localErr
}

func (r *Resolver) transcribeRemote(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	if model := strings.TrimSpace(r.audio.RemoteModel); model != "" {
		if err := writer.WriteField("model", model); err != nil {
			return "", err
		}
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.audio.RemoteURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if key := strings.TrimSpace(r.audio.RemoteAPIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse transcription response: %w", err)
	}
	text := strings.TrimSpace(parsed.Text)
	if text == "" {
		return "", fmt.Errorf("empty transcript")
	}
	return text, nil
}

func (r *Resolver) transcribeLocal(ctx context.Context, path string) (string, error) {
	if strings.TrimSpace(r.audio.LocalScript) == "" {
		return "", fmt.Errorf("local transcription not configured")
	}
	res, err := r.runner.Run(ctx, tool.Job{
		Program: r.tools.Python,
		Script:  r.scriptPath(r.audio.LocalScript),
		Payload: map[string]any{"audio_path": path},
		Timeout: r.tools.Timeout(),
	})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(res.Text("text"))
	if text == "" {
		return "", fmt.Errorf("empty transcript")
	}
	return text, nil
}
