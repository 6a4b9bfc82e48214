package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llamabridge/llamabridge/internal/channel"
	"github.com/llamabridge/llamabridge/internal/config"
	"github.com/llamabridge/llamabridge/internal/tool"
)

// fakeRunner dispatches by script base name.
type fakeRunner struct {
	results map[string]tool.Result
	errs    map[string]error

	mu    sync.Mutex
	calls []string
}

func (f *fakeRunner) Run(ctx context.Context, job tool.Job) (tool.Result, error) {
	name := filepath.Base(job.Script)
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	if err, ok := f.errs[name]; ok {
		return tool.Result{}, err
	}
	if res, ok := f.results[name]; ok {
		return res, nil
	}
	return tool.Result{}, fmt.Errorf("unexpected script %s", name)
}

func textResult(text string) tool.Result {
	return tool.Result{Fields: map[string]any{"ok": true, "text": text}}
}

func mediaServer(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfigs() (config.AudioConfig, config.VisionConfig, config.ToolsConfig) {
	audio := config.AudioConfig{
		Enabled:     true,
		MaxBytes:    1024,
		LocalScript: "stt_local.py",
	}
	vision := config.VisionConfig{
		Enabled:        true,
		MaxBytes:       1024,
		OCRScript:      "ocr_local.py",
		DescribeScript: "vlm_local.py",
		DetectScript:   "yolo_local.py",
		OCRCharBudget:  200,
		VLMCharBudget:  200,
		DetectionTopN:  3,
	}
	tools := config.ToolsConfig{Python: "python3", ScriptsDir: "tools", TimeoutSeconds: 5}
	return audio, vision, tools
}

func inboundWith(env channel.Envelope) channel.InboundMessage {
	return channel.InboundMessage{Key: "telegram:1", Envelope: env}
}

func TestResolvePlainText(t *testing.T) {
	audio, vision, tools := testConfigs()
	r := NewResolver(nil, &fakeRunner{}, audio, vision, tools)

	got, err := r.Resolve(context.Background(), inboundWith(channel.Envelope{Text: "just words"}))
	require.NoError(t, err)
	assert.Equal(t, SourceText, got.Source)
	assert.Equal(t, "just words", got.Text)
}

func TestResolveCommandBypassesImage(t *testing.T) {
	audio, vision, tools := testConfigs()
	r := NewResolver(nil, &fakeRunner{}, audio, vision, tools)

	env := channel.Envelope{
		Text:  "/reset",
		Image: &channel.MediaRef{URL: "https://example.invalid/x.jpg"},
	}
	got, err := r.Resolve(context.Background(), inboundWith(env))
	require.NoError(t, err)
	assert.Equal(t, SourceText, got.Source)
	assert.Equal(t, "/reset", got.Text)
}

func TestResolveNone(t *testing.T) {
	audio, vision, tools := testConfigs()
	r := NewResolver(nil, &fakeRunner{}, audio, vision, tools)

	got, err := r.Resolve(context.Background(), inboundWith(channel.Envelope{}))
	require.NoError(t, err)
	assert.Equal(t, SourceNone, got.Source)
	assert.Empty(t, got.Text)
}

func TestResolveAudioDeclaredOversize(t *testing.T) {
	audio, vision, tools := testConfigs()
	r := NewResolver(nil, &fakeRunner{}, audio, vision, tools)

	env := channel.Envelope{Audio: &channel.MediaRef{
		URL:          "https://example.invalid/a.ogg",
		DeclaredSize: 10_000,
	}}
	_, err := r.Resolve(context.Background(), inboundWith(env))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAudioTooLarge)
}

func TestResolveAudioDownloadedOversize(t *testing.T) {
	audio, vision, tools := testConfigs()
	srv := mediaServer(t, make([]byte, 5000))
	r := NewResolver(nil, &fakeRunner{}, audio, vision, tools)

	// Declared size lies under the ceiling; the downloaded payload does not.
	env := channel.Envelope{Audio: &channel.MediaRef{URL: srv.URL, DeclaredSize: 100}}
	_, err := r.Resolve(context.Background(), inboundWith(env))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAudioTooLarge)
}

func TestResolveAudioLocalTranscription(t *testing.T) {
	audio, vision, tools := testConfigs()
	srv := mediaServer(t, []byte("fake-ogg-bytes"))
	runner := &fakeRunner{results: map[string]tool.Result{
		"stt_local.py": textResult("spoken words"),
	}}
	r := NewResolver(nil, runner, audio, vision, tools)

	env := channel.Envelope{Audio: &channel.MediaRef{URL: srv.URL}}
	got, err := r.Resolve(context.Background(), inboundWith(env))
	require.NoError(t, err)
	assert.Equal(t, SourceAudio, got.Source)
	assert.Equal(t, "spoken words", got.Text)
}

func TestResolveAudioRemoteFallsBackToLocal(t *testing.T) {
	audio, vision, tools := testConfigs()
	payload := mediaServer(t, []byte("fake-ogg-bytes"))
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "remote stt down", http.StatusBadGateway)
	}))
	t.Cleanup(remote.Close)

	audio.RemoteEnabled = true
	audio.RemoteURL = remote.URL
	runner := &fakeRunner{results: map[string]tool.Result{
		"stt_local.py": textResult("local transcript"),
	}}
	r := NewResolver(nil, runner, audio, vision, tools)

	env := channel.Envelope{Audio: &channel.MediaRef{URL: payload.URL}}
	got, err := r.Resolve(context.Background(), inboundWith(env))
	require.NoError(t, err)
	assert.Equal(t, "local transcript", got.Text)
	assert.Contains(t, runner.calls, "stt_local.py")
}

func TestResolveAudioRemoteSuccess(t *testing.T) {
	audio, vision, tools := testConfigs()
	payload := mediaServer(t, []byte("fake-ogg-bytes"))
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.Header.Get("Content-Type"), "multipart/form-data")
		_, _ = w.Write([]byte(`{"text": "remote transcript"}`))
	}))
	t.Cleanup(remote.Close)

	audio.RemoteEnabled = true
	audio.RemoteURL = remote.URL
	runner := &fakeRunner{}
	r := NewResolver(nil, runner, audio, vision, tools)

	env := channel.Envelope{Audio: &channel.MediaRef{URL: payload.URL}}
	got, err := r.Resolve(context.Background(), inboundWith(env))
	require.NoError(t, err)
	assert.Equal(t, "remote transcript", got.Text)
	assert.Empty(t, runner.calls)
}

func TestResolveAudioBothPathsFail(t *testing.T) {
	audio, vision, tools := testConfigs()
	payload := mediaServer(t, []byte("fake-ogg-bytes"))
	runner := &fakeRunner{errs: map[string]error{
		"stt_local.py": errors.New("whisper exploded"),
	}}
	r := NewResolver(nil, runner, audio, vision, tools)

	env := channel.Envelope{Audio: &channel.MediaRef{URL: payload.URL}}
	_, err := r.Resolve(context.Background(), inboundWith(env))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTranscription)
}

func TestResolveAudioLocalUnconfigured(t *testing.T) {
	audio, vision, tools := testConfigs()
	audio.LocalScript = ""
	payload := mediaServer(t, []byte("fake-ogg-bytes"))
	runner := &fakeRunner{}
	r := NewResolver(nil, runner, audio, vision, tools)

	env := channel.Envelope{Audio: &channel.MediaRef{URL: payload.URL}}
	_, err := r.Resolve(context.Background(), inboundWith(env))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTranscription)
	assert.Contains(t, err.Error(), "local transcription not configured")
	assert.Empty(t, runner.calls, "no tool job should run without a configured script")
}

func TestResolveAudioDisabledSkips(t *testing.T) {
	audio, vision, tools := testConfigs()
	audio.Enabled = false
	r := NewResolver(nil, &fakeRunner{}, audio, vision, tools)

	env := channel.Envelope{Audio: &channel.MediaRef{URL: "https://example.invalid/a.ogg"}}
	got, err := r.Resolve(context.Background(), inboundWith(env))
	require.NoError(t, err)
	assert.Equal(t, SourceNone, got.Source)
}

func TestResolveImageFanOutIsolation(t *testing.T) {
	audio, vision, tools := testConfigs()
	srv := mediaServer(t, []byte("fake-jpeg"))
	runner := &fakeRunner{
		results: map[string]tool.Result{
			"ocr_local.py": textResult("SALE 50% OFF"),
			"vlm_local.py": textResult("a storefront with a red banner"),
		},
		errs: map[string]error{
			"yolo_local.py": errors.New("model weights missing"),
		},
	}
	r := NewResolver(nil, runner, audio, vision, tools)

	env := channel.Envelope{
		Image:   &channel.MediaRef{URL: srv.URL},
		Caption: "what is this?",
	}
	got, err := r.Resolve(context.Background(), inboundWith(env))
	require.NoError(t, err)
	assert.Equal(t, SourceImage, got.Source)
	assert.Contains(t, got.Text, "a storefront with a red banner")
	assert.Contains(t, got.Text, "SALE 50% OFF")
	assert.Contains(t, got.Text, "what is this?")
	assert.Contains(t, got.Text, "not available")
}

func TestResolveImageDetectionSummary(t *testing.T) {
	audio, vision, tools := testConfigs()
	srv := mediaServer(t, []byte("fake-jpeg"))
	runner := &fakeRunner{
		results: map[string]tool.Result{
			"ocr_local.py": textResult("ignored"),
			"vlm_local.py": textResult("ignored"),
			"yolo_local.py": {Fields: map[string]any{
				"ok": true,
				"detections": []any{
					map[string]any{"label": "person", "confidence": 0.9},
					map[string]any{"label": "person", "confidence": 0.7},
					map[string]any{"label": "dog", "confidence": 0.8},
				},
			}},
		},
	}
	r := NewResolver(nil, runner, audio, vision, tools)

	env := channel.Envelope{Image: &channel.MediaRef{URL: srv.URL}}
	got, err := r.Resolve(context.Background(), inboundWith(env))
	require.NoError(t, err)
	assert.Contains(t, got.Text, "person x2 (avg conf 0.80)")
	assert.Contains(t, got.Text, "dog x1 (avg conf 0.80)")
	// person outranks dog by frequency
	assert.Less(t, strings.Index(got.Text, "person x2"), strings.Index(got.Text, "dog x1"))
}

func TestResolveImageRequireEvidence(t *testing.T) {
	audio, vision, tools := testConfigs()
	vision.RequireEvidence = true
	srv := mediaServer(t, []byte("fake-jpeg"))
	runner := &fakeRunner{errs: map[string]error{
		"ocr_local.py":  errors.New("down"),
		"vlm_local.py":  errors.New("down"),
		"yolo_local.py": errors.New("down"),
	}}
	r := NewResolver(nil, runner, audio, vision, tools)

	env := channel.Envelope{Image: &channel.MediaRef{URL: srv.URL}}
	got, err := r.Resolve(context.Background(), inboundWith(env))
	require.NoError(t, err)
	assert.Equal(t, SourceNoEvidence, got.Source)
	assert.Empty(t, got.Text)
}

func TestResolveImageDeclaredOversize(t *testing.T) {
	audio, vision, tools := testConfigs()
	r := NewResolver(nil, &fakeRunner{}, audio, vision, tools)

	env := channel.Envelope{Image: &channel.MediaRef{
		URL:          "https://example.invalid/p.jpg",
		DeclaredSize: 1 << 20,
	}}
	_, err := r.Resolve(context.Background(), inboundWith(env))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestResolveImageVisionDisabled(t *testing.T) {
	audio, vision, tools := testConfigs()
	vision.Enabled = false
	r := NewResolver(nil, &fakeRunner{}, audio, vision, tools)

	env := channel.Envelope{Image: &channel.MediaRef{URL: "https://example.invalid/p.jpg"}}
	got, err := r.Resolve(context.Background(), inboundWith(env))
	require.NoError(t, err)
	assert.Equal(t, SourceNone, got.Source)
}

func TestResolveImageDownloadFailureDegrades(t *testing.T) {
	audio, vision, tools := testConfigs()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	r := NewResolver(nil, &fakeRunner{}, audio, vision, tools)

	env := channel.Envelope{Image: &channel.MediaRef{URL: srv.URL}, Caption: "see attached"}
	got, err := r.Resolve(context.Background(), inboundWith(env))
	require.NoError(t, err)
	assert.Equal(t, SourceImage, got.Source)
	assert.Contains(t, got.Text, "see attached")
	assert.Contains(t, got.Text, "not available")
}
