package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestRunSuccess(t *testing.T) {
	script := writeScript(t, `printf '{"ok": true, "text": "transcribed words"}'`)
	runner := NewRunner(nil)

	res, err := runner.Run(context.Background(), Job{
		Program: script,
		Payload: map[string]any{"audio_path": "/tmp/a.ogg"},
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "transcribed words", res.Text("text"))
}

func TestRunNoisyStdout(t *testing.T) {
	script := writeScript(t, `
echo "loading model..."
echo "warning: cuda not available"
printf '{"ok": true, "text": "still fine"}\n'
`)
	runner := NewRunner(nil)

	res, err := runner.Run(context.Background(), Job{Program: script, Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "still fine", res.Text("text"))
}

func TestRunTrailingBraceStrategy(t *testing.T) {
	// JSON glued to log text on the same line; only the last-brace
	// strategy can recover it.
	script := writeScript(t, `printf 'progress 100%% done {"ok": true, "text": "salvaged"}'`)
	runner := NewRunner(nil)

	res, err := runner.Run(context.Background(), Job{Program: script, Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "salvaged", res.Text("text"))
}

func TestRunTimeout(t *testing.T) {
	script := writeScript(t, `sleep 10`)
	runner := NewRunner(nil)

	start := time.Now()
	_, err := runner.Run(context.Background(), Job{Program: script, Timeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunSpawnError(t *testing.T) {
	runner := NewRunner(nil)

	_, err := runner.Run(context.Background(), Job{
		Program: filepath.Join(t.TempDir(), "does-not-exist"),
		Timeout: time.Second,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSpawn)
}

func TestRunToolReportedFailure(t *testing.T) {
	script := writeScript(t, `
printf '{"ok": false, "error": "ffmpeg not found in PATH"}'
exit 1
`)
	runner := NewRunner(nil)

	_, err := runner.Run(context.Background(), Job{Program: script, Timeout: 5 * time.Second})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolReported)
	assert.Contains(t, err.Error(), "ffmpeg not found in PATH")
}

func TestRunNonZeroExitStderr(t *testing.T) {
	script := writeScript(t, `
echo "traceback: kaboom" >&2
exit 3
`)
	runner := NewRunner(nil)

	_, err := runner.Run(context.Background(), Job{Program: script, Timeout: 5 * time.Second})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExit)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRunBadOutput(t *testing.T) {
	script := writeScript(t, `echo "not json at all"`)
	runner := NewRunner(nil)

	_, err := runner.Run(context.Background(), Job{Program: script, Timeout: 5 * time.Second})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadOutput)
}

func TestRunOkFalseWithoutError(t *testing.T) {
	script := writeScript(t, `printf '{"ok": false}'`)
	runner := NewRunner(nil)

	_, err := runner.Run(context.Background(), Job{Program: script, Timeout: 5 * time.Second})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolReported)
}

func TestRunReceivesPayloadOnStdin(t *testing.T) {
	script := writeScript(t, `
read line
printf '{"ok": true, "echoed": %s}' "$line"
`)
	runner := NewRunner(nil)

	res, err := runner.Run(context.Background(), Job{
		Program: script,
		Payload: map[string]any{"image_path": "/tmp/x.jpg"},
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	echoed, ok := res.Fields["echoed"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/tmp/x.jpg", echoed["image_path"])
}

func TestParseOutputStrategies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		out  string
		ok   bool
	}{
		{name: "whole output", out: `{"ok": true}`, ok: true},
		{name: "last line", out: "log one\nlog two\n{\"ok\": true}\n", ok: true},
		{name: "last brace", out: `junk {"ok": true}`, ok: true},
		{name: "empty", out: "", ok: false},
		{name: "plain text", out: "hello world", ok: false},
		{name: "truncated json", out: `{"ok": tr`, ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, ok := parseOutput(tt.out)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
