// Package tool runs local analysis tools as subprocesses speaking a JSON
// stdin/stdout contract.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Job describes one subprocess invocation. Payload is serialized as a
// single JSON line on the tool's stdin.
type Job struct {
	Program string
	Script  string
	Payload any
	Timeout time.Duration
}

// Result is the tool's decoded success payload. The tool marks success
// with an "ok": true field; everything else in the object is tool-specific.
type Result struct {
	Fields map[string]any
}

// Text returns the string value of a field, empty when absent.
func (r Result) Text(field string) string {
	v, ok := r.Fields[field]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Runner executes tool jobs.
type Runner struct {
	logger *slog.Logger
}

func NewRunner(log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{logger: log.With(slog.String("service", "tool"))}
}

// Run executes the job and returns its parsed result. The process receives
// the payload as one JSON line on stdin, then stdin is closed. Exceeding
// the timeout kills the process and returns an error wrapping ErrTimeout.
func (r *Runner) Run(ctx context.Context, job Job) (Result, error) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return Result{}, fmt.Errorf("encode payload: %w", err)
	}

	var args []string
	program := job.Program
	if strings.TrimSpace(job.Script) != "" {
		args = append(args, job.Script)
	}
	cmd := exec.CommandContext(runCtx, program, args...)
	// Bound the post-kill wait so orphaned grandchildren holding the
	// stdout/stderr pipes cannot stall Run past the timeout.
	cmd.WaitDelay = time.Second
	cmd.Stdin = bytes.NewReader(append(payload, '\n'))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	r.logger.Debug("tool finished",
		slog.String("script", job.Script),
		slog.Duration("elapsed", elapsed),
		slog.Bool("failed", runErr != nil),
	)

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{}, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, job.Script)
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return Result{}, fmt.Errorf("%w: %s: %v", ErrSpawn, program, runErr)
		}
		// Non-zero exit still often carries a JSON failure payload; prefer
		// its error message over the raw exit status.
		if fields, ok := parseOutput(stdout.String()); ok {
			return Result{}, fmt.Errorf("%w: %s", ErrToolReported, failureDetail(fields, stderr.String(), stdout.String(), exitErr))
		}
		return Result{}, fmt.Errorf("%w: %s", ErrExit, failureDetail(nil, stderr.String(), stdout.String(), exitErr))
	}

	fields, ok := parseOutput(stdout.String())
	if !ok {
		return Result{}, fmt.Errorf("%w: %s: %s", ErrBadOutput, job.Script, truncate(strings.TrimSpace(stdout.String()), 200))
	}
	if okFlag, _ := fields["ok"].(bool); !okFlag {
		return Result{}, fmt.Errorf("%w: %s", ErrToolReported, failureDetail(fields, stderr.String(), stdout.String(), nil))
	}
	return Result{Fields: fields}, nil
}

// parseOutput tolerates diagnostic logging mixed into stdout. Strategies
// in order: whole output, last non-empty line, substring from the last '{'.
func parseOutput(out string) (map[string]any, bool) {
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, false
	}

	if fields, ok := tryJSON(out); ok {
		return fields, true
	}

	lines := strings.Split(out, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if fields, ok := tryJSON(line); ok {
			return fields, true
		}
		break
	}

	if idx := strings.LastIndex(out, "{"); idx >= 0 {
		if fields, ok := tryJSON(out[idx:]); ok {
			return fields, true
		}
	}
	return nil, false
}

func tryJSON(s string) (map[string]any, bool) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return nil, false
	}
	return fields, true
}

// failureDetail picks the most specific failure description available:
// payload error, stderr, raw stdout, exit status.
func failureDetail(fields map[string]any, stderr, stdout string, exitErr *exec.ExitError) string {
	if fields != nil {
		if msg, _ := fields["error"].(string); strings.TrimSpace(msg) != "" {
			return strings.TrimSpace(msg)
		}
	}
	if s := strings.TrimSpace(stderr); s != "" {
		return truncate(s, 400)
	}
	if s := strings.TrimSpace(stdout); s != "" {
		return truncate(s, 400)
	}
	if exitErr != nil {
		return exitErr.Error()
	}
	return "no output"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
