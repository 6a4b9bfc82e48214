package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/llamabridge/llamabridge/internal/config"
	"github.com/llamabridge/llamabridge/internal/media"
	"github.com/llamabridge/llamabridge/internal/tool"
)

// ImageGenerator drives the local image-generation tool for /image.
type ImageGenerator struct {
	cfg    config.ImageGenConfig
	tools  config.ToolsConfig
	runner media.Runner
	logger *slog.Logger
}

// NewImageGenerator creates the /image backend. Returns a value even when
// disabled so the command can answer with a notice.
func NewImageGenerator(log *slog.Logger, runner media.Runner, cfg config.ImageGenConfig, tools config.ToolsConfig) *ImageGenerator {
	if log == nil {
		log = slog.Default()
	}
	return &ImageGenerator{
		cfg:    cfg,
		tools:  tools,
		runner: runner,
		logger: log.With(slog.String("service", "imagegen")),
	}
}

func (g *ImageGenerator) enabled() bool {
	return g.cfg.Enabled
}

// generate runs the image tool and returns the path of the produced file.
func (g *ImageGenerator) generate(ctx context.Context, prompt string) (string, error) {
	if err := os.MkdirAll(g.cfg.OutputDir, 0o755); err != nil {
		return "", err
	}
	outputPath := filepath.Join(g.cfg.OutputDir, uuid.NewString()+".png")

	script := g.cfg.Script
	if !filepath.IsAbs(script) {
		script = filepath.Join(g.tools.ScriptsDir, script)
	}
	res, err := g.runner.Run(ctx, tool.Job{
		Program: g.tools.Python,
		Script:  script,
		Payload: map[string]any{
			"prompt":      prompt,
			"output_path": outputPath,
		},
		Timeout: g.tools.Timeout(),
	})
	if err != nil {
		return "", err
	}

	path := strings.TrimSpace(res.Text("image_path"))
	if path == "" {
		path = outputPath
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("generated image missing: %w", err)
	}
	g.logger.Info("image generated", slog.String("path", path))
	return path, nil
}
