// Package config loads the bridge configuration from a TOML file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath       = "config.toml"
	DefaultStatusAddr       = ":8099"
	DefaultHistoryPath      = "data/history.json"
	DefaultActiveChatsPath  = "data/active_chats.json"
	DefaultMaxTurns         = 12
	DefaultMaxHistoryChars  = 6000
	DefaultDebounceSeconds  = 2
	DefaultTemperature      = 0.7
	DefaultMaxTokens        = 512
	DefaultChunkSize        = 3500
	DefaultChunkDelayMillis = 400
	DefaultToolTimeout      = 120
	DefaultEndpointTimeout  = 60
	DefaultAudioMaxBytes    = 16 * 1024 * 1024
	DefaultImageMaxBytes    = 8 * 1024 * 1024
	DefaultOCRCharBudget    = 1200
	DefaultVLMCharBudget    = 1200
	DefaultDetectionTopN    = 5
	DefaultSystemPrompt     = "You are a helpful assistant replying inside a chat app. Keep answers short and concrete."
)

type Config struct {
	Log       LogConfig        `toml:"log"`
	Server    ServerConfig     `toml:"server"`
	Chat      ChatConfig       `toml:"chat"`
	History   HistoryConfig    `toml:"history"`
	Endpoints []EndpointConfig `toml:"endpoints" validate:"min=1,dive"`
	Tools     ToolsConfig      `toml:"tools"`
	Audio     AudioConfig      `toml:"audio"`
	Vision    VisionConfig     `toml:"vision"`
	ImageGen  ImageGenConfig   `toml:"imagegen"`
	Telegram  TelegramConfig   `toml:"telegram"`
	Discord   DiscordConfig    `toml:"discord"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig configures the local status HTTP surface.
type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// ChatConfig controls reply behavior and chat gating.
type ChatConfig struct {
	SystemPrompt     string  `toml:"system_prompt"`
	Temperature      float64 `toml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens        int     `toml:"max_tokens" validate:"gt=0"`
	ChunkSize        int     `toml:"chunk_size" validate:"gt=0"`
	ChunkDelayMillis int     `toml:"chunk_delay_ms" validate:"gte=0"`
	// GateMode is one of "open", "allowlist", "active".
	GateMode        string   `toml:"gate_mode" validate:"oneof=open allowlist active"`
	AllowList       []string `toml:"allow_list"`
	ActiveChatsPath string   `toml:"active_chats_path"`
}

type HistoryConfig struct {
	Path            string `toml:"path"`
	MaxTurns        int    `toml:"max_turns" validate:"gt=0"`
	MaxChars        int    `toml:"max_chars" validate:"gt=0"`
	DebounceSeconds int    `toml:"debounce_seconds" validate:"gte=0"`
}

// EndpointConfig describes one completion backend. Order in the TOML array
// is failover priority.
type EndpointConfig struct {
	Name           string `toml:"name" validate:"required"`
	BaseURL        string `toml:"base_url" validate:"required,url"`
	Model          string `toml:"model" validate:"required"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"gte=0"`
}

// ToolsConfig locates the local analysis tool scripts.
type ToolsConfig struct {
	Python         string `toml:"python"`
	ScriptsDir     string `toml:"scripts_dir"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"gt=0"`
}

type AudioConfig struct {
	Enabled  bool  `toml:"enabled"`
	MaxBytes int64 `toml:"max_bytes" validate:"gt=0"`
	// Remote transcription endpoint (OpenAI-compatible audio API). When
	// disabled or failing, the local STT script is used instead.
	RemoteEnabled bool   `toml:"remote_enabled"`
	RemoteURL     string `toml:"remote_url"`
	RemoteAPIKey  string `toml:"remote_api_key"`
	RemoteModel   string `toml:"remote_model"`
	LocalScript   string `toml:"local_script"`
}

type VisionConfig struct {
	Enabled         bool   `toml:"enabled"`
	MaxBytes        int64  `toml:"max_bytes" validate:"gt=0"`
	OCRScript       string `toml:"ocr_script"`
	DescribeScript  string `toml:"describe_script"`
	DetectScript    string `toml:"detect_script"`
	OCRCharBudget   int    `toml:"ocr_char_budget" validate:"gt=0"`
	VLMCharBudget   int    `toml:"vlm_char_budget" validate:"gt=0"`
	DetectionTopN   int    `toml:"detection_top_n" validate:"gt=0"`
	RequireEvidence bool   `toml:"require_evidence"`
}

type ImageGenConfig struct {
	Enabled   bool   `toml:"enabled"`
	Script    string `toml:"script"`
	OutputDir string `toml:"output_dir"`
}

type TelegramConfig struct {
	Enabled bool   `toml:"enabled"`
	Token   string `toml:"token"`
}

type DiscordConfig struct {
	Enabled bool   `toml:"enabled"`
	Token   string `toml:"token"`
}

func (e EndpointConfig) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return DefaultEndpointTimeout * time.Second
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

func (h HistoryConfig) Debounce() time.Duration {
	if h.DebounceSeconds <= 0 {
		return DefaultDebounceSeconds * time.Second
	}
	return time.Duration(h.DebounceSeconds) * time.Second
}

func (t ToolsConfig) Timeout() time.Duration {
	if t.TimeoutSeconds <= 0 {
		return DefaultToolTimeout * time.Second
	}
	return time.Duration(t.TimeoutSeconds) * time.Second
}

func (c ChatConfig) ChunkDelay() time.Duration {
	return time.Duration(c.ChunkDelayMillis) * time.Millisecond
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultStatusAddr,
		},
		Chat: ChatConfig{
			SystemPrompt:     DefaultSystemPrompt,
			Temperature:      DefaultTemperature,
			MaxTokens:        DefaultMaxTokens,
			ChunkSize:        DefaultChunkSize,
			ChunkDelayMillis: DefaultChunkDelayMillis,
			GateMode:         "open",
			ActiveChatsPath:  DefaultActiveChatsPath,
		},
		History: HistoryConfig{
			Path:            DefaultHistoryPath,
			MaxTurns:        DefaultMaxTurns,
			MaxChars:        DefaultMaxHistoryChars,
			DebounceSeconds: DefaultDebounceSeconds,
		},
		Endpoints: []EndpointConfig{
			{
				Name:    "local",
				BaseURL: "http://127.0.0.1:8080/v1",
				Model:   "default",
			},
		},
		Tools: ToolsConfig{
			Python:         "python3",
			ScriptsDir:     "tools",
			TimeoutSeconds: DefaultToolTimeout,
		},
		Audio: AudioConfig{
			MaxBytes:    DefaultAudioMaxBytes,
			LocalScript: "stt_local.py",
		},
		Vision: VisionConfig{
			MaxBytes:       DefaultImageMaxBytes,
			OCRScript:      "ocr_local.py",
			DescribeScript: "vlm_local.py",
			DetectScript:   "yolo_local.py",
			OCRCharBudget:  DefaultOCRCharBudget,
			VLMCharBudget:  DefaultVLMCharBudget,
			DetectionTopN:  DefaultDetectionTopN,
		},
		ImageGen: ImageGenConfig{
			Script:    "image_local.py",
			OutputDir: "data/generated",
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
