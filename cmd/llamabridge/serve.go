package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/llamabridge/llamabridge/internal/bridge"
	"github.com/llamabridge/llamabridge/internal/channel"
	"github.com/llamabridge/llamabridge/internal/channel/adapters/discord"
	"github.com/llamabridge/llamabridge/internal/channel/adapters/telegram"
	"github.com/llamabridge/llamabridge/internal/completion"
	"github.com/llamabridge/llamabridge/internal/config"
	"github.com/llamabridge/llamabridge/internal/dedup"
	"github.com/llamabridge/llamabridge/internal/history"
	"github.com/llamabridge/llamabridge/internal/lane"
	"github.com/llamabridge/llamabridge/internal/logger"
	"github.com/llamabridge/llamabridge/internal/media"
	"github.com/llamabridge/llamabridge/internal/server"
	"github.com/llamabridge/llamabridge/internal/tool"
)

const (
	textDedupWindow     = 3 * time.Minute
	deliveryDedupWindow = 6 * time.Hour
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideScheduler,
			provideSuppressor,
			provideRunner,
			provideResolver,
			provideCompletionClient,
			provideHistoryStore,
			provideGate,
			provideImageGenerator,
			provideBridge,
			provideAdapters,
			provideServer,
		),
		fx.Invoke(
			startAdapters,
			startMaintenance,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideScheduler(log *slog.Logger) *lane.Scheduler {
	return lane.NewScheduler(log)
}

func provideSuppressor(log *slog.Logger) *dedup.Suppressor {
	return dedup.NewSuppressor(log, textDedupWindow, deliveryDedupWindow)
}

func provideRunner(log *slog.Logger) *tool.Runner {
	return tool.NewRunner(log)
}

func provideResolver(log *slog.Logger, runner *tool.Runner, cfg config.Config) bridge.Resolver {
	return media.NewResolver(log, runner, cfg.Audio, cfg.Vision, cfg.Tools)
}

func provideCompletionClient(log *slog.Logger, cfg config.Config) bridge.Completer {
	endpoints := make([]completion.Endpoint, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		endpoints = append(endpoints, completion.Endpoint{
			Name:    ep.Name,
			BaseURL: ep.BaseURL,
			Model:   ep.Model,
			APIKey:  ep.APIKey,
			Timeout: ep.Timeout(),
		})
	}
	return completion.NewClient(log, endpoints, cfg.Chat.Temperature, cfg.Chat.MaxTokens)
}

func provideHistoryStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) *history.Store {
	store := history.NewStore(log, cfg.History.Path, cfg.History.MaxTurns, cfg.History.MaxChars, cfg.History.Debounce())
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return store.Close() }})
	return store
}

func provideGate(log *slog.Logger, cfg config.Config) *bridge.Gate {
	return bridge.NewGate(log, cfg.Chat.GateMode, cfg.Chat.AllowList, cfg.Chat.ActiveChatsPath)
}

func provideImageGenerator(log *slog.Logger, runner *tool.Runner, cfg config.Config) *bridge.ImageGenerator {
	return bridge.NewImageGenerator(log, runner, cfg.ImageGen, cfg.Tools)
}

func provideBridge(
	log *slog.Logger,
	cfg config.Config,
	scheduler *lane.Scheduler,
	suppressor *dedup.Suppressor,
	resolver bridge.Resolver,
	completer bridge.Completer,
	store *history.Store,
	gate *bridge.Gate,
	imageGen *bridge.ImageGenerator,
) *bridge.Bridge {
	return bridge.New(log, cfg.Chat, scheduler, suppressor, resolver, completer, store, gate, imageGen)
}

func provideAdapters(log *slog.Logger, cfg config.Config) []channel.Adapter {
	var adapters []channel.Adapter
	if cfg.Telegram.Enabled {
		adapters = append(adapters, telegram.NewAdapter(log, cfg.Telegram.Token, cfg.Chat.ChunkDelay()))
	}
	if cfg.Discord.Enabled {
		adapters = append(adapters, discord.NewAdapter(log, cfg.Discord.Token, cfg.Chat.ChunkDelay()))
	}
	return adapters
}

func provideServer(log *slog.Logger, cfg config.Config, b *bridge.Bridge) *server.Server {
	if !cfg.Server.Enabled {
		return nil
	}
	return server.NewServer(log, cfg.Server.Addr, b)
}

func startAdapters(lc fx.Lifecycle, log *slog.Logger, adapters []channel.Adapter, b *bridge.Bridge, shutdowner fx.Shutdowner) {
	if len(adapters) == 0 {
		log.Warn("no channel adapters enabled")
	}
	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	for _, adapter := range adapters {
		adapter := adapter
		b.RegisterSender(adapter.Type(), adapter)
		lc.Append(fx.Hook{
			OnStart: func(_ context.Context) error {
				go func() {
					if err := adapter.Start(runCtx, b.HandleInbound); err != nil {
						log.Error("adapter stopped",
							slog.String("platform", string(adapter.Type())),
							slog.Any("error", err),
						)
						_ = shutdowner.Shutdown()
					}
				}()
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				cancel()
				return adapter.Stop(stopCtx)
			},
		})
	}
	lc.Append(fx.Hook{
		OnStop: func(stopCtx context.Context) error {
			return b.Drain(stopCtx)
		},
	})
}

// startMaintenance runs the periodic housekeeping: flush the history
// snapshot and drop expired suppression entries.
func startMaintenance(lc fx.Lifecycle, log *slog.Logger, store *history.Store, suppressor *dedup.Suppressor) {
	c := cron.New()
	if _, err := c.AddFunc("@every 5m", func() {
		if err := store.Flush(); err != nil {
			log.Error("scheduled history flush failed", slog.Any("error", err))
		}
	}); err != nil {
		log.Error("schedule history flush failed", slog.Any("error", err))
	}
	if _, err := c.AddFunc("@every 10m", suppressor.Prune); err != nil {
		log.Error("schedule suppressor prune failed", slog.Any("error", err))
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { c.Start(); return nil },
		OnStop: func(ctx context.Context) error {
			select {
			case <-c.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	if srv == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("status server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server stop: %w", err)
			}
			return nil
		},
	})
}
