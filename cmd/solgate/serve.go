package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"solgate/internal/chain"
	"solgate/internal/channel"
	"solgate/internal/config"
	"solgate/internal/data"
	"solgate/internal/engine"
	"solgate/internal/gateway"
	"solgate/internal/provider"
	"solgate/internal/session"
	"solgate/internal/store"
	"solgate/internal/transfer"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway and enabled channels",
		Long:  "Starts the HTTP gateway and, when enabled, the Telegram channel. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	// .env is optional; environment wins over defaults via ${VAR} expansion
	// in the config file.
	_ = godotenv.Load()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.General.LogLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(config.ExpandPath(cfg.Database.Path), logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	llm := provider.NewOpenAI(provider.OpenAIConfig{
		APIKey:  cfg.Providers.OpenAI.APIKey,
		APIBase: cfg.Providers.OpenAI.APIBase,
		Model:   cfg.Providers.OpenAI.Model,
		Logger:  logger,
	})
	market := provider.NewMarket(
		provider.NewExpand(provider.ExpandConfig{
			APIKey:  cfg.Providers.Expand.APIKey,
			APIBase: cfg.Providers.Expand.APIBase,
			Logger:  logger,
		}),
		provider.NewTracker(provider.TrackerConfig{
			APIKey:  cfg.Providers.Tracker.APIKey,
			APIBase: cfg.Providers.Tracker.APIBase,
			Logger:  logger,
		}),
	)
	chainClient := chain.NewClient(chain.Config{
		RPCURL:         cfg.Chain.RPCURL,
		Cluster:        cfg.Chain.Cluster,
		Commitment:     cfg.Chain.Commitment,
		ConfirmTimeout: time.Duration(cfg.Chain.ConfirmTimeoutSeconds) * time.Second,
		Logger:         logger,
	})

	sessions := session.NewMemoryStore(logger)
	dataSvc := data.NewService(st, market, llm, logger)
	machine := transfer.NewMachine(sessions, st, chainClient, cfg.Transfer.EstimatedFeeLamports, logger)
	eng := engine.New(sessions, dataSvc, machine, llm, st, logger)

	server := gateway.NewServer(cfg.Server, eng, dataSvc, machine, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		tg := channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			Logger:    logger,
		}, eng)
		g.Go(func() error {
			return tg.Run(gctx)
		})
		logger.Info("telegram channel enabled")
	} else {
		logger.Info("telegram channel disabled")
	}

	logger.Info("solgate started", "version", gateway.Version)
	return g.Wait()
}
