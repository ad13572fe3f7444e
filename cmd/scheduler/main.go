package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-scheduler/internal/app"
	"github.com/hackgods/clinic-scheduler/internal/appointment"
	"github.com/hackgods/clinic-scheduler/internal/config"
	"github.com/hackgods/clinic-scheduler/internal/inbound"
	"github.com/hackgods/clinic-scheduler/internal/jobs"
	"github.com/hackgods/clinic-scheduler/internal/logging"
)

func main() {
	var once bool

	rootCmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Runs reminders, sweeps and the inbound SMS consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(once)
		},
	}
	rootCmd.Flags().BoolVar(&once, "once", false, "run due jobs and sweeps a single time and exit")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(once bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Env, cfg.LogLevel)
	logger.Info().
		Str("env", cfg.Env).
		Dur("sweep_interval", cfg.SweepInterval).
		Dur("poll_interval", cfg.JobPollInterval).
		Msg("scheduler starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(rootCtx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("open store")
		return err
	}
	defer store.Close()

	rdb, err := app.OpenRedis(rootCtx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("redis connection error")
		return err
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing redis")
		}
	}()

	notifications, err := app.NewNotifications(cfg, store.Repo, logger)
	if err != nil {
		logger.Error().Err(err).Msg("notifications")
		return err
	}
	defer notifications.Close()

	engine := app.NewEngine(rdb, cfg, logger)
	svc := appointment.NewService(store.Repo, engine, notifications.Notifier, nil, cfg.Policy(), logger)
	svc.RegisterJobs(engine, cfg.SweepInterval)

	if once {
		engine.Tick(rootCtx)
		logger.Info().Msg("single pass complete")
		return nil
	}

	g, ctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		return engine.Run(ctx)
	})
	g.Go(func() error {
		return consumeInbound(ctx, cfg, store.Repo, svc, notifications, logger)
	})

	err = g.Wait()
	logger.Info().Msg("shutdown signal received, scheduler stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func consumeInbound(ctx context.Context, cfg config.Config, repo appointment.Repository, svc *appointment.Service, n *app.Notifications, logger zerolog.Logger) error {
	if cfg.RabbitMQURL == "" {
		logger.Warn().Msg("RABBITMQ_URL not set, inbound SMS consumer disabled")
		return nil
	}

	processor := inbound.NewProcessor(repo, svc, n.Notifier, logger)
	consumer, err := inbound.NewConsumer(cfg.RabbitMQURL, cfg.InboundQueue, processor, logger)
	if err != nil {
		return err
	}
	defer consumer.Close()

	return consumer.Run(ctx)
}

var _ appointment.JobRegistry = (*jobs.Engine)(nil)
