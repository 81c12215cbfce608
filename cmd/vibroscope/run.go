package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vibroscope/internal/alerts"
	"vibroscope/internal/api"
	"vibroscope/internal/config"
	"vibroscope/internal/engine"
	"vibroscope/internal/ingest"
	"vibroscope/internal/logging"
	"vibroscope/internal/metrics"
	"vibroscope/internal/report"
	"vibroscope/internal/sink"
	"vibroscope/internal/storage"
)

func newRunCmd() *cobra.Command {
	var (
		configPath     string
		reloadInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start ingest, the engine worker, the reporter and the API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, reloadInterval)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "vibroscope.yaml", "config file (YAML or JSON)")
	cmd.Flags().DurationVar(&reloadInterval, "reload-interval", 3*time.Second, "config file poll interval")
	return cmd
}

func run(ctx context.Context, configPath string, reloadInterval time.Duration) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfgManager, err := config.NewManager(config.ResolvePath(configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := cfgManager.Get()
	logger := logging.NewLogger(cfg.LogLevel).With("stream_id", cfg.StreamID)

	profile, err := engine.NewProfile(cfg.Calibration)
	if err != nil {
		return err
	}
	eng, err := engine.NewEngine(profile, engine.Options{
		StreamID:           cfg.StreamID,
		QueueCapacity:      cfg.Engine.QueueCapacity,
		PersistentMismatch: cfg.Engine.PersistentMismatch,
		Logger:             logger,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if store != nil {
		defer store.Close()
		if err := store.Init(ctx); err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		logger.Info("storage enabled", "driver", cfg.Storage.Driver)
	}

	alertsStore := alerts.NewStore(cfg.Sink.StoreLimit)
	metricsStore := metrics.NewStore(0)
	sinks := sink.Multi{sink.NewMemory(alertsStore)}
	if cfg.Sink.Log {
		sinks = append(sinks, sink.NewLog(logger))
	}
	if store != nil {
		sinks = append(sinks, sink.NewStorage(store))
	}
	if cfg.Sink.Kafka.Enabled {
		k := sink.NewKafka(cfg.Sink.Kafka)
		defer k.Close()
		sinks = append(sinks, k)
		logger.Info("kafka alert sink enabled", "brokers", cfg.Sink.Kafka.Brokers, "topic", cfg.Sink.Kafka.Topic)
	}

	reporter := report.NewReporter(eng, cfgManager, metricsStore, store, logger)
	api.Start(ctx, api.New(cfgManager, metricsStore, alertsStore, eng, reporter, logger, version))

	ingest.StartDirectory(ctx, cfgManager, eng, logger)
	ingest.StartTCPStream(ctx, cfgManager, eng, logger)
	ingest.StartKafka(ctx, cfgManager, eng, logger)
	ingest.StartREST(ctx, cfgManager, eng, logger)
	ingest.StartSynthetic(ctx, cfgManager, eng, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx, sinks)
	})
	g.Go(func() error {
		return reporter.Run(gctx)
	})
	g.Go(func() error {
		cfgManager.Watch(reloadInterval, func(next *config.Config) {
			applyReload(eng, next, logger)
		}, func(err error) {
			logger.Warn("config reload failed", "err", err)
		}, gctx.Done())
		return nil
	})
	err = g.Wait()
	logger.Info("shutdown complete", "counters", eng.Stats())
	return err
}

// applyReload swaps a reloaded calibration into the engine. An invalid
// calibration keeps the running one.
func applyReload(eng *engine.Engine, next *config.Config, logger *slog.Logger) {
	profile, err := engine.NewProfile(next.Calibration)
	if err != nil {
		logger.Error("reloaded calibration rejected", "err", err)
		return
	}
	if err := eng.UpdateCalibration(profile); err != nil {
		logger.Error("calibration swap failed", "err", err)
		return
	}
	logger.Info("config reloaded")
}
