package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/backstage/services/esign/config"
	"example.com/backstage/services/esign/internal/cache"
	"example.com/backstage/services/esign/internal/database"
	"example.com/backstage/services/esign/internal/metrics"
	"example.com/backstage/services/esign/internal/notify"
	"example.com/backstage/services/esign/internal/provider"
	"example.com/backstage/services/esign/internal/repository"
	"example.com/backstage/services/esign/internal/service"
	"example.com/backstage/services/esign/internal/storage"
	"example.com/backstage/services/esign/internal/tracing"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Start the background worker running the expiration sweep, artifact retry sweep and notification dispatch`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}
	repo := repository.New(db)

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		redisCache, _ = cache.NewRedisCache(config.RedisConfig{Enabled: false})
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer, _ = tracing.NewTracer(config.TracingConfig{})
	}

	store, err := storage.NewFileStore(cfg.Storage)
	if err != nil {
		return err
	}

	var notifier notify.Notifier
	if cfg.ServiceBus.ConnectionString != "" {
		notifier, err = notify.NewServiceBusNotifier(cfg.ServiceBus)
		if err != nil {
			return err
		}
		defer notifier.Close()
	} else {
		log.Warn().Msg("Service Bus not configured, notification dispatch disabled")
	}

	metricsCollector := metrics.NewMetrics()
	providerClient := provider.NewClient(cfg.Provider)

	orchestrator := service.NewOrchestrator(
		repo, providerClient, store, redisCache, notifier, metricsCollector, tracer, cfg.Worker)

	g.Go(func() error {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		batch := cfg.Worker.SweepBatchSize

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Worker.ExpirySweepInterval),
			gocron.NewTask(func() {
				if err := orchestrator.SweepExpired(ctx, batch); err != nil {
					log.Error().Err(err).Msg("Expiration sweep failed")
				}
			}),
		)
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Worker.ArtifactRetryInterval),
			gocron.NewTask(func() {
				if err := orchestrator.SweepArtifactRetries(ctx, batch); err != nil {
					log.Error().Err(err).Msg("Artifact retry sweep failed")
				}
			}),
		)
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Worker.DispatchInterval),
			gocron.NewTask(func() {
				if err := orchestrator.DispatchNotifications(ctx, batch); err != nil {
					log.Error().Err(err).Msg("Notification dispatch failed")
				}
			}),
		)
		if err != nil {
			return err
		}

		log.Info().Msg("Starting background sweeps")
		scheduler.Start()

		<-ctx.Done()
		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
