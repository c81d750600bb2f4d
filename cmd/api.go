package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/backstage/services/esign/config"
	"example.com/backstage/services/esign/internal/api"
	"example.com/backstage/services/esign/internal/cache"
	"example.com/backstage/services/esign/internal/database"
	"example.com/backstage/services/esign/internal/metrics"
	"example.com/backstage/services/esign/internal/notify"
	"example.com/backstage/services/esign/internal/provider"
	"example.com/backstage/services/esign/internal/repository"
	"example.com/backstage/services/esign/internal/service"
	"example.com/backstage/services/esign/internal/storage"
	"example.com/backstage/services/esign/internal/tracing"
	"example.com/backstage/services/esign/internal/webhook"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long:  `Start the HTTP API server handling signing requests and provider webhooks`,
	RunE:  runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
}

func runAPI(cmd *cobra.Command, args []string) error {
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

	db, err := database.Connect(cfg.DB)
	if err != nil {
		return err
	}
	if err := database.AutoMigrate(db); err != nil {
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
		log.Warn().Msg("Service Bus not configured, notifications will stay queued")
	}

	verifier, err := webhook.NewVerifier(cfg.Provider.WebhookSecret)
	if err != nil {
		return err
	}

	metricsCollector := metrics.NewMetrics()
	providerClient := provider.NewClient(cfg.Provider)

	orchestrator := service.NewOrchestrator(
		repo, providerClient, store, redisCache, notifier, metricsCollector, tracer, cfg.Worker)

	server := api.NewServer(cfg, orchestrator, repo, verifier, metricsCollector, tracer)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}()

	<-ctx.Done()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutting down API server")
	return nil
}
