package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/esign/config"
	"example.com/backstage/services/esign/internal/api/handlers"
	"example.com/backstage/services/esign/internal/api/middleware"
	"example.com/backstage/services/esign/internal/metrics"
	"example.com/backstage/services/esign/internal/repository"
	"example.com/backstage/services/esign/internal/service"
	"example.com/backstage/services/esign/internal/tracing"
	"example.com/backstage/services/esign/internal/webhook"
)

// Server represents the HTTP server
type Server struct {
	config     config.Config
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	orchestrator *service.Orchestrator,
	repo repository.Repository,
	verifier *webhook.Verifier,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *Server {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	signingHandler := handlers.NewSigningHandler(orchestrator, tracer)
	webhookHandler := handlers.NewWebhookHandler(orchestrator, verifier, metricsCollector, tracer)
	metricsHandler := handlers.NewMetricsHandler(metricsCollector)

	authed := router.Group("/", middleware.APIKeyAuth(repo))
	signingHandler.RegisterRoutes(authed)

	webhookHandler.RegisterRoutes(router)
	metricsHandler.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return &Server{
		config: cfg,
		router: router,
		httpServer: &http.Server{
			Addr:    cfg.ServerAddress,
			Handler: router,
		},
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}
	return nil
}
