package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/backstage/services/esign/internal/metrics"
)

// MetricsHandler exposes the in-process metrics snapshot
type MetricsHandler struct {
	metrics *metrics.Metrics
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(metricsCollector *metrics.Metrics) *MetricsHandler {
	return &MetricsHandler{metrics: metricsCollector}
}

// GetMetrics handles GET /metrics
func (h *MetricsHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

// RegisterRoutes registers the metrics endpoint
func (h *MetricsHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/metrics", h.GetMetrics)
}
