package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/esign/internal/service"
)

// ErrorResponse defines the structure of an error response
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// writeError maps the service error taxonomy onto HTTP responses. Anything
// outside the taxonomy is an internal error and is logged, not leaked.
func writeError(c *gin.Context, err error) {
	var (
		validation *service.ValidationError
		forbidden  *service.ForbiddenError
		conflict   *service.ConflictError
		notFound   *service.NotFoundError
		provider   *service.ProviderError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: validation.Reason, Code: "VALIDATION_ERROR"})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Message: forbidden.Reason, Code: "FORBIDDEN"})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, ErrorResponse{Message: conflict.Reason, Code: "CONFLICT"})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: notFound.Error(), Code: "NOT_FOUND"})
	case errors.As(err, &provider):
		c.JSON(http.StatusBadGateway, ErrorResponse{Message: "signing provider unavailable", Code: "PROVIDER_ERROR"})
	default:
		log.Error().Err(err).Msg("Unhandled error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Internal server error", Code: "INTERNAL_ERROR"})
	}
}
