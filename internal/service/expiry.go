package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/backstage/services/esign/internal/metrics"
	"example.com/backstage/services/esign/internal/models"
	"example.com/backstage/services/esign/internal/repository"
)

// SweepExpired persists the expired transition for requests past their
// expiry. Reads already report such requests as expired (lazy evaluation);
// the sweep makes it durable. Running it twice has no additional effect.
func (o *Orchestrator) SweepExpired(ctx context.Context, batchSize int) error {
	now := time.Now()
	requests, err := o.repo.FindExpiredRequests(ctx, now, batchSize)
	if err != nil {
		return err
	}

	for _, candidate := range requests {
		err := o.repo.Transition(ctx, candidate.ID, func(tx repository.TransitionTx) error {
			request := tx.Request()
			// Re-check under the lock; a concurrent completion or cancel
			// wins over expiry.
			if request.Status.IsTerminal() {
				return nil
			}
			if request.ExpiresAt == nil || request.ExpiresAt.After(now) {
				return nil
			}
			request.Status = models.RequestExpired
			if err := tx.SaveRequest(); err != nil {
				return err
			}
			o.metrics.Increment(metrics.CounterRequestsExpired)
			log.Info().Str("request_id", request.ID.String()).Msg("Signing request expired")
			return nil
		})
		if err != nil {
			log.Error().
				Err(err).
				Str("request_id", candidate.ID.String()).
				Msg("Expiry sweep transition failed")
			continue
		}
		o.invalidate(ctx, candidate.ID)
	}
	return nil
}
