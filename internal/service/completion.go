package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/esign/internal/metrics"
	"example.com/backstage/services/esign/internal/models"
	"example.com/backstage/services/esign/internal/repository"
)

// complete runs the completion pipeline inside the transition that flips the
// request to completed. The status flip itself is the exactly-once guard:
// only the transition that causes entry into completed reaches this code.
// A failed artifact fetch leaves the request completed with the retry flag
// set; the signing fact is not reversible.
func (o *Orchestrator) complete(tx repository.TransitionTx, initiatorEmail string) error {
	request := tx.Request()
	if request.Status == models.RequestCompleted {
		return nil
	}

	now := time.Now().UTC()
	request.Status = models.RequestCompleted
	request.CompletedAt = &now

	o.fetchAndStoreArtifact(tx.Request())

	if err := tx.SetDocumentStatus(models.DocumentSigned); err != nil {
		return err
	}

	// Notification outbox rows are unique per (request, recipient, kind),
	// so a later retry path cannot re-notify anyone.
	recipients := make([]string, 0, len(tx.Signatories())+1)
	if initiatorEmail != "" {
		recipients = append(recipients, initiatorEmail)
	}
	for _, s := range tx.Signatories() {
		recipients = append(recipients, s.Email)
	}
	for _, recipient := range recipients {
		err := tx.EnqueueNotification(&models.NotificationDispatch{
			Recipient: recipient,
			Kind:      models.DispatchRequestCompleted,
		})
		if err != nil {
			return err
		}
	}

	if err := tx.SaveRequest(); err != nil {
		return err
	}

	log.Info().
		Str("request_id", request.ID.String()).
		Bool("artifact_pending", request.ArtifactRetry).
		Msg("Signing request completed")
	return nil
}

// fetchAndStoreArtifact runs completion steps 1 and 2. Failures set the
// retry flag on the request instead of propagating; the sweep re-attempts.
func (o *Orchestrator) fetchAndStoreArtifact(request *models.SigningRequest) {
	if request.EnvelopeRef == nil {
		request.ArtifactRetry = true
		return
	}

	// Bounded independently of the caller: completion must not hang on a
	// slow provider while holding the row lock.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	artifact, err := o.provider.FetchSignedArtifact(ctx, *request.EnvelopeRef)
	if err != nil {
		log.Warn().
			Err(err).
			Str("request_id", request.ID.String()).
			Msg("Failed to fetch signed artifact, flagged for retry")
		request.ArtifactRetry = true
		return
	}

	ref, err := o.store.SaveArtifact(ctx, request.ID, artifact)
	if err != nil {
		log.Warn().
			Err(err).
			Str("request_id", request.ID.String()).
			Msg("Failed to persist signed artifact, flagged for retry")
		request.ArtifactRetry = true
		return
	}

	request.ArtifactRef = &ref
	request.ArtifactRetry = false
}

// RetryArtifactFetch re-attempts completion steps 1-2 for a completed
// request whose artifact is still missing. Parties notified at completion
// time are not re-notified.
func (o *Orchestrator) RetryArtifactFetch(ctx context.Context, requestID uuid.UUID) error {
	err := o.repo.Transition(ctx, requestID, func(tx repository.TransitionTx) error {
		request := tx.Request()
		if request.Status != models.RequestCompleted || !request.ArtifactRetry {
			return &ConflictError{Reason: "signing request has no pending artifact fetch"}
		}
		o.fetchAndStoreArtifact(request)
		return tx.SaveRequest()
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Resource: "signing request"}
		}
		return err
	}
	o.invalidate(ctx, requestID)
	return nil
}

// SweepArtifactRetries re-attempts artifact fetches for all flagged
// requests. Safe to run repeatedly.
func (o *Orchestrator) SweepArtifactRetries(ctx context.Context, batchSize int) error {
	requests, err := o.repo.FindArtifactRetryRequests(ctx, batchSize)
	if err != nil {
		return err
	}
	for _, request := range requests {
		if err := o.RetryArtifactFetch(ctx, request.ID); err != nil {
			var conflict *ConflictError
			if errors.As(err, &conflict) {
				continue
			}
			log.Error().
				Err(err).
				Str("request_id", request.ID.String()).
				Msg("Artifact retry failed")
		}
	}
	return nil
}

// DispatchNotifications drains the outbox onto the notification queue. The
// outbox row is only marked sent after the send succeeds, so delivery is
// at-least-once; the unique dispatch key makes redelivery idempotent
// downstream.
func (o *Orchestrator) DispatchNotifications(ctx context.Context, batchSize int) error {
	if o.notifier == nil {
		return nil
	}
	dispatches, err := o.repo.ListPendingDispatches(ctx, batchSize)
	if err != nil {
		return err
	}
	for i := range dispatches {
		d := &dispatches[i]
		if err := o.notifier.Send(ctx, d); err != nil {
			log.Error().
				Err(err).
				Str("dispatch_id", d.ID.String()).
				Msg("Notification dispatch failed, will retry")
			continue
		}
		if err := o.repo.MarkDispatchSent(ctx, d.ID); err != nil {
			return err
		}
		o.metrics.Increment(metrics.CounterNotificationsSent)
	}
	return nil
}
