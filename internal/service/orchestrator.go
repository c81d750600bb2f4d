package service

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/esign/config"
	"example.com/backstage/services/esign/internal/cache"
	"example.com/backstage/services/esign/internal/metrics"
	"example.com/backstage/services/esign/internal/models"
	"example.com/backstage/services/esign/internal/notify"
	"example.com/backstage/services/esign/internal/provider"
	"example.com/backstage/services/esign/internal/repository"
	"example.com/backstage/services/esign/internal/storage"
	"example.com/backstage/services/esign/internal/tracing"
	"example.com/backstage/services/esign/internal/webhook"
)

// maxSigners caps the signer list on a single request
const maxSigners = 10

const requestCacheTTL = 30 * time.Second

// EventOutcome is the result of applying one provider event
type EventOutcome string

const (
	// OutcomeApplied means the event caused a state transition
	OutcomeApplied EventOutcome = "applied"
	// OutcomeDuplicate means the idempotency ledger already held the event
	OutcomeDuplicate EventOutcome = "duplicate"
	// OutcomeIgnored means the event was recorded but produced no
	// transition (terminal request, unknown signer, already-true fact)
	OutcomeIgnored EventOutcome = "ignored"
)

// Orchestrator owns the signing request state machine. All mutation of a
// request and its signatories goes through repository.Transition, which
// serializes concurrent callers per request id.
type Orchestrator struct {
	repo           repository.Repository
	provider       provider.Client
	store          storage.ArtifactStore
	cache          *cache.RedisCache
	notifier       notify.Notifier
	metrics        *metrics.Metrics
	tracer         tracing.Tracer
	remindCooldown time.Duration
}

// NewOrchestrator creates the signing orchestrator
func NewOrchestrator(
	repo repository.Repository,
	providerClient provider.Client,
	store storage.ArtifactStore,
	redisCache *cache.RedisCache,
	notifier notify.Notifier,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
	workerCfg config.WorkerConfig,
) *Orchestrator {
	return &Orchestrator{
		repo:           repo,
		provider:       providerClient,
		store:          store,
		cache:          redisCache,
		notifier:       notifier,
		metrics:        metricsCollector,
		tracer:         tracer,
		remindCooldown: workerCfg.RemindCooldown,
	}
}

// SignerEntry is one requested signer, in intended signing order
type SignerEntry struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CreateRequestInput carries everything needed to start a signing workflow
type CreateRequestInput struct {
	DocumentID   uuid.UUID
	Signers      []SignerEntry
	OrderingMode models.OrderingMode
	Message      string
	ExpiresAt    *time.Time
}

// CreateRequest validates the input, persists the request with its
// signatories and registers the envelope with the signing provider. A
// provider failure leaves the request pending with no provider references;
// it stays retry-eligible and is never silently lost.
func (o *Orchestrator) CreateRequest(ctx context.Context, actor *models.User, input CreateRequestInput) (*models.SigningRequest, error) {
	txn := o.tracer.StartTransaction("create-signing-request")
	defer o.tracer.EndTransaction(txn)
	start := time.Now()

	if err := validateSigners(input.Signers); err != nil {
		return nil, err
	}
	switch input.OrderingMode {
	case models.OrderingSequential, models.OrderingParallel:
	default:
		return nil, &ValidationError{Reason: "ordering mode must be sequential or parallel"}
	}

	doc, err := o.repo.GetDocumentByID(ctx, input.DocumentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "document"}
		}
		return nil, err
	}
	if doc.OwnerID != actor.ID {
		return nil, &ForbiddenError{Reason: "only the document owner may request signatures"}
	}

	// One non-terminal request per document. This read gives the friendly
	// error; the database's partial unique index is what makes the invariant
	// hold under concurrent creates.
	if _, err := o.repo.FindActiveRequestByDocumentID(ctx, doc.ID); err == nil {
		return nil, &ConflictError{Reason: "document already has an active signing request"}
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	request := &models.SigningRequest{
		ID:           uuid.New(),
		DocumentID:   doc.ID,
		InitiatorID:  actor.ID,
		OrderingMode: input.OrderingMode,
		Message:      input.Message,
		ExpiresAt:    input.ExpiresAt,
		Status:       models.RequestPending,
	}

	signatories := make([]models.Signatory, 0, len(input.Signers))
	for i, signer := range input.Signers {
		status := models.SignatoryWaiting
		if input.OrderingMode == models.OrderingParallel || i == 0 {
			status = models.SignatoryReadyToSign
		}
		s := models.Signatory{
			ID:               uuid.New(),
			SigningRequestID: request.ID,
			Email:            strings.ToLower(strings.TrimSpace(signer.Email)),
			Name:             signer.Name,
			Position:         i + 1,
			Status:           status,
		}
		// Link to a platform account when the email matches one
		if user, err := o.repo.GetUserByEmail(ctx, s.Email); err == nil {
			s.UserID = &user.ID
		}
		signatories = append(signatories, s)
	}

	if err := o.repo.CreateSigningRequest(ctx, request, signatories); err != nil {
		if errors.Is(err, repository.ErrActiveRequestExists) {
			return nil, &ConflictError{Reason: "document already has an active signing request"}
		}
		o.tracer.RecordError(txn, err)
		return nil, err
	}

	o.metrics.Increment(metrics.CounterRequestsCreated)
	log.Info().
		Str("request_id", request.ID.String()).
		Str("document_id", doc.ID.String()).
		Int("signers", len(signatories)).
		Str("ordering", string(input.OrderingMode)).
		Msg("Signing request created")

	if err := o.registerWithProvider(ctx, request, signatories, doc); err != nil {
		// The request stays pending without provider refs; the caller can
		// retry registration or cancel. Never lost, never half-registered.
		o.tracer.RecordError(txn, err)
		log.Warn().
			Err(err).
			Str("request_id", request.ID.String()).
			Msg("Provider registration failed, request remains retry-eligible")
	} else if err := o.enqueueReadyNotifications(ctx, request.ID); err != nil {
		log.Warn().
			Err(err).
			Str("request_id", request.ID.String()).
			Msg("Failed to enqueue signature-needed notifications")
	}

	o.metrics.ObserveDuration("create_request", time.Since(start))
	return request, nil
}

func validateSigners(signers []SignerEntry) error {
	if len(signers) == 0 {
		return &ValidationError{Reason: "signer list is empty"}
	}
	if len(signers) > maxSigners {
		return &ValidationError{Reason: "signer list exceeds the maximum of 10"}
	}
	seen := make(map[string]int, len(signers))
	for i, s := range signers {
		email := strings.ToLower(strings.TrimSpace(s.Email))
		if email == "" {
			return &ValidationError{Reason: "signer email is required"}
		}
		if _, err := mail.ParseAddress(email); err != nil {
			return &ValidationError{Reason: "invalid signer email: " + s.Email}
		}
		if _, ok := seen[email]; ok {
			return &ValidationError{Reason: "duplicate signer email with conflicting order: " + email}
		}
		seen[email] = i
	}
	return nil
}

// registerWithProvider uploads the document and registers signer slots. The
// envelope ref and signer refs are persisted together only after the whole
// registration succeeds.
func (o *Orchestrator) registerWithProvider(ctx context.Context, request *models.SigningRequest, signatories []models.Signatory, doc *models.Document) error {
	content, err := o.store.Load(ctx, doc.StoragePath)
	if err != nil {
		return &ProviderError{Op: "upload", Err: err}
	}

	envelopeRef, err := o.provider.UploadDocument(ctx, content, doc.Title)
	if err != nil {
		return &ProviderError{Op: "upload", Err: err}
	}

	inputs := make([]provider.SignerInput, 0, len(signatories))
	for _, s := range signatories {
		inputs = append(inputs, provider.SignerInput{
			Name:     s.Name,
			Email:    s.Email,
			Position: s.Position,
		})
	}

	slots, err := o.provider.CreateSignerSlots(ctx, envelopeRef, inputs, request.ExpiresAt)
	if err != nil {
		return &ProviderError{Op: "register signers", Err: err}
	}

	byPosition := make(map[int]provider.SignerSlot, len(slots))
	for _, slot := range slots {
		byPosition[slot.Position] = slot
	}
	for i := range signatories {
		slot, ok := byPosition[signatories[i].Position]
		if !ok {
			return &ProviderError{Op: "register signers", Err: errors.Errorf("provider returned no slot for position %d", signatories[i].Position)}
		}
		ref := slot.Ref
		url := slot.SigningURL
		signatories[i].SignerRef = &ref
		signatories[i].SigningURL = &url
	}

	request.EnvelopeRef = &envelopeRef
	if err := o.repo.SaveProviderRegistration(ctx, request, signatories); err != nil {
		return err
	}
	request.Signatories = signatories
	return nil
}

// RetryProviderRegistration re-attempts a failed provider registration for a
// pending request that has no envelope yet. Only the initiator may retry.
func (o *Orchestrator) RetryProviderRegistration(ctx context.Context, actor *models.User, requestID uuid.UUID) error {
	request, err := o.repo.GetSigningRequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Resource: "signing request"}
		}
		return err
	}
	if request.InitiatorID != actor.ID {
		return &ForbiddenError{Reason: "only the initiator may retry registration"}
	}
	if request.Status.IsTerminal() {
		return &ConflictError{Reason: "signing request is no longer active"}
	}
	if request.EnvelopeRef != nil {
		return nil
	}
	doc, err := o.repo.GetDocumentByID(ctx, request.DocumentID)
	if err != nil {
		return err
	}
	if err := o.registerWithProvider(ctx, request, request.Signatories, doc); err != nil {
		return err
	}
	return o.enqueueReadyNotifications(ctx, request.ID)
}

// enqueueReadyNotifications tells every currently ready signatory that their
// signature is needed. Runs after provider registration so signing URLs
// exist; the outbox key makes it idempotent across registration retries.
func (o *Orchestrator) enqueueReadyNotifications(ctx context.Context, requestID uuid.UUID) error {
	return o.repo.Transition(ctx, requestID, func(tx repository.TransitionTx) error {
		for _, s := range tx.Signatories() {
			if s.Status != models.SignatoryReadyToSign {
				continue
			}
			err := tx.EnqueueNotification(&models.NotificationDispatch{
				Recipient: s.Email,
				Kind:      models.DispatchSignatureNeeded,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetRequest returns the current state of a signing request. Only the
// initiator or a listed signatory may view it. Expiration is evaluated
// lazily: a request past its expiry reads as expired even before the sweep
// has persisted the transition.
func (o *Orchestrator) GetRequest(ctx context.Context, actor *models.User, id uuid.UUID) (*models.SigningRequest, error) {
	request, err := o.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}

	if !o.mayView(actor, request) {
		return nil, &ForbiddenError{Reason: "not a party to this signing request"}
	}

	request.Status = request.EffectiveStatus(time.Now())
	return request, nil
}

// ProviderStatus returns the provider's own view of the envelope. Useful for
// diagnosing drift between local state and the provider; local state stays
// authoritative for ordering either way.
func (o *Orchestrator) ProviderStatus(ctx context.Context, actor *models.User, id uuid.UUID) (*provider.EnvelopeStatus, error) {
	request, err := o.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.InitiatorID != actor.ID {
		return nil, &ForbiddenError{Reason: "only the initiator may query provider status"}
	}
	if request.EnvelopeRef == nil {
		return nil, &ConflictError{Reason: "signing request is not registered with the provider"}
	}

	status, err := o.provider.FetchStatus(ctx, *request.EnvelopeRef)
	if err != nil {
		return nil, &ProviderError{Op: "fetch status", Err: err}
	}
	return status, nil
}

func (o *Orchestrator) loadRequest(ctx context.Context, id uuid.UUID) (*models.SigningRequest, error) {
	key := cache.GetRequestCacheKey(id)
	var cached models.SigningRequest
	if err := o.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	request, err := o.repo.GetSigningRequestByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Resource: "signing request"}
		}
		return nil, err
	}

	if err := o.cache.Set(ctx, key, request, requestCacheTTL); err != nil {
		log.Debug().Err(err).Msg("Failed to cache signing request")
	}
	return request, nil
}

func (o *Orchestrator) mayView(actor *models.User, request *models.SigningRequest) bool {
	if request.InitiatorID == actor.ID {
		return true
	}
	email := strings.ToLower(actor.Email)
	for _, s := range request.Signatories {
		if s.UserID != nil && *s.UserID == actor.ID {
			return true
		}
		if s.Email == email {
			return true
		}
	}
	return false
}

// Cancel moves a request into the terminal cancelled state. Only the
// initiator may cancel; cancelling a terminal request is a conflict.
func (o *Orchestrator) Cancel(ctx context.Context, actor *models.User, requestID uuid.UUID) error {
	err := o.repo.Transition(ctx, requestID, func(tx repository.TransitionTx) error {
		request := tx.Request()
		if request.InitiatorID != actor.ID {
			return &ForbiddenError{Reason: "only the initiator may cancel"}
		}
		if request.Status.IsTerminal() {
			return &ConflictError{Reason: "signing request is already " + string(request.Status)}
		}
		request.Status = models.RequestCancelled
		return tx.SaveRequest()
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Resource: "signing request"}
		}
		return err
	}

	o.invalidate(ctx, requestID)
	o.metrics.Increment(metrics.CounterRequestsCancelled)
	log.Info().Str("request_id", requestID.String()).Msg("Signing request cancelled")
	return nil
}

// Remind dispatches a reminder to a signatory who is currently expected to
// sign. The checks and the send run under the request's row lock so a
// concurrent signed event cannot slip between check and dispatch; the redis
// cooldown hook rate-limits repeats.
func (o *Orchestrator) Remind(ctx context.Context, actor *models.User, requestID, signatoryID uuid.UUID) error {
	err := o.repo.Transition(ctx, requestID, func(tx repository.TransitionTx) error {
		request := tx.Request()
		if request.InitiatorID != actor.ID {
			return &ForbiddenError{Reason: "only the initiator may send reminders"}
		}
		if request.Status.IsTerminal() || request.EffectiveStatus(time.Now()) == models.RequestExpired {
			return &ConflictError{Reason: "signing request is no longer active"}
		}

		signatories := tx.Signatories()
		var target *models.Signatory
		for i := range signatories {
			if signatories[i].ID == signatoryID {
				target = &signatories[i]
				break
			}
		}
		if target == nil {
			return &NotFoundError{Resource: "signatory"}
		}
		if target.Status != models.SignatoryReadyToSign {
			return &ConflictError{Reason: "not currently awaiting this signer"}
		}

		allowed, err := o.cache.AllowRemind(ctx, target.ID, o.remindCooldown)
		if err != nil {
			return err
		}
		if !allowed {
			return &ConflictError{Reason: "a reminder was sent to this signer recently"}
		}

		if o.notifier == nil {
			log.Warn().Str("signatory_id", target.ID.String()).Msg("No notifier configured, reminder dropped")
			return nil
		}
		dispatch := &models.NotificationDispatch{
			SigningRequestID: request.ID,
			Recipient:        target.Email,
			Kind:             models.DispatchReminder,
		}
		if err := o.notifier.Send(ctx, dispatch); err != nil {
			return errors.Wrap(err, "failed to dispatch reminder")
		}

		o.metrics.Increment(metrics.CounterNotificationsSent)
		log.Info().
			Str("request_id", request.ID.String()).
			Str("signatory_id", target.ID.String()).
			Msg("Reminder dispatched")
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &NotFoundError{Resource: "signing request"}
		}
		return err
	}
	return nil
}

// ApplyProviderEvent applies one verified provider event to the state
// machine. The transition is computed from persisted state under a row lock,
// never from the order events happened to arrive in; the ledger insert in
// the same transaction suppresses duplicates.
func (o *Orchestrator) ApplyProviderEvent(ctx context.Context, ev *webhook.Event) (EventOutcome, error) {
	txn := o.tracer.StartTransaction("apply-provider-event")
	defer o.tracer.EndTransaction(txn)
	o.tracer.AddAttribute(txn, "event_kind", string(ev.Kind))

	// Unknown kinds still go through the ledger path below: the contract is
	// that a durably recorded payload answers success, duplicates included.
	if ev.Kind == webhook.KindUnknown {
		o.metrics.Increment(metrics.CounterEventsUnknown)
		log.Info().
			Str("raw_kind", ev.RawKind).
			Str("envelope_ref", ev.EnvelopeRef).
			Msg("Unknown provider event kind, recording without transition")
	}

	requestID, err := o.repo.FindRequestIDByEnvelopeRef(ctx, ev.EnvelopeRef)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			o.metrics.Increment(metrics.CounterEventsIgnored)
			log.Warn().
				Str("envelope_ref", ev.EnvelopeRef).
				Msg("Provider event references unknown envelope, ignoring")
			return OutcomeIgnored, nil
		}
		return "", err
	}

	var (
		outcome   = OutcomeIgnored
		completed bool
	)
	initiatorEmail, err := o.initiatorEmail(ctx, requestID)
	if err != nil {
		return "", err
	}

	ledgerKind := string(ev.Kind)
	if ev.Kind == webhook.KindUnknown {
		ledgerKind = ev.RawKind
	}
	err = o.repo.Transition(ctx, requestID, func(tx repository.TransitionTx) error {
		if err := tx.RecordEvent(&models.ProcessedEvent{
			EventKey:         ev.Key(),
			SigningRequestID: requestID,
			Kind:             ledgerKind,
		}); err != nil {
			return err
		}

		request := tx.Request()
		if request.Status.IsTerminal() {
			// Late or duplicate-content delivery for a settled request.
			// Recorded in the ledger, otherwise ignored.
			log.Info().
				Str("request_id", request.ID.String()).
				Str("status", string(request.Status)).
				Str("event_kind", string(ev.Kind)).
				Msg("Event for terminal request accepted and ignored")
			return nil
		}

		changed, nowComplete, err := o.applyTransition(tx, ev, initiatorEmail)
		if err != nil {
			return err
		}
		if changed {
			outcome = OutcomeApplied
		}
		completed = nowComplete
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEvent) {
			o.metrics.Increment(metrics.CounterEventsDuplicate)
			log.Info().
				Str("request_id", requestID.String()).
				Str("event_key", ev.Key()).
				Msg("Duplicate provider event dropped")
			return OutcomeDuplicate, nil
		}
		o.tracer.RecordError(txn, err)
		return "", err
	}

	o.invalidate(ctx, requestID)
	if outcome == OutcomeApplied {
		o.metrics.Increment(metrics.CounterEventsApplied)
	} else if ev.Kind != webhook.KindUnknown {
		o.metrics.Increment(metrics.CounterEventsIgnored)
	}
	if completed {
		o.metrics.Increment(metrics.CounterRequestsCompleted)
	}
	return outcome, nil
}

// applyTransition mutates the locked request/signatories for one event.
// Returns whether anything changed and whether the request just completed.
func (o *Orchestrator) applyTransition(tx repository.TransitionTx, ev *webhook.Event, initiatorEmail string) (bool, bool, error) {
	request := tx.Request()
	signatories := tx.Signatories()

	switch ev.Kind {
	case webhook.KindSignerSigned:
		target := findBySignerRef(signatories, ev.SignerRef)
		if target == nil {
			log.Warn().
				Str("request_id", request.ID.String()).
				Str("signer_ref", ev.SignerRef).
				Msg("Signed event references unknown signatory, ignoring")
			return false, false, nil
		}
		if target.Status == models.SignatorySigned {
			return false, false, nil
		}

		signedAt := ev.Timestamp
		target.Status = models.SignatorySigned
		target.SignedAt = &signedAt
		if err := tx.SaveSignatory(target); err != nil {
			return false, false, err
		}

		if request.Status == models.RequestPending {
			request.Status = models.RequestInProgress
		}

		if allSigned(signatories) {
			if err := o.complete(tx, initiatorEmail); err != nil {
				return false, false, err
			}
			return true, true, nil
		}

		// Advancement is a pure function of persisted position order; the
		// provider is never authoritative for who signs next.
		if request.OrderingMode == models.OrderingSequential {
			if err := advanceNextSigner(tx, signatories); err != nil {
				return false, false, err
			}
		}
		return true, false, tx.SaveRequest()

	case webhook.KindNextSignerReady:
		// Reconcile the ready set from persisted state. Tolerates this
		// event arriving before its corresponding signed event: replaying
		// from current state either fixes drift or does nothing.
		changed, err := reconcileReady(tx, request, signatories)
		return changed, false, err

	case webhook.KindDocumentCompleted:
		if !allSigned(signatories) {
			// Out-of-order delivery: the final signed event has not been
			// applied yet. Completion will trigger when it arrives.
			log.Info().
				Str("request_id", request.ID.String()).
				Msg("Completed event before all signatures recorded, ignoring")
			return false, false, nil
		}
		if err := o.complete(tx, initiatorEmail); err != nil {
			return false, false, err
		}
		return true, true, nil
	}

	return false, false, nil
}

func findBySignerRef(signatories []models.Signatory, ref string) *models.Signatory {
	if ref == "" {
		return nil
	}
	for i := range signatories {
		if signatories[i].SignerRef != nil && *signatories[i].SignerRef == ref {
			return &signatories[i]
		}
	}
	return nil
}

func allSigned(signatories []models.Signatory) bool {
	for _, s := range signatories {
		if s.Status != models.SignatorySigned {
			return false
		}
	}
	return true
}

// advanceNextSigner moves the lowest-position unsigned signatory to
// ready-to-sign. Signatories are ordered by position.
func advanceNextSigner(tx repository.TransitionTx, signatories []models.Signatory) error {
	for i := range signatories {
		s := &signatories[i]
		if s.Status == models.SignatorySigned {
			continue
		}
		if s.Status != models.SignatoryReadyToSign {
			s.Status = models.SignatoryReadyToSign
			if err := tx.SaveSignatory(s); err != nil {
				return err
			}
			if err := enqueueSignatureNeeded(tx, s.Email); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

func enqueueSignatureNeeded(tx repository.TransitionTx, email string) error {
	return tx.EnqueueNotification(&models.NotificationDispatch{
		Recipient: email,
		Kind:      models.DispatchSignatureNeeded,
	})
}

func reconcileReady(tx repository.TransitionTx, request *models.SigningRequest, signatories []models.Signatory) (bool, error) {
	changed := false
	if request.OrderingMode == models.OrderingParallel {
		for i := range signatories {
			s := &signatories[i]
			if s.Status == models.SignatoryWaiting {
				s.Status = models.SignatoryReadyToSign
				if err := tx.SaveSignatory(s); err != nil {
					return changed, err
				}
				if err := enqueueSignatureNeeded(tx, s.Email); err != nil {
					return changed, err
				}
				changed = true
			}
		}
		return changed, nil
	}

	// Sequential: exactly the lowest-position unsigned signatory is ready
	seenReady := false
	for i := range signatories {
		s := &signatories[i]
		if s.Status == models.SignatorySigned {
			continue
		}
		if !seenReady {
			seenReady = true
			if s.Status != models.SignatoryReadyToSign {
				s.Status = models.SignatoryReadyToSign
				if err := tx.SaveSignatory(s); err != nil {
					return changed, err
				}
				if err := enqueueSignatureNeeded(tx, s.Email); err != nil {
					return changed, err
				}
				changed = true
			}
			continue
		}
		if s.Status != models.SignatoryWaiting {
			s.Status = models.SignatoryWaiting
			if err := tx.SaveSignatory(s); err != nil {
				return changed, err
			}
			changed = true
		}
	}
	return changed, nil
}

func (o *Orchestrator) initiatorEmail(ctx context.Context, requestID uuid.UUID) (string, error) {
	request, err := o.repo.GetSigningRequestByID(ctx, requestID)
	if err != nil {
		return "", err
	}
	initiator, err := o.repo.GetUserByID(ctx, request.InitiatorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return initiator.Email, nil
}

func (o *Orchestrator) invalidate(ctx context.Context, requestID uuid.UUID) {
	if err := o.cache.Invalidate(ctx, cache.GetRequestCacheKey(requestID)); err != nil {
		log.Debug().Err(err).Msg("Failed to invalidate request cache")
	}
}
