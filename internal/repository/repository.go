package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/backstage/services/esign/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEvent is returned when the idempotency ledger already
	// holds the event key
	ErrDuplicateEvent = errors.New("event already processed")
	// ErrActiveRequestExists is returned when the partial unique index on
	// non-terminal requests rejects a second active request for a document
	ErrActiveRequestExists = errors.New("document already has an active signing request")
)

// TransitionFunc computes and applies one state transition while the signing
// request row is locked. Everything it writes through the TransitionTx is
// committed atomically with the ledger entry, or not at all.
type TransitionFunc func(tx TransitionTx) error

// TransitionTx is the view of a signing request held under a row lock for
// the duration of one transition.
type TransitionTx interface {
	// Request returns the locked signing request row
	Request() *models.SigningRequest
	// Signatories returns the request's signatories ordered by position
	Signatories() []models.Signatory
	// RecordEvent inserts an idempotency ledger row; returns
	// ErrDuplicateEvent when the event key already exists
	RecordEvent(ev *models.ProcessedEvent) error
	// SaveRequest persists mutations made to the locked request
	SaveRequest() error
	// SaveSignatory persists mutations made to one signatory
	SaveSignatory(s *models.Signatory) error
	// SetDocumentStatus updates the parent document's status
	SetDocumentStatus(status models.DocumentStatus) error
	// EnqueueNotification inserts an outbox row; duplicates on the
	// (request, recipient, kind) key are silently dropped
	EnqueueNotification(d *models.NotificationDispatch) error
}

// Repository defines the data access required by the orchestrator
type Repository interface {
	GetUserByAPIKey(ctx context.Context, key string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	GetDocumentByID(ctx context.Context, id uuid.UUID) (*models.Document, error)

	CreateSigningRequest(ctx context.Context, req *models.SigningRequest, signatories []models.Signatory) error
	GetSigningRequestByID(ctx context.Context, id uuid.UUID) (*models.SigningRequest, error)
	FindRequestIDByEnvelopeRef(ctx context.Context, envelopeRef string) (uuid.UUID, error)
	FindActiveRequestByDocumentID(ctx context.Context, documentID uuid.UUID) (*models.SigningRequest, error)
	SaveProviderRegistration(ctx context.Context, req *models.SigningRequest, signatories []models.Signatory) error

	Transition(ctx context.Context, requestID uuid.UUID, fn TransitionFunc) error

	FindExpiredRequests(ctx context.Context, now time.Time, limit int) ([]models.SigningRequest, error)
	FindArtifactRetryRequests(ctx context.Context, limit int) ([]models.SigningRequest, error)

	ListPendingDispatches(ctx context.Context, limit int) ([]models.NotificationDispatch, error)
	MarkDispatchSent(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// New creates a gorm-backed repository
func New(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetUserByAPIKey(ctx context.Context, key string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("api_key = ?", key).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get user by API key")
	}
	return &user, nil
}

func (r *repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get user by email")
	}
	return &user, nil
}

func (r *repository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get user by ID")
	}
	return &user, nil
}

func (r *repository) GetDocumentByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get document by ID")
	}
	return &doc, nil
}

// CreateSigningRequest persists the request and its signatories in one
// transaction so the request is never visible without its signer slots. The
// partial unique index on non-terminal requests is the authority for the
// one-active-request-per-document invariant; a concurrent create that loses
// surfaces as ErrActiveRequestExists.
func (r *repository) CreateSigningRequest(ctx context.Context, req *models.SigningRequest, signatories []models.Signatory) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return err
		}
		if err := tx.Create(&signatories).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrActiveRequestExists
		}
		return errors.Wrap(err, "failed to create signing request")
	}
	req.Signatories = signatories
	return nil
}

func (r *repository) GetSigningRequestByID(ctx context.Context, id uuid.UUID) (*models.SigningRequest, error) {
	var req models.SigningRequest
	err := r.db.WithContext(ctx).
		Preload("Signatories", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&req, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get signing request by ID")
	}
	return &req, nil
}

func (r *repository) FindRequestIDByEnvelopeRef(ctx context.Context, envelopeRef string) (uuid.UUID, error) {
	var req models.SigningRequest
	err := r.db.WithContext(ctx).
		Select("id").
		Where("envelope_ref = ?", envelopeRef).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, errors.Wrap(err, "failed to find signing request by envelope ref")
	}
	return req.ID, nil
}

// FindActiveRequestByDocumentID resolves "the document's current signing
// request" as a derived query over non-terminal statuses.
func (r *repository) FindActiveRequestByDocumentID(ctx context.Context, documentID uuid.UUID) (*models.SigningRequest, error) {
	var req models.SigningRequest
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Where("status IN ?", []models.RequestStatus{models.RequestPending, models.RequestInProgress}).
		Order("created_at DESC").
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to find active signing request")
	}
	return &req, nil
}

// SaveProviderRegistration records the provider envelope ref, signer refs
// and signing URLs after a successful provider registration.
func (r *repository) SaveProviderRegistration(ctx context.Context, req *models.SigningRequest, signatories []models.Signatory) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.SigningRequest{}).
			Where("id = ?", req.ID).
			Update("envelope_ref", req.EnvelopeRef).Error; err != nil {
			return err
		}
		for i := range signatories {
			s := &signatories[i]
			if err := tx.Model(&models.Signatory{}).
				Where("id = ?", s.ID).
				Updates(map[string]interface{}{
					"signer_ref":  s.SignerRef,
					"signing_url": s.SigningURL,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to save provider registration")
	}
	return nil
}

// transitionTx implements TransitionTx over a gorm transaction holding a
// FOR UPDATE lock on the signing request row.
type transitionTx struct {
	tx          *gorm.DB
	request     *models.SigningRequest
	signatories []models.Signatory
}

func (t *transitionTx) Request() *models.SigningRequest { return t.request }
func (t *transitionTx) Signatories() []models.Signatory { return t.signatories }

func (t *transitionTx) RecordEvent(ev *models.ProcessedEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if err := t.tx.Create(ev).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEvent
		}
		return errors.Wrap(err, "failed to record processed event")
	}
	return nil
}

func (t *transitionTx) SaveRequest() error {
	if err := t.tx.Save(t.request).Error; err != nil {
		return errors.Wrap(err, "failed to save signing request")
	}
	return nil
}

func (t *transitionTx) SaveSignatory(s *models.Signatory) error {
	if err := t.tx.Save(s).Error; err != nil {
		return errors.Wrap(err, "failed to save signatory")
	}
	return nil
}

func (t *transitionTx) SetDocumentStatus(status models.DocumentStatus) error {
	err := t.tx.Model(&models.Document{}).
		Where("id = ?", t.request.DocumentID).
		Update("status", status).Error
	if err != nil {
		return errors.Wrap(err, "failed to update document status")
	}
	return nil
}

func (t *transitionTx) EnqueueNotification(d *models.NotificationDispatch) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.SigningRequestID = t.request.ID
	err := t.tx.Clauses(clause.OnConflict{DoNothing: true}).Create(d).Error
	if err != nil {
		return errors.Wrap(err, "failed to enqueue notification dispatch")
	}
	return nil
}

// Transition runs fn with the signing request row locked FOR UPDATE. All
// writes made through the TransitionTx commit atomically; a duplicate ledger
// insert aborts the transaction with ErrDuplicateEvent.
func (r *repository) Transition(ctx context.Context, requestID uuid.UUID, fn TransitionFunc) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.SigningRequest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&req, "id = ?", requestID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return errors.Wrap(err, "failed to lock signing request")
		}

		var signatories []models.Signatory
		err = tx.Where("signing_request_id = ?", requestID).
			Order("position ASC").
			Find(&signatories).Error
		if err != nil {
			return errors.Wrap(err, "failed to load signatories")
		}

		return fn(&transitionTx{tx: tx, request: &req, signatories: signatories})
	})
}

func (r *repository) FindExpiredRequests(ctx context.Context, now time.Time, limit int) ([]models.SigningRequest, error) {
	var requests []models.SigningRequest
	err := r.db.WithContext(ctx).
		Where("status IN ?", []models.RequestStatus{models.RequestPending, models.RequestInProgress}).
		Where("expires_at IS NOT NULL AND expires_at < ?", now).
		Limit(limit).
		Find(&requests).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find expired signing requests")
	}
	return requests, nil
}

func (r *repository) FindArtifactRetryRequests(ctx context.Context, limit int) ([]models.SigningRequest, error) {
	var requests []models.SigningRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", models.RequestCompleted).
		Where("artifact_retry = ?", true).
		Limit(limit).
		Find(&requests).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to find artifact retry requests")
	}
	return requests, nil
}

func (r *repository) ListPendingDispatches(ctx context.Context, limit int) ([]models.NotificationDispatch, error) {
	var dispatches []models.NotificationDispatch
	err := r.db.WithContext(ctx).
		Where("sent = ?", false).
		Order("created_at ASC").
		Limit(limit).
		Find(&dispatches).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list pending dispatches")
	}
	return dispatches, nil
}

func (r *repository) MarkDispatchSent(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Model(&models.NotificationDispatch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"sent": true, "sent_at": &now}).Error
	if err != nil {
		return errors.Wrap(err, "failed to mark dispatch sent")
	}
	return nil
}
