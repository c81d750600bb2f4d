package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// OrderingMode controls how signatories are allowed to sign
type OrderingMode string

const (
	OrderingSequential OrderingMode = "sequential"
	OrderingParallel   OrderingMode = "parallel"
)

// RequestStatus is the lifecycle status of a signing request
type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestInProgress RequestStatus = "in_progress"
	RequestCompleted  RequestStatus = "completed"
	RequestExpired    RequestStatus = "expired"
	RequestCancelled  RequestStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestCompleted, RequestExpired, RequestCancelled:
		return true
	}
	return false
}

// SignatoryStatus is the lifecycle status of a single signer slot
type SignatoryStatus string

const (
	SignatoryWaiting     SignatoryStatus = "waiting"
	SignatoryReadyToSign SignatoryStatus = "ready_to_sign"
	SignatorySigned      SignatoryStatus = "signed"
)

// DocumentStatus tracks the parent document
type DocumentStatus string

const (
	DocumentDraft            DocumentStatus = "draft"
	DocumentPendingSignature DocumentStatus = "pending_signature"
	DocumentSigned           DocumentStatus = "signed"
)

// User represents an account on the platform
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Email     string         `gorm:"not null;uniqueIndex" json:"email"`
	Name      string         `gorm:"not null" json:"name"`
	APIKey    string         `gorm:"not null;uniqueIndex" json:"-"`
}

// Document represents a document that can be sent for signing
type Document struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
	OwnerID     uuid.UUID      `gorm:"type:uuid;not null" json:"owner_id"`
	Title       string         `gorm:"not null" json:"title"`
	StoragePath string         `gorm:"not null" json:"-"`
	ContentHash string         `json:"content_hash"`
	Status      DocumentStatus `gorm:"not null;default:'draft'" json:"status"`
	Owner       User           `gorm:"foreignKey:OwnerID" json:"-"`
}

// SigningRequest is one signing workflow for a document. At most one
// non-terminal request may exist per document; the repository enforces this
// as a derived query, not a stored back-pointer.
type SigningRequest struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	// The partial unique index enforces the one-active-request-per-document
	// invariant at the database, so concurrent creates cannot both land.
	DocumentID    uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:idx_one_active_request,where:status = 'pending' OR status = 'in_progress'" json:"document_id"`
	InitiatorID   uuid.UUID      `gorm:"type:uuid;not null" json:"initiator_id"`
	EnvelopeRef   *string        `gorm:"index" json:"envelope_ref,omitempty"`
	OrderingMode  OrderingMode   `gorm:"not null" json:"ordering_mode"`
	Message       string         `json:"message,omitempty"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	ArtifactRef   *string        `json:"artifact_ref,omitempty"`
	ArtifactRetry bool           `gorm:"not null;default:false" json:"-"`
	Status        RequestStatus  `gorm:"not null;default:'pending'" json:"status"`
	Document      Document       `gorm:"foreignKey:DocumentID" json:"-"`
	Initiator     User           `gorm:"foreignKey:InitiatorID" json:"-"`
	Signatories   []Signatory    `gorm:"foreignKey:SigningRequestID" json:"signatories,omitempty"`
}

// EffectiveStatus applies lazy expiration: a non-terminal request past its
// expiry reads as expired even before the sweep has persisted the transition.
func (r *SigningRequest) EffectiveStatus(now time.Time) RequestStatus {
	if !r.Status.IsTerminal() && r.ExpiresAt != nil && r.ExpiresAt.Before(now) {
		return RequestExpired
	}
	return r.Status
}

// Signatory is one required signer within a signing request
type Signatory struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"-"`
	SigningRequestID uuid.UUID       `gorm:"type:uuid;not null;index" json:"signing_request_id"`
	SignerRef        *string         `gorm:"index" json:"signer_ref,omitempty"`
	Email            string          `gorm:"not null" json:"email"`
	Name             string          `gorm:"not null" json:"name"`
	UserID           *uuid.UUID      `gorm:"type:uuid" json:"user_id,omitempty"`
	Position         int             `gorm:"not null" json:"position"`
	SigningURL       *string         `json:"signing_url,omitempty"`
	Status           SignatoryStatus `gorm:"not null;default:'waiting'" json:"status"`
	SignedAt         *time.Time      `json:"signed_at,omitempty"`
}

// ProcessedEvent is the idempotency ledger. The unique index on EventKey is
// the dedup mechanism; a second delivery of the same event fails the insert
// and is dropped before any state change.
type ProcessedEvent struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	EventKey         string    `gorm:"not null;uniqueIndex" json:"event_key"`
	SigningRequestID uuid.UUID `gorm:"type:uuid;not null;index" json:"signing_request_id"`
	Kind             string    `gorm:"not null" json:"kind"`
	AppliedAt        time.Time `gorm:"autoCreateTime" json:"applied_at"`
}

// NotificationDispatch is the at-least-once outbound notification outbox.
// The unique index makes dispatch idempotent per (request, recipient, kind).
type NotificationDispatch struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	SigningRequestID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_dispatch_key" json:"signing_request_id"`
	Recipient        string    `gorm:"not null;uniqueIndex:idx_dispatch_key" json:"recipient"`
	Kind             string    `gorm:"not null;uniqueIndex:idx_dispatch_key" json:"kind"`
	Sent             bool      `gorm:"not null;default:false;index" json:"sent"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
}

// Notification dispatch kinds
const (
	DispatchRequestCompleted = "request_completed"
	DispatchSignatureNeeded  = "signature_needed"
	DispatchReminder         = "reminder"
)

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&User{},
		&Document{},
		&SigningRequest{},
		&Signatory{},
		&ProcessedEvent{},
		&NotificationDispatch{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}
	return nil
}
