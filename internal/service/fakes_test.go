package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/backstage/services/esign/internal/models"
	"example.com/backstage/services/esign/internal/provider"
	"example.com/backstage/services/esign/internal/repository"
)

// fakeRepo is an in-memory Repository with transactional semantics close
// enough to the gorm implementation to exercise the state machine: the
// Transition mutex serializes callers per store, staged writes commit only
// on success, and the processed-event key behaves like a unique index.
type fakeRepo struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*models.User
	docs        map[uuid.UUID]*models.Document
	requests    map[uuid.UUID]*models.SigningRequest
	signatories map[uuid.UUID][]models.Signatory
	events      map[string]models.ProcessedEvent
	dispatches  map[string]models.NotificationDispatch
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:       make(map[uuid.UUID]*models.User),
		docs:        make(map[uuid.UUID]*models.Document),
		requests:    make(map[uuid.UUID]*models.SigningRequest),
		signatories: make(map[uuid.UUID][]models.Signatory),
		events:      make(map[string]models.ProcessedEvent),
		dispatches:  make(map[string]models.NotificationDispatch),
	}
}

func (r *fakeRepo) addUser(u *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

func (r *fakeRepo) addDocument(d *models.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[d.ID] = d
}

func (r *fakeRepo) GetUserByAPIKey(_ context.Context, key string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.APIKey == key {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeRepo) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeRepo) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *fakeRepo) GetDocumentByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (r *fakeRepo) CreateSigningRequest(_ context.Context, req *models.SigningRequest, signatories []models.Signatory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Mirrors the partial unique index on non-terminal requests
	for _, existing := range r.requests {
		if existing.DocumentID == req.DocumentID && !existing.Status.IsTerminal() {
			return repository.ErrActiveRequestExists
		}
	}
	copied := *req
	r.requests[req.ID] = &copied
	r.signatories[req.ID] = append([]models.Signatory(nil), signatories...)
	req.Signatories = signatories
	return nil
}

func (r *fakeRepo) GetSigningRequestByID(_ context.Context, id uuid.UUID) (*models.SigningRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getRequestLocked(id)
}

func (r *fakeRepo) getRequestLocked(id uuid.UUID) (*models.SigningRequest, error) {
	req, ok := r.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *req
	copied.Signatories = append([]models.Signatory(nil), r.signatories[id]...)
	return &copied, nil
}

func (r *fakeRepo) FindRequestIDByEnvelopeRef(_ context.Context, ref string) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, req := range r.requests {
		if req.EnvelopeRef != nil && *req.EnvelopeRef == ref {
			return id, nil
		}
	}
	return uuid.Nil, repository.ErrNotFound
}

func (r *fakeRepo) FindActiveRequestByDocumentID(_ context.Context, docID uuid.UUID) (*models.SigningRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.DocumentID == docID && !req.Status.IsTerminal() {
			copied := *req
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeRepo) SaveProviderRegistration(_ context.Context, req *models.SigningRequest, signatories []models.Signatory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.requests[req.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.EnvelopeRef = req.EnvelopeRef
	r.signatories[req.ID] = append([]models.Signatory(nil), signatories...)
	return nil
}

type fakeTx struct {
	repo             *fakeRepo
	request          *models.SigningRequest
	signatories      []models.Signatory
	stagedEvents     []models.ProcessedEvent
	stagedDocStatus  *models.DocumentStatus
	stagedDispatches []models.NotificationDispatch
}

func (t *fakeTx) Request() *models.SigningRequest { return t.request }
func (t *fakeTx) Signatories() []models.Signatory { return t.signatories }

func (t *fakeTx) RecordEvent(ev *models.ProcessedEvent) error {
	if _, exists := t.repo.events[ev.EventKey]; exists {
		return repository.ErrDuplicateEvent
	}
	for _, staged := range t.stagedEvents {
		if staged.EventKey == ev.EventKey {
			return repository.ErrDuplicateEvent
		}
	}
	t.stagedEvents = append(t.stagedEvents, *ev)
	return nil
}

func (t *fakeTx) SaveRequest() error { return nil }

func (t *fakeTx) SaveSignatory(s *models.Signatory) error {
	for i := range t.signatories {
		if t.signatories[i].ID == s.ID {
			t.signatories[i] = *s
			return nil
		}
	}
	return repository.ErrNotFound
}

func (t *fakeTx) SetDocumentStatus(status models.DocumentStatus) error {
	t.stagedDocStatus = &status
	return nil
}

func (t *fakeTx) EnqueueNotification(d *models.NotificationDispatch) error {
	d.SigningRequestID = t.request.ID
	t.stagedDispatches = append(t.stagedDispatches, *d)
	return nil
}

func dispatchKey(d models.NotificationDispatch) string {
	return fmt.Sprintf("%s:%s:%s", d.SigningRequestID, d.Recipient, d.Kind)
}

func (r *fakeRepo) Transition(_ context.Context, requestID uuid.UUID, fn repository.TransitionFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	working, err := r.getRequestLocked(requestID)
	if err != nil {
		return err
	}
	tx := &fakeTx{
		repo:        r,
		request:     working,
		signatories: working.Signatories,
	}

	if err := fn(tx); err != nil {
		return err
	}

	// Commit staged writes
	working.Signatories = nil
	r.requests[requestID] = working
	r.signatories[requestID] = tx.signatories
	for _, ev := range tx.stagedEvents {
		r.events[ev.EventKey] = ev
	}
	if tx.stagedDocStatus != nil {
		if doc, ok := r.docs[working.DocumentID]; ok {
			doc.Status = *tx.stagedDocStatus
		}
	}
	for _, d := range tx.stagedDispatches {
		key := dispatchKey(d)
		if _, exists := r.dispatches[key]; exists {
			continue
		}
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		r.dispatches[key] = d
	}
	return nil
}

func (r *fakeRepo) FindExpiredRequests(_ context.Context, now time.Time, limit int) ([]models.SigningRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SigningRequest
	for _, req := range r.requests {
		if req.Status.IsTerminal() || req.ExpiresAt == nil || !req.ExpiresAt.Before(now) {
			continue
		}
		out = append(out, *req)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRepo) FindArtifactRetryRequests(_ context.Context, limit int) ([]models.SigningRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SigningRequest
	for _, req := range r.requests {
		if req.Status == models.RequestCompleted && req.ArtifactRetry {
			out = append(out, *req)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) ListPendingDispatches(_ context.Context, limit int) ([]models.NotificationDispatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.NotificationDispatch
	for _, d := range r.dispatches {
		if !d.Sent {
			out = append(out, d)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeRepo) MarkDispatchSent(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, d := range r.dispatches {
		if d.ID == id {
			now := time.Now()
			d.Sent = true
			d.SentAt = &now
			r.dispatches[key] = d
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeRepo) activeRequestCount(docID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, req := range r.requests {
		if req.DocumentID == docID && !req.Status.IsTerminal() {
			n++
		}
	}
	return n
}

func (r *fakeRepo) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *fakeRepo) dispatchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dispatches)
}

func (r *fakeRepo) dispatchCountByKind(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.dispatches {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// fakeProviderClient implements provider.Client against fixed data
type fakeProviderClient struct {
	mu           sync.Mutex
	uploadFails  bool
	slotFails    bool
	artifactFail bool
	uploads      int
	artifacts    int
	artifact     []byte
}

func newFakeProvider() *fakeProviderClient {
	return &fakeProviderClient{artifact: []byte("signed-pdf-bytes")}
}

func (p *fakeProviderClient) UploadDocument(_ context.Context, _ []byte, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.uploadFails {
		return "", fmt.Errorf("provider unavailable")
	}
	p.uploads++
	return fmt.Sprintf("env-%d", p.uploads), nil
}

func (p *fakeProviderClient) CreateSignerSlots(_ context.Context, envelopeRef string, signers []provider.SignerInput, _ *time.Time) ([]provider.SignerSlot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.slotFails {
		return nil, fmt.Errorf("provider unavailable")
	}
	slots := make([]provider.SignerSlot, 0, len(signers))
	for _, s := range signers {
		slots = append(slots, provider.SignerSlot{
			Ref:        fmt.Sprintf("%s-signer-%d", envelopeRef, s.Position),
			Email:      s.Email,
			Position:   s.Position,
			SigningURL: fmt.Sprintf("https://sign.example/%s/%d", envelopeRef, s.Position),
		})
	}
	return slots, nil
}

func (p *fakeProviderClient) FetchStatus(_ context.Context, envelopeRef string) (*provider.EnvelopeStatus, error) {
	return &provider.EnvelopeStatus{EnvelopeRef: envelopeRef, Status: "in_progress"}, nil
}

func (p *fakeProviderClient) FetchSignedArtifact(_ context.Context, _ string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.artifactFail {
		return nil, fmt.Errorf("provider unavailable")
	}
	p.artifacts++
	return p.artifact, nil
}

// fakeStore is an in-memory artifact store
type fakeStore struct {
	mu    sync.Mutex
	docs  map[string][]byte
	saved map[uuid.UUID][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:  map[string][]byte{"docs/contract.pdf": []byte("contract-bytes")},
		saved: make(map[uuid.UUID][]byte),
	}
}

func (s *fakeStore) Load(_ context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.docs[path]
	if !ok {
		return nil, fmt.Errorf("no such document: %s", path)
	}
	return content, nil
}

func (s *fakeStore) SaveArtifact(_ context.Context, requestID uuid.UUID, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[requestID] = content
	return fmt.Sprintf("artifacts/%s.pdf", requestID), nil
}

// fakeNotifier records dispatched notifications
type fakeNotifier struct {
	mu   sync.Mutex
	sent []models.NotificationDispatch
}

func (n *fakeNotifier) Send(_ context.Context, d *models.NotificationDispatch) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, *d)
	return nil
}

func (n *fakeNotifier) Close() error { return nil }

func (n *fakeNotifier) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}
