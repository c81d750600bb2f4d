package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// EventKind is the closed set of provider event kinds this engine acts on.
// Anything else decodes to KindUnknown and is accepted without a transition
// so new provider event types do not break ingestion.
type EventKind string

const (
	KindSignerSigned      EventKind = "signer.signed"
	KindNextSignerReady   EventKind = "signer.next_ready"
	KindDocumentCompleted EventKind = "envelope.completed"
	KindUnknown           EventKind = "unknown"
)

// Event is a verified, decoded provider webhook event
type Event struct {
	ProviderEventID string
	Kind            EventKind
	RawKind         string
	EnvelopeRef     string
	SignerRef       string
	Timestamp       time.Time
}

type payload struct {
	EventID     string `json:"event_id"`
	Kind        string `json:"kind"`
	EnvelopeRef string `json:"envelope_ref"`
	SignerRef   string `json:"signer_ref"`
	Timestamp   string `json:"timestamp"`
}

// Decode parses a raw provider payload into an Event. Unrecognized kinds map
// to KindUnknown rather than failing; a missing envelope ref is an error
// because nothing can be routed without it.
func Decode(raw []byte) (*Event, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Wrap(err, "failed to decode webhook payload")
	}
	if p.EnvelopeRef == "" {
		return nil, errors.New("webhook payload missing envelope ref")
	}

	ev := &Event{
		ProviderEventID: p.EventID,
		RawKind:         p.Kind,
		EnvelopeRef:     p.EnvelopeRef,
		SignerRef:       p.SignerRef,
	}

	switch p.Kind {
	case string(KindSignerSigned):
		ev.Kind = KindSignerSigned
	case string(KindNextSignerReady):
		ev.Kind = KindNextSignerReady
	case string(KindDocumentCompleted):
		ev.Kind = KindDocumentCompleted
	default:
		ev.Kind = KindUnknown
	}

	if p.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, p.Timestamp)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse webhook timestamp")
		}
		ev.Timestamp = ts
	} else {
		ev.Timestamp = time.Now().UTC()
	}

	return ev, nil
}

// Key returns the idempotency ledger key. The provider's event id is used
// when present; otherwise a deterministic hash of the event content with the
// timestamp truncated to the second, so retried deliveries of the same event
// collapse to one key.
func (e *Event) Key() string {
	if e.ProviderEventID != "" {
		return e.ProviderEventID
	}
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d",
		e.EnvelopeRef, e.SignerRef, e.RawKind, e.Timestamp.Truncate(time.Second).Unix())))
	return hex.EncodeToString(h[:])
}
