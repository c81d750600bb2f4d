package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/backstage/services/esign/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.ProviderConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
}

func TestUploadDocument(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/envelopes", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "contract.pdf", body["filename"])
		content, err := base64.StdEncoding.DecodeString(body["content"])
		require.NoError(t, err)
		assert.Equal(t, []byte("pdf-bytes"), content)

		json.NewEncoder(w).Encode(map[string]string{"envelope_ref": "env-77"})
	})

	ref, err := client.UploadDocument(context.Background(), []byte("pdf-bytes"), "contract.pdf")
	require.NoError(t, err)
	assert.Equal(t, "env-77", ref)
}

func TestUploadDocumentRejectsEmptyRef(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	})
	_, err := client.UploadDocument(context.Background(), []byte("x"), "a.pdf")
	assert.Error(t, err)
}

func TestCreateSignerSlots(t *testing.T) {
	expires := time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/envelopes/env-77/signers", r.URL.Path)

		var body struct {
			Signers   []SignerInput `json:"signers"`
			ExpiresAt string        `json:"expires_at"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Signers, 2)
		assert.Equal(t, "2026-09-15T12:00:00Z", body.ExpiresAt)

		json.NewEncoder(w).Encode(map[string][]SignerSlot{"signers": {
			{Ref: "s-1", Email: "a@example.com", Position: 1, SigningURL: "https://sign/1"},
			{Ref: "s-2", Email: "b@example.com", Position: 2, SigningURL: "https://sign/2"},
		}})
	})

	slots, err := client.CreateSignerSlots(context.Background(), "env-77", []SignerInput{
		{Name: "A", Email: "a@example.com", Position: 1},
		{Name: "B", Email: "b@example.com", Position: 2},
	}, &expires)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "s-2", slots[1].Ref)
	assert.Equal(t, "https://sign/2", slots[1].SigningURL)
}

func TestCreateSignerSlotsCountMismatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string][]SignerSlot{"signers": {{Ref: "s-1", Position: 1}}})
	})
	_, err := client.CreateSignerSlots(context.Background(), "env-1", []SignerInput{
		{Email: "a@example.com", Position: 1},
		{Email: "b@example.com", Position: 2},
	}, nil)
	assert.Error(t, err)
}

func TestFetchStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/envelopes/env-77", r.URL.Path)
		json.NewEncoder(w).Encode(EnvelopeStatus{EnvelopeRef: "env-77", Status: "in_progress", SignedCount: 1})
	})

	status, err := client.FetchStatus(context.Background(), "env-77")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", status.Status)
	assert.Equal(t, 1, status.SignedCount)
}

func TestFetchSignedArtifact(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/envelopes/env-77/artifact", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{
			"content": base64.StdEncoding.EncodeToString([]byte("signed-pdf")),
		})
	})

	artifact, err := client.FetchSignedArtifact(context.Background(), "env-77")
	require.NoError(t, err)
	assert.Equal(t, []byte("signed-pdf"), artifact)
}

func TestErrorStatusSurfaced(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := client.FetchStatus(context.Background(), "env-77")
	assert.Error(t, err)
}
