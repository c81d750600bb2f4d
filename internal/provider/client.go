package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"example.com/backstage/services/esign/config"
)

// SignerInput describes one signer slot to register with the provider
type SignerInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Position int    `json:"position"`
}

// SignerSlot is a registered signer slot returned by the provider
type SignerSlot struct {
	Ref        string `json:"ref"`
	Email      string `json:"email"`
	Position   int    `json:"position"`
	SigningURL string `json:"signing_url"`
}

// EnvelopeStatus is the provider's view of an envelope
type EnvelopeStatus struct {
	EnvelopeRef string `json:"envelope_ref"`
	Status      string `json:"status"`
	SignedCount int    `json:"signed_count"`
}

// Client is the outbound contract with the external signing provider. The
// provider is authoritative for artifact bytes and signing URLs only; order
// of events is always derived from local persisted state.
type Client interface {
	UploadDocument(ctx context.Context, content []byte, filename string) (string, error)
	CreateSignerSlots(ctx context.Context, envelopeRef string, signers []SignerInput, expiresAt *time.Time) ([]SignerSlot, error)
	FetchStatus(ctx context.Context, envelopeRef string) (*EnvelopeStatus, error)
	FetchSignedArtifact(ctx context.Context, envelopeRef string) ([]byte, error)
}

type httpClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates an HTTP client for the signing provider API
func NewClient(cfg config.ProviderConfig) Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "failed to marshal request body")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "failed to build provider request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "provider request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned %d for %s %s", resp.StatusCode, method, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "failed to decode provider response")
		}
	}
	return nil
}

func (c *httpClient) UploadDocument(ctx context.Context, content []byte, filename string) (string, error) {
	body := map[string]string{
		"filename": filename,
		"content":  base64.StdEncoding.EncodeToString(content),
	}
	var out struct {
		EnvelopeRef string `json:"envelope_ref"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/envelopes", body, &out); err != nil {
		return "", err
	}
	if out.EnvelopeRef == "" {
		return "", errors.New("provider returned empty envelope ref")
	}
	return out.EnvelopeRef, nil
}

func (c *httpClient) CreateSignerSlots(ctx context.Context, envelopeRef string, signers []SignerInput, expiresAt *time.Time) ([]SignerSlot, error) {
	body := map[string]interface{}{
		"signers": signers,
	}
	if expiresAt != nil {
		body["expires_at"] = expiresAt.UTC().Format(time.RFC3339)
	}
	var out struct {
		Signers []SignerSlot `json:"signers"`
	}
	path := fmt.Sprintf("/v1/envelopes/%s/signers", envelopeRef)
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	if len(out.Signers) != len(signers) {
		return nil, fmt.Errorf("provider registered %d of %d signers", len(out.Signers), len(signers))
	}
	return out.Signers, nil
}

func (c *httpClient) FetchStatus(ctx context.Context, envelopeRef string) (*EnvelopeStatus, error) {
	var out EnvelopeStatus
	path := fmt.Sprintf("/v1/envelopes/%s", envelopeRef)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) FetchSignedArtifact(ctx context.Context, envelopeRef string) ([]byte, error) {
	var out struct {
		Content string `json:"content"`
	}
	path := fmt.Sprintf("/v1/envelopes/%s/artifact", envelopeRef)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	artifact, err := base64.StdEncoding.DecodeString(out.Content)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode signed artifact")
	}
	return artifact, nil
}
