package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw body
const SignatureHeader = "X-Esign-Signature"

// Verifier checks webhook payload authenticity against a shared secret
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the given shared secret
func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("webhook secret is empty")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Verify reports whether the signature header matches the HMAC-SHA256 of the
// raw body. Comparison is constant-time.
func (v *Verifier) Verify(headers http.Header, rawBody []byte) bool {
	sigHex := strings.TrimSpace(headers.Get(SignatureHeader))
	if sigHex == "" {
		return false
	}
	provided, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(rawBody)
	return hmac.Equal(mac.Sum(nil), provided)
}

// Sign computes the signature for a raw body. Used by tests and by tooling
// that replays recorded provider events.
func (v *Verifier) Sign(rawBody []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
