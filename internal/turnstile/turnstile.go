// Package turnstile verifies one-shot human-challenge tokens against the
// Cloudflare Turnstile siteverify endpoint. It is an external collaborator:
// spec.md treats the challenge provider as an opaque token verifier, out of
// this module's core scope.
package turnstile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const siteverifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

// Verifier checks a Turnstile response token.
type Verifier struct {
	secret   string
	testMode bool
	client   *http.Client
}

// New constructs a Verifier. When testMode is true, Verify accepts any
// non-empty token without calling out to Cloudflare — the configuration
// surface spec.md's /api/turnstile/config exposes for local development.
func New(secret string, testMode bool) *Verifier {
	return &Verifier{
		secret:   secret,
		testMode: testMode,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// TestMode reports whether the verifier is running in local test mode.
func (v *Verifier) TestMode() bool {
	return v.testMode
}

type siteverifyResponse struct {
	Success bool     `json:"success"`
	Errors  []string `json:"error-codes"`
}

// Verify checks token against Cloudflare's siteverify endpoint. Per
// spec.md §7, a provider-unreachable error fails closed: callers must treat
// any returned error as "not verified", never as "verified".
func (v *Verifier) Verify(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	if v.testMode {
		return true, nil
	}

	form := url.Values{
		"secret":   {v.secret},
		"response": {token},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, siteverifyURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("turnstile: siteverify request failed: %w", err)
	}
	defer resp.Body.Close()

	var parsed siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, fmt.Errorf("turnstile: decoding siteverify response: %w", err)
	}

	return parsed.Success, nil
}
