// Package webhook fires a best-effort HTTP notification when an invite code
// is minted. Delivery never affects the user-visible verify result: failures
// are logged and retried in the background, never surfaced to the caller
// (spec.md §4.7, §7 "webhook delivery failures never block a response").
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

const (
	requestTimeout = 5 * time.Second
	maxAttempts    = 4
	baseBackoff    = 500 * time.Millisecond
)

// Notifier posts win events to a configured URL.
type Notifier struct {
	url    string
	token  string
	client *http.Client
}

// New constructs a Notifier. An empty url disables delivery entirely. An
// empty token omits the Authorization header.
func New(url, token string) *Notifier {
	return &Notifier{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: requestTimeout},
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n.url != ""
}

// Event is the payload posted on every successful invite-code mint.
type Event struct {
	InviteCode   string  `json:"inviteCode"`
	Fingerprint  string  `json:"fingerprint"`
	DifficultyAt int     `json:"difficultyAt"`
	SolveSeconds float64 `json:"solveSeconds"`
	Timestamp    int64   `json:"timestamp"`
}

// Notify fires the webhook in the background with retries. It never blocks
// the caller and never returns an error — the caller has already committed
// the win by the time this is invoked.
func (n *Notifier) Notify(ctx context.Context, ev Event) {
	if !n.Enabled() {
		return
	}
	go n.deliver(ev)
}

func (n *Notifier) deliver(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("webhook: marshaling event: %v", err)
		return
	}

	backoff := baseBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			cancel()
			log.Printf("webhook: building request: %v", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if n.token != "" {
			req.Header.Set("Authorization", "Bearer "+n.token)
		}

		resp, err := n.client.Do(req)
		cancel()
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode < 300 {
				return
			}
			log.Printf("webhook: attempt %d/%d: unexpected status %d", attempt, maxAttempts, resp.StatusCode)
		} else {
			log.Printf("webhook: attempt %d/%d: %v", attempt, maxAttempts, err)
		}

		if attempt < maxAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	log.Printf("webhook: giving up after %d attempts", maxAttempts)
}
