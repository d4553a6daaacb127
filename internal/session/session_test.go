package session

import (
	"testing"
	"time"
)

func TestValidate_WithinGraceWindowSucceeds(t *testing.T) {
	r := NewRegistry()
	token, err := r.Issue("1.2.3.4")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	r.MarkDisconnected(token)

	// Back-date lastSeenAt so the disconnect is 4m59s old, just inside the
	// 5-minute grace window.
	r.mu.Lock()
	r.tokens[token].lastSeenAt = time.Now().Add(-(DisconnectGrace - time.Second))
	r.mu.Unlock()

	if !r.Validate(token, "1.2.3.4") {
		t.Fatalf("expected a disconnect 1s inside the grace window to still validate")
	}
}

func TestValidate_PastGraceWindowFails(t *testing.T) {
	r := NewRegistry()
	token, err := r.Issue("1.2.3.4")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	r.MarkDisconnected(token)

	r.mu.Lock()
	r.tokens[token].lastSeenAt = time.Now().Add(-(DisconnectGrace + time.Second))
	r.mu.Unlock()

	if r.Validate(token, "1.2.3.4") {
		t.Fatalf("expected a disconnect 1s past the grace window to fail validation")
	}
}

func TestValidate_WrongIPFails(t *testing.T) {
	r := NewRegistry()
	token, _ := r.Issue("1.2.3.4")

	if r.Validate(token, "9.9.9.9") {
		t.Fatalf("expected validation to fail when the IP doesn't match the bound session")
	}
}

func TestValidate_ConnectedSessionIgnoresGraceWindow(t *testing.T) {
	r := NewRegistry()
	token, _ := r.Issue("1.2.3.4")
	r.MarkConnected(token)

	r.mu.Lock()
	r.tokens[token].lastSeenAt = time.Now().Add(-24 * time.Hour)
	r.mu.Unlock()

	if !r.Validate(token, "1.2.3.4") {
		t.Fatalf("expected a still-connected session to validate regardless of lastSeenAt age")
	}
}

func TestRevokeByIP_RemovesAllTokensForIP(t *testing.T) {
	r := NewRegistry()
	a, _ := r.Issue("5.5.5.5")
	b, _ := r.Issue("5.5.5.5")
	c, _ := r.Issue("6.6.6.6")

	r.RevokeByIP("5.5.5.5", "banned")

	if r.Validate(a, "5.5.5.5") || r.Validate(b, "5.5.5.5") {
		t.Fatalf("expected both tokens bound to the banned IP to be revoked")
	}
	if !r.Validate(c, "6.6.6.6") {
		t.Fatalf("expected a token bound to a different IP to remain valid")
	}
}

func TestClearAll_RevokesEverything(t *testing.T) {
	r := NewRegistry()
	token, _ := r.Issue("1.1.1.1")
	r.ClearAll()

	if r.Validate(token, "1.1.1.1") {
		t.Fatalf("expected ClearAll to revoke every outstanding token")
	}
}
