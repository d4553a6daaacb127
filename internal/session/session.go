// Package session implements the session registry: opaque, IP-bound tokens
// issued after human-challenge verification, valid across reconnects within
// a disconnect grace window.
package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"sync"
	"time"
)

// DisconnectGrace is the fixed policy this implementation settles on for
// spec.md's open question: 5 minutes everywhere, regardless of whether the
// client was mining at disconnect time.
const DisconnectGrace = 5 * time.Minute

// tokenBytes is the raw entropy backing a session token (256 bits; the spec
// requires at least 128).
const tokenBytes = 32

type entry struct {
	ip          string
	createdAt   time.Time
	lastSeenAt  time.Time
	connected   bool
	revoked     bool
	revokeReason string
}

// Registry maps opaque session tokens to their bound identity.
type Registry struct {
	mu      sync.RWMutex
	tokens  map[string]*entry
	byIP    map[string]map[string]struct{} // ip -> set of tokens, for revoke-by-ip
}

// NewRegistry constructs an empty registry and starts its background sweeper.
func NewRegistry() *Registry {
	r := &Registry{
		tokens: make(map[string]*entry),
		byIP:   make(map[string]map[string]struct{}),
	}
	go r.sweepLoop()
	return r
}

// Issue creates a new token bound to ip.
func (r *Registry) Issue(ip string) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", err
	}

	now := time.Now()
	r.mu.Lock()
	r.tokens[token] = &entry{ip: ip, createdAt: now, lastSeenAt: now}
	r.indexIPLocked(ip, token)
	r.mu.Unlock()

	return token, nil
}

func randomToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Validate reports whether token exists, is bound to ip, has not been
// revoked, and — if currently disconnected — is still within the grace
// window. The token is found by a Go map lookup, which is not constant-time
// with respect to the token value; only the comparison of the bound IP
// against ip uses subtle.ConstantTimeCompare.
func (r *Registry) Validate(token, ip string) bool {
	r.mu.RLock()
	e, ok := r.tokens[token]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	if e.revoked {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(e.ip), []byte(ip)) != 1 {
		return false
	}
	if !e.connected && time.Since(e.lastSeenAt) > DisconnectGrace {
		return false
	}

	return true
}

// MarkConnected transitions token to connected and refreshes its
// last-seen-at timestamp.
func (r *Registry) MarkConnected(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.tokens[token]; ok {
		e.connected = true
		e.lastSeenAt = time.Now()
	}
}

// MarkDisconnected starts the grace-window clock for token.
func (r *Registry) MarkDisconnected(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.tokens[token]; ok {
		e.connected = false
		e.lastSeenAt = time.Now()
	}
}

// Revoke deletes a single token, recording why for admin introspection.
func (r *Registry) Revoke(token, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revokeLocked(token, reason)
}

func (r *Registry) revokeLocked(token, reason string) {
	e, ok := r.tokens[token]
	if !ok {
		return
	}
	e.revoked = true
	e.revokeReason = reason
	delete(r.tokens, token)
	if set, ok := r.byIP[e.ip]; ok {
		delete(set, token)
		if len(set) == 0 {
			delete(r.byIP, e.ip)
		}
	}
}

// RevokeByIP deletes every token bound to ip (used by IP bans).
func (r *Registry) RevokeByIP(ip, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token := range r.byIP[ip] {
		r.revokeLocked(token, reason)
	}
}

// ClearAll revokes every outstanding token.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = make(map[string]*entry)
	r.byIP = make(map[string]map[string]struct{})
}

func (r *Registry) indexIPLocked(ip, token string) {
	set, ok := r.byIP[ip]
	if !ok {
		set = make(map[string]struct{})
		r.byIP[ip] = set
	}
	set[token] = struct{}{}
}

// sweepPeriod matches spec.md §4.4's background sweeper cadence.
const sweepPeriod = 60 * time.Second

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(sweepPeriod)
	defer ticker.Stop()
	for range ticker.C {
		r.sweepOnce()
	}
}

func (r *Registry) sweepOnce() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, e := range r.tokens {
		if !e.connected && time.Since(e.lastSeenAt) > DisconnectGrace {
			r.revokeLocked(token, "expired")
		}
	}
}

// Info is the admin-facing view of one session.
type Info struct {
	IP          string
	CreatedAt   time.Time
	LastSeenAt  time.Time
	Connected   bool
}

// List returns a snapshot of all active sessions, for the admin plane.
func (r *Registry) List() map[string]Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Info, len(r.tokens))
	for token, e := range r.tokens {
		out[token] = Info{IP: e.ip, CreatedAt: e.createdAt, LastSeenAt: e.lastSeenAt, Connected: e.connected}
	}
	return out
}
