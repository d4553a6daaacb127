package hub

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rawblock/hashpass-engine/internal/puzzle"
	"github.com/rawblock/hashpass-engine/pkg/models"
)

// SessionIssuer is the subset of session.Registry the hub depends on.
type SessionIssuer interface {
	Validate(token, ip string) bool
	Issue(ip string) (string, error)
	MarkConnected(token string)
	MarkDisconnected(token string)
}

// Blacklist is the subset of blacklist.Store the hub depends on.
type Blacklist interface {
	IsBanned(ip string) bool
}

// ChallengeVerifier verifies a one-shot human-challenge token.
type ChallengeVerifier interface {
	Verify(ctx context.Context, token string) (bool, error)
}

// Config configures handshake policy.
type Config struct {
	MaxConnectionsPerIP int
	AllowedUserAgents    []string
	MaxNonceSpeed        float64
}

// Hub owns the live channel set, the handshake policy, and the hashrate
// aggregator. It is the only place that mutates puzzle mining-active
// transitions, so it serializes those through the puzzle's own lock
// indirectly via State.ResumeMining/PauseMining.
type Hub struct {
	cfg       Config
	cfgMu     sync.RWMutex // guards cfg.MaxNonceSpeed, the one field mutable after New
	puzzleSt  *puzzle.State
	sessions  SessionIssuer
	blacklist Blacklist
	challenge ChallengeVerifier

	mu           sync.RWMutex
	channels     map[string]*Channel
	connsByIP    map[string]int
	activeMiners map[string]struct{} // channel IDs currently mining

	rates   map[string]hashrateEntry // channel ID -> latest report
	ratesMu sync.Mutex

	submissions *submissionTracker
}

// New constructs a Hub wired to the puzzle state and its collaborators.
func New(cfg Config, puzzleSt *puzzle.State, sessions SessionIssuer, blacklist Blacklist, challenge ChallengeVerifier) *Hub {
	return &Hub{
		cfg:          cfg,
		puzzleSt:     puzzleSt,
		sessions:     sessions,
		blacklist:    blacklist,
		challenge:    challenge,
		channels:     make(map[string]*Channel),
		connsByIP:    make(map[string]int),
		activeMiners: make(map[string]struct{}),
		rates:        make(map[string]hashrateEntry),
		submissions:  newSubmissionTracker(),
	}
}

// policyViolationCode is the realtime close code rejectUpgrade sends when a
// handshake fails its auth, ban, user-agent or connection-limit checks.
const policyViolationCode = websocket.ClosePolicyViolation

func (h *Hub) userAgentAllowed(ua string) bool {
	if len(h.cfg.AllowedUserAgents) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedUserAgents {
		if strings.Contains(ua, allowed) {
			return true
		}
	}
	return false
}

// Serve handles one incoming realtime connection: token/IP/UA/ban/limit
// checks, the human-challenge-or-session handshake, then the channel's
// read loop until it disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	token := r.URL.Query().Get("token")

	if h.blacklist.IsBanned(ip) {
		rejectUpgrade(w, r)
		return
	}
	if !h.userAgentAllowed(r.UserAgent()) {
		rejectUpgrade(w, r)
		return
	}
	if token == "" {
		rejectUpgrade(w, r)
		return
	}

	h.mu.RLock()
	atLimit := h.cfg.MaxConnectionsPerIP > 0 && h.connsByIP[ip] >= h.cfg.MaxConnectionsPerIP
	h.mu.RUnlock()
	if atLimit {
		rejectUpgrade(w, r)
		return
	}

	sessionToken, ok := h.resolveSessionToken(r.Context(), token, ip)
	if !ok {
		rejectUpgrade(w, r)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("hub: upgrade failed: %v", err)
		return
	}

	ch := newChannel(uuid.NewString(), sessionToken, ip, conn)
	h.sessions.MarkConnected(sessionToken)
	h.register(ch)
	defer h.unregister(ch)

	if token != sessionToken {
		// Fresh handshake via a one-shot human-challenge token: the newly
		// issued session token is sent in-band as the first message.
		ch.writeJSON(models.OutboundMessage{Type: models.MsgSessionToken, Token: sessionToken})
	} else {
		// Reconnect: hand back the current puzzle so the client can resume
		// without a separate /api/puzzle round trip.
		snap := h.puzzleSt.Snapshot()
		ch.writeJSON(models.OutboundMessage{
			Type:             models.MsgPuzzleReset,
			Seed:             snap.Seed,
			Difficulty:       snap.Difficulty,
			PuzzleStartTime:  snap.PuzzleStartTime,
			AverageSolveTime: snap.AverageSolveTime,
		})
	}

	go ch.writePump()
	h.readLoop(ch)
}

// resolveSessionToken implements spec.md §4.5's branching handshake: a
// one-shot human-challenge token is verified then exchanged for a freshly
// issued session token; an existing session token is validated and
// reactivated.
func (h *Hub) resolveSessionToken(ctx context.Context, token, ip string) (string, bool) {
	if h.sessions.Validate(token, ip) {
		return token, true
	}

	ok, err := h.challenge.Verify(ctx, token)
	if err != nil || !ok {
		return "", false
	}

	issued, err := h.sessions.Issue(ip)
	if err != nil {
		log.Printf("hub: issuing session token: %v", err)
		return "", false
	}
	return issued, true
}

func rejectUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(policyViolationCode, "policy violation"), deadlineNow())
	_ = conn.Close()
}

func (h *Hub) register(ch *Channel) {
	h.mu.Lock()
	h.channels[ch.ID] = ch
	h.connsByIP[ch.IP]++
	h.mu.Unlock()
}

// unregister is idempotent: Serve's deferred call and Broadcast's
// write-failure call can both race to unregister the same channel, and only
// the first should touch connsByIP/activeMiners.
func (h *Hub) unregister(ch *Channel) {
	h.mu.Lock()
	if _, ok := h.channels[ch.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.channels, ch.ID)
	h.connsByIP[ch.IP]--
	if h.connsByIP[ch.IP] <= 0 {
		delete(h.connsByIP, ch.IP)
	}
	_, wasMining := h.activeMiners[ch.ID]
	delete(h.activeMiners, ch.ID)
	remaining := len(h.activeMiners)
	h.mu.Unlock()

	h.ratesMu.Lock()
	delete(h.rates, ch.ID)
	h.ratesMu.Unlock()

	h.sessions.MarkDisconnected(ch.SessionToken)
	ch.close()

	if wasMining && remaining == 0 {
		h.puzzleSt.PauseMining()
	}
}

// SetMaxNonceSpeed updates the overspeed ceiling at runtime, for the admin
// parameter-update action (spec.md §4.8).
func (h *Hub) SetMaxNonceSpeed(v float64) {
	h.cfgMu.Lock()
	h.cfg.MaxNonceSpeed = v
	h.cfgMu.Unlock()
}

func (h *Hub) maxNonceSpeed() float64 {
	h.cfgMu.RLock()
	defer h.cfgMu.RUnlock()
	return h.cfg.MaxNonceSpeed
}

// ActiveChannelCount returns the number of currently connected channels.
func (h *Hub) ActiveChannelCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// ActiveMinerCount returns the number of channels currently mining.
func (h *Hub) ActiveMinerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.activeMiners)
}

// CloseIP forcibly disconnects every channel from ip, for the admin ban
// action (spec.md §4.8).
func (h *Hub) CloseIP(ip string) {
	h.mu.RLock()
	var matched []*Channel
	for _, ch := range h.channels {
		if ch.IP == ip {
			matched = append(matched, ch)
		}
	}
	h.mu.RUnlock()

	for _, ch := range matched {
		ch.close()
	}
}

// CloseAll forcibly disconnects every channel, for the admin kick-all action.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	all := make([]*Channel, 0, len(h.channels))
	for _, ch := range h.channels {
		all = append(all, ch)
	}
	h.mu.RUnlock()

	for _, ch := range all {
		ch.close()
	}
}
