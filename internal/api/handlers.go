package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/hashpass-engine/internal/invite"
	"github.com/rawblock/hashpass-engine/internal/puzzle"
	"github.com/rawblock/hashpass-engine/internal/puzzlehash"
	"github.com/rawblock/hashpass-engine/internal/webhook"
	"github.com/rawblock/hashpass-engine/pkg/models"
)

// handlePuzzle returns the current puzzle parameters for a session-bound
// client (spec.md §6, POST /api/puzzle).
func (h *APIHandler) handlePuzzle(c *gin.Context) {
	if _, _, ok := h.requireSession(c); !ok {
		return
	}
	c.JSON(http.StatusOK, h.puzzleSt.Snapshot())
}

// requireSession validates the bearer session token against the caller's
// IP, writing a 401 and returning ok=false on failure.
func (h *APIHandler) requireSession(c *gin.Context) (token, ip string, ok bool) {
	ip = clientIP(c.Request)
	token = sessionTokenFromRequest(c)

	if token == "" || !h.sessions.Validate(token, ip) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or expired session"})
		return "", "", false
	}
	return token, ip, true
}

func sessionTokenFromRequest(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.GetHeader("X-Session-Token")
}

// handleVerify is the HTTP entrypoint into the atomic verify path
// (spec.md §4.7). It performs the preconditions outside the lock, then
// delegates the critical section to puzzle.State.Verify.
func (h *APIHandler) handleVerify(c *gin.Context) {
	token, ip, ok := h.requireSession(c)
	if !ok {
		return
	}

	if h.blacklist.IsBanned(ip) {
		c.JSON(http.StatusForbidden, gin.H{"error": "banned"})
		return
	}

	var req models.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed verify request: " + err.Error()})
		return
	}

	if !traceMatchesIP(req.TraceData, ip) {
		c.JSON(http.StatusForbidden, gin.H{"error": "identity mismatch"})
		return
	}

	// Fast early reject for obviously stale work, outside the critical
	// section (spec.md §4.7's
	// precondition check, ahead of the double-checked re-verify under lock).
	if req.SubmittedSeed != h.puzzleSt.CurrentSeed() {
		c.JSON(http.StatusConflict, gin.H{"error": "stale puzzle"})
		return
	}

	outcome, err := h.puzzleSt.Verify(c.Request.Context(), h.pool, puzzle.VerifyInput{
		SubmittedSeed: req.SubmittedSeed,
		Fingerprint:   req.VisitorID,
		TraceData:     req.TraceData,
		Nonce:         req.Nonce,
		Hash:          req.Hash,
	})

	h.recordSubmission(token, req, outcome, err)

	if err != nil {
		respondVerifyError(c, err)
		return
	}

	code := invite.Mint(h.cfg.ServerSecret, req.VisitorID, req.Nonce, outcome.OldSeed)

	h.hub.BroadcastPuzzleReset(outcome.Snapshot, outcome.SolveSeconds, false)
	h.restartWatcher()

	now := time.Now()
	if err := h.auditLog.Append(models.AuditRecord{
		RecordID:      outcome.OldSeed + ":" + strconv.FormatUint(req.Nonce, 10),
		Timestamp:     now,
		InviteCode:    code,
		Fingerprint:   req.VisitorID,
		Nonce:         req.Nonce,
		Hash:          req.Hash,
		Seed:          outcome.OldSeed,
		RealIP:        ip,
		TraceData:     req.TraceData,
		DifficultyAt:  outcome.DifficultyAt,
		SolveTime:     outcome.SolveSeconds,
		NewDifficulty: outcome.NewDifficulty,
		AdjustReason:  outcome.AdjustReason,
	}); err != nil {
		log.Printf("api: audit log append failed: %v", err)
	}

	h.webhookN.Notify(c.Request.Context(), webhook.Event{
		InviteCode:   code,
		Fingerprint:  req.VisitorID,
		DifficultyAt: outcome.DifficultyAt,
		SolveSeconds: outcome.SolveSeconds,
		Timestamp:    now.Unix(),
	})

	c.JSON(http.StatusOK, models.VerifyResponse{InviteCode: code})
}

// respondVerifyError translates the verify path's failure modes to the
// status codes spec.md §7 specifies. All of them leave puzzle state
// untouched — State.Verify never mutates on an error return.
func respondVerifyError(c *gin.Context, err error) {
	var invalid *puzzle.InvalidProofError
	switch {
	case errors.Is(err, puzzle.ErrStaleSeed):
		c.JSON(http.StatusConflict, gin.H{"error": "stale puzzle"})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid proof"})
	case errors.Is(err, puzzlehash.ErrPoolUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "verification infrastructure unavailable"})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "verification infrastructure unavailable"})
	}
}

// recordSubmission feeds every verify attempt (win or not) into the hub's
// consolation-code tracker, when the caller has an open realtime channel.
func (h *APIHandler) recordSubmission(token string, req models.VerifyRequest, outcome puzzle.Outcome, err error) {
	ch, ok := h.hub.ChannelBySessionToken(token)
	if !ok {
		return
	}

	var bits int
	var invalid *puzzle.InvalidProofError
	switch {
	case err == nil:
		bits = outcome.LeadingZeroBits
	case errors.As(err, &invalid):
		bits = invalid.LeadingZeroBits
	default:
		return
	}

	h.hub.RecordSubmission(ch.ID, req.VisitorID, req.Nonce, bits)
}

// traceMatchesIP checks spec.md §6's wire invariant: the trace blob must
// contain a literal `ip=<X>` line equal to the connection's real IP.
func traceMatchesIP(trace, ip string) bool {
	for _, line := range strings.Split(trace, "\n") {
		line = strings.TrimSpace(line)
		if v, found := strings.CutPrefix(line, "ip="); found {
			return v == ip
		}
	}
	return false
}

// handleTurnstileConfig exposes the public challenge-widget configuration
// (spec.md §6, GET /api/turnstile/config).
func (h *APIHandler) handleTurnstileConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"site_key":  h.cfg.TurnstileSiteKey,
		"test_mode": h.turnstile.TestMode(),
	})
}

// handleHealth is an unauthenticated liveness probe.
func (h *APIHandler) handleHealth(c *gin.Context) {
	seed := h.puzzleSt.CurrentSeed()
	prefix := seed
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	c.JSON(http.StatusOK, gin.H{
		"status":               "ok",
		"current_seed_prefix": prefix,
	})
}

// handleDevTrace returns a mock trace blob for local development, matching
// the shape the edge would normally inject (spec.md §6).
func (h *APIHandler) handleDevTrace(c *gin.Context) {
	c.String(http.StatusOK, "ip=%s\n", clientIP(c.Request))
}

// auditQueryLimit bounds a single admin log page.
const auditQueryLimit = 100

func auditPageParams(c *gin.Context) (offset, limit int, search string) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(auditQueryLimit)))
	if limit <= 0 || limit > auditQueryLimit {
		limit = auditQueryLimit
	}
	search = c.Query("search")
	return offset, limit, search
}
