package api

import (
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rawblock/hashpass-engine/internal/blacklist"
	"github.com/rawblock/hashpass-engine/internal/config"
	"github.com/rawblock/hashpass-engine/internal/hub"
	"github.com/rawblock/hashpass-engine/internal/invite"
	"github.com/rawblock/hashpass-engine/internal/puzzle"
	"github.com/rawblock/hashpass-engine/internal/puzzlehash"
	"github.com/rawblock/hashpass-engine/internal/session"
	"github.com/rawblock/hashpass-engine/internal/turnstile"
	"github.com/rawblock/hashpass-engine/internal/webhook"
	auditlog "github.com/rawblock/hashpass-engine/internal/audit"
)

// APIHandler wires every component the HTTP/realtime surface depends on.
// Unlike the teacher's single dbStore/btcClient/wsHub trio, this handler
// owns the full puzzle/session/hub/audit/webhook/turnstile stack — the
// module has no database, so every collaborator here is an in-process
// component rather than a client to an external service.
type APIHandler struct {
	cfg       *config.Config
	puzzleSt  *puzzle.State
	pool      *puzzlehash.Pool
	sessions  *session.Registry
	blacklist *blacklist.Store
	hub       *hub.Hub
	auditLog  *auditlog.Log
	webhookN  *webhook.Notifier
	turnstile *turnstile.Verifier

	watcherMu sync.Mutex
	watcher   *puzzle.Watcher
}

// NewAPIHandler constructs the handler and starts the puzzle's first
// timeout watcher.
func NewAPIHandler(
	cfg *config.Config,
	puzzleSt *puzzle.State,
	pool *puzzlehash.Pool,
	sessions *session.Registry,
	bl *blacklist.Store,
	h *hub.Hub,
	auditLog *auditlog.Log,
	webhookN *webhook.Notifier,
	tsVerifier *turnstile.Verifier,
) *APIHandler {
	handler := &APIHandler{
		cfg:       cfg,
		puzzleSt:  puzzleSt,
		pool:      pool,
		sessions:  sessions,
		blacklist: bl,
		hub:       h,
		auditLog:  auditLog,
		webhookN:  webhookN,
		turnstile: tsVerifier,
	}
	handler.restartWatcher()
	return handler
}

// restartWatcher cancels any in-flight timeout watcher and starts a fresh
// one for the current seed, per spec.md §5's cancellation rule: "the
// timeout watcher is a single task that is cancelled and re-created on
// every seed rotation."
func (h *APIHandler) restartWatcher() {
	h.watcherMu.Lock()
	defer h.watcherMu.Unlock()

	if h.watcher != nil {
		h.watcher.Stop()
	}
	h.watcher = puzzle.StartWatcher(h.puzzleSt, h.onTimeout)
}

// onTimeout runs when the puzzle's mining-time age exceeds Tmax with no
// winner: broadcast the reset, optionally deliver a best-effort consolation
// code, and start watching the new round.
func (h *APIHandler) onTimeout(outcome puzzle.Outcome) {
	// The best submission is read before the broadcast, because
	// BroadcastPuzzleReset clears the per-round submission tracker.
	if h.cfg.EnableConsolationCode {
		if channelID, fingerprint, nonce, ok := h.hub.BestSubmissionContext(); ok {
			code := invite.Mint(h.cfg.ServerSecret, fingerprint, nonce, outcome.OldSeed)
			h.hub.DeliverConsolationCode(channelID, code)
		}
	}

	h.hub.BroadcastPuzzleReset(outcome.Snapshot, outcome.SolveSeconds, true)

	h.restartWatcher()
}

// SetupRouter builds the gin engine: public puzzle/verify/turnstile/health
// endpoints, the realtime hub endpoint, and the Bearer-authenticated admin
// plane, following the teacher's route-group-plus-CORS-middleware shape.
func SetupRouter(handler *APIHandler) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Session-Token")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	pub := r.Group("/api")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/turnstile/config", handler.handleTurnstileConfig)
		pub.GET("/dev/trace", handler.handleDevTrace)
		pub.GET("/ws", func(c *gin.Context) { handler.hub.Serve(c.Writer, c.Request) })

		puzzleLimiter := NewRateLimiter(60, 10)
		pub.POST("/puzzle", puzzleLimiter.Middleware(), handler.handlePuzzle)

		verifyLimiter := NewRateLimiter(30, 5)
		pub.POST("/verify", verifyLimiter.Middleware(), handler.handleVerify)
	}

	admin := r.Group("/api/admin")
	admin.Use(AdminAuthMiddleware(handler.cfg.AdminToken))
	admin.Use(NewRateLimiter(120, 20).Middleware())
	{
		admin.GET("/state", handler.handleAdminState)
		admin.GET("/miners", handler.handleAdminMiners)
		admin.GET("/sessions", handler.handleAdminSessions)
		admin.GET("/logs", handler.handleAdminLogs)
		admin.GET("/metrics", handler.handleAdminMetrics)
		admin.POST("/params", handler.handleAdminSetParams)
		admin.POST("/reset", handler.handleAdminForceReset)
		admin.POST("/kick-all", handler.handleAdminKickAll)
		admin.POST("/ban", handler.handleAdminBanIP)
		admin.POST("/unban", handler.handleAdminUnbanIP)
		admin.POST("/sessions/clear", handler.handleAdminClearSessions)
		admin.POST("/secret", handler.handleAdminSetSecret)
	}

	// Registered outside the admin group: browser WebSocket clients can't
	// set an Authorization header during the handshake, so this route
	// alone accepts the token from the query string too.
	adminWS := r.Group("/api/admin")
	adminWS.Use(AdminWSAuthMiddleware(handler.cfg.AdminToken))
	adminWS.GET("/ws", handler.handleAdminWS)

	return r
}

var adminUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const adminStatusPeriod = 2 * time.Second

// handleAdminWS streams a STATUS_UPDATE snapshot every 2 s, per spec.md
// §4.8. AdminWSAuthMiddleware already enforced the token (header or query
// string) before the upgrade, so no further auth check is needed here.
func (h *APIHandler) handleAdminWS(c *gin.Context) {
	conn, err := adminUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("api: admin ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Detect client-initiated close without blocking the write loop.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(adminStatusPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(gin.H{
				"type":      "STATUS_UPDATE",
				"snapshot":  h.adminStatusSnapshot(),
				"timestamp": time.Now().Unix(),
			}); err != nil {
				return
			}
		}
	}
}

// clientIP extracts the connection's real IP, matching the hub's own
// extraction so the two layers never disagree on identity.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
