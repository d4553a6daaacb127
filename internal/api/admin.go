package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/hashpass-engine/internal/audit"
	"github.com/rawblock/hashpass-engine/internal/config"
	"github.com/rawblock/hashpass-engine/internal/puzzle"
)

// adminStatusSnapshot is the admin plane's full read-only view
// (spec.md §4.8, "read full state snapshot").
func (h *APIHandler) adminStatusSnapshot() gin.H {
	return gin.H{
		"puzzle":         h.puzzleSt.Snapshot(),
		"active_channels": h.hub.ActiveChannelCount(),
		"active_miners":   h.hub.ActiveMinerCount(),
		"overspeed":       h.hub.OverspeedChannels(),
		"banned_ips":      h.blacklist.List(),
	}
}

func (h *APIHandler) handleAdminState(c *gin.Context) {
	c.JSON(http.StatusOK, h.adminStatusSnapshot())
}

func (h *APIHandler) handleAdminMiners(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active_miners": h.hub.ActiveMinerCount(),
		"overspeed":     h.hub.OverspeedChannels(),
	})
}

func (h *APIHandler) handleAdminSessions(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.List())
}

func (h *APIHandler) handleAdminLogs(c *gin.Context) {
	offset, limit, search := auditPageParams(c)
	records, total, err := audit.Query(h.cfg.AuditLogDir, search, offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"total":   total,
		"offset":  offset,
		"limit":   limit,
	})
}

// adminParamRequest is the JSON body for operator parameter updates; every
// field is optional, matching puzzle.ParamUpdate's pointer-field semantics.
type adminParamRequest struct {
	Difficulty        *int     `json:"difficulty"`
	DifficultyMin     *int     `json:"difficulty_min"`
	DifficultyMax     *int     `json:"difficulty_max"`
	TargetWindowMin   *float64 `json:"target_window_min_seconds"`
	TargetWindowMax   *float64 `json:"target_window_max_seconds"`
	Argon2Time        *uint32  `json:"argon2_time"`
	Argon2MemoryKB    *uint32  `json:"argon2_memory_kb"`
	Argon2Parallelism *uint8   `json:"argon2_parallelism"`
	WorkerCount       *int     `json:"worker_count"`
	MaxNonceSpeed     *float64 `json:"max_nonce_speed"`
}

func (h *APIHandler) handleAdminSetParams(c *gin.Context) {
	var req adminParamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed parameter update: " + err.Error()})
		return
	}

	outcome, err := h.puzzleSt.SetParams(puzzle.ParamUpdate{
		Difficulty:        req.Difficulty,
		DifficultyMin:     req.DifficultyMin,
		DifficultyMax:     req.DifficultyMax,
		TargetWindowMin:   req.TargetWindowMin,
		TargetWindowMax:   req.TargetWindowMax,
		Argon2Time:        req.Argon2Time,
		Argon2MemoryKB:    req.Argon2MemoryKB,
		Argon2Parallelism: req.Argon2Parallelism,
		WorkerCount:       req.WorkerCount,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.MaxNonceSpeed != nil {
		h.hub.SetMaxNonceSpeed(*req.MaxNonceSpeed)
	}

	h.hub.BroadcastPuzzleReset(outcome.Snapshot, 0, false)
	h.restartWatcher()
	c.JSON(http.StatusOK, outcome.Snapshot)
}

func (h *APIHandler) handleAdminForceReset(c *gin.Context) {
	outcome := h.puzzleSt.ForceReset()
	h.hub.BroadcastPuzzleReset(outcome.Snapshot, 0, false)
	h.restartWatcher()
	c.JSON(http.StatusOK, outcome.Snapshot)
}

func (h *APIHandler) handleAdminKickAll(c *gin.Context) {
	h.hub.CloseAll()
	h.sessions.ClearAll()
	c.JSON(http.StatusOK, gin.H{"status": "kicked all channels, cleared sessions"})
}

type adminIPRequest struct {
	IP string `json:"ip" binding:"required"`
}

func (h *APIHandler) handleAdminBanIP(c *gin.Context) {
	var req adminIPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ip is required"})
		return
	}
	if err := h.blacklist.Ban(req.IP); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.sessions.RevokeByIP(req.IP, "ip banned")
	h.hub.CloseIP(req.IP)
	c.JSON(http.StatusOK, gin.H{"status": "banned", "ip": req.IP})
}

func (h *APIHandler) handleAdminUnbanIP(c *gin.Context) {
	var req adminIPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ip is required"})
		return
	}
	if err := h.blacklist.Unban(req.IP); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unbanned", "ip": req.IP})
}

func (h *APIHandler) handleAdminClearSessions(c *gin.Context) {
	h.sessions.ClearAll()
	c.JSON(http.StatusOK, gin.H{"status": "sessions cleared"})
}

type adminSecretRequest struct {
	Secret string `json:"secret"` // hex-encoded; empty means "regenerate"
}

func (h *APIHandler) handleAdminSetSecret(c *gin.Context) {
	var req adminSecretRequest
	_ = c.ShouldBindJSON(&req)

	secret, err := config.ResolveAdminSecret(req.Secret)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.cfg.ServerSecret = secret
	c.JSON(http.StatusOK, gin.H{"status": "server secret rotated"})
}

func (h *APIHandler) handleAdminMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active_channels": h.hub.ActiveChannelCount(),
		"active_miners":   h.hub.ActiveMinerCount(),
		"difficulty":      h.puzzleSt.Snapshot().Difficulty,
		"timestamp":       time.Now().Unix(),
	})
}
