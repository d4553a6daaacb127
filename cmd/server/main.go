package main

import (
	"log"
	"time"

	"github.com/rawblock/hashpass-engine/internal/api"
	"github.com/rawblock/hashpass-engine/internal/applog"
	"github.com/rawblock/hashpass-engine/internal/audit"
	"github.com/rawblock/hashpass-engine/internal/blacklist"
	"github.com/rawblock/hashpass-engine/internal/config"
	"github.com/rawblock/hashpass-engine/internal/hub"
	"github.com/rawblock/hashpass-engine/internal/puzzle"
	"github.com/rawblock/hashpass-engine/internal/puzzlehash"
	"github.com/rawblock/hashpass-engine/internal/session"
	"github.com/rawblock/hashpass-engine/internal/turnstile"
	"github.com/rawblock/hashpass-engine/internal/webhook"
)

// hashrateAggregatorPeriod matches spec.md §4.6's "2-5 s" cadence.
const hashrateAggregatorPeriod = 3 * time.Second

func main() {
	log.Println("Starting HashPass invite-code engine...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: invalid configuration: %v", err)
	}

	appLog, closer, err := applog.New(cfg.AppLogPath)
	if err != nil {
		log.Fatalf("FATAL: failed to open application log: %v", err)
	}
	defer closer.Close()
	// Every log.Printf/Println across internal/ goes through the stdlib
	// default logger; route it through the same rotating writer appLog
	// uses so none of it is lost to stdout-only.
	log.SetOutput(appLog.Writer())
	log.SetFlags(appLog.Flags())
	appLog.Println("application log opened")

	puzzleSt, err := puzzle.New(puzzle.Config{
		DifficultyInitial: cfg.DifficultyInitial,
		DifficultyMin:     cfg.DifficultyMin,
		DifficultyMax:     cfg.DifficultyMax,
		TargetWindowMin:   cfg.TargetWindowMin,
		TargetWindowMax:   cfg.TargetWindowMax,
		Argon2: puzzlehash.Params{
			Time:        cfg.Argon2Time,
			MemoryKB:    cfg.Argon2MemoryKB,
			Parallelism: cfg.Argon2Parallelism,
		},
		WorkerCount: cfg.RecommendedWorkerCount,
	})
	if err != nil {
		log.Fatalf("FATAL: failed to initialize puzzle state: %v", err)
	}

	// Concurrency sized to CPUs-1 by NewPool(0); see spec.md §5's resource
	// ceiling on peak memory (m KiB per verification).
	pool := puzzlehash.NewPool(0)
	defer pool.Close()

	sessions := session.NewRegistry()

	bl, err := blacklist.Load(cfg.BlacklistPath)
	if err != nil {
		log.Fatalf("FATAL: failed to load blacklist: %v", err)
	}

	auditLog, err := audit.Open(cfg.AuditLogDir)
	if err != nil {
		log.Fatalf("FATAL: failed to open audit log: %v", err)
	}
	defer auditLog.Close()

	webhookN := webhook.New(cfg.WebhookURL, cfg.WebhookToken)
	tsVerifier := turnstile.New(cfg.TurnstileSecret, cfg.TurnstileTestMode)
	if tsVerifier.TestMode() {
		log.Println("turnstile: running in test_mode — every non-empty challenge token is accepted")
	}

	connHub := hub.New(hub.Config{
		MaxConnectionsPerIP: cfg.MaxConnectionsPerIP,
		AllowedUserAgents:   cfg.AllowedUserAgents,
		MaxNonceSpeed:       cfg.MaxNonceSpeed,
	}, puzzleSt, sessions, bl, tsVerifier)

	stopAggregator := connHub.StartAggregator(hashrateAggregatorPeriod)
	defer stopAggregator()

	handler := api.NewAPIHandler(cfg, puzzleSt, pool, sessions, bl, connHub, auditLog, webhookN, tsVerifier)
	router := api.SetupRouter(handler)

	log.Printf("HashPass engine listening on :%s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("FATAL: server exited: %v", err)
	}
}
