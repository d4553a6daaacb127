// Package config loads the engine's startup configuration from the
// environment through small getEnvOrDefault/getEnvInt/getEnvFloat helpers
// instead of a flags or viper layer.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every environment-style key consumed at startup.
type Config struct {
	Port string

	AdminToken string

	DifficultyInitial int
	DifficultyMin     int
	DifficultyMax     int

	TargetWindowMin time.Duration
	TargetWindowMax time.Duration

	Argon2Time        uint32
	Argon2MemoryKB    uint32
	Argon2Parallelism uint8

	RecommendedWorkerCount int
	MaxNonceSpeed          float64

	TurnstileSiteKey  string
	TurnstileSecret   string
	TurnstileTestMode bool

	WebhookURL   string
	WebhookToken string

	ServerSecret []byte

	MaxConnectionsPerIP int
	AllowedUserAgents   []string

	EnableConsolationCode bool

	AuditLogDir   string
	BlacklistPath string
	AppLogPath    string
}

// Load reads Config from the process environment with defaults for every
// key. It fails on inverted difficulty bounds or target window and on a
// malformed SERVER_SECRET; a missing SERVER_SECRET is replaced by a random
// one and a missing ADMIN_TOKEN only logs a warning.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                   getEnvOrDefault("PORT", "8080"),
		DifficultyInitial:      getEnvInt("DIFFICULTY_INITIAL", 12),
		DifficultyMin:          getEnvInt("DIFFICULTY_MIN", 8),
		DifficultyMax:          getEnvInt("DIFFICULTY_MAX", 32),
		TargetWindowMin:        time.Duration(getEnvInt("TARGET_WINDOW_MIN_SECONDS", 30)) * time.Second,
		TargetWindowMax:        time.Duration(getEnvInt("TARGET_WINDOW_MAX_SECONDS", 120)) * time.Second,
		Argon2Time:             uint32(getEnvInt("ARGON2_TIME", 1)),
		Argon2MemoryKB:         uint32(getEnvInt("ARGON2_MEMORY_KB", 65536)),
		Argon2Parallelism:      uint8(getEnvInt("ARGON2_PARALLELISM", 1)),
		RecommendedWorkerCount: getEnvInt("RECOMMENDED_WORKER_COUNT", 4),
		MaxNonceSpeed:          getEnvFloat("MAX_NONCE_SPEED", 0),
		TurnstileSiteKey:       os.Getenv("TURNSTILE_SITE_KEY"),
		TurnstileSecret:        os.Getenv("TURNSTILE_SECRET"),
		TurnstileTestMode:      os.Getenv("TURNSTILE_TEST_MODE") == "true",
		WebhookURL:             os.Getenv("WEBHOOK_URL"),
		WebhookToken:           os.Getenv("WEBHOOK_TOKEN"),
		MaxConnectionsPerIP:    getEnvInt("MAX_CONNECTIONS_PER_IP", 3),
		EnableConsolationCode:  getEnvOrDefault("ENABLE_CONSOLATION_CODE", "true") == "true",
		AuditLogDir:            getEnvOrDefault("AUDIT_LOG_DIR", "./audit_logs"),
		BlacklistPath:          getEnvOrDefault("BLACKLIST_PATH", "blacklist.json"),
		AppLogPath:             getEnvOrDefault("APP_LOG_PATH", "hashpass.log"),
	}

	uaList := getEnvOrDefault("ALLOWED_USER_AGENTS", "Mozilla,Chrome,Safari,Firefox,Edge")
	for _, ua := range strings.Split(uaList, ",") {
		if ua = strings.TrimSpace(ua); ua != "" {
			cfg.AllowedUserAgents = append(cfg.AllowedUserAgents, ua)
		}
	}

	if cfg.DifficultyMin > cfg.DifficultyMax {
		return nil, fmt.Errorf("DIFFICULTY_MIN (%d) must be <= DIFFICULTY_MAX (%d)", cfg.DifficultyMin, cfg.DifficultyMax)
	}
	if cfg.TargetWindowMin >= cfg.TargetWindowMax {
		return nil, fmt.Errorf("TARGET_WINDOW_MIN_SECONDS must be < TARGET_WINDOW_MAX_SECONDS")
	}

	secretHex := os.Getenv("SERVER_SECRET")
	if secretHex == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, fmt.Errorf("failed to generate server secret: %w", err)
		}
		cfg.ServerSecret = secret
		log.Println("SERVER_SECRET not set; generated a random ephemeral secret for this process")
	} else {
		decoded, err := decodeHexSecret(secretHex)
		if err != nil {
			return nil, fmt.Errorf("invalid SERVER_SECRET: %w", err)
		}
		cfg.ServerSecret = decoded
	}

	if os.Getenv("ADMIN_TOKEN") == "" {
		log.Println("[SECURITY WARNING] ADMIN_TOKEN is not set. The admin plane is unreachable " +
			"until it is configured; set ADMIN_TOKEN in your environment before exposing this service.")
	}
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")

	return cfg, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid int for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("invalid float for %s=%q, using default %v", key, v, fallback)
		return fallback
	}
	return f
}
