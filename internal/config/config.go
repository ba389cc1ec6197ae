// Package config loads application configuration from environment
// variables, optionally seeded from a .env file in the working directory.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers accepted in STORE_DRIVER.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Undecided line policies accepted in UNDECIDED_LINE_POLICY.
const (
	UndecidedRequire = "require"
	UndecidedApprove = "approve"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env         string // APP_ENV (dev, test, prod)
	Port        string // APP_PORT
	StoreDriver string // STORE_DRIVER, mysql or memory
	DBUser      string // DB_USER
	DBPass      string // DB_PASS (empty allowed)
	DBHost      string // DB_HOST
	DBPort      string // DB_PORT
	DBName      string // DB_NAME
	JWTSecret   string // JWT_SECRET, shared with the identity provider
	RabbitURL   string // RABBITMQ_URL, notifications disabled when empty
	LogDir      string // LOG_DIR, where the approvals consumer writes

	PredictorURL     string        // PREDICTOR_URL, suggestions disabled when empty
	PredictorTimeout time.Duration // PREDICTOR_TIMEOUT

	Workflow  WorkflowConfig
	RateLimit RateLimitConfig
}

// WorkflowConfig carries the approval policy switches.
type WorkflowConfig struct {
	UndecidedLinePolicy string        // UNDECIDED_LINE_POLICY, require or approve
	AutoReleaseOnEnd    bool          // AUTO_RELEASE_ON_END
	AutoReleaseInterval time.Duration // AUTO_RELEASE_INTERVAL
	DraftTTL            time.Duration // DRAFT_TTL
}

// Load reads configuration values from the environment.  Required
// variables are enforced by must() and missing values stop the process
// with a fatal log message.
func Load() Config {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg := Config{
		Env:              envStr("APP_ENV", "dev"),
		Port:             envStr("APP_PORT", "8080"),
		StoreDriver:      strings.ToLower(envStr("STORE_DRIVER", DriverMySQL)),
		JWTSecret:        must("JWT_SECRET"),
		RabbitURL:        os.Getenv("RABBITMQ_URL"),
		LogDir:           envStr("LOG_DIR", "logs"),
		PredictorURL:     os.Getenv("PREDICTOR_URL"),
		PredictorTimeout: envDur("PREDICTOR_TIMEOUT", 3*time.Second),
		Workflow:         LoadWorkflowConfig(),
		RateLimit:        LoadRateLimitConfig(),
	}
	switch cfg.StoreDriver {
	case DriverMySQL:
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	case DriverMemory:
	default:
		log.Fatalf("invalid STORE_DRIVER: %q", cfg.StoreDriver)
	}
	return cfg
}

// LoadWorkflowConfig reads the approval policy.  An unknown undecided
// line policy is fatal rather than silently defaulted.
func LoadWorkflowConfig() WorkflowConfig {
	wc := WorkflowConfig{
		UndecidedLinePolicy: strings.ToLower(envStr("UNDECIDED_LINE_POLICY", UndecidedRequire)),
		AutoReleaseOnEnd:    envBool("AUTO_RELEASE_ON_END", false),
		AutoReleaseInterval: envDur("AUTO_RELEASE_INTERVAL", time.Minute),
		DraftTTL:            envDur("DRAFT_TTL", 24*time.Hour),
	}
	if wc.UndecidedLinePolicy != UndecidedRequire && wc.UndecidedLinePolicy != UndecidedApprove {
		log.Fatalf("invalid UNDECIDED_LINE_POLICY: %q", wc.UndecidedLinePolicy)
	}
	if wc.AutoReleaseInterval <= 0 {
		wc.AutoReleaseInterval = time.Minute
	}
	if wc.DraftTTL <= 0 {
		wc.DraftTTL = 24 * time.Hour
	}
	return wc
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
