package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/PabloGalante/symposium/internal/app/debate"
	"github.com/PabloGalante/symposium/internal/domain"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

const (
	StorageMemory    = "memory"
	StorageFirestore = "firestore"
	StorageBadger    = "badger"
)

type Config struct {
	Mode Mode

	Port string

	// Gemini API key; when empty the Vertex AI backend is used with the
	// GCP project and location below.
	APIKey       string
	GCPProjectID string
	GCPLocation  string
	ModelName    string

	StorageBackend string // "memory", "firestore" or "badger"
	BadgerDir      string
	UseMockLLM     bool // true = use mock even on GCP

	CatalogPath string

	FrameInterval time.Duration
	CommitDelay   time.Duration
	FailurePolicy debate.FailurePolicy
	HistoryLimit  int

	LogLevel slog.Level

	Settings domain.Settings
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %s", key, v)
	}
	return d, nil
}

func getIntEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getFloatEnv(key string, def float32) (float32, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return float32(f), nil
}

// Load reads all env vars and builds the config
func Load() (*Config, error) {
	modeStr := getEnv("SYMPOSIUM_MODE", "local")
	var mode Mode
	switch modeStr {
	case "gcp":
		mode = ModeGCP
	default:
		mode = ModeLocal
	}

	cfg := &Config{
		Mode: mode,

		Port: getEnv("SYMPOSIUM_PORT", "8080"),

		APIKey:       getEnv("SYMPOSIUM_API_KEY", os.Getenv("GEMINI_API_KEY")),
		GCPProjectID: getEnv("SYMPOSIUM_GCP_PROJECT", ""),
		GCPLocation:  getEnv("SYMPOSIUM_GCP_LOCATION", "us-central1"),
		ModelName:    getEnv("SYMPOSIUM_MODEL_NAME", "gemini-2.5-flash"),

		StorageBackend: strings.ToLower(getEnv("SYMPOSIUM_STORAGE_BACKEND", StorageMemory)),
		BadgerDir:      getEnv("SYMPOSIUM_BADGER_DIR", "./data/symposium"),
		UseMockLLM:     getBoolEnv("SYMPOSIUM_USE_MOCK_LLM", mode == ModeLocal),

		CatalogPath: getEnv("SYMPOSIUM_CATALOG", ""),
	}

	var err error
	if cfg.FrameInterval, err = getDurationEnv("SYMPOSIUM_FRAME_INTERVAL", 16*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.FrameInterval == 0 {
		return nil, fmt.Errorf("SYMPOSIUM_FRAME_INTERVAL must be positive")
	}
	if cfg.CommitDelay, err = getDurationEnv("SYMPOSIUM_COMMIT_DELAY", 50*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.HistoryLimit, err = getIntEnv("SYMPOSIUM_HISTORY_LIMIT", 0); err != nil {
		return nil, err
	}
	if cfg.FailurePolicy, err = debate.ParseFailurePolicy(getEnv("SYMPOSIUM_DEBATE_FAILURE_POLICY", "")); err != nil {
		return nil, err
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("SYMPOSIUM_LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("SYMPOSIUM_LOG_LEVEL: %w", err)
	}

	cfg.Settings = domain.DefaultSettings()
	if cfg.Settings.Temperature, err = getFloatEnv("SYMPOSIUM_TEMPERATURE", cfg.Settings.Temperature); err != nil {
		return nil, err
	}
	maxLen, err := getIntEnv("SYMPOSIUM_MAX_OUTPUT_LENGTH", 0)
	if err != nil {
		return nil, err
	}
	cfg.Settings.MaxOutputLength = int32(maxLen)
	cfg.Settings.AllowInterruption = getBoolEnv("SYMPOSIUM_ALLOW_INTERRUPTION", cfg.Settings.AllowInterruption)
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}

	switch cfg.StorageBackend {
	case StorageMemory, StorageBadger:
	case StorageFirestore:
		if cfg.GCPProjectID == "" {
			return nil, fmt.Errorf("SYMPOSIUM_GCP_PROJECT must be set for firestore storage")
		}
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	// Minimal validation in GCP mode
	if cfg.Mode == ModeGCP && cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("SYMPOSIUM_GCP_PROJECT must be set in gcp mode")
	}

	return cfg, nil
}
