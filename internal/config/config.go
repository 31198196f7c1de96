package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	StockfishPath string
	EngineThreads int
	EngineHashMB  int

	AnalysisPreset string
	AnalysisLines  int
	AnalysisTimeMS int
	PVMaxMoves     int

	RedisURL      string
	SessionTTLSec int
	DatabaseURL   string

	NarratorURL    string
	NarratorAPIKey string
	NarratorModel  string

	// Per-request deadline, rate-limit attempts and first backoff wait.
	NarratorTimeoutMS int
	NarratorRetries   int
	NarratorBackoffMS int

	MessagesDir string
}

// LoadDotEnv reads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		EngineThreads:  1,
		EngineHashMB:   64,
		AnalysisPreset: "standard",
		PVMaxMoves:     5,
		SessionTTLSec:  86400,
		NarratorModel:  "claude-sonnet-4-5-20250929",

		NarratorTimeoutMS: 60000,
		NarratorRetries:   3,
		NarratorBackoffMS: 1000,
	}

	cfg.StockfishPath = strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))
	if v := strings.TrimSpace(os.Getenv("ENGINE_THREADS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EngineThreads = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_HASH_MB")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EngineHashMB = n
		}
	}

	// Analysis
	if v := strings.TrimSpace(os.Getenv("ANALYSIS_PRESET")); v != "" {
		cfg.AnalysisPreset = v
	}
	if v := strings.TrimSpace(os.Getenv("ANALYSIS_LINES")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("ANALYSIS_LINES must be a positive integer: %q", v)
		}
		cfg.AnalysisLines = n
	}
	if v := strings.TrimSpace(os.Getenv("ANALYSIS_TIME_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("ANALYSIS_TIME_MS must be a positive integer: %q", v)
		}
		cfg.AnalysisTimeMS = n
	}
	if v := strings.TrimSpace(os.Getenv("PV_MAX_MOVES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PVMaxMoves = n
		}
	}

	// Persistence
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if v := strings.TrimSpace(os.Getenv("SESSION_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionTTLSec = n
		}
	}

	// Narration
	cfg.NarratorURL = strings.TrimSpace(os.Getenv("NARRATOR_URL"))
	cfg.NarratorAPIKey = strings.TrimSpace(os.Getenv("NARRATOR_API_KEY"))
	if v := strings.TrimSpace(os.Getenv("NARRATOR_MODEL")); v != "" {
		cfg.NarratorModel = v
	}
	if v := strings.TrimSpace(os.Getenv("NARRATOR_TIMEOUT_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.NarratorTimeoutMS = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("NARRATOR_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.NarratorRetries = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("NARRATOR_BACKOFF_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.NarratorBackoffMS = n
		}
	}

	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	return cfg, nil
}

// Validate checks the settings the command loop cannot run without.
func (c *AppConfig) Validate() error {
	if c.StockfishPath == "" {
		return errors.New("STOCKFISH_PATH is required")
	}
	if c.NarratorURL != "" && c.NarratorAPIKey == "" {
		return errors.New("NARRATOR_API_KEY is required when NARRATOR_URL is set")
	}
	return nil
}
