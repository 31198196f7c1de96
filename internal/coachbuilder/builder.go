package coachbuilder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-coach/internal/chess"
	"github.com/park285/chess-coach/internal/chess/uci"
	"github.com/park285/chess-coach/internal/config"
	"github.com/park285/chess-coach/internal/msgcat"
	"github.com/park285/chess-coach/internal/narration"
	"github.com/park285/chess-coach/internal/service/coach"
	"github.com/park285/chess-coach/internal/store"
)

// Deps is the wired application. The engine is built but not started; the
// caller starts it and must call Close on every exit path.
type Deps struct {
	Service  *coach.Service
	Engine   *chess.Engine
	Store    *store.SessionStore
	Narrator narration.Narrator
	Catalog  *msgcat.Catalog
	Preset   chess.AnalysisPreset

	closers []func() error
}

func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.StockfishPath) == "" {
		return nil, fmt.Errorf("STOCKFISH_PATH is required for the engine")
	}

	preset, err := chess.GetPreset(cfg.AnalysisPreset)
	if err != nil {
		return nil, err
	}
	preset, err = preset.WithOverrides(cfg.AnalysisLines, cfg.AnalysisTimeMS)
	if err != nil {
		return nil, fmt.Errorf("analysis overrides: %w", err)
	}

	cat, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	d := &Deps{Catalog: cat, Preset: preset}

	// Engine
	analyzer := uci.NewEngine(uci.Config{
		BinaryPath: cfg.StockfishPath,
		Options: uci.Options{
			Threads: cfg.EngineThreads,
			HashMB:  cfg.EngineHashMB,
			MultiPV: preset.Lines,
		},
		Logger: logger.Named("uci"),
	})
	d.Engine = chess.NewEngine(analyzer, chess.WithLogger(logger.Named("engine")), chess.WithMaxVariation(cfg.PVMaxMoves))
	d.closers = append(d.closers, d.Engine.Close)

	// Repository (Postgres optional, memory fallback)
	repo := coach.NewMemoryRepository()
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		pg, closeDB, err := coach.OpenRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("init repository: %w", err)
		}
		repo = pg
		d.closers = append(d.closers, closeDB)
	} else {
		logger.Info("repository_memory_fallback")
	}

	// Session store (Redis optional)
	if strings.TrimSpace(cfg.RedisURL) != "" {
		st, err := store.Open(ctx, cfg.RedisURL, time.Duration(cfg.SessionTTLSec)*time.Second, logger.Named("store"))
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("init session store: %w", err)
		}
		d.Store = st
		d.closers = append(d.closers, st.Close)
	}

	// Narration
	prompts := narration.NewPrompts(cat)
	if strings.TrimSpace(cfg.NarratorURL) != "" {
		opts := []narration.Option{narration.WithLogger(logger.Named("narration")), narration.WithRetry(cfg.NarratorRetries)}
		if cfg.NarratorTimeoutMS > 0 {
			opts = append(opts, narration.WithTimeout(time.Duration(cfg.NarratorTimeoutMS)*time.Millisecond))
		}
		if cfg.NarratorBackoffMS > 0 {
			opts = append(opts, narration.WithBackoff(time.Duration(cfg.NarratorBackoffMS)*time.Millisecond))
		}
		d.Narrator = narration.NewHTTPNarrator(cfg.NarratorURL, cfg.NarratorAPIKey, cfg.NarratorModel, prompts, opts...)
	} else {
		d.Narrator = narration.NewPromptNarrator(prompts)
	}

	svc, err := coach.NewService(d.Engine, repo, coach.Config{Preset: preset}, logger.Named("coach"))
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	d.Service = svc
	return d, nil
}

// Close releases everything New acquired, newest first.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
