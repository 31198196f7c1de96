package uci

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotStarted = errors.New("engine not started")
	ErrNoBinary   = errors.New("engine path not configured")
)

type Config struct {
	BinaryPath string
	Options    Options
	Logger     *zap.Logger
}

// AnalysisRequest asks for the top Lines lines of FEN within Budget.
type AnalysisRequest struct {
	FEN    string
	Lines  int
	Budget time.Duration
}

// Engine owns exactly one engine process for its lifetime. Candidates it
// returns carry White-relative scores.
type Engine struct {
	cfg     Config
	logger  *zap.Logger
	starter func(ctx context.Context) (*Session, error)

	mu      sync.Mutex
	session *Session
}

func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Options.MultiPV <= 0 {
		cfg.Options.MultiPV = 1
	}
	if cfg.Options.HashMB <= 0 {
		cfg.Options.HashMB = 16
	}
	e := &Engine{cfg: cfg, logger: logger}
	e.starter = func(ctx context.Context) (*Session, error) {
		if strings.TrimSpace(cfg.BinaryPath) == "" {
			return nil, ErrNoBinary
		}
		return NewSession(ctx, cfg.BinaryPath, cfg.Options, logger)
	}
	return e
}

// Start launches the engine process and completes the handshake. A failed
// start leaves no process behind.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		return nil
	}
	s, err := e.starter(ctx)
	if err != nil {
		return err
	}
	if err := s.NewGame(ctx); err != nil {
		s.Close()
		return err
	}
	e.session = s
	e.logger.Info("engine_started", zap.String("path", e.cfg.BinaryPath))
	return nil
}

func (e *Engine) Analyze(ctx context.Context, req AnalysisRequest) ([]Candidate, error) {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		return nil, ErrNotStarted
	}

	lines := req.Lines
	if lines <= 0 {
		lines = 1
	}
	ms := int(req.Budget / time.Millisecond)
	if ms <= 0 {
		ms = 1000
	}
	resp, err := s.Search(ctx, SearchRequest{
		FEN:     req.FEN,
		Limits:  Limits{MoveTimeMillis: ms},
		MultiPV: lines,
	})
	if err != nil {
		return nil, err
	}

	black := sideToMoveIsBlack(req.FEN)
	out := make([]Candidate, 0, len(resp.Candidates))
	for _, c := range resp.Candidates {
		if c.MultiPV > lines {
			continue
		}
		out = append(out, whiteRelative(c, black))
	}
	e.logger.Debug("engine_search_done",
		zap.String("fen", req.FEN),
		zap.Int("lines", len(out)),
		zap.String("bestmove", resp.BestMove))
	return out, nil
}

// Stop shuts the engine process down. It is safe to call more than once.
func (e *Engine) Stop() error {
	e.mu.Lock()
	s := e.session
	e.session = nil
	e.mu.Unlock()
	if s == nil {
		return nil
	}
	err := s.Close()
	e.logger.Info("engine_stopped", zap.Error(err))
	return err
}

func whiteRelative(c Candidate, blackToMove bool) Candidate {
	if blackToMove {
		c.EvalCP = -c.EvalCP
		c.Mate = -c.Mate
	}
	return c
}

func sideToMoveIsBlack(fen string) bool {
	fields := strings.Fields(fen)
	return len(fields) > 1 && fields[1] == "b"
}
