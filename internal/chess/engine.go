package chess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-coach/internal/board"
	"github.com/park285/chess-coach/internal/chess/uci"
)

var (
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrNoEvaluation      = errors.New("engine produced no evaluation")
)

// Analyzer is the search capability the orchestrator drives. Candidates carry
// White-relative scores.
type Analyzer interface {
	Start(ctx context.Context) error
	Analyze(ctx context.Context, req uci.AnalysisRequest) ([]uci.Candidate, error)
	Stop() error
}

// Engine reconciles raw analyzer output against the rules library. It is
// meant for one caller at a time.
type Engine struct {
	analyzer     Analyzer
	logger       *zap.Logger
	maxVariation int
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxVariation caps the stored principal variation length.
func WithMaxVariation(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxVariation = n
		}
	}
}

func NewEngine(a Analyzer, opts ...Option) *Engine {
	e := &Engine{
		analyzer:     a,
		logger:       zap.NewNop(),
		maxVariation: DefaultMaxVariation,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start brings the analyzer up. On failure the half-started analyzer is
// released and the engine must not be used.
func (e *Engine) Start(ctx context.Context) error {
	if e.analyzer == nil {
		return fmt.Errorf("%w: no analyzer configured", ErrEngineUnavailable)
	}
	if err := e.analyzer.Start(ctx); err != nil {
		_ = e.analyzer.Stop()
		e.logger.Error("engine_start_failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	return nil
}

// Close releases the analyzer.
func (e *Engine) Close() error {
	if e.analyzer == nil {
		return nil
	}
	return e.analyzer.Stop()
}

// AnalyzeTopLines returns up to n lines for pos, best first. Every line's
// variation is legal move by move from pos and first moves are distinct.
func (e *Engine) AnalyzeTopLines(ctx context.Context, pos *board.Position, n int, budget time.Duration) ([]EngineLine, error) {
	legal := len(pos.LegalMoves())
	if legal == 0 {
		return nil, fmt.Errorf("%w: position has no legal moves", ErrNoEvaluation)
	}
	if n <= 0 {
		n = 1
	}
	if n > legal {
		n = legal
	}

	start := time.Now()
	cands, err := e.analyzer.Analyze(ctx, uci.AnalysisRequest{FEN: pos.FEN(), Lines: n, Budget: budget})
	if err != nil {
		return nil, e.mapError(err)
	}

	lines := make([]EngineLine, 0, len(cands))
	seen := make(map[string]struct{}, len(cands))
	for _, c := range cands {
		line := reconcile(pos, c, e.maxVariation)
		if _, dup := seen[line.Move]; dup {
			continue
		}
		seen[line.Move] = struct{}{}
		if line.Truncated {
			e.logger.Debug("engine_pv_truncated",
				zap.String("fen", pos.FEN()),
				zap.String("move", line.Move),
				zap.String("truncated_at", line.TruncatedAt),
				zap.Int("kept", len(line.Variation)))
		}
		lines = append(lines, line)
		if len(lines) == n {
			break
		}
	}
	if len(lines) == 0 {
		return nil, ErrNoEvaluation
	}

	e.logger.Debug("engine_analyze",
		zap.String("fen", pos.FEN()),
		zap.Int("requested", n),
		zap.Int("lines", len(lines)),
		zap.Duration("took", time.Since(start)))
	return lines, nil
}

// EvaluateMove scores the legal move m of pos from the mover's side, so a
// best line and the evaluated move subtract directly.
func (e *Engine) EvaluateMove(ctx context.Context, pos *board.Position, m board.Move, budget time.Duration) (EngineLine, error) {
	san := pos.SAN(m)
	next, err := pos.Apply(m)
	if err != nil {
		return EngineLine{}, err
	}
	mover := pos.Turn()
	line := EngineLine{
		Move:      m.UCI(),
		SAN:       san,
		Variation: []PVMove{{UCI: m.UCI(), SAN: san}},
	}

	if len(next.LegalMoves()) == 0 {
		if next.InCheck() {
			line.IsMate = true
			line.Mate = 1
			line.ScoreCP = MateScore - 1
		}
		return line, nil
	}

	cands, err := e.analyzer.Analyze(ctx, uci.AnalysisRequest{FEN: next.FEN(), Lines: 1, Budget: budget})
	if err != nil {
		return EngineLine{}, e.mapError(err)
	}
	if len(cands) == 0 {
		return EngineLine{}, ErrNoEvaluation
	}

	reply := reconcile(next, cands[0], e.maxVariation-1)
	line.Depth = reply.Depth
	line.Variation = append(line.Variation, reply.Variation...)
	line.Truncated = reply.Truncated
	line.TruncatedAt = reply.TruncatedAt
	line.ScoreCP = orient(cands[0].EvalCP, mover)
	if cands[0].IsMate {
		line.IsMate = true
		line.Mate = orient(cands[0].Mate, mover)
		if line.Mate > 0 {
			// count the evaluated move itself
			line.Mate++
		}
		line.ScoreCP = mateScore(line.Mate)
	}
	return line, nil
}

func mateScore(mate int) int {
	if mate > 0 {
		return MateScore - mate
	}
	return -(MateScore + mate)
}

func (e *Engine) mapError(err error) error {
	switch {
	case errors.Is(err, uci.ErrSearchTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		e.logger.Warn("engine_no_evaluation", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrNoEvaluation, err)
	case errors.Is(err, ErrEngineUnavailable), errors.Is(err, ErrNoEvaluation):
		return err
	}
	e.logger.Error("engine_unavailable", zap.Error(err))
	return fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
}
