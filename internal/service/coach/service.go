package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-coach/internal/board"
	"github.com/park285/chess-coach/internal/chess"
	"github.com/park285/chess-coach/internal/heuristics"
	"github.com/park285/chess-coach/pkg/coachdto"
)

var ErrMoveNotResolved = errors.New("move not resolved")

// MoveNotResolvedError reports text that names no legal move, with the legal
// moves in algebraic form for re-prompting.
type MoveNotResolvedError struct {
	Input string
	Legal []string
}

func (e *MoveNotResolvedError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMoveNotResolved, e.Input)
}

func (e *MoveNotResolvedError) Unwrap() error { return ErrMoveNotResolved }

// Evaluator is the engine capability the pipeline needs; *chess.Engine
// satisfies it.
type Evaluator interface {
	AnalyzeTopLines(ctx context.Context, pos *board.Position, n int, budget time.Duration) ([]chess.EngineLine, error)
	EvaluateMove(ctx context.Context, pos *board.Position, m board.Move, budget time.Duration) (chess.EngineLine, error)
}

type Config struct {
	Preset chess.AnalysisPreset
}

// Service runs the analysis pipeline: resolve, evaluate, extract features,
// then bundle the facts for narration.
type Service struct {
	engine Evaluator
	repo   Repository
	preset chess.AnalysisPreset
	logger *zap.Logger

	bookOnce sync.Once
	book     *opening.BookECO
}

func NewService(engine Evaluator, repo Repository, cfg Config, logger *zap.Logger) (*Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine evaluator is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("analysis repository is required")
	}
	preset := cfg.Preset
	if preset.Name == "" {
		p, err := chess.GetPreset(chess.DefaultPresetName)
		if err != nil {
			return nil, err
		}
		preset = p
	}
	if err := chess.ValidatePreset(preset); err != nil {
		return nil, fmt.Errorf("analysis preset validation failed: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{engine: engine, repo: repo, preset: preset, logger: logger}, nil
}

func (s *Service) Preset() chess.AnalysisPreset { return s.preset }

// AnalyzePosition gathers the fact set for the session's current position.
func (s *Service) AnalyzePosition(ctx context.Context, sess *board.Session) (*coachdto.PositionFacts, error) {
	pos := sess.Position()
	start := time.Now()
	lines, err := s.engine.AnalyzeTopLines(ctx, pos, s.preset.Lines, s.preset.Budget())
	if err != nil {
		s.logger.Warn("coach_analyze_failed", zap.String("fen", pos.FEN()), zap.Error(err))
		return nil, err
	}
	facts := &coachdto.PositionFacts{
		ID:         uuid.NewString(),
		FEN:        pos.FEN(),
		Turn:       board.ColorName(pos.Turn()),
		Opening:    s.openingFor(sess),
		TopLines:   toLines(lines),
		Heuristics: heuristics.Format(heuristics.Extract(pos)),
	}
	s.logger.Info("coach_analyze",
		zap.String("id", facts.ID),
		zap.String("fen", facts.FEN),
		zap.String("best", lines[0].SAN),
		zap.Int("lines", len(lines)),
		zap.String("preset", s.preset.Name),
		zap.Duration("took", time.Since(start)),
	)
	s.record(ctx, &AnalysisRecord{
		ID:       facts.ID,
		Kind:     KindPosition,
		FEN:      facts.FEN,
		BestMove: lines[0].Move,
	}, facts)
	return facts, nil
}

// CompareMove resolves input against the current position and contrasts it
// with the engine's best line. The session is not advanced.
func (s *Service) CompareMove(ctx context.Context, sess *board.Session, input string) (*coachdto.ComparisonFacts, error) {
	pos := sess.Position()
	m, ok := board.Resolve(pos, input)
	if !ok {
		return nil, &MoveNotResolvedError{Input: strings.TrimSpace(input), Legal: pos.LegalMovesSAN()}
	}
	after, err := pos.Apply(m)
	if err != nil {
		return nil, err
	}

	lines, err := s.engine.AnalyzeTopLines(ctx, pos, s.preset.Lines, s.preset.Budget())
	if err != nil {
		s.logger.Warn("coach_compare_failed", zap.String("fen", pos.FEN()), zap.String("move", m.UCI()), zap.Error(err))
		return nil, err
	}
	userLine, err := s.engine.EvaluateMove(ctx, pos, m, s.preset.Budget())
	if err != nil {
		s.logger.Warn("coach_compare_failed", zap.String("fen", pos.FEN()), zap.String("move", m.UCI()), zap.Error(err))
		return nil, err
	}

	best := lines[0]
	facts := &coachdto.ComparisonFacts{
		ID:               uuid.NewString(),
		FEN:              pos.FEN(),
		Turn:             board.ColorName(pos.Turn()),
		Best:             toLine(best),
		User:             toLine(userLine),
		DeltaCP:          best.ScoreCP - userLine.ScoreCP,
		UserIsBest:       best.Move == userLine.Move,
		TopLines:         toLines(lines),
		HeuristicsBefore: heuristics.Format(heuristics.Extract(pos)),
		HeuristicsAfter:  heuristics.Format(heuristics.Extract(after)),
	}
	s.logger.Info("coach_compare",
		zap.String("id", facts.ID),
		zap.String("fen", facts.FEN),
		zap.String("best", best.SAN),
		zap.String("user", userLine.SAN),
		zap.Int("delta_cp", facts.DeltaCP),
	)
	s.record(ctx, &AnalysisRecord{
		ID:       facts.ID,
		Kind:     KindComparison,
		FEN:      facts.FEN,
		BestMove: best.Move,
		UserMove: userLine.Move,
		DeltaCP:  facts.DeltaCP,
	}, facts)
	return facts, nil
}

// Recent lists stored analyses of fen, newest first.
func (s *Service) Recent(ctx context.Context, fen string, limit int) ([]*AnalysisRecord, error) {
	return s.repo.RecentAnalyses(ctx, strings.TrimSpace(fen), limit)
}

// Analysis loads one stored analysis by id.
func (s *Service) Analysis(ctx context.Context, id string) (*AnalysisRecord, error) {
	return s.repo.GetAnalysis(ctx, strings.TrimSpace(id))
}

// record persists facts; failures are logged, never returned.
func (s *Service) record(ctx context.Context, rec *AnalysisRecord, facts any) {
	raw, err := json.Marshal(facts)
	if err != nil {
		s.logger.Warn("coach_record_marshal_failed", zap.String("id", rec.ID), zap.Error(err))
		return
	}
	rec.Facts = raw
	rec.CreatedAt = time.Now().UTC()
	if err := s.repo.InsertAnalysis(ctx, rec); err != nil {
		s.logger.Warn("coach_record_failed", zap.String("id", rec.ID), zap.String("kind", rec.Kind), zap.Error(err))
	}
}

// openingFor classifies the played sequence when the session started from the
// standard layout.
func (s *Service) openingFor(sess *board.Session) *coachdto.Opening {
	moves := sess.MovesUCI()
	if len(moves) == 0 || sess.StartFEN() != board.Start().FEN() {
		return nil
	}
	game := nchess.NewGame()
	uciNotation := nchess.UCINotation{}
	for _, text := range moves {
		mv, err := uciNotation.Decode(game.Position(), text)
		if err != nil {
			return nil
		}
		if err := game.Move(mv, nil); err != nil {
			return nil
		}
	}
	s.bookOnce.Do(func() { s.book = opening.NewBookECO() })
	if s.book == nil {
		return nil
	}
	eco := s.book.Find(game.Moves())
	if eco == nil {
		return nil
	}
	return &coachdto.Opening{Code: eco.Code(), Title: eco.Title()}
}

func toLine(l chess.EngineLine) coachdto.Line {
	return coachdto.Line{
		Move:        l.Move,
		SAN:         l.SAN,
		ScoreCP:     l.ScoreCP,
		Mate:        l.Mate,
		IsMate:      l.IsMate,
		Variation:   l.VariationSAN(),
		TruncatedAt: l.TruncatedAt,
	}
}

func toLines(lines []chess.EngineLine) []coachdto.Line {
	out := make([]coachdto.Line, len(lines))
	for i, l := range lines {
		out[i] = toLine(l)
	}
	return out
}

// DomainErrorOf maps a service failure to its stable user-facing code.
func DomainErrorOf(err error) coachdto.DomainError {
	switch {
	case err == nil:
		return coachdto.DomainError{}
	case errors.Is(err, ErrMoveNotResolved), errors.Is(err, board.ErrIllegalMove):
		return coachdto.DomainError{Code: "move_not_resolved", Message: err.Error()}
	case errors.Is(err, board.ErrInvalidRecord):
		return coachdto.DomainError{Code: "invalid_position", Message: err.Error()}
	case errors.Is(err, chess.ErrNoEvaluation):
		return coachdto.DomainError{Code: "no_evaluation", Message: err.Error(), Retryable: true}
	case errors.Is(err, chess.ErrEngineUnavailable):
		return coachdto.DomainError{Code: "engine_unavailable", Message: err.Error()}
	default:
		return coachdto.DomainError{Code: "internal", Message: err.Error()}
	}
}
