package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/park285/chess-coach/internal/board"
	"github.com/park285/chess-coach/internal/chess"
	"github.com/park285/chess-coach/pkg/coachdto"
)

type stubEvaluator struct {
	lines   []chess.EngineLine
	user    map[string]chess.EngineLine
	err     error
	evalFor []string
}

func (s *stubEvaluator) AnalyzeTopLines(ctx context.Context, pos *board.Position, n int, budget time.Duration) ([]chess.EngineLine, error) {
	if s.err != nil {
		return nil, s.err
	}
	if n < len(s.lines) {
		return s.lines[:n], nil
	}
	return s.lines, nil
}

func (s *stubEvaluator) EvaluateMove(ctx context.Context, pos *board.Position, m board.Move, budget time.Duration) (chess.EngineLine, error) {
	if s.err != nil {
		return chess.EngineLine{}, s.err
	}
	s.evalFor = append(s.evalFor, m.UCI())
	return s.user[m.UCI()], nil
}

func line(uciMove, san string, score int) chess.EngineLine {
	return chess.EngineLine{Move: uciMove, SAN: san, ScoreCP: score, Variation: []chess.PVMove{{UCI: uciMove, SAN: san}}}
}

func newTestService(t *testing.T, ev Evaluator) (*Service, Repository) {
	t.Helper()
	repo := NewMemoryRepository()
	svc, err := NewService(ev, repo, Config{}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, repo
}

func TestAnalyzePositionBundlesFacts(t *testing.T) {
	ev := &stubEvaluator{lines: []chess.EngineLine{line("e2e4", "e4", 35), line("d2d4", "d4", 30), line("g1f3", "Nf3", 25)}}
	svc, repo := newTestService(t, ev)
	sess := board.NewSession(nil)

	facts, err := svc.AnalyzePosition(context.Background(), sess)
	if err != nil {
		t.Fatalf("AnalyzePosition: %v", err)
	}
	if facts.Turn != "White" || facts.FEN != board.Start().FEN() {
		t.Fatalf("unexpected position header %+v", facts)
	}
	if len(facts.TopLines) != 3 || facts.TopLines[0].SAN != "e4" {
		t.Fatalf("unexpected top lines %+v", facts.TopLines)
	}
	if !strings.HasPrefix(facts.Heuristics, "MATERIAL:") {
		t.Fatalf("heuristics not formatted: %q", facts.Heuristics)
	}
	if facts.Opening != nil {
		t.Fatalf("no moves played so no opening expected, got %+v", facts.Opening)
	}

	rec, err := repo.GetAnalysis(context.Background(), facts.ID)
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if rec.Kind != KindPosition || rec.BestMove != "e2e4" {
		t.Fatalf("unexpected record %+v", rec)
	}
	var stored coachdto.PositionFacts
	if err := json.Unmarshal(rec.Facts, &stored); err != nil {
		t.Fatalf("stored facts are not json: %v", err)
	}
	if stored.ID != facts.ID {
		t.Fatalf("stored facts id mismatch")
	}
}

func TestAnalyzePositionNamesOpening(t *testing.T) {
	ev := &stubEvaluator{lines: []chess.EngineLine{line("g1f3", "Nf3", 40)}}
	svc, _ := newTestService(t, ev)
	sess := board.NewSession(nil)
	for _, text := range []string{"e4", "e5"} {
		m, ok := board.Resolve(sess.Position(), text)
		if !ok {
			t.Fatalf("resolve %s", text)
		}
		if _, err := sess.Apply(m); err != nil {
			t.Fatalf("apply %s: %v", text, err)
		}
	}
	facts, err := svc.AnalyzePosition(context.Background(), sess)
	if err != nil {
		t.Fatalf("AnalyzePosition: %v", err)
	}
	if facts.Opening == nil || facts.Opening.Code == "" {
		t.Fatalf("expected an ECO classification after 1.e4 e5, got %+v", facts.Opening)
	}
}

func TestCompareMoveDelta(t *testing.T) {
	ev := &stubEvaluator{
		lines: []chess.EngineLine{line("e2e4", "e4", 35), line("d2d4", "d4", 30)},
		user:  map[string]chess.EngineLine{"a2a3": line("a2a3", "a3", -5)},
	}
	svc, repo := newTestService(t, ev)
	sess := board.NewSession(nil)

	facts, err := svc.CompareMove(context.Background(), sess, "a3")
	if err != nil {
		t.Fatalf("CompareMove: %v", err)
	}
	if facts.DeltaCP != 40 || facts.UserIsBest {
		t.Fatalf("unexpected delta %d best=%v", facts.DeltaCP, facts.UserIsBest)
	}
	if facts.Best.SAN != "e4" || facts.User.SAN != "a3" {
		t.Fatalf("unexpected lines best=%+v user=%+v", facts.Best, facts.User)
	}
	if facts.HeuristicsBefore == facts.HeuristicsAfter {
		t.Fatalf("features after the move should differ")
	}
	if sess.Len() != 0 || sess.Position().FEN() != board.Start().FEN() {
		t.Fatalf("comparison must not advance the session")
	}
	if len(ev.evalFor) != 1 || ev.evalFor[0] != "a2a3" {
		t.Fatalf("expected a single evaluation of a2a3, got %v", ev.evalFor)
	}
	recs, err := repo.RecentAnalyses(context.Background(), facts.FEN, 5)
	if err != nil || len(recs) != 1 || recs[0].DeltaCP != 40 || recs[0].UserMove != "a2a3" {
		t.Fatalf("unexpected records %+v err=%v", recs, err)
	}
}

func TestCompareMoveNotResolved(t *testing.T) {
	svc, _ := newTestService(t, &stubEvaluator{})
	_, err := svc.CompareMove(context.Background(), board.NewSession(nil), "Qh5")
	if !errors.Is(err, ErrMoveNotResolved) {
		t.Fatalf("expected ErrMoveNotResolved, got %v", err)
	}
	var nr *MoveNotResolvedError
	if !errors.As(err, &nr) || len(nr.Legal) != 20 || nr.Input != "Qh5" {
		t.Fatalf("unexpected error detail %+v", nr)
	}
}

func TestEngineErrorsPropagate(t *testing.T) {
	svc, repo := newTestService(t, &stubEvaluator{err: chess.ErrEngineUnavailable})
	sess := board.NewSession(nil)
	if _, err := svc.AnalyzePosition(context.Background(), sess); !errors.Is(err, chess.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
	if _, err := svc.CompareMove(context.Background(), sess, "e4"); !errors.Is(err, chess.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
	recs, _ := repo.RecentAnalyses(context.Background(), sess.Position().FEN(), 5)
	if len(recs) != 0 {
		t.Fatalf("failed analyses must not be recorded")
	}
}

func TestNewServiceValidates(t *testing.T) {
	if _, err := NewService(nil, NewMemoryRepository(), Config{}, nil); err == nil {
		t.Fatalf("nil evaluator must fail")
	}
	if _, err := NewService(&stubEvaluator{}, nil, Config{}, nil); err == nil {
		t.Fatalf("nil repository must fail")
	}
	if _, err := NewService(&stubEvaluator{}, NewMemoryRepository(), Config{Preset: chess.AnalysisPreset{Name: "x", Lines: 0, MoveTimeMillis: 100}}, nil); err == nil {
		t.Fatalf("invalid preset must fail")
	}
}

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := repo.InsertAnalysis(ctx, &AnalysisRecord{ID: id, FEN: "f", Facts: []byte("{}"), CreatedAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}
	if err := repo.InsertAnalysis(ctx, &AnalysisRecord{ID: "a", FEN: "f"}); !errors.Is(err, ErrDuplicateRecord) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	recs, err := repo.RecentAnalyses(ctx, "f", 2)
	if err != nil || len(recs) != 2 || recs[0].ID != "c" || recs[1].ID != "b" {
		t.Fatalf("unexpected order %+v err=%v", recs, err)
	}
	if _, err := repo.GetAnalysis(ctx, "zzz"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDomainErrorOf(t *testing.T) {
	if got := DomainErrorOf(&MoveNotResolvedError{Input: "Qh5"}); got.Code != "move_not_resolved" || got.Retryable {
		t.Fatalf("unexpected mapping %+v", got)
	}
	if got := DomainErrorOf(fmt.Errorf("search: %w", chess.ErrNoEvaluation)); got.Code != "no_evaluation" || !got.Retryable {
		t.Fatalf("unexpected mapping %+v", got)
	}
	if got := DomainErrorOf(chess.ErrEngineUnavailable); got.Code != "engine_unavailable" {
		t.Fatalf("unexpected mapping %+v", got)
	}
	if got := DomainErrorOf(errors.New("boom")); got.Code != "internal" || got.Error() != "boom" {
		t.Fatalf("unexpected mapping %+v", got)
	}
}
