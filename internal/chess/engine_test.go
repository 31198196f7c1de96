package chess

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/park285/chess-coach/internal/board"
	"github.com/park285/chess-coach/internal/chess/uci"
)

type stubAnalyzer struct {
	startErr error
	stopped  int
	requests []uci.AnalysisRequest
	analyze  func(req uci.AnalysisRequest) ([]uci.Candidate, error)
}

func (s *stubAnalyzer) Start(context.Context) error { return s.startErr }

func (s *stubAnalyzer) Stop() error {
	s.stopped++
	return nil
}

func (s *stubAnalyzer) Analyze(_ context.Context, req uci.AnalysisRequest) ([]uci.Candidate, error) {
	s.requests = append(s.requests, req)
	return s.analyze(req)
}

func cand(multipv, cp int, pv ...string) uci.Candidate {
	return uci.Candidate{MultiPV: multipv, Move: pv[0], EvalCP: cp, Principal: pv}
}

func mustFEN(t *testing.T, record string) *board.Position {
	t.Helper()
	p, err := board.FromFEN(record)
	if err != nil {
		t.Fatalf("FromFEN(%q): %v", record, err)
	}
	return p
}

func assertSequentiallyLegal(t *testing.T, pos *board.Position, line EngineLine) {
	t.Helper()
	scratch := pos
	for i, mv := range line.Variation {
		m, ok := board.ParseCoordinate(scratch, mv.UCI)
		if !ok {
			t.Fatalf("line %s: step %d %s is illegal", line.Move, i, mv.UCI)
		}
		if got := scratch.SAN(m); got != mv.SAN {
			t.Fatalf("line %s: step %d label %q, want %q", line.Move, i, mv.SAN, got)
		}
		next, err := scratch.Apply(m)
		if err != nil {
			t.Fatalf("apply %s: %v", mv.UCI, err)
		}
		scratch = next
	}
}

func TestAnalyzeTopLinesReconcilesBadVariations(t *testing.T) {
	stub := &stubAnalyzer{analyze: func(uci.AnalysisRequest) ([]uci.Candidate, error) {
		return []uci.Candidate{
			cand(1, 30, "e2e4", "e7e5", "e1e3", "b8c6"),
			cand(2, 25, "d2d4", "d7d5", "c2c4", "e7e6", "b1c3", "g8f6", "c1g5"),
			cand(3, 20, "e2e4", "c7c5"),
			cand(4, 10, "e2e5", "e7e5"),
		}, nil
	}}
	e := NewEngine(stub)
	pos := board.Start()

	lines, err := e.AnalyzeTopLines(context.Background(), pos, 3, time.Second)
	if err != nil {
		t.Fatalf("AnalyzeTopLines: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %+v", len(lines), lines)
	}
	for _, l := range lines {
		assertSequentiallyLegal(t, pos, l)
	}

	if l := lines[0]; l.SAN != "e4" || len(l.Variation) != 2 || !l.Truncated || l.TruncatedAt != "e1e3" {
		t.Fatalf("unexpected truncated line %+v", l)
	}
	if l := lines[1]; l.SAN != "d4" || len(l.Variation) != DefaultMaxVariation || l.Truncated {
		t.Fatalf("unexpected capped line %+v", l)
	}
	if l := lines[2]; l.SAN != "e2e5" || len(l.Variation) != 0 || l.TruncatedAt != "e2e5" {
		t.Fatalf("illegal first move must keep its coordinate label: %+v", l)
	}
	if stub.requests[0].FEN != pos.FEN() || stub.requests[0].Lines != 3 {
		t.Fatalf("unexpected request %+v", stub.requests[0])
	}
}

func TestAnalyzeTopLinesDistinctLegalFirstMoves(t *testing.T) {
	stub := &stubAnalyzer{analyze: func(uci.AnalysisRequest) ([]uci.Candidate, error) {
		return []uci.Candidate{
			cand(1, 35, "e2e4", "e7e5"),
			cand(2, 30, "d2d4", "g8f6"),
			cand(3, 28, "g1f3", "d7d5"),
		}, nil
	}}
	pos := board.Start()
	lines, err := NewEngine(stub).AnalyzeTopLines(context.Background(), pos, 3, time.Second)
	if err != nil {
		t.Fatalf("AnalyzeTopLines: %v", err)
	}
	seen := map[string]bool{}
	for _, l := range lines {
		if seen[l.Move] {
			t.Fatalf("duplicate first move %s", l.Move)
		}
		seen[l.Move] = true
		if m, ok := board.ParseCoordinate(pos, l.Move); !ok || !pos.IsLegal(m) {
			t.Fatalf("first move %s is not legal", l.Move)
		}
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 distinct first moves, got %v", seen)
	}
}

func TestZeroAdvantageReadsZeroForEitherSide(t *testing.T) {
	stub := &stubAnalyzer{analyze: func(req uci.AnalysisRequest) ([]uci.Candidate, error) {
		if req.FEN == "4k3/8/8/8/8/8/8/4K3 w - - 0 1" {
			return []uci.Candidate{cand(1, 0, "e1e2")}, nil
		}
		return []uci.Candidate{cand(1, 0, "e8e7")}, nil
	}}
	e := NewEngine(stub)
	for _, record := range []string{"4k3/8/8/8/8/8/8/4K3 w - - 0 1", "4k3/8/8/8/8/8/8/4K3 b - - 0 1"} {
		lines, err := e.AnalyzeTopLines(context.Background(), mustFEN(t, record), 1, time.Second)
		if err != nil {
			t.Fatalf("AnalyzeTopLines(%s): %v", record, err)
		}
		if lines[0].ScoreCP != 0 {
			t.Fatalf("%s: score %d, want 0", record, lines[0].ScoreCP)
		}
	}
}

func TestScoresSubtractWithoutSignFlips(t *testing.T) {
	pos := mustFEN(t, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1")
	stub := &stubAnalyzer{analyze: func(req uci.AnalysisRequest) ([]uci.Candidate, error) {
		if req.FEN == pos.FEN() {
			// black is 40 better: white-relative -40
			return []uci.Candidate{cand(1, -40, "c7c5", "g1f3")}, nil
		}
		return []uci.Candidate{cand(1, -10, "g1f3", "b8c6")}, nil
	}}
	e := NewEngine(stub)

	best, err := e.AnalyzeTopLines(context.Background(), pos, 1, time.Second)
	if err != nil {
		t.Fatalf("AnalyzeTopLines: %v", err)
	}
	if best[0].ScoreCP != 40 {
		t.Fatalf("best score %d, want 40 for the side to move", best[0].ScoreCP)
	}

	m, _ := board.Resolve(pos, "e5")
	user, err := e.EvaluateMove(context.Background(), pos, m, time.Second)
	if err != nil {
		t.Fatalf("EvaluateMove: %v", err)
	}
	if user.ScoreCP != 10 || user.SAN != "e5" {
		t.Fatalf("unexpected user line %+v", user)
	}
	if delta := best[0].ScoreCP - user.ScoreCP; delta != 30 {
		t.Fatalf("delta %d, want 30", delta)
	}
	if len(user.Variation) != 3 || user.Variation[0].SAN != "e5" || user.Variation[1].SAN != "Nf3" {
		t.Fatalf("unexpected user variation %+v", user.Variation)
	}
	assertSequentiallyLegal(t, pos, user)
}

func TestEvaluateMoveDetectsMateWithoutEngine(t *testing.T) {
	stub := &stubAnalyzer{analyze: func(uci.AnalysisRequest) ([]uci.Candidate, error) {
		return nil, errors.New("analyzer must not be called")
	}}
	pos := mustFEN(t, "rnbqkbnr/pppp1ppp/8/4p3/6P1/5P2/PPPPP2P/RNBQKBNR b KQkq - 0 2")
	m, ok := board.Resolve(pos, "Qh4")
	if !ok {
		t.Fatalf("Qh4 not resolved")
	}
	line, err := NewEngine(stub).EvaluateMove(context.Background(), pos, m, time.Second)
	if err != nil {
		t.Fatalf("EvaluateMove: %v", err)
	}
	if !line.IsMate || line.Mate != 1 || line.ScoreCP != MateScore-1 || line.ScoreLabel() != "mate in 1" {
		t.Fatalf("unexpected mate line %+v", line)
	}
}

func TestEvaluateMoveCountsPlayedMoveInMateDistance(t *testing.T) {
	// white to move mates in 2 after the move under evaluation
	pos := mustFEN(t, "6k1/5ppp/8/8/8/8/8/R3K3 w Q - 0 1")
	stub := &stubAnalyzer{analyze: func(req uci.AnalysisRequest) ([]uci.Candidate, error) {
		if req.FEN == pos.FEN() {
			return []uci.Candidate{{MultiPV: 1, Move: "a1a8", IsMate: true, Mate: 1, EvalCP: MateScore - 1, Principal: []string{"a1a8"}}}, nil
		}
		return []uci.Candidate{{MultiPV: 1, Move: "g8h8", IsMate: true, Mate: 1, EvalCP: MateScore - 1, Principal: []string{"g8h8"}}}, nil
	}}
	e := NewEngine(stub)
	m, _ := board.Resolve(pos, "Ra2")
	line, err := e.EvaluateMove(context.Background(), pos, m, time.Second)
	if err != nil {
		t.Fatalf("EvaluateMove: %v", err)
	}
	if line.Mate != 2 || line.ScoreCP != MateScore-2 {
		t.Fatalf("unexpected mate distance %+v", line)
	}
}

func TestEngineErrorMapping(t *testing.T) {
	pos := board.Start()
	check := func(err error, want error) {
		t.Helper()
		stub := &stubAnalyzer{analyze: func(uci.AnalysisRequest) ([]uci.Candidate, error) { return nil, err }}
		_, got := NewEngine(stub).AnalyzeTopLines(context.Background(), pos, 3, time.Second)
		if !errors.Is(got, want) {
			t.Fatalf("error %v mapped to %v, want %v", err, got, want)
		}
	}
	check(uci.ErrSearchTimeout, ErrNoEvaluation)
	check(uci.ErrBroken, ErrEngineUnavailable)
	check(uci.ErrProcessExited, ErrEngineUnavailable)
	check(nil, ErrNoEvaluation)
}

func TestStartFailureReleasesAnalyzer(t *testing.T) {
	stub := &stubAnalyzer{startErr: errors.New("exec: not found")}
	err := NewEngine(stub).Start(context.Background())
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
	if stub.stopped != 1 {
		t.Fatalf("half-started analyzer not released")
	}
}

func TestPresets(t *testing.T) {
	p, err := GetPreset("")
	if err != nil || p.Name != DefaultPresetName || p.Lines != 3 || p.Budget() != time.Second {
		t.Fatalf("unexpected default preset %+v, %v", p, err)
	}
	if _, err := GetPreset("nope"); err == nil || !strings.Contains(err.Error(), "available: deep, quick, standard") {
		t.Fatalf("unknown preset error should list the presets, got %v", err)
	}
	deep, _ := GetPreset("thorough")
	if deep.Lines != 5 {
		t.Fatalf("unexpected deep preset %+v", deep)
	}
	if _, err := p.WithOverrides(0, -1); err != nil {
		t.Fatalf("zero overrides must keep preset: %v", err)
	}
	if o, _ := p.WithOverrides(4, 200); o.Lines != 4 || o.MoveTimeMillis != 200 {
		t.Fatalf("overrides not applied: %+v", o)
	}
}
