package coachpresenter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/park285/chess-coach/internal/board"
	"github.com/park285/chess-coach/internal/msgcat"
	"github.com/park285/chess-coach/internal/service/coach"
	"github.com/park285/chess-coach/internal/store"
	"github.com/park285/chess-coach/pkg/coachdto"
)

func newPresenter(t *testing.T) (*Presenter, *bytes.Buffer) {
	t.Helper()
	cat, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	var buf bytes.Buffer
	return NewPresenter(&buf, cat), &buf
}

func TestSayRendersCatalog(t *testing.T) {
	p, buf := newPresenter(t)
	p.Say("repl.illegal_move", struct{ Move string }{"Qh5"})
	p.Say("repl.missing", nil)
	want := "Invalid or illegal move: 'Qh5'\nrepl.missing\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestBoardFooter(t *testing.T) {
	p, buf := newPresenter(t)
	p.Board(board.Start(), true)
	out := buf.String()
	if !strings.HasPrefix(out, "r n b q k b n r") {
		t.Fatalf("board diagram missing:\n%s", out)
	}
	if !strings.Contains(out, "FEN: "+board.Start().FEN()) || !strings.Contains(out, "Move 1, White to move.") {
		t.Fatalf("footer missing:\n%s", out)
	}
}

func TestFormatterComparison(t *testing.T) {
	f := NewFormatter()
	got := f.Comparison(&coachdto.ComparisonFacts{
		Best:    coachdto.Line{SAN: "e4", ScoreCP: 35},
		User:    coachdto.Line{SAN: "a3", ScoreCP: -5},
		DeltaCP: 40,
	})
	if got != "Best: e4 (35 cp) | Yours: a3 (-5 cp) | Difference: 40 cp" {
		t.Fatalf("unexpected comparison %q", got)
	}
	got = f.Comparison(&coachdto.ComparisonFacts{User: coachdto.Line{SAN: "Qh5", IsMate: true, Mate: 1}, UserIsBest: true})
	if got != "Qh5 (mate in 1) is the engine's first choice." {
		t.Fatalf("unexpected best-move summary %q", got)
	}
}

func TestFormatterPosition(t *testing.T) {
	f := NewFormatter()
	got := f.Position(&coachdto.PositionFacts{
		Opening:  &coachdto.Opening{Code: "C20", Title: "King's Pawn Game"},
		TopLines: []coachdto.Line{{SAN: "Nf3", ScoreCP: 30, Variation: []string{"Nf3", "Nc6"}}},
	})
	want := "Opening: C20 King's Pawn Game\nEngine top moves:\n  1. Nf3 (30 cp) — line: Nf3 → Nc6"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if f.Sessions(nil) != "No saved sessions." {
		t.Fatalf("empty session list")
	}
	if !strings.Contains(f.Sessions([]*store.Record{{ID: "abc", Moves: []string{"e2e4"}}}), "abc  1 plies") {
		t.Fatalf("session row missing")
	}
}

func TestFormatterStoredAnalyses(t *testing.T) {
	f := NewFormatter()
	if f.Analyses(nil) != "No stored analyses for this position." {
		t.Fatalf("empty analysis list")
	}
	raw, err := json.Marshal(&coachdto.ComparisonFacts{
		FEN:     board.Start().FEN(),
		Best:    coachdto.Line{SAN: "e4", ScoreCP: 35},
		User:    coachdto.Line{SAN: "a3", ScoreCP: -5},
		DeltaCP: 40,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rec := &coach.AnalysisRecord{ID: "r1", Kind: coach.KindComparison, BestMove: "e2e4", UserMove: "a2a3", DeltaCP: 40, Facts: raw}

	row := f.Analyses([]*coach.AnalysisRecord{rec})
	if !strings.Contains(row, "r1") || !strings.Contains(row, "yours a2a3  delta 40 cp") {
		t.Fatalf("unexpected row %q", row)
	}
	got, err := f.Record(rec)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !strings.Contains(got, "Best: e4 (35 cp) | Yours: a3 (-5 cp) | Difference: 40 cp") {
		t.Fatalf("unexpected record view %q", got)
	}
	if _, err := f.Record(&coach.AnalysisRecord{Kind: "bogus"}); err == nil {
		t.Fatalf("expected unknown kind error")
	}
}
