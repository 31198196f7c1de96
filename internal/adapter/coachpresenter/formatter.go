package coachpresenter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/park285/chess-coach/internal/service/coach"
	"github.com/park285/chess-coach/internal/store"
	"github.com/park285/chess-coach/pkg/coachdto"
)

// Formatter renders fact bundles into short terminal summaries printed above
// the narration.
type Formatter struct{}

func NewFormatter() *Formatter { return &Formatter{} }

func (f *Formatter) Position(facts *coachdto.PositionFacts) string {
	if facts == nil {
		return ""
	}
	var sb strings.Builder
	if o := facts.Opening.String(); o != "" {
		sb.WriteString("Opening: ")
		sb.WriteString(o)
		sb.WriteString("\n")
	}
	sb.WriteString("Engine top moves:\n")
	sb.WriteString(coachdto.FormatTopLines(facts.TopLines))
	return sb.String()
}

func (f *Formatter) Comparison(facts *coachdto.ComparisonFacts) string {
	if facts == nil {
		return ""
	}
	if facts.UserIsBest {
		return fmt.Sprintf("%s (%s) is the engine's first choice.", facts.User.SAN, facts.User.ScoreLabel())
	}
	return fmt.Sprintf("Best: %s (%s) | Yours: %s (%s) | Difference: %d cp",
		facts.Best.SAN, facts.Best.ScoreLabel(),
		facts.User.SAN, facts.User.ScoreLabel(),
		facts.DeltaCP)
}

// Sessions lists saved sessions, one per line.
func (f *Formatter) Sessions(recs []*store.Record) string {
	if len(recs) == 0 {
		return "No saved sessions."
	}
	rows := make([]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, fmt.Sprintf("  %s  %d plies  saved %s", r.ID, len(r.Moves), r.SavedAt.Local().Format(time.DateTime)))
	}
	return strings.Join(rows, "\n")
}

// Analyses lists stored analyses, one per line.
func (f *Formatter) Analyses(recs []*coach.AnalysisRecord) string {
	if len(recs) == 0 {
		return "No stored analyses for this position."
	}
	rows := make([]string, 0, len(recs))
	for _, r := range recs {
		row := fmt.Sprintf("  %s  %-10s  best %s", r.ID, r.Kind, r.BestMove)
		if r.Kind == coach.KindComparison {
			row += fmt.Sprintf("  yours %s  delta %d cp", r.UserMove, r.DeltaCP)
		}
		rows = append(rows, row+"  "+r.CreatedAt.Local().Format(time.DateTime))
	}
	return strings.Join(rows, "\n")
}

// Record decodes a stored facts bundle and renders it like a fresh result.
func (f *Formatter) Record(rec *coach.AnalysisRecord) (string, error) {
	if rec == nil {
		return "", nil
	}
	switch rec.Kind {
	case coach.KindPosition:
		var facts coachdto.PositionFacts
		if err := json.Unmarshal(rec.Facts, &facts); err != nil {
			return "", fmt.Errorf("decode %s facts: %w", rec.Kind, err)
		}
		return "FEN: " + facts.FEN + "\n" + f.Position(&facts), nil
	case coach.KindComparison:
		var facts coachdto.ComparisonFacts
		if err := json.Unmarshal(rec.Facts, &facts); err != nil {
			return "", fmt.Errorf("decode %s facts: %w", rec.Kind, err)
		}
		return "FEN: " + facts.FEN + "\n" + f.Comparison(&facts), nil
	default:
		return "", fmt.Errorf("unknown analysis kind: %s", rec.Kind)
	}
}
