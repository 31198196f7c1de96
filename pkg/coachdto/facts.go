package coachdto

import (
	"fmt"
	"strings"
)

// Line is one engine suggestion as handed to narration. Scores are relative
// to the side to move in the analyzed position.
type Line struct {
	Move        string   `json:"move"`
	SAN         string   `json:"san"`
	ScoreCP     int      `json:"score_cp"`
	Mate        int      `json:"mate,omitempty"`
	IsMate      bool     `json:"is_mate"`
	Variation   []string `json:"variation"`
	TruncatedAt string   `json:"truncated_at,omitempty"`
}

// ScoreLabel renders "mate in N" or "N cp".
func (l Line) ScoreLabel() string {
	if l.IsMate {
		return fmt.Sprintf("mate in %d", l.Mate)
	}
	return fmt.Sprintf("%d cp", l.ScoreCP)
}

// Opening names the ECO classification of the game so far.
type Opening struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

func (o *Opening) String() string {
	if o == nil {
		return ""
	}
	return strings.TrimSpace(o.Code + " " + o.Title)
}

// PositionFacts is the grounded fact set for one position.
type PositionFacts struct {
	ID         string   `json:"id,omitempty"`
	FEN        string   `json:"fen"`
	Turn       string   `json:"turn"`
	Opening    *Opening `json:"opening,omitempty"`
	TopLines   []Line   `json:"top_lines"`
	Heuristics string   `json:"heuristics"`
}

// ComparisonFacts contrasts a student's move with the engine's best line.
// DeltaCP is Best.ScoreCP - User.ScoreCP, both from the mover's side.
type ComparisonFacts struct {
	ID               string `json:"id,omitempty"`
	FEN              string `json:"fen"`
	Turn             string `json:"turn"`
	Best             Line   `json:"best"`
	User             Line   `json:"user"`
	DeltaCP          int    `json:"delta_cp"`
	UserIsBest       bool   `json:"user_is_best"`
	TopLines         []Line `json:"top_lines"`
	HeuristicsBefore string `json:"heuristics_before"`
	HeuristicsAfter  string `json:"heuristics_after"`
}

// FormatTopLines renders ranked lines one per row:
// "  1. e4 (35 cp) — line: e4 → e5 → Nf3".
func FormatTopLines(lines []Line) string {
	rows := make([]string, 0, len(lines))
	for i, l := range lines {
		row := fmt.Sprintf("  %d. %s (%s) — line: %s", i+1, l.SAN, l.ScoreLabel(), strings.Join(l.Variation, " → "))
		if l.TruncatedAt != "" {
			row += " (engine line cut at " + l.TruncatedAt + ")"
		}
		rows = append(rows, row)
	}
	return strings.Join(rows, "\n")
}
