package chess

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-coach/internal/board"
	"github.com/park285/chess-coach/internal/chess/uci"
)

// MateScore is the centipawn magnitude of a forced mate; mate in n scores
// MateScore-n for the mating side.
const MateScore = uci.MateScore

const DefaultMaxVariation = 5

// PVMove is one verified step of a principal variation.
type PVMove struct {
	UCI string `json:"uci"`
	SAN string `json:"san"`
}

// EngineLine is one reconciled engine suggestion. ScoreCP and Mate are
// relative to the side to move in the position that was analyzed.
type EngineLine struct {
	Move        string   `json:"move"`
	SAN         string   `json:"san"`
	ScoreCP     int      `json:"score_cp"`
	Mate        int      `json:"mate,omitempty"`
	IsMate      bool     `json:"is_mate"`
	Depth       int      `json:"depth,omitempty"`
	Variation   []PVMove `json:"variation"`
	Truncated   bool     `json:"truncated,omitempty"`
	TruncatedAt string   `json:"truncated_at,omitempty"`
}

// ScoreLabel renders "mate in N" or "N cp".
func (l EngineLine) ScoreLabel() string {
	if l.IsMate {
		return fmt.Sprintf("mate in %d", l.Mate)
	}
	return fmt.Sprintf("%d cp", l.ScoreCP)
}

// VariationSAN returns the algebraic labels of the verified variation.
func (l EngineLine) VariationSAN() []string {
	out := make([]string, len(l.Variation))
	for i, mv := range l.Variation {
		out[i] = mv.SAN
	}
	return out
}

func (l EngineLine) String() string {
	return fmt.Sprintf("%s (%s) line: %s", l.SAN, l.ScoreLabel(), strings.Join(l.VariationSAN(), " "))
}

// orient converts a White-relative score to the perspective of side.
func orient(whiteRelative int, side nchess.Color) int {
	if side == nchess.Black {
		return -whiteRelative
	}
	return whiteRelative
}

// reconcile replays the candidate's variation from pos, keeping only the
// prefix that is sequentially legal, capped at maxLen moves.
func reconcile(pos *board.Position, c uci.Candidate, maxLen int) EngineLine {
	line := EngineLine{
		Move:    c.Move,
		SAN:     c.Move,
		ScoreCP: orient(c.EvalCP, pos.Turn()),
		IsMate:  c.IsMate,
		Depth:   c.Depth,
	}
	if c.IsMate {
		line.Mate = orient(c.Mate, pos.Turn())
	}

	scratch := pos
	for i, text := range c.Principal {
		if i >= maxLen {
			break
		}
		m, ok := board.ParseCoordinate(scratch, text)
		if !ok {
			line.Truncated = true
			line.TruncatedAt = text
			break
		}
		san := scratch.SAN(m)
		next, err := scratch.Apply(m)
		if err != nil {
			line.Truncated = true
			line.TruncatedAt = text
			break
		}
		line.Variation = append(line.Variation, PVMove{UCI: m.UCI(), SAN: san})
		scratch = next
	}
	if len(line.Variation) > 0 {
		line.Move = line.Variation[0].UCI
		line.SAN = line.Variation[0].SAN
	}
	return line
}
