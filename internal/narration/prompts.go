// Package narration turns grounded fact bundles into coaching text. Prompts
// are rendered from the message catalog; a Narrator either returns them as is
// or sends them to a remote model.
package narration

import (
	"context"
	"fmt"

	"github.com/park285/chess-coach/internal/msgcat"
	"github.com/park285/chess-coach/pkg/coachdto"
)

// Narrator explains facts to the student. Implementations keep their own
// conversation state, so Ask follows up on earlier narration.
type Narrator interface {
	NarratePosition(ctx context.Context, facts *coachdto.PositionFacts) (string, error)
	NarrateComparison(ctx context.Context, facts *coachdto.ComparisonFacts) (string, error)
	Ask(ctx context.Context, question string) (string, error)
}

type Prompts struct {
	cat *msgcat.Catalog
}

func NewPrompts(cat *msgcat.Catalog) *Prompts {
	return &Prompts{cat: cat}
}

func (p *Prompts) System() string {
	return p.cat.Text("coach.system", "")
}

type positionView struct {
	FEN        string
	Turn       string
	Opening    string
	TopMoves   string
	Heuristics string
}

func (p *Prompts) Position(f *coachdto.PositionFacts) (string, error) {
	if f == nil {
		return "", fmt.Errorf("nil position facts")
	}
	return p.cat.Render("coach.position_analysis", positionView{
		FEN:        f.FEN,
		Turn:       f.Turn,
		Opening:    f.Opening.String(),
		TopMoves:   coachdto.FormatTopLines(f.TopLines),
		Heuristics: f.Heuristics,
	})
}

type comparisonView struct {
	FEN              string
	Turn             string
	BestMove         string
	BestScore        string
	UserMove         string
	UserScore        string
	Delta            int
	TopMoves         string
	HeuristicsBefore string
	HeuristicsAfter  string
}

func (p *Prompts) Comparison(f *coachdto.ComparisonFacts) (string, error) {
	if f == nil {
		return "", fmt.Errorf("nil comparison facts")
	}
	return p.cat.Render("coach.move_comparison", comparisonView{
		FEN:              f.FEN,
		Turn:             f.Turn,
		BestMove:         f.Best.SAN,
		BestScore:        f.Best.ScoreLabel(),
		UserMove:         f.User.SAN,
		UserScore:        f.User.ScoreLabel(),
		Delta:            f.DeltaCP,
		TopMoves:         coachdto.FormatTopLines(f.TopLines),
		HeuristicsBefore: f.HeuristicsBefore,
		HeuristicsAfter:  f.HeuristicsAfter,
	})
}

// PromptNarrator is the offline Narrator: it returns the grounded prompt it
// would have sent.
type PromptNarrator struct {
	prompts *Prompts
}

func NewPromptNarrator(p *Prompts) *PromptNarrator {
	return &PromptNarrator{prompts: p}
}

func (n *PromptNarrator) NarratePosition(ctx context.Context, f *coachdto.PositionFacts) (string, error) {
	body, err := n.prompts.Position(f)
	if err != nil {
		return "", err
	}
	return n.offline() + body, nil
}

func (n *PromptNarrator) NarrateComparison(ctx context.Context, f *coachdto.ComparisonFacts) (string, error) {
	body, err := n.prompts.Comparison(f)
	if err != nil {
		return "", err
	}
	return n.offline() + body, nil
}

func (n *PromptNarrator) Ask(ctx context.Context, question string) (string, error) {
	return n.offline(), nil
}

func (n *PromptNarrator) offline() string {
	return n.prompts.cat.Text("narration.offline", "")
}
