// Package heuristics derives deterministic positional features from a board
// position. Every group is computed independently and the resulting Report is
// never modified after Extract returns.
package heuristics

import (
	nchess "github.com/corentings/chess/v2"

	"github.com/park285/chess-coach/internal/board"
)

var pieceValues = map[nchess.PieceType]int{
	nchess.Pawn:   1,
	nchess.Knight: 3,
	nchess.Bishop: 3,
	nchess.Rook:   5,
	nchess.Queen:  9,
	nchess.King:   0,
}

var centerSquares = []nchess.Square{nchess.D4, nchess.D5, nchess.E4, nchess.E5}

type startSquare struct {
	sq    nchess.Square
	piece nchess.PieceType
	label string
}

var developmentSquares = map[nchess.Color][]startSquare{
	nchess.White: {
		{nchess.B1, nchess.Knight, "Nb1"},
		{nchess.G1, nchess.Knight, "Ng1"},
		{nchess.C1, nchess.Bishop, "Bc1"},
		{nchess.F1, nchess.Bishop, "Bf1"},
	},
	nchess.Black: {
		{nchess.B8, nchess.Knight, "Nb8"},
		{nchess.G8, nchess.Knight, "Ng8"},
		{nchess.C8, nchess.Bishop, "Bc8"},
		{nchess.F8, nchess.Bishop, "Bf8"},
	},
}

// Sides holds one count per color.
type Sides struct {
	White int `json:"white"`
	Black int `json:"black"`
}

func (s *Sides) add(c nchess.Color, n int) {
	if c == nchess.White {
		s.White += n
	} else {
		s.Black += n
	}
}

type Material struct {
	White   int `json:"white"`
	Black   int `json:"black"`
	Balance int `json:"balance"`
}

type KingSafety struct {
	Attackers  int  `json:"attackers"`
	InCheck    bool `json:"in_check"`
	Castled    bool `json:"castled"`
	PawnShield int  `json:"pawn_shield"`
}

type PawnIssueKind string

const (
	PawnDoubled  PawnIssueKind = "doubled"
	PawnIsolated PawnIssueKind = "isolated"
)

type PawnIssue struct {
	Kind PawnIssueKind `json:"kind"`
	File string        `json:"file"`
}

type Hanging struct {
	Piece  string `json:"piece"`
	Square string `json:"square"`
}

type Tactics struct {
	Check   bool      `json:"check"`
	Hanging []Hanging `json:"hanging,omitempty"`
}

// PerSide groups a value for White and Black.
type PerSide[T any] struct {
	White T `json:"white"`
	Black T `json:"black"`
}

func (p *PerSide[T]) set(c nchess.Color, v T) {
	if c == nchess.White {
		p.White = v
	} else {
		p.Black = v
	}
}

func (p PerSide[T]) Get(c nchess.Color) T {
	if c == nchess.White {
		return p.White
	}
	return p.Black
}

// Report is the feature snapshot of one position.
type Report struct {
	Material    Material             `json:"material"`
	Center      Sides                `json:"center_control"`
	Activity    Sides                `json:"piece_activity"`
	KingSafety  PerSide[KingSafety]  `json:"king_safety"`
	Pawns       PerSide[[]PawnIssue] `json:"pawn_structure"`
	Tactics     Tactics              `json:"tactics"`
	Development PerSide[[]string]    `json:"undeveloped"`
}

var colors = []nchess.Color{nchess.White, nchess.Black}

// Extract computes every feature group of pos. It is a pure function: the
// same position always yields an identical report.
func Extract(pos *board.Position) Report {
	return Report{
		Material:    material(pos),
		Center:      centerControl(pos),
		Activity:    activity(pos),
		KingSafety:  kingSafety(pos),
		Pawns:       pawnStructure(pos),
		Tactics:     tactics(pos),
		Development: development(pos),
	}
}

func material(pos *board.Position) Material {
	var s Sides
	forEachPiece(pos, func(_ nchess.Square, pc nchess.Piece) {
		s.add(pc.Color(), pieceValues[pc.Type()])
	})
	return Material{White: s.White, Black: s.Black, Balance: s.White - s.Black}
}

func centerControl(pos *board.Position) Sides {
	var s Sides
	for _, sq := range centerSquares {
		for _, c := range colors {
			if pos.IsAttackedBy(c, sq) {
				s.add(c, 1)
			}
		}
	}
	return s
}

func activity(pos *board.Position) Sides {
	var s Sides
	forEachPiece(pos, func(sq nchess.Square, pc nchess.Piece) {
		s.add(pc.Color(), len(pos.Attacks(sq)))
	})
	return s
}

func kingSafety(pos *board.Position) PerSide[KingSafety] {
	var out PerSide[KingSafety]
	inCheck := pos.InCheck()
	for _, c := range colors {
		ks := KingSafety{
			InCheck: inCheck && pos.Turn() == c,
			// castling rights forfeited stands in for "has castled"
			Castled: !pos.HasCastlingRights(c),
		}
		if king, ok := pos.KingSquare(c); ok {
			ks.Attackers = len(pos.Attackers(c.Other(), king))
			ks.PawnShield = pawnShield(pos, c, king)
		}
		out.set(c, ks)
	}
	return out
}

func pawnShield(pos *board.Position, c nchess.Color, king nchess.Square) int {
	dir := 1
	if c == nchess.Black {
		dir = -1
	}
	rank := int(king.Rank()) + dir
	if rank < 0 || rank > 7 {
		return 0
	}
	n := 0
	for df := -1; df <= 1; df++ {
		file := int(king.File()) + df
		if file < 0 || file > 7 {
			continue
		}
		pc := pos.Piece(nchess.NewSquare(nchess.File(file), nchess.Rank(rank)))
		if pc != nchess.NoPiece && pc.Type() == nchess.Pawn && pc.Color() == c {
			n++
		}
	}
	return n
}

func pawnStructure(pos *board.Position) PerSide[[]PawnIssue] {
	var files PerSide[[8]int]
	forEachPiece(pos, func(sq nchess.Square, pc nchess.Piece) {
		if pc.Type() != nchess.Pawn {
			return
		}
		counts := files.Get(pc.Color())
		counts[sq.File()]++
		files.set(pc.Color(), counts)
	})

	var out PerSide[[]PawnIssue]
	for _, c := range colors {
		counts := files.Get(c)
		var issues []PawnIssue
		for f := 0; f < 8; f++ {
			if counts[f] > 1 {
				issues = append(issues, PawnIssue{Kind: PawnDoubled, File: fileName(f)})
			}
		}
		for f := 0; f < 8; f++ {
			if counts[f] == 0 {
				continue
			}
			left := f > 0 && counts[f-1] > 0
			right := f < 7 && counts[f+1] > 0
			if !left && !right {
				issues = append(issues, PawnIssue{Kind: PawnIsolated, File: fileName(f)})
			}
		}
		out.set(c, issues)
	}
	return out
}

func tactics(pos *board.Position) Tactics {
	t := Tactics{Check: pos.InCheck()}
	forEachPiece(pos, func(sq nchess.Square, pc nchess.Piece) {
		if pc.Type() == nchess.King {
			return
		}
		if pos.IsAttackedBy(pc.Color().Other(), sq) && !pos.IsAttackedBy(pc.Color(), sq) {
			t.Hanging = append(t.Hanging, Hanging{Piece: board.PieceLetter(pc), Square: sq.String()})
		}
	})
	return t
}

func development(pos *board.Position) PerSide[[]string] {
	var out PerSide[[]string]
	for _, c := range colors {
		var labels []string
		for _, start := range developmentSquares[c] {
			pc := pos.Piece(start.sq)
			if pc != nchess.NoPiece && pc.Color() == c && pc.Type() == start.piece {
				labels = append(labels, start.label)
			}
		}
		out.set(c, labels)
	}
	return out
}

func forEachPiece(pos *board.Position, fn func(nchess.Square, nchess.Piece)) {
	for sq := nchess.A1; sq <= nchess.H8; sq++ {
		if pc := pos.Piece(sq); pc != nchess.NoPiece {
			fn(sq, pc)
		}
	}
}

func fileName(f int) string {
	return string(rune('a' + f))
}
