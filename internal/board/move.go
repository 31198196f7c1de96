package board

import (
	nchess "github.com/corentings/chess/v2"
)

// Move is a validated origin/destination pair with an optional promotion.
// It is only meaningful relative to the Position it was generated against.
type Move struct {
	From  nchess.Square
	To    nchess.Square
	Promo nchess.PieceType
}

// MoveKind is the special-move classification derived from board state.
type MoveKind int

const (
	KindNormal MoveKind = iota
	KindCastle
	KindEnPassant
	KindDoublePush
)

func (k MoveKind) String() string {
	switch k {
	case KindCastle:
		return "castle"
	case KindEnPassant:
		return "en_passant"
	case KindDoublePush:
		return "double_push"
	default:
		return "normal"
	}
}

func fromLibMove(mv *nchess.Move) Move {
	return Move{From: mv.S1(), To: mv.S2(), Promo: mv.Promo()}
}

// UCI renders the coordinate label, e.g. "e2e4" or "e7e8q".
func (m Move) UCI() string {
	s := m.From.String() + m.To.String()
	if l := promoLetter(m.Promo); l != "" {
		s += l
	}
	return s
}

func (m Move) String() string { return m.UCI() }

func promoLetter(t nchess.PieceType) string {
	switch t {
	case nchess.Queen:
		return "q"
	case nchess.Rook:
		return "r"
	case nchess.Bishop:
		return "b"
	case nchess.Knight:
		return "n"
	default:
		return ""
	}
}

// Classify derives the special-move kind of m from the board.
func (p *Position) Classify(m Move) MoveKind {
	pc := p.Piece(m.From)
	if pc == nchess.NoPiece {
		return KindNormal
	}
	df := int(m.To.File()) - int(m.From.File())
	dr := int(m.To.Rank()) - int(m.From.Rank())
	switch pc.Type() {
	case nchess.King:
		if df == 2 || df == -2 {
			return KindCastle
		}
	case nchess.Pawn:
		if dr == 2 || dr == -2 {
			return KindDoublePush
		}
		if df != 0 && p.Piece(m.To) == nchess.NoPiece {
			if ep, ok := p.EnPassant(); ok && ep == m.To {
				return KindEnPassant
			}
		}
	}
	return KindNormal
}
