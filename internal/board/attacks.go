package board

import (
	nchess "github.com/corentings/chess/v2"
)

var (
	knightSteps = [][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps   = [][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	rookDirs    = [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	bishopDirs  = [][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// Attacks returns the squares attacked by the piece on sq, in board order.
// These are pseudo-attacks: pins and checks are not considered, and sliding
// rays stop at the first occupied square (which is included).
func (p *Position) Attacks(sq nchess.Square) []nchess.Square {
	board := p.pos.Board()
	pc := board.Piece(sq)
	if pc == nchess.NoPiece {
		return nil
	}
	f, r := int(sq.File()), int(sq.Rank())
	var out []nchess.Square
	step := func(steps [][2]int) {
		for _, d := range steps {
			nf, nr := f+d[0], r+d[1]
			if onBoard(nf, nr) {
				out = append(out, squareAt(nf, nr))
			}
		}
	}
	slide := func(dirs [][2]int) {
		for _, d := range dirs {
			nf, nr := f+d[0], r+d[1]
			for onBoard(nf, nr) {
				target := squareAt(nf, nr)
				out = append(out, target)
				if board.Piece(target) != nchess.NoPiece {
					break
				}
				nf, nr = nf+d[0], nr+d[1]
			}
		}
	}
	switch pc.Type() {
	case nchess.Pawn:
		dir := 1
		if pc.Color() == nchess.Black {
			dir = -1
		}
		step([][2]int{{-1, dir}, {1, dir}})
	case nchess.Knight:
		step(knightSteps)
	case nchess.King:
		step(kingSteps)
	case nchess.Bishop:
		slide(bishopDirs)
	case nchess.Rook:
		slide(rookDirs)
	case nchess.Queen:
		slide(rookDirs)
		slide(bishopDirs)
	}
	return out
}

// Attackers returns the squares of color's pieces that attack target.
func (p *Position) Attackers(color nchess.Color, target nchess.Square) []nchess.Square {
	board := p.pos.Board()
	var out []nchess.Square
	for sq := nchess.A1; sq <= nchess.H8; sq++ {
		pc := board.Piece(sq)
		if pc == nchess.NoPiece || pc.Color() != color {
			continue
		}
		for _, a := range p.Attacks(sq) {
			if a == target {
				out = append(out, sq)
				break
			}
		}
	}
	return out
}

// IsAttackedBy reports whether any piece of color attacks target.
func (p *Position) IsAttackedBy(color nchess.Color, target nchess.Square) bool {
	board := p.pos.Board()
	for sq := nchess.A1; sq <= nchess.H8; sq++ {
		pc := board.Piece(sq)
		if pc == nchess.NoPiece || pc.Color() != color {
			continue
		}
		for _, a := range p.Attacks(sq) {
			if a == target {
				return true
			}
		}
	}
	return false
}

func onBoard(file, rank int) bool {
	return file >= 0 && file < 8 && rank >= 0 && rank < 8
}
