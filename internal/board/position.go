package board

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var (
	ErrInvalidRecord = errors.New("invalid position record")
	ErrIllegalMove   = errors.New("illegal move")
)

// Position is an immutable snapshot of a chess position. Every operation that
// advances play returns a new Position.
type Position struct {
	pos *nchess.Position

	fen       string
	castling  string
	enPassant string
	fullmove  int
}

// Start returns the standard starting position.
func Start() *Position {
	return wrap(nchess.NewGame().Position())
}

// FromFEN parses a FEN record. Malformed records and records that violate
// the king invariants are reported as ErrInvalidRecord.
func FromFEN(record string) (*Position, error) {
	record = strings.Join(strings.Fields(record), " ")
	if record == "" {
		return nil, fmt.Errorf("%w: empty record", ErrInvalidRecord)
	}
	if n := len(strings.Fields(record)); n != 6 {
		return nil, fmt.Errorf("%w: expected 6 fields, got %d", ErrInvalidRecord, n)
	}
	opt, err := nchess.FEN(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	p := wrap(nchess.NewGame(opt).Position())
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func wrap(pos *nchess.Position) *Position {
	p := &Position{pos: pos, fen: pos.String()}
	fields := strings.Fields(p.fen)
	if len(fields) > 2 {
		p.castling = fields[2]
	}
	if len(fields) > 3 {
		p.enPassant = fields[3]
	}
	if len(fields) > 5 {
		p.fullmove, _ = strconv.Atoi(fields[5])
	}
	return p
}

func (p *Position) validate() error {
	for _, c := range []nchess.Color{nchess.White, nchess.Black} {
		if n := p.countPieces(nchess.King, c); n != 1 {
			return fmt.Errorf("%w: %s has %d kings", ErrInvalidRecord, ColorName(c), n)
		}
	}
	waiting := p.Turn().Other()
	if king, ok := p.KingSquare(waiting); ok && p.IsAttackedBy(p.Turn(), king) {
		return fmt.Errorf("%w: %s king can be captured", ErrInvalidRecord, ColorName(waiting))
	}
	return nil
}

func (p *Position) countPieces(t nchess.PieceType, c nchess.Color) int {
	n := 0
	board := p.pos.Board()
	for sq := nchess.A1; sq <= nchess.H8; sq++ {
		pc := board.Piece(sq)
		if pc != nchess.NoPiece && pc.Type() == t && pc.Color() == c {
			n++
		}
	}
	return n
}

// FEN renders the position record.
func (p *Position) FEN() string { return p.fen }

func (p *Position) Turn() nchess.Color { return p.pos.Turn() }

func (p *Position) Board() *nchess.Board { return p.pos.Board() }

func (p *Position) Piece(sq nchess.Square) nchess.Piece { return p.pos.Board().Piece(sq) }

// HasCastlingRights reports whether color keeps at least one castling right.
func (p *Position) HasCastlingRights(c nchess.Color) bool {
	if c == nchess.White {
		return strings.ContainsAny(p.castling, "KQ")
	}
	return strings.ContainsAny(p.castling, "kq")
}

// EnPassant returns the en-passant target square if one is set.
func (p *Position) EnPassant() (nchess.Square, bool) {
	return ParseSquare(p.enPassant)
}

// FullmoveNumber is the FEN move counter, starting at 1.
func (p *Position) FullmoveNumber() int { return p.fullmove }

// KingSquare locates the king of color c.
func (p *Position) KingSquare(c nchess.Color) (nchess.Square, bool) {
	board := p.pos.Board()
	for sq := nchess.A1; sq <= nchess.H8; sq++ {
		pc := board.Piece(sq)
		if pc != nchess.NoPiece && pc.Type() == nchess.King && pc.Color() == c {
			return sq, true
		}
	}
	return nchess.NoSquare, false
}

// InCheck reports whether the side to move is in check.
func (p *Position) InCheck() bool {
	king, ok := p.KingSquare(p.Turn())
	if !ok {
		return false
	}
	return p.IsAttackedBy(p.Turn().Other(), king)
}

// LegalMoves enumerates the legal moves of the side to move.
func (p *Position) LegalMoves() []Move {
	valid := p.pos.ValidMoves()
	out := make([]Move, 0, len(valid))
	for i := range valid {
		out = append(out, fromLibMove(&valid[i]))
	}
	return out
}

// LegalMovesSAN lists the legal moves as algebraic labels.
func (p *Position) LegalMovesSAN() []string {
	valid := p.pos.ValidMoves()
	out := make([]string, 0, len(valid))
	notation := nchess.AlgebraicNotation{}
	for i := range valid {
		out = append(out, notation.Encode(p.pos, &valid[i]))
	}
	return out
}

// IsLegal reports whether m is a member of the legal-move set.
func (p *Position) IsLegal(m Move) bool {
	_, ok := p.lookup(m)
	return ok
}

// Apply returns the position after the legal move m.
func (p *Position) Apply(m Move) (*Position, error) {
	lm, ok := p.lookup(m)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrIllegalMove, m.UCI(), p.fen)
	}
	return wrap(p.pos.Update(lm)), nil
}

// SAN renders the algebraic label of m relative to this position. Moves that
// are not legal here fall back to their coordinate label.
func (p *Position) SAN(m Move) string {
	lm, ok := p.lookup(m)
	if !ok {
		return m.UCI()
	}
	return nchess.AlgebraicNotation{}.Encode(p.pos, lm)
}

func (p *Position) lookup(m Move) (*nchess.Move, bool) {
	valid := p.pos.ValidMoves()
	for i := range valid {
		mv := &valid[i]
		if mv.S1() == m.From && mv.S2() == m.To && mv.Promo() == m.Promo {
			return mv, true
		}
	}
	return nil, false
}

// Draw renders an ASCII diagram, rank 8 first.
func (p *Position) Draw() string {
	var sb strings.Builder
	board := p.pos.Board()
	for r := 7; r >= 0; r-- {
		for f := 0; f < 8; f++ {
			if f > 0 {
				sb.WriteByte(' ')
			}
			pc := board.Piece(squareAt(f, r))
			if pc == nchess.NoPiece {
				sb.WriteByte('.')
				continue
			}
			sb.WriteString(PieceLetter(pc))
		}
		if r > 0 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// ColorName returns "White" or "Black".
func ColorName(c nchess.Color) string {
	if c == nchess.White {
		return "White"
	}
	return "Black"
}

// PieceLetter returns the FEN letter of a piece, uppercase for white.
func PieceLetter(pc nchess.Piece) string {
	var s string
	switch pc.Type() {
	case nchess.King:
		s = "k"
	case nchess.Queen:
		s = "q"
	case nchess.Rook:
		s = "r"
	case nchess.Bishop:
		s = "b"
	case nchess.Knight:
		s = "n"
	case nchess.Pawn:
		s = "p"
	default:
		return "?"
	}
	if pc.Color() == nchess.White {
		return strings.ToUpper(s)
	}
	return s
}

// ParseSquare parses a square name such as "e4".
func ParseSquare(name string) (nchess.Square, bool) {
	if len(name) != 2 {
		return nchess.NoSquare, false
	}
	f, r := name[0], name[1]
	if f < 'a' || f > 'h' || r < '1' || r > '8' {
		return nchess.NoSquare, false
	}
	return squareAt(int(f-'a'), int(r-'1')), true
}

func squareAt(file, rank int) nchess.Square {
	return nchess.NewSquare(nchess.File(file), nchess.Rank(rank))
}
