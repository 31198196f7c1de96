package board

import (
	"regexp"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var (
	sanPattern   = regexp.MustCompile(`^([NBRQK])?([a-h])?([1-8])?[-x]?([a-h][1-8])(=?[NBRQnbrq])?$`)
	coordPattern = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbn]?$`)
)

// Resolve turns user text into a legal move of pos. Algebraic labels are tried
// first, then coordinate notation. Ambiguous or illegal text is not-found and
// never picks an arbitrary candidate. pos is never mutated.
func Resolve(pos *Position, text string) (Move, bool) {
	if pos == nil {
		return Move{}, false
	}
	if m, ok := resolveAlgebraic(pos, text); ok {
		return m, true
	}
	return ParseCoordinate(pos, text)
}

func normalizeAlgebraic(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimRight(s, "+#!?")
	switch s {
	case "0-0", "o-o":
		return "O-O"
	case "0-0-0", "o-o-o":
		return "O-O-O"
	}
	return s
}

func resolveAlgebraic(pos *Position, text string) (Move, bool) {
	s := normalizeAlgebraic(text)
	if s == "" {
		return Move{}, false
	}
	legal := pos.LegalMoves()

	if s == "O-O" || s == "O-O-O" {
		return uniqueMatch(legal, func(m Move) bool {
			if pos.Classify(m) != KindCastle {
				return false
			}
			kingside := m.To.File() > m.From.File()
			return kingside == (s == "O-O")
		})
	}

	groups := sanPattern.FindStringSubmatch(s)
	if groups == nil {
		return Move{}, false
	}
	pieceType := nchess.Pawn
	if groups[1] != "" {
		pieceType = pieceFromLetter(groups[1][0])
	}
	target, _ := ParseSquare(groups[4])
	promo := nchess.NoPieceType
	if g := strings.TrimPrefix(groups[5], "="); g != "" {
		if pieceType != nchess.Pawn {
			return Move{}, false
		}
		promo = pieceFromLetter(strings.ToUpper(g)[0])
	}

	return uniqueMatch(legal, func(m Move) bool {
		if m.To != target || m.Promo != promo {
			return false
		}
		pc := pos.Piece(m.From)
		if pc == nchess.NoPiece || pc.Type() != pieceType {
			return false
		}
		if groups[2] != "" && int(m.From.File()) != int(groups[2][0]-'a') {
			return false
		}
		// a pawn label without an origin file names a push on the target file
		if groups[2] == "" && pieceType == nchess.Pawn && m.From.File() != target.File() {
			return false
		}
		if groups[3] != "" && int(m.From.Rank()) != int(groups[3][0]-'1') {
			return false
		}
		return true
	})
}

// ParseCoordinate accepts lowercase origin+destination(+promotion) text only
// when it names a member of the legal-move set.
func ParseCoordinate(pos *Position, text string) (Move, bool) {
	s := strings.TrimSpace(text)
	if !coordPattern.MatchString(s) {
		return Move{}, false
	}
	mv, err := nchess.UCINotation{}.Decode(pos.pos, s)
	if err != nil || mv == nil {
		return Move{}, false
	}
	m := fromLibMove(mv)
	if !pos.IsLegal(m) {
		return Move{}, false
	}
	return m, true
}

func uniqueMatch(legal []Move, match func(Move) bool) (Move, bool) {
	var found Move
	n := 0
	for _, m := range legal {
		if match(m) {
			found = m
			n++
		}
	}
	if n != 1 {
		return Move{}, false
	}
	return found, true
}

func pieceFromLetter(b byte) nchess.PieceType {
	switch b {
	case 'N':
		return nchess.Knight
	case 'B':
		return nchess.Bishop
	case 'R':
		return nchess.Rook
	case 'Q':
		return nchess.Queen
	case 'K':
		return nchess.King
	default:
		return nchess.NoPieceType
	}
}
