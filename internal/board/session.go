package board

import (
	"fmt"
	"sync"
)

// Session is the mutable owner of the current position and its history.
// positions[0] is the loaded position; len(labels) == len(positions)-1.
type Session struct {
	mu        sync.Mutex
	positions []*Position
	moves     []Move
	labels    []string
}

// NewSession starts a session at start, or at the standard layout when nil.
func NewSession(start *Position) *Session {
	if start == nil {
		start = Start()
	}
	return &Session{positions: []*Position{start}}
}

// Restore replays coordinate moves from startFEN into a fresh session.
func Restore(startFEN string, moves []string) (*Session, error) {
	start, err := FromFEN(startFEN)
	if err != nil {
		return nil, err
	}
	s := NewSession(start)
	for i, text := range moves {
		m, ok := ParseCoordinate(s.Position(), text)
		if !ok {
			return nil, fmt.Errorf("%w: replay ply %d %q", ErrIllegalMove, i+1, text)
		}
		if _, err := s.Apply(m); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Position returns the current position.
func (s *Session) Position() *Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[len(s.positions)-1]
}

// Apply labels m against the current position, then advances. The label is
// returned.
func (s *Session) Apply(m Move) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.positions[len(s.positions)-1]
	label := cur.SAN(m)
	next, err := cur.Apply(m)
	if err != nil {
		return "", err
	}
	s.labels = append(s.labels, label)
	s.moves = append(s.moves, m)
	s.positions = append(s.positions, next)
	return label, nil
}

// Undo retracts the last move. ok is false when there is nothing to undo.
func (s *Session) Undo() (label string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.labels)
	if n == 0 {
		return "", false
	}
	label = s.labels[n-1]
	s.labels = s.labels[:n-1]
	s.moves = s.moves[:n-1]
	s.positions = s.positions[:len(s.positions)-1]
	return label, true
}

// Reload parses record and replaces the session wholesale. On a parse error
// the session is left untouched.
func (s *Session) Reload(record string) error {
	p, err := FromFEN(record)
	if err != nil {
		return err
	}
	s.Reset(p)
	return nil
}

// Reset replaces the position and clears both stacks.
func (s *Session) Reset(p *Position) {
	if p == nil {
		p = Start()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = []*Position{p}
	s.moves = nil
	s.labels = nil
}

// History returns the algebraic labels of applied moves, oldest first.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.labels...)
}

// Moves returns the applied moves, oldest first.
func (s *Session) Moves() []Move {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Move(nil), s.moves...)
}

// MovesUCI returns the applied moves as coordinate labels.
func (s *Session) MovesUCI() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.moves))
	for i, m := range s.moves {
		out[i] = m.UCI()
	}
	return out
}

// StartFEN returns the record the session was loaded from.
func (s *Session) StartFEN() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[0].FEN()
}

// Len returns the number of applied moves.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.labels)
}
