package bridge

import (
	"log/slog"
	"sync"

	"github.com/chaz8081/ecbridge/internal/moves"
)

// Suppressor keeps a move the application is showing on the board from
// being read back as a human move.
type Suppressor struct {
	mu     sync.Mutex
	active bool
	target moves.Move
}

// Absorb starts suppressing until m is replayed on the board.
func (s *Suppressor) Absorb(m moves.Move) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = true
	s.target = m
}

// Admit reports whether a reconstructed move may be forwarded. The move
// that replays the absorbed one ends suppression but is itself withheld.
func (s *Suppressor) Admit(m moves.Move) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return true
	}
	if m.Reproduces(s.target) {
		slog.Debug("[ECB] absorbed move replayed", "move", m)
		s.active = false
		s.target = moves.Move{}
		return false
	}
	slog.Debug("[ECB] move withheld while suppressed", "move", m, "waiting_for", s.target)
	return false
}

// Pending returns the absorbed move while suppression is on.
func (s *Suppressor) Pending() (moves.Move, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target, s.active
}

// Reset clears suppression.
func (s *Suppressor) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.target = moves.Move{}
}
