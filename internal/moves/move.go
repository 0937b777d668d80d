// Package moves turns the lift/place actions reported by the board into
// UCI-like move strings.
package moves

import (
	"errors"
	"fmt"

	"github.com/corentings/chess/v2"

	"github.com/chaz8081/ecbridge/internal/board"
)

// ErrInvalidMove is returned by ParseMove for malformed move strings.
var ErrInvalidMove = errors.New("moves: invalid move")

// Move is a move read from, or sent to, the board.
//
// Castling is encoded with the rook's origin as the destination (e1h1,
// e8a8) so a consumer can tell king side from queen side without the
// position.
type Move struct {
	From      chess.Square
	To        chess.Square
	Promotion chess.PieceType
	Castle    bool
}

// String renders the move as <from><to>[promotion].
func (m Move) String() string {
	s := m.From.String() + m.To.String()
	if m.Promotion != chess.NoPieceType {
		s += m.Promotion.String()
	}
	return s
}

// KingTarget is where the moving piece ends up. For castle moves that is
// the king's destination rather than the rook's origin.
func (m Move) KingTarget() chess.Square {
	if !m.Castle {
		return m.To
	}
	if m.To.File() == chess.FileH {
		return chess.NewSquare(chess.FileG, m.To.Rank())
	}
	return chess.NewSquare(chess.FileC, m.To.Rank())
}

// Reproduces reports whether m replays target on the same squares. A
// castle read from the board reproduces either encoding of that castle.
func (m Move) Reproduces(target Move) bool {
	if m.From != target.From {
		return false
	}
	return m.To == target.To || m.KingTarget() == target.To
}

var promotions = map[byte]chess.PieceType{
	'q': chess.Queen,
	'r': chess.Rook,
	'b': chess.Bishop,
	'n': chess.Knight,
}

// ParseMove parses a UCI-like move such as "e2e4" or "a7a8q".
func ParseMove(s string) (Move, error) {
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("%w: %q", ErrInvalidMove, s)
	}
	from, err := board.ParseSquare(s[0:2])
	if err != nil {
		return Move{}, fmt.Errorf("%w: %q", ErrInvalidMove, s)
	}
	to, err := board.ParseSquare(s[2:4])
	if err != nil {
		return Move{}, fmt.Errorf("%w: %q", ErrInvalidMove, s)
	}
	if from == to {
		return Move{}, fmt.Errorf("%w: %q has no displacement", ErrInvalidMove, s)
	}
	m := Move{From: from, To: to}
	if len(s) == 5 {
		pt, ok := promotions[s[4]]
		if !ok {
			return Move{}, fmt.Errorf("%w: bad promotion piece in %q", ErrInvalidMove, s)
		}
		m.Promotion = pt
	}
	return m, nil
}
