package moves

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/corentings/chess/v2"

	"github.com/chaz8081/ecbridge/internal/board"
)

// Source supplies actions in the order the board reported them. Get
// reports false once the source is closed or ctx ends.
type Source interface {
	Get(ctx context.Context) (board.Action, bool)
}

// State is the reconstructor's position in the current sequence.
type State int

const (
	Idle State = iota
	AwaitingDown
	Resolved
	Discarded
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingDown:
		return "awaiting-down"
	case Resolved:
		return "resolved"
	case Discarded:
		return "discarded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome is the result of one call to Next.
type Outcome int

const (
	// OutcomeResolved means a move was recognized.
	OutcomeResolved Outcome = iota
	// OutcomeDiscarded means the actions did not form a move, or a reset
	// marker arrived mid-sequence.
	OutcomeDiscarded
	// OutcomeClosed means the source is exhausted.
	OutcomeClosed
)

// maxPending is the longest sequence the board produces for one move
// (castling: king up, king down, rook up, rook down).
const maxPending = 4

var (
	errClosed = errors.New("source closed")
	errReset  = errors.New("reset")
	errNoMove = errors.New("no move")
)

func discard(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errNoMove}, args...)...)
}

// Reconstructor reads actions from a Source and groups them into moves.
// Next must not be called concurrently; State and Pending may be.
type Reconstructor struct {
	src Source

	mu      sync.Mutex
	state   State
	pending []board.Action
}

// NewReconstructor creates a reconstructor reading from src.
func NewReconstructor(src Source) *Reconstructor {
	return &Reconstructor{src: src, pending: make([]board.Action, 0, maxPending)}
}

// State returns the current state.
func (r *Reconstructor) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Pending returns a copy of the actions consumed for the move in progress.
func (r *Reconstructor) Pending() []board.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]board.Action, len(r.pending))
	copy(out, r.pending)
	return out
}

func (r *Reconstructor) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Next consumes actions until one move is recognized or the sequence is
// abandoned. Discards are expected while a player handles pieces and are
// only logged at debug level.
func (r *Reconstructor) Next(ctx context.Context) (Move, Outcome) {
	r.mu.Lock()
	r.state = Idle
	r.pending = r.pending[:0]
	r.mu.Unlock()

	m, err := r.reconstruct(ctx)
	switch {
	case errors.Is(err, errClosed):
		r.setState(Idle)
		return Move{}, OutcomeClosed
	case err != nil:
		slog.Debug("[ECB] action sequence discarded", "reason", err, "actions", r.Pending())
		r.setState(Discarded)
		return Move{}, OutcomeDiscarded
	}
	r.setState(Resolved)
	return m, OutcomeResolved
}

func (r *Reconstructor) read(ctx context.Context) (board.Action, error) {
	a, ok := r.src.Get(ctx)
	if !ok {
		return a, errClosed
	}
	if a.IsReset() {
		return a, errReset
	}
	r.mu.Lock()
	if len(r.pending) < maxPending {
		r.pending = append(r.pending, a)
	}
	r.mu.Unlock()
	return a, nil
}

func (r *Reconstructor) reconstruct(ctx context.Context) (Move, error) {
	var first board.Action
	for {
		a, err := r.read(ctx)
		if err != nil {
			return Move{}, err
		}
		if a.Direction == board.Up {
			first = a
			break
		}
		// A placement with nothing lifted is the board settling.
		r.mu.Lock()
		r.pending = r.pending[:0]
		r.mu.Unlock()
	}
	r.setState(AwaitingDown)

	second, err := r.read(ctx)
	if err != nil {
		return Move{}, err
	}
	if second.Direction == board.Down {
		if second.Color() != first.Color() {
			return Move{}, discard("%s placed after %s", second, first)
		}
		return r.resolve(ctx, first, second)
	}

	// Two lifts: a capture where the captured piece left the board before
	// the capturing piece landed. Whichever lifted piece matches the color
	// of the next placement is the mover.
	if second.Square == first.Square {
		return Move{}, discard("%s lifted twice", first.Square)
	}
	third, err := r.read(ctx)
	if err != nil {
		return Move{}, err
	}
	if third.Direction != board.Down {
		return Move{}, discard("third lift %s", third)
	}
	switch third.Color() {
	case first.Color():
		return r.resolve(ctx, first, third)
	case second.Color():
		return r.resolve(ctx, second, third)
	}
	return Move{}, discard("%s matches neither lift", third)
}

// resolve builds the move for a piece lifted by mover and set down by
// landing, reading the rook's actions when the king castled.
func (r *Reconstructor) resolve(ctx context.Context, mover, landing board.Action) (Move, error) {
	if mover.Square == landing.Square {
		return Move{}, discard("%s put back", mover)
	}
	// A different piece of the same color landing is reported as a
	// promotion to that piece, whatever was lifted.
	if mover.Piece != landing.Piece {
		return Move{From: mover.Square, To: landing.Square, Promotion: landing.Piece.Type()}, nil
	}

	rookFrom, rookTo, ok := castleRook(mover, landing)
	if !ok {
		return Move{From: mover.Square, To: landing.Square}, nil
	}

	rookUp, err := r.read(ctx)
	if err != nil {
		return Move{}, err
	}
	if rookUp.Direction != board.Up || !isRook(rookUp.Piece, mover.Color()) || rookUp.Square != rookFrom {
		return Move{}, discard("castle expected rook up on %s, got %s", rookFrom, rookUp)
	}
	rookDown, err := r.read(ctx)
	if err != nil {
		return Move{}, err
	}
	if rookDown.Direction != board.Down || rookDown.Piece != rookUp.Piece || rookDown.Square != rookTo {
		return Move{}, discard("castle expected rook down on %s, got %s", rookTo, rookDown)
	}
	return Move{From: mover.Square, To: rookFrom, Castle: true}, nil
}

// castleRook reports whether a king went from its home square to a
// castling square, and where its rook starts and ends.
func castleRook(mover, landing board.Action) (from, to chess.Square, ok bool) {
	if mover.Piece.Type() != chess.King {
		return chess.NoSquare, chess.NoSquare, false
	}
	home := chess.Rank1
	if mover.Color() == chess.Black {
		home = chess.Rank8
	}
	if mover.Square != chess.NewSquare(chess.FileE, home) || landing.Square.Rank() != home {
		return chess.NoSquare, chess.NoSquare, false
	}
	switch landing.Square.File() {
	case chess.FileG:
		return chess.NewSquare(chess.FileH, home), chess.NewSquare(chess.FileF, home), true
	case chess.FileC:
		return chess.NewSquare(chess.FileA, home), chess.NewSquare(chess.FileD, home), true
	}
	return chess.NoSquare, chess.NoSquare, false
}

func isRook(p chess.Piece, c chess.Color) bool {
	return p.Type() == chess.Rook && p.Color() == c
}
