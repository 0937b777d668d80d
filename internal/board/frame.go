package board

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/corentings/chess/v2"
)

const (
	// FrameSize is the number of matrix bytes in a notification.
	FrameSize = 32
	// NotificationHeaderSize is the fixed prefix before the matrix.
	NotificationHeaderSize = 2
)

// NotificationHeader is the prefix the board sends ahead of every matrix.
var NotificationHeader = [NotificationHeaderSize]byte{0x01, 0x24}

// ErrShortNotification is returned for notifications that cannot hold a
// full sensor matrix.
var ErrShortNotification = errors.New("board: notification too short")

// SensorFrame is the occupancy matrix: one nibble per square, low nibble
// first within each byte.
type SensorFrame [FrameSize]byte

// ParseNotification extracts the sensor matrix from a raw notification.
// The header bytes are not validated.
func ParseNotification(data []byte) (SensorFrame, error) {
	var f SensorFrame
	if len(data) < NotificationHeaderSize+FrameSize {
		return f, fmt.Errorf("%w: got %d bytes, want at least %d",
			ErrShortNotification, len(data), NotificationHeaderSize+FrameSize)
	}
	copy(f[:], data[NotificationHeaderSize:NotificationHeaderSize+FrameSize])
	return f, nil
}

// Code returns the piece code at nibble index i (0..63).
func (f *SensorFrame) Code(i int) byte {
	return (f[i/2] >> (4 * (i % 2))) & 0x0f
}

// SetCode writes the piece code at nibble index i. Used to build frames in
// tests and replay tooling.
func (f *SensorFrame) SetCode(i int, code byte) {
	shift := 4 * (i % 2)
	f[i/2] = f[i/2]&^(0x0f<<shift) | (code&0x0f)<<shift
}

// Put places p on sq, or empties sq when p is chess.NoPiece.
func (f *SensorFrame) Put(sq chess.Square, p chess.Piece) {
	var code byte
	if p != chess.NoPiece {
		for c, cp := range pieceCodes {
			if cp == p {
				code = byte(c)
				break
			}
		}
	}
	f.SetCode(NibbleIndex(sq), code)
}

// SquareAt maps a nibble index to its square. The sensor matrix is wired
// mirrored: index 0 is h8, index 7 is a8, index 63 is a1.
func SquareAt(i int) chess.Square {
	return chess.NewSquare(chess.File(7-i%8), chess.Rank(7-i/8))
}

// NibbleIndex is the inverse of SquareAt.
func NibbleIndex(sq chess.Square) int {
	return (7-int(sq.Rank()))*8 + 7 - int(sq.File())
}

// ParseSquare parses an algebraic square such as "e4".
func ParseSquare(s string) (chess.Square, error) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return chess.NoSquare, fmt.Errorf("board: invalid square %q", s)
	}
	return chess.NewSquare(chess.File(s[0]-'a'), chess.Rank(s[1]-'1')), nil
}

// Direction says whether a piece was lifted or placed.
type Direction uint8

const (
	// Up means a piece left the square.
	Up Direction = iota + 1
	// Down means a piece was set on the square.
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "UP"
	case Down:
		return "DOWN"
	default:
		return "NONE"
	}
}

// Action is a single lift or place event. The zero Action carries no
// event and is used as a reset marker on the action queue.
type Action struct {
	Direction Direction
	Piece     chess.Piece
	Square    chess.Square
}

// IsReset reports whether a is the reset marker.
func (a Action) IsReset() bool { return a.Direction == 0 }

// Color is the color of the piece that moved.
func (a Action) Color() chess.Color { return a.Piece.Color() }

func (a Action) String() string {
	if a.IsReset() {
		return "RESET"
	}
	return fmt.Sprintf("%s %s %s", a.Direction, Symbol(a.Piece), a.Square)
}

// Diff yields an Action for every square whose occupancy changed between
// prev and cur. Lifts come before placements, each in nibble order: within
// one sampling interval a piece has to leave its square before it lands.
// A square that went straight from one piece to another yields both.
func Diff(prev, cur SensorFrame) iter.Seq[Action] {
	return func(yield func(Action) bool) {
		for _, dir := range [...]Direction{Up, Down} {
			for i := 0; i < 2*FrameSize; i++ {
				was, is := prev.Code(i), cur.Code(i)
				if was == is {
					continue
				}
				code := was
				if dir == Down {
					code = is
				}
				if code == 0 {
					continue
				}
				p, ok := PieceForCode(code)
				if !ok {
					slog.Debug("[ECB] unknown piece code", "square", SquareAt(i).String(), "code", code)
					continue
				}
				if !yield(Action{Direction: dir, Piece: p, Square: SquareAt(i)}) {
					return
				}
			}
		}
	}
}

// Decoder diffs each incoming frame against the previous one. Safe for
// concurrent use; frames are compared in the order Decode is called.
type Decoder struct {
	mu   sync.Mutex
	prev *SensorFrame
}

// Decode stores cur as the new baseline and returns the actions that
// lead from the old baseline to cur. The first frame after construction or
// Reset only establishes the baseline and yields nothing.
func (d *Decoder) Decode(cur SensorFrame) iter.Seq[Action] {
	d.mu.Lock()
	prev := d.prev
	next := cur
	d.prev = &next
	d.mu.Unlock()

	if prev == nil {
		return func(func(Action) bool) {}
	}
	return Diff(*prev, cur)
}

// Reset drops the baseline.
func (d *Decoder) Reset() {
	d.mu.Lock()
	d.prev = nil
	d.mu.Unlock()
}

// HasBaseline reports whether a frame has been seen since the last Reset.
func (d *Decoder) HasBaseline() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prev != nil
}
