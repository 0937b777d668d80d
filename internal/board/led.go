package board

import "github.com/corentings/chess/v2"

// LEDFrameSize is the length of an LED frame on the wire.
const LEDFrameSize = 10

var ledHeader = [2]byte{0x0a, 0x08}

// LEDFrame is the LED matrix: two header bytes followed by one bitmask per
// rank, rank 8 first. Bit i of a row lights file 7-i.
type LEDFrame [LEDFrameSize]byte

// NewLEDFrame returns a frame with every LED off.
func NewLEDFrame() LEDFrame {
	var f LEDFrame
	f.Clear()
	return f
}

// Light switches on the LED under sq.
func (f *LEDFrame) Light(sq chess.Square) {
	row := 7 - int(sq.Rank())
	bit := 7 - int(sq.File())
	f[2+row] |= 1 << bit
}

// Lit reports whether the LED under sq is on.
func (f *LEDFrame) Lit(sq chess.Square) bool {
	row := 7 - int(sq.Rank())
	bit := 7 - int(sq.File())
	return f[2+row]&(1<<bit) != 0
}

// Clear switches every LED off.
func (f *LEDFrame) Clear() {
	*f = LEDFrame{}
	f[0], f[1] = ledHeader[0], ledHeader[1]
}

// Bytes returns a copy of the frame suitable for writing.
func (f *LEDFrame) Bytes() []byte {
	b := make([]byte, LEDFrameSize)
	copy(b, f[:])
	return b
}
