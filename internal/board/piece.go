// Package board decodes the sensor matrix reported by the electronic
// chessboard and encodes the LED matrix written back to it.
package board

import (
	"strings"

	"github.com/corentings/chess/v2"
)

// pieceCodes maps the board's 4-bit piece codes to pieces. Code 0 is an
// empty square; codes 13-15 are never sent by the firmware.
var pieceCodes = [16]chess.Piece{
	0x1: chess.BlackQueen,
	0x2: chess.BlackKing,
	0x3: chess.BlackBishop,
	0x4: chess.BlackPawn,
	0x5: chess.BlackKnight,
	0x6: chess.WhiteRook,
	0x7: chess.WhitePawn,
	0x8: chess.BlackRook,
	0x9: chess.WhiteBishop,
	0xa: chess.WhiteKnight,
	0xb: chess.WhiteQueen,
	0xc: chess.WhiteKing,
}

// PieceForCode returns the piece for a nibble value. ok is false for an
// empty square or an unknown code.
func PieceForCode(code byte) (p chess.Piece, ok bool) {
	if code > 0xf {
		return chess.NoPiece, false
	}
	p = pieceCodes[code]
	return p, p != chess.NoPiece
}

// Symbol returns the FEN letter for p: uppercase for white, lowercase for
// black, "?" for no piece.
func Symbol(p chess.Piece) string {
	if p == chess.NoPiece {
		return "?"
	}
	s := p.Type().String()
	if p.Color() == chess.White {
		return strings.ToUpper(s)
	}
	return s
}
