package board

import (
	"fmt"
	"strings"
)

// Side identifies which player a piece belongs to.
type Side string

const (
	SideWhite Side = "white"
	SideBlack Side = "black"
)

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == SideWhite {
		return SideBlack
	}
	return SideWhite
}

// Kind is the piece type.
type Kind string

const (
	Pawn   Kind = "pawn"
	Knight Kind = "knight"
	Bishop Kind = "bishop"
	Rook   Kind = "rook"
	Queen  Kind = "queen"
	King   Kind = "king"
)

// Cell is one square of the board: a (side, kind) pair, or empty when
// both fields are zero.
type Cell struct {
	Side Side `json:"side,omitempty"`
	Kind Kind `json:"kind,omitempty"`
}

// Empty reports whether the cell holds no piece.
func (c Cell) Empty() bool { return c.Kind == "" }

// Squares is the number of cells on the board.
const Squares = 64

// Board is the full 8x8 layout. Index 0 is a1, index 63 is h8;
// rank 0 is White's back rank.
type Board [Squares]Cell

// Index converts zero-based file and rank to a square index.
func Index(file, rank int) int { return rank*8 + file }

// FileOf returns the zero-based file of a square index.
func FileOf(sq int) int { return sq % 8 }

// RankOf returns the zero-based rank of a square index.
func RankOf(sq int) int { return sq / 8 }

// Valid reports whether sq is on the board.
func Valid(sq int) bool { return sq >= 0 && sq < Squares }

// ParseSquare converts algebraic notation ("e2") to a square index.
func ParseSquare(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 {
		return 0, fmt.Errorf("bad square %q", s)
	}
	file := int(s[0] - 'a')
	rank := int(s[1] - '1')
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return 0, fmt.Errorf("bad square %q", s)
	}
	return Index(file, rank), nil
}

// FormatSquare converts a square index to algebraic notation.
func FormatSquare(sq int) string {
	if !Valid(sq) {
		return "??"
	}
	return string([]byte{byte('a' + FileOf(sq)), byte('1' + RankOf(sq))})
}

var backRank = [8]Kind{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}

// Initial returns the starting layout: White on ranks 0-1, Black on
// ranks 6-7.
func Initial() Board {
	var b Board
	for f := 0; f < 8; f++ {
		b[Index(f, 0)] = Cell{Side: SideWhite, Kind: backRank[f]}
		b[Index(f, 1)] = Cell{Side: SideWhite, Kind: Pawn}
		b[Index(f, 6)] = Cell{Side: SideBlack, Kind: Pawn}
		b[Index(f, 7)] = Cell{Side: SideBlack, Kind: backRank[f]}
	}
	return b
}
