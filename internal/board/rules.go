package board

// Legal reports whether moving the piece on from to to is allowed
// under the simplified rule set. The caller is responsible for turn
// ownership; this only checks piece movement shape and capture rules.
//
// Deliberate simplifications: sliding pieces are not checked for path
// obstruction, and there is no check, castling, en passant, or
// promotion. Capturing the king is how a game ends.
func Legal(b Board, from, to int) bool {
	if !Valid(from) || !Valid(to) || from == to {
		return false
	}
	p := b[from]
	if p.Empty() {
		return false
	}
	dst := b[to]
	if !dst.Empty() && dst.Side == p.Side {
		return false
	}

	dr := RankOf(to) - RankOf(from)
	dc := FileOf(to) - FileOf(from)

	switch p.Kind {
	case Pawn:
		return pawnLegal(b, p.Side, from, to, dr, dc)
	case Knight:
		return (abs(dr) == 2 && abs(dc) == 1) || (abs(dr) == 1 && abs(dc) == 2)
	case Bishop:
		return dr != 0 && abs(dr) == abs(dc)
	case Rook:
		return (dr == 0) != (dc == 0)
	case Queen:
		return (dr != 0 && abs(dr) == abs(dc)) || ((dr == 0) != (dc == 0))
	case King:
		return abs(dr) <= 1 && abs(dc) <= 1
	}
	return false
}

func pawnLegal(b Board, side Side, from, to, dr, dc int) bool {
	dir, startRank := 1, 1
	if side == SideBlack {
		dir, startRank = -1, 6
	}

	// single advance into an empty square
	if dc == 0 && dr == dir && b[to].Empty() {
		return true
	}
	// double advance from the starting rank, both squares empty
	if dc == 0 && dr == 2*dir && RankOf(from) == startRank {
		mid := from + 8*dir
		if b[mid].Empty() && b[to].Empty() {
			return true
		}
	}
	// diagonal advance only as a capture
	if abs(dc) == 1 && dr == dir && !b[to].Empty() {
		return true
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
