// Package board implements the Reversi rules engine. It is pure in-memory
// logic: the server instantiates it as the authoritative board inside a game
// relay, the client instantiates it to reject illegal input before it ever
// reaches the wire.
package board

// Size is the board edge length.
const Size = 8

// square is a board cell. Zero value means empty.
type square uint8

const (
	empty square = iota
	blackStone
	whiteStone
)

func stone(p Piece) square {
	if p == Black {
		return blackStone
	}
	return whiteStone
}

// Board is the 8x8 playing field plus the colour whose turn it is.
// It is not safe for concurrent use; the owning task serialises access.
type Board struct {
	squares [Size][Size]square
	turn    Piece
}

// New returns a board in the standard starting position. Black moves first.
func New() *Board {
	var b Board
	b.squares[3][3] = whiteStone
	b.squares[4][4] = whiteStone
	b.squares[3][4] = blackStone
	b.squares[4][3] = blackStone
	b.turn = Black
	return &b
}

// Turn returns the colour that moves next.
func (b *Board) Turn() Piece {
	return b.turn
}

// At returns the piece at pos, if any. ok is false for empty or off-board
// squares.
func (b *Board) At(pos Pos) (Piece, bool) {
	if pos.X >= Size || pos.Y >= Size {
		return 0, false
	}
	switch b.squares[pos.X][pos.Y] {
	case blackStone:
		return Black, true
	case whiteStone:
		return White, true
	}
	return 0, false
}

// CanPlace reports whether placing piece at pos would flip at least one
// opponent run. It does not look at whose turn it is.
func (b *Board) CanPlace(pos Pos, piece Piece) bool {
	return len(b.AffectedDirections(pos, piece)) > 0
}

// AffectedDirections returns every direction in which placing piece at pos
// would close off a run of opponent stones. A direction qualifies iff the
// walk from pos meets one or more opponent stones followed by an own stone,
// without leaving the board and without hitting an empty square first.
func (b *Board) AffectedDirections(pos Pos, piece Piece) []Direction {
	if pos.X >= Size || pos.Y >= Size || b.squares[pos.X][pos.Y] != empty {
		return nil
	}

	var affected []Direction
	own := stone(piece)
	opp := stone(piece.Opposite())

	for _, d := range directions {
		if b.closesRun(pos, d, own, opp) {
			affected = append(affected, d)
		}
	}

	return affected
}

// closesRun walks from pos along d and reports whether the walk crosses at
// least one opponent stone before landing on an own stone.
func (b *Board) closesRun(pos Pos, d Direction, own, opp square) bool {
	x, y := int8(pos.X)+d.DX, int8(pos.Y)+d.DY
	run := 0
	for x >= 0 && y >= 0 && x < Size && y < Size {
		switch b.squares[x][y] {
		case opp:
			run++
		case own:
			return run > 0
		default:
			return false
		}
		x += d.DX
		y += d.DY
	}
	return false
}

// Place attempts to put piece at pos. It fails and leaves the board
// untouched if it is not piece's turn, pos is off-board or occupied, or no
// direction would be flipped. On success every closed-off opponent run is
// flipped, the piece is written and the turn passes to the opponent.
func (b *Board) Place(pos Pos, piece Piece) bool {
	if piece != b.turn {
		return false
	}
	if pos.X >= Size || pos.Y >= Size || b.squares[pos.X][pos.Y] != empty {
		return false
	}

	dirs := b.AffectedDirections(pos, piece)
	if len(dirs) == 0 {
		return false
	}

	own := stone(piece)
	opp := stone(piece.Opposite())
	for _, d := range dirs {
		x, y := int8(pos.X)+d.DX, int8(pos.Y)+d.DY
		for b.squares[x][y] == opp {
			b.squares[x][y] = own
			x += d.DX
			y += d.DY
		}
	}

	b.squares[pos.X][pos.Y] = own
	b.turn = b.turn.Opposite()
	return true
}

// Pass gives the turn to the opponent without placing anything.
func (b *Board) Pass() {
	b.turn = b.turn.Opposite()
}

// Opportunities returns every empty square where piece could legally be
// placed, ignoring whose turn it is.
func (b *Board) Opportunities(piece Piece) []Pos {
	var ops []Pos
	for x := uint8(0); x < Size; x++ {
		for y := uint8(0); y < Size; y++ {
			pos := Pos{x, y}
			if b.squares[x][y] == empty && b.CanPlace(pos, piece) {
				ops = append(ops, pos)
			}
		}
	}
	return ops
}

// Score counts the stones of each colour.
func (b *Board) Score() (white, black int) {
	for x := range b.squares {
		for y := range b.squares[x] {
			switch b.squares[x][y] {
			case whiteStone:
				white++
			case blackStone:
				black++
			}
		}
	}
	return white, black
}

// Winner returns the winning colour once neither side has a legal move.
// decided is false while either colour still has an opportunity. White wins
// ties: Black always moves first, so the tie break favours the second mover.
func (b *Board) Winner() (winner Piece, decided bool) {
	if len(b.Opportunities(Black)) > 0 || len(b.Opportunities(White)) > 0 {
		return 0, false
	}
	white, black := b.Score()
	if black > white {
		return Black, true
	}
	return White, true
}

// String renders the board as 8 rows of B/W/- characters, rows top to
// bottom, for logs and the CLI.
func (b *Board) String() string {
	out := make([]byte, 0, Size*(Size+1))
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			switch b.squares[x][y] {
			case blackStone:
				out = append(out, 'B')
			case whiteStone:
				out = append(out, 'W')
			default:
				out = append(out, '-')
			}
		}
		out = append(out, '\n')
	}
	return string(out)
}
