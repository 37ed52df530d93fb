package board

// Piece is one of the two stone colours.
type Piece uint8

const (
	Black Piece = 0
	White Piece = 1
)

// Opposite returns the complementary colour.
func (p Piece) Opposite() Piece {
	if p == Black {
		return White
	}
	return Black
}

func (p Piece) String() string {
	if p == Black {
		return "black"
	}
	return "white"
}

// Pos is a square on the 8x8 board. Valid coordinates are 0..7.
type Pos struct {
	X, Y uint8
}

// Direction is one of the 8 compass steps around a square.
type Direction struct {
	DX, DY int8
}

// directions lists the full 8-neighbourhood, matching the walk order used
// when computing flips.
var directions = [8]Direction{
	{-1, 0}, {-1, -1}, {0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1},
}
