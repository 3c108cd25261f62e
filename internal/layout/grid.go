package layout

import (
	"errors"
	"fmt"
	"math"
)

// Composite input bounds.
const (
	MinInputs = 2
	MaxInputs = 9
)

// ErrInputCount is returned when a composite has fewer than MinInputs or
// more than MaxInputs sources.
var ErrInputCount = errors.New("composite input count out of range")

// Canvas is the logical pixel size of the composited frame.
type Canvas struct {
	Width  int
	Height int
}

// DefaultCanvas is the 1080p canvas used when none is configured.
var DefaultCanvas = Canvas{Width: 1920, Height: 1080}

// Tile describes where one input lands on the canvas.
type Tile struct {
	Rotation string // filter chain for the rotation hint, "" when none
	Width    int
	Height   int
	X        int
	Y        int
}

// Grid is the planned composite: shared dimensions plus one Tile per input,
// in input order (row-major).
type Grid struct {
	Columns    int
	Rows       int
	TileWidth  int
	TileHeight int
	Tiles      []Tile
}

// Plan computes a square-ish grid for len(rotations) inputs on canvas.
// rotations holds the per-input rotation hint in degrees.
func Plan(canvas Canvas, rotations []int) (Grid, error) {
	n := len(rotations)
	if n < MinInputs || n > MaxInputs {
		return Grid{}, fmt.Errorf("%w: got %d, want %d..%d", ErrInputCount, n, MinInputs, MaxInputs)
	}

	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols

	g := Grid{
		Columns:    cols,
		Rows:       rows,
		TileWidth:  canvas.Width / cols,
		TileHeight: canvas.Height / rows,
		Tiles:      make([]Tile, 0, n),
	}
	for i, deg := range rotations {
		g.Tiles = append(g.Tiles, Tile{
			Rotation: RotationFilter(deg),
			Width:    g.TileWidth,
			Height:   g.TileHeight,
			X:        (i % cols) * g.TileWidth,
			Y:        (i / cols) * g.TileHeight,
		})
	}
	return g, nil
}

// RotationFilter maps a rotation hint in degrees to a transpose chain.
// Unrecognized values mean no rotation.
func RotationFilter(deg int) string {
	switch deg {
	case 90:
		return "transpose=1"
	case 180:
		return "transpose=1,transpose=1"
	case 270:
		return "transpose=2"
	default:
		return ""
	}
}
