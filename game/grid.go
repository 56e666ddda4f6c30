package game

import "math"

// Grid is the occupancy view of a room: each cell holds the id of the fruit
// drawn there, or "" when empty. Fruits are authoritative; the grid is only
// rebuilt from them.
type Grid struct {
	size   int
	margin int
	cells  [][]string
}

func NewGrid(size, margin int) *Grid {
	if size <= 0 {
		size = GridSize
	}
	cells := make([][]string, size)
	for i := range cells {
		cells[i] = make([]string, size)
	}
	return &Grid{size: size, margin: margin, cells: cells}
}

func (g *Grid) Size() int { return g.size }

func (g *Grid) Clear() {
	for _, row := range g.cells {
		for i := range row {
			row[i] = ""
		}
	}
}

// SetCell writes v at the rounded coordinates. Writes outside the raw grid
// are ignored.
func (g *Grid) SetCell(x, y float64, v string) {
	ix, iy := roundInt(x), roundInt(y)
	if ix < 0 || iy < 0 || ix >= g.size || iy >= g.size {
		return
	}
	g.cells[iy][ix] = v
}

func (g *Grid) Cell(x, y int) string {
	if x < 0 || y < 0 || x >= g.size || y >= g.size {
		return ""
	}
	return g.cells[y][x]
}

func (g *Grid) ClearFruit(f *Fruit) {
	for _, c := range f.Footprint() {
		// only erase cells this fruit still owns
		if g.Cell(c[0], c[1]) == f.ID {
			g.SetCell(float64(c[0]), float64(c[1]), "")
		}
	}
}

func (g *Grid) DrawFruit(f *Fruit) {
	for _, c := range f.Footprint() {
		g.SetCell(float64(c[0]), float64(c[1]), f.ID)
	}
}

// InBounds reports whether a position is inside the playable region. The
// region is inset by the margin on the left, right and bottom; the top edge
// extends margin cells above the grid so fruits can enter from row 0.
func (g *Grid) InBounds(x, y float64) bool {
	ix, iy := roundInt(x), roundInt(y)
	return ix >= g.margin && iy >= -g.margin && ix < g.size-g.margin && iy < g.size-g.margin
}

// Cells returns a copy of the grid suitable for handing to other goroutines.
func (g *Grid) Cells() [][]string {
	cp := make([][]string, len(g.cells))
	for i, row := range g.cells {
		cp[i] = make([]string, len(row))
		copy(cp[i], row)
	}
	return cp
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
