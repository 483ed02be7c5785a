package model

import (
	"crypto/md5"
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidDimensions is returned when a grid is requested with a non-positive size
var ErrInvalidDimensions = errors.New("grid dimensions must be positive")

// Grid represents the burn state of a rectangular landscape
type Grid struct {
	rows  int
	cols  int
	cells [][]CellState

	// Bounding box of burning cells, recomputed lazily
	burningBounds struct {
		minRow, maxRow, minCol, maxCol int
		valid, fresh                   bool
	}
}

// NewGrid creates an all-unburned grid with the specified dimensions
func NewGrid(rows, cols int) (*Grid, error) {
	if rows <= 0 || cols <= 0 {
		return nil, errors.Wrapf(ErrInvalidDimensions, "[NewGrid] rows=%d cols=%d", rows, cols)
	}
	return newGrid(rows, cols), nil
}

// NewIgnitedGrid creates a grid whose only burning cell is the center (rows/2, cols/2)
func NewIgnitedGrid(rows, cols int) (*Grid, error) {
	g, err := NewGrid(rows, cols)
	if err != nil {
		return nil, err
	}
	g.set(rows/2, cols/2, Burning)
	return g, nil
}

func newGrid(rows, cols int) *Grid {
	cells := make([][]CellState, rows)
	for i := range cells {
		cells[i] = make([]CellState, cols)
	}
	return &Grid{
		rows:  rows,
		cols:  cols,
		cells: cells,
	}
}

// Rows returns the number of rows of the grid
func (g *Grid) Rows() int {
	return g.rows
}

// Cols returns the number of columns of the grid
func (g *Grid) Cols() int {
	return g.cols
}

// Center returns the cell seeded at ignition
func (g *Grid) Center() Coord {
	return Coord{Row: g.rows / 2, Col: g.cols / 2}
}

// InBounds reports whether (r, c) lies on the grid
func (g *Grid) InBounds(r, c int) bool {
	return r >= 0 && r < g.rows && c >= 0 && c < g.cols
}

// Get returns the state of a cell. Out of bounds reads are Unburned.
func (g *Grid) Get(r, c int) CellState {
	if !g.InBounds(r, c) {
		return Unburned
	}
	return g.cells[r][c]
}

// set writes a cell. Only the package and the engine's next buffer go through here.
func (g *Grid) set(r, c int, s CellState) {
	if g.InBounds(r, c) {
		g.cells[r][c] = s
		g.burningBounds.fresh = false
	}
}

// Neighbors returns the Moore neighborhood of (r, c) clipped to the grid, in row-major order
func (g *Grid) Neighbors(r, c int) []Coord {
	minRow := max(0, r-1)
	maxRow := min(g.rows-1, r+1)
	minCol := max(0, c-1)
	maxCol := min(g.cols-1, c+1)

	out := make([]Coord, 0, 8)
	for nr := minRow; nr <= maxRow; nr++ {
		for nc := minCol; nc <= maxCol; nc++ {
			if nr == r && nc == c {
				continue
			}
			out = append(out, Coord{Row: nr, Col: nc})
		}
	}
	return out
}

// HasBurningNeighbor reports whether any Moore neighbor of (r, c) is Burning.
// Same bounds as Neighbors without allocating.
func (g *Grid) HasBurningNeighbor(r, c int) bool {
	minRow := max(0, r-1)
	maxRow := min(g.rows-1, r+1)
	minCol := max(0, c-1)
	maxCol := min(g.cols-1, c+1)

	for nr := minRow; nr <= maxRow; nr++ {
		for nc := minCol; nc <= maxCol; nc++ {
			if nr == r && nc == c {
				continue
			}
			if g.cells[nr][nc] == Burning {
				return true
			}
		}
	}
	return false
}

// calculateBurningBounds calculates the bounding box of burning cells
func (g *Grid) calculateBurningBounds() {
	b := &g.burningBounds
	b.valid = false

	for r := range g.rows {
		for c := range g.cols {
			if g.cells[r][c] != Burning {
				continue
			}
			if !b.valid {
				b.minRow, b.maxRow = r, r
				b.minCol, b.maxCol = c, c
				b.valid = true
			} else {
				b.minRow = min(b.minRow, r)
				b.maxRow = max(b.maxRow, r)
				b.minCol = min(b.minCol, c)
				b.maxCol = max(b.maxCol, c)
			}
		}
	}
	b.fresh = true
}

// ActiveRegion returns the inclusive rectangle around every burning cell,
// widened by one cell and clipped to the grid. ok is false when nothing burns.
func (g *Grid) ActiveRegion() (lo, hi Coord, ok bool) {
	if !g.burningBounds.fresh {
		g.calculateBurningBounds()
	}
	b := g.burningBounds
	if !b.valid {
		return Coord{}, Coord{}, false
	}
	lo = Coord{Row: max(0, b.minRow-1), Col: max(0, b.minCol-1)}
	hi = Coord{Row: min(g.rows-1, b.maxRow+1), Col: min(g.cols-1, b.maxCol+1)}
	return lo, hi, true
}

// Count returns the number of cells in the given state
func (g *Grid) Count(s CellState) (count int) {
	for r := range g.rows {
		for c := range g.cols {
			if g.cells[r][c] == s {
				count++
			}
		}
	}
	return
}

// Settled reports whether no cell is burning, after which no further step can change the grid
func (g *Grid) Settled() bool {
	_, _, ok := g.ActiveRegion()
	return !ok
}

// Clone returns an independent copy of the grid
func (g *Grid) Clone() *Grid {
	next := newGrid(g.rows, g.cols)
	next.copyFrom(g)
	return next
}

// copyFrom overwrites g with src. Both grids must share dimensions.
func (g *Grid) copyFrom(src *Grid) {
	for r := range g.rows {
		copy(g.cells[r], src.cells[r])
	}
	g.burningBounds = src.burningBounds
}

// Equal reports whether both grids have the same dimensions and cell states
func (g *Grid) Equal(other *Grid) bool {
	if other == nil || g.rows != other.rows || g.cols != other.cols {
		return false
	}
	for r := range g.rows {
		for c := range g.cols {
			if g.cells[r][c] != other.cells[r][c] {
				return false
			}
		}
	}
	return true
}

// Matrix renders the grid as rows of integers: 0=unburned, 1=burning, 2=burned
func (g *Grid) Matrix() [][]int {
	out := make([][]int, g.rows)
	for r := range g.rows {
		out[r] = make([]int, g.cols)
		for c := range g.cols {
			out[r][c] = int(g.cells[r][c])
		}
	}
	return out
}

// Hash returns an MD5 hash of the grid state
func (g *Grid) Hash() string {
	h := md5.New()
	fmt.Fprintf(h, "%dx%d:", g.rows, g.cols)
	for r := range g.rows {
		row := make([]byte, g.cols)
		for c := range g.cols {
			row[c] = byte(g.cells[r][c])
		}
		h.Write(row)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
