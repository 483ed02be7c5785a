package model

import "fmt"

// CellState is the fire state of one grid location. The numeric values are
// the wire encoding used in rendered grids.
type CellState uint8

const (
	Unburned CellState = iota
	Burning
	Burned
)

// String returns the lowercase name of the state
func (s CellState) String() string {
	switch s {
	case Unburned:
		return "unburned"
	case Burning:
		return "burning"
	case Burned:
		return "burned"
	default:
		return fmt.Sprintf("CellState(%d)", uint8(s))
	}
}

// Coord addresses a cell by row and column
type Coord struct {
	Row, Col int
}
