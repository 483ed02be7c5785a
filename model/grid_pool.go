package model

import "sync"

// GridPool recycles step buffers so a long run does not allocate a grid per step
type GridPool struct {
	pool sync.Pool
}

func NewGridPool() *GridPool {
	return &GridPool{
		pool: sync.Pool{
			New: func() interface{} {
				return &Grid{}
			},
		},
	}
}

// Get retrieves a grid from the pool, resized and cleared to all Unburned
func (p *GridPool) Get(rows, cols int) *Grid {
	g := p.pool.Get().(*Grid)
	g.reset(rows, cols)
	return g
}

// Put returns a grid to the pool. The caller must not use it afterwards.
func (p *GridPool) Put(g *Grid) {
	if g == nil {
		return
	}
	p.pool.Put(g)
}

// reset resizes the grid if needed and clears every cell
func (g *Grid) reset(rows, cols int) {
	g.rows = rows
	g.cols = cols
	g.burningBounds.valid = false
	g.burningBounds.fresh = false

	if len(g.cells) != rows {
		g.cells = make([][]CellState, rows)
	}
	for i := range g.cells {
		if len(g.cells[i]) != cols {
			g.cells[i] = make([]CellState, cols)
		} else {
			clear(g.cells[i])
		}
	}
}

// NextBuffer is the write side of a synchronous step. It starts as a copy of the
// prior snapshot and is only visible to readers once committed.
type NextBuffer struct {
	prev *Grid
	next *Grid
	pool *GridPool
}

// BeginStep allocates the next buffer for prev, drawing from pool when one is given
func BeginStep(prev *Grid, pool *GridPool) *NextBuffer {
	var next *Grid
	if pool != nil {
		next = pool.Get(prev.rows, prev.cols)
	} else {
		next = newGrid(prev.rows, prev.cols)
	}
	next.copyFrom(prev)
	return &NextBuffer{prev: prev, next: next, pool: pool}
}

// Prev returns the snapshot being read during this step
func (b *NextBuffer) Prev() *Grid {
	return b.prev
}

// Set writes one cell of the next snapshot. Concurrent calls are safe as long
// as no two goroutines write the same cell.
func (b *NextBuffer) Set(r, c int, s CellState) {
	b.next.cells[r][c] = s
}

// Commit returns the finished snapshot. The buffer must not be used afterwards.
func (b *NextBuffer) Commit() *Grid {
	next := b.next
	next.burningBounds.fresh = false
	b.next = nil
	return next
}

// Discard drops an unfinished step, returning its buffer to the pool
func (b *NextBuffer) Discard() {
	if b.next == nil {
		return
	}
	if b.pool != nil {
		b.pool.Put(b.next)
	}
	b.next = nil
}
