package model

import (
	"bufio"
	"io"
	"strconv"
)

// WriteText writes one line per row with the integer state of every cell,
// separated by single spaces
func WriteText(w io.Writer, g *Grid) error {
	bw := bufio.NewWriter(w)
	for r := range g.rows {
		for c := range g.cols {
			if c > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(strconv.Itoa(int(g.cells[r][c])))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
