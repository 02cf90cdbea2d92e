package triples

import (
	"bufio"
	"fmt"
	"io"
)

// WriteTurtle writes triples as N-Triples-style Turtle, one statement per
// line.
func WriteTurtle(w io.Writer, triples []Triple) error {
	bw := bufio.NewWriter(w)
	for _, t := range triples {
		if _, err := fmt.Fprintln(bw, t.String()); err != nil {
			return err
		}
	}
	return bw.Flush()
}
