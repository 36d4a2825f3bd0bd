package graph

import (
	"fmt"
	"io"
	"strings"
)

// WriteDOT writes the graph in Graphviz DOT format. label names each node.
func (g *Graph[K]) WriteDOT(w io.Writer, name string, label func(K) string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, err := fmt.Fprintf(w, "digraph %q {\n  rankdir=LR;\n  node [shape=box];\n", name); err != nil {
		return err
	}

	ids := make(map[K]string, len(g.order))
	for i, key := range g.order {
		id := fmt.Sprintf("n%d", i)
		ids[key] = id
		if _, err := fmt.Fprintf(w, "  %s [label=%q];\n", id, label(key)); err != nil {
			return err
		}
	}

	for _, from := range g.order {
		for _, to := range g.edges[from] {
			if _, err := fmt.Fprintf(w, "  %s -> %s;\n", ids[from], ids[to]); err != nil {
				return err
			}
		}
	}

	_, err := fmt.Fprintln(w, "}")
	return err
}

// WriteText writes one line per node listing its successors.
func (g *Graph[K]) WriteText(w io.Writer, label func(K) string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, key := range g.order {
		edges := g.edges[key]
		names := make([]string, len(edges))
		for i, e := range edges {
			names[i] = label(e)
		}

		line := label(key)
		if len(names) > 0 {
			line += " -> " + strings.Join(names, ", ")
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
