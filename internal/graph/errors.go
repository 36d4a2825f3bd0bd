package graph

import (
	"fmt"
	"strings"
)

// CycleError reports the nodes of a graph that take part in, or depend on, a
// cycle.
type CycleError[K comparable] struct {
	Nodes []K
}

func (e *CycleError[K]) Error() string {
	names := make([]string, len(e.Nodes))
	for i, n := range e.Nodes {
		names[i] = fmt.Sprint(n)
	}
	return fmt.Sprintf("graph contains a cycle through %d node(s): %s", len(e.Nodes), strings.Join(names, ", "))
}
