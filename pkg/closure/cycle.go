package closure

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dominikbraun/graph"
)

// ErrCircularReference is the sentinel every CycleError unwraps to.
var ErrCircularReference = errors.New("circular reference")

// CycleError reports the members of the dependency cycles met by a sort.
type CycleError[K comparable] struct {
	Members []K
}

func (e *CycleError[K]) Error() string {
	parts := make([]string, len(e.Members))
	for i, m := range e.Members {
		parts[i] = fmt.Sprint(m)
	}
	return fmt.Sprintf("%s between %s", ErrCircularReference, strings.Join(parts, ", "))
}

func (e *CycleError[K]) Unwrap() error {
	return ErrCircularReference
}

// cycleMembers returns the vertices of adj that lie on a cycle, in the order
// they appear in order. A vertex is on a cycle when its strongly connected
// component has more than one vertex or it has an edge to itself.
func cycleMembers[K comparable](order []K, adj map[K][]K) ([]K, error) {
	g := graph.New(func(k K) K { return k }, graph.Directed())
	for _, k := range order {
		if err := g.AddVertex(k); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
			return nil, err
		}
	}

	onCycle := make(map[K]bool)
	for _, k := range order {
		for _, n := range adj[k] {
			if n == k {
				onCycle[k] = true
				continue
			}
			if err := g.AddEdge(k, n); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return nil, err
			}
		}
	}

	components, err := graph.StronglyConnectedComponents(g)
	if err != nil {
		return nil, err
	}
	for _, c := range components {
		if len(c) > 1 {
			for _, k := range c {
				onCycle[k] = true
			}
		}
	}

	members := slices.DeleteFunc(slices.Clone(order), func(k K) bool { return !onCycle[k] })
	return members, nil
}
