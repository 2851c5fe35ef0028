package closure

import (
	"fmt"
)

// Direction selects which edges a closure follows.
type Direction uint8

const (
	// Providing follows requires edges: the result holds what the seeds depend on,
	// dependencies first.
	Providing Direction = iota
	// Requiring follows provides-to edges: the result holds what depends on the
	// seeds, dependents first.
	Requiring
)

func (d Direction) String() string {
	if d == Requiring {
		return "requiring"
	}
	return "providing"
}

// EdgeFunc returns the direct neighbours of k in discovery order.
type EdgeFunc[K comparable] func(k K) ([]K, error)

// Sorter computes topologically ordered closures with a depth first search.
type Sorter[K comparable] struct {
	edges  EdgeFunc[K]
	domain func(K) bool
}

// NewSorter creates a sorter over edges. Neighbours for which domain returns
// false are neither visited nor returned; a nil domain accepts everything.
// Seeds are always part of the result.
func NewSorter[K comparable](edges EdgeFunc[K], domain func(K) bool) *Sorter[K] {
	return &Sorter[K]{edges: edges, domain: domain}
}

type mark uint8

const (
	unvisited mark = iota
	onStack
	done
)

type sortRun[K comparable] struct {
	s      *Sorter[K]
	marks  map[K]mark
	adj    map[K][]K
	order  []K
	cyclic bool
}

// Sort returns the seeds and everything reachable from them in post order:
// every vertex appears after all vertices it has an edge to. Ties follow
// seed order and then edge order, so equal inputs give equal results.
//
// When the reachable graph has a cycle and allowCycles is false, Sort
// returns a *CycleError holding the vertices on cycles. With allowCycles the
// complete member set is returned, ordered as far as the cycles allow.
func (s *Sorter[K]) Sort(seeds []K, allowCycles bool) ([]K, error) {
	run := &sortRun[K]{
		s:     s,
		marks: make(map[K]mark),
		adj:   make(map[K][]K),
	}
	for _, seed := range seeds {
		if run.marks[seed] != unvisited {
			continue
		}
		if err := run.visit(seed); err != nil {
			return nil, err
		}
	}
	if run.cyclic && !allowCycles {
		members, err := cycleMembers(run.order, run.adj)
		if err != nil {
			return nil, err
		}
		return nil, &CycleError[K]{Members: members}
	}
	return run.order, nil
}

func (r *sortRun[K]) visit(k K) error {
	r.marks[k] = onStack
	next, err := r.s.edges(k)
	if err != nil {
		return fmt.Errorf("reading edges of %v: %w", k, err)
	}
	kept := next[:0:0]
	for _, n := range next {
		if r.s.domain == nil || r.s.domain(n) {
			kept = append(kept, n)
		}
	}
	r.adj[k] = kept

	for _, n := range kept {
		switch r.marks[n] {
		case unvisited:
			if err := r.visit(n); err != nil {
				return err
			}
		case onStack:
			r.cyclic = true
		}
	}
	r.marks[k] = done
	r.order = append(r.order, k)
	return nil
}

// Reachable returns the member set of the closure without ordering guarantees
// beyond determinism. Cycles are tolerated.
func (s *Sorter[K]) Reachable(seeds []K) ([]K, error) {
	return s.Sort(seeds, true)
}
