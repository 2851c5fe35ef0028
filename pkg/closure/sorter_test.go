package closure

import (
	"errors"
	"fmt"
	"maps"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// requires maps a vertex to the vertices it depends on.
type requires map[string][]string

func (g requires) providing(k string) ([]string, error) { return g[k], nil }

func (g requires) requiring(k string) ([]string, error) {
	var out []string
	for _, from := range g.vertices() {
		for _, to := range g[from] {
			if to == k {
				out = append(out, from)
			}
		}
	}
	return out, nil
}

func (g requires) vertices() []string {
	return slices.Sorted(maps.Keys(g))
}

func indexOf(order []string) map[string]int {
	idx := make(map[string]int, len(order))
	for i, v := range order {
		idx[v] = i
	}
	return idx
}

func TestSorter_ProvidingChain(t *testing.T) {
	g := requires{"P1": {"P2"}, "P2": {"P3"}, "P3": nil}

	order, err := NewSorter[string](g.providing, nil).Sort([]string{"P1"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"P3", "P2", "P1"}, order)
}

func TestSorter_RequiringChain(t *testing.T) {
	g := requires{"P1": {"P2"}, "P2": {"P3"}, "P3": nil}

	order, err := NewSorter[string](g.requiring, nil).Sort([]string{"P3"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2", "P3"}, order)
}

func TestSorter_SeedOrderAndDedup(t *testing.T) {
	g := requires{"A": nil, "B": {"A"}, "C": nil}

	order, err := NewSorter[string](g.providing, nil).Sort([]string{"C", "B", "C", "A"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, order)
}

func TestSorter_Cycle(t *testing.T) {
	tests := []struct {
		name    string
		graph   requires
		seeds   []string
		members []string
	}{
		{"two node cycle", requires{"A": {"B"}, "B": {"A"}}, []string{"A"}, []string{"B", "A"}},
		{"entry outside cycle", requires{"C": {"A"}, "A": {"B"}, "B": {"A"}}, []string{"C"}, []string{"B", "A"}},
		{"self loop", requires{"A": {"A", "B"}, "B": nil}, []string{"A"}, []string{"A"}},
		{"two cycles", requires{"A": {"B", "C"}, "B": {"A"}, "C": {"D"}, "D": {"C"}}, []string{"A"}, []string{"B", "D", "C", "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSorter[string](tt.graph.providing, nil).Sort(tt.seeds, false)
			require.ErrorIs(t, err, ErrCircularReference)

			var ce *CycleError[string]
			require.ErrorAs(t, err, &ce)
			assert.ElementsMatch(t, tt.members, ce.Members)
			assert.Equal(t, tt.members, ce.Members, "members follow traversal order")
		})
	}
}

func TestSorter_AllowCycles(t *testing.T) {
	g := requires{"C": {"A"}, "A": {"B"}, "B": {"A"}}

	order, err := NewSorter[string](g.providing, nil).Sort([]string{"C"}, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, order)
	assert.Equal(t, "C", order[len(order)-1])

	reachable, err := NewSorter[string](g.providing, nil).Reachable([]string{"C"})
	require.NoError(t, err)
	assert.Equal(t, order, reachable)
}

func TestSorter_Domain(t *testing.T) {
	g := requires{"A": {"B", "X"}, "B": {"X"}, "X": nil}
	notX := func(k string) bool { return k != "X" }

	order, err := NewSorter[string](g.providing, notX).Sort([]string{"A"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, order)

	order, err = NewSorter[string](g.providing, notX).Sort([]string{"X"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, order, "seeds are kept even outside the domain")
}

func TestSorter_EdgeError(t *testing.T) {
	boom := errors.New("metadata unavailable")
	edges := func(k string) ([]string, error) {
		if k == "B" {
			return nil, boom
		}
		return []string{"B"}, nil
	}

	_, err := NewSorter[string](edges, nil).Sort([]string{"A"}, false)
	assert.ErrorIs(t, err, boom)
}

func randomDAG(r *rand.Rand, n int) requires {
	g := requires{}
	for i := 0; i < n; i++ {
		k := fmt.Sprintf("v%03d", i)
		g[k] = nil
		for j := 0; j < i; j++ {
			if r.Intn(4) == 0 {
				g[k] = append(g[k], fmt.Sprintf("v%03d", j))
			}
		}
	}
	return g
}

func TestSorter_OrderingContractOnRandomDAGs(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for round := 0; round < 25; round++ {
		g := randomDAG(r, 30)
		seeds := []string{fmt.Sprintf("v%03d", r.Intn(30)), fmt.Sprintf("v%03d", r.Intn(30))}

		providing, err := NewSorter[string](g.providing, nil).Sort(seeds, false)
		require.NoError(t, err)
		pos := indexOf(providing)
		for _, v := range providing {
			for _, dep := range g[v] {
				require.Contains(t, pos, dep)
				assert.Less(t, pos[dep], pos[v], "%s must precede %s", dep, v)
			}
		}

		requiring, err := NewSorter[string](g.requiring, nil).Sort(seeds, false)
		require.NoError(t, err)
		pos = indexOf(requiring)
		for _, v := range requiring {
			for _, dep := range g[v] {
				if p, ok := pos[dep]; ok {
					assert.Less(t, pos[v], p, "%s must precede %s", v, dep)
				}
			}
		}

		again, err := NewSorter[string](g.providing, nil).Sort(seeds, false)
		require.NoError(t, err)
		assert.Equal(t, providing, again)
	}
}
