package configgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateRingsFindsTriangleCycle(t *testing.T) {
	members := []string{"a", "b", "c"}
	graph := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}
	rings := generateRings(members, graph, 2)
	assert.Len(t, rings, 1)
	assert.ElementsMatch(t, members, rings[0])
}

func TestGenerateRingsReturnsNoneWithoutCycle(t *testing.T) {
	members := []string{"a", "b", "c"}
	graph := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": nil,
	}
	rings := generateRings(members, graph, 2)
	assert.Empty(t, rings)
}

func TestGenerateRingsEdgeDisjointAcrossRounds(t *testing.T) {
	members := []string{"a", "b", "c", "d"}
	graph := map[string][]string{
		"a": {"b", "d"},
		"b": {"a", "c"},
		"c": {"b", "d"},
		"d": {"c", "a"},
	}
	rings := generateRings(members, graph, 2)
	assert.LessOrEqual(t, len(rings), 2)
	usedEdges := map[[2]string]bool{}
	for _, ring := range rings {
		assert.ElementsMatch(t, members, ring)
		for i := range ring {
			edge := [2]string{ring[i], ring[(i+1)%len(ring)]}
			assert.False(t, usedEdges[edge], "edge %v reused across rounds", edge)
			usedEdges[edge] = true
		}
	}
}

func TestFindHamiltonianCycleFixesStart(t *testing.T) {
	order := []string{"a", "b", "c"}
	adj := map[string]map[string]struct{}{
		"a": {"b": {}},
		"b": {"c": {}},
		"c": {"a": {}},
	}
	cycle := findHamiltonianCycle(order, adj)
	assert.Equal(t, []string{"a", "b", "c"}, cycle)
}
