package configgen

import "sort"

// generateRings attempts to build numRings edge-disjoint directed
// Hamiltonian cycles through members, using graph (restricted to edges
// between members) as the reachability source. It generalizes
// committee.py's generate_rings, which enumerates ALL simple cycles via
// networkx and keeps full-length ones; full cycle enumeration is
// exponential, so this instead runs a bounded backtracking search that
// stops as soon as it finds one Hamiltonian cycle per round (committees are
// sized around log2(n) by formCommittees, keeping the search small). Each
// found cycle's edges are removed before the next round, same as the
// original's "remove cycle_edges, try again" loop. Returns fewer than
// numRings rings, with the shortfall left for the caller to warn about, if
// the committee does not support that many edge-disjoint cycles.
func generateRings(members []string, graph map[string][]string, numRings int) [][]string {
	if len(members) == 0 || numRings <= 0 {
		return nil
	}

	memberSet := make(map[string]struct{}, len(members))
	for _, m := range members {
		memberSet[m] = struct{}{}
	}

	remaining := make(map[string]map[string]struct{}, len(members))
	for _, m := range members {
		remaining[m] = make(map[string]struct{})
		for _, dst := range graph[m] {
			if _, ok := memberSet[dst]; ok {
				remaining[m][dst] = struct{}{}
			}
		}
	}

	sorted := append([]string(nil), members...)
	sort.Strings(sorted)

	var rings [][]string
	for len(rings) < numRings {
		cycle := findHamiltonianCycle(sorted, remaining)
		if cycle == nil {
			break
		}
		rings = append(rings, cycle)
		for i, node := range cycle {
			next := cycle[(i+1)%len(cycle)]
			delete(remaining[node], next)
		}
	}
	return rings
}

// findHamiltonianCycle does a depth-first backtracking search for one
// directed cycle visiting every node in order exactly once, starting (and
// fixed at) order[0] to avoid re-discovering rotations of the same cycle.
func findHamiltonianCycle(order []string, adj map[string]map[string]struct{}) []string {
	if len(order) == 0 {
		return nil
	}
	start := order[0]
	visited := map[string]struct{}{start: {}}
	path := []string{start}

	var walk func() []string
	walk = func() []string {
		if len(path) == len(order) {
			last := path[len(path)-1]
			if _, ok := adj[last][start]; ok {
				return append([]string(nil), path...)
			}
			return nil
		}
		last := path[len(path)-1]
		next := make([]string, 0, len(adj[last]))
		for n := range adj[last] {
			next = append(next, n)
		}
		sort.Strings(next)
		for _, n := range next {
			if _, seen := visited[n]; seen {
				continue
			}
			visited[n] = struct{}{}
			path = append(path, n)
			if found := walk(); found != nil {
				return found
			}
			path = path[:len(path)-1]
			delete(visited, n)
		}
		return nil
	}

	return walk()
}
