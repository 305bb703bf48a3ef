// Package committee models the §3 Committee/Ring routing-sharding unit:
// a named server set plus its clients, ordered rings for intra-committee
// traversal, and the reachable-committees map used for inter-committee
// flooding.
package committee

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Ring is an ordered cycle through a committee's servers. next(self)
// returns the successor of a given server uuid within the cycle.
type Ring struct {
	Members []uuid.UUID
}

// Next returns the successor of self within the ring, and whether self was
// found in the ring at all.
func (r Ring) Next(self uuid.UUID) (uuid.UUID, bool) {
	for i, m := range r.Members {
		if m == self {
			return r.Members[(i+1)%len(r.Members)], true
		}
	}
	return uuid.UUID{}, false
}

// Len is the ring's length, used as the initial ringTtl (len-1).
func (r Ring) Len() int {
	return len(r.Members)
}

// Committee is a named set of servers plus the clients whose entrance or
// exit committee it is.
type Committee struct {
	Name              string
	Servers           []uuid.UUID
	ExitClients       map[uuid.UUID]struct{}
	CommitteeClients  map[uuid.UUID]struct{} // reachable via this committee, not exit-held
	Rings             []Ring
	FloodingFactor    int // 0 = flood all reachable committees
	ReachableCommitte map[string][]uuid.UUID // committee name -> member uuids reachable via it
}

// IsExitClient reports whether uuid is exit-held by this committee.
func (c *Committee) IsExitClient(id uuid.UUID) bool {
	_, ok := c.ExitClients[id]
	return ok
}

// IsCommitteeClient reports whether uuid is reachable via this committee
// without being exit-held by it.
func (c *Committee) IsCommitteeClient(id uuid.UUID) bool {
	_, ok := c.CommitteeClients[id]
	return ok
}

// ReachableCommittees returns the names of other committees reachable from
// this one, in the stable key order the spec mandates as the tie-break for
// forwardToNewCommittees iteration.
func (c *Committee) ReachableCommittees() []string {
	names := make([]string, 0, len(c.ReachableCommitte))
	for name := range c.ReachableCommitte {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EntryPoint returns the first reachable member of a reachable committee,
// per §4.2's forwardToNewCommittees "choose the first reachable member".
func (c *Committee) EntryPoint(committeeName string) (uuid.UUID, bool) {
	members := c.ReachableCommitte[committeeName]
	if len(members) == 0 {
		return uuid.UUID{}, false
	}
	return members[0], true
}

// Registry holds all committees known to the config-generator / runtime and
// supports the DOT export supplemented from the original's
// network_visualizer.py.
type Registry struct {
	Committees map[string]*Committee
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{Committees: make(map[string]*Committee)}
}

// Add registers a committee.
func (r *Registry) Add(c *Committee) {
	r.Committees[c.Name] = c
}

// DOT renders the committee/ring/reachability graph as a Graphviz digraph,
// a debugging aid recovered from the original's standalone visualizer
// script and reimplemented here as a library method.
func (r *Registry) DOT() string {
	var b strings.Builder
	b.WriteString("digraph overlay {\n")

	names := make([]string, 0, len(r.Committees))
	for name := range r.Committees {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c := r.Committees[name]
		fmt.Fprintf(&b, "  subgraph cluster_%s {\n    label=%q;\n", name, name)
		for _, ring := range c.Rings {
			for i, m := range ring.Members {
				next := ring.Members[(i+1)%len(ring.Members)]
				fmt.Fprintf(&b, "    %q -> %q;\n", m, next)
			}
		}
		b.WriteString("  }\n")
		for _, dst := range c.ReachableCommittees() {
			fmt.Fprintf(&b, "  %q -> %q [ltail=cluster_%s, lhead=cluster_%s];\n", name, dst, name, dst)
		}
	}

	b.WriteString("}\n")
	return b.String()
}
