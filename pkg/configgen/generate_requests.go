package configgen

import "github.com/racecore/overlay-nm/pkg/channel"

// buildGenesisC2SRequests requests one bidi link per (client, server) pair
// in the client's exit committee, to be pre-created and written into
// link-profiles.json.
func (g *Generator) buildGenesisC2SRequests(exitCommittee map[string]string, committeeMembers map[string][]string) []LinkRequest {
	var out []LinkRequest
	for _, client := range g.rc.genesisClients() {
		cmtName, ok := exitCommittee[client]
		if !ok {
			continue
		}
		for _, server := range committeeMembers[cmtName] {
			out = append(out, LinkRequest{Sender: client, Recipient: server, LinkType: channel.LinkBidi, Genesis: true})
		}
	}
	return out
}

// buildDynamicC2SRequests requests a channelRoles-only (no pre-created
// address) link for clients whose entrance committee differs from their
// exit committee, per --diff-entrance-exit.
func (g *Generator) buildDynamicC2SRequests(exitCommittee, entranceCommittee map[string]string, committeeMembers map[string][]string) []LinkRequest {
	var out []LinkRequest
	for _, client := range g.rc.genesisClients() {
		exitName, ok := exitCommittee[client]
		if !ok {
			continue
		}
		entranceName := entranceCommittee[client]
		if entranceName == "" || entranceName == exitName {
			continue
		}
		for _, server := range committeeMembers[entranceName] {
			out = append(out, LinkRequest{Sender: client, Recipient: server, LinkType: channel.LinkBidi, Genesis: false})
		}
	}
	return out
}

// assignAll tags each request category with its channel selector and runs
// them all through one RoleAssigner, so tag-conflict bookkeeping is shared
// across every category for a given node.
func (g *Generator) assignAll(genesisC2S, genesisS2S, dynamicC2S, dynamicS2S []LinkRequest) ([]AssignedLink, *RoleAssigner, error) {
	assigner := NewRoleAssigner(g.opts.Channels)

	var all []LinkRequest
	all = append(all, withAllowed(genesisC2S, g.opts.GenesisC2S)...)
	all = append(all, withAllowed(genesisS2S, g.opts.GenesisS2S)...)
	all = append(all, withAllowed(dynamicC2S, g.opts.DynamicC2S)...)
	all = append(all, withAllowed(dynamicS2S, g.opts.DynamicS2S)...)

	assigned, err := assigner.Assign(all)
	return assigned, assigner, err
}

func withAllowed(reqs []LinkRequest, allowed []string) []LinkRequest {
	if len(allowed) == 0 {
		return reqs
	}
	out := make([]LinkRequest, len(reqs))
	for i, r := range reqs {
		r.AllowedChannels = allowed
		out[i] = r
	}
	return out
}
