package configgen

import (
	"fmt"
	"sort"

	"github.com/racecore/overlay-nm/pkg/channel"
)

// LinkRequest is one requested sender/recipient pair from the config
// generator's channel-selector pass, the input to role assignment.
type LinkRequest struct {
	Sender    string
	Recipient string
	LinkType  channel.LinkType

	// Genesis marks a link the generator must pre-create an address for
	// (written to link-profiles.json); false means the link is left for
	// the runtime LinkWizard to establish dynamically and only
	// contributes a channelRoles/expectedLinks entry.
	Genesis bool
	// AllowedChannels restricts which channel gids may satisfy this
	// request, per §4.9's genesis/dynamic x c2s/s2s selectors. Empty
	// means any channel in the assigner's list is eligible.
	AllowedChannels []string
}

// AssignedLink is a LinkRequest resolved to a channel and the role each
// endpoint enacts on it.
type AssignedLink struct {
	LinkRequest
	ChannelGID    string
	SenderRole    string
	RecipientRole string
}

// RoleAssigner implements §4.9's role-assignment pass: for every requested
// link, pick a channel whose roles are mutually direction-compatible and
// that introduces no mechanicalTag conflict with roles either endpoint
// already holds on other channels. Reuses channel.Role.Conflicts's tag
// model and the direction rule from pkg/linkwizard/candidates.go's
// directionAllows.
type RoleAssigner struct {
	channels []channel.Properties

	roles map[string]map[string]string  // node -> gid -> role name
	tags  map[string]map[string]struct{} // node -> union of mechanicalTags already held
}

// NewRoleAssigner builds an assigner over the given channel list, tried in
// GID order so output is deterministic across runs.
func NewRoleAssigner(channels []channel.Properties) *RoleAssigner {
	sorted := append([]channel.Properties(nil), channels...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].GID < sorted[j].GID })
	return &RoleAssigner{
		channels: sorted,
		roles:    make(map[string]map[string]string),
		tags:     make(map[string]map[string]struct{}),
	}
}

// ChannelRoles returns node's gid->role assignments, the channelRoles
// field of its config.json.
func (a *RoleAssigner) ChannelRoles(node string) map[string]string {
	return a.roles[node]
}

// Assign resolves every request to a channel+role pair, in order.
func (a *RoleAssigner) Assign(requests []LinkRequest) ([]AssignedLink, error) {
	out := make([]AssignedLink, 0, len(requests))
	for _, req := range requests {
		link, err := a.assignOne(req)
		if err != nil {
			return nil, err
		}
		out = append(out, link)
	}
	return out, nil
}

func (a *RoleAssigner) assignOne(req LinkRequest) (AssignedLink, error) {
	for _, ch := range a.channels {
		if len(req.AllowedChannels) > 0 && !contains(req.AllowedChannels, ch.GID) {
			continue
		}
		if senderRole, recipientRole, ok := a.fit(ch, req); ok {
			a.commit(req.Sender, ch.GID, senderRole)
			a.commit(req.Recipient, ch.GID, recipientRole)
			return AssignedLink{
				LinkRequest:   req,
				ChannelGID:    ch.GID,
				SenderRole:    senderRole.Name,
				RecipientRole: recipientRole.Name,
			}, nil
		}
	}
	return AssignedLink{}, fmt.Errorf("configgen: no channel satisfies %s -> %s (linkType %v)", req.Sender, req.Recipient, req.LinkType)
}

// fit finds a sender/recipient role pair on ch satisfying direction and
// tag-conflict constraints. Bootstrap channels (exactly one role, per
// §4.9) skip the direction check entirely: the single role must merely be
// usable by both endpoints.
func (a *RoleAssigner) fit(ch channel.Properties, req LinkRequest) (channel.Role, channel.Role, bool) {
	if len(ch.Roles) == 1 {
		role := ch.Roles[0]
		if a.usable(req.Sender, ch.GID, role) && a.usable(req.Recipient, ch.GID, role) {
			return role, role, true
		}
		return channel.Role{}, channel.Role{}, false
	}

	for _, senderCreates := range []bool{true, false} {
		if !directionAllowsAssignment(ch.LinkDirection, req.LinkType, senderCreates) {
			continue
		}
		senderSide := sideFor(senderCreates)
		recipientSide := sideFor(!senderCreates)

		for _, sr := range ch.Roles {
			if !sideMatches(sr.LinkSide, senderSide) || !a.usable(req.Sender, ch.GID, sr) {
				continue
			}
			for _, rr := range ch.Roles {
				if !sideMatches(rr.LinkSide, recipientSide) || !a.usable(req.Recipient, ch.GID, rr) {
					continue
				}
				return sr, rr, true
			}
		}
	}
	return channel.Role{}, channel.Role{}, false
}

// usable reports whether node could enact role on gid: either it already
// does (and role must match exactly), or role's tags don't conflict with
// any role node already holds on a different channel.
func (a *RoleAssigner) usable(node, gid string, role channel.Role) bool {
	if existing, ok := a.roles[node][gid]; ok {
		return existing == role.Name
	}
	used := a.tags[node]
	for tag := range role.MechanicalTags {
		if _, conflict := used[tag]; conflict {
			return false
		}
	}
	return true
}

func (a *RoleAssigner) commit(node, gid string, role channel.Role) {
	if a.roles[node] == nil {
		a.roles[node] = make(map[string]string)
	}
	if _, ok := a.roles[node][gid]; !ok {
		a.roles[node][gid] = role.Name
	}
	if a.tags[node] == nil {
		a.tags[node] = make(map[string]struct{})
	}
	for tag := range role.MechanicalTags {
		a.tags[node][tag] = struct{}{}
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func sideFor(creates bool) channel.LinkSide {
	if creates {
		return channel.SideCreator
	}
	return channel.SideLoader
}

func sideMatches(roleSide, desired channel.LinkSide) bool {
	return roleSide == desired || roleSide == channel.SideBoth
}

// directionAllowsAssignment mirrors pkg/linkwizard/candidates.go's
// directionAllows for the config generator's fresh (not yet assigned)
// role-selection context, where senderCreates stands in for that
// function's selfCreates.
func directionAllowsAssignment(dir channel.LinkDirection, desired channel.LinkType, senderCreates bool) bool {
	if dir == channel.BiDi {
		return true
	}
	if desired == channel.LinkBidi {
		return false
	}
	if senderCreates {
		switch {
		case desired == channel.LinkSend && dir == channel.CreatorToLoader:
			return true
		case desired == channel.LinkRecv && dir == channel.LoaderToCreator:
			return true
		}
		return false
	}
	switch {
	case desired == channel.LinkSend && dir == channel.LoaderToCreator:
		return true
	case desired == channel.LinkRecv && dir == channel.CreatorToLoader:
		return true
	}
	return false
}
