package configgen

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/racecore/overlay-nm/pkg/channel"
	"github.com/racecore/overlay-nm/pkg/channel/direct"
	"github.com/racecore/overlay-nm/pkg/channel/indirect"
	"github.com/racecore/overlay-nm/pkg/committee"
	"github.com/racecore/overlay-nm/pkg/persona"
	"github.com/racecore/overlay-nm/pkg/raceconfig"
)

func linkTypeString(lt channel.LinkType) string {
	switch lt {
	case channel.LinkSend:
		return "send"
	case channel.LinkRecv:
		return "recv"
	default:
		return "bidi"
	}
}

func (g *Generator) channelByGID(gid string) (channel.Properties, bool) {
	for _, ch := range g.opts.Channels {
		if ch.GID == gid {
			return ch, true
		}
	}
	return channel.Properties{}, false
}

func roleSideByName(ch channel.Properties, name string) channel.LinkSide {
	for _, r := range ch.Roles {
		if r.Name == name {
			return r.LinkSide
		}
	}
	return channel.SideBoth
}

// buildLinkProfiles turns every assigned link into the expectedLinks
// entries both endpoints need (regardless of genesis-ness) and, for
// genesis links, a link-profiles.json address entry generated for the
// creating side.
func (g *Generator) buildLinkProfiles(assigned []AssignedLink) (raceconfig.LinkProfiles, map[string][]raceconfig.ExpectedLink, error) {
	profiles := make(raceconfig.LinkProfiles)
	expected := make(map[string][]raceconfig.ExpectedLink)

	for _, a := range assigned {
		lt := linkTypeString(a.LinkType)
		expected[a.Sender] = append(expected[a.Sender], raceconfig.ExpectedLink{
			Persona: g.id(a.Recipient).String(), LinkType: lt, Count: 1,
		})
		expected[a.Recipient] = append(expected[a.Recipient], raceconfig.ExpectedLink{
			Persona: g.id(a.Sender).String(), LinkType: lt, Count: 1,
		})

		if !a.Genesis {
			continue
		}

		ch, ok := g.channelByGID(a.ChannelGID)
		if !ok {
			return nil, nil, fmt.Errorf("configgen: assigned unknown channel %s", a.ChannelGID)
		}

		creatorIsSender := true
		switch {
		case roleSideByName(ch, a.SenderRole) == channel.SideCreator:
			creatorIsSender = true
		case roleSideByName(ch, a.RecipientRole) == channel.SideCreator:
			creatorIsSender = false
		}
		creator := a.Sender
		if !creatorIsSender {
			creator = a.Recipient
		}

		address, err := g.genesisAddress(ch, creator, a)
		if err != nil {
			log.Warningf("configgen: skipping link profile for %s->%s on %s: %v", a.Sender, a.Recipient, a.ChannelGID, err)
			continue
		}

		profiles[a.ChannelGID] = append(profiles[a.ChannelGID], raceconfig.LinkProfileEntry{
			Role:        "creator",
			Address:     address,
			Personas:    []string{g.id(a.Sender).String(), g.id(a.Recipient).String()},
			Description: fmt.Sprintf("genesis link %s -> %s", a.Sender, a.Recipient),
		})
	}

	return profiles, expected, nil
}

// genesisAddress synthesizes a channel-specific address string for a
// pre-created genesis link, the config generator's equivalent of a node
// actually calling createLink at runtime.
func (g *Generator) genesisAddress(ch channel.Properties, creator string, a AssignedLink) (string, error) {
	switch ch.ConnectionType {
	case channel.ConnDirect:
		addr := direct.Address{Hostname: g.rc.hostnameOf(creator), Port: g.nextPort()}
		raw, err := json.Marshal(addr)
		return string(raw), err
	case channel.ConnIndirect:
		addr := indirect.Address{
			Hostname:         g.rc.WhiteboardHostname,
			Port:             g.rc.WhiteboardPort,
			Hashtag:          fmt.Sprintf("%s-%s-%s", a.ChannelGID, a.Sender, a.Recipient),
			CheckFrequencyMs: g.opts.CheckFrequencyMs,
		}
		raw, err := json.Marshal(addr)
		return string(raw), err
	default:
		return "", fmt.Errorf("connection type %v has no generator-known address shape", ch.ConnectionType)
	}
}

func (g *Generator) nextPort() int {
	p := g.port
	g.port++
	return p
}

// buildPersonaEntries assembles personas/race-personas.json's entries for
// every node in the range config, keyed off the stable uuids minted by
// NewGenerator.
func (g *Generator) buildPersonaEntries(names []string, keys map[string][]byte) []persona.FileEntry {
	kindByName := make(map[string]NodeKind, len(g.rc.Nodes))
	for _, n := range g.rc.Nodes {
		kindByName[n.Name] = n.Kind
	}

	out := make([]persona.FileEntry, 0, len(names))
	for _, name := range names {
		id := g.id(name)
		entry := persona.FileEntry{
			DisplayName: name,
			RaceUUID:    id.String(),
			PersonaType: persona.Kind(kindByName[name]),
		}
		if _, ok := keys[name]; ok {
			entry.AESKeyFile = id.String() + ".aes"
		}
		out = append(out, entry)
	}
	return out
}

// buildRequestFile assembles network-manager-request.json from every
// assigned link, genesis and dynamic alike, per §4.9's "describing every
// requested sender/recipient link".
func buildRequestFile(assigned []AssignedLink) *raceconfig.NetworkManagerRequest {
	req := &raceconfig.NetworkManagerRequest{Links: make([]raceconfig.RequestedLink, 0, len(assigned))}
	for _, a := range assigned {
		req.Links = append(req.Links, raceconfig.RequestedLink{
			Sender:    a.Sender,
			Recipient: a.Recipient,
			LinkType:  linkTypeString(a.LinkType),
		})
	}
	return req
}

func (g *Generator) buildServerConfig(n Node, cmt *committee.Committee, assigner *RoleAssigner, links []raceconfig.ExpectedLink) *raceconfig.ServerConfig {
	selfID := g.id(n.Name)

	rings := make([]raceconfig.RingConfig, 0, len(cmt.Rings))
	for _, ring := range cmt.Rings {
		next, ok := ring.Next(selfID)
		if !ok {
			rings = append(rings, raceconfig.RingConfig{Next: "", Length: 0})
			continue
		}
		rings = append(rings, raceconfig.RingConfig{Next: next.String(), Length: ring.Len()})
	}

	reachable := make(map[string][]string, len(cmt.ReachableCommitte))
	for name, ids := range cmt.ReachableCommitte {
		reachable[name] = uuidsToStrings(ids)
	}

	return &raceconfig.ServerConfig{
		CommitteeName:      cmt.Name,
		ExitClients:        uuidSetToStrings(cmt.ExitClients),
		CommitteeClients:   uuidSetToStrings(cmt.CommitteeClients),
		ReachableCommittee: reachable,
		Rings:              rings,
		FloodingFactor:     cmt.FloodingFactor,
		MaxStaleUUIDs:      g.opts.MaxStaleUUIDs,
		ExpectedLinks:      links,
		ChannelRoles:       assigner.ChannelRoles(n.Name),
	}
}

func (g *Generator) buildClientConfig(n Node, exitName, entranceName string, committees *committee.Registry, assigner *RoleAssigner, links []raceconfig.ExpectedLink) *raceconfig.ClientConfig {
	if entranceName == "" {
		entranceName = exitName
	}

	var exitServers, entranceServers []string
	if cmt, ok := committees.Committees[exitName]; ok {
		exitServers = uuidsToStrings(cmt.Servers)
	}
	if cmt, ok := committees.Committees[entranceName]; ok {
		entranceServers = uuidsToStrings(cmt.Servers)
	}

	return &raceconfig.ClientConfig{
		EntranceCommittee: entranceServers,
		ExitCommittee:     exitServers,
		MaxSeenMessages:   g.opts.MaxSeenMessages,
		ExpectedLinks:     links,
		ChannelRoles:      assigner.ChannelRoles(n.Name),
	}
}

func uuidsToStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	sort.Strings(out)
	return out
}

func uuidSetToStrings(set map[uuid.UUID]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id.String())
	}
	sort.Strings(out)
	return out
}
