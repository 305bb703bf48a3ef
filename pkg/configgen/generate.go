package configgen

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/racecore/overlay-nm/pkg/channel"
	"github.com/racecore/overlay-nm/pkg/committee"
	"github.com/racecore/overlay-nm/pkg/persona"
	"github.com/racecore/overlay-nm/pkg/raceconfig"
)

// Options configures one run of the generator.
type Options struct {
	DesiredCommitteeSize int // 0 picks max(1, log2(numServers)) per network_manager_utils.py
	FloodingFactor       int
	NumRings             int
	DiffEntranceExit     bool

	Channels []channel.Properties

	// Channel selectors: which channel gids the role assigner may use for
	// each link category, per §4.9's "four channel selectors".
	GenesisC2S []string
	GenesisS2S []string
	DynamicC2S []string
	DynamicS2S []string

	DirectBasePort   int // base port minted into genesis direct-channel addresses
	CheckFrequencyMs int // indirect channel poll interval baked into generated addresses

	MaxSeenMessages int
	MaxStaleUUIDs   int
}

func (o Options) withDefaults() Options {
	if o.FloodingFactor == 0 {
		o.FloodingFactor = 2
	}
	if o.NumRings == 0 {
		o.NumRings = 2
	}
	if o.DirectBasePort == 0 {
		o.DirectBasePort = 20000
	}
	if o.CheckFrequencyMs == 0 {
		o.CheckFrequencyMs = 1000
	}
	if o.MaxSeenMessages == 0 {
		o.MaxSeenMessages = 10000
	}
	if o.MaxStaleUUIDs == 0 {
		o.MaxStaleUUIDs = 10000
	}
	return o
}

// Result is every artifact one Generate call produces, ready for the
// caller (cmd/configgen) to write to disk.
type Result struct {
	Personas     []persona.FileEntry
	AESKeys      map[string][]byte // raceUuid string -> 32-byte key
	ClientConfig map[string]*raceconfig.ClientConfig // node name -> config
	ServerConfig map[string]*raceconfig.ServerConfig // node name -> config
	LinkProfiles raceconfig.LinkProfiles
	Request      *raceconfig.NetworkManagerRequest
	Committees   *committee.Registry
}

// Generator runs the §4.9 two-pass process over one RangeConfig.
type Generator struct {
	rc   *RangeConfig
	opts Options
	ids  map[string]uuid.UUID
	port int
}

// NewGenerator builds a Generator, minting a stable uuid for every node
// name up front so every later pass agrees on identity.
func NewGenerator(rc *RangeConfig, opts Options) *Generator {
	opts = opts.withDefaults()
	g := &Generator{rc: rc, opts: opts, ids: make(map[string]uuid.UUID, len(rc.Nodes)), port: opts.DirectBasePort}
	for _, n := range rc.Nodes {
		g.ids[n.Name] = uuid.New()
	}
	return g
}

func (g *Generator) id(name string) uuid.UUID { return g.ids[name] }

// Generate runs committee formation, ring generation, client/committee
// assignment, role assignment and key derivation, and assembles every
// output file's in-memory representation.
func (g *Generator) Generate() (*Result, error) {
	graph := g.rc.serverGraph()
	nodeLists := formCommittees(graph, g.opts.DesiredCommitteeSize)
	sort.Slice(nodeLists, func(i, j int) bool { return nodeLists[i][0] < nodeLists[j][0] })

	committees := committee.NewRegistry()
	serverCommittee := make(map[string]string)
	committeeMembers := make(map[string][]string)
	var genesisS2S []LinkRequest

	for idx, members := range nodeLists {
		name := fmt.Sprintf("committee-%d", idx)
		cmt := &committee.Committee{
			Name:              name,
			FloodingFactor:    g.opts.FloodingFactor,
			ExitClients:       make(map[uuid.UUID]struct{}),
			CommitteeClients:  make(map[uuid.UUID]struct{}),
			ReachableCommitte: make(map[string][]uuid.UUID),
		}
		committeeMembers[name] = members
		for _, m := range members {
			cmt.Servers = append(cmt.Servers, g.id(m))
			serverCommittee[m] = name
		}

		rings := generateRings(members, graph, g.opts.NumRings)
		if len(rings) < g.opts.NumRings {
			log.Warningf("configgen: only generated %d of %d rings for %s", len(rings), g.opts.NumRings, name)
		}
		for _, ring := range rings {
			ids := make([]uuid.UUID, len(ring))
			for i, m := range ring {
				ids[i] = g.id(m)
			}
			cmt.Rings = append(cmt.Rings, committee.Ring{Members: ids})

			for i, src := range ring {
				dst := ring[(i+1)%len(ring)]
				genesisS2S = append(genesisS2S, LinkRequest{Sender: src, Recipient: dst, LinkType: channel.LinkSend, Genesis: true})
			}
		}

		committees.Add(cmt)
	}

	dynamicS2S := g.linkInterCommitteeReachability(committees, graph, serverCommittee)

	exitCommittee, entranceCommittee := g.assignClients(committees)

	names := make([]string, 0, len(g.ids))
	for name := range g.ids {
		names = append(names, name)
	}
	sort.Strings(names)

	keys, err := generateAESKeys(names)
	if err != nil {
		return nil, err
	}

	genesisC2S := g.buildGenesisC2SRequests(exitCommittee, committeeMembers)
	dynamicC2S := g.buildDynamicC2SRequests(exitCommittee, entranceCommittee, committeeMembers)

	assigned, assigner, err := g.assignAll(genesisC2S, genesisS2S, dynamicC2S, dynamicS2S)
	if err != nil {
		return nil, err
	}

	linkProfiles, expectedLinks, err := g.buildLinkProfiles(assigned)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Personas:     g.buildPersonaEntries(names, keys),
		AESKeys:      make(map[string][]byte, len(keys)),
		ClientConfig: make(map[string]*raceconfig.ClientConfig),
		ServerConfig: make(map[string]*raceconfig.ServerConfig),
		LinkProfiles: linkProfiles,
		Request:      buildRequestFile(assigned),
		Committees:   committees,
	}
	for name, key := range keys {
		result.AESKeys[g.id(name).String()] = key
	}

	for _, n := range g.rc.Nodes {
		switch n.Kind {
		case NodeServer:
			if !n.Genesis {
				continue
			}
			cmtName := serverCommittee[n.Name]
			cmt := committees.Committees[cmtName]
			result.ServerConfig[n.Name] = g.buildServerConfig(n, cmt, assigner, expectedLinks[n.Name])
		case NodeClient, NodeRegistry:
			if !n.Genesis {
				continue
			}
			result.ClientConfig[n.Name] = g.buildClientConfig(n, exitCommittee[n.Name], entranceCommittee[n.Name], committees, assigner, expectedLinks[n.Name])
		}
	}

	return result, nil
}

// linkInterCommitteeReachability fills each committee's ReachableCommitte
// map from directed server reachability and returns the discovered
// cross-committee edges, one per ordered (srcCommittee, dstCommittee) pair,
// for the dynamic server-to-server link requests.
func (g *Generator) linkInterCommitteeReachability(committees *committee.Registry, graph map[string][]string, serverCommittee map[string]string) []LinkRequest {
	seenPair := make(map[[2]string]bool)
	var edges []LinkRequest

	var srcNames []string
	for n := range serverCommittee {
		srcNames = append(srcNames, n)
	}
	sort.Strings(srcNames)

	for _, src := range srcNames {
		srcCommittee := serverCommittee[src]
		for _, dst := range graph[src] {
			dstCommittee, ok := serverCommittee[dst]
			if !ok || dstCommittee == srcCommittee {
				continue
			}
			cmt := committees.Committees[srcCommittee]
			cmt.ReachableCommitte[dstCommittee] = appendUnique(cmt.ReachableCommitte[dstCommittee], g.id(dst))

			pair := [2]string{srcCommittee, dstCommittee}
			if seenPair[pair] {
				continue
			}
			seenPair[pair] = true
			edges = append(edges, LinkRequest{Sender: src, Recipient: dst, LinkType: channel.LinkSend})
		}
	}
	return edges
}

func appendUnique(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// assignClients picks each genesis client's exit (and, if requested, a
// different entrance) committee, generalizing network_manager_utils.py's
// assign_client.
func (g *Generator) assignClients(committees *committee.Registry) (exit, entrance map[string]string) {
	exit = make(map[string]string)
	entrance = make(map[string]string)

	sortedCommitteeNames := make([]string, 0, len(committees.Committees))
	for name := range committees.Committees {
		sortedCommitteeNames = append(sortedCommitteeNames, name)
	}
	sort.Strings(sortedCommitteeNames)

	for _, name := range g.rc.genesisClients() {
		reachable := g.rc.reachableServersOf(name)
		best := g.bestCommitteeFor(reachable, committees)
		if best == "" {
			log.Warningf("configgen: client %s cannot reach any committee server", name)
			continue
		}
		exit[name] = best
		entranceName := best
		if g.opts.DiffEntranceExit && len(sortedCommitteeNames) > 1 {
			idx := indexOf(sortedCommitteeNames, best)
			entranceName = sortedCommitteeNames[(idx+1)%len(sortedCommitteeNames)]
		}
		entrance[name] = entranceName

		clientID := g.id(name)
		exitCmt := committees.Committees[best]
		exitCmt.ExitClients[clientID] = struct{}{}
		if entranceName != best {
			committees.Committees[entranceName].CommitteeClients[clientID] = struct{}{}
		}
	}
	return exit, entrance
}

// bestCommitteeFor picks the committee containing the most of a client's
// reachable servers, breaking ties on committee name, generalizing
// assign_client's implicit "pick a committee the client can reach".
func (g *Generator) bestCommitteeFor(reachableServers []string, committees *committee.Registry) string {
	counts := make(map[string]int)
	for _, srvName := range reachableServers {
		srvID := g.id(srvName)
		for cmtName, cmt := range committees.Committees {
			for _, member := range cmt.Servers {
				if member == srvID {
					counts[cmtName]++
				}
			}
		}
	}

	var names []string
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	best := ""
	bestCount := 0
	for _, name := range names {
		if counts[name] > bestCount {
			best = name
			bestCount = counts[name]
		}
	}
	return best
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return 0
}
