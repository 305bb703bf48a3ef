// Package configgen implements the §4.9 config generator: the two-pass
// batch process that turns a physical-topology range config and a channel
// list into per-node config.json files, shared persona files, AES keys and
// a top-level network-manager-request.json. It is generalized from
// pkg/committee's ring/committee data model and pkg/channel's role
// compatibility rule, in the style of range_config_utils.py and
// network_manager_utils.py (not ported line for line; see DESIGN.md for the
// k-components simplification).
package configgen

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// NodeKind classifies a RangeConfig node the same way persona.Kind does.
type NodeKind string

// Recognized node kinds.
const (
	NodeClient   NodeKind = "client"
	NodeServer   NodeKind = "server"
	NodeRegistry NodeKind = "registry"
)

// Node is one entry of a RangeConfig's node list. Hostname defaults to Name
// when empty: RACE testbed deployments resolve node names as DNS hostnames
// directly, so the name doubles as the direct-channel dial target.
type Node struct {
	Name     string   `json:"name"`
	Kind     NodeKind `json:"type"`
	Genesis  bool     `json:"genesis"`
	Hostname string   `json:"hostname,omitempty"`
}

// RangeConfig is the simplified physical-topology input to the config
// generator: a node list plus a directed reachability matrix, standing in
// for the original's enclave/firewall-rule simulation (DESIGN.md records
// this simplification).
type RangeConfig struct {
	Nodes []Node `json:"nodes"`
	// Reachability maps a node name to the names it can directly reach.
	Reachability map[string][]string `json:"reachability"`
	// WhiteboardHostname/WhiteboardPort address the shared indirect-channel
	// whiteboard service every node in the deployment can reach.
	WhiteboardHostname string `json:"whiteboardHostname,omitempty"`
	WhiteboardPort     int    `json:"whiteboardPort,omitempty"`
}

func (rc *RangeConfig) hostnameOf(name string) string {
	for _, n := range rc.Nodes {
		if n.Name == name {
			if n.Hostname != "" {
				return n.Hostname
			}
			return n.Name
		}
	}
	return name
}

// LoadRangeConfig reads a RangeConfig from path.
func LoadRangeConfig(path string) (*RangeConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configgen: read range config: %w", err)
	}
	var rc RangeConfig
	if err := json.Unmarshal(raw, &rc); err != nil {
		return nil, fmt.Errorf("configgen: parse range config: %w", err)
	}
	return &rc, nil
}

// genesisServers returns the names of genesis server nodes, sorted.
func (rc *RangeConfig) genesisServers() []string {
	return rc.namesOfKind(NodeServer, true)
}

// genesisClients returns the names of genesis client and registry nodes,
// sorted; registries are client-shaped personas per §6.3.
func (rc *RangeConfig) genesisClients() []string {
	names := append(rc.namesOfKind(NodeClient, true), rc.namesOfKind(NodeRegistry, true)...)
	sort.Strings(names)
	return names
}

func (rc *RangeConfig) namesOfKind(kind NodeKind, genesis bool) []string {
	var out []string
	for _, n := range rc.Nodes {
		if n.Kind == kind && n.Genesis == genesis {
			out = append(out, n.Name)
		}
	}
	sort.Strings(out)
	return out
}

// serverGraph builds the directed server-to-server reachability graph as an
// adjacency list restricted to genesis server nodes, the input to committee
// formation.
func (rc *RangeConfig) serverGraph() map[string][]string {
	servers := make(map[string]struct{})
	for _, name := range rc.genesisServers() {
		servers[name] = struct{}{}
	}

	graph := make(map[string][]string, len(servers))
	for name := range servers {
		graph[name] = nil
	}
	for src, reachable := range rc.Reachability {
		if _, ok := servers[src]; !ok {
			continue
		}
		for _, dst := range reachable {
			if _, ok := servers[dst]; ok {
				graph[src] = append(graph[src], dst)
			}
		}
	}
	for src := range graph {
		sort.Strings(graph[src])
	}
	return graph
}

// reachableServersOf returns every genesis server name a client can directly
// reach.
func (rc *RangeConfig) reachableServersOf(client string) []string {
	servers := make(map[string]struct{})
	for _, name := range rc.genesisServers() {
		servers[name] = struct{}{}
	}
	var out []string
	for _, dst := range rc.Reachability[client] {
		if _, ok := servers[dst]; ok {
			out = append(out, dst)
		}
	}
	sort.Strings(out)
	return out
}
