// Package channel implements the §3 Channel/Role/Link/Connection data
// model shared by the direct and indirect transports, plus the role
// compatibility rule of §4.3/§4.9: two roles conflict iff their
// mechanicalTag sets intersect.
package channel

import (
	"sync"

	"github.com/google/uuid"
)

// ConnectionType classifies how a channel moves bytes.
type ConnectionType int

// Recognized connection types.
const (
	ConnUndef ConnectionType = iota
	ConnDirect
	ConnIndirect
	ConnLocal
	ConnMixed
)

// TransmissionType distinguishes point-to-point from broadcast channels.
type TransmissionType int

// Recognized transmission types.
const (
	Unicast TransmissionType = iota
	Multicast
)

// LinkDirection constrains which side may create vs. load a link.
type LinkDirection int

// Recognized link directions.
const (
	LoaderToCreator LinkDirection = iota
	CreatorToLoader
	BiDi
)

// LinkSide is a role's position on a link.
type LinkSide int

// Recognized link sides.
const (
	SideCreator LinkSide = iota
	SideLoader
	SideBoth
)

// LinkType is the direction of traffic a Link or Connection carries.
type LinkType int

// Recognized link/connection types.
const (
	LinkSend LinkType = iota
	LinkRecv
	LinkBidi
)

// Status is a channel's lifecycle state.
type Status int

// Recognized channel statuses. ChannelDisabled is kept distinct from
// ChannelFailed per spec §9's Open Question: it is only ever surfaced when
// the user declines a required hostname prompt.
const (
	ChannelUnavailable Status = iota
	ChannelAvailable
	ChannelFailed
	ChannelDisabled
	ChannelEnabled
)

// ConnStatus is a connection's lifecycle state.
type ConnStatus int

// Recognized connection statuses.
const (
	ConnClosed ConnStatus = iota
	ConnOpen
)

// Role is something a node may enact on a channel: create it, load it, or
// both.
type Role struct {
	Name           string
	LinkSide       LinkSide
	MechanicalTags map[string]struct{}
	BehavioralTags map[string]struct{}
}

// Conflicts reports whether two roles cannot be held simultaneously: their
// mechanicalTag sets intersect.
func (r Role) Conflicts(other Role) bool {
	for tag := range r.MechanicalTags {
		if _, ok := other.MechanicalTags[tag]; ok {
			return true
		}
	}
	return false
}

// ExpectedBandwidth carries per-direction bandwidth hints used by send
// ranking (§4.4).
type ExpectedBandwidth struct {
	SendBandwidthBps int64
}

// Properties is the fixed, largely-static description of a Channel.
type Properties struct {
	GID              string
	ConnectionType   ConnectionType
	TransmissionType TransmissionType
	LinkDirection    LinkDirection
	MultiAddressable bool
	Roles            []Role
	MaxLinks         int
	LoaderExpected   ExpectedBandwidth
	CreatorExpected  ExpectedBandwidth
	SupportsBatch    bool
}

// Channel is a named transport capability plus its current role and
// runtime status.
type Channel struct {
	Properties
	CurrentRole *Role
	Status      Status
}

// RoleByName finds a role this channel can enact, or ok=false.
func (c *Channel) RoleByName(name string) (Role, bool) {
	for _, r := range c.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return Role{}, false
}

// Link is a bidirectional addressing scope within a channel.
type Link struct {
	ID         uuid.UUID
	ChannelGID string
	LinkType   LinkType
	Address    string // channel-specific opaque string, typically JSON
	Personas   map[uuid.UUID]struct{}
}

// Connection is a transfer session opened on a Link.
type Connection struct {
	ID     uuid.UUID
	LinkID uuid.UUID
	Type   LinkType
	Status ConnStatus
}

// Registry tracks channels, links and connections, guarded by a single
// mutex per §5's "single mutex guards the connections map" rule.
type Registry struct {
	mu sync.Mutex

	channels map[string]*Channel
	links    map[uuid.UUID]*Link
	conns    map[uuid.UUID]*Connection
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]*Channel),
		links:    make(map[uuid.UUID]*Link),
		conns:    make(map[uuid.UUID]*Connection),
	}
}

// AddChannel registers a channel.
func (r *Registry) AddChannel(c *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[c.GID] = c
}

// Channel looks up a channel by gid.
func (r *Registry) Channel(gid string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[gid]
	return c, ok
}

// AllChannels returns every registered channel.
func (r *Registry) AllChannels() []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Channel, 0, len(r.channels))
	for _, c := range r.channels {
		out = append(out, c)
	}
	return out
}

// AddLink registers a link.
func (r *Registry) AddLink(l *Link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[l.ID] = l
}

// Link looks up a link by id.
func (r *Registry) Link(id uuid.UUID) (*Link, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	return l, ok
}

// LinksForChannel returns every link on a given channel gid.
func (r *Registry) LinksForChannel(gid string) []*Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Link
	for _, l := range r.links {
		if l.ChannelGID == gid {
			out = append(out, l)
		}
	}
	return out
}

// LinksForPersonas returns links that include every given persona and match
// linkType.
func (r *Registry) LinksForPersonas(personas []uuid.UUID, linkType LinkType) []*Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Link
	for _, l := range r.links {
		if l.LinkType != linkType {
			continue
		}
		all := true
		for _, p := range personas {
			if _, ok := l.Personas[p]; !ok {
				all = false
				break
			}
		}
		if all {
			out = append(out, l)
		}
	}
	return out
}

// RemoveLink unregisters a link and any connections opened on it.
func (r *Registry) RemoveLink(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.links, id)
	for cid, conn := range r.conns {
		if conn.LinkID == id {
			delete(r.conns, cid)
		}
	}
}

// AddConnection registers a connection.
func (r *Registry) AddConnection(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
}

// Connection looks up a connection by id.
func (r *Registry) Connection(id uuid.UUID) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	return c, ok
}

// RemoveConnection unregisters a connection.
func (r *Registry) RemoveConnection(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// ChannelForLink finds the channel owning a link, or ok=false. Per spec §9's
// Open Question, callers that cannot find an owning channel during
// destroyLink must not emit LINK_DESTROYED and should return OK rather than
// erroring.
func (r *Registry) ChannelForLink(linkID uuid.UUID) (*Channel, bool) {
	r.mu.Lock()
	l, ok := r.links[linkID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return r.Channel(l.ChannelGID)
}
