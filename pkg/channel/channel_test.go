package channel

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleConflictsOnSharedMechanicalTag(t *testing.T) {
	a := Role{Name: "a", MechanicalTags: map[string]struct{}{"wifi": {}}}
	b := Role{Name: "b", MechanicalTags: map[string]struct{}{"wifi": {}}}
	c := Role{Name: "c", MechanicalTags: map[string]struct{}{"bluetooth": {}}}

	assert.True(t, a.Conflicts(b))
	assert.False(t, a.Conflicts(c))
}

func TestRegistryLinksForPersonas(t *testing.T) {
	r := NewRegistry()
	p1, p2 := uuid.New(), uuid.New()

	l1 := &Link{ID: uuid.New(), ChannelGID: "c1", LinkType: LinkSend, Personas: map[uuid.UUID]struct{}{p1: {}, p2: {}}}
	l2 := &Link{ID: uuid.New(), ChannelGID: "c1", LinkType: LinkSend, Personas: map[uuid.UUID]struct{}{p1: {}}}
	r.AddLink(l1)
	r.AddLink(l2)

	got := r.LinksForPersonas([]uuid.UUID{p1, p2}, LinkSend)
	require.Len(t, got, 1)
	assert.Equal(t, l1.ID, got[0].ID)
}

func TestChannelForLinkUnknownReturnsNotOK(t *testing.T) {
	r := NewRegistry()
	_, ok := r.ChannelForLink(uuid.New())
	assert.False(t, ok)
}

func TestRemoveLinkAlsoRemovesConnections(t *testing.T) {
	r := NewRegistry()
	link := &Link{ID: uuid.New(), ChannelGID: "c1", LinkType: LinkSend, Personas: map[uuid.UUID]struct{}{}}
	r.AddLink(link)
	conn := &Connection{ID: uuid.New(), LinkID: link.ID, Type: LinkSend, Status: ConnOpen}
	r.AddConnection(conn)

	r.RemoveLink(link.ID)

	_, ok := r.Link(link.ID)
	assert.False(t, ok)
	_, ok = r.Connection(conn.ID)
	assert.False(t, ok)
}
