package committee

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRingNextWraps(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	r := Ring{Members: []uuid.UUID{a, b, c}}

	next, ok := r.Next(a)
	assert.True(t, ok)
	assert.Equal(t, b, next)

	next, ok = r.Next(c)
	assert.True(t, ok)
	assert.Equal(t, a, next)

	_, ok = r.Next(uuid.New())
	assert.False(t, ok)
}

func TestReachableCommitteesSortedOrder(t *testing.T) {
	cmt := &Committee{
		Name: "X",
		ReachableCommitte: map[string][]uuid.UUID{
			"Z": {uuid.New()},
			"Y": {uuid.New()},
			"A": {uuid.New()},
		},
	}
	assert.Equal(t, []string{"A", "Y", "Z"}, cmt.ReachableCommittees())
}

func TestEntryPointPicksFirstMember(t *testing.T) {
	first := uuid.New()
	cmt := &Committee{
		Name:              "X",
		ReachableCommitte: map[string][]uuid.UUID{"Y": {first, uuid.New()}},
	}
	got, ok := cmt.EntryPoint("Y")
	assert.True(t, ok)
	assert.Equal(t, first, got)

	_, ok = cmt.EntryPoint("missing")
	assert.False(t, ok)
}

func TestDOTIncludesCommitteeNames(t *testing.T) {
	reg := NewRegistry()
	reg.Add(&Committee{Name: "X", Rings: []Ring{{Members: []uuid.UUID{uuid.New(), uuid.New()}}}})
	out := reg.DOT()
	assert.Contains(t, out, "cluster_X")
}
