package server

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racecore/overlay-nm/pkg/committee"
	"github.com/racecore/overlay-nm/pkg/sdk"
	"github.com/racecore/overlay-nm/pkg/seal"
	"github.com/racecore/overlay-nm/pkg/xmsg"
)

type fakeKeys struct {
	keys map[uuid.UUID][]byte
}

func newFakeKeys(ids ...uuid.UUID) *fakeKeys {
	k := &fakeKeys{keys: make(map[uuid.UUID][]byte)}
	for _, id := range ids {
		key := make([]byte, 32)
		copy(key, id[:])
		k.keys[id] = key
	}
	return k
}

func (f *fakeKeys) AESKey(id uuid.UUID) ([]byte, bool) {
	k, ok := f.keys[id]
	return k, ok
}

// fakeTx is a ring of Routers wired directly together: Send opens the
// package against the destination Router synchronously, so tests can
// assert on end-to-end traversal without a real Comms transport.
type fakeTx struct {
	mu       sync.Mutex
	routers  map[uuid.UUID]*Router
	sent     []uuid.UUID
	next     sdk.Handle
	dropAll  bool
}

func newFakeTx() *fakeTx {
	return &fakeTx{routers: make(map[uuid.UUID]*Router)}
}

func (f *fakeTx) register(id uuid.UUID, r *Router) {
	f.routers[id] = r
}

func (f *fakeTx) Send(to uuid.UUID, pkg []byte) (sdk.Handle, bool) {
	f.mu.Lock()
	f.sent = append(f.sent, to)
	f.next++
	h := f.next
	f.mu.Unlock()

	if f.dropAll {
		return 0, false
	}
	dst, ok := f.routers[to]
	if !ok {
		return 0, false
	}
	if err := dst.Receive(pkg, nil); err != nil {
		return 0, false
	}
	return h, true
}

type noopWizard struct{}

func (noopWizard) HandleMessage(uuid.UUID, string) error { return nil }

func cmTo(to uuid.UUID, msg string) xmsg.CM {
	return xmsg.CM{Msg: msg, From: "entry", To: to.String(), Time: 1, Nonce: 1, AmpIndex: 0}
}

func sealXCMFor(t *testing.T, keys *fakeKeys, to uuid.UUID, xcm xmsg.XCM) []byte {
	t.Helper()
	framed, err := xmsg.FormatXCM(xcm)
	require.NoError(t, err)
	key, ok := keys.AESKey(to)
	require.True(t, ok)
	pkg, err := seal.Seal([]byte(framed), key)
	require.NoError(t, err)
	return pkg
}

// buildRing wires up a single 3-server committee with one ring s0->s1->s2->s0
// and no inter-committee reachability, and returns the servers plus a
// shared fakeTx and per-node delivery sinks.
func buildRing(t *testing.T) (servers []uuid.UUID, tx *fakeTx, delivered map[uuid.UUID][]xmsg.CM, keys *fakeKeys, home *committee.Committee) {
	t.Helper()
	s0, s1, s2 := uuid.New(), uuid.New(), uuid.New()
	servers = []uuid.UUID{s0, s1, s2}
	keys = newFakeKeys(s0, s1, s2)
	tx = newFakeTx()
	delivered = make(map[uuid.UUID][]xmsg.CM)

	home = &committee.Committee{
		Name:             "home",
		Servers:          servers,
		ExitClients:      map[uuid.UUID]struct{}{},
		CommitteeClients: map[uuid.UUID]struct{}{},
		Rings:            []committee.Ring{{Members: servers}},
		FloodingFactor:   0,
	}

	for _, s := range servers {
		s := s
		r := New(Config{
			Self:            s,
			Home:            home,
			Keys:            keys,
			Tx:              tx,
			LinkWizard:      noopWizard{},
			DeliverToClient: func(to uuid.UUID, cm xmsg.CM) error { delivered[to] = append(delivered[to], cm); return nil },
		})
		tx.register(s, r)
	}
	return servers, tx, delivered, keys, home
}

// TestRingTraversalDeliversToExitClient covers S1: a message entering the
// ring at s0 should decrement ringTtl around the ring and be delivered once
// the cycle ends back at s0 with ringTtl 0.
func TestRingTraversalDeliversToExitClient(t *testing.T) {
	servers, tx, delivered, keys, home := buildRing(t)
	s0, _, s2 := servers[0], servers[1], servers[2]

	exitClient := uuid.New()
	home.ExitClients[exitClient] = struct{}{}

	cm := cmTo(exitClient, "hello")
	xcm := xmsg.XCM{CM: cm, UUID: xmsg.DeriveUUID(cm), MsgType: xmsg.MsgClient}
	pkg := sealXCMFor(t, keys, s0, xcm)

	r0 := tx.routers[s0]
	require.NoError(t, r0.Receive(pkg, nil))

	// exitClient is attached to the committee as a whole, so every server in
	// the ring knows it; delivery happens where the ring cycle ends, at the
	// first server to observe ringTtl==0, which is s0 again after s1 and s2.
	total := 0
	for _, cms := range delivered {
		total += len(cms)
	}
	assert.Equal(t, 1, total, "expected exactly one delivery to the exit client")
	_ = s2
}

// TestRingTraversalDedupsReplayedUUID covers S2: replaying the same sealed
// package at the ring entry point must not cause a second traversal/delivery.
func TestRingTraversalDedupsReplayedUUID(t *testing.T) {
	servers, tx, delivered, keys, home := buildRing(t)
	s0 := servers[0]

	exitClient := uuid.New()
	home.ExitClients[exitClient] = struct{}{}

	cm := cmTo(exitClient, "hello")
	xcm := xmsg.XCM{CM: cm, UUID: xmsg.DeriveUUID(cm), MsgType: xmsg.MsgClient}
	pkg := sealXCMFor(t, keys, s0, xcm)

	r0 := tx.routers[s0]
	require.NoError(t, r0.Receive(pkg, nil))
	require.NoError(t, r0.Receive(pkg, nil))
	require.NoError(t, r0.Receive(pkg, nil))

	total := 0
	for _, cms := range delivered {
		total += len(cms)
	}
	assert.Equal(t, 1, total, "replayed entry package must not re-traverse the ring")
}

// TestForwardToNewCommitteesRespectsFloodingFactor covers S3: when a
// destination belongs to neither this committee's exit clients nor its
// committee clients, the server should flood to at most FloodingFactor
// reachable committees' entry points.
func TestForwardToNewCommitteesRespectsFloodingFactor(t *testing.T) {
	s0 := uuid.New()
	homeServers := []uuid.UUID{s0}
	entryA, entryB, entryC := uuid.New(), uuid.New(), uuid.New()
	keys := newFakeKeys(s0, entryA, entryB, entryC)
	tx := newFakeTx()

	home := &committee.Committee{
		Name:             "home",
		Servers:          homeServers,
		ExitClients:      map[uuid.UUID]struct{}{},
		CommitteeClients: map[uuid.UUID]struct{}{},
		Rings:            []committee.Ring{{Members: homeServers}},
		FloodingFactor:   2,
		ReachableCommitte: map[string][]uuid.UUID{
			"committee-a": {entryA},
			"committee-b": {entryB},
			"committee-c": {entryC},
		},
	}

	r0 := New(Config{
		Self:            s0,
		Home:            home,
		Keys:            keys,
		Tx:              tx,
		LinkWizard:      noopWizard{},
		DeliverToClient: func(uuid.UUID, xmsg.CM) error { return nil },
	})
	tx.register(s0, r0)

	stranger := uuid.New()
	cm := cmTo(stranger, "hello")
	xcm := xmsg.XCM{CM: cm, UUID: xmsg.DeriveUUID(cm), MsgType: xmsg.MsgClient}
	pkg := sealXCMFor(t, keys, s0, xcm)

	require.NoError(t, r0.Receive(pkg, nil))

	distinctDsts := map[uuid.UUID]bool{}
	for _, d := range tx.sent {
		distinctDsts[d] = true
	}
	delete(distinctDsts, s0) // startRingMsg's send to the ring successor targets s0 itself (single-member ring)
	assert.LessOrEqual(t, len(distinctDsts), 2, "forwardToNewCommittees must not exceed FloodingFactor entry points")
}
