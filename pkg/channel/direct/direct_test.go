package direct

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racecore/overlay-nm/pkg/sdk"
)

type delivery struct {
	mu  sync.Mutex
	got [][]byte
}

func (d *delivery) record(pkg []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, pkg)
}

func (d *delivery) snapshot() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.got))
	copy(out, d.got)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSendReceiveRoundTrip(t *testing.T) {
	d := &delivery{}
	c := New(Config{Hostname: "127.0.0.1", BasePort: 20000, Deliver: d.record})

	addr, err := c.OpenRecv(uuid.New())
	require.NoError(t, err)

	status := c.Send(addr, []byte("hello direct"))
	assert.Equal(t, sdk.PackageSent, status)

	waitFor(t, func() bool { return len(d.snapshot()) == 1 })
	assert.Equal(t, []byte("hello direct"), d.snapshot()[0])
}

func TestOpenRecvAdvancesPortPool(t *testing.T) {
	c := New(Config{Hostname: "127.0.0.1", BasePort: 20100})

	a1, err := c.OpenRecv(uuid.New())
	require.NoError(t, err)
	a2, err := c.OpenRecv(uuid.New())
	require.NoError(t, err)

	assert.Equal(t, 20100, a1.Port)
	assert.Equal(t, 20101, a2.Port)
}

func TestOpenRecvFailsWhenPoolExhausted(t *testing.T) {
	c := New(Config{Hostname: "127.0.0.1", BasePort: 20200, MaxPort: 20200})

	_, err := c.OpenRecv(uuid.New())
	require.NoError(t, err)

	_, err = c.OpenRecv(uuid.New())
	assert.ErrorIs(t, err, ErrPortPoolExhausted)
}

func TestSendToNothingListeningFails(t *testing.T) {
	c := New(Config{Hostname: "127.0.0.1", BasePort: 20300})

	status := c.Send(Address{Hostname: "127.0.0.1", Port: 1}, []byte("nope"))
	assert.Equal(t, sdk.PackageFailedGeneric, status)
}

func TestCloseRecvStopsDelivery(t *testing.T) {
	d := &delivery{}
	c := New(Config{Hostname: "127.0.0.1", BasePort: 20400, Deliver: d.record})

	linkID := uuid.New()
	addr, err := c.OpenRecv(linkID)
	require.NoError(t, err)

	require.NoError(t, c.CloseRecv(linkID))

	status := c.Send(addr, []byte("late"))
	assert.Equal(t, sdk.PackageFailedGeneric, status)
	assert.Empty(t, d.snapshot())
}

func TestConnectionStatusReportedOpenAndClosed(t *testing.T) {
	var mu sync.Mutex
	var statuses []sdk.ConnStatus
	c := New(Config{
		Hostname: "127.0.0.1",
		BasePort: 20500,
		OnConnectionStatus: func(_ uuid.UUID, status sdk.ConnStatus) {
			mu.Lock()
			statuses = append(statuses, status)
			mu.Unlock()
		},
	})

	addr, err := c.OpenRecv(uuid.New())
	require.NoError(t, err)
	c.Send(addr, []byte("ping"))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(statuses) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []sdk.ConnStatus{sdk.ConnectionOpen, sdk.ConnectionClosed}, statuses)
}
