package whiteboard

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *Store) {
	t.Helper()
	store := NewStore()
	srv := httptest.NewServer(store.Handler())
	t.Cleanup(srv.Close)
	return New(srv.URL), store
}

func TestPostThenGetRoundTrips(t *testing.T) {
	c, _ := newTestClient(t)

	idx, ts, err := c.Post("channel-a", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.NotEmpty(t, ts)

	data, _, err := c.Get("channel-a", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestGetRangeWithLatestSentinel(t *testing.T) {
	c, _ := newTestClient(t)

	_, _, err := c.Post("channel-a", []byte("one"))
	require.NoError(t, err)
	_, _, err = c.Post("channel-a", []byte("two"))
	require.NoError(t, err)
	_, _, err = c.Post("channel-a", []byte("three"))
	require.NoError(t, err)

	data, length, _, err := c.GetRange("channel-a", 1, -1)
	require.NoError(t, err)
	assert.Equal(t, 2, length)
	assert.Equal(t, [][]byte{[]byte("two"), []byte("three")}, data)
}

func TestLatestReflectsPostCount(t *testing.T) {
	c, _ := newTestClient(t)

	latest, err := c.Latest("channel-a")
	require.NoError(t, err)
	assert.Equal(t, -1, latest)

	_, _, err = c.Post("channel-a", []byte("one"))
	require.NoError(t, err)

	latest, err = c.Latest("channel-a")
	require.NoError(t, err)
	assert.Equal(t, 0, latest)
}

func TestAfterFindsFirstNewerEntry(t *testing.T) {
	c, _ := newTestClient(t)

	_, ts0, err := c.Post("channel-a", []byte("one"))
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, _, err = c.Post("channel-a", []byte("two"))
	require.NoError(t, err)

	idx, err := c.After("channel-a", ts0)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestResizeTrimsOldestEntries(t *testing.T) {
	c, _ := newTestClient(t)

	_, _, err := c.Post("channel-a", []byte("aaaaa"))
	require.NoError(t, err)
	_, _, err = c.Post("channel-a", []byte("bbbbb"))
	require.NoError(t, err)

	usage, err := c.Resize(5)
	require.NoError(t, err)
	assert.Equal(t, 5, usage)

	_, _, err = c.Get("channel-a", 0)
	assert.Error(t, err, "absolute index 0 should have been trimmed")

	data, _, err := c.Get("channel-a", 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("bbbbb"), data, "absolute index 1 survives the trim with its original index intact")
}

func TestSaveAndInfoSucceed(t *testing.T) {
	c, _ := newTestClient(t)

	require.NoError(t, c.Save(nil))
	sync := true
	require.NoError(t, c.Save(&sync))

	info, err := c.Info()
	require.NoError(t, err)
	assert.Contains(t, info, "categories")
}
