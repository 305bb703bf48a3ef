package raceconfig

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	want := &ClientConfig{
		EntranceCommittee: []string{"c1"},
		ExitCommittee:     []string{"c1"},
		MaxSeenMessages:   1000,
		ChannelRoles:      map[string]string{"chanA": "loader"},
	}
	require.NoError(t, SaveClientConfig(path, want))

	got, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestServerConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	want := &ServerConfig{
		CommitteeName:      "X",
		ExitClients:        []string{"c1"},
		ReachableCommittee: map[string][]string{"Y": {"s1"}},
		Rings:              []RingConfig{{Next: "s2", Length: 3}},
		FloodingFactor:     1,
		MaxStaleUUIDs:      5000,
	}
	require.NoError(t, SaveServerConfig(path, want))

	got, err := LoadServerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLinkProfilesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "link-profiles.json")

	want := LinkProfiles{
		"chanA": {{Role: "creator", Address: `{"hostname":"h","port":1}`, Personas: []string{"p1"}}},
	}
	require.NoError(t, SaveLinkProfiles(path, want))

	got, err := LoadLinkProfiles(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
