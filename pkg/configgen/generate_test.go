package configgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racecore/overlay-nm/pkg/channel"
)

func twoServerRangeConfig() *RangeConfig {
	return &RangeConfig{
		Nodes: []Node{
			{Name: "server1", Kind: NodeServer, Genesis: true},
			{Name: "server2", Kind: NodeServer, Genesis: true},
			{Name: "client1", Kind: NodeClient, Genesis: true},
		},
		Reachability: map[string][]string{
			"server1": {"server2"},
			"server2": {"server1"},
			"client1": {"server1", "server2"},
		},
		WhiteboardHostname: "whiteboard.example",
		WhiteboardPort:     8080,
	}
}

func TestGenerateEndToEnd(t *testing.T) {
	rc := twoServerRangeConfig()
	opts := Options{
		DesiredCommitteeSize: 2,
		NumRings:             1,
		Channels:             []channel.Properties{bootstrapChannel("boot")},
	}

	result, err := NewGenerator(rc, opts).Generate()
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Len(t, result.Personas, 3)
	assert.Len(t, result.AESKeys, 3)

	require.Contains(t, result.ServerConfig, "server1")
	require.Contains(t, result.ServerConfig, "server2")
	s1 := result.ServerConfig["server1"]
	assert.Equal(t, "committee-0", s1.CommitteeName)
	require.Len(t, s1.Rings, 1)
	assert.Equal(t, 2, s1.Rings[0].Length)
	assert.Equal(t, "both", s1.ChannelRoles["boot"])

	require.Contains(t, result.ClientConfig, "client1")
	c1 := result.ClientConfig["client1"]
	assert.ElementsMatch(t, []string{s1.CommitteeName}, []string{"committee-0"})
	assert.NotEmpty(t, c1.ExitCommittee)
	assert.Equal(t, c1.ExitCommittee, c1.EntranceCommittee)

	require.Contains(t, result.LinkProfiles, "boot")
	assert.NotEmpty(t, result.LinkProfiles["boot"])

	require.NotNil(t, result.Request)
	assert.NotEmpty(t, result.Request.Links)

	require.NotNil(t, result.Committees)
	assert.Contains(t, result.Committees.Committees, "committee-0")
}

func TestGenerateSkipsNonGenesisNodes(t *testing.T) {
	rc := twoServerRangeConfig()
	rc.Nodes = append(rc.Nodes, Node{Name: "server3", Kind: NodeServer, Genesis: false})

	opts := Options{
		DesiredCommitteeSize: 2,
		NumRings:             1,
		Channels:             []channel.Properties{bootstrapChannel("boot")},
	}
	result, err := NewGenerator(rc, opts).Generate()
	require.NoError(t, err)
	assert.NotContains(t, result.ServerConfig, "server3")
}

func TestGenerateDiffEntranceExitPicksDistinctCommittees(t *testing.T) {
	rc := &RangeConfig{
		Nodes: []Node{
			{Name: "server1", Kind: NodeServer, Genesis: true},
			{Name: "server2", Kind: NodeServer, Genesis: true},
			{Name: "client1", Kind: NodeClient, Genesis: true},
		},
		Reachability: map[string][]string{
			"client1": {"server1", "server2"},
		},
	}
	opts := Options{
		DesiredCommitteeSize: 1,
		NumRings:             1,
		DiffEntranceExit:     true,
		Channels:             []channel.Properties{bootstrapChannel("boot")},
	}
	result, err := NewGenerator(rc, opts).Generate()
	require.NoError(t, err)
	require.Contains(t, result.ClientConfig, "client1")
	c1 := result.ClientConfig["client1"]
	assert.NotEqual(t, c1.ExitCommittee, c1.EntranceCommittee)
}
