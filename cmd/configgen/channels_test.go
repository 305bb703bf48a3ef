package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racecore/overlay-nm/pkg/channel"
)

func TestLoadChannelList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channels.json")
	raw := `[
		{
			"gid": "direct-1",
			"connectionType": "direct",
			"linkDirection": "bidi",
			"roles": [
				{"name": "creator", "linkSide": "creator", "mechanicalTags": ["direct-creator"]},
				{"name": "loader", "linkSide": "loader", "mechanicalTags": ["direct-loader"]}
			]
		},
		{
			"gid": "bootstrap",
			"connectionType": "indirect",
			"linkDirection": "loaderToCreator",
			"roles": [
				{"name": "both", "linkSide": "both", "mechanicalTags": ["bootstrap"]}
			]
		}
	]`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	channels, err := loadChannelList(path)
	require.NoError(t, err)
	require.Len(t, channels, 2)

	assert.Equal(t, "direct-1", channels[0].GID)
	assert.Equal(t, channel.ConnDirect, channels[0].ConnectionType)
	assert.Equal(t, channel.BiDi, channels[0].LinkDirection)
	require.Len(t, channels[0].Roles, 2)
	assert.Equal(t, channel.SideCreator, channels[0].Roles[0].LinkSide)

	assert.Equal(t, channel.ConnIndirect, channels[1].ConnectionType)
	assert.Equal(t, channel.LoaderToCreator, channels[1].LinkDirection)
	assert.Equal(t, channel.SideBoth, channels[1].Roles[0].LinkSide)
}

func TestLoadChannelListRejectsUnknownConnectionType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channels.json")
	raw := `[{"gid": "bad", "connectionType": "carrier-pigeon", "roles": []}]`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	_, err := loadChannelList(path)
	assert.Error(t, err)
}
