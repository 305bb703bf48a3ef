package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/racecore/overlay-nm/pkg/persona"
	"github.com/racecore/overlay-nm/pkg/raceconfig"
)

func writeValidBundle(t *testing.T, dir string) {
	t.Helper()

	personasDir := filepath.Join(dir, "personas")
	configsDir := filepath.Join(dir, "configs")
	require.NoError(t, os.MkdirAll(personasDir, 0o755))
	require.NoError(t, os.MkdirAll(configsDir, 0o755))

	entries := []persona.FileEntry{
		{DisplayName: "server-0", RaceUUID: "11111111-1111-1111-1111-111111111111", PersonaType: persona.KindServer, AESKeyFile: "11111111-1111-1111-1111-111111111111.aes"},
		{DisplayName: "client-0", RaceUUID: "22222222-2222-2222-2222-222222222222", PersonaType: persona.KindClient, AESKeyFile: "22222222-2222-2222-2222-222222222222.aes"},
	}
	require.NoError(t, persona.SaveRacePersonas(personasDir, entries))
	require.NoError(t, persona.SaveAESKey(personasDir, entries[0].AESKeyFile, make([]byte, 32)))
	require.NoError(t, persona.SaveAESKey(personasDir, entries[1].AESKeyFile, make([]byte, 32)))

	serverCfg := &raceconfig.ServerConfig{
		CommitteeName: "committee-0",
		ExpectedLinks: []raceconfig.ExpectedLink{{Persona: entries[1].RaceUUID, LinkType: "direct", Count: 1}},
	}
	require.NoError(t, raceconfig.SaveServerConfig(filepath.Join(configsDir, "server-0.json"), serverCfg))

	clientCfg := &raceconfig.ClientConfig{
		EntranceCommittee: []string{"committee-0"},
		ExpectedLinks:     []raceconfig.ExpectedLink{{Persona: entries[0].RaceUUID, LinkType: "direct", Count: 1}},
	}
	require.NoError(t, raceconfig.SaveClientConfig(filepath.Join(configsDir, "client-0.json"), clientCfg))

	profiles := raceconfig.LinkProfiles{}
	require.NoError(t, raceconfig.SaveLinkProfiles(filepath.Join(dir, "link-profiles.json"), profiles))

	req := &raceconfig.NetworkManagerRequest{Links: []raceconfig.RequestedLink{
		{Sender: entries[0].RaceUUID, Recipient: entries[1].RaceUUID, LinkType: "direct"},
	}}
	require.NoError(t, raceconfig.SaveNetworkManagerRequest(filepath.Join(dir, "network-manager-request.json"), req))
}

func TestRunValidateAcceptsConsistentBundle(t *testing.T) {
	dir := t.TempDir()
	writeValidBundle(t, dir)

	validateOutputDir = dir
	require.NoError(t, runValidate(nil, nil))
}

func TestRunValidateRejectsUnknownExpectedLinkPersona(t *testing.T) {
	dir := t.TempDir()
	writeValidBundle(t, dir)

	path := filepath.Join(dir, "configs", "server-0.json")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var cfg raceconfig.ServerConfig
	require.NoError(t, json.Unmarshal(raw, &cfg))
	cfg.ExpectedLinks = append(cfg.ExpectedLinks, raceconfig.ExpectedLink{Persona: "99999999-9999-9999-9999-999999999999", LinkType: "direct", Count: 1})
	require.NoError(t, raceconfig.SaveServerConfig(path, &cfg))

	validateOutputDir = dir
	require.Error(t, runValidate(nil, nil))
}
