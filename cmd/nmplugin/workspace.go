package main

import (
	"fmt"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
)

// defaultEtcDir resolves ~/.race/etc, the fallback PluginConfig.EtcDir the
// run subcommand reads from when --etc-dir is not given, following the
// generator's configs/personas/link-profiles.json/network-manager-request.json
// layout (§6.3).
func defaultEtcDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return "./etc"
	}
	return filepath.Join(home, ".race", "etc")
}

// etcDir is PluginConfig.EtcDir: the directory a config generator run wrote
// into, read back by the plugin at Init time.
type etcDir struct {
	root string
}

func newEtcDir(root string) (*etcDir, error) {
	expanded, err := homedir.Expand(root)
	if err != nil {
		return nil, fmt.Errorf("expand etc dir path %s: %w", root, err)
	}
	return &etcDir{root: expanded}, nil
}

func (e *etcDir) personasDir() string { return filepath.Join(e.root, "personas") }
func (e *etcDir) configsDir() string  { return filepath.Join(e.root, "configs") }

func (e *etcDir) configPath(nodeName string) string {
	return filepath.Join(e.configsDir(), nodeName+".json")
}

func (e *etcDir) linkProfilesPath() string {
	return filepath.Join(e.root, "link-profiles.json")
}

func (e *etcDir) requestPath() string {
	return filepath.Join(e.root, "network-manager-request.json")
}
