package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/racecore/overlay-nm/pkg/persona"
	"github.com/racecore/overlay-nm/pkg/raceconfig"
)

var (
	runEtcDirPath string
	runPersona    string
)

// runCmd stands in for the host-driven Init(PluginConfig) call (§6.2): it
// resolves etcDir the same way a real host would, loads this node's own
// persona and config.json out of it, and logs what a plugin would have in
// hand right before bringing LinkWizard up.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load one persona's persisted config out of an etcDir, as a plugin host would at init",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runEtcDirPath, "etc-dir", defaultEtcDir(), "PluginConfig.EtcDir: directory a generate run wrote into")
	runCmd.Flags().StringVar(&runPersona, "persona", "", "display name of this node's own persona (required)")
	runCmd.MarkFlagRequired("persona")
}

func runRun(cmd *cobra.Command, args []string) error {
	dir, err := newEtcDir(runEtcDirPath)
	if err != nil {
		return err
	}

	entries, err := loadPersonaEntries(dir.personasDir())
	if err != nil {
		return fmt.Errorf("personas: %w", err)
	}

	var self *persona.FileEntry
	for i := range entries {
		if entries[i].DisplayName == runPersona {
			self = &entries[i]
			break
		}
	}
	if self == nil {
		return fmt.Errorf("no persona named %q in %s", runPersona, dir.personasDir())
	}

	selfUUID, err := uuid.Parse(self.RaceUUID)
	if err != nil {
		return fmt.Errorf("persona %s: bad raceUuid: %w", runPersona, err)
	}

	reg, err := persona.Load(dir.personasDir(), selfUUID)
	if err != nil {
		return fmt.Errorf("load personas: %w", err)
	}
	log.WithFields(logrus.Fields{
		"self":  reg.Self().DisplayName,
		"kind":  reg.Self().Kind,
		"count": len(reg.All()),
	}).Info("loaded persona registry")

	var expectedLinks []raceconfig.ExpectedLink
	var channelRoles map[string]string
	switch self.PersonaType {
	case persona.KindServer:
		cfg, err := raceconfig.LoadServerConfig(dir.configPath(runPersona))
		if err != nil {
			return fmt.Errorf("load server config: %w", err)
		}
		expectedLinks, channelRoles = cfg.ExpectedLinks, cfg.ChannelRoles
		log.WithFields(logrus.Fields{
			"committee": cfg.CommitteeName,
			"rings":     len(cfg.Rings),
		}).Info("loaded server config")
	case persona.KindClient, persona.KindRegistry:
		cfg, err := raceconfig.LoadClientConfig(dir.configPath(runPersona))
		if err != nil {
			return fmt.Errorf("load client config: %w", err)
		}
		expectedLinks, channelRoles = cfg.ExpectedLinks, cfg.ChannelRoles
		log.WithFields(logrus.Fields{
			"entranceCommittee": cfg.EntranceCommittee,
			"exitCommittee":     cfg.ExitCommittee,
		}).Info("loaded client config")
	default:
		return fmt.Errorf("persona %s: unrecognized personaType %q", runPersona, self.PersonaType)
	}

	log.WithFields(logrus.Fields{
		"expectedLinks": len(expectedLinks),
		"channelRoles":  len(channelRoles),
	}).Info("ready for link wizard bring-up")
	return nil
}

func loadPersonaEntries(personasDir string) ([]persona.FileEntry, error) {
	raw, err := os.ReadFile(personasDir + "/race-personas.json")
	if err != nil {
		return nil, err
	}
	var entries []persona.FileEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
