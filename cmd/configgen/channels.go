package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/racecore/overlay-nm/pkg/channel"
)

// roleSpec is the on-disk shape of one channel.Role entry in a channels.json
// file: the generator's input format mirrors how pkg/raceconfig's other
// schemas flatten struct fields to JSON, but channel.Properties itself
// carries no json tags (it is an in-process-only type), so this file owns
// the mapping.
type roleSpec struct {
	Name           string   `json:"name"`
	LinkSide       string   `json:"linkSide"` // "creator", "loader", "both"
	MechanicalTags []string `json:"mechanicalTags"`
	BehavioralTags []string `json:"behavioralTags"`
}

type channelSpec struct {
	GID              string     `json:"gid"`
	ConnectionType   string     `json:"connectionType"` // "direct", "indirect", "local", "mixed"
	LinkDirection    string     `json:"linkDirection"`  // "loaderToCreator", "creatorToLoader", "bidi"
	MultiAddressable bool       `json:"multiAddressable"`
	MaxLinks         int        `json:"maxLinks"`
	SupportsBatch    bool       `json:"supportsBatch"`
	Roles            []roleSpec `json:"roles"`
}

func parseLinkSide(s string) (channel.LinkSide, error) {
	switch s {
	case "creator":
		return channel.SideCreator, nil
	case "loader":
		return channel.SideLoader, nil
	case "both", "":
		return channel.SideBoth, nil
	default:
		return 0, fmt.Errorf("unknown linkSide %q", s)
	}
}

func parseConnectionType(s string) (channel.ConnectionType, error) {
	switch s {
	case "direct":
		return channel.ConnDirect, nil
	case "indirect":
		return channel.ConnIndirect, nil
	case "local":
		return channel.ConnLocal, nil
	case "mixed":
		return channel.ConnMixed, nil
	default:
		return 0, fmt.Errorf("unknown connectionType %q", s)
	}
}

func parseLinkDirection(s string) (channel.LinkDirection, error) {
	switch s {
	case "loaderToCreator", "":
		return channel.LoaderToCreator, nil
	case "creatorToLoader":
		return channel.CreatorToLoader, nil
	case "bidi":
		return channel.BiDi, nil
	default:
		return 0, fmt.Errorf("unknown linkDirection %q", s)
	}
}

func toTagSet(tags []string) map[string]struct{} {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		out[t] = struct{}{}
	}
	return out
}

func loadChannelList(path string) ([]channel.Properties, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read channel list: %w", err)
	}
	var specs []channelSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("parse channel list: %w", err)
	}

	out := make([]channel.Properties, 0, len(specs))
	for _, s := range specs {
		connType, err := parseConnectionType(s.ConnectionType)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", s.GID, err)
		}
		dir, err := parseLinkDirection(s.LinkDirection)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", s.GID, err)
		}

		roles := make([]channel.Role, 0, len(s.Roles))
		for _, r := range s.Roles {
			side, err := parseLinkSide(r.LinkSide)
			if err != nil {
				return nil, fmt.Errorf("channel %s role %s: %w", s.GID, r.Name, err)
			}
			roles = append(roles, channel.Role{
				Name:           r.Name,
				LinkSide:       side,
				MechanicalTags: toTagSet(r.MechanicalTags),
				BehavioralTags: toTagSet(r.BehavioralTags),
			})
		}

		out = append(out, channel.Properties{
			GID:              s.GID,
			ConnectionType:   connType,
			LinkDirection:    dir,
			MultiAddressable: s.MultiAddressable,
			Roles:            roles,
			MaxLinks:         s.MaxLinks,
			SupportsBatch:    s.SupportsBatch,
		})
	}
	return out, nil
}
