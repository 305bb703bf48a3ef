// Package persona implements the stable node-identity model of §3: a
// persona is loaded once at plugin init and is immutable thereafter.
package persona

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// Kind distinguishes client personas (message originators/sinks) from
// server personas (routing-only).
type Kind string

// Recognized persona kinds.
const (
	KindClient   Kind = "client"
	KindServer   Kind = "server"
	KindRegistry Kind = "registry"
)

// Persona is the stable identity of a node: a uuid, a display name, a role
// kind, and the keys used to address and encrypt traffic to it.
type Persona struct {
	UUID        uuid.UUID `json:"raceUuid"`
	DisplayName string    `json:"displayName"`
	Kind        Kind      `json:"personaType"`
	PublicKey   []byte    `json:"publicKey"`
	AESKey      []byte    `json:"-"`
}

// FileEntry is the on-disk shape of one entry in personas/race-personas.json,
// shared by Load (reader) and SaveRacePersonas (the config generator's
// writer).
type FileEntry struct {
	DisplayName string `json:"displayName"`
	RaceUUID    string `json:"raceUuid"`
	PublicKey   string `json:"publicKey"`
	PersonaType Kind   `json:"personaType"`
	AESKeyFile  string `json:"aesKeyFile"`
}

// Registry is the immutable, load-once set of personas known to this node.
type Registry struct {
	self     uuid.UUID
	personas map[uuid.UUID]*Persona
}

// Load reads personas/race-personas.json from personasDir and the paired
// <uuid>.aes key files, returning an immutable Registry. self identifies
// which loaded persona is this node's own identity.
func Load(personasDir string, self uuid.UUID) (*Registry, error) {
	raw, err := os.ReadFile(personasDir + "/race-personas.json")
	if err != nil {
		return nil, fmt.Errorf("persona: read personas file: %w", err)
	}

	var entries []FileEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("persona: parse personas file: %w", err)
	}

	reg := &Registry{self: self, personas: make(map[uuid.UUID]*Persona, len(entries))}
	for _, e := range entries {
		id, err := uuid.Parse(e.RaceUUID)
		if err != nil {
			return nil, fmt.Errorf("persona: bad raceUuid %q: %w", e.RaceUUID, err)
		}

		p := &Persona{
			UUID:        id,
			DisplayName: e.DisplayName,
			Kind:        e.PersonaType,
			PublicKey:   []byte(e.PublicKey),
		}

		if e.AESKeyFile != "" {
			key, err := os.ReadFile(personasDir + "/" + e.AESKeyFile)
			if err != nil {
				return nil, fmt.Errorf("persona: read aes key for %s: %w", id, err)
			}
			if len(key) != 32 {
				return nil, fmt.Errorf("persona: aes key for %s must be 32 bytes, got %d", id, len(key))
			}
			p.AESKey = key
		}

		reg.personas[id] = p
	}

	if _, ok := reg.personas[self]; !ok {
		return nil, fmt.Errorf("persona: self uuid %s not present in personas file", self)
	}

	return reg, nil
}

// SaveRacePersonas writes personas/race-personas.json to personasDir, the
// config generator's counterpart to Load.
func SaveRacePersonas(personasDir string, entries []FileEntry) error {
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("persona: marshal personas file: %w", err)
	}
	if err := os.WriteFile(personasDir+"/race-personas.json", raw, 0o644); err != nil {
		return fmt.Errorf("persona: write personas file: %w", err)
	}
	return nil
}

// SaveAESKey writes a 32-byte key to personasDir/fileName.
func SaveAESKey(personasDir, fileName string, key []byte) error {
	if len(key) != 32 {
		return fmt.Errorf("persona: aes key must be 32 bytes, got %d", len(key))
	}
	if err := os.WriteFile(personasDir+"/"+fileName, key, 0o600); err != nil {
		return fmt.Errorf("persona: write aes key %s: %w", fileName, err)
	}
	return nil
}

// Self returns this node's own persona.
func (r *Registry) Self() *Persona {
	return r.personas[r.self]
}

// Get looks up a persona by uuid.
func (r *Registry) Get(id uuid.UUID) (*Persona, bool) {
	p, ok := r.personas[id]
	return p, ok
}

// All returns every loaded persona, in no particular order.
func (r *Registry) All() []*Persona {
	out := make([]*Persona, 0, len(r.personas))
	for _, p := range r.personas {
		out = append(out, p)
	}
	return out
}
