// Package router implements the §4.1 client and §4.2 server routing state
// machines as a tagged NodeRole (see DESIGN.md's Open Question record)
// rather than a base-class hierarchy: router/client.Router and
// router/server.Router share only the small set of primitives declared
// here.
package router

import (
	"github.com/google/uuid"

	"github.com/racecore/overlay-nm/pkg/sdk"
)

// PersonaKeys resolves a persona's AES key for sealing/opening packages.
type PersonaKeys interface {
	AESKey(id uuid.UUID) ([]byte, bool)
}

// Transmitter hands an already-sealed package to the Comms layer for
// delivery to a persona, returning the opaque SDK handle used to correlate
// onPackageStatusChanged callbacks, or false if dispatch failed immediately
// (e.g. no send connection available).
type Transmitter interface {
	Send(persona uuid.UUID, pkg []byte) (sdk.Handle, bool)
}

// LinkWizardSink receives msgType=LINKS payloads forwarded from the Router.
type LinkWizardSink interface {
	HandleMessage(from uuid.UUID, body string) error
}
