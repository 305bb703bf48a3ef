// Package linkwizard implements the §4.3 LinkWizard: a dynamic link
// negotiation protocol layered on top of msgType=LINKS cleartext messages,
// generalized from pkg/skymsg/client.go's per-peer map + RWMutex pattern
// (there keyed by cipher.PubKey -> *Link, here by persona uuid -> peer
// negotiation state).
package linkwizard

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/racecore/overlay-nm/internal/trace"
	"github.com/racecore/overlay-nm/pkg/channel"
	"github.com/racecore/overlay-nm/pkg/persona"
	"github.com/racecore/overlay-nm/pkg/sdk"
)

var log = logging.MustGetLogger("linkwizard")

// Verbs recognized in the LinkWizard JSON vocabulary. Each wire envelope
// carries at most one of these as its single populated field.
const (
	verbGetSupportedChannels = "getSupportedChannels"
	verbSupportedChannels    = "supportedChannels"
	verbRequestCreateLink    = "requestCreateLink"
	verbRequestLoadLink      = "requestLoadLinkAddress"
)

// DefaultTimeout bounds the host calls the wizard issues on a peer's behalf.
const DefaultTimeout = 5 * time.Second

type loadLinkAddressBody struct {
	ChannelGID string   `json:"channelGid"`
	Address    string   `json:"address"`
	Personas   []string `json:"personas"`
}

// envelope is the wire shape of a single LinkWizard message. Exactly one
// field is populated per message.
type envelope struct {
	GetSupportedChannels *bool                 `json:"getSupportedChannels,omitempty"`
	SupportedChannels    map[string]int        `json:"supportedChannels,omitempty"`
	RequestCreateLink    *string               `json:"requestCreateLink,omitempty"`
	RequestLoadLink      *loadLinkAddressBody  `json:"requestLoadLinkAddress,omitempty"`
}

// ChannelSource is the subset of channel.Registry the wizard needs to learn
// and act on locally-supported channels. *channel.Registry satisfies it.
type ChannelSource interface {
	AllChannels() []*channel.Channel
	Channel(gid string) (*channel.Channel, bool)
	LinksForChannel(gid string) []*channel.Link
}

// PeerKinds resolves a persona's kind (client/server) for the §4.3 ranking
// rule that prefers INDIRECT channels to reach clients. *persona.Registry
// satisfies it.
type PeerKinds interface {
	Get(id uuid.UUID) (*persona.Persona, bool)
}

// Sender delivers a LinkWizard body to a peer as a msgType=LINKS message. It
// returns false when no send connection to the peer exists yet, matching
// §4.3 step 1's "if send fails... return false" retry signal.
type Sender interface {
	SendLinksMessage(peer uuid.UUID, body string) bool
}

// Host is the subset of sdk.HostAPI the wizard drives directly.
type Host interface {
	CreateLink(gid string, personas []uuid.UUID, timeout time.Duration) sdk.SdkResponse
	LoadLinkAddress(gid, address string, personas []uuid.UUID, timeout time.Duration) sdk.SdkResponse
}

type obtainRequest struct {
	desired channel.LinkType
}

// peerState is the §4.3 "state per peer" record.
type peerState struct {
	mu                sync.Mutex
	knownChannels     bool
	supportedChannels map[string]channel.LinkSide
	pendingRequests   []obtainRequest
}

// Wizard implements obtain() and the LinkWizard message handlers. It holds
// the wizard-lock called for in §5: pendingCreate/pendingLoad are guarded by
// mu, and per-peer state is guarded independently by each peerState's own
// mutex so that concurrent peers never contend on each other's negotiation.
type Wizard struct {
	self     uuid.UUID
	channels ChannelSource
	kinds    PeerKinds
	sender   Sender
	host     Host
	timeout  time.Duration

	peersMu sync.Mutex
	peers   map[uuid.UUID]*peerState

	mu            sync.Mutex
	pendingCreate map[sdk.Handle][]uuid.UUID
	pendingLoad   map[sdk.Handle][]uuid.UUID
}

// New constructs a Wizard for self, against the given local channel source,
// peer-kind resolver, link-message sender and host capability surface.
func New(self uuid.UUID, channels ChannelSource, kinds PeerKinds, sender Sender, host Host) *Wizard {
	return &Wizard{
		self:          self,
		channels:      channels,
		kinds:         kinds,
		sender:        sender,
		host:          host,
		timeout:       DefaultTimeout,
		peers:         make(map[uuid.UUID]*peerState),
		pendingCreate: make(map[sdk.Handle][]uuid.UUID),
		pendingLoad:   make(map[sdk.Handle][]uuid.UUID),
	}
}

func (w *Wizard) peerState(id uuid.UUID) *peerState {
	w.peersMu.Lock()
	defer w.peersMu.Unlock()
	ps, ok := w.peers[id]
	if !ok {
		ps = &peerState{}
		w.peers[id] = ps
	}
	return ps
}

// Obtain implements §4.3's obtain(peer, desiredType). It returns false only
// when step 1's getSupportedChannels send fails outright (the §4.4 recovery
// hook should retry later); any other negotiation failure is logged and
// swallowed, since the protocol is optimistic per §4.3's failure-modes note.
func (w *Wizard) Obtain(peer uuid.UUID, desired channel.LinkType) bool {
	defer log.Debug(trace.Trace("Obtain exit"))

	ps := w.peerState(peer)
	ps.mu.Lock()
	known := ps.knownChannels
	ps.mu.Unlock()

	if !known {
		body, err := json.Marshal(envelope{GetSupportedChannels: boolPtr(true)})
		if err != nil {
			log.WithError(err).Error("failed to marshal getSupportedChannels")
			return false
		}
		if !w.sender.SendLinksMessage(peer, string(body)) {
			return false
		}
		ps.mu.Lock()
		ps.pendingRequests = append(ps.pendingRequests, obtainRequest{desired: desired})
		ps.mu.Unlock()
		return true
	}

	w.doObtain(peer, ps, desired)
	return true
}

func (w *Wizard) doObtain(peer uuid.UUID, ps *peerState, desired channel.LinkType) {
	ps.mu.Lock()
	peerChans := make(map[string]channel.LinkSide, len(ps.supportedChannels))
	for gid, side := range ps.supportedChannels {
		peerChans[gid] = side
	}
	ps.mu.Unlock()

	cands := w.candidates(peerChans, desired)
	if len(cands) == 0 {
		log.Warnf("obtain(%s): no compatible channel found", peer)
		return
	}

	recipientIsClient := false
	if p, ok := w.kinds.Get(peer); ok {
		recipientIsClient = p.Kind == persona.KindClient
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].lessRanked(cands[j], recipientIsClient) })

	best := cands[0]
	if recipientIsClient && best.ch.ConnectionType == channel.ConnDirect {
		log.Warnf("obtain(%s): best candidate channel %s is DIRECT, unreachable by client", peer, best.ch.GID)
		return
	}

	existing := w.channels.LinksForChannel(best.ch.GID)
	if best.ch.MaxLinks > 0 && len(existing) >= best.ch.MaxLinks {
		log.Warnf("obtain(%s): channel %s at maxLinks", peer, best.ch.GID)
		return
	}

	if best.side == sideCreate {
		w.createFor(best.ch.GID, peer)
		return
	}

	body, err := json.Marshal(envelope{RequestCreateLink: strPtr(best.ch.GID)})
	if err != nil {
		log.WithError(err).Error("failed to marshal requestCreateLink")
		return
	}
	w.sender.SendLinksMessage(peer, string(body))
}

func (w *Wizard) createFor(gid string, peer uuid.UUID) {
	resp := w.host.CreateLink(gid, []uuid.UUID{peer}, w.timeout)
	if resp.Status != sdk.SdkOK {
		log.Warnf("createLink(%s) for %s rejected: %v", gid, peer, resp.Status)
		return
	}
	w.mu.Lock()
	w.pendingCreate[resp.Handle] = []uuid.UUID{peer}
	w.mu.Unlock()
}

// HandleMessage implements router.LinkWizardSink: it dispatches an inbound
// msgType=LINKS body by verb.
func (w *Wizard) HandleMessage(from uuid.UUID, body string) error {
	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return fmt.Errorf("linkwizard: malformed message from %s: %w", from, err)
	}

	switch {
	case env.GetSupportedChannels != nil:
		return w.replySupportedChannels(from)
	case env.SupportedChannels != nil:
		w.onSupportedChannels(from, env.SupportedChannels)
		return nil
	case env.RequestCreateLink != nil:
		w.onRequestCreateLink(from, *env.RequestCreateLink)
		return nil
	case env.RequestLoadLink != nil:
		w.onRequestLoadLink(from, *env.RequestLoadLink)
		return nil
	}
	return nil
}

func (w *Wizard) replySupportedChannels(to uuid.UUID) error {
	out := make(map[string]int)
	for _, ch := range w.channels.AllChannels() {
		if ch.Status != channel.ChannelEnabled && ch.Status != channel.ChannelAvailable {
			continue
		}
		if ch.CurrentRole == nil {
			continue
		}
		out[ch.GID] = int(ch.CurrentRole.LinkSide)
	}
	body, err := json.Marshal(envelope{SupportedChannels: out})
	if err != nil {
		return fmt.Errorf("linkwizard: marshal supportedChannels: %w", err)
	}
	w.sender.SendLinksMessage(to, string(body))
	return nil
}

func (w *Wizard) onSupportedChannels(from uuid.UUID, raw map[string]int) {
	ps := w.peerState(from)

	ps.mu.Lock()
	ps.supportedChannels = make(map[string]channel.LinkSide, len(raw))
	for gid, side := range raw {
		ps.supportedChannels[gid] = channel.LinkSide(side)
	}
	ps.knownChannels = true
	pending := ps.pendingRequests
	ps.pendingRequests = nil
	ps.mu.Unlock()

	for _, req := range pending {
		w.doObtain(from, ps, req.desired)
	}
}

func (w *Wizard) onRequestCreateLink(from uuid.UUID, gid string) {
	ch, ok := w.channels.Channel(gid)
	if !ok || ch.Status != channel.ChannelEnabled {
		log.Warnf("requestCreateLink from %s: channel %s unavailable", from, gid)
		return
	}
	existing := w.channels.LinksForChannel(gid)
	if ch.MaxLinks > 0 && len(existing) >= ch.MaxLinks {
		log.Warnf("requestCreateLink from %s: channel %s at maxLinks", from, gid)
		return
	}
	w.createFor(gid, from)
}

func (w *Wizard) onRequestLoadLink(from uuid.UUID, body loadLinkAddressBody) {
	var personas []uuid.UUID
	for _, s := range body.Personas {
		id, err := uuid.Parse(s)
		if err != nil || id == w.self {
			continue
		}
		personas = append(personas, id)
	}

	resp := w.host.LoadLinkAddress(body.ChannelGID, body.Address, personas, w.timeout)
	if resp.Status != sdk.SdkOK {
		log.Warnf("loadLinkAddress(%s) from %s rejected: %v", body.ChannelGID, from, resp.Status)
		return
	}
	w.mu.Lock()
	w.pendingLoad[resp.Handle] = personas
	w.mu.Unlock()
}

// OnLinkStatusChanged implements the §4.3 "reaction to link events" table.
func (w *Wizard) OnLinkStatusChanged(handle sdk.Handle, status sdk.LinkStatus, link channel.Link) {
	switch status {
	case sdk.LinkCreated:
		w.onLinkCreated(handle, link)
	case sdk.LinkLoaded, sdk.LinkDestroyed:
		w.mu.Lock()
		delete(w.pendingLoad, handle)
		delete(w.pendingCreate, handle)
		w.mu.Unlock()
	}
}

func (w *Wizard) onLinkCreated(handle sdk.Handle, link channel.Link) {
	w.mu.Lock()
	peers, ok := w.pendingCreate[handle]
	delete(w.pendingCreate, handle)
	w.mu.Unlock()
	if !ok {
		return
	}

	personaStrs := make([]string, 0, len(peers)+1)
	for _, p := range peers {
		personaStrs = append(personaStrs, p.String())
	}
	personaStrs = append(personaStrs, w.self.String())

	body, err := json.Marshal(envelope{RequestLoadLink: &loadLinkAddressBody{
		ChannelGID: link.ChannelGID,
		Address:    link.Address,
		Personas:   personaStrs,
	}})
	if err != nil {
		log.WithError(err).Error("failed to marshal requestLoadLinkAddress")
		return
	}

	for _, peer := range peers {
		if peer == w.self {
			continue
		}
		w.sender.SendLinksMessage(peer, string(body))
	}
}

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }
