// Package linkmgr implements the §4.4 Link & Connection manager: the
// genesis-link init order, send-connection ranking and replacement-on-close,
// and the recovery hook back into LinkWizard. It is generalized from
// pkg/router/router.go's mutex-guarded staticPorts/portManager bookkeeping
// style: a handful of small maps, each transition taking the same mutex for
// the duration of the update.
package linkmgr

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/racecore/overlay-nm/internal/trace"
	"github.com/racecore/overlay-nm/pkg/channel"
	"github.com/racecore/overlay-nm/pkg/persona"
	"github.com/racecore/overlay-nm/pkg/raceconfig"
	"github.com/racecore/overlay-nm/pkg/sdk"
)

var log = logging.MustGetLogger("linkmgr")

// DefaultTimeout bounds genesis-link and connection host calls.
const DefaultTimeout = 5 * time.Second

// Wizard is the subset of linkwizard.Wizard the manager drives during the
// recovery hook and expected-link top-up.
type Wizard interface {
	Obtain(peer uuid.UUID, desired channel.LinkType) bool
}

// Host is the subset of sdk.HostAPI the manager drives directly.
type Host interface {
	GetAllChannelProperties() ([]channel.Properties, error)
	GetLinksForPersonas(personas []uuid.UUID, linkType channel.LinkType) ([]channel.Link, error)

	ActivateChannel(gid string, role channel.Role, timeout time.Duration) sdk.SdkResponse
	CreateLinkFromAddress(gid, address string, personas []uuid.UUID, timeout time.Duration) sdk.SdkResponse
	LoadLinkAddress(gid, address string, personas []uuid.UUID, timeout time.Duration) sdk.SdkResponse

	OpenConnection(linkType channel.LinkType, linkID uuid.UUID, hints map[string]string, priority int, timeout time.Duration, blocking bool) sdk.SdkResponse
	SendEncryptedPackage(pkg []byte, connID uuid.UUID, batchID uuid.UUID, timeout time.Duration) sdk.Handle
}

// Config configures a Manager.
type Config struct {
	SelfIsClient  bool // true for client-role nodes; §4.4 ranking always prefers INDIRECT for these
	Channels      ChannelSource
	Personas      *persona.Registry
	Host          Host
	Wizard        Wizard
	LinkProfiles  raceconfig.LinkProfiles
	ExpectedLinks map[uuid.UUID][]raceconfig.ExpectedLink
	ChannelRoles  map[string]channel.Role // gid -> role this node enacts, per config.json's channelRoles
	// NotifyReady is called once, when openingConnections first drains
	// after genesis-link activation (§4.4 step 6's PLUGIN_READY).
	NotifyReady func()
}

// ChannelSource is the subset of channel.Registry the manager needs.
type ChannelSource interface {
	Channel(gid string) (*channel.Channel, bool)
	Link(id uuid.UUID) (*channel.Link, bool)
}

type sendConn struct {
	connID uuid.UUID
	props  channel.Properties
}

type openingConn struct {
	persona  uuid.UUID
	linkType channel.LinkType
}

// Manager implements the §4.4 state machine.
type Manager struct {
	cfg Config

	mu                       sync.Mutex
	uuidToSendConns          map[uuid.UUID][]sendConn
	sendConnToUUID           map[uuid.UUID]uuid.UUID
	recvConns                map[uuid.UUID]struct{}
	openingConnections       map[sdk.Handle]openingConn
	channelsToUse            map[string]struct{}
	genesisLinkRequests      map[sdk.Handle]struct{}
	linkWizardInitialized    bool
	obtainUnicastLinkToRetry map[uuid.UUID]channel.LinkType

	startedDraining bool
	readyNotified   bool
}

// New constructs a Manager.
func New(cfg Config) *Manager {
	return &Manager{
		cfg:                      cfg,
		uuidToSendConns:          make(map[uuid.UUID][]sendConn),
		sendConnToUUID:           make(map[uuid.UUID]uuid.UUID),
		recvConns:                make(map[uuid.UUID]struct{}),
		openingConnections:       make(map[sdk.Handle]openingConn),
		channelsToUse:            make(map[string]struct{}),
		genesisLinkRequests:      make(map[sdk.Handle]struct{}),
		obtainUnicastLinkToRetry: make(map[uuid.UUID]channel.LinkType),
	}
}

// Init implements §4.4 init steps 1-2: personas and link profiles are
// assumed already loaded into cfg; every channel with an assigned role is
// activated.
func (m *Manager) Init() error {
	defer log.Debug(trace.Trace("Init exit"))

	props, err := m.cfg.Host.GetAllChannelProperties()
	if err != nil {
		return fmt.Errorf("linkmgr: get channel properties: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range props {
		role, assigned := m.cfg.ChannelRoles[p.GID]
		if !assigned {
			continue
		}
		m.channelsToUse[p.GID] = struct{}{}
		resp := m.cfg.Host.ActivateChannel(p.GID, role, DefaultTimeout)
		if resp.Status != sdk.SdkOK {
			log.Warnf("activateChannel(%s) rejected: %v", p.GID, resp.Status)
		}
	}
	return nil
}

// OnChannelStatusChanged implements §4.4 step 3.
func (m *Manager) OnChannelStatusChanged(gid string, status channel.Status, props channel.Properties) {
	if status != channel.ChannelAvailable {
		return
	}
	m.initStaticLinks(gid)

	m.mu.Lock()
	delete(m.channelsToUse, gid)
	m.mu.Unlock()

	m.maybeStartLinkWizard()
}

func (m *Manager) initStaticLinks(gid string) {
	entries := m.cfg.LinkProfiles[gid]
	for _, e := range entries {
		personas := make([]uuid.UUID, 0, len(e.Personas))
		for _, s := range e.Personas {
			id, err := uuid.Parse(s)
			if err != nil {
				log.WithError(err).Warnf("bad persona uuid %q in link profile for %s", s, gid)
				continue
			}
			personas = append(personas, id)
		}

		var resp sdk.SdkResponse
		switch e.Role {
		case "creator":
			resp = m.cfg.Host.CreateLinkFromAddress(gid, e.Address, personas, DefaultTimeout)
		case "loader":
			resp = m.cfg.Host.LoadLinkAddress(gid, e.Address, personas, DefaultTimeout)
		default:
			log.Warnf("link profile for %s has unknown role %q", gid, e.Role)
			continue
		}
		if resp.Status != sdk.SdkOK {
			log.Warnf("genesis link for %s (%s) rejected: %v", gid, e.Role, resp.Status)
			continue
		}

		m.mu.Lock()
		m.genesisLinkRequests[resp.Handle] = struct{}{}
		m.mu.Unlock()
	}
}

// OnLinkStatusChanged implements §4.4 step 4: a created or loaded link opens
// a matching connection and drops the handle from genesisLinkRequests.
func (m *Manager) OnLinkStatusChanged(handle sdk.Handle, linkID uuid.UUID, status sdk.LinkStatus, link channel.Link) {
	m.mu.Lock()
	_, wasGenesis := m.genesisLinkRequests[handle]
	delete(m.genesisLinkRequests, handle)
	m.mu.Unlock()

	if status != sdk.LinkCreated && status != sdk.LinkLoaded {
		return
	}

	ch, ok := m.cfg.Channels.Channel(link.ChannelGID)
	hints := map[string]string{}
	if ok && ch.SupportsBatch {
		hints["batch"] = "true"
	}

	resp := m.cfg.Host.OpenConnection(link.LinkType, linkID, hints, 0, DefaultTimeout, false)
	if resp.Status != sdk.SdkOK {
		log.Warnf("openConnection for link %s rejected: %v", linkID, resp.Status)
	} else {
		var p uuid.UUID
		if len(link.Personas) == 1 {
			for id := range link.Personas {
				p = id
			}
		}
		m.mu.Lock()
		m.openingConnections[resp.Handle] = openingConn{persona: p, linkType: link.LinkType}
		m.startedDraining = true
		m.mu.Unlock()
	}

	if wasGenesis {
		m.maybeStartLinkWizard()
	}
}

func (m *Manager) maybeStartLinkWizard() {
	m.mu.Lock()
	ready := len(m.channelsToUse) == 0 && len(m.genesisLinkRequests) == 0 && !m.linkWizardInitialized
	if ready {
		m.linkWizardInitialized = true
	}
	m.mu.Unlock()

	if !ready {
		return
	}

	for peer, links := range m.cfg.ExpectedLinks {
		for _, want := range links {
			lt, err := parseLinkType(want.LinkType)
			if err != nil {
				log.WithError(err).Warnf("skipping expectedLinks entry for %s", peer)
				continue
			}
			for i := 0; i < want.Count; i++ {
				if !m.cfg.Wizard.Obtain(peer, lt) {
					m.mu.Lock()
					m.obtainUnicastLinkToRetry[peer] = lt
					m.mu.Unlock()
					break
				}
			}
		}
	}
}

// OnConnectionStatusChanged tracks connection opens/closes: it resolves
// openingConnections into the ranked send-connection lists, attempts
// replacement on close, fires the §4.4 step 6 PLUGIN_READY notification
// once the initial opening set drains, and fires the recovery hook.
func (m *Manager) OnConnectionStatusChanged(handle sdk.Handle, connID uuid.UUID, status sdk.ConnStatus, conn channel.Connection) {
	m.mu.Lock()
	opening, wasOpening := m.openingConnections[handle]
	delete(m.openingConnections, handle)
	m.mu.Unlock()

	switch status {
	case sdk.ConnectionOpen:
		switch {
		case wasOpening && opening.linkType == channel.LinkRecv:
			m.mu.Lock()
			m.recvConns[connID] = struct{}{}
			m.mu.Unlock()
		case wasOpening:
			m.addSendConn(opening.persona, connID, conn.LinkID)
			m.checkRecoveryHook(opening.persona)
		}
	case sdk.ConnectionClosed, sdk.ConnectionInitFailed:
		m.handleConnectionClosed(connID)
	}

	m.notifyReadyIfDrained()
}

func (m *Manager) notifyReadyIfDrained() {
	m.mu.Lock()
	shouldNotify := m.startedDraining && !m.readyNotified && len(m.openingConnections) == 0
	if shouldNotify {
		m.readyNotified = true
	}
	m.mu.Unlock()

	if shouldNotify && m.cfg.NotifyReady != nil {
		m.cfg.NotifyReady()
	}
}

func (m *Manager) addSendConn(peer, connID, linkID uuid.UUID) {
	var props channel.Properties
	if link, ok := m.cfg.Channels.Link(linkID); ok {
		if ch, ok := m.cfg.Channels.Channel(link.ChannelGID); ok {
			props = ch.Properties
		}
	}

	m.mu.Lock()
	m.sendConnToUUID[connID] = peer
	m.uuidToSendConns[peer] = append(m.uuidToSendConns[peer], sendConn{connID: connID, props: props})
	m.sortSendConns(peer)
	m.mu.Unlock()
}

func (m *Manager) sortSendConns(peer uuid.UUID) {
	conns := m.uuidToSendConns[peer]
	recipientKind := persona.KindServer
	if p, ok := m.cfg.Personas.Get(peer); ok {
		recipientKind = p.Kind
	}
	sort.SliceStable(conns, func(i, j int) bool {
		return rankLess(conns[i].props, conns[j].props, m.cfg.SelfIsClient, recipientKind == persona.KindClient)
	})
	m.uuidToSendConns[peer] = conns
}

// rankLess implements the §4.4 send-connection ranking: UNDEF connection
// type sorts last; INDIRECT is preferred when the recipient is a client or
// self is a client; ties break on larger expected send bandwidth.
func rankLess(a, b channel.Properties, selfIsClient, recipientIsClient bool) bool {
	if (a.ConnectionType == channel.ConnUndef) != (b.ConnectionType == channel.ConnUndef) {
		return a.ConnectionType != channel.ConnUndef
	}
	if recipientIsClient || selfIsClient {
		ai := a.ConnectionType == channel.ConnIndirect
		bi := b.ConnectionType == channel.ConnIndirect
		if ai != bi {
			return ai
		}
	}
	return a.CreatorExpected.SendBandwidthBps > b.CreatorExpected.SendBandwidthBps
}

// Send implements §4.4's send(persona, pkg, idx): pick the idx'th
// (mod length) ranked send connection and dispatch.
func (m *Manager) Send(peer uuid.UUID, pkg []byte, idx int) sdk.Handle {
	m.mu.Lock()
	conns := m.uuidToSendConns[peer]
	m.mu.Unlock()

	if len(conns) == 0 {
		return sdk.NullHandle
	}
	chosen := conns[idx%len(conns)]
	return m.cfg.Host.SendEncryptedPackage(pkg, chosen.connID, uuid.UUID{}, DefaultTimeout)
}

func (m *Manager) handleConnectionClosed(connID uuid.UUID) {
	m.mu.Lock()
	peer, ok := m.sendConnToUUID[connID]
	if ok {
		delete(m.sendConnToUUID, connID)
		conns := m.uuidToSendConns[peer]
		for i, c := range conns {
			if c.connID == connID {
				conns = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		m.uuidToSendConns[peer] = conns
	}
	delete(m.recvConns, connID)
	m.mu.Unlock()

	if !ok {
		return
	}
	m.attemptReplacement(peer)
}

func (m *Manager) attemptReplacement(peer uuid.UUID) {
	links, err := m.cfg.Host.GetLinksForPersonas([]uuid.UUID{peer}, channel.LinkSend)
	if err != nil {
		log.WithError(err).Warnf("replacement lookup for %s failed", peer)
		return
	}

	m.mu.Lock()
	inUse := make(map[uuid.UUID]bool)
	for _, c := range m.uuidToSendConns[peer] {
		inUse[c.connID] = true
	}
	m.mu.Unlock()

	var candidates []channel.Link
	for _, l := range links {
		if !inUse[l.ID] {
			candidates = append(candidates, l)
		}
	}
	if len(candidates) == 0 {
		log.Warnf("no replacement send link available for %s", peer)
		return
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].ID.String() < candidates[j].ID.String() })

	chosen := candidates[0]
	hints := map[string]string{}
	if ch, ok := m.cfg.Channels.Channel(chosen.ChannelGID); ok && ch.SupportsBatch {
		hints["batch"] = "true"
	}
	resp := m.cfg.Host.OpenConnection(chosen.LinkType, chosen.ID, hints, 0, DefaultTimeout, false)
	if resp.Status != sdk.SdkOK {
		log.Warnf("replacement openConnection for %s rejected: %v", peer, resp.Status)
		return
	}
	m.mu.Lock()
	m.openingConnections[resp.Handle] = openingConn{persona: peer, linkType: chosen.LinkType}
	m.mu.Unlock()
}

func (m *Manager) checkRecoveryHook(peer uuid.UUID) {
	m.mu.Lock()
	lt, ok := m.obtainUnicastLinkToRetry[peer]
	if ok {
		delete(m.obtainUnicastLinkToRetry, peer)
	}
	m.mu.Unlock()

	if ok {
		m.cfg.Wizard.Obtain(peer, lt)
	}
}

func parseLinkType(s string) (channel.LinkType, error) {
	switch s {
	case "SEND":
		return channel.LinkSend, nil
	case "RECV":
		return channel.LinkRecv, nil
	case "BIDI":
		return channel.LinkBidi, nil
	default:
		return channel.LinkSend, fmt.Errorf("linkmgr: unknown link type %q", s)
	}
}
