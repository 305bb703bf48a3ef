// Package server implements the §4.2 server-role Router: the route(xcm)
// ring-traversal / inter-committee-flooding state machine. Servers never
// originate cleartext.
package server

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/racecore/overlay-nm/internal/trace"
	"github.com/racecore/overlay-nm/pkg/committee"
	"github.com/racecore/overlay-nm/pkg/dedup"
	"github.com/racecore/overlay-nm/pkg/router"
	"github.com/racecore/overlay-nm/pkg/sdk"
	"github.com/racecore/overlay-nm/pkg/seal"
	"github.com/racecore/overlay-nm/pkg/xmsg"
)

var log = logging.MustGetLogger("router-server")

// Config configures a server Router.
type Config struct {
	Self         uuid.UUID
	Home         *committee.Committee
	MaxStaleUUIDs int
	Keys         router.PersonaKeys
	Tx           router.Transmitter
	LinkWizard   router.LinkWizardSink
	// DeliverToClient sends a downgraded CM directly to an exit client;
	// exposed as a func so tests can assert on delivery without a full
	// Transmitter plumbing.
	DeliverToClient func(to uuid.UUID, cm xmsg.CM) error
}

// Router implements the server-role routing state machine of §4.2.
type Router struct {
	self          uuid.UUID
	home          *committee.Committee
	staleUUIDs    *dedup.SeenSet
	floodedUUIDs  *dedup.SeenSet
	keys          router.PersonaKeys
	tx            router.Transmitter
	wizard        router.LinkWizardSink
	deliverClient func(to uuid.UUID, cm xmsg.CM) error
}

// New constructs a server Router.
func New(cfg Config) *Router {
	maxStale := cfg.MaxStaleUUIDs
	if maxStale <= 0 {
		maxStale = 10000
	}
	return &Router{
		self:          cfg.Self,
		home:          cfg.Home,
		staleUUIDs:    dedup.New(maxStale),
		floodedUUIDs:  dedup.New(maxStale),
		keys:          cfg.Keys,
		tx:            cfg.Tx,
		wizard:        cfg.LinkWizard,
		deliverClient: cfg.DeliverToClient,
	}
}

// Send implements §4.2: servers never originate cleartext.
func (r *Router) Send(_ sdk.Handle, _ xmsg.CM) sdk.Status {
	return sdk.PluginError
}

// Receive opens a package under this server's own key and, on success,
// dispatches to LinkWizard or route() per §4.2.
func (r *Router) Receive(pkg []byte, _ []uuid.UUID) error {
	defer log.Debug(trace.Trace("Receive exit"))

	selfKey, ok := r.keys.AESKey(r.self)
	if !ok {
		return fmt.Errorf("router/server: no key for self")
	}

	plaintext, err := seal.Open(pkg, selfKey)
	if err != nil {
		// Auth failure or malformed input: silent drop, per §4.2/§7.
		return nil
	}

	xcm, err := xmsg.Parse(string(plaintext))
	if err != nil {
		log.WithError(err).Warn("dropping malformed package")
		return nil
	}

	toID, err := uuid.Parse(xcm.To)
	if err == nil && toID == r.self && xcm.MsgType == xmsg.MsgLinks {
		return r.wizard.HandleMessage(mustParse(xcm.From), xcm.Msg)
	}

	return r.route(xcm)
}

func mustParse(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}
	}
	return id
}

// route is the §4.2 state machine entrypoint.
func (r *Router) route(xcm *xmsg.XCM) error {
	if !xcm.HasRingTTL() && len(r.home.Rings) > 0 {
		return r.startRingMsg(xcm)
	}
	return r.handleRingMsg(xcm)
}

func (r *Router) startRingMsg(xcm *xmsg.XCM) error {
	if r.staleUUIDs.Contains(xcm.UUID) {
		return nil // duplicate, drop
	}
	r.staleUUIDs.Add(xcm.UUID)

	for i, ring := range r.home.Rings {
		next, ok := ring.Next(r.self)
		if !ok {
			log.Warnf("ring %d has no successor for self", i)
			continue
		}
		cp := cloneXCM(xcm)
		cp.SetRingTTL(ring.Len() - 1)
		cp.RingIdx = i
		if err := r.sendToServer(next, cp); err != nil {
			log.WithError(err).Warn("failed to send to ring successor")
		}
	}
	return nil
}

func (r *Router) handleRingMsg(xcm *xmsg.XCM) error {
	r.staleUUIDs.Add(xcm.UUID)

	if ttl := *xcm.RingTTL; ttl > 0 {
		newTTL := ttl - 1
		if newTTL < 0 {
			newTTL = 0
		}
		xcm.SetRingTTL(newTTL)

		ring := r.home.Rings[xcm.RingIdx]
		next, ok := ring.Next(r.self)
		if !ok {
			log.Warnf("ring %d has no successor for self mid-traversal", xcm.RingIdx)
			return nil
		}
		return r.sendToServer(next, xcm)
	}

	// End-of-ring arrival.
	if r.floodedUUIDs.Contains(xcm.UUID) {
		return nil
	}
	r.floodedUUIDs.Add(xcm.UUID)

	toID, err := uuid.Parse(xcm.To)
	if err != nil {
		return fmt.Errorf("router/server: bad destination %q: %w", xcm.To, err)
	}

	switch {
	case r.home.IsExitClient(toID):
		cm := xcm.CM
		return r.deliverClient(toID, cm)
	case r.home.IsCommitteeClient(toID):
		ring := r.home.Rings[xcm.RingIdx]
		next, ok := ring.Next(r.self)
		if !ok {
			log.Warnf("ring %d has no successor to re-circulate to committee client", xcm.RingIdx)
			return nil
		}
		return r.sendToServer(next, xcm)
	default:
		return r.forwardToNewCommittees(xcm)
	}
}

func (r *Router) forwardToNewCommittees(xcm *xmsg.XCM) error {
	clone := cloneXCM(xcm)
	clone.ClearRingTTL()
	if !containsStr(clone.CommitteesVisited, r.home.Name) {
		clone.CommitteesVisited = append(clone.CommitteesVisited, r.home.Name)
	}
	clone.CommitteesSent = nil

	var intercomDsts []uuid.UUID
	for _, name := range r.home.ReachableCommittees() {
		if containsStr(clone.CommitteesVisited, name) || containsStr(clone.CommitteesSent, name) {
			continue
		}
		entry, ok := r.home.EntryPoint(name)
		if !ok {
			continue
		}
		clone.CommitteesSent = append(clone.CommitteesSent, name)
		intercomDsts = append(intercomDsts, entry)
		if r.home.FloodingFactor > 0 && len(intercomDsts) >= r.home.FloodingFactor {
			break
		}
	}

	for _, dst := range intercomDsts {
		if err := r.sendToServer(dst, clone); err != nil {
			log.WithError(err).Warn("failed to forward to new committee entry point")
		}
	}

	reachedCap := r.home.FloodingFactor > 0 && len(intercomDsts) >= r.home.FloodingFactor
	if !reachedCap {
		// Could not reach floodingFactor destinations (or flooding is
		// unlimited): relay so other ring members can reach their own
		// committees. This may push aggregate sends past floodingFactor;
		// that is intentional per §4.2.
		for i, ring := range r.home.Rings {
			next, ok := ring.Next(r.self)
			if !ok {
				continue
			}
			relay := cloneXCM(clone)
			relay.SetRingTTL(0)
			relay.RingIdx = i
			if err := r.sendToServer(next, relay); err != nil {
				log.WithError(err).Warn("failed to relay ring message for sibling committees")
			}
		}
	}
	return nil
}

func (r *Router) sendToServer(dst uuid.UUID, xcm *xmsg.XCM) error {
	key, ok := r.keys.AESKey(dst)
	if !ok {
		return fmt.Errorf("router/server: no key for %s", dst)
	}
	framed, err := xmsg.FormatXCM(*xcm)
	if err != nil {
		return fmt.Errorf("router/server: format xcm: %w", err)
	}
	pkg, err := seal.Seal([]byte(framed), key)
	if err != nil {
		return fmt.Errorf("router/server: seal: %w", err)
	}
	if _, ok := r.tx.Send(dst, pkg); !ok {
		return fmt.Errorf("router/server: send to %s failed", dst)
	}
	return nil
}

func cloneXCM(x *xmsg.XCM) *xmsg.XCM {
	cp := *x
	if x.RingTTL != nil {
		v := *x.RingTTL
		cp.RingTTL = &v
	}
	cp.CommitteesVisited = append([]string(nil), x.CommitteesVisited...)
	cp.CommitteesSent = append([]string(nil), x.CommitteesSent...)
	return &cp
}

func containsStr(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
