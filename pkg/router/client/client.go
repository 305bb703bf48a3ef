// Package client implements the §4.1 client-role Router: send (host ->
// entrance committee fanout), receive (dedup + dispatch), and the coalesced
// message-status tracker.
package client

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/racecore/overlay-nm/internal/trace"
	"github.com/racecore/overlay-nm/pkg/dedup"
	"github.com/racecore/overlay-nm/pkg/router"
	"github.com/racecore/overlay-nm/pkg/sdk"
	"github.com/racecore/overlay-nm/pkg/seal"
	"github.com/racecore/overlay-nm/pkg/xmsg"
)

var log = logging.MustGetLogger("router-client")

// Errors surfaced by Send, matching §7's error-kind taxonomy.
var (
	ErrConfig         = errors.New("router/client: unknown recipient")
	ErrDuplicateLocal = errors.New("router/client: duplicate message")
	ErrNoRoute        = errors.New("router/client: no route to entrance committee")
)

// Config configures a client Router.
type Config struct {
	Self              uuid.UUID
	EntranceCommittee []uuid.UUID
	MaxSeenMessages   int
	Keys              router.PersonaKeys
	Tx                router.Transmitter
	LinkWizard        router.LinkWizardSink
	// DeliverLocal is invoked when a CM is addressed to this node, either
	// because the host asked to send to self or because a remote CM
	// arrived addressed here.
	DeliverLocal func(cm xmsg.CM) error
	// HostOnMessageStatusChanged reports the coalesced aggregate for a
	// clear-message handle once it resolves to SENT or FAILED.
	HostOnMessageStatusChanged func(handle sdk.Handle, status sdk.MessageStatus)
}

// Router implements the client-role routing state machine of §4.1.
type Router struct {
	self       uuid.UUID
	entrance   []uuid.UUID
	seen       *dedup.SeenSet
	keys       router.PersonaKeys
	tx         router.Transmitter
	wizard     router.LinkWizardSink
	deliver    func(cm xmsg.CM) error
	onMsgStat  func(handle sdk.Handle, status sdk.MessageStatus)
	tracker    *pkgTracker
}

// New constructs a client Router.
func New(cfg Config) *Router {
	maxSeen := cfg.MaxSeenMessages
	if maxSeen <= 0 {
		maxSeen = 10000
	}
	return &Router{
		self:      cfg.Self,
		entrance:  cfg.EntranceCommittee,
		seen:      dedup.New(maxSeen),
		keys:      cfg.Keys,
		tx:        cfg.Tx,
		wizard:    cfg.LinkWizard,
		deliver:   cfg.DeliverLocal,
		onMsgStat: cfg.HostOnMessageStatusChanged,
		tracker:   newPkgTracker(),
	}
}

// Send implements §4.1's send operation.
func (r *Router) Send(handle sdk.Handle, cm xmsg.CM) error {
	defer log.Debug(trace.Trace("Send exit"))

	toID, err := uuid.Parse(cm.To)
	if err != nil {
		return ErrConfig
	}
	if _, ok := r.keys.AESKey(toID); !ok {
		return ErrConfig
	}

	if toID == r.self {
		return r.deliver(cm)
	}

	hash := xmsg.CMHash(cm)
	if !r.seen.Add(hash) {
		return ErrDuplicateLocal
	}

	xcm := xmsg.XCM{
		CM:                cm,
		UUID:              xmsg.DeriveUUID(cm),
		MsgType:           xmsg.MsgClient,
		CommitteesVisited: []string{},
		CommitteesSent:    []string{},
	}
	framed, err := xmsg.FormatXCM(xcm)
	if err != nil {
		return fmt.Errorf("router/client: format xcm: %w", err)
	}

	dispatched := 0
	for _, srv := range r.entrance {
		key, ok := r.keys.AESKey(srv)
		if !ok {
			continue
		}
		pkg, err := seal.Seal([]byte(framed), key)
		if err != nil {
			log.WithError(err).Warn("failed to seal package for entrance server")
			continue
		}
		encHandle, ok := r.tx.Send(srv, pkg)
		if !ok {
			continue
		}
		r.tracker.track(handle, encHandle)
		dispatched++
	}

	if dispatched == 0 {
		return ErrNoRoute
	}
	return nil
}

// Receive implements §4.1's receive operation.
func (r *Router) Receive(pkg []byte, _ []uuid.UUID) error {
	defer log.Debug(trace.Trace("Receive exit"))

	selfKey, ok := r.keys.AESKey(r.self)
	if !ok {
		return fmt.Errorf("router/client: no key for self")
	}

	plaintext, err := seal.Open(pkg, selfKey)
	if err != nil {
		return nil // not-for-me, silent drop
	}

	xcm, err := xmsg.Parse(string(plaintext))
	if err != nil {
		log.WithError(err).Warn("dropping malformed package")
		return nil
	}

	if xcm.MsgType == xmsg.MsgLinks {
		from, err := uuid.Parse(xcm.From)
		if err != nil {
			return nil
		}
		return r.wizard.HandleMessage(from, xcm.Msg)
	}

	if xcm.MsgType == xmsg.MsgClient {
		hash := xmsg.CMHash(xcm.CM)
		if r.seen.Contains(hash) {
			return nil
		}
		r.seen.Add(hash)
		return r.deliver(xcm.CM)
	}

	return nil
}

// OnPackageStatusChanged resolves encHandle to its owning clear-message
// handle and, once the aggregate crosses into SENT or FAILED, reports it to
// the host.
func (r *Router) OnPackageStatusChanged(encHandle sdk.Handle, status sdk.PackageStatus) {
	parent, aggregate, shouldReport := r.tracker.resolve(encHandle, status)
	if !shouldReport {
		return
	}
	if r.onMsgStat != nil {
		r.onMsgStat(parent, aggregate)
	}
}
