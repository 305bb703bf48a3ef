package client

import (
	"sync"

	"github.com/racecore/overlay-nm/pkg/sdk"
)

// pkgTracker coalesces the per-enc-pkg handles dispatched for one
// host-visible clear-message handle, and aggregates their statuses per
// §7's propagation policy. This is the Go equivalent of the original's
// ClearMessagePackageTracker, which spec.md §4.1 references only in passing
// ("(§4.6)") without naming.
type pkgTracker struct {
	mu sync.Mutex

	// owners maps an enc-pkg handle to the parent clear-message handle.
	owners map[sdk.Handle]sdk.Handle
	// statuses maps a parent handle to the statuses of its enc-pkgs seen
	// so far.
	statuses map[sdk.Handle][]sdk.PackageStatus
	// resolved marks parent handles that have already reported a terminal
	// aggregate (MsgSent/MsgFailed), so they are reported at most once.
	resolved map[sdk.Handle]bool
}

func newPkgTracker() *pkgTracker {
	return &pkgTracker{
		owners:   make(map[sdk.Handle]sdk.Handle),
		statuses: make(map[sdk.Handle][]sdk.PackageStatus),
		resolved: make(map[sdk.Handle]bool),
	}
}

// track registers that encHandle was dispatched on behalf of parent.
func (t *pkgTracker) track(parent, encHandle sdk.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.owners[encHandle] = parent
	t.statuses[parent] = append(t.statuses[parent], sdk.PackageUndef)
}

// resolve records encHandle's new status and returns the owning parent
// handle plus the freshly computed aggregate, and whether the aggregate is
// newly-terminal (i.e. should be reported to the host now).
func (t *pkgTracker) resolve(encHandle sdk.Handle, status sdk.PackageStatus) (parent sdk.Handle, aggregate sdk.MessageStatus, shouldReport bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, ok := t.owners[encHandle]
	if !ok {
		return 0, sdk.MsgUndef, false
	}

	// Replace the first Undef slot; in absence of precise per-handle
	// slots we simply append/replace conservatively by rebuilding.
	all := t.statuses[parent]
	placed := false
	for i, s := range all {
		if s == sdk.PackageUndef && !placed {
			all[i] = status
			placed = true
		}
	}
	if !placed {
		all = append(all, status)
	}
	t.statuses[parent] = all

	if t.resolved[parent] {
		return parent, sdk.MsgUndef, false
	}

	aggregate = sdk.AggregateMessageStatus(all)
	if aggregate != sdk.MsgUndef {
		t.resolved[parent] = true
		delete(t.statuses, parent)
		return parent, aggregate, true
	}
	return parent, aggregate, false
}
