package linkwizard

import "github.com/racecore/overlay-nm/pkg/channel"

// candidateSide records which role self would enact on a candidate channel.
type candidateSide int

const (
	sideCreate candidateSide = iota
	sideLoad
)

// candidate is one channel admitted by §4.3 step 3's create/load rules for a
// given desired link type.
type candidate struct {
	ch   *channel.Channel
	side candidateSide
}

// lessRanked implements §4.3 step 4's ranking: if the recipient is a client,
// INDIRECT candidates sort before non-INDIRECT ones; ties (or the
// non-client case) break on larger expected send bandwidth for self's side
// of the link.
func (c candidate) lessRanked(other candidate, recipientIsClient bool) bool {
	if recipientIsClient {
		ci := c.ch.ConnectionType == channel.ConnIndirect
		oi := other.ch.ConnectionType == channel.ConnIndirect
		if ci != oi {
			return ci
		}
	}
	return c.bandwidth() > other.bandwidth()
}

func (c candidate) bandwidth() int64 {
	if c.side == sideCreate {
		return c.ch.CreatorExpected.SendBandwidthBps
	}
	return c.ch.LoaderExpected.SendBandwidthBps
}

// candidates builds the §4.3 step 2/3 candidate set: for BIDI, only
// BiDi-direction channels are considered first; if none qualify, the
// RECV and SEND candidate sets are each built and intersected by channel
// GID, per "recurse with RECV then SEND and AND the results".
func (w *Wizard) candidates(peerChans map[string]channel.LinkSide, desired channel.LinkType) []candidate {
	if desired == channel.LinkBidi {
		bidi := w.candidatesForDesired(peerChans, channel.LinkBidi)
		if len(bidi) > 0 {
			return bidi
		}
		recv := w.candidatesForDesired(peerChans, channel.LinkRecv)
		send := w.candidatesForDesired(peerChans, channel.LinkSend)
		return intersectByGID(recv, send)
	}
	return w.candidatesForDesired(peerChans, desired)
}

func (w *Wizard) candidatesForDesired(peerChans map[string]channel.LinkSide, desired channel.LinkType) []candidate {
	var out []candidate
	for _, ch := range w.channels.AllChannels() {
		peerSide, ok := peerChans[ch.GID]
		if !ok {
			continue
		}
		if ch.CurrentRole == nil {
			continue
		}
		selfSide := ch.CurrentRole.LinkSide
		dir := ch.LinkDirection

		selfCanCreate := selfSide == channel.SideCreator || selfSide == channel.SideBoth
		peerCanLoad := peerSide == channel.SideLoader || peerSide == channel.SideBoth
		if selfCanCreate && peerCanLoad && directionAllows(dir, desired, true) {
			out = append(out, candidate{ch: ch, side: sideCreate})
		}

		selfCanLoad := selfSide == channel.SideLoader || selfSide == channel.SideBoth
		peerCanCreate := peerSide == channel.SideCreator || peerSide == channel.SideBoth
		if selfCanLoad && peerCanCreate && directionAllows(dir, desired, false) {
			out = append(out, candidate{ch: ch, side: sideLoad})
		}
	}
	return out
}

// directionAllows implements the per-rule direction check from §4.3 step 3.
// selfCreates distinguishes the create-side rule (dir=CreatorToLoader
// satisfies desired=SEND) from the load-side rule (dir=LoaderToCreator
// satisfies desired=SEND).
func directionAllows(dir channel.LinkDirection, desired channel.LinkType, selfCreates bool) bool {
	if dir == channel.BiDi {
		return true
	}
	if selfCreates {
		switch {
		case desired == channel.LinkSend && dir == channel.CreatorToLoader:
			return true
		case desired == channel.LinkRecv && dir == channel.LoaderToCreator:
			return true
		}
		return false
	}
	switch {
	case desired == channel.LinkSend && dir == channel.LoaderToCreator:
		return true
	case desired == channel.LinkRecv && dir == channel.CreatorToLoader:
		return true
	}
	return false
}

func intersectByGID(a, b []candidate) []candidate {
	bGIDs := make(map[string]bool, len(b))
	for _, c := range b {
		bGIDs[c.ch.GID] = true
	}
	var out []candidate
	for _, c := range a {
		if bGIDs[c.ch.GID] {
			out = append(out, c)
		}
	}
	return out
}
