// Package indirect implements the §4.6 indirect HTTP-whiteboard channel: a
// shared hashtag on a remote append-only store stands in for the transport,
// with posts for sends and a poll loop for receives.
package indirect

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/racecore/overlay-nm/pkg/sdk"
	"github.com/racecore/overlay-nm/pkg/whiteboard"
)

// maxConsecutiveErrors bounds how many back-to-back poll failures a
// receive loop tolerates before closing the connection, per §4.6's "on
// persistent error, close the connection."
const maxConsecutiveErrors = 5

// Address is the §4.6 link address.
type Address struct {
	Hostname         string `json:"hostname"`
	Port             int    `json:"port"`
	Hashtag          string `json:"hashtag"`
	CheckFrequencyMs int    `json:"checkFrequency"`
}

func (a Address) baseURL() string {
	return "http://" + a.Hostname + ":" + strconv.Itoa(a.Port)
}

func (a Address) checkFrequency() time.Duration {
	ms := a.CheckFrequencyMs
	if ms <= 0 {
		ms = 1000
	}
	return time.Duration(ms) * time.Millisecond
}

// Config wires the channel's callbacks back into the owning plugin.
type Config struct {
	// Deliver receives each decoded entry read off the shared hashtag.
	Deliver func(pkg []byte)
	// OnConnectionStatus reports recv-side connection open/close.
	OnConnectionStatus func(connID uuid.UUID, status sdk.ConnStatus)
	// NewClient builds the whiteboard REST client for a link's address.
	// Tests override this to point at an httptest.Server; nil means
	// whiteboard.New(addr.baseURL()).
	NewClient func(addr Address) *whiteboard.Client
}

type recvConn struct {
	done chan struct{}
}

// Channel is one indirect-whiteboard channel instance: a registry of
// active poll loops, one per open receive connection, keyed like the
// teacher's per-peer link map (pkg/skymsg/client.go) but by connection id.
type Channel struct {
	cfg Config

	mu    sync.Mutex
	conns map[uuid.UUID]*recvConn
}

// New builds a Channel from cfg.
func New(cfg Config) *Channel {
	return &Channel{cfg: cfg, conns: make(map[uuid.UUID]*recvConn)}
}

func (c *Channel) client(addr Address) *whiteboard.Client {
	if c.cfg.NewClient != nil {
		return c.cfg.NewClient(addr)
	}
	return whiteboard.New(addr.baseURL())
}

// Send posts pkg under addr's hashtag, reporting PACKAGE_SENT on a
// confirmed index or PACKAGE_FAILED_GENERIC otherwise.
func (c *Channel) Send(addr Address, pkg []byte) sdk.PackageStatus {
	wb := c.client(addr)
	if _, _, err := wb.Post(addr.Hashtag, pkg); err != nil {
		log.Warningf("indirect: post to %s/%s: %v", addr.baseURL(), addr.Hashtag, err)
		return sdk.PackageFailedGeneric
	}
	return sdk.PackageSent
}

// OpenRecv fetches the current latest index and starts polling the shared
// hashtag on its own goroutine.
func (c *Channel) OpenRecv(connID uuid.UUID, addr Address) error {
	wb := c.client(addr)
	latest, err := wb.Latest(addr.Hashtag)
	if err != nil {
		return err
	}

	rc := &recvConn{done: make(chan struct{})}
	c.mu.Lock()
	c.conns[connID] = rc
	c.mu.Unlock()

	if c.cfg.OnConnectionStatus != nil {
		c.cfg.OnConnectionStatus(connID, sdk.ConnectionOpen)
	}

	go c.pollLoop(connID, rc, wb, addr, latest)
	return nil
}

// CloseRecv stops the poll loop for connID.
func (c *Channel) CloseRecv(connID uuid.UUID) {
	c.mu.Lock()
	rc, ok := c.conns[connID]
	delete(c.conns, connID)
	c.mu.Unlock()
	if ok {
		close(rc.done)
	}
}

func (c *Channel) pollLoop(connID uuid.UUID, rc *recvConn, wb *whiteboard.Client, addr Address, latest int) {
	consecutiveErrs := 0
	for {
		select {
		case <-rc.done:
			return
		default:
		}

		// latest is the highest index already delivered, so the unread
		// range starts one past it.
		data, length, _, err := wb.GetRange(addr.Hashtag, latest+1, -1)
		if err != nil {
			consecutiveErrs++
			if consecutiveErrs >= maxConsecutiveErrors {
				log.Warningf("indirect: closing %s after %d consecutive poll errors: %v", addr.Hashtag, consecutiveErrs, err)
				c.closeAndReport(connID)
				return
			}
			if !c.sleepOrDone(rc, addr.checkFrequency()) {
				return
			}
			continue
		}
		consecutiveErrs = 0

		newLatest, lerr := wb.Latest(addr.Hashtag)
		if lerr == nil {
			expected := newLatest - latest
			if expected < 0 {
				expected = 0
			}
			if length < expected {
				log.Warningf("indirect: lost %d entries on hashtag %s", expected-length, addr.Hashtag)
			}
			latest = newLatest
		} else {
			latest += length
		}

		for _, raw := range data {
			if c.cfg.Deliver != nil {
				c.cfg.Deliver(raw)
			}
		}

		if !c.sleepOrDone(rc, addr.checkFrequency()) {
			return
		}
	}
}

func (c *Channel) sleepOrDone(rc *recvConn, d time.Duration) bool {
	select {
	case <-rc.done:
		return false
	case <-time.After(d):
		return true
	}
}

func (c *Channel) closeAndReport(connID uuid.UUID) {
	c.mu.Lock()
	delete(c.conns, connID)
	c.mu.Unlock()
	if c.cfg.OnConnectionStatus != nil {
		c.cfg.OnConnectionStatus(connID, sdk.ConnectionClosed)
	}
}
