// Package direct implements the §4.5 direct TCP channel: a bound listener
// per receive link with one goroutine per accepted connection, and a
// no-reuse send path that opens a fresh connection for every package.
package direct

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/netutil"

	"github.com/racecore/overlay-nm/pkg/sdk"
)

// maxPendingPerListener bounds the number of simultaneously-accepted
// connections per receive link, the same accept-loop-per-goroutine shape as
// the teacher's dmsg server but capped against a slow or hostile sender
// opening connections faster than they drain.
const maxPendingPerListener = 32

// ErrPortPoolExhausted is returned by OpenRecv once the configured port
// range has been fully allocated.
var ErrPortPoolExhausted = errors.New("direct: port pool exhausted")

// Address is the §4.5 link address: a bare JSON {hostname, port}.
type Address struct {
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
}

func (a Address) dialAddr() string {
	return fmt.Sprintf("%s:%d", a.Hostname, a.Port)
}

// Config wires the channel's callbacks back into the owning plugin.
type Config struct {
	// Hostname is advertised in addresses handed out by OpenRecv.
	Hostname string
	// BasePort is the first port the pool allocates; defaults to 10000.
	BasePort int
	// MaxPort bounds the pool; 0 means unbounded.
	MaxPort int
	// Deliver receives the raw bytes read off an accepted connection — the
	// caller seals them into a sealed package and hands them to the Router.
	Deliver func(pkg []byte)
	// OnConnectionStatus reports recv-side connection open/close, mirroring
	// §6.2's onConnectionStatusChanged.
	OnConnectionStatus func(connID uuid.UUID, status sdk.ConnStatus)
}

type recvLink struct {
	ln   net.Listener
	done chan struct{}
}

// Channel is one direct-TCP channel instance: a port-pool allocator plus
// the set of currently bound receive links.
type Channel struct {
	cfg Config

	mu        sync.Mutex
	nextPort  int
	recvLinks map[uuid.UUID]*recvLink
}

// New builds a Channel from cfg.
func New(cfg Config) *Channel {
	if cfg.BasePort == 0 {
		cfg.BasePort = 10000
	}
	return &Channel{
		cfg:       cfg,
		nextPort:  cfg.BasePort,
		recvLinks: make(map[uuid.UUID]*recvLink),
	}
}

// OpenRecv allocates the next free port from the pool, binds a listener on
// it, and starts the accept loop on its own goroutine, per §4.5's "bind
// TCP, start accept loop on its own thread."
func (c *Channel) OpenRecv(linkID uuid.UUID) (Address, error) {
	c.mu.Lock()
	if c.cfg.MaxPort > 0 && c.nextPort > c.cfg.MaxPort {
		c.mu.Unlock()
		return Address{}, ErrPortPoolExhausted
	}
	port := c.nextPort
	c.nextPort++
	c.mu.Unlock()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return Address{}, fmt.Errorf("direct: listen on port %d: %w", port, err)
	}
	limited := netutil.LimitListener(ln, maxPendingPerListener)

	rl := &recvLink{ln: limited, done: make(chan struct{})}
	c.mu.Lock()
	c.recvLinks[linkID] = rl
	c.mu.Unlock()

	go c.acceptLoop(rl)

	return Address{Hostname: c.cfg.Hostname, Port: port}, nil
}

// CloseRecv stops accepting on linkID's listener and closes the socket.
func (c *Channel) CloseRecv(linkID uuid.UUID) error {
	c.mu.Lock()
	rl, ok := c.recvLinks[linkID]
	delete(c.recvLinks, linkID)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	close(rl.done)
	return rl.ln.Close()
}

func (c *Channel) acceptLoop(rl *recvLink) {
	for {
		conn, err := rl.ln.Accept()
		if err != nil {
			select {
			case <-rl.done:
			default:
				log.Warningf("direct: accept loop exiting: %v", err)
			}
			return
		}
		go c.handleConn(conn)
	}
}

// handleConn reads until EOF, delivers the bytes as a single package, and
// closes the socket — §4.5's "read until EOF into a growable buffer;
// package the bytes ... deliver to Router. Close the socket."
func (c *Channel) handleConn(conn net.Conn) {
	connID := uuid.New()
	if c.cfg.OnConnectionStatus != nil {
		c.cfg.OnConnectionStatus(connID, sdk.ConnectionOpen)
	}
	defer func() {
		conn.Close()
		if c.cfg.OnConnectionStatus != nil {
			c.cfg.OnConnectionStatus(connID, sdk.ConnectionClosed)
		}
	}()

	data, err := io.ReadAll(conn)
	if err != nil {
		log.Warningf("direct: read from accepted connection: %v", err)
		return
	}
	if len(data) == 0 {
		return
	}
	if c.cfg.Deliver != nil {
		c.cfg.Deliver(data)
	}
}

// Send opens a fresh connection to addr, writes pkg in full, half-closes
// the write side, and closes — no socket reuse, per §4.5.
func (c *Channel) Send(addr Address, pkg []byte) sdk.PackageStatus {
	conn, err := net.Dial("tcp", addr.dialAddr())
	if err != nil {
		log.Warningf("direct: dial %s: %v", addr.dialAddr(), err)
		return sdk.PackageFailedGeneric
	}
	defer conn.Close()

	if _, err := conn.Write(pkg); err != nil {
		log.Warningf("direct: write to %s: %v", addr.dialAddr(), err)
		return sdk.PackageFailedGeneric
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	return sdk.PackageSent
}
