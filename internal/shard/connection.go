// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: original_source/src/modules/proto_radius/proto_radius_udp.c's
// per-connection fr_io_connection_t (clone of the parent client record, own
// socket, "dead"/"paused" flags) and on bassosimone-nop's ConnectFunc/
// ObserveConnFunc composition for dialing and instrumenting a net.Conn.

// Package shard implements the Connection Sharder of spec.md §4.3: when a
// client enables connected sockets, incoming packets are distributed
// across per-4-tuple child connections, each with its own event loop.
package shard

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/radiuscore/radiuscore/internal/addr"
	"github.com/radiuscore/radiuscore/internal/clientreg"
)

var (
	// ErrQuotaExceeded is returned by [Sharder.Shard] when the parent
	// client already has max_connections children.
	ErrQuotaExceeded = errors.New("shard: connection quota exceeded")

	// ErrConnectionDead is returned by [Sharder.Inject] for a child that
	// has reported itself dead but has not yet been reaped.
	ErrConnectionDead = errors.New("shard: connection is dead")

	// ErrQueueFull is returned by [Sharder.Inject] when a child's inbox is
	// saturated; the caller is expected to drop the packet and log it.
	ErrQueueFull = errors.New("shard: connection inbox is full")
)

// inboxDepth bounds each Connection's event-loop queue; a slow consumer
// sheds load rather than growing memory without bound.
const inboxDepth = 64

// Connection is a per-4-tuple child socket spawned from a parent Client
// that has use_connected set (spec.md §3's Connection entity). It
// satisfies [clientreg.ConnRef] so the parent can track and reap it
// without clientreg depending on this package.
type Connection struct {
	Parent *clientreg.Client
	Clone  *clientreg.Client // cloned record this connection operates under
	Addr   addr.Address

	Conn net.Conn

	dead   atomic.Bool
	paused atomic.Bool

	inbox     chan []byte
	closeOnce sync.Once
	closeErr  error
}

var _ clientreg.ConnRef = (*Connection)(nil)

// Dead implements [clientreg.ConnRef]. A child reports deadness rather
// than being killed from outside: the parent's network layer discovers
// it on the next packet and treats it as a -1 return, prompting socket
// closure at its own convenience (spec.md §4.3's failure model).
func (c *Connection) Dead() bool { return c.dead.Load() }

// MarkDead flags the connection dead; called by the child's own event
// loop when its socket reports an unrecoverable error.
func (c *Connection) MarkDead() { c.dead.Store(true) }

// Paused reports whether delivery to this connection is suspended.
func (c *Connection) Paused() bool { return c.paused.Load() }

// SetPaused suspends or resumes delivery without tearing the socket down.
func (c *Connection) SetPaused(v bool) { c.paused.Store(v) }

// Inbox returns the channel the connection's own event-loop goroutine
// should range over to receive injected packets.
func (c *Connection) Inbox() <-chan []byte { return c.inbox }

// Close implements [clientreg.ConnRef]: drains nothing (the event loop
// goroutine is expected to exit on seeing the inbox closed) and closes
// the underlying socket exactly once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.dead.Store(true)
		close(c.inbox)
		if c.Conn != nil {
			c.closeErr = c.Conn.Close()
		}
	})
	return c.closeErr
}

// Key returns the connection's hash key: the full 4-tuple plus interface
// index (spec.md §4.3: "hash by full 4-tuple + interface index").
func Key(a addr.Address) string {
	return a.Src.String() + ">" + a.Dst.String() + "@" + strconv.Itoa(a.Iface)
}

// DialFunc is the shape of a dialer for a child connected socket for addr
// a. [Sharder] does not use it: it dials through its Dial field, a
// radiuscore.Func[netip.AddrPort, net.Conn].
type DialFunc func(ctx context.Context, laddr netip.AddrPort, a addr.Address) (net.Conn, error)
