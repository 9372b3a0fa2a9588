// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: original_source/src/modules/proto_radius/proto_radius_udp.c's
// fr_client_t/dynamic-client lifecycle (pending -> connected/denied ->
// idle timeout) and on bassosimone-nop's Config/SLogger wiring pattern
// for per-component structured logging.

// Package clientreg implements the Client Registry & State Machine of
// spec.md §4.2: a longest-prefix-match lookup from source IP to a client
// record, the {Static, Pending, Dynamic, Connected, NAK} state machine,
// and the bounds that protect the registry from unbounded growth.
package clientreg

import (
	"net/netip"
	"sync"
	"time"

	"github.com/radiuscore/radiuscore/internal/tracking"
)

// State is a Client's position in the spec.md §4.2 state machine.
type State int

const (
	StateStatic State = iota
	StatePending
	StateDynamic
	StateConnected
	StateNAK
)

func (s State) String() string {
	switch s {
	case StateStatic:
		return "static"
	case StatePending:
		return "pending"
	case StateDynamic:
		return "dynamic"
	case StateConnected:
		return "connected"
	case StateNAK:
		return "nak"
	default:
		return "unknown"
	}
}

// Flags are the per-client behavior bits of spec.md §3.
type Flags struct {
	UseConnected                bool
	Dynamic                     bool
	Active                      bool
	RequireMessageAuthenticator bool
}

// ConnRef is the minimal surface a sharded Connection must expose so
// Client can track and close its children without clientreg importing
// internal/shard (which in turn references Client as its parent).
type ConnRef interface {
	Dead() bool
	Close() error
}

// Client is a RADIUS client record (spec.md §3). A Client in Connected
// state has exactly one Connection; a Client with UseConnected but
// state Static/Dynamic may have many, hashed by full 4-tuple.
type Client struct {
	mu sync.Mutex

	id      string
	state   State
	network netip.Prefix
	secret  []byte
	flags   Flags

	packetCount int // excludes packets still in Pending heap

	Pending  tracking.PendingHeap
	Tracking *tracking.Table

	connMu      sync.Mutex
	connections map[string]ConnRef

	readyToDelete bool
	idleTimeout   time.Duration
	lastActivity  time.Time
	definedAt     time.Time
	nakUntil      time.Time

	cleanupTimer *time.Timer

	defining bool // true while the single defining request is in flight
}

// NewStaticClient constructs a Client in the Static state from
// configuration; Static clients never idle-expire (spec.md §4.2).
func NewStaticClient(id string, network netip.Prefix, secret []byte, flags Flags) *Client {
	return &Client{
		id:          id,
		state:       StateStatic,
		network:     network,
		secret:      secret,
		flags:       flags,
		connections: make(map[string]ConnRef),
		Tracking:    tracking.NewTable(0),
		lastActivity: time.Now(),
	}
}

// newPendingClient constructs a Client in the Pending state, created on
// first packet from an allowed dynamic-clients network (spec.md §4.2).
func newPendingClient(id string, network netip.Prefix, now time.Time) *Client {
	return &Client{
		id:          id,
		state:       StatePending,
		network:     network,
		connections: make(map[string]ConnRef),
		Tracking:    tracking.NewTable(0),
		definedAt:   now,
		lastActivity: now,
		flags:       Flags{Dynamic: true},
	}
}

// ClientID implements [tracking.ClientRef].
func (c *Client) ClientID() string { return c.id }

// Clone returns a fresh Client carrying the same identity, network,
// secret and flags, for a [shard.Connection] to operate under (spec.md
// §3's "cloned Client record" on every Connection). The clone gets its
// own mutexes, tracking table and connection map rather than sharing
// the parent's.
func (c *Client) Clone() *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	clone := &Client{
		id:           c.id,
		state:        StateConnected,
		network:      c.network,
		secret:       c.secret,
		flags:        c.flags,
		connections:  make(map[string]ConnRef),
		Tracking:     tracking.NewTable(c.Tracking.CleanupDelay),
		idleTimeout:  c.idleTimeout,
		lastActivity: time.Now(),
	}
	return clone
}

// State returns the client's current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Network returns the client's configured or matched source network.
func (c *Client) Network() netip.Prefix {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.network
}

// Secret returns the shared secret used for HMAC/encryption.
func (c *Client) Secret() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.secret
}

// Flags returns the client's behavior flags.
func (c *Client) Flags() Flags {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags
}

// IncPacket increments the in-flight packet counter (packets no longer
// sitting in the Pending heap, spec.md §3's invariant on this field).
func (c *Client) IncPacket() {
	c.mu.Lock()
	c.packetCount++
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// DecPacket decrements the in-flight packet counter.
func (c *Client) DecPacket() {
	c.mu.Lock()
	if c.packetCount > 0 {
		c.packetCount--
	}
	c.mu.Unlock()
}

// PacketCount returns the current in-flight packet count.
func (c *Client) PacketCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.packetCount
}

// AddConnection registers a connected-socket child keyed by its 4-tuple
// string, guarded by this client's own mutex (spec.md §4.3, §5).
func (c *Client) AddConnection(key string, conn ConnRef) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.connections[key] = conn
}

// RemoveConnection deregisters a connected-socket child.
func (c *Client) RemoveConnection(key string) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	delete(c.connections, key)
}

// Connection looks up a connected-socket child by key.
func (c *Client) Connection(key string) (ConnRef, bool) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	conn, ok := c.connections[key]
	return conn, ok
}

// ConnectionCount returns the number of connected-socket children.
func (c *Client) ConnectionCount() int {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return len(c.connections)
}

// ReapDeadConnections removes and closes children that report Dead().
func (c *Client) ReapDeadConnections() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	for key, conn := range c.connections {
		if conn.Dead() {
			conn.Close()
			delete(c.connections, key)
		}
	}
}

// PushPending enqueues pp on the client's pending-packet heap, owned
// exclusively by the master network thread (spec.md §5) and therefore
// unguarded by c.mu. Callers must check [Client.PendingLen] against
// max_pending_packets before calling this (spec.md §4.2's bound is
// enforced at the caller, which drops rather than queues on overflow).
func (c *Client) PushPending(pp *tracking.PendingPacket) {
	tracking.PushPacket(&c.Pending, pp)
}

// PopPending dequeues the next live pending packet, discarding any
// superseded ones encountered along the way (spec.md §3's PendingPacket
// invariant).
func (c *Client) PopPending() *tracking.PendingPacket {
	return tracking.PopLive(&c.Pending)
}

// PendingLen returns the number of packets currently queued.
func (c *Client) PendingLen() int {
	return c.Pending.Len()
}

// BeginDefining reports whether this call is the one to run the single
// defining request for a Pending client, atomically claiming the flag if
// so (spec.md §4.2: "a single 'defining' request runs through the
// policy"). Only the master network thread calls this, so c.mu suffices
// for the check-and-set.
func (c *Client) BeginDefining() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.defining {
		return false
	}
	c.defining = true
	return true
}

// EndDefining releases the defining flag, allowing a later packet to
// trigger a fresh defining attempt (e.g. after a retry sentinel).
func (c *Client) EndDefining() {
	c.mu.Lock()
	c.defining = false
	c.mu.Unlock()
}

// Idle reports whether the client has zero outstanding packets and zero
// connections and has been idle for at least idleTimeout — the
// Dynamic -> deleted transition trigger of spec.md §4.2.
func (c *Client) Idle(now time.Time) bool {
	c.mu.Lock()
	state := c.state
	packets := c.packetCount
	last := c.lastActivity
	timeout := c.idleTimeout
	c.mu.Unlock()

	if state != StateDynamic {
		return false
	}
	if packets != 0 || c.ConnectionCount() != 0 {
		return false
	}
	return now.Sub(last) >= timeout
}
