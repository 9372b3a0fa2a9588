// SPDX-License-Identifier: GPL-3.0-or-later

package clientreg

import (
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/gaissmai/bart"
)

// Bounds protect the registry from unbounded growth by a misbehaving or
// malicious peer (spec.md §4.2, §6's max_clients/max_pending_clients).
type Bounds struct {
	MaxClients        int
	MaxPendingClients int
	MaxPendingPackets int
	MaxConnections    int
}

// DefaultBounds mirrors the conservative defaults original_source ships
// for proto_radius_udp dynamic client discovery.
var DefaultBounds = Bounds{
	MaxClients:        256,
	MaxPendingClients: 256,
	MaxPendingPackets: 256,
	MaxConnections:    1024,
}

var (
	// ErrClientLimitExceeded is returned when MaxClients would be exceeded
	// by promoting or creating a new client record.
	ErrClientLimitExceeded = errors.New("clientreg: client limit exceeded")

	// ErrPendingLimitExceeded is returned when MaxPendingClients would be
	// exceeded by creating a new Pending client.
	ErrPendingLimitExceeded = errors.New("clientreg: pending client limit exceeded")

	// ErrPendingPacketsFull is returned when a Pending client's packet
	// queue has reached MaxPendingPackets.
	ErrPendingPacketsFull = errors.New("clientreg: pending client's packet queue is full")

	// ErrNoDynamicPolicy is returned when no administrator-configured
	// dynamic_clients network matches a source IP with no existing client.
	ErrNoDynamicPolicy = errors.New("clientreg: no client and no dynamic_clients network matches")
)

// dynamicPolicy is an administrator-configured network that is allowed to
// lazily define clients (spec.md §6's `dynamic_clients` listener option).
type dynamicPolicy struct {
	network     netip.Prefix
	idleTimeout time.Duration
}

// Registry is the longest-prefix-match client lookup table of spec.md
// §4.2. Static clients are inserted once at startup from configuration;
// Pending/Dynamic clients are inserted and removed as the state machine
// runs. The lookup trie is backed by github.com/gaissmai/bart, a
// balanced array routing table offering O(1)-ish LPM lookups, which
// replaces a hand-rolled radix tree for this purpose.
type Registry struct {
	mu sync.Mutex

	clients  bart.Table[*Client]
	policies bart.Table[*dynamicPolicy]

	numClients        int
	numPendingClients int

	Bounds Bounds
	Now    func() time.Time
}

// NewRegistry constructs an empty Registry with the given bounds.
func NewRegistry(bounds Bounds) *Registry {
	return &Registry{
		Bounds: bounds,
		Now:    time.Now,
	}
}

// AddStatic inserts a preconfigured Static client at its network prefix.
// Static clients are exempt from MaxClients (spec.md §4.2: operator
// configuration is trusted, only lazily-discovered clients are bounded).
func (r *Registry) AddStatic(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients.Insert(c.Network(), c)
	r.numClients++
}

// AllowDynamic registers network as eligible for lazy client discovery,
// with idleTimeout applied to clients created under it (spec.md §6).
func (r *Registry) AllowDynamic(network netip.Prefix, idleTimeout time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies.Insert(network, &dynamicPolicy{network: network, idleTimeout: idleTimeout})
}

// Find resolves src to the most specific matching Client, or reports
// that none exists yet.
func (r *Registry) Find(src netip.Addr) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients.Lookup(src)
	return c, ok
}

// CreatePending creates and registers a Pending client for src if an
// administrator dynamic_clients network matches and bounds allow it
// (spec.md §4.2's Pending-creation path). The returned Client's Network
// is the matched administrator network, not src's own /32 or /128 — the
// later PromotePending call validates the accepted record's family and
// prefix against it.
func (r *Registry) CreatePending(src netip.Addr) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients.Lookup(src); ok {
		return c, nil
	}

	policy, ok := r.policies.Lookup(src)
	if !ok {
		return nil, ErrNoDynamicPolicy
	}
	if r.numClients >= r.Bounds.MaxClients {
		return nil, ErrClientLimitExceeded
	}
	if r.numPendingClients >= r.Bounds.MaxPendingClients {
		return nil, ErrPendingLimitExceeded
	}

	c := newPendingClient(src.String(), policy.network, r.now())
	c.idleTimeout = policy.idleTimeout

	bits := src.BitLen()
	pfx := netip.PrefixFrom(src, bits)
	r.clients.Insert(pfx, c)
	r.numClients++
	r.numPendingClients++
	return c, nil
}

// PromotePending transitions a Pending client to Dynamic (accepted) or
// NAK (rejected), per the dynamic-client definition contract of spec.md
// §4.2: the defining policy returns a 0x01 NAK sentinel, a 0x00 retry
// sentinel (caller should leave the client Pending and retry later), or
// a serialized accepted record whose family/prefix must match network.
func (r *Registry) PromotePending(c *Client, accept bool, network netip.Prefix, secret []byte, flags Flags) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePending {
		return errors.New("clientreg: client is not Pending")
	}

	r.numPendingClients--

	if !accept {
		c.state = StateNAK
		c.nakUntil = r.now().Add(30 * time.Second)
		return nil
	}

	if network.Addr().Is4() != c.network.Addr().Is4() {
		c.state = StateNAK
		return errors.New("clientreg: accepted record address family mismatch")
	}
	if !network.Contains(c.network.Addr()) {
		c.state = StateNAK
		return errors.New("clientreg: accepted record network does not cover the pending source")
	}

	c.state = StateDynamic
	c.network = network
	c.secret = secret
	c.flags = flags
	return nil
}

// ApplyDefineResponse drives [Registry.PromotePending] from a decoded
// [DefineResponse] (spec.md §4.2's three-way contract). A [DefineRetry]
// outcome leaves c Pending and untouched — the caller is expected to
// requeue the defining packet and try again later, it is not an error.
func (r *Registry) ApplyDefineResponse(c *Client, resp DefineResponse) error {
	switch resp.Outcome {
	case DefineRetry:
		return nil
	case DefineReject:
		return r.PromotePending(c, false, netip.Prefix{}, nil, Flags{})
	case DefineAccept:
		return r.PromotePending(c, true, resp.Network, resp.Secret, resp.Flags)
	default:
		return errors.New("clientreg: unknown define outcome")
	}
}

// MarkNAK transitions a client directly into the NAK state (e.g. a
// static client whose secret verification failed administratively).
func (r *Registry) MarkNAK(c *Client, backoff time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateNAK
	c.nakUntil = r.now().Add(backoff)
}

// NAKExpired reports whether a NAK client's backoff window has elapsed
// and it should be retried as Pending again.
func (r *Registry) NAKExpired(c *Client) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateNAK && !r.now().Before(c.nakUntil)
}

// TimerTick runs one periodic maintenance pass: idle Dynamic clients are
// removed from the trie and their counters released (spec.md §4.2's
// Dynamic -> ∅ transition), and NAK clients whose backoff window has
// elapsed are likewise evicted (spec.md §4.2's "NAK lifetime expiry (NAK
// -> ∅)"), so the next packet from that source creates a fresh Pending
// client rather than being dropped forever. Callers invoke this from a
// single maintenance goroutine; it is not safe to call concurrently
// with itself.
func (r *Registry) TimerTick() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var toDelete []netip.Prefix
	var victims []*Client
	r.clients.All()(func(pfx netip.Prefix, c *Client) bool {
		c.mu.Lock()
		nakExpired := c.state == StateNAK && !now.Before(c.nakUntil)
		c.mu.Unlock()
		if c.Idle(now) || nakExpired {
			toDelete = append(toDelete, pfx)
			victims = append(victims, c)
		}
		return true
	})
	for _, pfx := range toDelete {
		r.clients.Delete(pfx)
		r.numClients--
	}
	return victims
}

// Len returns the number of registered clients (Static + Pending +
// Dynamic + Connected + NAK).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.numClients
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
