// SPDX-License-Identifier: GPL-3.0-or-later

package shard

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/radiuscore/radiuscore"
	"github.com/radiuscore/radiuscore/internal/addr"
	"github.com/radiuscore/radiuscore/internal/clientreg"
)

// Sharder implements spec.md §4.3's shard/inject/close operations for a
// single parent Client. The parent's connection hash is guarded by a
// single mutex (Sharder.mu); children never create peer connections and
// never reach back into the parent's pending heap.
type Sharder struct {
	mu sync.Mutex

	Parent *clientreg.Client
	Dial   radiuscore.Func[netip.AddrPort, net.Conn]
	Logger radiuscore.SLogger
	Now    func() time.Time

	LocalAddr netip.AddrPort

	MaxConnections int
}

// NewSharder constructs a Sharder bound to client, dialing children with
// dial (ordinarily a [radiuscore.ConnectFunc] wrapped to this package's
// [radiuscore.Func] shape) and logging with logger.
func NewSharder(client *clientreg.Client, maxConnections int, dial radiuscore.Func[netip.AddrPort, net.Conn], logger radiuscore.SLogger) *Sharder {
	return &Sharder{
		Parent:         client,
		Dial:           dial,
		Logger:         logger,
		Now:            time.Now,
		MaxConnections: maxConnections,
	}
}

// Shard resolves a (addr.Address) to its child [Connection], creating one
// on first sight if the parent is under max_connections, or reusing an
// existing live one. A dead existing child is reaped and replaced.
func (s *Sharder) Shard(ctx context.Context, a addr.Address) (*Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key(a)
	if existing, ok := s.Parent.Connection(key); ok {
		conn := existing.(*Connection)
		if !conn.Dead() {
			return conn, nil
		}
		conn.Close()
		s.Parent.RemoveConnection(key)
	}

	if s.Parent.ConnectionCount() >= s.MaxConnections {
		s.logShardFailed(a, ErrQuotaExceeded)
		return nil, ErrQuotaExceeded
	}

	netConn, err := s.Dial.Call(ctx, a.Src)
	if err != nil {
		s.logShardFailed(a, err)
		return nil, err
	}

	conn := &Connection{
		Parent: s.Parent,
		Clone:  s.Parent.Clone(),
		Addr:   a,
		Conn:   netConn,
		inbox:  make(chan []byte, inboxDepth),
	}
	s.Parent.AddConnection(key, conn)
	s.logShardCreated(a)
	return conn, nil
}

// Inject enqueues packet onto conn's event-loop inbox. A dead connection
// or a saturated inbox both result in the packet being dropped by the
// caller (spec.md §4.3's failure model logs and drops rather than
// blocking the network thread).
func (s *Sharder) Inject(conn *Connection, packet []byte) error {
	if conn.Dead() {
		return ErrConnectionDead
	}
	select {
	case conn.inbox <- packet:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close drains and deallocates conn, removing it from the parent's
// connection hash.
func (s *Sharder) Close(conn *Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Parent.RemoveConnection(Key(conn.Addr))
	return conn.Close()
}

// Reap closes and removes every child that has reported itself dead.
func (s *Sharder) Reap() {
	s.Parent.ReapDeadConnections()
}

func (s *Sharder) logShardCreated(a addr.Address) {
	if s.Logger == nil {
		return
	}
	s.Logger.Debug("shardCreated",
		slog.String("addr", a.String()),
		slog.Time("t", s.now()),
	)
}

func (s *Sharder) logShardFailed(a addr.Address, err error) {
	if s.Logger == nil {
		return
	}
	s.Logger.Info("shardFailed",
		slog.String("addr", a.String()),
		slog.Any("err", err),
		slog.Time("t", s.now()),
	)
}

func (s *Sharder) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
