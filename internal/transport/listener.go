// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: original_source/src/modules/proto_radius/proto_radius_udp.c's
// mod_read/mod_write event-loop callbacks (the "network thread" of spec.md
// §5) and on bassosimone-nop's SLogger/ErrClassifier logging shape, reused
// here for single drop and socket-error events; no per-packet start/done
// event pairs are emitted.

// Package transport implements the master UDP I/O path of spec.md §2: the
// network thread that receives datagrams, consults the Address & Tracking
// Table and the Client Registry, shards connected-socket clients, and
// dispatches promoted requests to a [Worker] running the Unlang
// Interpreter.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/radiuscore/radiuscore"
	"github.com/radiuscore/radiuscore/internal/addr"
	"github.com/radiuscore/radiuscore/internal/clientreg"
	"github.com/radiuscore/radiuscore/internal/errclass"
	"github.com/radiuscore/radiuscore/internal/shard"
	"github.com/radiuscore/radiuscore/internal/tracking"
	"github.com/radiuscore/radiuscore/internal/unlang"
	"github.com/radiuscore/radiuscore/internal/wire"
)

// DynamicClientsConfig is the listener's `dynamic_clients { ... }` block
// (spec.md §6).
type DynamicClientsConfig struct {
	Network           netip.Prefix
	MaxClients        int
	MaxPendingClients int
	MaxPendingPackets int
	IdleTimeout       time.Duration
}

// ListenerConfig is the set of per-listener options of spec.md §6.
type ListenerConfig struct {
	// Bind is the ipaddr/ipv4addr/ipv6addr/port tuple to listen on.
	Bind netip.AddrPort

	// Interface optionally restricts the bind to one device (spec.md §6's
	// `interface`). Resolution to an index happens at the caller, which
	// is expected to have already bound correctly; this field is
	// informational for logging.
	Interface string

	// RecvBuff is the SO_RCVBUF value (spec.md §6). Listener does not read
	// it and never calls [PacketConn.SetReadBuffer].
	RecvBuff int

	// CleanupDelay is the Access-Request reply cache lifetime, 0-30s
	// (spec.md §4.1, §6). Listener does not read it: each client's
	// [tracking.Table] keeps the delay it was created with.
	CleanupDelay time.Duration

	// Connected enables per-flow child sockets for clients with
	// use_connected set (spec.md §4.3, §6).
	Connected      bool
	MaxConnections int

	// DynamicClients enables lazy client discovery, nil to disable.
	DynamicClients *DynamicClientsConfig

	// Priorities overrides [DefaultPriority] per packet code.
	Priorities PriorityTable

	// AllowedCodes restricts which request codes are accepted; a zero
	// value falls back to [DefaultAllowedCodes].
	AllowedCodes map[wire.Code]bool

	// RequireMessageAuthenticator is forwarded to [wire.Codec.Decode].
	RequireMessageAuthenticator bool

	// MaxProcessingTime bounds how long a [Worker.Process] call may run
	// before the network thread synthesizes a protocol-error reply
	// (spec.md §5, §7 error kind 6). Zero disables the bound.
	MaxProcessingTime time.Duration

	// MaxPendingGlobal is the bound for a master pending-clients heap
	// (spec.md §5). Listener does not read it and keeps no such heap;
	// pending packets are queued per client only.
	MaxPendingGlobal int
}

// DefaultAllowedCodes is the listener's default accepted request-code
// set (spec.md §6).
func DefaultAllowedCodes() map[wire.Code]bool {
	return map[wire.Code]bool{
		wire.CodeAccessRequest:     true,
		wire.CodeAccountingRequest: true,
		wire.CodeCoARequest:        true,
		wire.CodeDisconnectRequest: true,
		wire.CodeStatusServer:      true,
	}
}

// Listener is the master network thread of spec.md §5: it owns the
// socket, the client trie, and every tracking table and timer reachable
// from it, and never blocks on policy. Exactly one goroutine may run
// [Listener.Serve] at a time.
type Listener struct {
	Config   ListenerConfig
	Codec    wire.Codec
	Registry *clientreg.Registry
	Worker   Worker
	Logger   radiuscore.SLogger
	Now      func() time.Time

	// ChildDial dials a connected-socket child's outbound pseudo-dial
	// (spec.md §4.3); defaults to [radiuscore.ConnectFunc] over UDP.
	ChildDial radiuscore.Func[netip.AddrPort, net.Conn]

	conn PacketConn

	// statusServerBypassesPending mirrors io.c's special-casing of
	// Status-Server: it is always answered directly, never queued behind
	// a dynamic client's defining handshake or dropped for a NAK'd one.
	// Hardcoded true, matching the original's unconditional behavior.
	statusServerBypassesPending bool

	sharders  map[string]*shard.Sharder
	sharderMu sync.Mutex

	replies chan replyMsg
	defines chan defineMsg

	closeOnce sync.Once
	done      chan struct{}
}

type replyMsg struct {
	dst   netip.AddrPort
	bytes []byte
}

type defineMsg struct {
	client *clientreg.Client
	src    netip.Addr
	raw    []byte
	err    error
}

// NewListener constructs a Listener bound to an already-open
// [PacketConn] (see [ListenUDP]).
func NewListener(cfg ListenerConfig, conn PacketConn, codec wire.Codec, registry *clientreg.Registry, worker Worker, logger radiuscore.SLogger) *Listener {
	if cfg.AllowedCodes == nil {
		cfg.AllowedCodes = DefaultAllowedCodes()
	}
	if logger == nil {
		logger = radiuscore.DefaultSLogger()
	}
	return &Listener{
		Config:                      cfg,
		Codec:                       codec,
		Registry:                    registry,
		Worker:                      worker,
		Logger:                      logger,
		Now:                         time.Now,
		ChildDial:                   radiuscore.NewConnectFunc(radiuscore.NewConfig(), "udp", logger),
		conn:                        conn,
		statusServerBypassesPending: true,
		sharders:                    make(map[string]*shard.Sharder),
		replies:                     make(chan replyMsg, 256),
		defines:                     make(chan defineMsg, 64),
		done:                        make(chan struct{}),
	}
}

// Close shuts the listener's socket. Safe to call more than once.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.conn.Close()
	})
	return err
}

// Serve runs the network thread's read loop until ctx is cancelled or
// the socket reports a fatal error. It is the single goroutine
// permitted to touch l.Registry, any client's tracking table, or the
// socket (spec.md §5).
func (l *Listener) Serve(ctx context.Context) error {
	readErrs := make(chan error, 1)
	packets := make(chan inboundPacket, 256)
	go l.readLoop(packets, readErrs)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()

		case err := <-readErrs:
			return err

		case pkt := <-packets:
			l.handlePacket(ctx, pkt)

		case rm := <-l.replies:
			if _, err := l.conn.WriteTo(rm.bytes, rm.dst); err != nil {
				l.logSocketWriteError(err)
			}

		case dm := <-l.defines:
			l.handleDefineResult(ctx, dm)

		case now := <-ticker.C:
			l.timerTick(now)
		}
	}
}

type inboundPacket struct {
	data []byte
	a    addr.Address
}

func (l *Listener) readLoop(out chan<- inboundPacket, errs chan<- error) {
	buf := make([]byte, 65535)
	local := l.conn.LocalAddr()
	for {
		n, src, iface, err := l.conn.ReadFrom(buf)
		if err != nil {
			if errclass.Fatal(err) {
				errs <- err
				return
			}
			l.logSocketReadError(err)
			continue
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		select {
		case out <- inboundPacket{data: cp, a: addr.Address{Src: src, Dst: local, Iface: iface}}:
		case <-l.done:
			return
		}
	}
}

// handlePacket implements spec.md §2's data flow for one datagram: find
// or create the owning client, consult its state, and either queue,
// shard, or track-and-dispatch the packet.
func (l *Listener) handlePacket(ctx context.Context, in inboundPacket) {
	now := l.now()

	hdr, err := wire.ParseHeader(in.data)
	if err != nil {
		l.logDrop("malformedPacket", in.a, err)
		return
	}
	if !l.Config.AllowedCodes[hdr.Code] {
		l.logDrop("disallowedCode", in.a, nil)
		return
	}

	client, ok := l.Registry.Find(in.a.SrcIP())
	if !ok {
		client, err = l.Registry.CreatePending(in.a.SrcIP())
		if err != nil {
			l.logDrop("unknownClient", in.a, err)
			return
		}
	}

	bypassState := l.statusServerBypassesPending && hdr.Code == wire.CodeStatusServer

	switch client.State() {
	case clientreg.StateNAK:
		if !bypassState {
			l.logDrop("nakCached", in.a, nil)
			return
		}

	case clientreg.StatePending:
		if !bypassState {
			l.handlePendingPacket(ctx, client, in)
			return
		}
	}

	if l.Config.Connected && client.Flags().UseConnected {
		l.handleConnected(ctx, client, in)
		return
	}

	l.handleTracked(ctx, client, in, hdr, now)
}

// handlePendingPacket implements spec.md §4.2's Pending-state queuing
// and the single-defining-request rule.
func (l *Listener) handlePendingPacket(ctx context.Context, client *clientreg.Client, in inboundPacket) {
	max := l.Config.DynamicClients.maxPendingPackets()
	if client.PendingLen() >= max {
		l.logDrop("pendingQueueFull", in.a, nil)
		return
	}

	decoded, err := l.Codec.Decode(in.data, nil, false)
	if err != nil {
		l.logDrop("malformedPacket", in.a, err)
		return
	}

	pp := tracking.NewPendingPacket(in.data, l.priorityFor(decoded.Code), l.now(), nil)
	client.PushPending(pp)

	if client.BeginDefining() {
		l.startDefine(ctx, client, in.a.SrcIP(), decoded)
	}
}

func (l *Listener) startDefine(ctx context.Context, client *clientreg.Client, src netip.Addr, pkt *wire.Packet) {
	go func() {
		raw, err := l.Worker.Define(ctx, src, pkt)
		select {
		case l.defines <- defineMsg{client: client, src: src, raw: raw, err: err}:
		case <-l.done:
		}
	}()
}

// handleDefineResult applies the defining policy's verdict and, on
// acceptance, flushes the client's queued packets back through
// handlePacket-equivalent processing (spec.md §4.2).
func (l *Listener) handleDefineResult(ctx context.Context, dm defineMsg) {
	client := dm.client
	defer client.EndDefining()

	if dm.err != nil {
		l.Logger.Info("defineError", slog.String("src", dm.src.String()), slog.Any("err", dm.err))
		return
	}

	resp, err := clientreg.DecodeDefineResponse(dm.raw)
	if err != nil {
		l.Logger.Info("defineMalformed", slog.String("src", dm.src.String()), slog.Any("err", err))
		return
	}

	if resp.Outcome == clientreg.DefineRetry {
		// Leave Pending; a later packet (or a retry timer outside this
		// package) will trigger another defining attempt.
		return
	}

	if err := l.Registry.ApplyDefineResponse(client, resp); err != nil {
		l.Logger.Info("definePromoteFailed", slog.String("src", dm.src.String()), slog.Any("err", err))
	}

	if client.State() == clientreg.StateNAK {
		l.drainPending(client)
		return
	}

	// Replay every queued packet now that the client is Dynamic.
	for {
		pp := client.PopPending()
		if pp == nil {
			break
		}
		hdr, err := wire.ParseHeader(pp.Buf)
		if err != nil {
			continue
		}
		l.handleTracked(ctx, client, inboundPacket{data: pp.Buf, a: l.addrFromHeader(dm.src, hdr)}, hdr, l.now())
	}
}

// drainPending discards every packet queued for a client that ended up
// NAK'd, without dispatching them anywhere.
func (l *Listener) drainPending(client *clientreg.Client) {
	for client.PopPending() != nil {
	}
}

// addrFromHeader reconstructs a best-effort Address for a replayed
// pending packet: the destination/interface are not preserved across
// the queue (spec.md §3 tracks them on the original [addr.Address], but
// the Pending heap only preserves the payload and priority), so replies
// to replayed packets use the listener's own bind address as Dst.
func (l *Listener) addrFromHeader(src netip.Addr, hdr wire.Header) addr.Address {
	return addr.Address{Src: netip.AddrPortFrom(src, 0), Dst: l.conn.LocalAddr()}
}

// handleConnected shards a packet to its per-flow child connection
// (spec.md §4.3).
func (l *Listener) handleConnected(ctx context.Context, client *clientreg.Client, in inboundPacket) {
	sh := l.sharderFor(client)
	conn, err := sh.Shard(ctx, in.a)
	if err != nil {
		l.logDrop("shardFailed", in.a, err)
		return
	}
	if err := sh.Inject(conn, in.data); err != nil {
		l.logDrop("shardInjectFailed", in.a, err)
	}
}

func (l *Listener) sharderFor(client *clientreg.Client) *shard.Sharder {
	l.sharderMu.Lock()
	defer l.sharderMu.Unlock()
	if sh, ok := l.sharders[client.ClientID()]; ok {
		return sh
	}
	max := l.Config.MaxConnections
	if max == 0 {
		max = 1024
	}
	sh := shard.NewSharder(client, max, l.ChildDial, l.Logger)
	l.sharders[client.ClientID()] = sh
	return sh
}

// handleTracked implements spec.md §4.1's duplicate/conflict handling
// for a Static/Dynamic (non-sharded) client and dispatches New/Updated/
// Conflicting arrivals to the worker.
func (l *Listener) handleTracked(ctx context.Context, client *clientreg.Client, in inboundPacket, hdr wire.Header, now time.Time) {
	key := tracking.Key{Code: hdr.Code, ID: hdr.Identifier, Addr: in.a}
	outcome, entry := client.Tracking.Insert(client, key, hdr, now)

	switch outcome {
	case tracking.Same:
		if reply, ok := entry.CachedReply(); ok {
			l.sendReply(in.a.Src, reply)
		}
		// No cached reply yet: still in flight, drop silently per
		// spec.md §4.1's retransmission policy.
		return

	case tracking.Error:
		l.logDrop("trackingError", in.a, nil)
		return
	}

	stamp := entry.Stamp()

	requireMA := client.Flags().RequireMessageAuthenticator || l.Config.RequireMessageAuthenticator
	decoded, err := l.Codec.Decode(in.data, client.Secret(), requireMA)
	if err != nil {
		l.logDrop("malformedPacket", in.a, err)
		// The entry Insert just created (or took over) must not linger
		// forever with no reply ever coming: release it now rather than
		// waiting on a cleanup timer that AttachReply would otherwise
		// schedule.
		client.Tracking.Delete(entry, stamp)
		return
	}

	client.IncPacket()
	section := SectionFor(hdr.Code)

	go l.runWorker(ctx, client, entry, stamp, in.a, section, hdr.Code, hdr.Identifier, hdr.Authenticator, decoded)
}

func (l *Listener) runWorker(ctx context.Context, client *clientreg.Client, entry *tracking.Entry, stamp time.Time, a addr.Address, section unlang.Section, code wire.Code, id byte, auth [16]byte, pkt *wire.Packet) {
	defer client.DecPacket()

	wctx := ctx
	var cancel context.CancelFunc
	if l.Config.MaxProcessingTime > 0 {
		wctx, cancel = context.WithTimeout(ctx, l.Config.MaxProcessingTime)
		defer cancel()
	}

	rcode, attrs, err := l.Worker.Process(wctx, section, client, pkt)
	if err != nil {
		if errors.Is(wctx.Err(), context.DeadlineExceeded) {
			// Protocol timeout (spec.md §5, §7 kind 6): synthesize a
			// reject reply so the tracking entry still gets cleaned up.
			rcode = unlang.Fail
		} else {
			l.Logger.Info("workerError", slog.String("addr", a.String()), slog.Any("err", err))
			client.Tracking.Delete(entry, stamp)
			return
		}
	}

	replyCode, ok := l.replyCodeFunc()(code, rcode)
	if !ok {
		client.Tracking.Delete(entry, stamp)
		return
	}

	reply, err := l.Codec.Encode(replyCode, id, auth, client.Secret(), attrs)
	if err != nil {
		l.Logger.Info("encodeError", slog.String("addr", a.String()), slog.Any("err", err))
		client.Tracking.Delete(entry, stamp)
		return
	}

	if client.Tracking.AttachReply(entry, stamp, reply, l.now()) {
		l.sendReply(a.Src, reply)
	}
	// If AttachReply returned false, this worker's request was
	// superseded by a conflicting arrival (spec.md §4.1's Conflicting
	// outcome, Testable Property 2): the reply is discarded, never
	// written to the wire.
}

func (l *Listener) sendReply(dst netip.AddrPort, reply []byte) {
	select {
	case l.replies <- replyMsg{dst: dst, bytes: reply}:
	case <-l.done:
	}
}

func (l *Listener) timerTick(now time.Time) {
	for _, c := range l.Registry.TimerTick() {
		l.sharderMu.Lock()
		delete(l.sharders, c.ClientID())
		l.sharderMu.Unlock()
	}
}

func (l *Listener) priorityFor(code wire.Code) tracking.Priority {
	return l.Config.Priorities.Resolve(code)
}

func (l *Listener) replyCodeFunc() ReplyCodeFunc {
	return DefaultReplyCode
}

func (l *Listener) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Listener) logDrop(reason string, a addr.Address, err error) {
	l.Logger.Info("drop",
		slog.String("reason", reason),
		slog.String("addr", a.String()),
		slog.Any("err", err),
	)
}

func (l *Listener) logSocketReadError(err error) {
	l.Logger.Info("socketReadError", slog.Any("err", err), slog.String("errClass", errclass.New(err)))
}

func (l *Listener) logSocketWriteError(err error) {
	l.Logger.Info("socketWriteError", slog.Any("err", err), slog.String("errClass", errclass.New(err)))
}

func (d *DynamicClientsConfig) maxPendingPackets() int {
	if d == nil || d.MaxPendingPackets == 0 {
		return clientreg.DefaultBounds.MaxPendingPackets
	}
	return d.MaxPendingPackets
}
