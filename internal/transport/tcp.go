// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: bassosimone-nop's dnsovertcp.go, whose DNSOverTCPConn owns a
// single net.Conn and can Exchange multiple times over it. A RADIUS-over-TCP
// peer (RFC 6613) is the same shape: one long-lived connection carrying a
// stream of independently length-framed messages, so this file reuses the
// owns-the-conn wrapper rather than trying to retrofit [PacketConn]'s
// per-datagram abstraction onto a stream socket.

package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/radiuscore/radiuscore"
	"github.com/radiuscore/radiuscore/internal/addr"
	"github.com/radiuscore/radiuscore/internal/clientreg"
	"github.com/radiuscore/radiuscore/internal/tracking"
	"github.com/radiuscore/radiuscore/internal/wire"
)

// TCPConn owns a single RADIUS-over-TCP connection (spec.md §6's
// "optionally TCP"). Unlike the UDP path, a TCP peer has no competing
// sources sharing one socket, so each TCPConn's read loop is its own
// single-writer network thread for that connection's tracking entries.
//
// Construct via [TCPListener.wrap]; the caller never builds one
// directly.
type TCPConn struct {
	conn   net.Conn
	local  netip.AddrPort
	remote netip.AddrPort
}

// ReadPacket reads one length-framed RADIUS message: the 20-byte header's
// length field (bytes 2-3, big-endian) determines the rest, per spec.md
// §6's wire-protocol description, which applies unchanged over TCP.
func (c *TCPConn) ReadPacket(maxSize int) ([]byte, error) {
	hdr := make([]byte, wire.HeaderSize)
	if _, err := io.ReadFull(c.conn, hdr); err != nil {
		return nil, err
	}
	length := int(binary.BigEndian.Uint16(hdr[2:4]))
	if length < wire.HeaderSize || (maxSize > 0 && length > maxSize) {
		return nil, errTCPFrameSize
	}
	buf := make([]byte, length)
	copy(buf, hdr)
	if length > wire.HeaderSize {
		if _, err := io.ReadFull(c.conn, buf[wire.HeaderSize:]); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// WritePacket writes one fully-encoded reply.
func (c *TCPConn) WritePacket(data []byte) error {
	_, err := c.conn.Write(data)
	return err
}

// Close closes the underlying connection.
func (c *TCPConn) Close() error { return c.conn.Close() }

var errTCPFrameSize = errors.New("transport: RADIUS/TCP frame length out of bounds")

// TCPListenerConfig is the TCP counterpart of [ListenerConfig]. Dynamic
// client discovery and connection sharding do not apply over TCP — the
// stream connection already is the per-peer channel spec.md §4.3's
// connected sockets approximate for UDP — so this config carries only
// the options that still make sense.
type TCPListenerConfig struct {
	Bind                        netip.AddrPort
	CleanupDelay                time.Duration
	AllowedCodes                map[wire.Code]bool
	RequireMessageAuthenticator bool
	MaxProcessingTime           time.Duration
	MaxFrameSize                int
}

// TCPListener accepts RADIUS-over-TCP connections and runs one read loop
// per connection, each driving the same [Registry]/[Worker]/[Codec] the
// UDP [Listener] uses.
type TCPListener struct {
	Config   TCPListenerConfig
	Codec    wire.Codec
	Registry *clientreg.Registry
	Worker   Worker
	Logger   radiuscore.SLogger
	Now      func() time.Time

	ln net.Listener
}

// NewTCPListener constructs a TCPListener bound to an already-open
// [net.Listener] (e.g. from net.Listen("tcp", ...)).
func NewTCPListener(cfg TCPListenerConfig, ln net.Listener, codec wire.Codec, registry *clientreg.Registry, worker Worker, logger radiuscore.SLogger) *TCPListener {
	if cfg.AllowedCodes == nil {
		cfg.AllowedCodes = DefaultAllowedCodes()
	}
	if logger == nil {
		logger = radiuscore.DefaultSLogger()
	}
	return &TCPListener{
		Config:   cfg,
		Codec:    codec,
		Registry: registry,
		Worker:   worker,
		Logger:   logger,
		Now:      time.Now,
		ln:       ln,
	}
}

// Serve accepts connections until ctx is cancelled or the listener
// reports a fatal error, spawning one goroutine per accepted peer.
func (l *TCPListener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.ln.Close()
	}()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return err
			}
		}
		tc := l.wrap(conn)
		go l.serveConn(ctx, tc)
	}
}

func (l *TCPListener) wrap(conn net.Conn) *TCPConn {
	local, _ := netip.ParseAddrPort(conn.LocalAddr().String())
	remote, _ := netip.ParseAddrPort(conn.RemoteAddr().String())
	return &TCPConn{conn: conn, local: local, remote: remote}
}

// serveConn is one connection's private network thread: it owns that
// peer's tracking table entries exclusively, so no locking beyond what
// [tracking.Table] already does internally is required here.
func (l *TCPListener) serveConn(ctx context.Context, tc *TCPConn) {
	defer tc.Close()

	client, ok := l.Registry.Find(tc.remote.Addr())
	if !ok {
		var err error
		client, err = l.Registry.CreatePending(tc.remote.Addr())
		if err != nil {
			l.Logger.Info("tcpUnknownClient", slog.String("remote", tc.remote.String()), slog.Any("err", err))
			return
		}
	}

	a := addr.Address{Src: tc.remote, Dst: tc.local}

	for {
		data, err := tc.ReadPacket(l.maxFrameSize())
		if err != nil {
			if err != io.EOF {
				l.Logger.Info("tcpReadError", slog.String("remote", tc.remote.String()), slog.Any("err", err))
			}
			return
		}

		hdr, err := wire.ParseHeader(data)
		if err != nil || !l.Config.AllowedCodes[hdr.Code] {
			continue
		}

		// Pending clients only matter to the UDP path's dynamic-discovery
		// queue (spec.md §4.2); a peer that hasn't been statically
		// configured or already defined gets no dynamic-discovery retry
		// loop over a stream connection.
		if st := client.State(); st == clientreg.StateNAK || st == clientreg.StatePending {
			continue
		}

		key := tracking.Key{Code: hdr.Code, ID: hdr.Identifier, Addr: a}
		outcome, entry := client.Tracking.Insert(client, key, hdr, l.now())
		switch outcome {
		case tracking.Same:
			if reply, ok := entry.CachedReply(); ok {
				tc.WritePacket(reply)
			}
			continue
		case tracking.Error:
			continue
		}

		stamp := entry.Stamp()
		decoded, err := l.Codec.Decode(data, client.Secret(), client.Flags().RequireMessageAuthenticator)
		if err != nil {
			client.Tracking.Delete(entry, stamp)
			continue
		}

		client.IncPacket()
		l.process(ctx, client, tc, entry, stamp, hdr, decoded)
	}
}

func (l *TCPListener) process(ctx context.Context, client *clientreg.Client, tc *TCPConn, entry *tracking.Entry, stamp time.Time, hdr wire.Header, pkt *wire.Packet) {
	defer client.DecPacket()

	wctx := ctx
	var cancel context.CancelFunc
	if l.Config.MaxProcessingTime > 0 {
		wctx, cancel = context.WithTimeout(ctx, l.Config.MaxProcessingTime)
		defer cancel()
	}

	section := SectionFor(hdr.Code)
	rcode, attrs, err := l.Worker.Process(wctx, section, client, pkt)
	if err != nil {
		client.Tracking.Delete(entry, stamp)
		return
	}

	replyCode, ok := DefaultReplyCode(hdr.Code, rcode)
	if !ok {
		client.Tracking.Delete(entry, stamp)
		return
	}

	reply, err := l.Codec.Encode(replyCode, hdr.Identifier, hdr.Authenticator, client.Secret(), attrs)
	if err != nil {
		client.Tracking.Delete(entry, stamp)
		return
	}

	if client.Tracking.AttachReply(entry, stamp, reply, l.now()) {
		if err := tc.WritePacket(reply); err != nil {
			l.Logger.Info("tcpWriteError", slog.String("remote", tc.remote.String()), slog.Any("err", err))
		}
	}
}

func (l *TCPListener) maxFrameSize() int {
	if l.Config.MaxFrameSize == 0 {
		return 65535
	}
	return l.Config.MaxFrameSize
}

func (l *TCPListener) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}
