// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: original_source/src/modules/proto_dhcpv4/dhcperfcli.c, a
// send-at-rate load generator that times request/reply round trips and
// prints summary statistics. Reimplemented here as a small Func-pipeline
// CLI in the teacher's idiom (radiuscore.Config/ConnectFunc/SLogger)
// rather than a line-for-line port of the C tool's socket loop.
//
// The -tls flag drives the same tool against a RadSec (RFC 6614)
// listener instead of plain UDP, assembling
// radiuscore.NewEndpointFunc/Compose2/NewConnectFunc/NewCancelWatchFunc/
// NewTLSHandshakeFunc/NewObserveConnFunc into one Func[Unit, net.Conn]
// pipeline rather than hand-rolling a second dial path.

// Command radiusbench sends Access-Request packets at a configured rate
// against a RADIUS server and reports round-trip latency statistics.
package main

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/radiuscore/radiuscore"
	"github.com/radiuscore/radiuscore/internal/wire"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out *os.File) int {
	fs := flag.NewFlagSet("radiusbench", flag.ContinueOnError)
	server := fs.String("server", "127.0.0.1:1812", "RADIUS server host:port")
	secret := fs.String("secret", "testing123", "shared secret")
	count := fs.Int("count", 100, "number of Access-Request packets to send")
	rate := fs.Int("rate", 20, "packets per second")
	timeout := fs.Duration("timeout", 2*time.Second, "per-request reply timeout")
	useTLS := fs.Bool("tls", false, "dial over RadSec (RFC 6614 RADIUS/TLS) instead of UDP")
	insecure := fs.Bool("insecure", false, "skip RadSec server certificate verification")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	host, _, err := net.SplitHostPort(*server)
	if err != nil {
		fmt.Fprintln(out, "radiusbench:", err)
		return 1
	}

	addrPort, err := resolveAddrPort(*server)
	if err != nil {
		fmt.Fprintln(out, "radiusbench:", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg := radiuscore.NewConfig()
	logger := radiuscore.DefaultSLogger()

	var dial radiuscore.Func[netip.AddrPort, net.Conn]
	if *useTLS {
		dial = radSecDialFunc(cfg, logger, host, *insecure)
	} else {
		dial = radiuscore.NewConnectFunc(cfg, "udp", logger)
	}

	// Lift addrPort into the pipeline's source rather than calling
	// dial.Call directly, so the endpoint-injection primitive
	// (radiuscore.NewEndpointFunc) is the one place a server address
	// enters the Func world.
	source := radiuscore.Compose2[radiuscore.Unit, netip.AddrPort, net.Conn](
		radiuscore.NewEndpointFunc(addrPort), dial)

	conn, err := source.Call(ctx, radiuscore.Unit{})
	if err != nil {
		fmt.Fprintln(out, "radiusbench: dial:", err)
		return 1
	}
	defer conn.Close()

	stats, err := bench(ctx, conn, []byte(*secret), *count, *rate, *timeout)
	if err != nil {
		fmt.Fprintln(out, "radiusbench:", err)
		return 1
	}
	stats.Print(out)
	return 0
}

// radSecDialFunc assembles a RadSec dial pipeline: connect over TCP,
// arrange for the connection to close on context cancellation, perform
// the TLS handshake, then wrap the result for structured I/O logging.
// Each stage is one of the Func primitives built for this purpose;
// chaining them here (rather than a single handwritten dialer) is what
// makes a RadSec dial a one-line pipeline instead of a new code path.
func radSecDialFunc(cfg *radiuscore.Config, logger radiuscore.SLogger, serverName string, insecure bool) radiuscore.Func[netip.AddrPort, net.Conn] {
	connectAndWatch := radiuscore.Compose2[netip.AddrPort, net.Conn, net.Conn](
		radiuscore.NewConnectFunc(cfg, "tcp", logger),
		radiuscore.NewCancelWatchFunc(),
	)
	handshake := radiuscore.NewTLSHandshakeFunc(cfg, &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: insecure,
		NextProtos:         []string{"radsec"},
	}, logger)
	observe := radiuscore.NewObserveConnFunc(cfg, logger)

	return radiuscore.FuncAdapter[netip.AddrPort, net.Conn](func(ctx context.Context, addr netip.AddrPort) (net.Conn, error) {
		conn, err := connectAndWatch.Call(ctx, addr)
		if err != nil {
			return nil, err
		}
		tconn, err := handshake.Call(ctx, conn)
		if err != nil {
			return nil, err
		}
		return observe.Call(ctx, tconn)
	})
}

func resolveAddrPort(server string) (netip.AddrPort, error) {
	host, port, err := net.SplitHostPort(server)
	if err != nil {
		return netip.AddrPort{}, err
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return netip.AddrPort{}, err
	}
	if len(ips) == 0 {
		return netip.AddrPort{}, errors.New("radiusbench: no addresses for " + host)
	}
	addr, ok := netip.AddrFromSlice(ips[0].To4())
	if !ok {
		addr, ok = netip.AddrFromSlice(ips[0].To16())
		if !ok {
			return netip.AddrPort{}, errors.New("radiusbench: unparseable address")
		}
	}
	var p int
	fmt.Sscanf(port, "%d", &p)
	return netip.AddrPortFrom(addr, uint16(p)), nil
}

// Stats holds round-trip latency samples from one bench run.
type Stats struct {
	Sent     int
	Received int
	Lost     int
	Min      time.Duration
	Max      time.Duration
	Avg      time.Duration
}

// Print writes a dhcperfcli-style one-line summary.
func (s Stats) Print(out *os.File) {
	fmt.Fprintf(out, "sent=%d received=%d lost=%d min=%s avg=%s max=%s\n",
		s.Sent, s.Received, s.Lost, s.Min, s.Avg, s.Max)
}

// bench drives count Access-Request exchanges at rate packets/second over
// conn and collects latency stats. Each request is a bare 20-byte header
// with a random authenticator and no attributes; secret is not applied
// (no Message-Authenticator is added). It is the network-facing core; run
// wraps it with flag parsing and output.
func bench(ctx context.Context, conn net.Conn, secret []byte, count, rate int, timeout time.Duration) (Stats, error) {
	if rate <= 0 {
		rate = 1
	}
	interval := time.Second / time.Duration(rate)

	var sent, received int64
	latencies := make([]time.Duration, 0, count)
	var latMu sync.Mutex

	replies := make(chan []byte, count)
	go readReplies(ctx, conn, replies)

	pending := make(map[byte]time.Time)
	var pendingMu sync.Mutex

	var wg sync.WaitGroup
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < count; i++ {
		select {
		case <-ctx.Done():
			goto drain
		case <-ticker.C:
		}

		id := byte(i)
		pkt, err := encodeAccessRequest(id, secret)
		if err != nil {
			continue
		}

		pendingMu.Lock()
		pending[id] = time.Now()
		pendingMu.Unlock()

		if _, err := conn.Write(pkt); err != nil {
			slog.Default().Info("radiusbench: write failed", "err", err)
			continue
		}
		atomic.AddInt64(&sent, 1)
	}

drain:
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case raw, ok := <-replies:
				if !ok {
					return
				}
				hdr, err := wire.ParseHeader(raw)
				if err != nil {
					continue
				}
				pendingMu.Lock()
				start, ok := pending[hdr.Identifier]
				delete(pending, hdr.Identifier)
				pendingMu.Unlock()
				if !ok {
					continue
				}
				atomic.AddInt64(&received, 1)
				latMu.Lock()
				latencies = append(latencies, time.Since(start))
				latMu.Unlock()
			case <-deadline.C:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	wg.Wait()

	return summarize(int(sent), int(received), latencies), nil
}

func readReplies(ctx context.Context, conn net.Conn, out chan<- []byte) {
	defer close(out)
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		select {
		case out <- cp:
		case <-ctx.Done():
			return
		}
	}
}

func encodeAccessRequest(id byte, secret []byte) ([]byte, error) {
	length := wire.HeaderSize
	pkt := make([]byte, length)
	pkt[0] = byte(wire.CodeAccessRequest)
	pkt[1] = id
	pkt[2] = byte(length >> 8)
	pkt[3] = byte(length)
	if _, err := rand.Read(pkt[4:20]); err != nil {
		return nil, err
	}
	return pkt, nil
}

func summarize(sent, received int, latencies []time.Duration) Stats {
	s := Stats{Sent: sent, Received: received, Lost: sent - received}
	if len(latencies) == 0 {
		return s
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	s.Min = latencies[0]
	s.Max = latencies[len(latencies)-1]
	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	s.Avg = total / time.Duration(len(latencies))
	return s
}
