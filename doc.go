// SPDX-License-Identifier: GPL-3.0-or-later

// Package radiuscore provides composable primitives for building the
// protocol front-end of a RADIUS server: connection establishment,
// observability, and TLS handshaking shared by the UDP/TCP listeners in
// internal/transport, by cmd/radiusbench's RadSec client, and by the TLS
// session-resumption glue in internal/tlscache.
//
// # Core Abstraction
//
// The package is built around a single interface:
//
//	type Func[A, B any] interface {
//		Call(ctx context.Context, input A) (B, error)
//	}
//
// Each Func represents an atomic operation with exactly one success mode
// and one failure mode. This design enables type-safe composition via
// [Compose2], where the compiler verifies that outputs
// match inputs across pipeline stages. The network thread (spec.md §5)
// and cmd/radiusbench's load-test client both build their connection
// setup as a composed Func pipeline rather than ad-hoc imperative code.
//
// # Available Primitives
//
// Connection establishment:
//   - [ConnectFunc]: dials TCP or UDP endpoints (used to open per-shard
//     connected sockets and outbound RadSec connections)
//   - [TLSHandshakeFunc]: performs a TLS handshake over an existing
//     connection (used by cmd/radiusbench's RadSec mode)
//   - [ObserveConnFunc]: observes connections for logging I/O operations
//   - [CancelWatchFunc]: closes a connection on context cancellation
//
// Composition utilities:
//   - [Compose2]: chain two Funcs into a pipeline
//   - [FuncAdapter]: wrap a function as a Func for ad-hoc custom behavior
//   - [ConstFunc]: lift a pure value into a Func
//   - [NewEndpointFunc]: convenience wrapper for ConstFunc with endpoints
//
// # Connection Lifecycle
//
// Dial operations ([ConnectFunc], [TLSHandshakeFunc]) create connections
// and transfer ownership to the next stage on success. On error, they
// close the connection.
//
// # Observability
//
// All primitives support structured logging via [SLogger] (compatible
// with [log/slog]). By default, logging is disabled. Set the Logger
// field to a custom [*slog.Logger] to enable logging. Error
// classification is configurable via [ErrClassifier]; the default
// classifier is internal/errclass, which labels socket errors the
// network thread uses to decide whether a connection is fatally broken
// (spec.md §7, error kind 7).
//
// Primitives emit span-style start/done event pairs recording timing and
// success/failure, plus I/O-level events (read, write, deadline changes)
// at [slog.LevelDebug]. All events share a common set of fields:
// localAddr, remoteAddr, protocol, and t (timestamp); *Done events
// additionally include t0, err, and errClass.
//
// Use [NewSpanID] to generate a unique, time-ordered identifier (UUIDv7)
// for each request or connection, then attach it to the logger with
// [*slog.Logger.With] so all log entries from that request share a
// spanID, enabling correlation across the tracking table, the
// interpreter, and the reply path.
//
// # Timeout and Context Philosophy
//
// This package is context-transparent: operations never modify the
// context they receive. The caller controls timeouts externally via
// [context.WithTimeout], [context.WithDeadline], or per-request
// max-processing-time enforcement (spec.md §5). Connection lifecycle
// requires [CancelWatchFunc] to bind the context lifecycle to the
// connection.
//
// # Design Boundaries
//
// This package intentionally provides only primitives. Duplicate
// suppression, client-state tracking, connection sharding, and the
// unlang interpreter live in their own internal packages and are built
// on top of these primitives, not inside them.
package radiuscore
