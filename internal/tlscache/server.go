// SPDX-License-Identifier: GPL-3.0-or-later

package tlscache

import (
	"context"
	"crypto/tls"

	"github.com/radiuscore/radiuscore"
)

// Validator re-validates a resumed session's client certificate chain
// and cipher properties (spec.md §4.5: "resumed sessions re-validate the
// client certificate chain... can refuse resumption based on Extended
// Master Secret support and cipher forward-secrecy").
type Validator func(cs tls.ConnectionState) error

// ServerHooks adapts a [Cache] to [tls.Config]'s WrapSession/UnwrapSession
// server-side ticket hooks (Go's native, RFC 5077-aligned extensibility
// point for pluggable session storage — the idiomatic mechanism here,
// with no third-party substitute in the retrieved pack).
type ServerHooks struct {
	Cache    *Cache
	Validate Validator
	NewID    func() []byte
}

// Configure installs the wrap/unwrap hooks on cfg.
func (h *ServerHooks) Configure(cfg *tls.Config) {
	cfg.WrapSession = h.WrapSession
	cfg.UnwrapSession = h.UnwrapSession
}

// WrapSession implements [tls.Config.WrapSession]: serialize the session
// state and hand it to the policy's write path, returning an opaque
// identity the client presents on resumption.
func (h *ServerHooks) WrapSession(cs tls.ConnectionState, ss *tls.SessionState) ([]byte, error) {
	blob, err := ss.Bytes()
	if err != nil {
		return nil, err
	}
	id := h.newID()
	h.Cache.Write(context.Background(), id, blob)
	return id, nil
}

// UnwrapSession implements [tls.Config.UnwrapSession]: look up identity
// in the cache and, on a hit, re-validate the peer's certificate chain
// before offering the session back to crypto/tls. A failed validation
// purges the entry so it is never offered again — the practical
// equivalent of zeroing its timeout (spec.md §4.5).
func (h *ServerHooks) UnwrapSession(identity []byte, cs tls.ConnectionState) (*tls.SessionState, error) {
	blob, found, err := h.Cache.Read(context.Background(), identity)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	ss, err := tls.ParseSessionState(blob)
	if err != nil {
		// Corrupt or stale entry: drop it and refuse resumption rather
		// than surfacing a handshake error.
		_ = h.Cache.Delete(context.Background(),identity)
		return nil, nil
	}

	if h.Validate != nil {
		if verr := h.Validate(cs); verr != nil {
			_ = h.Cache.Delete(context.Background(),identity)
			return nil, nil
		}
	}

	return ss, nil
}

// defaultNewID mints a fresh session identity from [radiuscore.NewSpanID],
// reusing the same UUIDv7 generator the rest of the module uses for
// request/span identifiers.
func defaultNewID() []byte {
	return []byte(radiuscore.NewSpanID())
}

func (h *ServerHooks) newID() []byte {
	if h.NewID != nil {
		return h.NewID()
	}
	return defaultNewID()
}
