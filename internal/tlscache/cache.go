// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: original_source/src/modules/rlm_eap/lib/tls/session.c's
// tls_cache_process (read/write/delete dispatch into a virtual server)
// and on bassosimone-nop's tls.go TLSEngine/TLSConn abstractions, which
// this package's server-side hooks sit alongside.

// Package tlscache implements the TLS Resumption Cache Glue of spec.md
// §4.5: bridging crypto/tls's server-side session storage hooks to an
// administrator-defined unlang policy that reads, writes, and deletes
// serialized session blobs as attributes.
package tlscache

import (
	"context"
	"log/slog"
	"time"

	"github.com/radiuscore/radiuscore/internal/unlang"
)

// Action is the cache operation the policy is asked to perform (spec.md
// §4.5).
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// Control attribute names the glue sets before invoking the policy
// section, and reads back afterward (spec.md §4.5's contract).
const (
	AttrSessionID    = "TLS-Session-Id"
	AttrCacheAction  = "TLS-Session-Cache-Action"
	AttrSessionData  = "TLS-Session-Data"
)

// Cache bridges TLS session-cache callbacks into a compiled unlang
// section. ContextID scopes the cache key namespace so sessions created
// by one EAP module cannot be resumed by another (spec.md §4.5's
// "session-context isolation").
type Cache struct {
	Section   unlang.Callable
	ContextID string
	Now       func() time.Time
	Logger    interface {
		Info(msg string, args ...any)
	}
}

// NewCache constructs a Cache bound to a compiled policy section.
func NewCache(section unlang.Callable, contextID string) *Cache {
	return &Cache{
		Section:   section,
		ContextID: contextID,
		Now:       time.Now,
	}
}

func (c *Cache) newRequest(action Action, sessionID []byte) *unlang.Request {
	req := unlang.NewRequest(unlang.SectionSession)
	req.Control.Set(AttrSessionID, append([]byte(c.ContextID+":"), sessionID...))
	req.Control.Set(AttrCacheAction, string(action))
	return req
}

// Read looks up a cached session by id. A miss is reported as
// found=false with a nil error — spec.md §4.5: "unknown session id on
// read yields 'no cached session' (not an error)".
func (c *Cache) Read(ctx context.Context, sessionID []byte) (blob []byte, found bool, err error) {
	req := c.newRequest(ActionRead, sessionID)
	code, err := unlang.RunSection(ctx, c.Section, req)
	if err != nil {
		return nil, false, err
	}
	if code == unlang.NotFound || code == unlang.Noop {
		return nil, false, nil
	}
	data, ok := req.Control.Get(AttrSessionData)
	if !ok {
		return nil, false, nil
	}
	raw, ok := data.([]byte)
	if !ok {
		return nil, false, nil
	}
	return raw, true, nil
}

// Write stores blob under sessionID. Any policy return code other than
// Ok/Updated is logged but never returned as an error — spec.md §4.5:
// "does not abort the handshake".
func (c *Cache) Write(ctx context.Context, sessionID, blob []byte) {
	req := c.newRequest(ActionWrite, sessionID)
	req.Control.Set(AttrSessionData, blob)

	code, err := unlang.RunSection(ctx, c.Section, req)
	if err != nil {
		c.logWarn("tlsCacheWriteError", "err", err)
		return
	}
	if code != unlang.Ok && code != unlang.Updated {
		c.logWarn("tlsCacheWriteRejected", "rcode", code.String())
	}
}

// Delete removes a cached session. Deleting an unknown session id is
// treated as success (an Open Question resolved in SPEC_FULL.md).
func (c *Cache) Delete(ctx context.Context, sessionID []byte) error {
	req := c.newRequest(ActionDelete, sessionID)
	_, err := unlang.RunSection(ctx, c.Section, req)
	return err
}

func (c *Cache) logWarn(msg string, args ...any) {
	if c.Logger == nil {
		return
	}
	c.Logger.Info(msg, append([]any{slog.Time("t", c.now())}, args...)...)
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
