// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: bassosimone-nop's observeconn.go/connect.go span-logging
// shape (Start/Done event pairs, ErrClassifier, SLogger) and on
// original_source/src/modules/proto_radius/io.c's fr_io_track_t lookup
// table, which this package reimplements as a Go map keyed on the
// (code, id, address) tuple instead of a radix tree of rbtrees.

// Package tracking implements the Address & Tracking Table of spec.md
// §4.1: per-client duplicate suppression, conflict detection, and reply
// caching keyed by (code, id, source/destination address, interface).
package tracking

import (
	"sync"
	"time"

	"github.com/radiuscore/radiuscore/internal/addr"
	"github.com/radiuscore/radiuscore/internal/wire"
)

// ClientRef is the opaque owner of a [Table]. internal/clientreg.Client
// satisfies this; tracking never imports clientreg, breaking what would
// otherwise be a cyclic Client-owns-Table / Entry-references-Client
// dependency (spec.md §3's Client/TrackingEntry mutual reference).
type ClientRef interface {
	// ClientID returns a stable identity for equality comparisons,
	// satisfying spec.md §3's invariant that "every TrackingEntry's
	// Client pointer agrees with the Client whose tracking table holds it".
	ClientID() string
}

// Key is the primary index into a [Table]: code, id, and the full address
// tuple. The request authenticator is not part of the key — it is what
// distinguishes a retransmission from a conflict once two packets
// collide on the same Key (spec.md §4.1).
type Key struct {
	Code Codeish
	ID   byte
	Addr addr.Address
}

// Codeish avoids importing wire's full Code type graph into the key
// comparison; it is wire.Code under the hood.
type Codeish = wire.Code

// Outcome is the result of [Table.Insert].
type Outcome int

const (
	// New: no prior entry existed for this Key; a fresh TrackingEntry
	// was created and the packet should be handed to a worker.
	New Outcome = iota

	// Same: a byte-identical retransmission of an in-flight or already
	// cached request. If the returned Entry has a cached reply, the
	// transport resends it immediately without invoking the worker;
	// otherwise the duplicate is forwarded marked is_dup so the worker
	// can drop its own eventual response.
	Same

	// Updated: the matching entry had already been replied to (and its
	// cleanup delay had not yet elapsed) when a new, different payload
	// arrived for the same Key; the entry is reused for the new request.
	Updated

	// Conflicting: a different payload arrived for the same Key while
	// the previous request was still in flight (no reply cached yet).
	// The prior in-flight worker's eventual reply must be discarded
	// (enforced by [Table.AttachReply] rejecting a stale stamp).
	Conflicting

	// Unused: the table determined no tracking was necessary (e.g. a
	// concurrent cleanup was already removing the slot this lookup
	// raced with); the caller should treat the packet as new but must
	// not assume exclusive ownership of any returned Entry.
	Unused

	// Error: an internal invariant was violated (e.g. a malformed Key).
	Error
)

// Entry is the per-(client, code, id) tracking record (spec.md §3).
type Entry struct {
	mu sync.Mutex

	owner ClientRef
	key   Key

	header     wire.Header
	receivedAt time.Time

	outstanding int

	reply   []byte
	replyAt time.Time

	dynamicDefining bool

	cleanupTimer *time.Timer
}

// Owner returns the Client that owns this entry.
func (e *Entry) Owner() ClientRef { return e.owner }

// Key returns the tracking key.
func (e *Entry) Key() Key { return e.key }

// Stamp returns the entry's current timestamp, to be captured by a caller
// at admission time and passed back to [Table.AttachReply] or
// [Table.Delete] so a stale caller (superseded by a conflicting packet)
// is rejected rather than silently corrupting a newer request's state.
func (e *Entry) Stamp() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.receivedAt
}

// CachedReply returns the cached reply bytes and whether one is set.
func (e *Entry) CachedReply() ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reply, e.reply != nil
}

// MarkDynamicDefining flags this entry as the single defining request for
// a Pending client (spec.md §4.2); the client registry consults this to
// avoid running the defining policy twice concurrently.
func (e *Entry) MarkDynamicDefining(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dynamicDefining = v
}

// IsDynamicDefining reports whether this entry is the defining request.
func (e *Entry) IsDynamicDefining() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dynamicDefining
}

// Table is a per-client associative container from [Key] to [*Entry].
// A Table is single-owner: spec.md §5 assigns one tracking table per
// Client, mutated only by that client's (or that connection's) network
// thread, so Table itself is not safely shared across goroutines beyond
// the single thread that owns it — only [Entry] fields are internally
// locked, to let AttachReply/Delete race safely against a cleanup timer
// firing on a different goroutine.
type Table struct {
	entries map[Key]*Entry

	// CleanupDelay is applied only to Access-Request replies (0-30s,
	// spec.md §4.1); other codes release immediately after reply write.
	CleanupDelay time.Duration

	// Now returns the current time (overridable in tests).
	Now func() time.Time

	// AfterFunc schedules f to run after d (overridable in tests to make
	// cleanup deterministic instead of racing a real timer).
	AfterFunc func(d time.Duration, f func()) *time.Timer
}

// NewTable constructs a [Table] with the given Access-Request cleanup
// delay (spec.md §6's 0-30s `cleanup_delay` listener option).
func NewTable(cleanupDelay time.Duration) *Table {
	return &Table{
		entries:      make(map[Key]*Entry),
		CleanupDelay: cleanupDelay,
		Now:          time.Now,
		AfterFunc:    time.AfterFunc,
	}
}

// Insert records the arrival of a packet, returning the classification
// outcome and (for all outcomes but Error) the entry now associated with
// Key. See spec.md §4.1 for the exact New/Same/Updated/Conflicting
// semantics this implements.
func (t *Table) Insert(owner ClientRef, key Key, hdr wire.Header, recvTime time.Time) (Outcome, *Entry) {
	existing, ok := t.entries[key]
	if !ok {
		e := &Entry{
			owner:       owner,
			key:         key,
			header:      hdr,
			receivedAt:  recvTime,
			outstanding: 1,
		}
		t.entries[key] = e
		return New, e
	}

	existing.mu.Lock()
	defer existing.mu.Unlock()

	if existing.header == hdr {
		// Byte-identical retransmission (conflict detection compares only
		// the 20-byte header per spec.md §9 Open Question 2).
		if existing.reply == nil {
			existing.outstanding++
		}
		return Same, existing
	}

	if existing.reply != nil {
		// The prior request already completed and is sitting in its
		// cleanup-delay cache; this is a fresh request for the same id
		// and the slot is reused (spec.md §4.1's Updated outcome).
		existing.header = hdr
		existing.receivedAt = recvTime
		existing.outstanding = 1
		existing.reply = nil
		existing.replyAt = time.Time{}
		existing.dynamicDefining = false
		if existing.cleanupTimer != nil {
			existing.cleanupTimer.Stop()
			existing.cleanupTimer = nil
		}
		return Updated, existing
	}

	// Still in flight with no reply yet: a different payload for the
	// same id supersedes it. Bump the stamp so the superseded worker's
	// eventual AttachReply/Delete calls are rejected as stale.
	existing.header = hdr
	existing.receivedAt = recvTime
	existing.outstanding = 1
	existing.dynamicDefining = false
	return Conflicting, existing
}

// AttachReply caches a reply for later retransmission during the
// cleanup-delay window (spec.md §4.1). stamp must equal the value
// returned by [Entry.Stamp] at the time the caller's request was
// admitted; if the entry has since been superseded by a conflicting
// packet, AttachReply returns false and the reply is discarded —
// implementing Testable Property 2 ("the superseded worker's reply is
// discarded; never written on the wire").
func (t *Table) AttachReply(e *Entry, stamp time.Time, reply []byte, replyTime time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.receivedAt.Equal(stamp) {
		return false
	}
	e.reply = reply
	e.replyAt = replyTime
	e.outstanding = 0

	delay := t.delayFor(e.header.Code)
	stampAtAttach := e.receivedAt
	key := e.key
	e.cleanupTimer = t.AfterFunc(delay, func() {
		t.Delete(e, stampAtAttach)
		_ = key
	})
	return true
}

// delayFor returns the cleanup delay for a given packet code: the
// configured Access-Request delay, or zero for every other code, which
// is released immediately after the reply is written (spec.md §4.1).
func (t *Table) delayFor(code wire.Code) time.Duration {
	if code == wire.CodeAccessRequest {
		return t.CleanupDelay
	}
	return 0
}

// Delete removes e from the table only if its current timestamp still
// equals stamp, preventing deletion of an entry that has since been
// taken over by a conflicting packet (spec.md §4.1).
func (t *Table) Delete(e *Entry, stamp time.Time) bool {
	e.mu.Lock()
	current := e.receivedAt
	key := e.key
	e.mu.Unlock()

	if !current.Equal(stamp) {
		return false
	}
	if existing, ok := t.entries[key]; ok && existing == e {
		delete(t.entries, key)
		return true
	}
	return false
}

// Len returns the number of tracked entries, for metrics/tests.
func (t *Table) Len() int { return len(t.entries) }
