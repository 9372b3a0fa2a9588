// SPDX-License-Identifier: GPL-3.0-or-later

package tracking

import (
	"container/heap"
	"time"
)

// Priority orders pending packets. Status-Server preempts everything,
// Access-Request is HIGH, CoA/Disconnect are NORMAL, Accounting is LOW
// (spec.md §6's default priority table).
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityNow
)

// PendingPacket is a buffered datagram awaiting either dynamic-client
// definition or a free slot on a client's pending heap (spec.md §3).
type PendingPacket struct {
	Buf      []byte
	Priority Priority
	RecvTime time.Time

	// Entry is the TrackingEntry this packet was admitted against.
	// entryStamp captures Entry.Stamp() at admission time: if it no
	// longer matches when the packet is popped, the entry was
	// superseded by a conflicting packet and this one must be
	// discarded (spec.md §3 invariant on PendingPacket.recv_time).
	Entry      *Entry
	entryStamp time.Time

	index int // heap bookkeeping, managed by container/heap
}

// NewPendingPacket captures a packet and the current stamp of its
// tracking entry, so [PendingPacket.Superseded] can later detect
// takeover by a conflicting arrival. entry is nil for a packet queued
// before any tracking entry exists yet (spec.md §4.2's Pending-state
// queue, which precedes the tracking table entirely); such a packet is
// never considered superseded.
func NewPendingPacket(buf []byte, priority Priority, recvTime time.Time, entry *Entry) *PendingPacket {
	pp := &PendingPacket{
		Buf:      buf,
		Priority: priority,
		RecvTime: recvTime,
		Entry:    entry,
	}
	if entry != nil {
		pp.entryStamp = entry.Stamp()
	}
	return pp
}

// Superseded reports whether this packet's TrackingEntry has since been
// taken over by a conflicting packet and must be discarded on pop.
func (p *PendingPacket) Superseded() bool {
	return p.Entry != nil && !p.Entry.Stamp().Equal(p.entryStamp)
}

// PendingHeap orders [*PendingPacket] by (priority desc, recv_time asc),
// so higher-priority packets jump the queue while packets of equal
// priority remain FIFO (spec.md §5's master pending-clients heap
// ordering guarantee). It implements [container/heap.Interface]; no
// third-party priority-queue library appears anywhere in the retrieved
// pack, so this uses the standard library container/heap, which is the
// idiomatic choice for a bounded, in-process priority queue.
type PendingHeap []*PendingPacket

var _ heap.Interface = (*PendingHeap)(nil)

func (h PendingHeap) Len() int { return len(h) }

func (h PendingHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].RecvTime.Before(h[j].RecvTime)
}

func (h PendingHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *PendingHeap) Push(x any) {
	pp := x.(*PendingPacket)
	pp.index = len(*h)
	*h = append(*h, pp)
}

func (h *PendingHeap) Pop() any {
	old := *h
	n := len(old)
	pp := old[n-1]
	old[n-1] = nil
	pp.index = -1
	*h = old[:n-1]
	return pp
}

// PopLive pops packets until it finds one that has not been superseded,
// or the heap empties. This is the access pattern callers should use
// instead of calling container/heap.Pop directly, since a superseded
// packet must never be dispatched to a worker (spec.md §3).
func PopLive(h *PendingHeap) *PendingPacket {
	for h.Len() > 0 {
		pp := heap.Pop(h).(*PendingPacket)
		if !pp.Superseded() {
			return pp
		}
	}
	return nil
}

// PushPacket pushes pp onto h.
func PushPacket(h *PendingHeap, pp *PendingPacket) {
	heap.Push(h, pp)
}
