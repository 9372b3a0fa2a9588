// SPDX-License-Identifier: GPL-3.0-or-later

package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiuscore/radiuscore/internal/wire"
)

func wireHeader(id byte, authByte ...byte) wire.Header {
	h := wire.Header{Code: wire.CodeAccessRequest, Identifier: id}
	if len(authByte) > 0 {
		h.Authenticator[0] = authByte[0]
	}
	return h
}

func TestPendingHeap_OrdersByPriorityThenFIFO(t *testing.T) {
	var h PendingHeap
	base := time.Now()

	PushPacket(&h, NewPendingPacket([]byte("low-1"), PriorityLow, base, nil))
	PushPacket(&h, NewPendingPacket([]byte("now-1"), PriorityNow, base.Add(time.Second), nil))
	PushPacket(&h, NewPendingPacket([]byte("high-1"), PriorityHigh, base.Add(2*time.Second), nil))
	PushPacket(&h, NewPendingPacket([]byte("high-2"), PriorityHigh, base.Add(3*time.Second), nil))

	var order []string
	for h.Len() > 0 {
		pp := PopLive(&h)
		require.NotNil(t, pp)
		order = append(order, string(pp.Buf))
	}

	assert.Equal(t, []string{"now-1", "high-1", "high-2", "low-1"}, order)
}

func TestPendingHeap_PopLiveSkipsSuperseded(t *testing.T) {
	tab := NewTable(0)
	now := time.Now()
	_, entry := tab.Insert(fakeClient{"a"}, testKey(), wireHeader(7), now)

	var h PendingHeap
	PushPacket(&h, NewPendingPacket([]byte("stale"), PriorityNormal, now, entry))

	// Supersede the entry with a conflicting arrival before the packet
	// is ever popped.
	tab.Insert(fakeClient{"a"}, testKey(), wireHeader(7, 1), now.Add(time.Second))

	PushPacket(&h, NewPendingPacket([]byte("fresh"), PriorityNormal, now.Add(2*time.Second), nil))

	pp := PopLive(&h)
	require.NotNil(t, pp)
	assert.Equal(t, "fresh", string(pp.Buf))
	assert.Equal(t, 0, h.Len())
}

func TestPendingPacket_NilEntryNeverSuperseded(t *testing.T) {
	pp := NewPendingPacket([]byte("x"), PriorityNormal, time.Now(), nil)
	assert.False(t, pp.Superseded())
}
