// SPDX-License-Identifier: GPL-3.0-or-later

package clientreg

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	dead   bool
	closed bool
}

func (f *fakeConn) Dead() bool   { return f.dead }
func (f *fakeConn) Close() error { f.closed = true; return nil }

func TestClient_PacketCounting(t *testing.T) {
	c := NewStaticClient("a", netip.MustParsePrefix("10.0.0.0/8"), nil, Flags{})
	assert.Equal(t, 0, c.PacketCount())
	c.IncPacket()
	c.IncPacket()
	assert.Equal(t, 2, c.PacketCount())
	c.DecPacket()
	assert.Equal(t, 1, c.PacketCount())
	c.DecPacket()
	c.DecPacket()
	assert.Equal(t, 0, c.PacketCount(), "DecPacket below zero must clamp at zero")
}

func TestClient_ConnectionLifecycle(t *testing.T) {
	c := NewStaticClient("a", netip.MustParsePrefix("10.0.0.0/8"), nil, Flags{})
	conn := &fakeConn{}
	c.AddConnection("10.0.0.1:1812<->10.0.0.2:1024", conn)
	assert.Equal(t, 1, c.ConnectionCount())

	got, ok := c.Connection("10.0.0.1:1812<->10.0.0.2:1024")
	require.True(t, ok)
	assert.Same(t, conn, got)

	conn.dead = true
	c.ReapDeadConnections()
	assert.Equal(t, 0, c.ConnectionCount())
	assert.True(t, conn.closed)
}

func TestClient_IdleOnlyAppliesToDynamic(t *testing.T) {
	c := NewStaticClient("a", netip.MustParsePrefix("10.0.0.0/8"), nil, Flags{})
	c.idleTimeout = time.Nanosecond
	c.lastActivity = time.Now().Add(-time.Hour)
	assert.False(t, c.Idle(time.Now()), "Static clients never idle-expire")

	c.state = StateDynamic
	assert.True(t, c.Idle(time.Now()))

	c.IncPacket()
	assert.False(t, c.Idle(time.Now()), "a client with in-flight packets is never idle")
}

func TestClient_StateString(t *testing.T) {
	cases := map[State]string{
		StateStatic: "static", StatePending: "pending", StateDynamic: "dynamic",
		StateConnected: "connected", StateNAK: "nak", State(99): "unknown",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}
