// SPDX-License-Identifier: GPL-3.0-or-later

package clientreg

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDefineResponse_Reject(t *testing.T) {
	resp, err := DecodeDefineResponse([]byte{sentinelReject})
	require.NoError(t, err)
	assert.Equal(t, DefineReject, resp.Outcome)
}

func TestDecodeDefineResponse_Retry(t *testing.T) {
	resp, err := DecodeDefineResponse([]byte{sentinelRetry})
	require.NoError(t, err)
	assert.Equal(t, DefineRetry, resp.Outcome)
}

func TestDecodeDefineResponse_AcceptRoundTrip(t *testing.T) {
	network := netip.MustParsePrefix("198.51.100.0/24")
	secret := []byte("s3cr3t")
	flags := Flags{UseConnected: true, Dynamic: true}

	raw := EncodeAcceptResponse(network, secret, flags)
	resp, err := DecodeDefineResponse(raw)
	require.NoError(t, err)

	assert.Equal(t, DefineAccept, resp.Outcome)
	assert.Equal(t, network, resp.Network)
	assert.Equal(t, secret, resp.Secret)
	assert.Equal(t, flags, resp.Flags)
}

func TestDecodeDefineResponse_Malformed(t *testing.T) {
	_, err := DecodeDefineResponse([]byte{0x02, 0x20})
	assert.ErrorIs(t, err, ErrMalformedDefineResponse)

	_, err = DecodeDefineResponse(nil)
	assert.ErrorIs(t, err, ErrMalformedDefineResponse)
}

func TestRegistry_ApplyDefineResponse(t *testing.T) {
	r := NewRegistry(DefaultBounds)
	network := netip.MustParsePrefix("198.51.100.0/24")
	r.AllowDynamic(network, 0)

	src := netip.MustParseAddr("198.51.100.42")
	c, err := r.CreatePending(src)
	require.NoError(t, err)

	require.NoError(t, r.ApplyDefineResponse(c, DefineResponse{
		Outcome: DefineAccept,
		Network: network,
		Secret:  []byte("abc"),
		Flags:   Flags{Dynamic: true},
	}))
	assert.Equal(t, StateDynamic, c.State())

	c2, err := r.CreatePending(netip.MustParseAddr("198.51.100.99"))
	require.NoError(t, err)
	require.NoError(t, r.ApplyDefineResponse(c2, DefineResponse{Outcome: DefineReject}))
	assert.Equal(t, StateNAK, c2.State())
}
