// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: original_source/src/modules/proto_radius/proto_radius_udp.c's
// dynamic_client_alloc/dynamic_client_validate, which returns to the caller
// via one of three sentinel shapes (spec.md §4.2's "Dynamic client contract
// with the policy").

package clientreg

import (
	"encoding/binary"
	"errors"
	"net/netip"
)

// Define-response sentinel markers (spec.md §4.2):
//
//	0x01              reject; cache NAK for the configured duration
//	0x00              retry later; requeue the defining packet
//	0x02 <record>     accept with the attributes encoded in <record>
//
// 0x02 is this module's own concrete serialization of "a serialized
// Client record" — spec.md leaves the accepted-record encoding
// unspecified beyond "serialized Client record", so DefineResponse
// below is also exported for callers (e.g. a Go-native defining policy)
// that want to skip the byte-sentinel encoding entirely and hand
// PromotePending its fields directly.
const (
	sentinelRetry  = 0x00
	sentinelReject = 0x01
	sentinelAccept = 0x02
)

// ErrMalformedDefineResponse is returned when a defining policy's raw
// response is non-empty but matches none of the three sentinel shapes.
var ErrMalformedDefineResponse = errors.New("clientreg: malformed dynamic-client define response")

// DefineOutcome is the decoded shape of a defining policy's response.
type DefineOutcome int

const (
	DefineReject DefineOutcome = iota
	DefineRetry
	DefineAccept
)

// DefineResponse is the decoded form of a defining policy's raw answer,
// produced by [DecodeDefineResponse] or constructed directly by a
// Go-native policy that skips serialization.
type DefineResponse struct {
	Outcome DefineOutcome

	// The following are set only when Outcome == DefineAccept.
	Network netip.Prefix
	Secret  []byte
	Flags   Flags
}

// EncodeAcceptResponse serializes an accepted record into the raw
// sentinel wire shape a defining policy would return (spec.md §4.2's
// "(c) a serialized Client record"). Layout: 1-byte marker (0x02),
// 1-byte prefix bits, 4 or 16 address bytes (per family), 2-byte secret
// length (big-endian), secret bytes, 1 flags byte.
func EncodeAcceptResponse(network netip.Prefix, secret []byte, flags Flags) []byte {
	addr := network.Addr()
	out := make([]byte, 0, 2+16+2+len(secret)+1)
	out = append(out, sentinelAccept, byte(network.Bits()))
	out = append(out, addr.AsSlice()...)
	var secretLen [2]byte
	binary.BigEndian.PutUint16(secretLen[:], uint16(len(secret)))
	out = append(out, secretLen[:]...)
	out = append(out, secret...)
	out = append(out, encodeFlags(flags))
	return out
}

// DecodeDefineResponse parses a raw defining-policy response per the
// sentinel contract of spec.md §4.2.
func DecodeDefineResponse(raw []byte) (DefineResponse, error) {
	if len(raw) == 1 && raw[0] == sentinelReject {
		return DefineResponse{Outcome: DefineReject}, nil
	}
	if len(raw) == 1 && raw[0] == sentinelRetry {
		return DefineResponse{Outcome: DefineRetry}, nil
	}
	if len(raw) < 2 || raw[0] != sentinelAccept {
		return DefineResponse{}, ErrMalformedDefineResponse
	}

	bits := int(raw[1])
	rest := raw[2:]

	// An IPv6 prefix may also have bits <= 32, so the family is taken from
	// which address length makes the secret length and flags byte fit.
	addrLen := 16
	if bits <= 32 && len(rest) >= 6 && len(rest) == 4+2+int(binary.BigEndian.Uint16(rest[4:6]))+1 {
		addrLen = 4
	}
	if len(rest) < addrLen+2 {
		return DefineResponse{}, ErrMalformedDefineResponse
	}
	ip, ok := netip.AddrFromSlice(rest[:addrLen])
	if !ok {
		return DefineResponse{}, ErrMalformedDefineResponse
	}
	rest = rest[addrLen:]

	secretLen := int(binary.BigEndian.Uint16(rest[:2]))
	rest = rest[2:]
	if len(rest) < secretLen+1 {
		return DefineResponse{}, ErrMalformedDefineResponse
	}
	secret := append([]byte(nil), rest[:secretLen]...)
	rest = rest[secretLen:]

	network := netip.PrefixFrom(ip, bits)
	if !network.IsValid() {
		return DefineResponse{}, ErrMalformedDefineResponse
	}

	return DefineResponse{
		Outcome: DefineAccept,
		Network: network,
		Secret:  secret,
		Flags:   decodeFlags(rest[0]),
	}, nil
}

const (
	flagUseConnected = 1 << iota
	flagDynamic
	flagActive
	flagRequireMessageAuthenticator
)

func encodeFlags(f Flags) byte {
	var b byte
	if f.UseConnected {
		b |= flagUseConnected
	}
	if f.Dynamic {
		b |= flagDynamic
	}
	if f.Active {
		b |= flagActive
	}
	if f.RequireMessageAuthenticator {
		b |= flagRequireMessageAuthenticator
	}
	return b
}

func decodeFlags(b byte) Flags {
	return Flags{
		UseConnected:                b&flagUseConnected != 0,
		Dynamic:                     b&flagDynamic != 0,
		Active:                      b&flagActive != 0,
		RequireMessageAuthenticator: b&flagRequireMessageAuthenticator != 0,
	}
}
