// SPDX-License-Identifier: GPL-3.0-or-later

// Package wire is the core's boundary with the RADIUS codec: packet
// decode/validate/HMAC-verification are external collaborators per
// spec.md §1 ("the leaf RADIUS codec ... only its interface is
// specified"). This package specifies that interface and provides one
// concrete implementation backed by layeh.com/radius.
package wire

import "net/netip"

// Code is a RADIUS packet type (1-byte, spec.md §6).
type Code byte

// Packet codes the core accepts or emits. Dictionary-defined codes beyond
// these are out of scope (spec.md §1).
const (
	CodeAccessRequest      Code = 1
	CodeAccessAccept       Code = 2
	CodeAccessReject       Code = 3
	CodeAccountingRequest  Code = 4
	CodeAccountingResponse Code = 5
	CodeAccessChallenge    Code = 11
	CodeStatusServer       Code = 12
	CodeStatusClient       Code = 13
	CodeDisconnectRequest  Code = 40
	CodeDisconnectACK      Code = 41
	CodeDisconnectNAK      Code = 42
	CodeCoARequest         Code = 43
	CodeCoAACK             Code = 44
	CodeCoANAK             Code = 45
)

// String renders a human-readable packet type name for logging.
func (c Code) String() string {
	switch c {
	case CodeAccessRequest:
		return "Access-Request"
	case CodeAccessAccept:
		return "Access-Accept"
	case CodeAccessReject:
		return "Access-Reject"
	case CodeAccountingRequest:
		return "Accounting-Request"
	case CodeAccountingResponse:
		return "Accounting-Response"
	case CodeAccessChallenge:
		return "Access-Challenge"
	case CodeStatusServer:
		return "Status-Server"
	case CodeStatusClient:
		return "Status-Client"
	case CodeDisconnectRequest:
		return "Disconnect-Request"
	case CodeDisconnectACK:
		return "Disconnect-ACK"
	case CodeDisconnectNAK:
		return "Disconnect-NAK"
	case CodeCoARequest:
		return "CoA-Request"
	case CodeCoAACK:
		return "CoA-ACK"
	case CodeCoANAK:
		return "CoA-NAK"
	default:
		return "Unknown"
	}
}

// HeaderSize is the fixed RADIUS header size: 1-byte code, 1-byte id,
// 2-byte length, 16-byte authenticator (spec.md §6).
const HeaderSize = 20

// Header is the fixed-size prefix of every RADIUS packet. The tracking
// table keys and compares on this slice, never on the attribute body
// (spec.md §9, Open Question 2).
type Header struct {
	Code          Code
	Identifier    byte
	Length        uint16
	Authenticator [16]byte
}

// ParseHeader extracts the 20-byte header from a raw datagram without
// validating attributes. It returns an error if data is shorter than
// [HeaderSize] or the encoded Length disagrees with len(data).
func ParseHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, ErrTooShort
	}
	h.Code = Code(data[0])
	h.Identifier = data[1]
	h.Length = uint16(data[2])<<8 | uint16(data[3])
	copy(h.Authenticator[:], data[4:20])
	if int(h.Length) != len(data) {
		return h, ErrBadLength
	}
	return h, nil
}

// Packet is a decoded RADIUS packet. Attributes are intentionally opaque
// to the core: the catalog belongs to the dictionary (spec.md §1), so the
// core only ever needs the header plus raw bytes for tracking, and hands
// decoded attribute access off to the codec's own type (see [Decoded]).
type Packet struct {
	Header

	// Raw is the full wire-format datagram, header included. [Header]
	// comparisons during conflict detection operate on Raw[:HeaderSize].
	Raw []byte

	// Decoded is the codec-specific decoded representation (e.g. a
	// *radius.Packet), opaque to everything outside internal/wire and
	// the unlang attribute-reference machinery.
	Decoded any
}

// Address is the source/destination/interface tuple a [Codec] needs to
// compute a response authenticator consistently with the request.
type Address struct {
	Src   netip.AddrPort
	Dst   netip.AddrPort
	Iface int
}

// Codec decodes and validates incoming datagrams and encodes replies. It
// is the only component allowed to know the on-wire attribute format;
// everything else in this module addresses attributes by name through
// the Decoded value.
type Codec interface {
	// Decode parses data into a [Packet], verifying the packet is at
	// least [HeaderSize] bytes, that the encoded length matches len(data),
	// and — when requireMessageAuthenticator is true — that a
	// Message-Authenticator attribute is present and its HMAC-MD5 over
	// the packet (keyed by secret) is valid. A malformed packet (spec.md
	// §7, error kind 1) returns a non-nil error and a nil *Packet.
	Decode(data []byte, secret []byte, requireMessageAuthenticator bool) (*Packet, error)

	// Encode serializes a reply of the given code and identifier, echoing
	// the request authenticator into the response-authenticator
	// computation, and returns the wire bytes.
	Encode(code Code, identifier byte, requestAuthenticator [16]byte, secret []byte, attrs []byte) ([]byte, error)
}
