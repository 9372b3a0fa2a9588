// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"net/netip"

	"github.com/radiuscore/radiuscore/internal/clientreg"
	"github.com/radiuscore/radiuscore/internal/unlang"
	"github.com/radiuscore/radiuscore/internal/wire"
)

// Worker is the extension point a deployment plugs in to invoke the
// Unlang Interpreter against a matching section (spec.md §2's data flow:
// "promoted to a request and handed to the worker, which invokes the
// Unlang Interpreter"). Per spec.md §1, concrete authentication modules
// and the attribute dictionary are external collaborators; Worker is the
// seam between this package (I/O, tracking, client lifecycle) and that
// policy layer, so transport never imports a dictionary or auth-method
// package directly.
//
// Process and Define run on a goroutine spawned by the network thread,
// never on the thread itself (spec.md §5: "[the network thread] never
// blocks on policy... [workers] communicate with the network thread by
// in-memory message queues").
type Worker interface {
	// Process runs section's policy for pkt against client and returns
	// the resulting return code plus a pre-encoded reply attribute TLV
	// stream (opaque to transport, per [wire.Codec.Encode]'s attrs
	// argument).
	Process(ctx context.Context, section unlang.Section, client *clientreg.Client, pkt *wire.Packet) (unlang.ReturnCode, []byte, error)

	// Define runs the single defining policy for a Pending client's first
	// packet and returns its raw response, which
	// [clientreg.DecodeDefineResponse] decodes per spec.md §4.2's
	// three-sentinel contract.
	Define(ctx context.Context, src netip.Addr, pkt *wire.Packet) ([]byte, error)
}

// SectionFor routes a packet code to the server section that processes
// it (spec.md §4.4 lists the section names; spec.md §6 lists the codes).
// Status-Server and Access-Request both enter at authorize — proto_radius
// internally chains authorize -> authenticate -> post-auth, which is a
// concern of the Worker implementation, not of this package.
func SectionFor(code wire.Code) unlang.Section {
	switch code {
	case wire.CodeAccessRequest, wire.CodeStatusServer:
		return unlang.SectionAuthorize
	case wire.CodeAccountingRequest:
		return unlang.SectionAccounting
	case wire.CodeCoARequest:
		return unlang.SectionRecvCoA
	case wire.CodeDisconnectRequest:
		return unlang.SectionRecvCoA
	default:
		return unlang.SectionAuthorize
	}
}

// ReplyCodeFunc maps a request code and the interpreter's final return
// code to the wire reply code to send, or reports ok=false to send no
// reply at all (spec.md §2: "The interpreter's final return code
// selects a reply code").
type ReplyCodeFunc func(request wire.Code, rcode unlang.ReturnCode) (reply wire.Code, ok bool)

// DefaultReplyCode implements [ReplyCodeFunc] with the per-protocol
// mapping spec.md §6's response-code set implies.
func DefaultReplyCode(request wire.Code, rcode unlang.ReturnCode) (wire.Code, bool) {
	switch request {
	case wire.CodeAccessRequest, wire.CodeStatusServer:
		switch rcode {
		case unlang.Ok, unlang.Updated, unlang.Noop:
			return wire.CodeAccessAccept, true
		case unlang.Handled:
			return wire.CodeAccessChallenge, true
		default:
			return wire.CodeAccessReject, true
		}
	case wire.CodeAccountingRequest:
		switch rcode {
		case unlang.Ok, unlang.Updated, unlang.Noop, unlang.NotFound:
			return wire.CodeAccountingResponse, true
		default:
			// Accounting failures are logged, not NAK'd, matching
			// original_source's accounting path (no Accounting-Reject
			// code exists in RFC 2866).
			return 0, false
		}
	case wire.CodeCoARequest:
		if rcode == unlang.Ok || rcode == unlang.Updated {
			return wire.CodeCoAACK, true
		}
		return wire.CodeCoANAK, true
	case wire.CodeDisconnectRequest:
		if rcode == unlang.Ok || rcode == unlang.Updated {
			return wire.CodeDisconnectACK, true
		}
		return wire.CodeDisconnectNAK, true
	default:
		return 0, false
	}
}
