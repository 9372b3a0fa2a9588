// SPDX-License-Identifier: GPL-3.0-or-later

package radiuscore

import "net/netip"

// NewEndpointFunc returns a [Func] that always returns the given [netip.AddrPort].
//
// This is a convenience wrapper around [ConstFunc] for the common case of
// injecting a network endpoint into a pipeline: cmd/radiusbench uses it to
// turn a resolved RADIUS server address into the source of a
// Compose2(NewEndpointFunc(addr), dial) pipeline, rather than calling
// dial.Call(ctx, addr) directly.
func NewEndpointFunc(endpoint netip.AddrPort) Func[Unit, netip.AddrPort] {
	return ConstFunc(endpoint)
}
