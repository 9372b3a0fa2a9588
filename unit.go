// SPDX-License-Identifier: GPL-3.0-or-later

package radiuscore

// Unit is a type not containing any value (analogous to an
// explicit `void` type in C and C++).
//
// Use this type to construct [Func] that take no argument
// or return no value to the caller. [NewEndpointFunc] returns a
// Func[Unit, netip.AddrPort]: the source stage of a dial pipeline has
// nothing to consume, only a fixed server address to produce.
type Unit struct{}
