// SPDX-License-Identifier: GPL-3.0-or-later

// Package addr holds the Address value type shared by the tracking table,
// the client registry, and the connection sharder (spec.md §3).
package addr

import "net/netip"

// Address identifies the network path a packet arrived on: the source and
// destination endpoints plus the interface it was received on. It is a
// value type, copied into tracking entries and connection keys.
type Address struct {
	// Src is the source IP and port the packet arrived from.
	Src netip.AddrPort

	// Dst is the local IP and port the packet was received on.
	Dst netip.AddrPort

	// Iface is the arriving interface index, or 0 if unknown/not tracked.
	Iface int
}

// SrcIP returns the source IP address, stripped of any port.
func (a Address) SrcIP() netip.Addr {
	return a.Src.Addr()
}

// String renders the address tuple for logging.
func (a Address) String() string {
	return a.Src.String() + "->" + a.Dst.String()
}
