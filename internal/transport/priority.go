// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import "github.com/radiuscore/radiuscore/internal/tracking"
import "github.com/radiuscore/radiuscore/internal/wire"

// DefaultPriority returns the default scheduling priority for a packet
// code (spec.md §6): "Access-Request HIGH, Accounting-Request LOW, CoA
// NORMAL, Disconnect NORMAL, Status-Server NOW (preempts everything)".
func DefaultPriority(code wire.Code) tracking.Priority {
	switch code {
	case wire.CodeStatusServer:
		return tracking.PriorityNow
	case wire.CodeAccessRequest:
		return tracking.PriorityHigh
	case wire.CodeAccountingRequest:
		return tracking.PriorityLow
	case wire.CodeCoARequest, wire.CodeDisconnectRequest:
		return tracking.PriorityNormal
	default:
		return tracking.PriorityNormal
	}
}

// PriorityTable resolves each configured code's priority, falling back
// to [DefaultPriority] for any code absent from the override map (the
// listener's `priority { <PacketType> = <int> }` block of spec.md §6).
type PriorityTable map[wire.Code]tracking.Priority

// Resolve returns the priority for code.
func (t PriorityTable) Resolve(code wire.Code) tracking.Priority {
	if t != nil {
		if p, ok := t[code]; ok {
			return p
		}
	}
	return DefaultPriority(code)
}
