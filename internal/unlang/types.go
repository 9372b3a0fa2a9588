// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: original_source/src/lib/server/rcode.h's fr_rcode_t and
// original_source/src/lib/unlang/base.c's default mod_action tables,
// reimplemented as Go enums plus a compile-time-filled action table
// instead of the original's static const arrays indexed by section.

// Package unlang implements the Unlang Interpreter of spec.md §4.4: a
// compiled tree of callables walked at request time, threading module
// return codes through per-node action tables to decide whether to
// continue, return, or reject.
package unlang

// ReturnCode is the result of invoking a module or evaluating a node.
type ReturnCode int

const (
	Reject ReturnCode = iota
	Fail
	Ok
	Handled
	Invalid
	UserLock
	NotFound
	Noop
	Updated

	numReturnCodes = int(Updated) + 1
)

func (rc ReturnCode) String() string {
	switch rc {
	case Reject:
		return "reject"
	case Fail:
		return "fail"
	case Ok:
		return "ok"
	case Handled:
		return "handled"
	case Invalid:
		return "invalid"
	case UserLock:
		return "userlock"
	case NotFound:
		return "notfound"
	case Noop:
		return "noop"
	case Updated:
		return "updated"
	default:
		return "unknown"
	}
}

// Action is what a node does after seeing a given [ReturnCode]. Zero
// (ActionUnset) means "unset, inherit the section/group-type default" and
// never survives past compile time: [CompileActionTable] replaces every
// unset slot with its default before the tree is used at request time.
// A positive value is a priority (1..N, strictly ordered, higher wins);
// [ActionReturn] and [ActionReject] are the two terminal actions.
type Action int

const (
	ActionUnset Action = iota
	ActionReturn
	ActionReject

	// firstPriority is the smallest valid priority value. Priorities are
	// represented by shifting past the two terminal sentinels so that
	// ActionTable can store everything in one comparable int.
	firstPriority = 100
)

// Priority constructs the Action for priority level n (1..N).
func Priority(n int) Action { return Action(firstPriority + n) }

// IsPriority reports whether a is a priority action, and if so its level.
func (a Action) IsPriority() (int, bool) {
	if a < firstPriority {
		return 0, false
	}
	return int(a - firstPriority), true
}

// ActionTable maps every [ReturnCode] to an [Action]. It is embedded in
// every node and filled in fully (no [ActionUnset] slots) by the time a
// tree is handed to [Callable.Execute].
type ActionTable [numReturnCodes]Action

// Set overrides the action for rc, returning the table for chaining.
func (t ActionTable) Set(rc ReturnCode, a Action) ActionTable {
	t[rc] = a
	return t
}

// fillDefaults replaces every ActionUnset slot in t with def's value at
// the same index (spec.md §4.4: "any zero slot inherits the applicable
// default").
func (t ActionTable) fillDefaults(def ActionTable) ActionTable {
	out := t
	for i := range out {
		if out[i] == ActionUnset {
			out[i] = def[i]
		}
	}
	return out
}

// Section names a configured server section (spec.md §4.4's list).
type Section string

const (
	SectionAuthorize    Section = "authorize"
	SectionAuthenticate Section = "authenticate"
	SectionPreAcct      Section = "preacct"
	SectionAccounting   Section = "accounting"
	SectionSession      Section = "session"
	SectionPreProxy     Section = "pre-proxy"
	SectionPostProxy    Section = "post-proxy"
	SectionPostAuth     Section = "post-auth"
	SectionRecvCoA      Section = "recv-coa"
	SectionSendCoA      Section = "send-coa"
)

// GroupKind distinguishes a plain [Group] from a [Redundant]/
// [RedundantLoadBalance] group for default-table purposes.
type GroupKind int

const (
	KindSimple GroupKind = iota
	KindRedundant
)

// simpleDefault builds the default action table shared by most simple
// groups: the named return codes Return, everything else unset (callers
// layer priorities on top via Set).
func simpleDefault(returns ...ReturnCode) ActionTable {
	var t ActionTable
	for _, rc := range returns {
		t[rc] = ActionReturn
	}
	return t
}

// DefaultActionTable returns the default table for a (section, kind)
// pair, per the table spelled out in spec.md §4.4.
func DefaultActionTable(section Section, kind GroupKind) ActionTable {
	if kind == KindRedundant {
		t := simpleDefault(Reject, Ok, Handled, Invalid, UserLock, NotFound, Noop, Updated)
		t[Fail] = Priority(1)
		return t
	}

	switch section {
	case SectionAuthenticate:
		t := simpleDefault(Reject, Ok, Handled, UserLock, NotFound)
		t[Fail] = Priority(1)
		t[Invalid] = Priority(1)
		t[Noop] = Priority(1)
		t[Updated] = Priority(1)
		return t

	case SectionAuthorize:
		t := simpleDefault(Reject, Fail, Handled, Invalid, UserLock)
		t[Ok] = Priority(3)
		t[NotFound] = Priority(1)
		t[Noop] = Priority(2)
		t[Updated] = Priority(4)
		return t

	case SectionAccounting:
		t := simpleDefault(Reject, Fail, Handled, Invalid, UserLock, NotFound)
		t[Noop] = Priority(1)
		t[Ok] = Priority(2)
		t[Updated] = Priority(3)
		return t

	default:
		// Every other section behaves like authorize/simple absent a
		// more specific rule in spec.md §4.4.
		t := simpleDefault(Reject, Fail, Handled, Invalid, UserLock)
		t[Ok] = Priority(3)
		t[NotFound] = Priority(1)
		t[Noop] = Priority(2)
		t[Updated] = Priority(4)
		return t
	}
}

// authenticateOverride is the distinct table spec.md §4.4 calls out for
// nodes running inside an authenticate section: "notfound=1, ok=2,
// noop=3, updated=4; else Return".
func authenticateOverride() ActionTable {
	t := simpleDefault(Reject, Fail, Handled, Invalid, UserLock)
	t[NotFound] = Priority(1)
	t[Ok] = Priority(2)
	t[Noop] = Priority(3)
	t[Updated] = Priority(4)
	return t
}

// CompileActionTable resolves a possibly-partial table against the
// applicable default for (section, kind), applying the authenticate
// section's override when relevant (spec.md §4.4).
func CompileActionTable(t ActionTable, section Section, kind GroupKind) ActionTable {
	def := DefaultActionTable(section, kind)
	if section == SectionAuthenticate && kind == KindSimple {
		def = authenticateOverride()
	}
	return t.fillDefaults(def)
}
