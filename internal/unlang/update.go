// SPDX-License-Identifier: GPL-3.0-or-later

package unlang

import (
	"context"
	"fmt"
)

// Operator is the left-hand-side/right-hand-side relation an [UpdateMap]
// entry applies (spec.md §4.4).
type Operator int

const (
	// OpAssign is `=`: set only if the attribute does not already exist.
	OpAssign Operator = iota
	// OpOverwrite is `:=`: replace any existing value(s).
	OpOverwrite
	// OpAdd is `+=`: always append a new instance.
	OpAdd
	// OpFilter is `==`: used in condition contexts, not applied here.
	OpFilter
	// OpDeleteWildcard is the unary `!*`: remove every instance of the
	// named attribute, ignoring any right-hand side.
	OpDeleteWildcard
)

// AttributeMap is one LHS-op-RHS entry of an [Update] section or a
// [Map]'s inner map list.
type AttributeMap struct {
	LHS string
	Op  Operator
	RHS Template
}

// listFor resolves which of a Request's three attribute lists an
// Update/Map target list name refers to.
func listFor(req *Request, list string) *AttributeList {
	switch list {
	case "reply":
		return req.Reply
	case "control":
		return req.Control
	default:
		return req.Packet
	}
}

// Update applies a set of attribute maps against request state in order
// (spec.md §4.4).
type Update struct {
	base
	List    string // "request" (default), "reply", or "control"
	Entries []AttributeMap
}

// NewUpdate constructs an Update node.
func NewUpdate(name, list string, entries []AttributeMap, section Section, overrides ActionTable) *Update {
	return &Update{
		base:    base{name: name, actions: CompileActionTable(overrides, section, KindSimple)},
		List:    list,
		Entries: entries,
	}
}

// Execute implements [Callable]. An Update that successfully applies at
// least one entry returns Updated; an Update whose every entry was a
// no-op (e.g. OpAssign against an already-present attribute) returns
// Noop.
func (u *Update) Execute(ctx context.Context, req *Request) (ReturnCode, error) {
	list := listFor(req, u.List)
	applied := false

	for _, e := range u.Entries {
		if e.Op == OpDeleteWildcard {
			list.DeleteAll(e.LHS)
			applied = true
			continue
		}

		value, err := e.RHS.Expand(req)
		if err != nil {
			return Fail, fmt.Errorf("unlang: expand %s: %w", e.LHS, err)
		}

		switch e.Op {
		case OpOverwrite:
			list.Set(e.LHS, value)
			applied = true
		case OpAdd:
			list.Add(e.LHS, value)
			applied = true
		case OpAssign:
			if _, exists := list.Get(e.LHS); !exists {
				list.Add(e.LHS, value)
				applied = true
			}
		}
	}

	if !applied {
		return Noop, nil
	}
	return Updated, nil
}

// Map invokes a named [MapProcessor] with an expanded argument and an
// inner map list, applying its own return code through the node's
// action table at the caller's discretion (spec.md §4.4).
type Map struct {
	base
	Processor MapProcessor
	Arg       Template
	Entries   []AttributeMap
}

// NewMap constructs a Map node.
func NewMap(name string, processor MapProcessor, arg Template, entries []AttributeMap, section Section, overrides ActionTable) *Map {
	return &Map{
		base:      base{name: name, actions: CompileActionTable(overrides, section, KindSimple)},
		Processor: processor,
		Arg:       arg,
		Entries:   entries,
	}
}

// Execute implements [Callable].
func (m *Map) Execute(ctx context.Context, req *Request) (ReturnCode, error) {
	arg, err := m.Arg.Expand(req)
	if err != nil {
		return Fail, err
	}
	return m.Processor.Process(ctx, req, arg, m.Entries)
}

// Xlat evaluates a string-expansion expression purely for its side
// effect (spec.md §4.4 notes this is rare).
type Xlat struct {
	base
	Fn XlatFunc
}

// NewXlat constructs an Xlat node.
func NewXlat(name string, fn XlatFunc) *Xlat {
	return &Xlat{base: base{name: name}, Fn: fn}
}

// Execute implements [Callable].
func (x *Xlat) Execute(ctx context.Context, req *Request) (ReturnCode, error) {
	if err := x.Fn(ctx, req); err != nil {
		return Fail, err
	}
	return Noop, nil
}
