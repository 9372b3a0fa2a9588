// SPDX-License-Identifier: GPL-3.0-or-later

package unlang

import (
	"errors"
	"fmt"
)

// Attribute is one (name, value) pair in a [Request]'s attribute list.
// Values are left as `any`; the dictionary/type system that would give
// them RADIUS data types lives above this package.
type Attribute struct {
	Name  string
	Value any
}

// AttributeList is an ordered, append-biased store of [Attribute]s,
// mirroring how original_source's fr_pair_list_t is walked and mutated
// by unlang update sections: order matters for multi-valued attributes
// and wildcard deletes operate on all matches in place.
type AttributeList struct {
	items []Attribute
}

// All returns every attribute currently in the list, in insertion order.
func (l *AttributeList) All() []Attribute { return l.items }

// Get returns the first attribute named name.
func (l *AttributeList) Get(name string) (any, bool) {
	for _, it := range l.items {
		if it.Name == name {
			return it.Value, true
		}
	}
	return nil, false
}

// GetAll returns every value for attributes named name, preserving order
// — used by [Foreach] to iterate a list-valued reference.
func (l *AttributeList) GetAll(name string) []any {
	var out []any
	for _, it := range l.items {
		if it.Name == name {
			out = append(out, it.Value)
		}
	}
	return out
}

// Add appends a new attribute unconditionally (the `+=` operator).
func (l *AttributeList) Add(name string, value any) {
	l.items = append(l.items, Attribute{Name: name, Value: value})
}

// Set replaces every existing attribute named name with a single value
// (the `:=` operator), or appends it if none exist (the `=` operator
// when the attribute is absent).
func (l *AttributeList) Set(name string, value any) {
	for i := range l.items {
		if l.items[i].Name == name {
			l.items[i].Value = value
			l.truncateAfter(name, i)
			return
		}
	}
	l.Add(name, value)
}

// truncateAfter removes any further occurrences of name after index i,
// so Set leaves exactly one attribute with that name.
func (l *AttributeList) truncateAfter(name string, i int) {
	out := l.items[:i+1]
	for _, it := range l.items[i+1:] {
		if it.Name != name {
			out = append(out, it)
		}
	}
	l.items = out
}

// SetIfAbsent implements the `=` operator when the attribute already
// exists: a no-op, per RADIUS assignment semantics.
func (l *AttributeList) SetIfAbsent(name string, value any) {
	if _, ok := l.Get(name); ok {
		return
	}
	l.Add(name, value)
}

// DeleteAll removes every attribute named name (the unary wildcard
// delete, `!* ANY` in unlang update syntax).
func (l *AttributeList) DeleteAll(name string) {
	out := l.items[:0]
	for _, it := range l.items {
		if it.Name != name {
			out = append(out, it)
		}
	}
	l.items = out
}

// Request is the mutable state threaded through one interpreter run: the
// request's own attributes, the reply being built, and scratch state for
// Foreach iteration variables. A Request is used by exactly one
// goroutine at a time — spec.md §4's "the interpreter never re-enters a
// node while the node's children are executing on the same logical
// request" rules out concurrent use.
type Request struct {
	Section Section

	Packet *AttributeList
	Reply   *AttributeList
	Control *AttributeList

	// foreachVars holds the current value bound by each enclosing
	// Foreach, keyed by loop variable name, innermost shadowing outer.
	foreachVars []foreachFrame
}

type foreachFrame struct {
	name  string
	value any
}

// NewRequest constructs an empty Request for the given section.
func NewRequest(section Section) *Request {
	return &Request{
		Section: section,
		Packet:  &AttributeList{},
		Reply:   &AttributeList{},
		Control: &AttributeList{},
	}
}

func (r *Request) pushForeach(name string, value any) {
	r.foreachVars = append(r.foreachVars, foreachFrame{name: name, value: value})
}

func (r *Request) popForeach() {
	r.foreachVars = r.foreachVars[:len(r.foreachVars)-1]
}

// ForeachVar resolves a loop variable reference bound by an enclosing
// Foreach, searching innermost-first.
func (r *Request) ForeachVar(name string) (any, bool) {
	for i := len(r.foreachVars) - 1; i >= 0; i-- {
		if r.foreachVars[i].name == name {
			return r.foreachVars[i].value, true
		}
	}
	return nil, false
}

// errBreak is the control-flow signal a [Break] node raises; only a
// [Foreach] catches it. The compiler rejects a Break with no enclosing
// Foreach, so at runtime an uncaught errBreak is an internal error.
var errBreak = errors.New("unlang: break outside foreach")

// returnSignal is raised by a [Return] node and caught by the nearest
// section/policy boundary, short-circuiting everything in between with
// Code.
type returnSignal struct {
	Code ReturnCode
}

func (s *returnSignal) Error() string {
	return fmt.Sprintf("unlang: return %s", s.Code)
}

// asReturnSignal reports whether err is a [returnSignal] and, if so, its
// code.
func asReturnSignal(err error) (ReturnCode, bool) {
	var rs *returnSignal
	if errors.As(err, &rs) {
		return rs.Code, true
	}
	return 0, false
}
