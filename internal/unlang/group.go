// SPDX-License-Identifier: GPL-3.0-or-later

package unlang

import (
	"context"
	"math/rand"
)

// base carries the fields common to every node variant: its name and the
// action table governing how its own [ReturnCode] results are resolved
// by a containing Group/Redundant. Parent/next-sibling pointers from
// spec.md §3's Callable entity are threaded implicitly by the tree shape
// (a child slice) rather than explicit pointers, which is the idiomatic
// Go rendition of an intrusive linked tree.
type base struct {
	name    string
	actions ActionTable
}

// Name implements [Callable].
func (b *base) Name() string { return b.name }

// resolve classifies rc through the node's action table, reporting the
// action to take and, for a priority action, the priority level.
func (b *base) resolve(rc ReturnCode) Action {
	return b.actions[rc]
}

// overrideActions implements [actionOverridable]: every non-unset slot in
// overrides replaces the node's existing entry, leaving slots overrides
// doesn't mention untouched.
func (b *base) overrideActions(overrides ActionTable) {
	for rc, a := range overrides {
		if a != ActionUnset {
			b.actions[rc] = a
		}
	}
}

// Single invokes one named module with a selected method (spec.md §4.4).
type Single struct {
	base
	Module Module
	Method string
}

// NewSingle constructs a Single node, resolving its action table against
// section/kind defaults.
func NewSingle(name string, module Module, method string, section Section, kind GroupKind, overrides ActionTable) *Single {
	return &Single{
		base:   base{name: name, actions: CompileActionTable(overrides, section, kind)},
		Module: module,
		Method: method,
	}
}

// Execute implements [Callable].
func (s *Single) Execute(ctx context.Context, req *Request) (ReturnCode, error) {
	return s.Module.Invoke(ctx, s.Method, req)
}

// runChildren executes children in order, applying table to each child's
// result: ActionReturn stops immediately and propagates the code;
// ActionReject stops immediately and forces Reject; a priority action
// records (code, priority) if it beats the best one seen so far and
// continues to the next child. When every child has run with no
// terminal action and no priority recorded, Ok is returned (a module
// section with nothing to say about its own outcome is not a failure).
func runChildren(ctx context.Context, req *Request, children []Callable, table ActionTable) (ReturnCode, error) {
	bestCode := Ok
	bestPriority := -1
	sawPriority := false

	for _, child := range children {
		code, err := child.Execute(ctx, req)
		if err != nil {
			return Fail, err
		}

		switch action := table[code]; action {
		case ActionReturn:
			return code, nil
		case ActionReject:
			return Reject, nil
		default:
			if n, ok := action.IsPriority(); ok {
				if n > bestPriority {
					bestPriority = n
					bestCode = code
					sawPriority = true
				}
			}
		}
	}

	if !sawPriority {
		return Ok, nil
	}
	return bestCode, nil
}

// Group executes its children in order; its own action table inherits
// the section's default for [KindSimple] (spec.md §4.4).
type Group struct {
	base
	Children []Callable
}

// NewGroup constructs a Group whose action table is resolved against
// section defaults; overrides may replace specific entries.
func NewGroup(name string, children []Callable, section Section, overrides ActionTable) *Group {
	return &Group{
		base:     base{name: name, actions: CompileActionTable(overrides, section, KindSimple)},
		Children: children,
	}
}

// Execute implements [Callable].
func (g *Group) Execute(ctx context.Context, req *Request) (ReturnCode, error) {
	return runChildren(ctx, req, g.Children, g.actions)
}

// childNodes implements [childrenHolder].
func (g *Group) childNodes() []Callable { return g.Children }

// Redundant executes children in order but falls through to the next
// child on a fail-style code; the first non-fail result wins (spec.md
// §4.4).
type Redundant struct {
	base
	Children []Callable
}

// NewRedundant constructs a Redundant group.
func NewRedundant(name string, children []Callable, section Section, overrides ActionTable) *Redundant {
	return &Redundant{
		base:     base{name: name, actions: CompileActionTable(overrides, section, KindRedundant)},
		Children: children,
	}
}

// Execute implements [Callable].
func (r *Redundant) Execute(ctx context.Context, req *Request) (ReturnCode, error) {
	var last ReturnCode = Fail
	for _, child := range r.Children {
		code, err := child.Execute(ctx, req)
		if err != nil {
			return Fail, err
		}
		last = code
		if _, fallsThrough := r.actions[code].IsPriority(); !fallsThrough {
			return code, nil
		}
	}
	return last, nil
}

// childNodes implements [childrenHolder].
func (r *Redundant) childNodes() []Callable { return r.Children }

// LoadBalance picks one child pseudo-randomly and executes only it.
type LoadBalance struct {
	base
	Children []Callable
	Rand     *rand.Rand // overridable for deterministic tests
}

// NewLoadBalance constructs a LoadBalance node.
func NewLoadBalance(name string, children []Callable, section Section, overrides ActionTable) *LoadBalance {
	return &LoadBalance{
		base:     base{name: name, actions: CompileActionTable(overrides, section, KindSimple)},
		Children: children,
		Rand:     rand.New(rand.NewSource(1)),
	}
}

// Execute implements [Callable].
func (l *LoadBalance) Execute(ctx context.Context, req *Request) (ReturnCode, error) {
	if len(l.Children) == 0 {
		return Noop, nil
	}
	child := l.Children[l.Rand.Intn(len(l.Children))]
	return runChildren(ctx, req, []Callable{child}, l.actions)
}

// childNodes implements [childrenHolder].
func (l *LoadBalance) childNodes() []Callable { return l.Children }

// RedundantLoadBalance picks a pseudo-random starting child, then
// behaves like [Redundant] from that point, wrapping around until every
// child has been tried.
type RedundantLoadBalance struct {
	base
	Children []Callable
	Rand     *rand.Rand
}

// NewRedundantLoadBalance constructs a RedundantLoadBalance node.
func NewRedundantLoadBalance(name string, children []Callable, section Section, overrides ActionTable) *RedundantLoadBalance {
	return &RedundantLoadBalance{
		base:     base{name: name, actions: CompileActionTable(overrides, section, KindRedundant)},
		Children: children,
		Rand:     rand.New(rand.NewSource(1)),
	}
}

// Execute implements [Callable].
func (r *RedundantLoadBalance) Execute(ctx context.Context, req *Request) (ReturnCode, error) {
	n := len(r.Children)
	if n == 0 {
		return Noop, nil
	}
	start := r.Rand.Intn(n)
	var last ReturnCode = Fail
	for i := 0; i < n; i++ {
		child := r.Children[(start+i)%n]
		code, err := child.Execute(ctx, req)
		if err != nil {
			return Fail, err
		}
		last = code
		if _, fallsThrough := r.actions[code].IsPriority(); !fallsThrough {
			return code, nil
		}
	}
	return last, nil
}

// childNodes implements [childrenHolder] for RedundantLoadBalance.
func (r *RedundantLoadBalance) childNodes() []Callable { return r.Children }
