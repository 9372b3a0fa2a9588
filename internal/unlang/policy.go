// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: original_source/src/lib/unlang/compile.c's policy
// expansion and cycle breaking ("a policy referencing itself falls
// through to the concrete module instance of the same name").

package unlang

import (
	"context"
	"fmt"
)

// Policy expands to a named group compiled from the policy catalog
// (spec.md §4.4). Method records the `name.method` suffix; Execute runs
// Body as compiled and does not change the method its modules are
// invoked with.
type Policy struct {
	base
	Body   Callable
	Method string
}

// NewPolicy constructs a Policy node wrapping an already-compiled body.
func NewPolicy(name string, body Callable, method string, section Section, overrides ActionTable) *Policy {
	return &Policy{
		base:   base{name: name, actions: CompileActionTable(overrides, section, KindSimple)},
		Body:   body,
		Method: method,
	}
}

// Execute implements [Callable].
func (p *Policy) Execute(ctx context.Context, req *Request) (ReturnCode, error) {
	return runChildren(ctx, req, []Callable{p.Body}, p.actions)
}

// Catalog compiles named policies, detecting references that would
// re-enter their own containing policy and breaking the recursion by
// falling through to a concrete module of the same name instead (spec.md
// §4.4's "Recursion & cycles").
type Catalog struct {
	policies map[string]func() Callable // lazy: built once all policies are registered
	modules  map[string]Module

	compiling map[string]bool
	compiled  map[string]Callable
}

// NewCatalog constructs an empty policy catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		policies:  make(map[string]func() Callable),
		modules:   make(map[string]Module),
		compiling: make(map[string]bool),
		compiled:  make(map[string]Callable),
	}
}

// Register adds a named policy, deferring its body's construction to
// build, which receives the catalog itself so it can reference other
// (possibly not-yet-built) policies by name via [Catalog.Resolve].
func (c *Catalog) Register(name string, build func(cat *Catalog) Callable) {
	c.policies[name] = func() Callable { return build(c) }
}

// RegisterModule makes a concrete [Module] available as the cycle-break
// fallback for a same-named policy.
func (c *Catalog) RegisterModule(m Module) {
	c.modules[m.Name()] = m
}

// Resolve returns the compiled [Callable] for a named policy, building
// it on first reference and memoizing the result so repeated references
// share one compiled subtree (spec.md's "policy recursion via shared
// compiled subtree"). A reference encountered while name is still being
// built is a cycle: Resolve breaks it by returning the concrete module
// registered under the same name, wrapped as a [Single], instead of
// recursing into the policy again.
func (c *Catalog) Resolve(name, section string) (Callable, error) {
	if built, ok := c.compiled[name]; ok {
		return built, nil
	}
	if c.compiling[name] {
		mod, ok := c.modules[name]
		if !ok {
			return nil, fmt.Errorf("unlang: policy %q is cyclic and has no concrete module fallback", name)
		}
		return &Single{
			base:   base{name: name, actions: ActionTable{}},
			Module: mod,
			Method: section,
		}, nil
	}

	build, ok := c.policies[name]
	if !ok {
		return nil, fmt.Errorf("unlang: undefined policy %q", name)
	}

	c.compiling[name] = true
	body := build()
	delete(c.compiling, name)

	c.compiled[name] = body
	return body, nil
}

// RunSection executes root as the entry point of one server section
// invocation, catching a [Return] signal raised anywhere beneath it and
// translating it into a plain [ReturnCode] result (spec.md §4.4:
// Return/Break are control-flow terminators scoped to the section/
// policy/foreach that contains them).
func RunSection(ctx context.Context, root Callable, req *Request) (ReturnCode, error) {
	code, err := root.Execute(ctx, req)
	if rc, ok := asReturnSignal(err); ok {
		return rc, nil
	}
	return code, err
}
