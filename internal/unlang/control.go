// SPDX-License-Identifier: GPL-3.0-or-later

package unlang

import (
	"context"
	"errors"
	"fmt"
)

// If evaluates a compiled condition tree and executes Then when true,
// otherwise Else (which may itself be another *If representing an
// Elsif, or a plain body representing a trailing Else). A compile-time
// always-true/false Cond should be pruned by the caller before
// construction (spec.md §4.4); If itself just evaluates whatever
// Condition it is given.
type If struct {
	base
	Cond Condition
	Then Callable
	Else Callable // nil, another *If (elsif), or a plain body (else)
}

// NewIf constructs an If node.
func NewIf(name string, cond Condition, then, els Callable, section Section, overrides ActionTable) *If {
	return &If{
		base: base{name: name, actions: CompileActionTable(overrides, section, KindSimple)},
		Cond: cond,
		Then: then,
		Else: els,
	}
}

// Execute implements [Callable].
func (n *If) Execute(ctx context.Context, req *Request) (ReturnCode, error) {
	ok, err := n.Cond.Evaluate(req)
	if err != nil {
		return Fail, err
	}
	var branch Callable
	if ok {
		branch = n.Then
	} else {
		branch = n.Else
	}
	if branch == nil {
		return Noop, nil
	}
	return runChildren(ctx, req, []Callable{branch}, n.actions)
}

// childNodes implements [childrenHolder].
func (n *If) childNodes() []Callable {
	var out []Callable
	if n.Then != nil {
		out = append(out, n.Then)
	}
	if n.Else != nil {
		out = append(out, n.Else)
	}
	return out
}

// Switch evaluates Value into a result and dispatches to the matching
// Case, or the `default` case if present (spec.md §4.4).
type Switch struct {
	base
	Value Template
	Cases []*Case
}

// NewSwitch constructs a Switch node.
//
// Returns an error if more than one Case is marked IsDefault: a bare
// `case` is the default arm (spec.md §4.4), and at most one default is
// allowed, matching original_source/src/main/modcall.c:1961's
// compile-time rejection of a second default case.
func NewSwitch(name string, value Template, cases []*Case, section Section, overrides ActionTable) (*Switch, error) {
	seenDefault := false
	for _, c := range cases {
		if !c.IsDefault {
			continue
		}
		if seenDefault {
			return nil, errors.New("Cannot have two 'default' case statements")
		}
		seenDefault = true
	}
	return &Switch{
		base:  base{name: name, actions: CompileActionTable(overrides, section, KindSimple)},
		Value: value,
		Cases: cases,
	}, nil
}

// Execute implements [Callable].
func (s *Switch) Execute(ctx context.Context, req *Request) (ReturnCode, error) {
	got, err := s.Value.Expand(req)
	if err != nil {
		return Fail, err
	}

	var fallback *Case
	for _, c := range s.Cases {
		if c.IsDefault {
			fallback = c
			continue
		}
		if caseMatches(c.Value, got) {
			return c.Execute(ctx, req)
		}
	}
	if fallback != nil {
		return fallback.Execute(ctx, req)
	}
	return Noop, nil
}

// childNodes implements [childrenHolder].
func (s *Switch) childNodes() []Callable {
	out := make([]Callable, len(s.Cases))
	for i, c := range s.Cases {
		out[i] = c
	}
	return out
}

// caseMatches compares a Case's literal against the switch value with
// type-directed casting: equal underlying types compare directly,
// otherwise both sides are compared via their string form (spec.md
// §4.4's pass-2 fixup "cast literal right-hand sides to the left-hand
// attribute's type" — the dictionary-aware cast itself happens above
// this package; here we fall back to a string comparison when the Go
// types differ).
func caseMatches(want, got any) bool {
	if want == got {
		return true
	}
	return fmt.Sprint(want) == fmt.Sprint(got)
}

// Case is one arm of a [Switch]. Its action table always forces Return
// regardless of overrides, preventing fallthrough into sibling cases
// (spec.md §4.4: "Every Case's action table forces Return to prevent
// fallthrough").
type Case struct {
	base
	Value     any
	IsDefault bool
	Body      Callable
}

// NewCase constructs a Case node.
func NewCase(name string, value any, isDefault bool, body Callable) *Case {
	var t ActionTable
	for i := range t {
		t[i] = ActionReturn
	}
	return &Case{
		base:      base{name: name, actions: t},
		Value:     value,
		IsDefault: isDefault,
		Body:      body,
	}
}

// Execute implements [Callable].
func (c *Case) Execute(ctx context.Context, req *Request) (ReturnCode, error) {
	if c.Body == nil {
		return Noop, nil
	}
	code, err := c.Body.Execute(ctx, req)
	if err != nil {
		return Fail, err
	}
	return code, nil
}

// childNodes implements [childrenHolder].
func (c *Case) childNodes() []Callable {
	if c.Body == nil {
		return nil
	}
	return []Callable{c.Body}
}

// Foreach iterates a list-valued attribute reference, binding each
// element to Var for the duration of one iteration of Body. A [Break]
// inside Body ends the loop early without propagating further up
// (spec.md §4.4).
type Foreach struct {
	base
	Attribute string
	Var       string
	Body      Callable
}

// NewForeach constructs a Foreach node.
func NewForeach(name, attribute, loopVar string, body Callable, section Section, overrides ActionTable) *Foreach {
	return &Foreach{
		base:      base{name: name, actions: CompileActionTable(overrides, section, KindSimple)},
		Attribute: attribute,
		Var:       loopVar,
		Body:      body,
	}
}

// Execute implements [Callable].
func (f *Foreach) Execute(ctx context.Context, req *Request) (ReturnCode, error) {
	values := req.Packet.GetAll(f.Attribute)
	last := Noop
	for _, v := range values {
		req.pushForeach(f.Var, v)
		code, err := f.Body.Execute(ctx, req)
		req.popForeach()

		if err == errBreak {
			break
		}
		if err != nil {
			return Fail, err
		}
		last = code
		if action := f.actions[code]; action == ActionReturn {
			return code, nil
		} else if action == ActionReject {
			return Reject, nil
		}
	}
	return last, nil
}

// childNodes implements [childrenHolder].
func (f *Foreach) childNodes() []Callable {
	if f.Body == nil {
		return nil
	}
	return []Callable{f.Body}
}

// Break exits the nearest enclosing [Foreach]. The compiler is
// responsible for rejecting a Break with no enclosing Foreach; at
// runtime Break simply raises the signal Foreach watches for.
type Break struct{ base }

// NewBreak constructs a Break node.
func NewBreak() *Break { return &Break{base: base{name: "break"}} }

// Execute implements [Callable].
func (*Break) Execute(ctx context.Context, req *Request) (ReturnCode, error) {
	return Noop, errBreak
}

// Return terminates the enclosing section/policy immediately with Code
// (spec.md §4.4).
type Return struct {
	base
	Code ReturnCode
}

// NewReturn constructs a Return node.
func NewReturn(code ReturnCode) *Return {
	return &Return{base: base{name: "return"}, Code: code}
}

// Execute implements [Callable].
func (r *Return) Execute(ctx context.Context, req *Request) (ReturnCode, error) {
	return r.Code, &returnSignal{Code: r.Code}
}
