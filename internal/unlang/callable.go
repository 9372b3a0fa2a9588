// SPDX-License-Identifier: GPL-3.0-or-later

package unlang

import "context"

// Callable is one compiled node of an unlang tree (spec.md §3's Callable
// entity). Trees are built once at load time and read only at request
// time; Execute must not mutate anything but the [Request] it is given.
type Callable interface {
	// Name identifies the node for logging and cycle detection.
	Name() string

	// Execute runs the node against req and returns the resulting
	// [ReturnCode]. A non-nil error is either a genuine runtime failure
	// (ctx cancellation, a module's own error) or one of the internal
	// control-flow signals (errBreak, *returnSignal); callers that are
	// not the intended catcher of a signal must propagate it unchanged.
	Execute(ctx context.Context, req *Request) (ReturnCode, error)
}

// Module is a named unit of work a [Single] node invokes (spec.md §4.4).
// A real implementation might run an LDAP search, check a password
// against a local file, or consult an external RADIUS server; Go's
// goroutines stand in for the original interpreter's explicit
// yield/resume machinery — a Module that blocks simply blocks the
// worker goroutine running this request.
type Module interface {
	Name() string
	Invoke(ctx context.Context, method string, req *Request) (ReturnCode, error)
}

// Condition is a compiled boolean expression, evaluated by [If]/[Elsif].
type Condition interface {
	Evaluate(req *Request) (bool, error)
}

// ConditionFunc adapts a function to a [Condition].
type ConditionFunc func(req *Request) (bool, error)

// Evaluate implements [Condition].
func (f ConditionFunc) Evaluate(req *Request) (bool, error) { return f(req) }

// Template is a compiled expansion template, evaluated by [Switch] and
// [Map] (spec.md §4.4's pass-2 fixup: "precompile expansion templates
// into an AST").
type Template interface {
	Expand(req *Request) (any, error)
}

// TemplateFunc adapts a function to a [Template].
type TemplateFunc func(req *Request) (any, error)

// Expand implements [Template].
func (f TemplateFunc) Expand(req *Request) (any, error) { return f(req) }

// MapProcessor is the named backend a [Map] node invokes (e.g. an LDAP
// or SQL search module whose results populate a list of attribute maps).
type MapProcessor interface {
	Name() string
	Process(ctx context.Context, req *Request, arg any, maps []AttributeMap) (ReturnCode, error)
}

// XlatFunc is evaluated by an [Xlat] node for its side effect only; its
// return value is discarded.
type XlatFunc func(ctx context.Context, req *Request) error
