// SPDX-License-Identifier: GPL-3.0-or-later
//
// Grounded on: original_source/src/main/modcall.c's unlang_fixup_actions,
// which patches a compiled authenticate section's direct children with an
// `authtype_actions = { ... }` override block taken from the matching
// Auth-Type subsection, invoked once per section compile rather than
// recursively per nested group.

package unlang

// CompileOption configures a behavior spec.md §9's Open Question 1 left
// ambiguous: whether an authenticate section's authtype_actions override
// block applies only to the section's direct children or to every node
// in their subtrees.
type CompileOption struct {
	// AuthTypeActionsRecursive applies authtype_actions to every
	// descendant of an authenticate section's children, not just the
	// children themselves. Default false: this module follows the literal
	// reading of unlang_fixup_actions, which runs once per section compile
	// and is never re-invoked for nested groups.
	AuthTypeActionsRecursive bool
}

// actionOverridable is implemented by every node's embedded [base],
// letting a compile-time pass patch specific ReturnCode->Action slots
// after construction without each node variant exposing its internals.
type actionOverridable interface {
	overrideActions(overrides ActionTable)
}

// childrenHolder is implemented by every group-shaped node, letting
// ApplyAuthTypeActions walk subtrees when CompileOption.AuthTypeActionsRecursive
// is set.
type childrenHolder interface {
	childNodes() []Callable
}

// ApplyAuthTypeActions patches overrides onto the authenticate section's
// compiled children (spec.md §6's per-Auth-Type `{ code = action }`
// block), honoring opt.AuthTypeActionsRecursive.
func ApplyAuthTypeActions(children []Callable, overrides ActionTable, opt CompileOption) {
	for _, c := range children {
		applyOverridesToNode(c, overrides, opt.AuthTypeActionsRecursive)
	}
}

func applyOverridesToNode(c Callable, overrides ActionTable, recursive bool) {
	if ao, ok := c.(actionOverridable); ok {
		ao.overrideActions(overrides)
	}
	if !recursive {
		return
	}
	if ch, ok := c.(childrenHolder); ok {
		for _, child := range ch.childNodes() {
			applyOverridesToNode(child, overrides, recursive)
		}
	}
}
