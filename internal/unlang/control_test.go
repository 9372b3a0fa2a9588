// SPDX-License-Identifier: GPL-3.0-or-later

package unlang

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIf_ElseBranch(t *testing.T) {
	cond := ConditionFunc(func(req *Request) (bool, error) { return false, nil })
	then := single("then", Ok, SectionAuthorize)
	els := single("else", Updated, SectionAuthorize)
	n := NewIf("if", cond, then, els, SectionAuthorize, ActionTable{})

	code, err := n.Execute(context.Background(), NewRequest(SectionAuthorize))
	require.NoError(t, err)
	assert.Equal(t, Updated, code)
}

func TestSwitch_MatchesCaseOrDefault(t *testing.T) {
	val := TemplateFunc(func(req *Request) (any, error) { return "b", nil })
	cases := []*Case{
		NewCase("a", "a", false, single("a-body", Ok, SectionAuthorize)),
		NewCase("b", "b", false, single("b-body", Updated, SectionAuthorize)),
		NewCase("default", nil, true, single("default-body", Reject, SectionAuthorize)),
	}
	sw, err := NewSwitch("switch", val, cases, SectionAuthorize, ActionTable{})
	require.NoError(t, err)
	code, err := sw.Execute(context.Background(), NewRequest(SectionAuthorize))
	require.NoError(t, err)
	assert.Equal(t, Updated, code)
}

func TestSwitch_FallsBackToDefault(t *testing.T) {
	val := TemplateFunc(func(req *Request) (any, error) { return "nomatch", nil })
	cases := []*Case{
		NewCase("a", "a", false, single("a-body", Ok, SectionAuthorize)),
		NewCase("default", nil, true, single("default-body", Reject, SectionAuthorize)),
	}
	sw, err := NewSwitch("switch", val, cases, SectionAuthorize, ActionTable{})
	require.NoError(t, err)
	code, err := sw.Execute(context.Background(), NewRequest(SectionAuthorize))
	require.NoError(t, err)
	assert.Equal(t, Reject, code)
}

func TestSwitch_TwoDefaultCasesFailToCompile(t *testing.T) {
	val := TemplateFunc(func(req *Request) (any, error) { return "x", nil })
	cases := []*Case{
		NewCase("default1", nil, true, single("d1", Ok, SectionAuthorize)),
		NewCase("default2", nil, true, single("d2", Reject, SectionAuthorize)),
	}
	_, err := NewSwitch("switch", val, cases, SectionAuthorize, ActionTable{})
	require.Error(t, err)
	assert.Equal(t, "Cannot have two 'default' case statements", err.Error())
}

func TestCase_AlwaysReturnsRegardlessOfOverride(t *testing.T) {
	c := NewCase("x", "x", false, single("body", Noop, SectionAuthorize))
	assert.Equal(t, ActionReturn, c.actions[Noop])
	assert.Equal(t, ActionReturn, c.actions[Reject])
}

func TestForeach_BreakStopsEarly(t *testing.T) {
	req := NewRequest(SectionAuthorize)
	req.Packet.Add("Filter-Id", "one")
	req.Packet.Add("Filter-Id", "two")
	req.Packet.Add("Filter-Id", "three")

	var seen []any
	body := NewXlat("collect", func(ctx context.Context, r *Request) error {
		v, _ := r.ForeachVar("i")
		seen = append(seen, v)
		if v == "two" {
			return nil
		}
		return nil
	})
	group := NewGroup("body", []Callable{body, NewBreak()}, SectionAuthorize, ActionTable{})
	fe := NewForeach("foreach", "Filter-Id", "i", group, SectionAuthorize, ActionTable{})

	_, err := fe.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []any{"one"}, seen, "Break in the loop body ends the loop after the first iteration")
}

func TestReturn_SignalsUpThroughRunSection(t *testing.T) {
	root := NewGroup("root", []Callable{
		single("pre", Noop, SectionAuthorize),
		NewReturn(Handled),
		single("post", Reject, SectionAuthorize),
	}, SectionAuthorize, ActionTable{})

	code, err := RunSection(context.Background(), root, NewRequest(SectionAuthorize))
	require.NoError(t, err)
	assert.Equal(t, Handled, code)
}

func TestUpdate_OperatorSemantics(t *testing.T) {
	req := NewRequest(SectionAuthorize)
	req.Packet.Add("Existing", "orig")

	entries := []AttributeMap{
		{LHS: "Existing", Op: OpAssign, RHS: TemplateFunc(func(r *Request) (any, error) { return "ignored", nil })},
		{LHS: "New", Op: OpOverwrite, RHS: TemplateFunc(func(r *Request) (any, error) { return "fresh", nil })},
		{LHS: "Listy", Op: OpAdd, RHS: TemplateFunc(func(r *Request) (any, error) { return "v1", nil })},
		{LHS: "Listy", Op: OpAdd, RHS: TemplateFunc(func(r *Request) (any, error) { return "v2", nil })},
	}
	u := NewUpdate("update", "request", entries, SectionAuthorize, ActionTable{})
	code, err := u.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, Updated, code)

	v, _ := req.Packet.Get("Existing")
	assert.Equal(t, "orig", v, "OpAssign must not overwrite an existing attribute")
	v, _ = req.Packet.Get("New")
	assert.Equal(t, "fresh", v)
	assert.Equal(t, []any{"v1", "v2"}, req.Packet.GetAll("Listy"))
}

func TestUpdate_DeleteWildcard(t *testing.T) {
	req := NewRequest(SectionAuthorize)
	req.Packet.Add("Filter-Id", "a")
	req.Packet.Add("Filter-Id", "b")

	u := NewUpdate("update", "request", []AttributeMap{{LHS: "Filter-Id", Op: OpDeleteWildcard}}, SectionAuthorize, ActionTable{})
	_, err := u.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, req.Packet.GetAll("Filter-Id"))
}
