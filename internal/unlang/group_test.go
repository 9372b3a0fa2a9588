// SPDX-License-Identifier: GPL-3.0-or-later

package unlang

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModule struct {
	name string
	rc   ReturnCode
	err  error
}

func (m *fakeModule) Name() string { return m.name }

func (m *fakeModule) Invoke(ctx context.Context, method string, req *Request) (ReturnCode, error) {
	return m.rc, m.err
}

func single(name string, rc ReturnCode, section Section) *Single {
	return NewSingle(name, &fakeModule{name: name, rc: rc}, "authorize", section, KindSimple, ActionTable{})
}

func TestGroup_AuthorizeDefaults_HighestPriorityWins(t *testing.T) {
	children := []Callable{
		single("a", Noop, SectionAuthorize),    // priority 2
		single("b", NotFound, SectionAuthorize), // priority 1
		single("c", Updated, SectionAuthorize),  // priority 4, should win
		single("d", Ok, SectionAuthorize),       // priority 3
	}
	g := NewGroup("authorize", children, SectionAuthorize, ActionTable{})
	code, err := g.Execute(context.Background(), NewRequest(SectionAuthorize))
	require.NoError(t, err)
	assert.Equal(t, Updated, code)
}

func TestGroup_AuthorizeDefaults_RejectShortCircuits(t *testing.T) {
	children := []Callable{
		single("a", Updated, SectionAuthorize),
		single("b", Reject, SectionAuthorize),
		single("c", Updated, SectionAuthorize),
	}
	g := NewGroup("authorize", children, SectionAuthorize, ActionTable{})
	code, err := g.Execute(context.Background(), NewRequest(SectionAuthorize))
	require.NoError(t, err)
	assert.Equal(t, Reject, code, "Reject must short-circuit remaining siblings")
}

func TestGroup_AuthenticateDefaults(t *testing.T) {
	// authenticate/simple nodes get the authenticate override table:
	// notfound=1, ok=2, noop=3, updated=4, everything else Return. A lone
	// Ok child is the only priority seen, so the group returns Ok.
	g := NewGroup("authenticate", []Callable{single("m", Ok, SectionAuthenticate)}, SectionAuthenticate, ActionTable{})
	code, err := g.Execute(context.Background(), NewRequest(SectionAuthenticate))
	require.NoError(t, err)
	assert.Equal(t, Ok, code)
}

func TestRedundant_FirstNonFailWins(t *testing.T) {
	children := []Callable{
		single("a", Fail, SectionAuthorize),
		single("b", Ok, SectionAuthorize),
		single("c", Fail, SectionAuthorize),
	}
	r := NewRedundant("r", children, SectionAuthorize, ActionTable{})
	code, err := r.Execute(context.Background(), NewRequest(SectionAuthorize))
	require.NoError(t, err)
	assert.Equal(t, Ok, code)
}

func TestRedundant_AllFailReturnsLastFail(t *testing.T) {
	children := []Callable{
		single("a", Fail, SectionAuthorize),
		single("b", Fail, SectionAuthorize),
	}
	r := NewRedundant("r", children, SectionAuthorize, ActionTable{})
	code, err := r.Execute(context.Background(), NewRequest(SectionAuthorize))
	require.NoError(t, err)
	assert.Equal(t, Fail, code)
}

func TestActionTable_DefaultsFillOnlyUnsetSlots(t *testing.T) {
	overrides := ActionTable{}
	overrides[Ok] = ActionReturn // explicit override of what would be priority 3
	t2 := CompileActionTable(overrides, SectionAuthorize, KindSimple)
	assert.Equal(t, ActionReturn, t2[Ok])
	n, ok := t2[Updated].IsPriority()
	require.True(t, ok)
	assert.Equal(t, 4, n)
}
