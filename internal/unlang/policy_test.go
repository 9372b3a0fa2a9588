// SPDX-License-Identifier: GPL-3.0-or-later

package unlang

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_ResolveMemoizesCompiledSubtree(t *testing.T) {
	cat := NewCatalog()
	builds := 0
	cat.Register("common", func(cat *Catalog) Callable {
		builds++
		return single("common-body", Ok, SectionAuthorize)
	})

	first, err := cat.Resolve("common", "authorize")
	require.NoError(t, err)
	second, err := cat.Resolve("common", "authorize")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, builds)
}

func TestCatalog_CyclicPolicyFallsThroughToModule(t *testing.T) {
	cat := NewCatalog()
	cat.RegisterModule(&fakeModule{name: "common", rc: Ok})
	cat.Register("common", func(cat *Catalog) Callable {
		// Self-reference: resolving "common" while building "common".
		body, err := cat.Resolve("common", "authorize")
		require.NoError(t, err)
		return NewGroup("common", []Callable{body}, SectionAuthorize, ActionTable{})
	})

	resolved, err := cat.Resolve("common", "authorize")
	require.NoError(t, err)

	code, err := resolved.Execute(context.Background(), NewRequest(SectionAuthorize))
	require.NoError(t, err)
	assert.Equal(t, Ok, code)
}

func TestCatalog_UndefinedPolicy(t *testing.T) {
	cat := NewCatalog()
	_, err := cat.Resolve("nope", "authorize")
	assert.Error(t, err)
}
