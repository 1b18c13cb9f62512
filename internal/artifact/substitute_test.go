package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestSubstitute_ReplacesFields(t *testing.T) {
	t.Parallel()

	item := LoopItem{
		Name: "grid1",
		Fields: map[string]string{
			"name":  "grid1",
			"count": "100",
		},
	}

	got, err := Substitute("initial_results/{{item.name}}", item)
	require.NoError(t, err)
	assert.Equal(t, "initial_results/grid1", got)

	got, err = Substitute("{{item.name}}-{{item.count}}.pts", item)
	require.NoError(t, err)
	assert.Equal(t, "grid1-100.pts", got)
}

func TestSubstitute_ToleratesWhitespace(t *testing.T) {
	t.Parallel()

	item := LoopItem{Name: "a", Fields: map[string]string{"name": "a"}}
	got, err := Substitute("x/{{ item.name }}", item)
	require.NoError(t, err)
	assert.Equal(t, "x/a", got)
}

func TestSubstitute_UnknownFieldFails(t *testing.T) {
	t.Parallel()

	item := LoopItem{Name: "a", Fields: map[string]string{"name": "a"}}
	_, err := Substitute("x/{{item.missing}}", item)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestSubstitute_NoPlaceholdersIsIdentity(t *testing.T) {
	t.Parallel()

	item := LoopItem{Name: "a", Fields: map[string]string{"name": "a"}}
	got, err := Substitute("plain/path.txt", item)
	require.NoError(t, err)
	assert.Equal(t, "plain/path.txt", got)
}

func TestHasPlaceholder(t *testing.T) {
	t.Parallel()

	assert.True(t, HasPlaceholder("a/{{item.name}}/b"))
	assert.True(t, HasPlaceholder("{{ item.full_id }}"))
	assert.False(t, HasPlaceholder("a/b/c"))
	assert.False(t, HasPlaceholder("{{other.name}}"))
}

func TestFieldString_Primitives(t *testing.T) {
	t.Parallel()

	s, ok := fieldString(cty.StringVal("x"))
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	s, ok = fieldString(cty.NumberIntVal(42))
	assert.True(t, ok)
	assert.Equal(t, "42", s)

	s, ok = fieldString(cty.BoolVal(true))
	assert.True(t, ok)
	assert.Equal(t, "true", s)

	_, ok = fieldString(cty.ListValEmpty(cty.String))
	assert.False(t, ok)
}
