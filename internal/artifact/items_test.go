package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestItemsFromValue_TupleOfObjects(t *testing.T) {
	t.Parallel()

	val := cty.TupleVal([]cty.Value{
		cty.ObjectVal(map[string]cty.Value{
			"name":  cty.StringVal("grid1"),
			"count": cty.NumberIntVal(200),
		}),
		cty.ObjectVal(map[string]cty.Value{
			"name": cty.StringVal("grid2"),
		}),
	})

	items, err := ItemsFromValue(val)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "grid1", items[0].Name)
	assert.Equal(t, "200", items[0].Fields["count"])
	assert.Equal(t, "grid2", items[1].Name)
}

func TestItemsFromValue_BareStrings(t *testing.T) {
	t.Parallel()

	val := cty.ListVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")})
	items, err := ItemsFromValue(val)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Name)
	assert.Equal(t, "a", items[0].Fields["name"])
}

func TestItemsFromValue_EmptyCollection(t *testing.T) {
	t.Parallel()

	items, err := ItemsFromValue(cty.ListValEmpty(cty.String))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestItemsFromValue_RejectsNonCollections(t *testing.T) {
	t.Parallel()

	_, err := ItemsFromValue(cty.StringVal("not a collection"))
	require.Error(t, err)

	_, err = ItemsFromValue(cty.MapVal(map[string]cty.Value{"a": cty.StringVal("b")}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a list, tuple, or set")
}

func TestItemsFromValue_ObjectWithoutNameFails(t *testing.T) {
	t.Parallel()

	val := cty.TupleVal([]cty.Value{
		cty.ObjectVal(map[string]cty.Value{"id": cty.StringVal("x")}),
	})
	_, err := ItemsFromValue(val)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'name'")
}

func TestItemsFromJSONFile(t *testing.T) {
	t.Parallel()

	content := `[
		{"name": "grid1", "count": 100, "full_id": "first_floor/grid1"},
		{"name": "grid2", "count": 50}
	]`
	path := filepath.Join(t.TempDir(), "_info.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	items, err := ItemsFromJSONFile(path)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "grid1", items[0].Name)
	assert.Equal(t, "first_floor/grid1", items[0].Fields["full_id"])
	assert.Equal(t, "grid2", items[1].Name)
}

func TestItemsFromJSONFile_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := ItemsFromJSONFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
