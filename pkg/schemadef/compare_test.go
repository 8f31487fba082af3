package schemadef

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userTable(columns string) []byte {
	return []byte(`{
		"version": "v1",
		"type": "table",
		"namespace": "public",
		"name": "users",
		"spec": {"columns": [` + columns + `]}
	}`)
}

const idCol = `{"name": "id", "type": "bigint"}`

func TestChangedSpecPaths(t *testing.T) {
	base := userTable(idCol)
	withEmail := userTable(idCol + `, {"name": "email", "type": "text"}`)
	withCreatedAt := userTable(idCol + `, {"name": "created_at", "type": "timestamptz"}`)

	assert.Empty(t, ChangedSpecPaths(base, base))

	paths := ChangedSpecPaths(base, withEmail)
	assert.Equal(t, []string{"columns.email"}, paths)

	paths = ChangedSpecPaths(base, withCreatedAt)
	assert.Equal(t, []string{"columns.created_at"}, paths)

	// Retyping an existing column names the same element path.
	retyped := userTable(`{"name": "id", "type": "integer"}`)
	paths = ChangedSpecPaths(base, retyped)
	assert.Equal(t, []string{"columns.id"}, paths)
}

func TestPathsOverlap(t *testing.T) {
	assert.False(t, PathsOverlap([]string{"columns.email"}, []string{"columns.created_at"}))
	assert.True(t, PathsOverlap([]string{"columns.email"}, []string{"columns.email"}))
	assert.False(t, PathsOverlap(nil, []string{"columns.email"}))
}

func TestMergeDisjoint(t *testing.T) {
	// The canonical scenario: one side adds email, the other created_at.
	base := userTable(idCol)
	source := userTable(idCol + `, {"name": "email", "type": "text"}`)
	target := userTable(idCol + `, {"name": "created_at", "type": "timestamptz"}`)

	sourcePaths := ChangedSpecPaths(base, source)
	targetPaths := ChangedSpecPaths(base, target)
	require.False(t, PathsOverlap(sourcePaths, targetPaths))

	merged, err := MergeDisjoint(base, source, target, sourcePaths, targetPaths)
	require.NoError(t, err)

	def, perr := Parse(merged)
	require.NoError(t, perr)
	assert.Equal(t, "users", def.Name)

	names := columnNames(t, merged)
	assert.ElementsMatch(t, []string{"id", "email", "created_at"}, names)

	// The merge is deterministic.
	again, err := MergeDisjoint(base, source, target, sourcePaths, targetPaths)
	require.NoError(t, err)
	assert.Equal(t, HashOf(merged), HashOf(again))
}

func TestSemanticallyEqual(t *testing.T) {
	a := []byte(`{
		"version": "v1", "type": "table", "namespace": "public", "name": "users",
		"description": "user accounts",
		"spec": {"columns": [{"name": "id", "type": "bigint"}]}
	}`)
	b := []byte(`{
		"version": "v1", "type": "table", "namespace": "public", "name": "users",
		"description": "accounts of users",
		"spec": {"columns": [{"name": "id", "type": "bigint"}], "comment": "main table"}
	}`)
	assert.True(t, SemanticallyEqual(a, b))

	c := []byte(`{
		"version": "v1", "type": "table", "namespace": "public", "name": "users",
		"spec": {"columns": [{"name": "id", "type": "integer"}]}
	}`)
	assert.False(t, SemanticallyEqual(a, c))
}

func columnNames(t *testing.T, def []byte) []string {
	t.Helper()
	parsed, err := Parse(def)
	require.NoError(t, err)
	var spec struct {
		Columns []struct {
			Name string `json:"name"`
		} `json:"columns"`
	}
	require.NoError(t, json.Unmarshal(parsed.Spec, &spec))
	names := make([]string, 0, len(spec.Columns))
	for _, c := range spec.Columns {
		names = append(names, c.Name)
	}
	return names
}
