package versionmanager

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/models"
	"github.com/schemaledger/schemaledger/pkg/schemadef"
	"github.com/schemaledger/schemaledger/pkg/types"
)

func usersTable(columns string) []byte {
	return []byte(`{
		"version": "v1",
		"type": "table",
		"namespace": "public",
		"name": "users",
		"spec": {"columns": [` + columns + `]}
	}`)
}

const idColumn = `{"name": "id", "type": "bigint"}`

func TestClassifyAdditiveCompatible(t *testing.T) {
	base := usersTable(idColumn)
	source := usersTable(idColumn + `, {"name": "email", "type": "text"}`)
	target := usersTable(idColumn + `, {"name": "created_at", "type": "timestamptz"}`)

	classification, merged := classifyConflict(base, source, target)
	assert.Equal(t, types.ConflictAdditiveCompatible, classification)
	require.NotNil(t, merged)

	mergedStr := string(merged)
	assert.Contains(t, mergedStr, "email")
	assert.Contains(t, mergedStr, "created_at")
}

func TestClassifyStructural(t *testing.T) {
	base := usersTable(idColumn + `, {"name": "email", "type": "text"}`)
	source := usersTable(idColumn + `, {"name": "email", "type": "varchar(320)"}`)
	target := usersTable(idColumn + `, {"name": "email", "type": "citext"}`)

	classification, merged := classifyConflict(base, source, target)
	assert.Equal(t, types.ConflictStructural, classification)
	assert.Nil(t, merged)
}

func TestClassifyDropVsEdit(t *testing.T) {
	base := usersTable(idColumn)
	source := []byte(nil) // dropped on source
	target := usersTable(idColumn + `, {"name": "email", "type": "text"}`)

	classification, merged := classifyConflict(base, source, target)
	assert.Equal(t, types.ConflictStructural, classification)
	assert.Nil(t, merged)
}

func TestClassifySemantic(t *testing.T) {
	base := usersTable(idColumn)
	source := []byte(`{
		"version": "v1", "type": "table", "namespace": "public", "name": "users",
		"description": "app users",
		"spec": {"columns": [` + idColumn + `, {"name": "email", "type": "text"}]}
	}`)
	target := []byte(`{
		"version": "v1", "type": "table", "namespace": "public", "name": "users",
		"description": "registered users",
		"spec": {"columns": [` + idColumn + `, {"name": "email", "type": "text"}]}
	}`)

	classification, merged := classifyConflict(base, source, target)
	assert.Equal(t, types.ConflictSemantic, classification)
	assert.Nil(t, merged)
}

func TestConflictDiff(t *testing.T) {
	source := usersTable(idColumn + `, {"name": "email", "type": "text"}`)
	target := usersTable(idColumn + `, {"name": "email", "type": "citext"}`)

	diff := conflictDiff(tableRef("users"), source, target)
	assert.True(t, strings.Contains(diff, "(source)"))
	assert.True(t, strings.Contains(diff, "(target)"))
	assert.True(t, strings.Contains(diff, "citext"))
}

type stubAdvisor struct {
	name           string
	classification types.ConflictClassification
	confidence     float64
	fail           bool
}

func (s *stubAdvisor) Name() string { return s.name }

func (s *stubAdvisor) Predict(_ context.Context, _ Conflict) (types.ConflictClassification, float64, error) {
	if s.fail {
		return "", 0, assert.AnError
	}
	return s.classification, s.confidence, nil
}

func TestAdviseConflict(t *testing.T) {
	advisorMu.Lock()
	saved := advisors
	advisors = nil
	advisorMu.Unlock()
	defer func() {
		advisorMu.Lock()
		advisors = saved
		advisorMu.Unlock()
	}()

	RegisterConflictAdvisor(&stubAdvisor{name: "broken", fail: true})
	RegisterConflictAdvisor(&stubAdvisor{name: "heuristic", classification: types.ConflictSemantic, confidence: 0.82})

	conflict := Conflict{Ref: tableRef("users"), Classification: types.ConflictStructural}
	adviseConflict(context.Background(), &conflict)

	// The failed advisor is skipped; the annotation never overrides the
	// authoritative classification.
	require.NotNil(t, conflict.Advisory)
	assert.Equal(t, "heuristic", conflict.Advisory.Advisor)
	assert.Equal(t, types.ConflictSemantic, conflict.Advisory.Classification)
	assert.InDelta(t, 0.82, conflict.Advisory.Confidence, 1e-9)
	assert.Equal(t, types.ConflictStructural, conflict.Classification)
}

func TestComputeCommitIDDeterminism(t *testing.T) {
	def := usersTable(idColumn)
	branchID := uuid.MustParse("0191b2f0-0000-7000-8000-000000000001")
	changes := []models.CommitChange{{
		Ref:             tableRef("users"),
		ChangeType:      types.ChangeTypeCreate,
		AfterDefinition: def,
		AfterHash:       schemadef.HashOf(def),
	}}

	a, err := computeCommitID(branchID, []string{"parent-hash"}, 3, "add users", "alice", changes)
	require.Nil(t, err)
	b, err := computeCommitID(branchID, []string{"parent-hash"}, 3, "add users", "alice", changes)
	require.Nil(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 128)

	// Moving the same content to a different position yields a new id.
	c, err := computeCommitID(branchID, []string{"parent-hash"}, 4, "add users", "alice", changes)
	require.Nil(t, err)
	assert.NotEqual(t, a, c)
}
