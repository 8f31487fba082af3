package versionmanager

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaledger/schemaledger/internal/ledgersrv/db"
	"github.com/schemaledger/schemaledger/pkg/schemadef"
	"github.com/schemaledger/schemaledger/pkg/types"
)

func specColumns(t *testing.T, def []byte) []string {
	t.Helper()
	parsed, err := schemadef.Parse(def)
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

func TestMergeDisjointColumnsConverges(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	trunk := mustCreateBranch(t, ctx, uniqueName("trunk"), "")
	mustCommit(t, ctx, trunk, "add users", tableJSON("users", idColumn))

	emailBranch := mustCreateBranch(t, ctx, uniqueName("email"), trunk)
	timeBranch := mustCreateBranch(t, ctx, uniqueName("timestamps"), trunk)

	mustCommit(t, ctx, emailBranch, "add email",
		tableJSON("users", idColumn+`, {"name": "email", "type": "text"}`))
	mustCommit(t, ctx, timeBranch, "add created_at",
		tableJSON("users", idColumn+`, {"name": "created_at", "type": "timestamptz"}`))

	// First merge sees only a one-sided change: no conflict at all.
	op, err := MergeBranches(ctx, emailBranch, trunk, "merge email")
	require.Nil(t, err)
	assert.Equal(t, types.MergeStatusResolved, op.Status)
	changes, conflicts, aerr := mergePayload(op)
	require.Nil(t, aerr)
	assert.Len(t, changes, 1)
	assert.Empty(t, conflicts)

	_, err = ApplyMerge(ctx, op.MergeID)
	require.Nil(t, err)

	// Second merge diverges from the trunk, but on a disjoint column: the
	// conflict auto-resolves as additive-compatible.
	op, err = MergeBranches(ctx, timeBranch, trunk, "merge created_at")
	require.Nil(t, err)
	assert.Equal(t, types.MergeStatusResolved, op.Status)
	_, conflicts, aerr = mergePayload(op)
	require.Nil(t, aerr)
	require.Len(t, conflicts, 1)
	assert.Equal(t, types.ConflictAdditiveCompatible, conflicts[0].Classification)
	assert.True(t, conflicts[0].Resolved)
	assert.NotNil(t, conflicts[0].ResolvedDefinition)

	mergeCommit, err := ApplyMerge(ctx, op.MergeID)
	require.Nil(t, err)

	// The trunk converges on the union of both edits.
	def, err := GetObject(ctx, trunk, tableRef("users"))
	require.Nil(t, err)
	assert.ElementsMatch(t, []string{"id", "email", "created_at"}, specColumns(t, def))

	commit, err := GetCommit(ctx, mergeCommit)
	require.Nil(t, err)
	assert.Len(t, commit.ParentCommitIDs, 2)
}

func TestMergeSiblingsWithDifferentForkPoints(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	trunk := mustCreateBranch(t, ctx, uniqueName("trunk"), "")
	mustCommit(t, ctx, trunk, "add users", tableJSON("users", idColumn))

	// dev forks before the audit table lands on the trunk, feature after.
	dev := mustCreateBranch(t, ctx, uniqueName("dev"), trunk)
	mustCommit(t, ctx, trunk, "add audit", tableJSON("audit", idColumn))
	feature := mustCreateBranch(t, ctx, uniqueName("feature"), trunk)
	mustCommit(t, ctx, feature, "add email",
		tableJSON("users", idColumn+`, {"name": "email", "type": "text"}`))

	// The shared base is the trunk at dev's fork point, so the source side
	// carries both the trunk commit dev never saw and feature's own commit.
	op, err := MergeBranches(ctx, feature, dev, "merge feature")
	require.Nil(t, err)
	assert.Equal(t, types.MergeStatusResolved, op.Status)
	changes, conflicts, aerr := mergePayload(op)
	require.Nil(t, aerr)
	assert.Len(t, changes, 2)
	assert.Empty(t, conflicts)

	_, err = ApplyMerge(ctx, op.MergeID)
	require.Nil(t, err)

	def, err := GetObject(ctx, dev, tableRef("users"))
	require.Nil(t, err)
	assert.ElementsMatch(t, []string{"id", "email"}, specColumns(t, def))
	_, err = GetObject(ctx, dev, tableRef("audit"))
	require.Nil(t, err)
}

func TestMergeStructuralConflictResolution(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	trunk := mustCreateBranch(t, ctx, uniqueName("trunk"), "")
	mustCommit(t, ctx, trunk, "add users",
		tableJSON("users", idColumn+`, {"name": "email", "type": "text"}`))

	feature := mustCreateBranch(t, ctx, uniqueName("retype"), trunk)
	mustCommit(t, ctx, feature, "widen email",
		tableJSON("users", idColumn+`, {"name": "email", "type": "varchar(320)"}`))
	mustCommit(t, ctx, trunk, "citext email",
		tableJSON("users", idColumn+`, {"name": "email", "type": "citext"}`))

	op, err := MergeBranches(ctx, feature, trunk, "merge retype")
	require.Nil(t, err)
	assert.Equal(t, types.MergeStatusConflicted, op.Status)
	_, conflicts, aerr := mergePayload(op)
	require.Nil(t, aerr)
	require.Len(t, conflicts, 1)
	assert.Equal(t, types.ConflictStructural, conflicts[0].Classification)
	assert.False(t, conflicts[0].Resolved)
	assert.Contains(t, conflicts[0].Diff, "citext")

	// Unresolved conflicts block the apply.
	_, err = ApplyMerge(ctx, op.MergeID)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedConflicts)

	// The caller picks the winning definition.
	chosen := tableJSON("users", idColumn+`, {"name": "email", "type": "varchar(320)"}`)
	require.Nil(t, ResolveConflict(ctx, op.MergeID, tableRef("users"), chosen))

	err = ResolveConflict(ctx, op.MergeID, tableRef("users"), chosen)
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	_, err = ApplyMerge(ctx, op.MergeID)
	require.Nil(t, err)

	def, err := GetObject(ctx, trunk, tableRef("users"))
	require.Nil(t, err)
	assert.Contains(t, string(def), "varchar(320)")
}

func TestMergeStaleBase(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	trunk := mustCreateBranch(t, ctx, uniqueName("trunk"), "")
	mustCommit(t, ctx, trunk, "add users", tableJSON("users", idColumn))

	feature := mustCreateBranch(t, ctx, uniqueName("feature"), trunk)
	mustCommit(t, ctx, feature, "add email",
		tableJSON("users", idColumn+`, {"name": "email", "type": "text"}`))

	op, err := MergeBranches(ctx, feature, trunk, "merge email")
	require.Nil(t, err)

	// The target moves after the merge opened; the recorded head no longer
	// matches and the apply must be re-opened, never silently rebased.
	mustCommit(t, ctx, trunk, "add audit", tableJSON("audit", idColumn))
	_, err = ApplyMerge(ctx, op.MergeID)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrStaleBase)
}

func TestMergeGuards(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	trunk := mustCreateBranch(t, ctx, uniqueName("trunk"), "")
	mustCommit(t, ctx, trunk, "add users", tableJSON("users", idColumn))
	idle := mustCreateBranch(t, ctx, uniqueName("idle"), trunk)

	_, err := MergeBranches(ctx, trunk, trunk, "self")
	assert.ErrorIs(t, err, ErrValidation)

	// A branch with no commits since the fork has nothing to merge.
	_, err = MergeBranches(ctx, idle, trunk, "noop")
	assert.ErrorIs(t, err, ErrEmptyCommit)

	// Unrelated root branches share no ancestor.
	other := mustCreateBranch(t, ctx, uniqueName("island"), "")
	mustCommit(t, ctx, other, "add users", tableJSON("users", idColumn))
	_, err = MergeBranches(ctx, other, trunk, "unrelated")
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestAbortMerge(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	trunk := mustCreateBranch(t, ctx, uniqueName("trunk"), "")
	mustCommit(t, ctx, trunk, "add users", tableJSON("users", idColumn))
	feature := mustCreateBranch(t, ctx, uniqueName("feature"), trunk)
	mustCommit(t, ctx, feature, "add email",
		tableJSON("users", idColumn+`, {"name": "email", "type": "text"}`))

	op, err := MergeBranches(ctx, feature, trunk, "merge email")
	require.Nil(t, err)
	require.Nil(t, AbortMerge(ctx, op.MergeID))

	// A finalized merge accepts no further transitions.
	_, err = ApplyMerge(ctx, op.MergeID)
	assert.ErrorIs(t, err, ErrMergeFinalized)
	err = ResolveConflict(ctx, op.MergeID, tableRef("users"), nil)
	assert.ErrorIs(t, err, ErrMergeFinalized)
	err = AbortMerge(ctx, op.MergeID)
	assert.ErrorIs(t, err, ErrMergeFinalized)

	// Neither branch moved.
	branch, err := GetBranch(ctx, trunk)
	require.Nil(t, err)
	assert.Equal(t, int64(1), branch.CommitSeq)
	branch, err = GetBranch(ctx, feature)
	require.Nil(t, err)
	assert.Equal(t, types.BranchStatusActive, branch.Status)
}
