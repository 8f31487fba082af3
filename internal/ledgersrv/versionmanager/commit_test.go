package versionmanager

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaledger/schemaledger/internal/ledgersrv/db"
	"github.com/schemaledger/schemaledger/pkg/types"
)

func tableJSON(name, columns string) []byte {
	return []byte(`{
		"version": "v1",
		"type": "table",
		"namespace": "public",
		"name": "` + name + `",
		"spec": {"columns": [` + columns + `]}
	}`)
}

// ordersJSON declares a foreign key into users, producing a dependency edge.
func ordersJSON() []byte {
	return tableJSON("orders", `{"name": "id", "type": "bigint"}, {"name": "user_id", "type": "bigint", "references": {"name": "users"}}`)
}

func TestCommitLifecycle(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	name := mustCreateBranch(t, ctx, uniqueName("commit"), "")
	def := tableJSON("users", idColumn)

	ref, err := SaveObject(ctx, name, def)
	require.Nil(t, err)
	assert.Equal(t, tableRef("users"), ref)

	staged, err := ListStagedChanges(ctx, name)
	require.Nil(t, err)
	require.Len(t, staged, 1)

	commitID, err := CommitChanges(ctx, name, "add users", "")
	require.Nil(t, err)
	assert.Len(t, commitID, 128)

	branch, err := GetBranch(ctx, name)
	require.Nil(t, err)
	assert.Equal(t, int64(1), branch.CommitSeq)
	assert.Equal(t, commitID, branch.HeadCommitID)

	// The working set is consumed by the commit.
	staged, err = ListStagedChanges(ctx, name)
	require.Nil(t, err)
	assert.Empty(t, staged)

	got, err := GetObject(ctx, name, tableRef("users"))
	require.Nil(t, err)
	assert.JSONEq(t, string(def), string(got))

	commits, err := ListCommits(ctx, name, 10)
	require.Nil(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, commitID, commits[0].CommitID)
	assert.Equal(t, "add users", commits[0].Message)
	assert.Empty(t, commits[0].ParentCommitIDs)
}

func TestCommitEmpty(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	name := mustCreateBranch(t, ctx, uniqueName("empty"), "")
	_, err := CommitChanges(ctx, name, "nothing", "")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrEmptyCommit)

	// Re-staging identical content is a net no-op, not a new commit.
	def := tableJSON("users", idColumn)
	mustCommit(t, ctx, name, "add users", def)
	_, err = SaveObject(ctx, name, def)
	require.Nil(t, err)
	_, err = CommitChanges(ctx, name, "same again", "")
	assert.ErrorIs(t, err, ErrEmptyCommit)
}

func TestCommitIdempotencyReplay(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	name := mustCreateBranch(t, ctx, uniqueName("idem"), "")
	_, err := SaveObject(ctx, name, tableJSON("users", idColumn))
	require.Nil(t, err)

	first, err := CommitChanges(ctx, name, "add users", "req-42")
	require.Nil(t, err)

	// The same key replays the original commit even with new work staged.
	_, err = SaveObject(ctx, name, tableJSON("users", idColumn+`, {"name": "email", "type": "text"}`))
	require.Nil(t, err)
	replayed, err := CommitChanges(ctx, name, "add users", "req-42")
	require.Nil(t, err)
	assert.Equal(t, first, replayed)

	branch, err := GetBranch(ctx, name)
	require.Nil(t, err)
	assert.Equal(t, int64(1), branch.CommitSeq)
}

func TestCommitChainAndParents(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	name := mustCreateBranch(t, ctx, uniqueName("chain"), "")
	c1 := mustCommit(t, ctx, name, "add users", tableJSON("users", idColumn))
	c2 := mustCommit(t, ctx, name, "add email", tableJSON("users", idColumn+`, {"name": "email", "type": "text"}`))
	assert.NotEqual(t, c1, c2)

	commit, err := GetCommit(ctx, c2)
	require.Nil(t, err)
	assert.Equal(t, []string{c1}, commit.ParentCommitIDs)
	assert.Equal(t, int64(2), commit.Seq)

	entries, err := ListCommitChanges(ctx, c2)
	require.Nil(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.ChangeTypeAlter, entries[0].ChangeType)
	assert.Equal(t, tableRef("users"), entries[0].Ref())
}

func TestRemoveObjectAndDrop(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	name := mustCreateBranch(t, ctx, uniqueName("drop"), "")
	c1 := mustCommit(t, ctx, name, "add users", tableJSON("users", idColumn))

	require.Nil(t, RemoveObject(ctx, name, tableRef("users")))
	_, err := CommitChanges(ctx, name, "drop users", "")
	require.Nil(t, err)

	_, err = GetObject(ctx, name, tableRef("users"))
	assert.ErrorIs(t, err, ErrNotFound)

	// The dropped object remains reachable at the commit that created it.
	def, err := GetObjectAt(ctx, name, tableRef("users"), c1)
	require.Nil(t, err)
	assert.NotNil(t, def)

	// Dropping an object that never existed is an error.
	err = RemoveObject(ctx, name, tableRef("ghost"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveObjectWithdrawsStagedCreate(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	name := mustCreateBranch(t, ctx, uniqueName("withdraw"), "")
	_, err := SaveObject(ctx, name, tableJSON("users", idColumn))
	require.Nil(t, err)

	// Nothing committed yet, so the removal just withdraws the staged create.
	require.Nil(t, RemoveObject(ctx, name, tableRef("users")))
	staged, err := ListStagedChanges(ctx, name)
	require.Nil(t, err)
	assert.Empty(t, staged)

	_, err = CommitChanges(ctx, name, "", "")
	assert.ErrorIs(t, err, ErrEmptyCommit)
}

func TestCommitMissingReferenceFailsClosed(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	name := mustCreateBranch(t, ctx, uniqueName("dangling"), "")
	_, err := SaveObject(ctx, name, ordersJSON())
	require.Nil(t, err)

	_, err = CommitChanges(ctx, name, "orders without users", "")
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrMissingReference)

	// Creating the target in the same commit satisfies the reference.
	_, err = SaveObject(ctx, name, tableJSON("users", idColumn))
	require.Nil(t, err)
	_, err = CommitChanges(ctx, name, "users and orders", "")
	require.Nil(t, err)

	edges, derr := db.DB(ctx).ListEdgesForBranch(ctx, mustBranchID(t, ctx, name))
	require.NoError(t, derr)
	require.Len(t, edges, 1)
	assert.Equal(t, tableRef("orders"), edges[0].Source)
	assert.Equal(t, tableRef("users"), edges[0].Target)
}

func TestForkVisibility(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	parent := mustCreateBranch(t, ctx, uniqueName("parent"), "")
	mustCommit(t, ctx, parent, "add users", tableJSON("users", idColumn))

	child := mustCreateBranch(t, ctx, uniqueName("feature"), parent)

	// The child sees the parent's state at fork time without copying it.
	def, err := GetObject(ctx, child, tableRef("users"))
	require.Nil(t, err)
	assert.NotNil(t, def)

	// Parent commits after the fork stay invisible to the child.
	mustCommit(t, ctx, parent, "add audit", tableJSON("audit", idColumn))
	_, err = GetObject(ctx, child, tableRef("audit"))
	assert.ErrorIs(t, err, ErrNotFound)

	// Child commits stay invisible to the parent.
	mustCommit(t, ctx, child, "add email", tableJSON("users", idColumn+`, {"name": "email", "type": "text"}`))
	parentDef, err := GetObject(ctx, parent, tableRef("users"))
	require.Nil(t, err)
	assert.NotContains(t, string(parentDef), "email")
}

func TestListObjects(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	parent := mustCreateBranch(t, ctx, uniqueName("catalog"), "")
	mustCommit(t, ctx, parent, "add users", tableJSON("users", idColumn))
	mustCommit(t, ctx, parent, "add orders", ordersJSON())

	listings, err := ListObjects(ctx, parent, "", "")
	require.Nil(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, tableRef("orders"), listings[0].Ref)
	assert.Equal(t, tableRef("users"), listings[1].Ref)

	// A fork sees the inherited catalog without copying it.
	child := mustCreateBranch(t, ctx, uniqueName("fork"), parent)
	listings, err = ListObjects(ctx, child, "", "")
	require.Nil(t, err)
	assert.Len(t, listings, 2)

	// Objects dropped on the child vanish from its listing but stay on the
	// parent; post-fork parent additions never leak in.
	require.Nil(t, RemoveObject(ctx, child, tableRef("orders")))
	_, err = CommitChanges(ctx, child, "drop orders", "")
	require.Nil(t, err)
	mustCommit(t, ctx, parent, "add audit", tableJSON("audit", idColumn))

	listings, err = ListObjects(ctx, child, "", "")
	require.Nil(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, tableRef("users"), listings[0].Ref)

	listings, err = ListObjects(ctx, parent, "", "")
	require.Nil(t, err)
	assert.Len(t, listings, 3)

	// Filters narrow by namespace and type.
	listings, err = ListObjects(ctx, parent, "private", "")
	require.Nil(t, err)
	assert.Empty(t, listings)
}

func TestCommitOnMergedBranchRejected(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	target := mustCreateBranch(t, ctx, uniqueName("target"), "")
	mustCommit(t, ctx, target, "base", tableJSON("users", idColumn))
	source := mustCreateBranch(t, ctx, uniqueName("source"), target)
	mustCommit(t, ctx, source, "add email", tableJSON("users", idColumn+`, {"name": "email", "type": "text"}`))

	sourceID := mustBranchID(t, ctx, source)
	op, err := MergeBranches(ctx, source, target, "merge email")
	require.Nil(t, err)
	_, err = ApplyMerge(ctx, op.MergeID)
	require.Nil(t, err)

	// The source branch moved to MERGED in the same transaction; it no longer
	// resolves by name and accepts no further work.
	merged, derr := db.DB(ctx).GetBranch(ctx, sourceID)
	require.NoError(t, derr)
	assert.Equal(t, types.BranchStatusMerged, merged.Status)

	_, err = SaveObject(ctx, source, tableJSON("audit", idColumn))
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func mustBranchID(t *testing.T, ctx context.Context, name string) uuid.UUID {
	t.Helper()
	branch, err := GetBranch(ctx, name)
	require.Nil(t, err)
	return branch.BranchID
}
