package db

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/dberror"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/models"
	"github.com/schemaledger/schemaledger/pkg/schemadef"
	"github.com/schemaledger/schemaledger/pkg/types"
)

func tableDef(name string) []byte {
	return []byte(`{
		"version": "v1",
		"type": "table",
		"namespace": "public",
		"name": "` + name + `",
		"spec": {
			"columns": [
				{"name": "id", "type": "bigint"}
			]
		}
	}`)
}

func newCommitApply(branch *models.Branch, commitID string, defs map[string][]byte) *models.CommitApply {
	apply := &models.CommitApply{
		Commit: models.Commit{
			CommitID: commitID,
			BranchID: branch.BranchID,
			Author:   "tester",
			Message:  "test commit",
		},
		ExpectedSeq: branch.CommitSeq,
	}
	if branch.HeadCommitID != "" {
		apply.Commit.ParentCommitIDs = []string{branch.HeadCommitID}
	}
	for name, def := range defs {
		apply.Changes = append(apply.Changes, models.CommitChange{
			Ref:             types.ObjectRef{Type: types.ObjectTypeTable, Namespace: "public", Name: name},
			ChangeType:      types.ChangeTypeCreate,
			AfterDefinition: def,
			AfterHash:       schemadef.HashOf(def),
		})
	}
	return apply
}

func TestApplyCommit(t *testing.T) {
	ctx := newTestCtx(t)
	defer DB(ctx).Close(ctx)

	branch := &models.Branch{Name: "commit-test"}
	require.NoError(t, DB(ctx).CreateBranch(ctx, branch))
	defer DB(ctx).UpdateBranchStatus(ctx, branch.BranchID, types.BranchStatusDeleted)

	apply := newCommitApply(branch, "c1-"+uuid.NewString(), map[string][]byte{"users": tableDef("users")})
	err := DB(ctx).ApplyCommit(ctx, apply)
	require.NoError(t, err)

	// The head and the gapless sequence advance together.
	got, err := DB(ctx).GetBranch(ctx, branch.BranchID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.CommitSeq)
	assert.Equal(t, apply.Commit.CommitID, got.HeadCommitID)

	// The commit row and its history entry are both visible.
	commit, err := DB(ctx).GetCommit(ctx, apply.Commit.CommitID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), commit.Seq)

	entries, err := DB(ctx).ListEntriesForCommit(ctx, apply.Commit.CommitID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.ChangeTypeCreate, entries[0].ChangeType)
	assert.True(t, entries[0].BeforeHash.IsNil())
	assert.False(t, entries[0].AfterHash.IsNil())

	// Ids minted inside the transaction are time-sortable UUIDv7s.
	assert.Equal(t, uuid.Version(7), apply.Commit.ID.Version())
	assert.Equal(t, uuid.Version(7), entries[0].ObjectID.Version())

	// The catalog row carries the round-tripped definition.
	obj, err := DB(ctx).GetObject(ctx, branch.BranchID, entries[0].Ref())
	require.NoError(t, err)
	assert.Equal(t, schemadef.HashOf(obj.Definition), obj.Hash)
}

func TestApplyCommitStaleHead(t *testing.T) {
	ctx := newTestCtx(t)
	defer DB(ctx).Close(ctx)

	branch := &models.Branch{Name: "stale-head-test"}
	require.NoError(t, DB(ctx).CreateBranch(ctx, branch))
	defer DB(ctx).UpdateBranchStatus(ctx, branch.BranchID, types.BranchStatusDeleted)

	first := newCommitApply(branch, "c1-"+uuid.NewString(), map[string][]byte{"users": tableDef("users")})
	require.NoError(t, DB(ctx).ApplyCommit(ctx, first))

	// A second apply computed against the old head must be rejected whole.
	stale := newCommitApply(branch, "c2-"+uuid.NewString(), map[string][]byte{"orders": tableDef("orders")})
	err := DB(ctx).ApplyCommit(ctx, stale)
	assert.Error(t, err)
	assert.ErrorIs(t, err, dberror.ErrStaleHead)

	// Nothing of the failed apply landed.
	got, gerr := DB(ctx).GetBranch(ctx, branch.BranchID)
	require.NoError(t, gerr)
	assert.Equal(t, int64(1), got.CommitSeq)
	_, gerr = DB(ctx).GetCommit(ctx, stale.Commit.CommitID)
	assert.ErrorIs(t, gerr, dberror.ErrNotFound)
}

func TestApplyCommitIdempotencyKey(t *testing.T) {
	ctx := newTestCtx(t)
	defer DB(ctx).Close(ctx)

	branch := &models.Branch{Name: "idem-test"}
	require.NoError(t, DB(ctx).CreateBranch(ctx, branch))
	defer DB(ctx).UpdateBranchStatus(ctx, branch.BranchID, types.BranchStatusDeleted)

	first := newCommitApply(branch, "c1-"+uuid.NewString(), map[string][]byte{"users": tableDef("users")})
	first.Commit.IdempotencyKey = "req-001"
	require.NoError(t, DB(ctx).ApplyCommit(ctx, first))

	// Same key on the same branch collides even at the next sequence.
	got, err := DB(ctx).GetBranch(ctx, branch.BranchID)
	require.NoError(t, err)
	second := newCommitApply(got, "c2-"+uuid.NewString(), map[string][]byte{"orders": tableDef("orders")})
	second.Commit.IdempotencyKey = "req-001"
	aerr := DB(ctx).ApplyCommit(ctx, second)
	assert.Error(t, aerr)
	assert.ErrorIs(t, aerr, dberror.ErrAlreadyExists)

	// The original commit is recoverable through the key.
	prior, err := DB(ctx).GetCommitByIdempotencyKey(ctx, branch.BranchID, "req-001")
	require.NoError(t, err)
	assert.Equal(t, first.Commit.CommitID, prior.CommitID)
}

func TestApplyCommitClearsStaged(t *testing.T) {
	ctx := newTestCtx(t)
	defer DB(ctx).Close(ctx)

	branch := &models.Branch{Name: "staged-clear-test"}
	require.NoError(t, DB(ctx).CreateBranch(ctx, branch))
	defer DB(ctx).UpdateBranchStatus(ctx, branch.BranchID, types.BranchStatusDeleted)

	staged := &models.StagedChange{
		BranchID:   branch.BranchID,
		ObjectType: types.ObjectTypeTable,
		Namespace:  "public",
		Name:       "users",
		Definition: tableDef("users"),
	}
	require.NoError(t, DB(ctx).UpsertStagedChange(ctx, staged))

	apply := newCommitApply(branch, "c1-"+uuid.NewString(), map[string][]byte{"users": tableDef("users")})
	apply.ClearStaged = true
	require.NoError(t, DB(ctx).ApplyCommit(ctx, apply))

	remaining, err := DB(ctx).ListStagedChanges(ctx, branch.BranchID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestDependencyEdgesReplacedOnCommit(t *testing.T) {
	ctx := newTestCtx(t)
	defer DB(ctx).Close(ctx)

	branch := &models.Branch{Name: "edges-test"}
	require.NoError(t, DB(ctx).CreateBranch(ctx, branch))
	defer DB(ctx).UpdateBranchStatus(ctx, branch.BranchID, types.BranchStatusDeleted)

	usersRef := types.ObjectRef{Type: types.ObjectTypeTable, Namespace: "public", Name: "users"}
	ordersRef := types.ObjectRef{Type: types.ObjectTypeTable, Namespace: "public", Name: "orders"}

	apply := newCommitApply(branch, "c1-"+uuid.NewString(), map[string][]byte{"orders": tableDef("orders")})
	apply.Changes[0].Edges = []models.DependencyEdge{{
		Source:         ordersRef,
		Target:         usersRef,
		DependencyType: types.DependencyTypeReferences,
	}}
	require.NoError(t, DB(ctx).ApplyCommit(ctx, apply))

	dependents, err := DB(ctx).ListEdgesByTarget(ctx, branch.BranchID, usersRef)
	require.NoError(t, err)
	require.Len(t, dependents, 1)
	assert.Equal(t, ordersRef, dependents[0].Source)

	// Recommitting the source with no edges clears the old ones.
	got, gerr := DB(ctx).GetBranch(ctx, branch.BranchID)
	require.NoError(t, gerr)
	second := newCommitApply(got, "c2-"+uuid.NewString(), map[string][]byte{"orders": tableDef("orders2")})
	second.Changes[0].Ref = ordersRef
	second.Changes[0].ChangeType = types.ChangeTypeAlter
	require.NoError(t, DB(ctx).ApplyCommit(ctx, second))

	dependents, err = DB(ctx).ListEdgesByTarget(ctx, branch.BranchID, usersRef)
	require.NoError(t, err)
	assert.Empty(t, dependents)
}
