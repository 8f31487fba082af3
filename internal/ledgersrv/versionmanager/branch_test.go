package versionmanager

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaledger/schemaledger/internal/ledgersrv/db"
	"github.com/schemaledger/schemaledger/pkg/types"
)

func TestBranchLifecycle(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	name := uniqueName("lifecycle")
	branch, err := CreateBranch(ctx, &CreateBranchRequest{Name: name, Description: "root of the lifecycle test"})
	require.Nil(t, err)
	assert.Equal(t, types.BranchStatusActive, branch.Status)
	assert.Equal(t, int64(0), branch.CommitSeq)
	assert.Empty(t, branch.HeadCommitID)

	got, err := GetBranch(ctx, name)
	require.Nil(t, err)
	assert.Equal(t, branch.BranchID, got.BranchID)

	childName := uniqueName("child")
	child, err := CreateBranch(ctx, &CreateBranchRequest{Name: childName, ParentBranch: name})
	require.Nil(t, err)
	assert.Equal(t, branch.BranchID, child.ParentBranchID.UUID)

	// An active child blocks plain deletion.
	err = DeleteBranch(ctx, name, false)
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrHasDependents)

	// Force deletion takes the child down with it.
	require.Nil(t, DeleteBranch(ctx, name, true))
	_, err = GetBranch(ctx, name)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = GetBranch(ctx, childName)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateBranchValidation(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	_, err := CreateBranch(ctx, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = CreateBranch(ctx, &CreateBranchRequest{Name: "Not A Valid Name"})
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = CreateBranch(ctx, &CreateBranchRequest{Name: uniqueName("orphan"), ParentBranch: uniqueName("missing")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateBranchDuplicateName(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	name := mustCreateBranch(t, ctx, uniqueName("dup"), "")
	_, err := CreateBranch(ctx, &CreateBranchRequest{Name: name})
	require.NotNil(t, err)
	assert.ErrorIs(t, err, ErrDuplicateName)

	// The name frees up once the branch is deleted.
	require.Nil(t, DeleteBranch(ctx, name, false))
	recreated, err := CreateBranch(ctx, &CreateBranchRequest{Name: name})
	require.Nil(t, err)
	t.Cleanup(func() { _ = DeleteBranch(ctx, name, true) })
	assert.NotEqual(t, uuid.Nil, recreated.BranchID)
}

func TestUpdateBranchMetadata(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	name := mustCreateBranch(t, ctx, uniqueName("meta"), "")
	updated, err := UpdateBranchMetadata(ctx, name, "updated description", []byte(`{"owner": "platform"}`))
	require.Nil(t, err)
	assert.Equal(t, "updated description", updated.Description)

	got, err := GetBranch(ctx, name)
	require.Nil(t, err)
	assert.Equal(t, "updated description", got.Description)
}

func TestListBranches(t *testing.T) {
	ctx := newDb()
	defer db.DB(ctx).Close(ctx)

	name := mustCreateBranch(t, ctx, uniqueName("listed"), "")
	branches, err := ListBranches(ctx, types.BranchStatusActive)
	require.Nil(t, err)

	found := false
	for _, b := range branches {
		if b.Name == name {
			found = true
		}
	}
	assert.True(t, found)

	_, err = ListBranches(ctx, types.BranchStatus("NONSENSE"))
	assert.ErrorIs(t, err, ErrValidation)
}
