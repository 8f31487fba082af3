package db

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/dberror"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/models"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/ledgercommon"
	"github.com/schemaledger/schemaledger/pkg/types"
)

func newDb(c ...context.Context) context.Context {
	var ctx context.Context
	if len(c) > 0 {
		ctx = ConnCtx(c[0])
	} else {
		ctx = ConnCtx(context.Background())
	}
	return ctx
}

func newTestCtx(t *testing.T) context.Context {
	t.Helper()
	ctx := log.Logger.WithContext(context.Background())
	ctx = newDb(ctx)
	ctx = ledgercommon.SetTenantIdInContext(ctx, types.TenantId("TTEST1"))
	ctx = ledgercommon.SetAuthorInContext(ctx, "tester")
	return ctx
}

func TestCreateBranch(t *testing.T) {
	ctx := newTestCtx(t)
	defer DB(ctx).Close(ctx)

	branch := &models.Branch{
		Name:        "feature-orders",
		Description: "order schema work",
	}
	err := DB(ctx).CreateBranch(ctx, branch)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, branch.BranchID)
	assert.Equal(t, types.BranchStatusActive, branch.Status)
	assert.Equal(t, int64(0), branch.CommitSeq)
	defer DB(ctx).UpdateBranchStatus(ctx, branch.BranchID, types.BranchStatusDeleted)

	// An active branch with the same name must be rejected.
	dup := &models.Branch{Name: "feature-orders"}
	err = DB(ctx).CreateBranch(ctx, dup)
	assert.Error(t, err)
	assert.ErrorIs(t, err, dberror.ErrAlreadyExists)

	// Charset violations surface as invalid input, not a db error.
	bad := &models.Branch{Name: "Feature_Orders"}
	err = DB(ctx).CreateBranch(ctx, bad)
	assert.Error(t, err)
	assert.ErrorIs(t, err, dberror.ErrInvalidInput)
}

func TestBranchNameReuseAfterDelete(t *testing.T) {
	ctx := newTestCtx(t)
	defer DB(ctx).Close(ctx)

	branch := &models.Branch{Name: "short-lived"}
	require.NoError(t, DB(ctx).CreateBranch(ctx, branch))

	err := DB(ctx).UpdateBranchStatus(ctx, branch.BranchID, types.BranchStatusDeleted)
	require.NoError(t, err)

	// The partial unique index only guards ACTIVE rows, so the name frees up.
	again := &models.Branch{Name: "short-lived"}
	err = DB(ctx).CreateBranch(ctx, again)
	require.NoError(t, err)
	defer DB(ctx).UpdateBranchStatus(ctx, again.BranchID, types.BranchStatusDeleted)

	assert.NotEqual(t, branch.BranchID, again.BranchID)

	// Lookup by name resolves only the active row.
	got, err := DB(ctx).GetBranchByName(ctx, "short-lived")
	require.NoError(t, err)
	assert.Equal(t, again.BranchID, got.BranchID)
}

func TestGetBranch(t *testing.T) {
	ctx := newTestCtx(t)
	defer DB(ctx).Close(ctx)

	branch := &models.Branch{Name: "lookup-test"}
	require.NoError(t, DB(ctx).CreateBranch(ctx, branch))
	defer DB(ctx).UpdateBranchStatus(ctx, branch.BranchID, types.BranchStatusDeleted)

	got, err := DB(ctx).GetBranch(ctx, branch.BranchID)
	require.NoError(t, err)
	assert.Equal(t, "lookup-test", got.Name)

	_, err = DB(ctx).GetBranch(ctx, uuid.New())
	assert.ErrorIs(t, err, dberror.ErrNotFound)

	_, err = DB(ctx).GetBranchByName(ctx, "no-such-branch")
	assert.ErrorIs(t, err, dberror.ErrNotFound)
}

func TestCreateBranchWithMissingParent(t *testing.T) {
	ctx := newTestCtx(t)
	defer DB(ctx).Close(ctx)

	branch := &models.Branch{
		Name:           "orphan",
		ParentBranchID: uuid.NullUUID{UUID: uuid.New(), Valid: true},
	}
	err := DB(ctx).CreateBranch(ctx, branch)
	assert.Error(t, err)
	assert.ErrorIs(t, err, dberror.ErrInvalidBranch)
}

func TestMissingTenantID(t *testing.T) {
	ctx := log.Logger.WithContext(context.Background())
	ctx = newDb(ctx)
	defer DB(ctx).Close(ctx)

	_, err := DB(ctx).GetBranchByName(ctx, "any")
	assert.ErrorIs(t, err, dberror.ErrMissingTenantID)

	err = DB(ctx).CreateBranch(ctx, &models.Branch{Name: "any"})
	assert.ErrorIs(t, err, dberror.ErrMissingTenantID)
}
