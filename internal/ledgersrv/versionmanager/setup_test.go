package versionmanager

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"github.com/schemaledger/schemaledger/internal/ledgersrv/db"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/ledgercommon"
	"github.com/schemaledger/schemaledger/pkg/types"
)

func newDb() context.Context {
	ctx := log.Logger.WithContext(context.Background())
	ctx = db.ConnCtx(ctx)
	ctx = ledgercommon.SetTenantIdInContext(ctx, types.TenantId("TVMGR1"))
	ctx = ledgercommon.SetAuthorInContext(ctx, "tester")
	return ctx
}

// uniqueName keeps branch names collision-free across test runs against a
// shared database.
func uniqueName(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString()[:13], "-", "")
}

func mustCreateBranch(t *testing.T, ctx context.Context, name, parent string) string {
	t.Helper()
	_, err := CreateBranch(ctx, &CreateBranchRequest{Name: name, ParentBranch: parent})
	require.Nil(t, err)
	t.Cleanup(func() { _ = DeleteBranch(ctx, name, true) })
	return name
}

func mustCommit(t *testing.T, ctx context.Context, branch, message string, defs ...[]byte) string {
	t.Helper()
	for _, d := range defs {
		_, err := SaveObject(ctx, branch, d)
		require.Nil(t, err)
	}
	commitID, err := CommitChanges(ctx, branch, message, "")
	require.Nil(t, err)
	return commitID
}
