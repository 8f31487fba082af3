package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/schemaledger/schemaledger/internal/common/apperrors"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/dbmanager"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/models"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/postgresql"
	"github.com/schemaledger/schemaledger/pkg/types"
)

// DB_ wraps the underlying sql.Conn while adding scope management. The three
// interfaces are separately initialized so each can be wrapped independently;
// ObjectManager is the candidate for caching.

type MetadataManager interface {
	// Branch
	CreateBranch(ctx context.Context, branch *models.Branch) apperrors.Error
	GetBranch(ctx context.Context, branchID uuid.UUID) (*models.Branch, apperrors.Error)
	GetBranchByName(ctx context.Context, name string) (*models.Branch, apperrors.Error)
	ListBranches(ctx context.Context, status types.BranchStatus, parentBranchID uuid.UUID) ([]*models.Branch, apperrors.Error)
	UpdateBranchStatus(ctx context.Context, branchID uuid.UUID, status types.BranchStatus) apperrors.Error
	UpdateBranch(ctx context.Context, branch *models.Branch) apperrors.Error

	// Commit
	GetCommit(ctx context.Context, commitID string) (*models.Commit, apperrors.Error)
	GetCommitBySeq(ctx context.Context, branchID uuid.UUID, seq int64) (*models.Commit, apperrors.Error)
	GetCommitByIdempotencyKey(ctx context.Context, branchID uuid.UUID, key string) (*models.Commit, apperrors.Error)
	ListCommits(ctx context.Context, branchID uuid.UUID, limit int) ([]*models.Commit, apperrors.Error)

	// Merge
	CreateMergeOperation(ctx context.Context, op *models.MergeOperation) apperrors.Error
	GetMergeOperation(ctx context.Context, mergeID uuid.UUID) (*models.MergeOperation, apperrors.Error)
	UpdateMergeOperation(ctx context.Context, op *models.MergeOperation) apperrors.Error
	ListOpenMergesForBranch(ctx context.Context, branchID uuid.UUID) ([]*models.MergeOperation, apperrors.Error)

	// Rollback plan
	CreateRollbackPlan(ctx context.Context, plan *models.RollbackPlan) apperrors.Error
	GetRollbackPlan(ctx context.Context, planID string) (*models.RollbackPlan, apperrors.Error)
	UpdateRollbackPlanStatus(ctx context.Context, planID string, status types.PlanStatus) apperrors.Error
	InvalidatePlansForBranch(ctx context.Context, branchID uuid.UUID, headCommitID string) apperrors.Error
}

type ObjectManager interface {
	// Commit application
	ApplyCommit(ctx context.Context, apply *models.CommitApply) apperrors.Error

	// Catalog
	GetObject(ctx context.Context, branchID uuid.UUID, ref types.ObjectRef) (*models.SchemaObject, apperrors.Error)
	ListObjects(ctx context.Context, branchID uuid.UUID, namespace string, objectType types.ObjectType) ([]*models.SchemaObject, apperrors.Error)

	// History
	GetLatestEntryForRefInSegment(ctx context.Context, branchID uuid.UUID, ref types.ObjectRef, maxSeq int64) (*models.ObjectHistoryEntry, apperrors.Error)
	ListEntriesForCommit(ctx context.Context, commitID string) ([]*models.ObjectHistoryEntry, apperrors.Error)
	ListEntriesInRange(ctx context.Context, branchID uuid.UUID, fromSeq, toSeq int64) ([]*models.ObjectHistoryEntry, apperrors.Error)
	ListHistoryForRefInSegment(ctx context.Context, branchID uuid.UUID, ref types.ObjectRef, maxSeq int64, limit int) ([]*models.ObjectHistoryEntry, apperrors.Error)
	DeleteEntriesBefore(ctx context.Context, cutoff time.Time) (int64, apperrors.Error)

	// Staged working set
	UpsertStagedChange(ctx context.Context, staged *models.StagedChange) apperrors.Error
	DeleteStagedChange(ctx context.Context, branchID uuid.UUID, ref types.ObjectRef) apperrors.Error
	ListStagedChanges(ctx context.Context, branchID uuid.UUID) ([]*models.StagedChange, apperrors.Error)
	ClearStagedChanges(ctx context.Context, branchID uuid.UUID) apperrors.Error

	// Dependency edges
	ListEdgesForBranch(ctx context.Context, branchID uuid.UUID) ([]*models.DependencyEdge, apperrors.Error)
	ListEdgesByTarget(ctx context.Context, branchID uuid.UUID, target types.ObjectRef) ([]*models.DependencyEdge, apperrors.Error)
	ListEdgesBySource(ctx context.Context, branchID uuid.UUID, source types.ObjectRef) ([]*models.DependencyEdge, apperrors.Error)

	// Snapshots
	GetSnapshotAt(ctx context.Context, branchID uuid.UUID, ref types.ObjectRef, asOf time.Time) (*models.TemporalSnapshot, apperrors.Error)
	ListSnapshotsForObject(ctx context.Context, branchID uuid.UUID, ref types.ObjectRef, limit int) ([]*models.TemporalSnapshot, apperrors.Error)
	DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, apperrors.Error)
}

type ConnectionManager interface {
	AddScope(ctx context.Context, scope, value string) error
	DropScope(ctx context.Context, scope string) error
	DropAllScopes(ctx context.Context) error

	// Close the connection to the database.
	Close(ctx context.Context)
}

type DB_ interface {
	MetadataManager
	ObjectManager
	ConnectionManager
}

const (
	Scope_TenantId string = "ledger.curr_tenantid"
)

var configuredScopes = []string{
	Scope_TenantId,
}

var pool dbmanager.ScopedDb

func init() {
	ctx := log.Logger.WithContext(context.Background())
	pg := dbmanager.NewScopedDb(ctx, "postgresql", configuredScopes)
	if pg == nil {
		panic("unable to create db pool")
	}
	pool = pg
}

func Conn(ctx context.Context) dbmanager.ScopedConn {
	if pool != nil {
		conn, err := pool.Conn(ctx)
		if err == nil {
			return conn
		}
		log.Ctx(ctx).Error().Err(err).Msg("unable to get db connection")
	}
	return nil
}

type ctxDbKeyType string

const ctxDbKey ctxDbKeyType = "SchemaLedgerDb"

func ConnCtx(ctx context.Context) context.Context {
	conn := Conn(ctx)
	return context.WithValue(ctx, ctxDbKey, conn)
}

type schemaLedgerDb struct {
	MetadataManager
	ObjectManager
	ConnectionManager
}

func DB(ctx context.Context) DB_ {
	if conn, ok := ctx.Value(ctxDbKey).(dbmanager.ScopedConn); ok {
		mm, om, cm := postgresql.NewLedgerDb(conn)
		return &schemaLedgerDb{
			MetadataManager:   mm,
			ObjectManager:     om,
			ConnectionManager: cm,
		}
	}
	log.Ctx(ctx).Error().Msg("unable to get db connection from context")
	return nil
}
