package postgresql

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/schemaledger/schemaledger/internal/common/apperrors"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/dberror"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/models"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/ledgercommon"
	"github.com/schemaledger/schemaledger/pkg/types"
)

// CreateMergeOperation records a newly opened merge together with the head
// commit ids of both sides at open time.
func (mm *metadataManager) CreateMergeOperation(ctx context.Context, op *models.MergeOperation) apperrors.Error {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return dberror.ErrMissingTenantID
	}
	op.TenantID = tenantID
	if op.MergeID == uuid.Nil {
		op.MergeID = uuid.New()
	}
	if op.Status == "" {
		op.Status = types.MergeStatusPending
	}

	query := `
		INSERT INTO merge_operations (merge_id, source_branch_id, target_branch_id, base_commit_id, source_head_commit_id, target_head_commit_id, message, status, changes, conflicts, tenant_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8, $9, $10, $11)
		RETURNING created_at, updated_at;
	`
	err := mm.conn().QueryRowContext(ctx, query,
		op.MergeID, op.SourceBranchID, op.TargetBranchID, op.BaseCommitID,
		op.SourceHeadCommitID, op.TargetHeadCommitID, op.Message, op.Status,
		op.Changes, op.Conflicts, tenantID).Scan(&op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to insert merge operation")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

const mergeColumns = `merge_id, source_branch_id, target_branch_id, COALESCE(base_commit_id, ''), source_head_commit_id, target_head_commit_id, COALESCE(message, ''), status, changes, conflicts, tenant_id, created_at, updated_at`

func scanMergeOperation(row interface{ Scan(...any) error }) (*models.MergeOperation, error) {
	op := &models.MergeOperation{}
	err := row.Scan(
		&op.MergeID, &op.SourceBranchID, &op.TargetBranchID, &op.BaseCommitID,
		&op.SourceHeadCommitID, &op.TargetHeadCommitID, &op.Message, &op.Status,
		&op.Changes, &op.Conflicts, &op.TenantID, &op.CreatedAt, &op.UpdatedAt)
	return op, err
}

// GetMergeOperation retrieves a merge by id.
func (mm *metadataManager) GetMergeOperation(ctx context.Context, mergeID uuid.UUID) (*models.MergeOperation, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}

	query := `
		SELECT ` + mergeColumns + `
		FROM merge_operations
		WHERE merge_id = $1 AND tenant_id = $2;
	`
	op, err := scanMergeOperation(mm.conn().QueryRowContext(ctx, query, mergeID, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("merge operation not found: " + mergeID.String())
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve merge operation")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return op, nil
}

// UpdateMergeOperation persists status, changes and conflicts. Terminal rows
// (APPLIED, ABORTED) are immutable; updating one returns ErrImmutableRow.
func (mm *metadataManager) UpdateMergeOperation(ctx context.Context, op *models.MergeOperation) apperrors.Error {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return dberror.ErrMissingTenantID
	}

	query := `
		UPDATE merge_operations
		SET status = $1, changes = $2, conflicts = $3, updated_at = now()
		WHERE merge_id = $4 AND tenant_id = $5
		AND status NOT IN ('APPLIED', 'ABORTED')
		RETURNING updated_at;
	`
	err := mm.conn().QueryRowContext(ctx, query,
		op.Status, op.Changes, op.Conflicts, op.MergeID, tenantID).Scan(&op.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			// Either absent or already terminal. Disambiguate for the caller.
			if _, gerr := mm.GetMergeOperation(ctx, op.MergeID); gerr != nil {
				return gerr
			}
			return dberror.ErrImmutableRow.Msg("merge operation is already finalized")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to update merge operation")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

// ListOpenMergesForBranch returns the PENDING/CONFLICTED/RESOLVED merges that
// involve the branch on either side.
func (mm *metadataManager) ListOpenMergesForBranch(ctx context.Context, branchID uuid.UUID) ([]*models.MergeOperation, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}

	query := `
		SELECT ` + mergeColumns + `
		FROM merge_operations
		WHERE (source_branch_id = $1 OR target_branch_id = $1)
		AND status IN ('PENDING', 'CONFLICTED', 'RESOLVED')
		AND tenant_id = $2
		ORDER BY created_at;
	`
	rows, err := mm.conn().QueryContext(ctx, query, branchID, tenantID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list open merges")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var ops []*models.MergeOperation
	for rows.Next() {
		op, err := scanMergeOperation(rows)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan merge operation row")
			return nil, dberror.ErrDatabase.Err(err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("error after scanning merge operations")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return ops, nil
}
