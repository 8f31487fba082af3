package postgresql

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/rs/zerolog/log"
	"github.com/schemaledger/schemaledger/internal/common/apperrors"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/dberror"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/models"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/ledgercommon"
	"github.com/schemaledger/schemaledger/pkg/types"
)

// CreateRollbackPlan persists a freshly generated plan.
func (mm *metadataManager) CreateRollbackPlan(ctx context.Context, plan *models.RollbackPlan) apperrors.Error {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return dberror.ErrMissingTenantID
	}
	plan.TenantID = tenantID
	if plan.Status == "" {
		plan.Status = types.PlanStatusGenerated
	}

	query := `
		INSERT INTO rollback_plans (plan_id, branch_id, target_commit_id, head_commit_id, mode, steps, blocking_reasons, status, tenant_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at;
	`
	err := mm.conn().QueryRowContext(ctx, query,
		plan.PlanID, plan.BranchID, plan.TargetCommitID, plan.HeadCommitID,
		plan.Mode, plan.Steps, plan.BlockingReasons, plan.Status, tenantID).
		Scan(&plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok {
			if pgErr.Code == "23505" {
				return dberror.ErrAlreadyExists.Msg("plan id already exists: " + plan.PlanID)
			}
			if pgErr.Code == "23514" {
				return dberror.ErrInvalidInput.Msg("invalid plan mode or status")
			}
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to insert rollback plan")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

const planColumns = `plan_id, branch_id, target_commit_id, head_commit_id, mode, steps, blocking_reasons, status, tenant_id, created_at, updated_at`

func scanRollbackPlan(row interface{ Scan(...any) error }) (*models.RollbackPlan, error) {
	plan := &models.RollbackPlan{}
	err := row.Scan(
		&plan.PlanID, &plan.BranchID, &plan.TargetCommitID, &plan.HeadCommitID,
		&plan.Mode, &plan.Steps, &plan.BlockingReasons, &plan.Status,
		&plan.TenantID, &plan.CreatedAt, &plan.UpdatedAt)
	return plan, err
}

// GetRollbackPlan retrieves a plan by its id.
func (mm *metadataManager) GetRollbackPlan(ctx context.Context, planID string) (*models.RollbackPlan, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}
	if planID == "" {
		return nil, dberror.ErrInvalidInput.Msg("plan id cannot be empty")
	}

	query := `
		SELECT ` + planColumns + `
		FROM rollback_plans
		WHERE plan_id = $1 AND tenant_id = $2;
	`
	plan, err := scanRollbackPlan(mm.conn().QueryRowContext(ctx, query, planID, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("rollback plan not found: " + planID)
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve rollback plan")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return plan, nil
}

// UpdateRollbackPlanStatus transitions a plan out of GENERATED. EXECUTED and
// INVALID are terminal; transitioning a terminal plan returns ErrImmutableRow.
func (mm *metadataManager) UpdateRollbackPlanStatus(ctx context.Context, planID string, status types.PlanStatus) apperrors.Error {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return dberror.ErrMissingTenantID
	}

	query := `
		UPDATE rollback_plans
		SET status = $1, updated_at = now()
		WHERE plan_id = $2 AND tenant_id = $3 AND status = 'GENERATED'
		RETURNING plan_id;
	`
	var returned string
	err := mm.conn().QueryRowContext(ctx, query, status, planID, tenantID).Scan(&returned)
	if err != nil {
		if err == sql.ErrNoRows {
			if _, gerr := mm.GetRollbackPlan(ctx, planID); gerr != nil {
				return gerr
			}
			return dberror.ErrImmutableRow.Msg("rollback plan is already finalized")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to update rollback plan status")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

// InvalidatePlansForBranch marks every GENERATED plan whose pinned head no
// longer matches the branch head as INVALID. Called after any commit moves a
// branch head.
func (mm *metadataManager) InvalidatePlansForBranch(ctx context.Context, branchID uuid.UUID, headCommitID string) apperrors.Error {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return dberror.ErrMissingTenantID
	}

	_, err := mm.conn().ExecContext(ctx, `
		UPDATE rollback_plans
		SET status = 'INVALID', updated_at = now()
		WHERE branch_id = $1 AND tenant_id = $2
		AND status = 'GENERATED' AND head_commit_id <> $3;
	`, branchID, tenantID, headCommitID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to invalidate stale rollback plans")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}
