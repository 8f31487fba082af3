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

// CreateBranch inserts a new branch row. The partial unique index on active
// branch names turns duplicate names into ErrAlreadyExists; the name check
// constraint turns charset violations into ErrInvalidInput.
func (mm *metadataManager) CreateBranch(ctx context.Context, branch *models.Branch) apperrors.Error {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return dberror.ErrMissingTenantID
	}
	branch.TenantID = tenantID
	if branch.BranchID == uuid.Nil {
		branch.BranchID = uuid.New()
	}
	if branch.Status == "" {
		branch.Status = types.BranchStatusActive
	}

	query := `
		INSERT INTO branches (branch_id, name, description, info, parent_branch_id, fork_commit_id, head_commit_id, commit_seq, status, created_by, tenant_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11)
		RETURNING branch_id, created_at, updated_at;
	`
	row := mm.conn().QueryRowContext(ctx, query,
		branch.BranchID, branch.Name, branch.Description, branch.Info,
		branch.ParentBranchID, branch.ForkCommitID, branch.HeadCommitID,
		branch.CommitSeq, branch.Status, branch.CreatedBy, tenantID)
	err := row.Scan(&branch.BranchID, &branch.CreatedAt, &branch.UpdatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok {
			if pgErr.Code == "23505" && pgErr.ConstraintName == "unique_active_branch_name" {
				log.Ctx(ctx).Info().Str("name", branch.Name).Msg("active branch name already exists")
				return dberror.ErrAlreadyExists.Msg("an active branch with this name already exists: " + branch.Name)
			}
			if pgErr.Code == "23514" && pgErr.ConstraintName == "branches_name_check" {
				log.Ctx(ctx).Error().Str("name", branch.Name).Msg("invalid branch name format")
				return dberror.ErrInvalidInput.Msg("invalid branch name format: " + branch.Name)
			}
			if pgErr.Code == "23503" || pgErr.ConstraintName == "branches_parent_branch_id_tenant_id_fkey" {
				log.Ctx(ctx).Info().Str("name", branch.Name).Msg("parent branch not found")
				return dberror.ErrInvalidBranch.Msg("parent branch not found")
			}
		}
		log.Ctx(ctx).Error().Err(err).Str("name", branch.Name).Msg("failed to insert branch")
		return dberror.ErrDatabase.Err(err)
	}

	return nil
}

const branchColumns = `branch_id, name, description, info, parent_branch_id, COALESCE(fork_commit_id, ''), COALESCE(head_commit_id, ''), commit_seq, status, COALESCE(created_by, ''), tenant_id, created_at, updated_at`

func scanBranch(row interface{ Scan(...any) error }) (*models.Branch, error) {
	branch := &models.Branch{}
	err := row.Scan(
		&branch.BranchID, &branch.Name, &branch.Description, &branch.Info,
		&branch.ParentBranchID, &branch.ForkCommitID, &branch.HeadCommitID,
		&branch.CommitSeq, &branch.Status, &branch.CreatedBy, &branch.TenantID,
		&branch.CreatedAt, &branch.UpdatedAt)
	return branch, err
}

// GetBranch retrieves a branch by id.
func (mm *metadataManager) GetBranch(ctx context.Context, branchID uuid.UUID) (*models.Branch, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}
	query := `
		SELECT ` + branchColumns + `
		FROM branches
		WHERE branch_id = $1 AND tenant_id = $2;
	`
	branch, err := scanBranch(mm.conn().QueryRowContext(ctx, query, branchID, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			log.Ctx(ctx).Info().Str("branch_id", branchID.String()).Msg("branch not found")
			return nil, dberror.ErrNotFound.Msg("branch not found: " + branchID.String())
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve branch")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return branch, nil
}

// GetBranchByName retrieves the active branch holding the given name.
func (mm *metadataManager) GetBranchByName(ctx context.Context, name string) (*models.Branch, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}
	query := `
		SELECT ` + branchColumns + `
		FROM branches
		WHERE name = $1 AND status = 'ACTIVE' AND tenant_id = $2;
	`
	branch, err := scanBranch(mm.conn().QueryRowContext(ctx, query, name, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			log.Ctx(ctx).Info().Str("name", name).Msg("branch not found")
			return nil, dberror.ErrNotFound.Msg("branch not found: " + name)
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve branch by name")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return branch, nil
}

// ListBranches returns branches filtered by status. An empty status lists all.
func (mm *metadataManager) ListBranches(ctx context.Context, status types.BranchStatus, parentBranchID uuid.UUID) ([]*models.Branch, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}

	query := `
		SELECT ` + branchColumns + `
		FROM branches
		WHERE tenant_id = $1
		AND ($2 = '' OR status = $2)
		AND ($3::uuid IS NULL OR parent_branch_id = $3)
		ORDER BY created_at;
	`
	var parent any
	if parentBranchID != uuid.Nil {
		parent = parentBranchID
	}
	rows, err := mm.conn().QueryContext(ctx, query, tenantID, string(status), parent)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list branches")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var branches []*models.Branch
	for rows.Next() {
		branch, err := scanBranch(rows)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan branch row")
			return nil, dberror.ErrDatabase.Err(err)
		}
		branches = append(branches, branch)
	}
	if err := rows.Err(); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("error after scanning branches")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return branches, nil
}

// UpdateBranchStatus performs the soft lifecycle transition. Branch rows are
// never deleted.
func (mm *metadataManager) UpdateBranchStatus(ctx context.Context, branchID uuid.UUID, status types.BranchStatus) apperrors.Error {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return dberror.ErrMissingTenantID
	}
	if !status.IsValid() {
		return dberror.ErrInvalidInput.Msg("invalid branch status: " + string(status))
	}

	query := `
		UPDATE branches
		SET status = $1, updated_at = now()
		WHERE branch_id = $2 AND tenant_id = $3
		RETURNING branch_id;
	`
	var returned uuid.UUID
	err := mm.conn().QueryRowContext(ctx, query, status, branchID, tenantID).Scan(&returned)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Ctx(ctx).Info().Str("branch_id", branchID.String()).Msg("branch not found")
			return dberror.ErrNotFound.Msg("branch not found: " + branchID.String())
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to update branch status")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

// UpdateBranch updates the mutable metadata of a branch (description, info).
func (mm *metadataManager) UpdateBranch(ctx context.Context, branch *models.Branch) apperrors.Error {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return dberror.ErrMissingTenantID
	}

	query := `
		UPDATE branches
		SET description = $1, info = $2, updated_at = now()
		WHERE branch_id = $3 AND tenant_id = $4
		RETURNING branch_id;
	`
	var returned uuid.UUID
	err := mm.conn().QueryRowContext(ctx, query, branch.Description, branch.Info, branch.BranchID, tenantID).Scan(&returned)
	if err != nil {
		if err == sql.ErrNoRows {
			return dberror.ErrNotFound.Msg("branch not found: " + branch.BranchID.String())
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to update branch")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}
