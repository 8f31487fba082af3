package postgresql

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/rs/zerolog/log"
	"github.com/schemaledger/schemaledger/internal/common/apperrors"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/dberror"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/models"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/ledgercommon"
	"github.com/schemaledger/schemaledger/pkg/types"
)

// UpsertStagedChange records or replaces the working-set entry for one
// identity on a branch. Re-staging the same identity overwrites the prior
// staged state.
func (om *objectManager) UpsertStagedChange(ctx context.Context, staged *models.StagedChange) apperrors.Error {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return dberror.ErrMissingTenantID
	}
	staged.TenantID = tenantID

	query := `
		INSERT INTO staged_changes (branch_id, object_type, namespace, name, definition, is_drop, tenant_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (branch_id, object_type, namespace, name, tenant_id)
		DO UPDATE SET definition = EXCLUDED.definition,
		              is_drop = EXCLUDED.is_drop,
		              updated_at = now()
		RETURNING updated_at;
	`
	err := om.conn().QueryRowContext(ctx, query,
		staged.BranchID, staged.ObjectType, staged.Namespace, staged.Name,
		compressDefinition(staged.Definition), staged.IsDrop, tenantID).Scan(&staged.UpdatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23503" {
			return dberror.ErrInvalidBranch.Msg("branch not found")
		}
		log.Ctx(ctx).Error().Err(err).Str("object", staged.Ref().String()).Msg("failed to upsert staged change")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}

// DeleteStagedChange removes one identity from the branch's working set.
func (om *objectManager) DeleteStagedChange(ctx context.Context, branchID uuid.UUID, ref types.ObjectRef) apperrors.Error {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return dberror.ErrMissingTenantID
	}

	result, err := om.conn().ExecContext(ctx, `
		DELETE FROM staged_changes
		WHERE branch_id = $1 AND object_type = $2 AND namespace = $3 AND name = $4 AND tenant_id = $5;
	`, branchID, ref.Type, ref.Namespace, ref.Name, tenantID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("object", ref.String()).Msg("failed to delete staged change")
		return dberror.ErrDatabase.Err(err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return dberror.ErrNotFound.Msg("nothing staged for object: " + ref.String())
	}
	return nil
}

// ListStagedChanges returns a branch's working set in stable identity order.
func (om *objectManager) ListStagedChanges(ctx context.Context, branchID uuid.UUID) ([]*models.StagedChange, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}

	query := `
		SELECT branch_id, object_type, namespace, name, definition, is_drop, tenant_id, updated_at
		FROM staged_changes
		WHERE branch_id = $1 AND tenant_id = $2
		ORDER BY object_type, namespace, name;
	`
	rows, err := om.conn().QueryContext(ctx, query, branchID, tenantID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list staged changes")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var staged []*models.StagedChange
	for rows.Next() {
		s := &models.StagedChange{}
		err := rows.Scan(&s.BranchID, &s.ObjectType, &s.Namespace, &s.Name,
			&s.Definition, &s.IsDrop, &s.TenantID, &s.UpdatedAt)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan staged change row")
			return nil, dberror.ErrDatabase.Err(err)
		}
		if s.Definition, err = expandDefinition(s.Definition); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to expand staged definition")
			return nil, dberror.ErrDatabase.Err(err)
		}
		staged = append(staged, s)
	}
	if err := rows.Err(); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("error after scanning staged changes")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return staged, nil
}

// ClearStagedChanges discards a branch's entire working set.
func (om *objectManager) ClearStagedChanges(ctx context.Context, branchID uuid.UUID) apperrors.Error {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return dberror.ErrMissingTenantID
	}

	_, err := om.conn().ExecContext(ctx, `
		DELETE FROM staged_changes
		WHERE branch_id = $1 AND tenant_id = $2;
	`, branchID, tenantID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to clear staged changes")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}
