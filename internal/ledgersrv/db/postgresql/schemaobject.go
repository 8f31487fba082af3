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

const schemaObjectColumns = `object_id, branch_id, object_type, namespace, name, current_definition, content_hash, is_active, tenant_id, created_at, updated_at`

func scanSchemaObject(row interface{ Scan(...any) error }) (*models.SchemaObject, error) {
	obj := &models.SchemaObject{}
	err := row.Scan(
		&obj.ObjectID, &obj.BranchID, &obj.ObjectType, &obj.Namespace, &obj.Name,
		&obj.Definition, &obj.Hash, &obj.IsActive, &obj.TenantID,
		&obj.CreatedAt, &obj.UpdatedAt)
	if err != nil {
		return nil, err
	}
	obj.Definition, err = expandDefinition(obj.Definition)
	return obj, err
}

// GetObject returns the branch-local catalog row for an identity, active or
// not. Absence means the branch never touched the object; callers fall back
// to lineage resolution through object_history.
func (om *objectManager) GetObject(ctx context.Context, branchID uuid.UUID, ref types.ObjectRef) (*models.SchemaObject, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}
	if !ref.IsValid() {
		return nil, dberror.ErrInvalidInput.Msg("invalid object reference")
	}

	query := `
		SELECT ` + schemaObjectColumns + `
		FROM schema_objects
		WHERE branch_id = $1 AND object_type = $2 AND namespace = $3 AND name = $4 AND tenant_id = $5;
	`
	obj, err := scanSchemaObject(om.conn().QueryRowContext(ctx, query,
		branchID, ref.Type, ref.Namespace, ref.Name, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("object not found on branch: " + ref.String())
		}
		log.Ctx(ctx).Error().Err(err).Str("object", ref.String()).Msg("failed to retrieve schema object")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return obj, nil
}

// ListObjects returns a branch's active catalog rows, optionally filtered by
// namespace and type.
func (om *objectManager) ListObjects(ctx context.Context, branchID uuid.UUID, namespace string, objectType types.ObjectType) ([]*models.SchemaObject, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}

	query := `
		SELECT ` + schemaObjectColumns + `
		FROM schema_objects
		WHERE branch_id = $1 AND is_active = true AND tenant_id = $2
		AND ($3 = '' OR namespace = $3)
		AND ($4 = '' OR object_type = $4)
		ORDER BY object_type, namespace, name;
	`
	rows, err := om.conn().QueryContext(ctx, query, branchID, tenantID, namespace, string(objectType))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list schema objects")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var objects []*models.SchemaObject
	for rows.Next() {
		obj, err := scanSchemaObject(rows)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan schema object row")
			return nil, dberror.ErrDatabase.Err(err)
		}
		objects = append(objects, obj)
	}
	if err := rows.Err(); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("error after scanning schema objects")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return objects, nil
}
