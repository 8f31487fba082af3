package postgresql

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/schemaledger/schemaledger/internal/common/apperrors"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/dberror"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/models"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/ledgercommon"
	"github.com/schemaledger/schemaledger/pkg/types"
)

const edgeColumns = `branch_id, source_type, source_namespace, source_name, target_type, target_namespace, target_name, dependency_type, tenant_id`

func scanEdge(row interface{ Scan(...any) error }) (*models.DependencyEdge, error) {
	e := &models.DependencyEdge{}
	err := row.Scan(&e.BranchID,
		&e.Source.Type, &e.Source.Namespace, &e.Source.Name,
		&e.Target.Type, &e.Target.Namespace, &e.Target.Name,
		&e.DependencyType, &e.TenantID)
	return e, err
}

// ListEdgesForBranch returns every dependency edge recorded on a branch.
func (om *objectManager) ListEdgesForBranch(ctx context.Context, branchID uuid.UUID) ([]*models.DependencyEdge, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}

	query := `
		SELECT ` + edgeColumns + `
		FROM object_dependencies
		WHERE branch_id = $1 AND tenant_id = $2
		ORDER BY source_type, source_namespace, source_name;
	`
	return om.queryEdges(ctx, query, branchID, tenantID)
}

// ListEdgesByTarget returns the edges pointing at an identity: the objects
// that depend on it.
func (om *objectManager) ListEdgesByTarget(ctx context.Context, branchID uuid.UUID, target types.ObjectRef) ([]*models.DependencyEdge, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}

	query := `
		SELECT ` + edgeColumns + `
		FROM object_dependencies
		WHERE branch_id = $1 AND target_type = $2 AND target_namespace = $3 AND target_name = $4 AND tenant_id = $5
		ORDER BY source_type, source_namespace, source_name;
	`
	return om.queryEdges(ctx, query, branchID, target.Type, target.Namespace, target.Name, tenantID)
}

// ListEdgesBySource returns the edges an identity declares: the objects it
// depends on.
func (om *objectManager) ListEdgesBySource(ctx context.Context, branchID uuid.UUID, source types.ObjectRef) ([]*models.DependencyEdge, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}

	query := `
		SELECT ` + edgeColumns + `
		FROM object_dependencies
		WHERE branch_id = $1 AND source_type = $2 AND source_namespace = $3 AND source_name = $4 AND tenant_id = $5
		ORDER BY target_type, target_namespace, target_name;
	`
	return om.queryEdges(ctx, query, branchID, source.Type, source.Namespace, source.Name, tenantID)
}

func (om *objectManager) queryEdges(ctx context.Context, query string, args ...any) ([]*models.DependencyEdge, apperrors.Error) {
	rows, err := om.conn().QueryContext(ctx, query, args...)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to query dependency edges")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var edges []*models.DependencyEdge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan dependency edge row")
			return nil, dberror.ErrDatabase.Err(err)
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("error after scanning dependency edges")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return edges, nil
}
