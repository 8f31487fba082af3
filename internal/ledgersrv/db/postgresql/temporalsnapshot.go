package postgresql

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/schemaledger/schemaledger/internal/common/apperrors"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/dberror"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/models"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/ledgercommon"
	"github.com/schemaledger/schemaledger/pkg/types"
)

const snapshotColumns = `snapshot_id, branch_id, object_id, object_type, namespace, name, definition, content_hash, commit_id, metadata, tenant_id, captured_at`

func scanSnapshot(row interface{ Scan(...any) error }) (*models.TemporalSnapshot, error) {
	s := &models.TemporalSnapshot{}
	err := row.Scan(
		&s.SnapshotID, &s.BranchID, &s.ObjectID, &s.ObjectType, &s.Namespace, &s.Name,
		&s.Definition, &s.Hash, &s.CommitID, &s.Metadata, &s.TenantID, &s.CapturedAt)
	if err != nil {
		return nil, err
	}
	s.Definition, err = expandDefinition(s.Definition)
	return s, err
}

// GetSnapshotAt returns an identity's most recent snapshot captured at or
// before the given instant.
func (om *objectManager) GetSnapshotAt(ctx context.Context, branchID uuid.UUID, ref types.ObjectRef, asOf time.Time) (*models.TemporalSnapshot, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}

	query := `
		SELECT ` + snapshotColumns + `
		FROM temporal_snapshots
		WHERE branch_id = $1 AND object_type = $2 AND namespace = $3 AND name = $4
		AND captured_at <= $5 AND tenant_id = $6
		ORDER BY captured_at DESC
		LIMIT 1;
	`
	snap, err := scanSnapshot(om.conn().QueryRowContext(ctx, query,
		branchID, ref.Type, ref.Namespace, ref.Name, asOf, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("no snapshot for object at given time: " + ref.String())
		}
		log.Ctx(ctx).Error().Err(err).Str("object", ref.String()).Msg("failed to retrieve snapshot")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return snap, nil
}

// ListSnapshotsForObject returns an identity's snapshots, newest first.
func (om *objectManager) ListSnapshotsForObject(ctx context.Context, branchID uuid.UUID, ref types.ObjectRef, limit int) ([]*models.TemporalSnapshot, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + snapshotColumns + `
		FROM temporal_snapshots
		WHERE branch_id = $1 AND object_type = $2 AND namespace = $3 AND name = $4 AND tenant_id = $5
		ORDER BY captured_at DESC
		LIMIT $6;
	`
	rows, err := om.conn().QueryContext(ctx, query,
		branchID, ref.Type, ref.Namespace, ref.Name, tenantID, limit)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list snapshots")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var snaps []*models.TemporalSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan snapshot row")
			return nil, dberror.ErrDatabase.Err(err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("error after scanning snapshots")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return snaps, nil
}

// DeleteSnapshotsBefore removes snapshots captured before the cutoff,
// keeping each identity's most recent capture. Returns rows removed.
func (om *objectManager) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return 0, dberror.ErrMissingTenantID
	}

	query := `
		DELETE FROM temporal_snapshots s
		WHERE s.captured_at < $1 AND s.tenant_id = $2
		AND s.snapshot_id NOT IN (
			SELECT DISTINCT ON (branch_id, object_type, namespace, name) snapshot_id
			FROM temporal_snapshots
			WHERE tenant_id = $2
			ORDER BY branch_id, object_type, namespace, name, captured_at DESC
		);
	`
	result, err := om.conn().ExecContext(ctx, query, cutoff, tenantID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to prune snapshots")
		return 0, dberror.ErrDatabase.Err(err)
	}
	n, _ := result.RowsAffected()
	log.Ctx(ctx).Info().Int64("rows", n).Time("cutoff", cutoff).Msg("pruned temporal snapshots")
	return n, nil
}
