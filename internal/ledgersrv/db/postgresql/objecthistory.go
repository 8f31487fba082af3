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

const historyColumns = `id, object_id, object_type, namespace, name, branch_id, commit_id, seq, change_type, before_definition, COALESCE(before_hash, ''), after_definition, COALESCE(after_hash, ''), tenant_id, created_at`

func scanHistoryEntry(row interface{ Scan(...any) error }) (*models.ObjectHistoryEntry, error) {
	e := &models.ObjectHistoryEntry{}
	err := row.Scan(
		&e.ID, &e.ObjectID, &e.ObjectType, &e.Namespace, &e.Name,
		&e.BranchID, &e.CommitID, &e.Seq, &e.ChangeType,
		&e.BeforeDefinition, &e.BeforeHash, &e.AfterDefinition, &e.AfterHash,
		&e.TenantID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if e.BeforeDefinition, err = expandDefinition(e.BeforeDefinition); err != nil {
		return nil, err
	}
	e.AfterDefinition, err = expandDefinition(e.AfterDefinition)
	return e, err
}

// GetLatestEntryForRefInSegment returns the most recent history entry for an
// identity on a branch at or below maxSeq. This is the primitive behind
// copy-on-write state resolution: callers walk lineage segments newest-first
// and take the first hit.
func (om *objectManager) GetLatestEntryForRefInSegment(ctx context.Context, branchID uuid.UUID, ref types.ObjectRef, maxSeq int64) (*models.ObjectHistoryEntry, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}

	query := `
		SELECT ` + historyColumns + `
		FROM object_history
		WHERE branch_id = $1 AND object_type = $2 AND namespace = $3 AND name = $4
		AND seq <= $5 AND tenant_id = $6
		ORDER BY seq DESC
		LIMIT 1;
	`
	entry, err := scanHistoryEntry(om.conn().QueryRowContext(ctx, query,
		branchID, ref.Type, ref.Namespace, ref.Name, maxSeq, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("no history for object in segment: " + ref.String())
		}
		log.Ctx(ctx).Error().Err(err).Str("object", ref.String()).Msg("failed to resolve history entry")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return entry, nil
}

// ListEntriesForCommit returns every history entry a commit produced.
func (om *objectManager) ListEntriesForCommit(ctx context.Context, commitID string) ([]*models.ObjectHistoryEntry, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}

	query := `
		SELECT ` + historyColumns + `
		FROM object_history
		WHERE commit_id = $1 AND tenant_id = $2
		ORDER BY object_type, namespace, name;
	`
	return om.queryHistory(ctx, query, commitID, tenantID)
}

// ListEntriesInRange returns a branch segment's history entries with
// fromSeq < seq <= toSeq, in ascending sequence order. Merge and rollback
// reduce this into per-identity change sets.
func (om *objectManager) ListEntriesInRange(ctx context.Context, branchID uuid.UUID, fromSeq, toSeq int64) ([]*models.ObjectHistoryEntry, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}

	query := `
		SELECT ` + historyColumns + `
		FROM object_history
		WHERE branch_id = $1 AND seq > $2 AND seq <= $3 AND tenant_id = $4
		ORDER BY seq;
	`
	return om.queryHistory(ctx, query, branchID, fromSeq, toSeq, tenantID)
}

// ListHistoryForRefInSegment returns an identity's entries on a branch at or
// below maxSeq, newest first.
func (om *objectManager) ListHistoryForRefInSegment(ctx context.Context, branchID uuid.UUID, ref types.ObjectRef, maxSeq int64, limit int) ([]*models.ObjectHistoryEntry, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + historyColumns + `
		FROM object_history
		WHERE branch_id = $1 AND object_type = $2 AND namespace = $3 AND name = $4
		AND seq <= $5 AND tenant_id = $6
		ORDER BY seq DESC
		LIMIT $7;
	`
	return om.queryHistory(ctx, query, branchID, ref.Type, ref.Namespace, ref.Name, maxSeq, tenantID, limit)
}

// DeleteEntriesBefore removes history entries created before the cutoff,
// keeping each identity's most recent entry per branch so current state always
// remains resolvable. Returns the number of rows removed.
func (om *objectManager) DeleteEntriesBefore(ctx context.Context, cutoff time.Time) (int64, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return 0, dberror.ErrMissingTenantID
	}

	query := `
		DELETE FROM object_history h
		WHERE h.created_at < $1 AND h.tenant_id = $2
		AND h.id NOT IN (
			SELECT DISTINCT ON (branch_id, object_type, namespace, name) id
			FROM object_history
			WHERE tenant_id = $2
			ORDER BY branch_id, object_type, namespace, name, seq DESC
		);
	`
	result, err := om.conn().ExecContext(ctx, query, cutoff, tenantID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to prune object history")
		return 0, dberror.ErrDatabase.Err(err)
	}
	n, _ := result.RowsAffected()
	log.Ctx(ctx).Info().Int64("rows", n).Time("cutoff", cutoff).Msg("pruned object history")
	return n, nil
}

func (om *objectManager) queryHistory(ctx context.Context, query string, args ...any) ([]*models.ObjectHistoryEntry, apperrors.Error) {
	rows, err := om.conn().QueryContext(ctx, query, args...)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to query object history")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var entries []*models.ObjectHistoryEntry
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan history row")
			return nil, dberror.ErrDatabase.Err(err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("error after scanning history rows")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return entries, nil
}
