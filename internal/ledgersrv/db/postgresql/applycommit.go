package postgresql

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/schemaledger/schemaledger/internal/common/apperrors"
	"github.com/schemaledger/schemaledger/internal/common/uuidv7utils"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/dberror"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/models"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/ledgercommon"
	"github.com/schemaledger/schemaledger/pkg/types"
)

// ApplyCommit writes one commit atomically: the commit row, one history entry
// and one catalog upsert per change, recomputed dependency edges, optional
// snapshots, and the branch head advance. The branch row is locked for the
// duration; if its sequence moved past apply.ExpectedSeq since the caller
// computed the change set, nothing is written and ErrStaleHead is returned so
// the caller can recompute and retry.
func (om *objectManager) ApplyCommit(ctx context.Context, apply *models.CommitApply) apperrors.Error {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return dberror.ErrMissingTenantID
	}
	if len(apply.Changes) == 0 {
		return dberror.ErrInvalidInput.Msg("commit must contain at least one change")
	}

	tx, err := om.conn().BeginTx(ctx, nil)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to begin commit transaction")
		return dberror.ErrDatabase.Err(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	// Lock the branch row. All writers for a branch serialize here.
	var currentSeq int64
	var status types.BranchStatus
	err = tx.QueryRowContext(ctx, `
		SELECT commit_seq, status
		FROM branches
		WHERE branch_id = $1 AND tenant_id = $2
		FOR UPDATE;
	`, apply.Commit.BranchID, tenantID).Scan(&currentSeq, &status)
	if err != nil {
		if err == sql.ErrNoRows {
			return dberror.ErrNotFound.Msg("branch not found: " + apply.Commit.BranchID.String())
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to lock branch row")
		return dberror.ErrDatabase.Err(err)
	}
	if status != types.BranchStatusActive {
		return dberror.ErrInvalidBranch.Msg("branch is not active")
	}
	if currentSeq != apply.ExpectedSeq {
		log.Ctx(ctx).Info().
			Int64("expected_seq", apply.ExpectedSeq).
			Int64("current_seq", currentSeq).
			Msg("branch head moved since change set was computed")
		return dberror.ErrStaleHead
	}

	newSeq := currentSeq + 1
	commit := &apply.Commit
	commit.Seq = newSeq
	commit.TenantID = tenantID
	if commit.ID == uuid.Nil {
		commit.ID = uuidv7utils.UUID7()
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO commits (id, commit_id, branch_id, seq, author, message, parent_commit_ids, idempotency_key, tenant_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9)
		RETURNING created_at;
	`, commit.ID, commit.CommitID, commit.BranchID, commit.Seq,
		commit.Author, commit.Message, pq.Array(commit.ParentCommitIDs),
		commit.IdempotencyKey, tenantID).Scan(&commit.CreatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "unique_commit_idempotency_key" {
				log.Ctx(ctx).Info().Str("idempotency_key", commit.IdempotencyKey).Msg("idempotency key already used on branch")
				return dberror.ErrAlreadyExists.Msg("a commit with this idempotency key already exists")
			}
			log.Ctx(ctx).Error().Str("constraint", pgErr.ConstraintName).Msg("commit uniqueness violation")
			return dberror.ErrAlreadyExists.Msg("commit already exists")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to insert commit row")
		return dberror.ErrDatabase.Err(err)
	}

	for i := range apply.Changes {
		change := &apply.Changes[i]
		if change.ObjectID == uuid.Nil {
			change.ObjectID = uuidv7utils.UUID7()
		}
		if err := writeChange(ctx, tx, commit, change, tenantID); err != nil {
			return err
		}
		if apply.WriteSnapshots && !change.IsDrop() {
			if err := writeSnapshot(ctx, tx, commit, change, tenantID); err != nil {
				return err
			}
		}
	}

	if apply.ClearStaged {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM staged_changes
			WHERE branch_id = $1 AND tenant_id = $2;
		`, commit.BranchID, tenantID)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to clear staged changes")
			return dberror.ErrDatabase.Err(err)
		}
	}

	if apply.SetSourceMerged != uuid.Nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE branches
			SET status = 'MERGED', updated_at = now()
			WHERE branch_id = $1 AND tenant_id = $2 AND status = 'ACTIVE';
		`, apply.SetSourceMerged, tenantID)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to mark source branch merged")
			return dberror.ErrDatabase.Err(err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE branches
		SET head_commit_id = $1, commit_seq = $2, updated_at = now()
		WHERE branch_id = $3 AND tenant_id = $4;
	`, commit.CommitID, newSeq, commit.BranchID, tenantID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to advance branch head")
		return dberror.ErrDatabase.Err(err)
	}

	if err := tx.Commit(); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to commit transaction")
		return dberror.ErrDatabase.Err(err)
	}
	committed = true
	log.Ctx(ctx).Info().
		Str("commit_id", commit.CommitID).
		Int64("seq", newSeq).
		Int("changes", len(apply.Changes)).
		Msg("commit applied")
	return nil
}

// writeChange appends the history entry for one object and brings the
// per-branch catalog row and dependency edges in line with the new state.
func writeChange(ctx context.Context, tx *sql.Tx, commit *models.Commit, change *models.CommitChange, tenantID types.TenantId) apperrors.Error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO object_history (id, object_id, object_type, namespace, name, branch_id, commit_id, seq, change_type, before_definition, before_hash, after_definition, after_hash, tenant_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, NULLIF($13, ''), $14);
	`, uuidv7utils.UUID7(), change.ObjectID, change.Ref.Type, change.Ref.Namespace, change.Ref.Name,
		commit.BranchID, commit.CommitID, commit.Seq, change.ChangeType,
		compressDefinition(change.BeforeDefinition), string(change.BeforeHash),
		compressDefinition(change.AfterDefinition), string(change.AfterHash), tenantID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("object", change.Ref.String()).Msg("failed to insert history entry")
		return dberror.ErrDatabase.Err(err)
	}

	if change.IsDrop() {
		// The catalog row is kept for identity continuity; the tombstone
		// itself lives in object_history.
		_, err = tx.ExecContext(ctx, `
			UPDATE schema_objects
			SET is_active = false, updated_at = now()
			WHERE branch_id = $1 AND object_type = $2 AND namespace = $3 AND name = $4 AND tenant_id = $5;
		`, commit.BranchID, change.Ref.Type, change.Ref.Namespace, change.Ref.Name, tenantID)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("object", change.Ref.String()).Msg("failed to deactivate catalog row")
			return dberror.ErrDatabase.Err(err)
		}
	} else {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO schema_objects (object_id, branch_id, object_type, namespace, name, current_definition, content_hash, is_active, tenant_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, true, $8)
			ON CONFLICT (branch_id, object_type, namespace, name, tenant_id)
			DO UPDATE SET current_definition = EXCLUDED.current_definition,
			              content_hash = EXCLUDED.content_hash,
			              is_active = true,
			              updated_at = now();
		`, change.ObjectID, commit.BranchID, change.Ref.Type, change.Ref.Namespace, change.Ref.Name,
			compressDefinition(change.AfterDefinition), string(change.AfterHash), tenantID)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("object", change.Ref.String()).Msg("failed to upsert catalog row")
			return dberror.ErrDatabase.Err(err)
		}
	}

	// Edges are derived state: drop everything the object declared before and
	// insert what its new definition declares.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM object_dependencies
		WHERE branch_id = $1 AND source_type = $2 AND source_namespace = $3 AND source_name = $4 AND tenant_id = $5;
	`, commit.BranchID, change.Ref.Type, change.Ref.Namespace, change.Ref.Name, tenantID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("object", change.Ref.String()).Msg("failed to delete stale dependency edges")
		return dberror.ErrDatabase.Err(err)
	}
	for _, edge := range change.Edges {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO object_dependencies (branch_id, source_type, source_namespace, source_name, target_type, target_namespace, target_name, dependency_type, tenant_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT DO NOTHING;
		`, commit.BranchID,
			edge.Source.Type, edge.Source.Namespace, edge.Source.Name,
			edge.Target.Type, edge.Target.Namespace, edge.Target.Name,
			edge.DependencyType, tenantID)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("object", change.Ref.String()).Msg("failed to insert dependency edge")
			return dberror.ErrDatabase.Err(err)
		}
	}
	return nil
}

func writeSnapshot(ctx context.Context, tx *sql.Tx, commit *models.Commit, change *models.CommitChange, tenantID types.TenantId) apperrors.Error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO temporal_snapshots (snapshot_id, branch_id, object_id, object_type, namespace, name, definition, content_hash, commit_id, tenant_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`, uuidv7utils.UUID7(), commit.BranchID, change.ObjectID,
		change.Ref.Type, change.Ref.Namespace, change.Ref.Name,
		compressDefinition(change.AfterDefinition), string(change.AfterHash),
		commit.CommitID, tenantID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("object", change.Ref.String()).Msg("failed to insert snapshot")
		return dberror.ErrDatabase.Err(err)
	}
	return nil
}
