package postgresql

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/schemaledger/schemaledger/internal/common/apperrors"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/dberror"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/models"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/ledgercommon"
)

const commitColumns = `id, commit_id, branch_id, seq, author, COALESCE(message, ''), parent_commit_ids, COALESCE(idempotency_key, ''), tenant_id, created_at`

func scanCommit(row interface{ Scan(...any) error }) (*models.Commit, error) {
	commit := &models.Commit{}
	err := row.Scan(
		&commit.ID, &commit.CommitID, &commit.BranchID, &commit.Seq,
		&commit.Author, &commit.Message, pq.Array(&commit.ParentCommitIDs),
		&commit.IdempotencyKey, &commit.TenantID, &commit.CreatedAt)
	return commit, err
}

// GetCommit retrieves a commit by its content-influenced commit id.
func (mm *metadataManager) GetCommit(ctx context.Context, commitID string) (*models.Commit, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}
	if commitID == "" {
		return nil, dberror.ErrInvalidInput.Msg("commit id cannot be empty")
	}

	query := `
		SELECT ` + commitColumns + `
		FROM commits
		WHERE commit_id = $1 AND tenant_id = $2;
	`
	commit, err := scanCommit(mm.conn().QueryRowContext(ctx, query, commitID, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			log.Ctx(ctx).Info().Str("commit_id", commitID).Msg("commit not found")
			return nil, dberror.ErrNotFound.Msg("commit not found: " + commitID)
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve commit")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return commit, nil
}

// GetCommitBySeq retrieves the commit at an exact sequence position on a
// branch. Sequence numbers are gapless, so position lookups are exact.
func (mm *metadataManager) GetCommitBySeq(ctx context.Context, branchID uuid.UUID, seq int64) (*models.Commit, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}

	query := `
		SELECT ` + commitColumns + `
		FROM commits
		WHERE branch_id = $1 AND seq = $2 AND tenant_id = $3;
	`
	commit, err := scanCommit(mm.conn().QueryRowContext(ctx, query, branchID, seq, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("commit not found on branch")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve commit by seq")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return commit, nil
}

// GetCommitByIdempotencyKey returns the commit a prior attempt with the same
// key produced, if any.
func (mm *metadataManager) GetCommitByIdempotencyKey(ctx context.Context, branchID uuid.UUID, key string) (*models.Commit, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}
	if key == "" {
		return nil, dberror.ErrInvalidInput.Msg("idempotency key cannot be empty")
	}

	query := `
		SELECT ` + commitColumns + `
		FROM commits
		WHERE branch_id = $1 AND idempotency_key = $2 AND tenant_id = $3;
	`
	commit, err := scanCommit(mm.conn().QueryRowContext(ctx, query, branchID, key, tenantID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, dberror.ErrNotFound.Msg("no commit recorded for idempotency key")
		}
		log.Ctx(ctx).Error().Err(err).Msg("failed to retrieve commit by idempotency key")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return commit, nil
}

// ListCommits returns the commits of a branch in descending sequence order.
func (mm *metadataManager) ListCommits(ctx context.Context, branchID uuid.UUID, limit int) ([]*models.Commit, apperrors.Error) {
	tenantID := ledgercommon.GetTenantID(ctx)
	if tenantID == "" {
		return nil, dberror.ErrMissingTenantID
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + commitColumns + `
		FROM commits
		WHERE branch_id = $1 AND tenant_id = $2
		ORDER BY seq DESC
		LIMIT $3;
	`
	rows, err := mm.conn().QueryContext(ctx, query, branchID, tenantID, limit)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list commits")
		return nil, dberror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	var commits []*models.Commit
	for rows.Next() {
		commit, err := scanCommit(rows)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to scan commit row")
			return nil, dberror.ErrDatabase.Err(err)
		}
		commits = append(commits, commit)
	}
	if err := rows.Err(); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("error after scanning commits")
		return nil, dberror.ErrDatabase.Err(err)
	}
	return commits, nil
}
