package versionmanager

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	retry "github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/schemaledger/schemaledger/internal/common/apperrors"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/config"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/dberror"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/models"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/ledgercommon"
	"github.com/schemaledger/schemaledger/pkg/schemadef"
	"github.com/schemaledger/schemaledger/pkg/types"
)

// CommitChanges captures the branch's staged working set as one atomic
// commit. The change set is computed by diffing staged rows against the
// branch-resolved state; identical content is skipped, and a fully redundant
// working set yields ErrEmptyCommit. The commit id is content-influenced, so
// retries after a head race recompute it. An idempotency key that was already
// consumed on the branch replays the original commit id.
func CommitChanges(ctx context.Context, branchName, message, idempotencyKey string) (string, apperrors.Error) {
	if branchName == "" {
		return "", ErrInvalidArgument.Msg("branch cannot be NULL")
	}

	branch, aerr := GetBranch(ctx, branchName)
	if aerr != nil {
		return "", aerr
	}

	if idempotencyKey != "" {
		prior, derr := db.DB(ctx).GetCommitByIdempotencyKey(ctx, branch.BranchID, idempotencyKey)
		if derr == nil {
			log.Ctx(ctx).Info().Str("idempotency_key", idempotencyKey).Str("commit_id", prior.CommitID).Msg("idempotent replay")
			return prior.CommitID, nil
		}
		if !errors.Is(derr, dberror.ErrNotFound) {
			return "", ErrIntegrity.Err(derr)
		}
	}

	var commitID string
	attempts := uint(config.Config().MaxCommitRetryAttempts)
	if attempts == 0 {
		attempts = 1
	}
	rerr := retry.Do(
		func() error {
			id, err := commitOnce(ctx, branch.BranchID, message, idempotencyKey)
			if err != nil {
				return err
			}
			commitID = id
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, dberror.ErrStaleHead)
		}),
	)
	if rerr != nil {
		if errors.Is(rerr, dberror.ErrStaleHead) {
			return "", ErrStateConflict.Msg("branch head kept moving; commit retries exhausted").Err(rerr)
		}
		if aerr, ok := rerr.(apperrors.Error); ok {
			return "", aerr
		}
		return "", ErrIntegrity.Err(rerr)
	}
	return commitID, nil
}

// commitOnce computes the change set against the current head and applies it
// expecting that head to still hold. ErrStaleHead from the storage layer
// bubbles up untranslated so the retry loop can recompute.
func commitOnce(ctx context.Context, branchID uuid.UUID, message, idempotencyKey string) (string, apperrors.Error) {
	branch, derr := db.DB(ctx).GetBranch(ctx, branchID)
	if derr != nil {
		return "", ErrIntegrity.Err(derr)
	}
	if branch.Status != types.BranchStatusActive {
		return "", ErrStateConflict.Msg("branch is not active: " + branch.Name)
	}

	staged, derr := db.DB(ctx).ListStagedChanges(ctx, branch.BranchID)
	if derr != nil {
		return "", ErrIntegrity.Err(derr)
	}
	if len(staged) == 0 {
		return "", ErrEmptyCommit.Msg("nothing staged on branch " + branch.Name)
	}

	segments, aerr := branchLineage(ctx, branch, branch.CommitSeq)
	if aerr != nil {
		return "", aerr
	}

	changes, aerr := diffStaged(ctx, segments, staged)
	if aerr != nil {
		return "", aerr
	}
	if len(changes) == 0 {
		return "", ErrEmptyCommit.Msg("staged changes are identical to current state on branch " + branch.Name)
	}
	if aerr := checkReferences(ctx, segments, changes); aerr != nil {
		return "", aerr
	}

	var parents []string
	if branch.HeadCommitID != "" {
		parents = []string{branch.HeadCommitID}
	}
	author := ledgercommon.GetAuthor(ctx)
	commitID, aerr := computeCommitID(branch.BranchID, parents, branch.CommitSeq+1, message, author, changes)
	if aerr != nil {
		return "", aerr
	}

	apply := &models.CommitApply{
		Commit: models.Commit{
			CommitID:        commitID,
			BranchID:        branch.BranchID,
			Author:          author,
			Message:         message,
			ParentCommitIDs: parents,
			IdempotencyKey:  idempotencyKey,
		},
		ExpectedSeq:    branch.CommitSeq,
		Changes:        changes,
		ClearStaged:    true,
		WriteSnapshots: config.Config().SnapshotOnCommit,
	}
	if derr := db.DB(ctx).ApplyCommit(ctx, apply); derr != nil {
		if errors.Is(derr, dberror.ErrStaleHead) {
			return "", derr
		}
		if errors.Is(derr, dberror.ErrAlreadyExists) && idempotencyKey != "" {
			// A concurrent attempt with the same key won the race; its commit
			// is the canonical one.
			prior, gerr := db.DB(ctx).GetCommitByIdempotencyKey(ctx, branch.BranchID, idempotencyKey)
			if gerr == nil {
				return prior.CommitID, nil
			}
		}
		return "", ErrIntegrity.Msg("commit failed on branch " + branch.Name).Err(derr)
	}

	// Plans pinned to the old head are no longer executable.
	if derr := db.DB(ctx).InvalidatePlansForBranch(ctx, branch.BranchID, commitID); derr != nil {
		log.Ctx(ctx).Error().Err(derr).Msg("failed to invalidate stale rollback plans")
	}
	return commitID, nil
}

// diffStaged resolves each staged identity against the lineage and keeps only
// the entries whose content actually changes.
func diffStaged(ctx context.Context, segments []lineageSegment, staged []*models.StagedChange) ([]models.CommitChange, apperrors.Error) {
	var changes []models.CommitChange
	for _, s := range staged {
		ref := s.Ref()
		entry, aerr := resolveObjectEntry(ctx, segments, ref)
		if aerr != nil {
			return nil, aerr
		}
		var beforeDef []byte
		var beforeHash types.Hash
		var objectID uuid.UUID
		if entry != nil && !entry.IsDrop() {
			beforeDef = entry.AfterDefinition
			beforeHash = entry.AfterHash
			objectID = entry.ObjectID
		}

		if s.IsDrop {
			if beforeDef == nil {
				continue
			}
			changes = append(changes, models.CommitChange{
				Ref:              ref,
				ObjectID:         objectID,
				ChangeType:       types.ChangeTypeDrop,
				BeforeDefinition: beforeDef,
				BeforeHash:       beforeHash,
			})
			continue
		}

		afterHash := schemadef.HashOf(s.Definition)
		if afterHash == beforeHash {
			continue
		}
		changeType := types.ChangeTypeAlter
		if beforeDef == nil {
			changeType = types.ChangeTypeCreate
		}
		changes = append(changes, models.CommitChange{
			Ref:              ref,
			ObjectID:         objectID,
			ChangeType:       changeType,
			BeforeDefinition: beforeDef,
			BeforeHash:       beforeHash,
			AfterDefinition:  s.Definition,
			AfterHash:        afterHash,
			Edges:            edgesFor(ref, s.Definition),
		})
	}
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Ref.String() < changes[j].Ref.String()
	})
	return changes, nil
}

// edgesFor derives the dependency edges a definition declares.
func edgesFor(source types.ObjectRef, definition []byte) []models.DependencyEdge {
	refs := schemadef.ExtractReferences(definition)
	edges := make([]models.DependencyEdge, 0, len(refs))
	for _, r := range refs {
		edges = append(edges, models.DependencyEdge{
			Source:         source,
			Target:         r.Target,
			DependencyType: r.Dependency,
		})
	}
	return edges
}

// checkReferences verifies every declared edge target exists, either live on
// the branch or created within the same commit. Dangling references fail
// closed. Drops are not checked against dependents committed earlier: a
// branch may record a dangling intermediate state, and the dependent guard
// for destructive operations lives in rollback planning. DependentsOf gives
// callers a pre-drop check.
func checkReferences(ctx context.Context, segments []lineageSegment, changes []models.CommitChange) apperrors.Error {
	inCommit := make(map[string]bool, len(changes))
	for _, c := range changes {
		inCommit[c.Ref.String()] = !c.IsDrop()
	}
	for _, c := range changes {
		for _, edge := range c.Edges {
			key := edge.Target.String()
			if live, touched := inCommit[key]; touched {
				if !live {
					return ErrMissingReference.Msg(c.Ref.String() + " references " + key + " which is dropped in the same commit")
				}
				continue
			}
			def, _, aerr := resolveObjectDefinition(ctx, segments, edge.Target)
			if aerr != nil {
				return aerr
			}
			if def == nil {
				return ErrMissingReference.Msg(c.Ref.String() + " references missing object " + key)
			}
		}
	}
	return nil
}

// computeCommitID derives the commit id from the commit's content: a SHA-512
// over the canonicalized tuple of branch, parents, sequence, message, author
// and the per-object after-hashes. Identical content at an identical position
// always yields the same id.
func computeCommitID(branchID uuid.UUID, parents []string, seq int64, message, author string, changes []models.CommitChange) (string, apperrors.Error) {
	objects := make(map[string]string, len(changes))
	for _, c := range changes {
		objects[c.Ref.String()] = string(c.AfterHash)
	}
	payload, err := json.Marshal(map[string]any{
		"branch":  branchID.String(),
		"parents": parents,
		"seq":     seq,
		"message": message,
		"author":  author,
		"objects": objects,
	})
	if err != nil {
		return "", ErrIntegrity.Msg("failed to serialize commit payload").Err(err)
	}
	normalized, err := schemadef.NormalizeJSON(payload)
	if err != nil {
		return "", ErrIntegrity.Msg("failed to canonicalize commit payload").Err(err)
	}
	return schemadef.HexEncodedSHA512(normalized), nil
}

// GetCommit returns a commit by id.
func GetCommit(ctx context.Context, commitID string) (*models.Commit, apperrors.Error) {
	if commitID == "" {
		return nil, ErrInvalidArgument.Msg("commit id cannot be NULL")
	}
	commit, derr := db.DB(ctx).GetCommit(ctx, commitID)
	if derr != nil {
		if errors.Is(derr, dberror.ErrNotFound) {
			return nil, ErrNotFound.Msg("commit not found: " + commitID)
		}
		return nil, ErrIntegrity.Err(derr)
	}
	return commit, nil
}

// ListCommitChanges returns the history entries one commit captured, in the
// order they were written.
func ListCommitChanges(ctx context.Context, commitID string) ([]*models.ObjectHistoryEntry, apperrors.Error) {
	if _, aerr := GetCommit(ctx, commitID); aerr != nil {
		return nil, aerr
	}
	entries, derr := db.DB(ctx).ListEntriesForCommit(ctx, commitID)
	if derr != nil {
		return nil, ErrIntegrity.Err(derr)
	}
	return entries, nil
}

// ListCommits returns a branch's commits, newest first.
func ListCommits(ctx context.Context, branchName string, limit int) ([]*models.Commit, apperrors.Error) {
	branch, aerr := GetBranch(ctx, branchName)
	if aerr != nil {
		return nil, aerr
	}
	commits, derr := db.DB(ctx).ListCommits(ctx, branch.BranchID, limit)
	if derr != nil {
		return nil, ErrIntegrity.Err(derr)
	}
	return commits, nil
}
