package versionmanager

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/schemaledger/schemaledger/internal/common/apperrors"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/config"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/dberror"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/models"
	"github.com/schemaledger/schemaledger/pkg/schemadef"
	"github.com/schemaledger/schemaledger/pkg/types"
)

// SaveObject validates a definition and stages it on the branch's working
// set. Staging the same identity twice replaces the earlier staged state;
// nothing is versioned until CommitChanges.
func SaveObject(ctx context.Context, branchName string, definitionJSON []byte) (types.ObjectRef, apperrors.Error) {
	if definitionJSON == nil {
		return types.ObjectRef{}, ErrInvalidArgument.Msg("definition cannot be NULL")
	}
	if max := config.Config().MaxStagedObjectSizeBytes; max > 0 && len(definitionJSON) > max {
		return types.ObjectRef{}, ErrInvalidObject.Msg(fmt.Sprintf("definition exceeds maximum size of %d bytes", max))
	}
	if err := schemadef.ValidateDefinition(definitionJSON); err != nil {
		return types.ObjectRef{}, ErrInvalidObject.Msg("definition failed schema validation").Err(err)
	}
	def, err := schemadef.Parse(definitionJSON)
	if err != nil {
		return types.ObjectRef{}, ErrInvalidObject.Err(err)
	}

	branch, aerr := GetBranch(ctx, branchName)
	if aerr != nil {
		return types.ObjectRef{}, aerr
	}

	ref := def.Ref()
	staged := &models.StagedChange{
		BranchID:   branch.BranchID,
		ObjectType: ref.Type,
		Namespace:  ref.Namespace,
		Name:       ref.Name,
		Definition: definitionJSON,
		IsDrop:     false,
	}
	if derr := db.DB(ctx).UpsertStagedChange(ctx, staged); derr != nil {
		return types.ObjectRef{}, ErrIntegrity.Err(derr)
	}
	log.Ctx(ctx).Debug().Str("branch", branchName).Str("object", ref.String()).Msg("object staged")
	return ref, nil
}

// RemoveObject stages a drop of an identity on the branch. The object must be
// live on the branch-resolved state.
func RemoveObject(ctx context.Context, branchName string, ref types.ObjectRef) apperrors.Error {
	if !ref.IsValid() {
		return ErrInvalidArgument.Msg("invalid object reference: " + ref.String())
	}
	branch, aerr := GetBranch(ctx, branchName)
	if aerr != nil {
		return aerr
	}

	segments, aerr := branchLineage(ctx, branch, branch.CommitSeq)
	if aerr != nil {
		return aerr
	}
	def, _, aerr := resolveObjectDefinition(ctx, segments, ref)
	if aerr != nil {
		return aerr
	}
	if def == nil {
		// Not yet committed anywhere; a pending staged create can still be
		// withdrawn.
		if derr := db.DB(ctx).DeleteStagedChange(ctx, branch.BranchID, ref); derr != nil {
			if errors.Is(derr, dberror.ErrNotFound) {
				return ErrNotFound.Msg("object not found on branch: " + ref.String())
			}
			return ErrIntegrity.Err(derr)
		}
		return nil
	}

	staged := &models.StagedChange{
		BranchID:   branch.BranchID,
		ObjectType: ref.Type,
		Namespace:  ref.Namespace,
		Name:       ref.Name,
		Definition: nil,
		IsDrop:     true,
	}
	if derr := db.DB(ctx).UpsertStagedChange(ctx, staged); derr != nil {
		return ErrIntegrity.Err(derr)
	}
	log.Ctx(ctx).Debug().Str("branch", branchName).Str("object", ref.String()).Msg("drop staged")
	return nil
}

// ListStagedChanges returns the branch's pending working set.
func ListStagedChanges(ctx context.Context, branchName string) ([]*models.StagedChange, apperrors.Error) {
	branch, aerr := GetBranch(ctx, branchName)
	if aerr != nil {
		return nil, aerr
	}
	staged, derr := db.DB(ctx).ListStagedChanges(ctx, branch.BranchID)
	if derr != nil {
		return nil, ErrIntegrity.Err(derr)
	}
	return staged, nil
}

// DiscardStagedChanges drops the branch's entire working set without
// committing anything.
func DiscardStagedChanges(ctx context.Context, branchName string) apperrors.Error {
	branch, aerr := GetBranch(ctx, branchName)
	if aerr != nil {
		return aerr
	}
	if derr := db.DB(ctx).ClearStagedChanges(ctx, branch.BranchID); derr != nil {
		return ErrIntegrity.Err(derr)
	}
	return nil
}
