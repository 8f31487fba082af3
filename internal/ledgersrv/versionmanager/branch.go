package versionmanager

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/schemaledger/schemaledger/internal/common/apperrors"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/dberror"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/models"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/ledgercommon"
	"github.com/schemaledger/schemaledger/pkg/types"
)

// CreateBranch forks a new branch off the named parent (or creates a root
// branch when ParentBranch is empty). The fork point is the parent's head at
// creation time; no object data is copied.
func CreateBranch(ctx context.Context, req *CreateBranchRequest) (*models.Branch, apperrors.Error) {
	if req == nil {
		return nil, ErrInvalidArgument.Msg("request cannot be NULL")
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	branch := &models.Branch{
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   ledgercommon.GetAuthor(ctx),
		Status:      types.BranchStatusActive,
	}

	if req.ParentBranch != "" {
		parent, err := db.DB(ctx).GetBranchByName(ctx, req.ParentBranch)
		if err != nil {
			if errors.Is(err, dberror.ErrNotFound) {
				return nil, ErrNotFound.Msg("parent branch not found: " + req.ParentBranch)
			}
			return nil, ErrIntegrity.Err(err)
		}
		branch.ParentBranchID = uuid.NullUUID{UUID: parent.BranchID, Valid: true}
		branch.ForkCommitID = parent.HeadCommitID
	}

	if err := db.DB(ctx).CreateBranch(ctx, branch); err != nil {
		if errors.Is(err, dberror.ErrAlreadyExists) {
			return nil, ErrDuplicateName.Msg("an active branch named " + req.Name + " already exists")
		}
		if errors.Is(err, dberror.ErrInvalidInput) {
			return nil, ErrInvalidName.Msg("invalid branch name: " + req.Name)
		}
		return nil, ErrIntegrity.Err(err)
	}
	log.Ctx(ctx).Info().Str("name", branch.Name).Str("branch_id", branch.BranchID.String()).Msg("branch created")
	return branch, nil
}

// GetBranch resolves a branch by name.
func GetBranch(ctx context.Context, name string) (*models.Branch, apperrors.Error) {
	if name == "" {
		return nil, ErrInvalidArgument.Msg("branch name cannot be NULL")
	}
	branch, err := db.DB(ctx).GetBranchByName(ctx, name)
	if err != nil {
		if errors.Is(err, dberror.ErrNotFound) {
			return nil, ErrNotFound.Msg("branch not found: " + name)
		}
		return nil, ErrIntegrity.Err(err)
	}
	return branch, nil
}

// ListBranches lists branches filtered by status (empty for all).
func ListBranches(ctx context.Context, status types.BranchStatus) ([]*models.Branch, apperrors.Error) {
	if status != "" && !status.IsValid() {
		return nil, ErrInvalidArgument.Msg("invalid branch status filter: " + string(status))
	}
	branches, err := db.DB(ctx).ListBranches(ctx, status, uuid.Nil)
	if err != nil {
		return nil, ErrIntegrity.Err(err)
	}
	return branches, nil
}

// UpdateBranchMetadata updates a branch's description and info payload.
func UpdateBranchMetadata(ctx context.Context, name string, description string, info []byte) (*models.Branch, apperrors.Error) {
	branch, err := GetBranch(ctx, name)
	if err != nil {
		return nil, err
	}
	branch.Description = description
	if info != nil {
		if serr := branch.Info.Set(info); serr != nil {
			return nil, ErrInvalidArgument.Msg("invalid info payload").Err(serr)
		}
	}
	if derr := db.DB(ctx).UpdateBranch(ctx, branch); derr != nil {
		return nil, ErrIntegrity.Err(derr)
	}
	return branch, nil
}

// DeleteBranch soft-deletes a branch. Without force, the branch must have no
// open merges and no active child branches; with force, open merges are
// aborted and active children are soft-deleted recursively so nothing is left
// orphaned. History and commits survive deletion.
func DeleteBranch(ctx context.Context, name string, force bool) apperrors.Error {
	branch, err := GetBranch(ctx, name)
	if err != nil {
		return err
	}
	return deleteBranchByID(ctx, branch, force)
}

func deleteBranchByID(ctx context.Context, branch *models.Branch, force bool) apperrors.Error {
	openMerges, err := db.DB(ctx).ListOpenMergesForBranch(ctx, branch.BranchID)
	if err != nil {
		return ErrIntegrity.Err(err)
	}
	children, err := db.DB(ctx).ListBranches(ctx, types.BranchStatusActive, branch.BranchID)
	if err != nil {
		return ErrIntegrity.Err(err)
	}

	if !force {
		if len(openMerges) > 0 {
			return ErrHasDependents.Msg("branch " + branch.Name + " has open merge operations")
		}
		if len(children) > 0 {
			return ErrHasDependents.Msg("branch " + branch.Name + " has active child branches")
		}
	} else {
		for _, op := range openMerges {
			op.Status = types.MergeStatusAborted
			if uerr := db.DB(ctx).UpdateMergeOperation(ctx, op); uerr != nil {
				return ErrIntegrity.Msg("failed to abort merge " + op.MergeID.String()).Err(uerr)
			}
		}
		for _, child := range children {
			if derr := deleteBranchByID(ctx, child, true); derr != nil {
				return derr
			}
		}
	}

	if uerr := db.DB(ctx).UpdateBranchStatus(ctx, branch.BranchID, types.BranchStatusDeleted); uerr != nil {
		return ErrIntegrity.Err(uerr)
	}
	log.Ctx(ctx).Info().Str("name", branch.Name).Bool("force", force).Msg("branch deleted")
	return nil
}
