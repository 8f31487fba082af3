package versionmanager

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	jsoniter "github.com/json-iterator/go"
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

var jsonit = jsoniter.ConfigCompatibleWithStandardLibrary

const pgtypePresent = pgtype.Present

// MergeBranches opens a merge of source into target: finds the nearest common
// ancestor, computes both sides' net changes since it, auto-resolves
// additive-compatible conflicts and records everything as a merge operation.
// Nothing is written to the target until ApplyMerge.
func MergeBranches(ctx context.Context, sourceName, targetName, message string) (*models.MergeOperation, apperrors.Error) {
	if sourceName == "" || targetName == "" {
		return nil, ErrInvalidArgument.Msg("source and target branches cannot be NULL")
	}
	if sourceName == targetName {
		return nil, ErrInvalidArgument.Msg("cannot merge a branch into itself")
	}

	source, aerr := GetBranch(ctx, sourceName)
	if aerr != nil {
		return nil, aerr
	}
	target, aerr := GetBranch(ctx, targetName)
	if aerr != nil {
		return nil, aerr
	}

	sourceSegs, aerr := branchLineage(ctx, source, source.CommitSeq)
	if aerr != nil {
		return nil, aerr
	}
	targetSegs, aerr := branchLineage(ctx, target, target.CommitSeq)
	if aerr != nil {
		return nil, aerr
	}
	base, ok := commonBase(sourceSegs, targetSegs)
	if !ok {
		return nil, ErrStateConflict.Msg("branches " + sourceName + " and " + targetName + " share no common ancestor")
	}

	baseCommitID := ""
	if base.maxSeq > 0 {
		baseCommit, derr := db.DB(ctx).GetCommitBySeq(ctx, base.branchID, base.maxSeq)
		if derr != nil {
			return nil, ErrIntegrity.Msg("merge base commit unresolvable").Err(derr)
		}
		baseCommitID = baseCommit.CommitID
	}
	baseSegs := lineageBelow(targetSegs, base)

	sourceEntries, aerr := entriesSinceBase(ctx, sourceSegs, base)
	if aerr != nil {
		return nil, aerr
	}
	targetEntries, aerr := entriesSinceBase(ctx, targetSegs, base)
	if aerr != nil {
		return nil, aerr
	}
	sourceChanges := reduceEntries(sourceEntries)
	targetChanges := reduceEntries(targetEntries)

	changes, conflicts, aerr := computeMergePlan(ctx, baseSegs, sourceChanges, targetChanges)
	if aerr != nil {
		return nil, aerr
	}
	if len(changes) == 0 && len(conflicts) == 0 {
		return nil, ErrEmptyCommit.Msg("source branch " + sourceName + " has no changes to merge")
	}

	status := types.MergeStatusResolved
	for i := range conflicts {
		if !conflicts[i].Resolved {
			status = types.MergeStatusConflicted
			break
		}
	}

	op := &models.MergeOperation{
		SourceBranchID:     source.BranchID,
		TargetBranchID:     target.BranchID,
		BaseCommitID:       baseCommitID,
		SourceHeadCommitID: source.HeadCommitID,
		TargetHeadCommitID: target.HeadCommitID,
		Message:            message,
		Status:             status,
	}
	if aerr := setMergePayload(op, changes, conflicts); aerr != nil {
		return nil, aerr
	}
	if derr := db.DB(ctx).CreateMergeOperation(ctx, op); derr != nil {
		return nil, ErrIntegrity.Err(derr)
	}
	log.Ctx(ctx).Info().
		Str("merge_id", op.MergeID.String()).
		Str("source", sourceName).
		Str("target", targetName).
		Int("changes", len(changes)).
		Int("conflicts", len(conflicts)).
		Str("status", string(status)).
		Msg("merge opened")
	return op, nil
}

// lineageBelow truncates a lineage at the base point so reads through it see
// exactly the common-ancestor state.
func lineageBelow(segments []lineageSegment, base lineageSegment) []lineageSegment {
	for i, seg := range segments {
		if seg.branchID == base.branchID {
			below := make([]lineageSegment, len(segments)-i)
			copy(below, segments[i:])
			below[0].maxSeq = base.maxSeq
			return below
		}
	}
	return nil
}

// computeMergePlan walks the union of both sides' changed identities.
// One-sided changes come over as-is; convergent identical edits vanish;
// genuine divergence becomes a classified conflict.
func computeMergePlan(ctx context.Context, baseSegs []lineageSegment, sourceChanges, targetChanges map[string]*sideChange) ([]MergeChange, []Conflict, apperrors.Error) {
	keys := make([]string, 0, len(sourceChanges))
	for key := range sourceChanges {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var changes []MergeChange
	var conflicts []Conflict
	for _, key := range keys {
		sc := sourceChanges[key]
		tc, targetTouched := targetChanges[key]
		if !targetTouched {
			changes = append(changes, MergeChange{
				Ref:        sc.Ref,
				ChangeType: types.ChangeTypeMerge,
				Definition: sc.AfterDef,
				IsDrop:     sc.AfterHash.IsNil(),
			})
			continue
		}
		if sc.AfterHash == tc.AfterHash {
			// Convergent edit; the target already holds the result.
			continue
		}

		baseDef, baseHash, aerr := resolveObjectDefinition(ctx, baseSegs, sc.Ref)
		if aerr != nil {
			return nil, nil, aerr
		}
		classification, autoMerged := classifyConflict(baseDef, sc.AfterDef, tc.AfterDef)
		conflict := Conflict{
			Ref:            sc.Ref,
			BaseHash:       baseHash,
			SourceHash:     sc.AfterHash,
			TargetHash:     tc.AfterHash,
			Classification: classification,
			Diff:           conflictDiff(sc.Ref, sc.AfterDef, tc.AfterDef),
		}
		if classification == types.ConflictAdditiveCompatible {
			conflict.Resolved = true
			conflict.ResolvedDefinition = autoMerged
		}
		adviseConflict(ctx, &conflict)
		conflicts = append(conflicts, conflict)
	}
	return changes, conflicts, nil
}

// GetMergeOperation retrieves a merge by id.
func GetMergeOperation(ctx context.Context, mergeID uuid.UUID) (*models.MergeOperation, apperrors.Error) {
	op, derr := db.DB(ctx).GetMergeOperation(ctx, mergeID)
	if derr != nil {
		if errors.Is(derr, dberror.ErrNotFound) {
			return nil, ErrNotFound.Msg("merge operation not found: " + mergeID.String())
		}
		return nil, ErrIntegrity.Err(derr)
	}
	return op, nil
}

// ResolveConflict records the caller's chosen definition for one conflicted
// identity. A nil definition resolves the conflict as a drop. When the last
// conflict resolves, the merge moves to RESOLVED.
func ResolveConflict(ctx context.Context, mergeID uuid.UUID, ref types.ObjectRef, chosenDefinition []byte) apperrors.Error {
	op, aerr := GetMergeOperation(ctx, mergeID)
	if aerr != nil {
		return aerr
	}
	if op.Status == types.MergeStatusApplied || op.Status == types.MergeStatusAborted {
		return ErrMergeFinalized.Msg("merge " + mergeID.String() + " is " + string(op.Status))
	}

	if chosenDefinition != nil {
		if verr := schemadef.ValidateDefinition(chosenDefinition); verr != nil {
			return ErrInvalidObject.Msg("chosen definition failed schema validation").Err(verr)
		}
		def, perr := schemadef.Parse(chosenDefinition)
		if perr != nil {
			return ErrInvalidObject.Err(perr)
		}
		if def.Ref() != ref {
			return ErrInvalidArgument.Msg("chosen definition identifies " + def.Ref().String() + ", not " + ref.String())
		}
	}

	changes, conflicts, aerr := mergePayload(op)
	if aerr != nil {
		return aerr
	}

	found := false
	allResolved := true
	for i := range conflicts {
		if conflicts[i].Ref == ref {
			if conflicts[i].Resolved {
				return ErrAlreadyResolved.Msg("conflict on " + ref.String() + " is already resolved")
			}
			conflicts[i].Resolved = true
			conflicts[i].ResolvedDefinition = chosenDefinition
			found = true
		}
		if !conflicts[i].Resolved {
			allResolved = false
		}
	}
	if !found {
		return ErrNotFound.Msg("no conflict recorded for " + ref.String())
	}

	if allResolved {
		op.Status = types.MergeStatusResolved
	} else {
		op.Status = types.MergeStatusConflicted
	}
	if aerr := setMergePayload(op, changes, conflicts); aerr != nil {
		return aerr
	}
	if derr := db.DB(ctx).UpdateMergeOperation(ctx, op); derr != nil {
		if errors.Is(derr, dberror.ErrImmutableRow) {
			return ErrMergeFinalized.Err(derr)
		}
		return ErrIntegrity.Err(derr)
	}
	return nil
}

// AbortMerge abandons an open merge without touching either branch.
func AbortMerge(ctx context.Context, mergeID uuid.UUID) apperrors.Error {
	op, aerr := GetMergeOperation(ctx, mergeID)
	if aerr != nil {
		return aerr
	}
	if op.Status == types.MergeStatusApplied || op.Status == types.MergeStatusAborted {
		return ErrMergeFinalized.Msg("merge " + mergeID.String() + " is " + string(op.Status))
	}
	op.Status = types.MergeStatusAborted
	if derr := db.DB(ctx).UpdateMergeOperation(ctx, op); derr != nil {
		return ErrIntegrity.Err(derr)
	}
	return nil
}

// ApplyMerge writes the merge commit onto the target branch. The target head
// must not have moved since the merge opened; the commit carries both heads
// as parents and marks the source branch MERGED in the same transaction.
func ApplyMerge(ctx context.Context, mergeID uuid.UUID) (string, apperrors.Error) {
	op, aerr := GetMergeOperation(ctx, mergeID)
	if aerr != nil {
		return "", aerr
	}
	if op.Status == types.MergeStatusApplied || op.Status == types.MergeStatusAborted {
		return "", ErrMergeFinalized.Msg("merge " + mergeID.String() + " is " + string(op.Status))
	}

	changes, conflicts, aerr := mergePayload(op)
	if aerr != nil {
		return "", aerr
	}
	for i := range conflicts {
		if !conflicts[i].Resolved {
			return "", ErrUnresolvedConflicts.Msg("conflict on " + conflicts[i].Ref.String() + " is unresolved")
		}
	}

	target, derr := db.DB(ctx).GetBranch(ctx, op.TargetBranchID)
	if derr != nil {
		return "", ErrIntegrity.Err(derr)
	}
	if target.HeadCommitID != op.TargetHeadCommitID {
		return "", ErrStaleBase.Msg("target branch " + target.Name + " advanced since merge opened; re-open the merge")
	}
	targetSegs, aerr := branchLineage(ctx, target, target.CommitSeq)
	if aerr != nil {
		return "", aerr
	}

	commitChanges, aerr := buildMergeCommitChanges(ctx, targetSegs, changes, conflicts)
	if aerr != nil {
		return "", aerr
	}
	if len(commitChanges) == 0 {
		return "", ErrEmptyCommit.Msg("merge produces no effective change on target " + target.Name)
	}

	parents := []string{}
	if op.TargetHeadCommitID != "" {
		parents = append(parents, op.TargetHeadCommitID)
	}
	if op.SourceHeadCommitID != "" {
		parents = append(parents, op.SourceHeadCommitID)
	}
	author := ledgercommon.GetAuthor(ctx)
	commitID, aerr := computeCommitID(target.BranchID, parents, target.CommitSeq+1, op.Message, author, commitChanges)
	if aerr != nil {
		return "", aerr
	}

	apply := &models.CommitApply{
		Commit: models.Commit{
			CommitID:        commitID,
			BranchID:        target.BranchID,
			Author:          author,
			Message:         op.Message,
			ParentCommitIDs: parents,
		},
		ExpectedSeq:     target.CommitSeq,
		Changes:         commitChanges,
		WriteSnapshots:  config.Config().SnapshotOnCommit,
		SetSourceMerged: op.SourceBranchID,
	}
	if derr := db.DB(ctx).ApplyCommit(ctx, apply); derr != nil {
		if errors.Is(derr, dberror.ErrStaleHead) {
			return "", ErrStaleBase.Msg("target branch advanced during merge apply").Err(derr)
		}
		return "", ErrIntegrity.Msg("merge apply failed").Err(derr)
	}

	op.Status = types.MergeStatusApplied
	if derr := db.DB(ctx).UpdateMergeOperation(ctx, op); derr != nil {
		log.Ctx(ctx).Error().Err(derr).Str("merge_id", mergeID.String()).Msg("merge applied but status update failed")
	}
	if derr := db.DB(ctx).InvalidatePlansForBranch(ctx, target.BranchID, commitID); derr != nil {
		log.Ctx(ctx).Error().Err(derr).Msg("failed to invalidate stale rollback plans")
	}
	log.Ctx(ctx).Info().Str("merge_id", mergeID.String()).Str("commit_id", commitID).Msg("merge applied")
	return commitID, nil
}

// buildMergeCommitChanges turns the merge plan and resolved conflicts into
// storage-level commit changes against the target's current state.
func buildMergeCommitChanges(ctx context.Context, targetSegs []lineageSegment, changes []MergeChange, conflicts []Conflict) ([]models.CommitChange, apperrors.Error) {
	type pending struct {
		ref    types.ObjectRef
		def    []byte
		isDrop bool
	}
	var all []pending
	for _, c := range changes {
		all = append(all, pending{ref: c.Ref, def: c.Definition, isDrop: c.IsDrop})
	}
	for _, c := range conflicts {
		all = append(all, pending{ref: c.Ref, def: c.ResolvedDefinition, isDrop: c.ResolvedDefinition == nil})
	}

	var out []models.CommitChange
	for _, p := range all {
		entry, aerr := resolveObjectEntry(ctx, targetSegs, p.ref)
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

		if p.isDrop {
			if beforeDef == nil {
				continue
			}
			out = append(out, models.CommitChange{
				Ref:              p.ref,
				ObjectID:         objectID,
				ChangeType:       types.ChangeTypeMerge,
				BeforeDefinition: beforeDef,
				BeforeHash:       beforeHash,
			})
			continue
		}

		afterHash := schemadef.HashOf(p.def)
		if afterHash == beforeHash {
			continue
		}
		out = append(out, models.CommitChange{
			Ref:              p.ref,
			ObjectID:         objectID,
			ChangeType:       types.ChangeTypeMerge,
			BeforeDefinition: beforeDef,
			BeforeHash:       beforeHash,
			AfterDefinition:  p.def,
			AfterHash:        afterHash,
			Edges:            edgesFor(p.ref, p.def),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Ref.String() < out[j].Ref.String()
	})
	return out, nil
}

func setMergePayload(op *models.MergeOperation, changes []MergeChange, conflicts []Conflict) apperrors.Error {
	changesJSON, err := jsonit.Marshal(changes)
	if err != nil {
		return ErrIntegrity.Msg("failed to serialize merge changes").Err(err)
	}
	conflictsJSON, err := jsonit.Marshal(conflicts)
	if err != nil {
		return ErrIntegrity.Msg("failed to serialize merge conflicts").Err(err)
	}
	if err := op.Changes.Set(changesJSON); err != nil {
		return ErrIntegrity.Err(err)
	}
	if err := op.Conflicts.Set(conflictsJSON); err != nil {
		return ErrIntegrity.Err(err)
	}
	return nil
}

func mergePayload(op *models.MergeOperation) ([]MergeChange, []Conflict, apperrors.Error) {
	var changes []MergeChange
	var conflicts []Conflict
	if op.Changes.Status == pgtypePresent && len(op.Changes.Bytes) > 0 {
		if err := jsonit.Unmarshal(op.Changes.Bytes, &changes); err != nil {
			return nil, nil, ErrIntegrity.Msg("failed to deserialize merge changes").Err(err)
		}
	}
	if op.Conflicts.Status == pgtypePresent && len(op.Conflicts.Bytes) > 0 {
		if err := jsonit.Unmarshal(op.Conflicts.Bytes, &conflicts); err != nil {
			return nil, nil, ErrIntegrity.Msg("failed to deserialize merge conflicts").Err(err)
		}
	}
	return changes, conflicts, nil
}
