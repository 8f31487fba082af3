package versionmanager

import (
	"context"
	"errors"
	"sort"

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

// Plan step actions. Drops undo creations; recreates undo drops; restores
// undo alterations.
const (
	StepDrop     = "drop"
	StepRecreate = "recreate"
	StepRestore  = "restore"
)

// PlanStep is one ordered operation of a recovery plan.
type PlanStep struct {
	Ref        types.ObjectRef `json:"ref"`
	Action     string          `json:"action"`
	Definition []byte          `json:"definition,omitempty"`
	Cascaded   bool            `json:"cascaded,omitempty"`
}

// BlockingReason explains why a SOFT plan cannot execute as-is.
type BlockingReason struct {
	Ref       types.ObjectRef `json:"ref"`
	Dependent types.ObjectRef `json:"dependent"`
	Reason    string          `json:"reason"`
}

// GenerateRecoveryPlan computes the ordered steps that return a branch to the
// state it had at targetCommitID. Generation is a pure read: nothing changes
// until ExecuteRecoveryPlan. The plan is pinned to the branch head it was
// computed against.
func GenerateRecoveryPlan(ctx context.Context, branchName, targetCommitID string, mode types.RollbackMode) (*models.RollbackPlan, apperrors.Error) {
	if !mode.IsValid() {
		return nil, ErrInvalidMode.Msg("unrecognized rollback mode: " + string(mode))
	}
	branch, aerr := GetBranch(ctx, branchName)
	if aerr != nil {
		return nil, aerr
	}
	targetCommit, aerr := GetCommit(ctx, targetCommitID)
	if aerr != nil {
		return nil, aerr
	}
	if targetCommit.BranchID != branch.BranchID {
		return nil, ErrNotFound.Msg("commit " + targetCommitID + " is not on branch " + branchName)
	}
	if targetCommit.Seq >= branch.CommitSeq {
		return nil, ErrInvalidArgument.Msg("target commit is already the branch head")
	}

	entries, derr := db.DB(ctx).ListEntriesInRange(ctx, branch.BranchID, targetCommit.Seq, branch.CommitSeq)
	if derr != nil {
		return nil, ErrIntegrity.Err(derr)
	}

	inverses := inverseChanges(entries)
	steps, blocking, aerr := orderPlan(ctx, branch.BranchID, inverses, mode)
	if aerr != nil {
		return nil, aerr
	}

	plan := &models.RollbackPlan{
		PlanID:         ledgercommon.NewPlanId(),
		BranchID:       branch.BranchID,
		TargetCommitID: targetCommit.CommitID,
		HeadCommitID:   branch.HeadCommitID,
		Mode:           mode,
		Status:         types.PlanStatusGenerated,
	}
	stepsJSON, err := jsonit.Marshal(steps)
	if err != nil {
		return nil, ErrIntegrity.Msg("failed to serialize plan steps").Err(err)
	}
	if err := plan.Steps.Set(stepsJSON); err != nil {
		return nil, ErrIntegrity.Err(err)
	}
	if len(blocking) > 0 {
		blockingJSON, err := jsonit.Marshal(blocking)
		if err != nil {
			return nil, ErrIntegrity.Msg("failed to serialize blocking reasons").Err(err)
		}
		if err := plan.BlockingReasons.Set(blockingJSON); err != nil {
			return nil, ErrIntegrity.Err(err)
		}
	} else {
		if err := plan.BlockingReasons.Set(nil); err != nil {
			return nil, ErrIntegrity.Err(err)
		}
	}

	if derr := db.DB(ctx).CreateRollbackPlan(ctx, plan); derr != nil {
		return nil, ErrIntegrity.Err(derr)
	}
	log.Ctx(ctx).Info().
		Str("plan_id", plan.PlanID).
		Str("branch", branchName).
		Str("target_commit", targetCommitID).
		Int("steps", len(steps)).
		Int("blocking", len(blocking)).
		Msg("recovery plan generated")
	return plan, nil
}

// inverseChanges folds the head->target entry range into one inverse step per
// identity: whatever the segment did to the object, the step undoes.
func inverseChanges(entries []*models.ObjectHistoryEntry) []PlanStep {
	type netChange struct {
		ref       types.ObjectRef
		beforeDef []byte
		before    types.Hash
		after     types.Hash
	}
	nets := make(map[string]*netChange)
	for _, e := range entries {
		key := e.Ref().String()
		if n, seen := nets[key]; seen {
			n.after = e.AfterHash
			continue
		}
		nets[key] = &netChange{
			ref:       e.Ref(),
			beforeDef: e.BeforeDefinition,
			before:    e.BeforeHash,
			after:     e.AfterHash,
		}
	}

	keys := make([]string, 0, len(nets))
	for key := range nets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var steps []PlanStep
	for _, key := range keys {
		n := nets[key]
		switch {
		case n.before == n.after:
			// Net no-op across the range.
		case n.before.IsNil():
			steps = append(steps, PlanStep{Ref: n.ref, Action: StepDrop})
		case n.after.IsNil():
			steps = append(steps, PlanStep{Ref: n.ref, Action: StepRecreate, Definition: n.beforeDef})
		default:
			steps = append(steps, PlanStep{Ref: n.ref, Action: StepRestore, Definition: n.beforeDef})
		}
	}
	return steps
}

// orderPlan sequences the steps against the branch's dependency edges: drops
// run first with dependents ahead of their dependencies, then recreates and
// restores with dependencies ahead of their dependents. SOFT mode records
// blocking reasons for external dependents of dropped objects; HARD mode
// cascades the drop and fails closed when the cascade itself has external
// dependents.
func orderPlan(ctx context.Context, branchID uuid.UUID, steps []PlanStep, mode types.RollbackMode) ([]PlanStep, []BlockingReason, apperrors.Error) {
	edges, derr := db.DB(ctx).ListEdgesForBranch(ctx, branchID)
	if derr != nil {
		return nil, nil, ErrIntegrity.Err(derr)
	}

	byRef := make(map[string]PlanStep, len(steps))
	dropSet := make(map[string]bool)
	for _, s := range steps {
		byRef[s.Ref.String()] = s
		if s.Action == StepDrop {
			dropSet[s.Ref.String()] = true
		}
	}

	var blocking []BlockingReason
	if mode == types.RollbackModeSoft {
		for _, e := range edges {
			if dropSet[e.Target.String()] && !dropSet[e.Source.String()] {
				if _, planned := byRef[e.Source.String()]; planned {
					// The dependent is itself rewritten by the plan; ordering
					// handles it.
					continue
				}
				blocking = append(blocking, BlockingReason{
					Ref:       e.Target,
					Dependent: e.Source,
					Reason:    "object is referenced by " + e.Source.String() + " which the plan does not touch",
				})
			}
		}
	} else {
		// HARD: pull external dependents of dropped objects into the drop
		// set, one ring out. A second ring fails closed.
		cascaded := make(map[string]types.ObjectRef)
		for _, e := range edges {
			if dropSet[e.Target.String()] && !dropSet[e.Source.String()] {
				if _, planned := byRef[e.Source.String()]; planned {
					continue
				}
				cascaded[e.Source.String()] = e.Source
			}
		}
		for key, ref := range cascaded {
			for _, e := range edges {
				if e.Target.String() == key && !dropSet[e.Source.String()] {
					if _, alsoCascaded := cascaded[e.Source.String()]; alsoCascaded {
						continue
					}
					if _, planned := byRef[e.Source.String()]; planned {
						continue
					}
					return nil, nil, ErrUnsafeCascade.Msg("cascaded drop of " + ref.String() + " would strand dependent " + e.Source.String())
				}
			}
			step := PlanStep{Ref: ref, Action: StepDrop, Cascaded: true}
			byRef[key] = step
			dropSet[key] = true
			steps = append(steps, step)
		}
	}

	affected := make([]types.ObjectRef, 0, len(byRef))
	for _, s := range byRef {
		affected = append(affected, s.Ref)
	}
	// Restored definitions may declare edges the head state no longer has.
	for _, s := range steps {
		if s.Definition != nil {
			for _, r := range schemadef.ExtractReferences(s.Definition) {
				edges = append(edges, &models.DependencyEdge{Source: s.Ref, Target: r.Target, DependencyType: r.Dependency})
			}
		}
	}

	graph := buildDepGraph(edges, affected)
	order, aerr := graph.topoOrder()
	if aerr != nil {
		return nil, nil, aerr
	}

	// Drops walk the order backwards (dependents fall first); creates and
	// restores walk it forwards (dependencies rise first).
	var ordered []PlanStep
	for i := len(order) - 1; i >= 0; i-- {
		if s := byRef[order[i]]; s.Action == StepDrop {
			ordered = append(ordered, s)
		}
	}
	for _, key := range order {
		if s := byRef[key]; s.Action != StepDrop {
			ordered = append(ordered, s)
		}
	}
	return ordered, blocking, nil
}

// GetRecoveryPlan retrieves a persisted plan.
func GetRecoveryPlan(ctx context.Context, planID string) (*models.RollbackPlan, apperrors.Error) {
	if planID == "" {
		return nil, ErrInvalidArgument.Msg("plan id cannot be NULL")
	}
	plan, derr := db.DB(ctx).GetRollbackPlan(ctx, planID)
	if derr != nil {
		if errors.Is(derr, dberror.ErrNotFound) {
			return nil, ErrNotFound.Msg("recovery plan not found: " + planID)
		}
		return nil, ErrIntegrity.Err(derr)
	}
	return plan, nil
}

// ExecuteRecoveryPlan applies a generated plan as one atomic REVERT commit.
// The branch head must still match the head the plan was pinned to. A failed
// execution leaves the plan GENERATED and the branch untouched.
func ExecuteRecoveryPlan(ctx context.Context, planID string) (string, apperrors.Error) {
	plan, aerr := GetRecoveryPlan(ctx, planID)
	if aerr != nil {
		return "", aerr
	}
	switch plan.Status {
	case types.PlanStatusGenerated:
	case types.PlanStatusInvalid:
		return "", ErrStalePlan.Msg("plan " + planID + " was invalidated by a later commit")
	default:
		return "", ErrPlanNotExecutable.Msg("plan " + planID + " is " + string(plan.Status))
	}
	if plan.BlockingReasons.Status == pgtypePresent && len(plan.BlockingReasons.Bytes) > 0 {
		return "", ErrHasDependents.Msg("plan " + planID + " has blocking reasons; resolve them or regenerate in HARD mode")
	}

	branch, derr := db.DB(ctx).GetBranch(ctx, plan.BranchID)
	if derr != nil {
		return "", ErrIntegrity.Err(derr)
	}
	if branch.HeadCommitID != plan.HeadCommitID {
		return "", ErrStalePlan.Msg("branch " + branch.Name + " advanced since plan " + planID + " was generated")
	}

	var steps []PlanStep
	if plan.Steps.Status == pgtypePresent {
		if err := jsonit.Unmarshal(plan.Steps.Bytes, &steps); err != nil {
			return "", ErrIntegrity.Msg("failed to deserialize plan steps").Err(err)
		}
	}
	if len(steps) == 0 {
		return "", ErrPlanNotExecutable.Msg("plan " + planID + " has no steps")
	}

	segments, aerr := branchLineage(ctx, branch, branch.CommitSeq)
	if aerr != nil {
		return "", aerr
	}
	changes, aerr := buildRevertChanges(ctx, segments, steps)
	if aerr != nil {
		return "", aerr
	}
	if len(changes) == 0 {
		return "", ErrEmptyCommit.Msg("plan " + planID + " produces no effective change")
	}

	var parents []string
	if branch.HeadCommitID != "" {
		parents = []string{branch.HeadCommitID}
	}
	author := ledgercommon.GetAuthor(ctx)
	commitID, aerr := computeCommitID(branch.BranchID, parents, branch.CommitSeq+1, "revert to "+plan.TargetCommitID, author, changes)
	if aerr != nil {
		return "", aerr
	}

	apply := &models.CommitApply{
		Commit: models.Commit{
			CommitID:        commitID,
			BranchID:        branch.BranchID,
			Author:          author,
			Message:         "revert to " + plan.TargetCommitID,
			ParentCommitIDs: parents,
		},
		ExpectedSeq:    branch.CommitSeq,
		Changes:        changes,
		WriteSnapshots: config.Config().SnapshotOnCommit,
	}
	if derr := db.DB(ctx).ApplyCommit(ctx, apply); derr != nil {
		if errors.Is(derr, dberror.ErrStaleHead) {
			return "", ErrStalePlan.Msg("branch advanced during plan execution").Err(derr)
		}
		return "", ErrIntegrity.Msg("plan execution failed; plan remains executable").Err(derr)
	}

	if derr := db.DB(ctx).UpdateRollbackPlanStatus(ctx, planID, types.PlanStatusExecuted); derr != nil {
		log.Ctx(ctx).Error().Err(derr).Str("plan_id", planID).Msg("revert committed but plan status update failed")
	}
	if derr := db.DB(ctx).InvalidatePlansForBranch(ctx, branch.BranchID, commitID); derr != nil {
		log.Ctx(ctx).Error().Err(derr).Msg("failed to invalidate stale rollback plans")
	}
	log.Ctx(ctx).Info().Str("plan_id", planID).Str("commit_id", commitID).Msg("recovery plan executed")
	return commitID, nil
}

// buildRevertChanges materializes plan steps into commit changes against the
// branch's current state.
func buildRevertChanges(ctx context.Context, segments []lineageSegment, steps []PlanStep) ([]models.CommitChange, apperrors.Error) {
	var changes []models.CommitChange
	for _, s := range steps {
		entry, aerr := resolveObjectEntry(ctx, segments, s.Ref)
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

		if s.Action == StepDrop {
			if beforeDef == nil {
				continue
			}
			changes = append(changes, models.CommitChange{
				Ref:              s.Ref,
				ObjectID:         objectID,
				ChangeType:       types.ChangeTypeRevert,
				BeforeDefinition: beforeDef,
				BeforeHash:       beforeHash,
			})
			continue
		}

		afterHash := schemadef.HashOf(s.Definition)
		if afterHash == beforeHash {
			continue
		}
		changes = append(changes, models.CommitChange{
			Ref:              s.Ref,
			ObjectID:         objectID,
			ChangeType:       types.ChangeTypeRevert,
			BeforeDefinition: beforeDef,
			BeforeHash:       beforeHash,
			AfterDefinition:  s.Definition,
			AfterHash:        afterHash,
			Edges:            edgesFor(s.Ref, s.Definition),
		})
	}
	return changes, nil
}
