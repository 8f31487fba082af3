package versionmanager

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/schemaledger/schemaledger/internal/common/apperrors"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/dberror"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/models"
	"github.com/schemaledger/schemaledger/pkg/types"
)

// lineageSegment is one branch's visible slice of history: everything on
// branchID with seq <= maxSeq. A branch's full lineage is its own segment
// followed by its ancestors' segments capped at the respective fork points.
type lineageSegment struct {
	branchID uuid.UUID
	maxSeq   int64
}

// branchLineage walks the fork chain from the branch to the root. The branch
// itself is capped at headSeq (usually its current commit_seq); each ancestor
// is capped at the sequence of the fork commit that separates it from the
// chain below.
func branchLineage(ctx context.Context, branch *models.Branch, headSeq int64) ([]lineageSegment, apperrors.Error) {
	segments := []lineageSegment{{branchID: branch.BranchID, maxSeq: headSeq}}

	forkID := branch.ForkCommitID
	cur := branch
	for cur.ParentBranchID.Valid {
		parent, err := db.DB(ctx).GetBranch(ctx, cur.ParentBranchID.UUID)
		if err != nil {
			return nil, ErrIntegrity.Msg("lineage walk failed for branch " + cur.BranchID.String()).Err(err)
		}

		// The fork commit may live further up the chain when the parent had
		// no commits of its own at fork time; its segment is then empty.
		var maxSeq int64
		if forkID != "" {
			forkCommit, err := db.DB(ctx).GetCommit(ctx, forkID)
			if err != nil {
				return nil, ErrIntegrity.Msg("fork commit unresolvable: " + forkID).Err(err)
			}
			if forkCommit.BranchID == parent.BranchID {
				maxSeq = forkCommit.Seq
			}
		}
		segments = append(segments, lineageSegment{branchID: parent.BranchID, maxSeq: maxSeq})

		forkID = parent.ForkCommitID
		cur = parent
	}
	return segments, nil
}

// resolveObjectEntry finds the authoritative history entry for an identity by
// walking lineage segments nearest-first. Returns nil when no segment has ever
// touched the identity.
func resolveObjectEntry(ctx context.Context, segments []lineageSegment, ref types.ObjectRef) (*models.ObjectHistoryEntry, apperrors.Error) {
	for _, seg := range segments {
		if seg.maxSeq <= 0 {
			continue
		}
		entry, err := db.DB(ctx).GetLatestEntryForRefInSegment(ctx, seg.branchID, ref, seg.maxSeq)
		if err != nil {
			if errors.Is(err, dberror.ErrNotFound) {
				continue
			}
			return nil, ErrIntegrity.Msg("state resolution failed for " + ref.String()).Err(err)
		}
		return entry, nil
	}
	return nil, nil
}

// resolveObjectDefinition returns the live definition for an identity, or nil
// when the object does not exist (never created, or last touched by a drop).
func resolveObjectDefinition(ctx context.Context, segments []lineageSegment, ref types.ObjectRef) ([]byte, types.Hash, apperrors.Error) {
	entry, err := resolveObjectEntry(ctx, segments, ref)
	if err != nil {
		return nil, "", err
	}
	if entry == nil || entry.IsDrop() {
		return nil, "", nil
	}
	return entry.AfterDefinition, entry.AfterHash, nil
}

// commonBase locates the nearest common ancestor point of two lineages: the
// first branch both can see, capped at the lower of the two visibility limits.
// ok is false when the lineages share no branch.
func commonBase(source, target []lineageSegment) (base lineageSegment, ok bool) {
	targetCaps := make(map[uuid.UUID]int64, len(target))
	for _, seg := range target {
		targetCaps[seg.branchID] = seg.maxSeq
	}
	for _, seg := range source {
		if targetMax, found := targetCaps[seg.branchID]; found {
			maxSeq := seg.maxSeq
			if targetMax < maxSeq {
				maxSeq = targetMax
			}
			return lineageSegment{branchID: seg.branchID, maxSeq: maxSeq}, true
		}
	}
	return lineageSegment{}, false
}

// entriesSinceBase returns a side's history entries above the base point, in
// commit order: the base branch's segment clipped to seq > base.maxSeq, then
// every segment nearer than the base branch in full. Segments beyond the base
// branch are shared ancestry and carry nothing the base state lacks.
func entriesSinceBase(ctx context.Context, segments []lineageSegment, base lineageSegment) ([]*models.ObjectHistoryEntry, apperrors.Error) {
	baseIdx := -1
	for i, seg := range segments {
		if seg.branchID == base.branchID {
			baseIdx = i
			break
		}
	}
	if baseIdx < 0 {
		return nil, nil
	}

	var all []*models.ObjectHistoryEntry
	// Walk base-first so entries come out in causal order.
	for i := baseIdx; i >= 0; i-- {
		seg := segments[i]
		fromSeq := int64(0)
		if i == baseIdx {
			fromSeq = base.maxSeq
		}
		if seg.maxSeq <= fromSeq {
			continue
		}
		entries, err := db.DB(ctx).ListEntriesInRange(ctx, seg.branchID, fromSeq, seg.maxSeq)
		if err != nil {
			return nil, ErrIntegrity.Msg("history range scan failed").Err(err)
		}
		all = append(all, entries...)
	}
	return all, nil
}

// sideChange is the net effect of one side's edits to a single identity since
// the merge base.
type sideChange struct {
	Ref        types.ObjectRef
	ObjectID   uuid.UUID
	BeforeHash types.Hash
	AfterHash  types.Hash
	AfterDef   []byte
}

// reduceEntries folds a causally ordered entry list into per-identity net
// changes. Identities whose net effect is a no-op (hash unchanged) drop out.
func reduceEntries(entries []*models.ObjectHistoryEntry) map[string]*sideChange {
	changes := make(map[string]*sideChange)
	for _, e := range entries {
		key := e.Ref().String()
		if c, seen := changes[key]; seen {
			c.AfterHash = e.AfterHash
			c.AfterDef = e.AfterDefinition
			c.ObjectID = e.ObjectID
			continue
		}
		changes[key] = &sideChange{
			Ref:        e.Ref(),
			ObjectID:   e.ObjectID,
			BeforeHash: e.BeforeHash,
			AfterHash:  e.AfterHash,
			AfterDef:   e.AfterDefinition,
		}
	}
	for key, c := range changes {
		if c.BeforeHash == c.AfterHash {
			delete(changes, key)
		}
	}
	return changes
}
