package versionmanager

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schemaledger/schemaledger/internal/common/apperrors"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/config"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db"
	"github.com/schemaledger/schemaledger/internal/ledgersrv/db/models"
	"github.com/schemaledger/schemaledger/pkg/types"
)

// GetObject returns the live definition of an identity as seen from the
// branch head, resolving through the fork chain for objects the branch never
// touched. ErrNotFound covers both never-created and dropped objects.
func GetObject(ctx context.Context, branchName string, ref types.ObjectRef) ([]byte, apperrors.Error) {
	if !ref.IsValid() {
		return nil, ErrInvalidArgument.Msg("invalid object reference: " + ref.String())
	}
	branch, aerr := GetBranch(ctx, branchName)
	if aerr != nil {
		return nil, aerr
	}
	segments, aerr := branchLineage(ctx, branch, branch.CommitSeq)
	if aerr != nil {
		return nil, aerr
	}
	def, _, aerr := resolveObjectDefinition(ctx, segments, ref)
	if aerr != nil {
		return nil, aerr
	}
	if def == nil {
		return nil, ErrNotFound.Msg("object not found on branch: " + ref.String())
	}
	return def, nil
}

// ObjectListing is one live identity visible from a branch head.
type ObjectListing struct {
	Ref        types.ObjectRef `json:"ref"`
	Hash       types.Hash      `json:"hash"`
	Definition []byte          `json:"definition"`
}

// ListObjects enumerates the live objects visible from a branch head,
// optionally filtered by namespace and type. Root branches read their catalog
// directly; forked branches merge ancestor history through the lineage so
// inherited objects appear and post-fork ancestor edits do not.
func ListObjects(ctx context.Context, branchName, namespace string, objectType types.ObjectType) ([]ObjectListing, apperrors.Error) {
	branch, aerr := GetBranch(ctx, branchName)
	if aerr != nil {
		return nil, aerr
	}

	if !branch.ParentBranchID.Valid {
		objs, derr := db.DB(ctx).ListObjects(ctx, branch.BranchID, namespace, objectType)
		if derr != nil {
			return nil, ErrIntegrity.Err(derr)
		}
		listings := make([]ObjectListing, 0, len(objs))
		for _, o := range objs {
			listings = append(listings, ObjectListing{Ref: o.Ref(), Hash: o.Hash, Definition: o.Definition})
		}
		return listings, nil
	}

	segments, aerr := branchLineage(ctx, branch, branch.CommitSeq)
	if aerr != nil {
		return nil, aerr
	}

	seen := make(map[string]bool)
	var refs []types.ObjectRef
	for _, seg := range segments {
		if seg.maxSeq <= 0 {
			continue
		}
		entries, derr := db.DB(ctx).ListEntriesInRange(ctx, seg.branchID, 0, seg.maxSeq)
		if derr != nil {
			return nil, ErrIntegrity.Err(derr)
		}
		for _, e := range entries {
			ref := e.Ref()
			if namespace != "" && ref.Namespace != namespace {
				continue
			}
			if objectType != "" && ref.Type != objectType {
				continue
			}
			if key := ref.String(); !seen[key] {
				seen[key] = true
				refs = append(refs, ref)
			}
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })

	var listings []ObjectListing
	for _, ref := range refs {
		def, hash, aerr := resolveObjectDefinition(ctx, segments, ref)
		if aerr != nil {
			return nil, aerr
		}
		if def == nil {
			continue
		}
		listings = append(listings, ObjectListing{Ref: ref, Hash: hash, Definition: def})
	}
	return listings, nil
}

// GetObjectAt returns an identity's definition as of a specific commit
// visible from the branch. The commit may sit on the branch itself or on any
// ancestor within the visible lineage.
func GetObjectAt(ctx context.Context, branchName string, ref types.ObjectRef, commitID string) ([]byte, apperrors.Error) {
	if !ref.IsValid() {
		return nil, ErrInvalidArgument.Msg("invalid object reference: " + ref.String())
	}
	branch, aerr := GetBranch(ctx, branchName)
	if aerr != nil {
		return nil, aerr
	}
	commit, aerr := GetCommit(ctx, commitID)
	if aerr != nil {
		return nil, aerr
	}

	segments, aerr := branchLineage(ctx, branch, branch.CommitSeq)
	if aerr != nil {
		return nil, aerr
	}
	pinned := pinLineageAt(segments, commit)
	if pinned == nil {
		return nil, ErrNotFound.Msg("commit " + commitID + " is not visible from branch " + branchName)
	}

	def, _, aerr := resolveObjectDefinition(ctx, pinned, ref)
	if aerr != nil {
		return nil, aerr
	}
	if def == nil {
		return nil, ErrNotFound.Msg("object did not exist at commit " + commitID + ": " + ref.String())
	}
	return def, nil
}

// pinLineageAt rewrites a lineage so it ends exactly at the given commit:
// segments nearer than the commit's branch are discarded and the commit's own
// segment is capped at its sequence. Returns nil when the commit is outside
// the visible lineage.
func pinLineageAt(segments []lineageSegment, commit *models.Commit) []lineageSegment {
	for i, seg := range segments {
		if seg.branchID != commit.BranchID {
			continue
		}
		if commit.Seq > seg.maxSeq {
			return nil
		}
		pinned := make([]lineageSegment, len(segments)-i)
		copy(pinned, segments[i:])
		pinned[0].maxSeq = commit.Seq
		return pinned
	}
	return nil
}

// GetHistory returns an identity's change records as seen from a branch,
// newest first, crossing fork boundaries into ancestor history.
func GetHistory(ctx context.Context, branchName string, ref types.ObjectRef, since time.Time, limit int) ([]*models.ObjectHistoryEntry, apperrors.Error) {
	if !ref.IsValid() {
		return nil, ErrInvalidArgument.Msg("invalid object reference: " + ref.String())
	}
	branch, aerr := GetBranch(ctx, branchName)
	if aerr != nil {
		return nil, aerr
	}
	segments, aerr := branchLineage(ctx, branch, branch.CommitSeq)
	if aerr != nil {
		return nil, aerr
	}
	if limit <= 0 {
		limit = 100
	}

	var history []*models.ObjectHistoryEntry
	for _, seg := range segments {
		if seg.maxSeq <= 0 || len(history) >= limit {
			break
		}
		entries, derr := db.DB(ctx).ListHistoryForRefInSegment(ctx, seg.branchID, ref, seg.maxSeq, limit-len(history))
		if derr != nil {
			return nil, ErrIntegrity.Err(derr)
		}
		for _, e := range entries {
			if !since.IsZero() && e.CreatedAt.Before(since) {
				return history, nil
			}
			history = append(history, e)
		}
	}
	return history, nil
}

// GetObjectAsOf answers a point-in-time lookup from the snapshot store.
func GetObjectAsOf(ctx context.Context, branchName string, ref types.ObjectRef, asOf time.Time) (*models.TemporalSnapshot, apperrors.Error) {
	branch, aerr := GetBranch(ctx, branchName)
	if aerr != nil {
		return nil, aerr
	}
	snap, derr := db.DB(ctx).GetSnapshotAt(ctx, branch.BranchID, ref, asOf)
	if derr != nil {
		return nil, ErrNotFound.Msg("no snapshot for " + ref.String() + " at requested time").Err(derr)
	}
	return snap, nil
}

// ListSnapshots returns an identity's captures on a branch, newest first.
func ListSnapshots(ctx context.Context, branchName string, ref types.ObjectRef, limit int) ([]*models.TemporalSnapshot, apperrors.Error) {
	branch, aerr := GetBranch(ctx, branchName)
	if aerr != nil {
		return nil, aerr
	}
	snaps, derr := db.DB(ctx).ListSnapshotsForObject(ctx, branch.BranchID, ref, limit)
	if derr != nil {
		return nil, ErrIntegrity.Err(derr)
	}
	return snaps, nil
}

// ApplyRetention prunes history entries and snapshots older than the window.
// A non-positive window is rejected; a window above the retention ceiling is
// honored with a warning, since an oversized lookback is a reporting choice
// rather than a correctness hazard.
func ApplyRetention(ctx context.Context, windowDays int) (int64, apperrors.Error) {
	if windowDays <= 0 {
		return 0, ErrInvalidArgument.Msg("retention window must be positive")
	}
	if ceiling := config.Config().RetentionCeilingDays; windowDays > ceiling {
		log.Ctx(ctx).Warn().
			Int("window_days", windowDays).
			Int("ceiling_days", ceiling).
			Msg("retention window exceeds recommended ceiling; proceeding")
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -windowDays)
	pruned, derr := db.DB(ctx).DeleteEntriesBefore(ctx, cutoff)
	if derr != nil {
		return 0, ErrIntegrity.Err(derr)
	}
	snapsPruned, derr := db.DB(ctx).DeleteSnapshotsBefore(ctx, cutoff)
	if derr != nil {
		return pruned, ErrIntegrity.Msg(fmt.Sprintf("history pruned (%d rows) but snapshot pruning failed", pruned)).Err(derr)
	}
	return pruned + snapsPruned, nil
}
