package models

import (
	"github.com/google/uuid"
	"github.com/schemaledger/schemaledger/pkg/types"
)

// CommitChange is one object's contribution to a commit: the history entry to
// append and the catalog row update it implies. Definitions are uncompressed
// here; the storage layer compresses on write.
type CommitChange struct {
	Ref              types.ObjectRef
	ObjectID         uuid.UUID // nil for objects new to this branch
	ChangeType       types.ChangeType
	BeforeDefinition []byte
	BeforeHash       types.Hash
	AfterDefinition  []byte
	AfterHash        types.Hash
	Edges            []DependencyEdge // recomputed edges for Ref; replaces prior edges
}

// IsDrop reports whether the change removes the object.
func (c *CommitChange) IsDrop() bool {
	return c.AfterHash.IsNil()
}

// CommitApply is the full payload of one atomic commit. The engine computes
// it outside any lock; ApplyCommit validates ExpectedSeq against the locked
// branch row and either writes everything or nothing.
type CommitApply struct {
	Commit          Commit
	ExpectedSeq     int64
	Changes         []CommitChange
	ClearStaged     bool
	WriteSnapshots  bool
	SetSourceMerged uuid.UUID // for merge commits: source branch to mark MERGED (uuid.Nil to skip)
}
