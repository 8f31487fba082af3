package types

import "slices"

type TenantId string
type Hash string

// IsNil returns true when no hash has been recorded.
func (h Hash) IsNil() bool {
	return h == ""
}

// ObjectType identifies the kind of structural entity tracked by the ledger.
type ObjectType string

const (
	ObjectTypeTable    ObjectType = "table"
	ObjectTypeIndex    ObjectType = "index"
	ObjectTypeFunction ObjectType = "function"
	ObjectTypeView     ObjectType = "view"
	ObjectTypeSequence ObjectType = "sequence"
	ObjectTypeInvalid  ObjectType = "invalid"
)

func ValidObjectTypes() []ObjectType {
	return []ObjectType{
		ObjectTypeTable,
		ObjectTypeIndex,
		ObjectTypeFunction,
		ObjectTypeView,
		ObjectTypeSequence,
	}
}

func (t ObjectType) IsValid() bool {
	return slices.Contains(ValidObjectTypes(), t)
}

// BranchStatus is the lifecycle state of a branch. Branches are never physically
// deleted while commits reference them; DELETED is a soft state.
type BranchStatus string

const (
	BranchStatusActive  BranchStatus = "ACTIVE"
	BranchStatusMerged  BranchStatus = "MERGED"
	BranchStatusDeleted BranchStatus = "DELETED"
)

func (s BranchStatus) IsValid() bool {
	switch s {
	case BranchStatusActive, BranchStatusMerged, BranchStatusDeleted:
		return true
	}
	return false
}

// ChangeType records how an object changed within a commit.
type ChangeType string

const (
	ChangeTypeCreate ChangeType = "CREATE"
	ChangeTypeAlter  ChangeType = "ALTER"
	ChangeTypeDrop   ChangeType = "DROP"
	ChangeTypeMerge  ChangeType = "MERGE"
	ChangeTypeRevert ChangeType = "REVERT"
)

// MergeStatus is the lifecycle state of a merge operation.
type MergeStatus string

const (
	MergeStatusPending    MergeStatus = "PENDING"
	MergeStatusConflicted MergeStatus = "CONFLICTED"
	MergeStatusResolved   MergeStatus = "RESOLVED"
	MergeStatusApplied    MergeStatus = "APPLIED"
	MergeStatusAborted    MergeStatus = "ABORTED"
)

// ConflictClassification categorizes a merge conflict by structural overlap.
type ConflictClassification string

const (
	ConflictNone               ConflictClassification = "NONE"
	ConflictAdditiveCompatible ConflictClassification = "ADDITIVE_COMPATIBLE"
	ConflictStructural         ConflictClassification = "STRUCTURAL"
	ConflictSemantic           ConflictClassification = "SEMANTIC"
)

// RollbackMode selects how a recovery plan treats dependents outside the
// affected set. SOFT stops and reports; HARD cascades.
type RollbackMode string

const (
	RollbackModeSoft RollbackMode = "SOFT"
	RollbackModeHard RollbackMode = "HARD"
)

func (m RollbackMode) IsValid() bool {
	return m == RollbackModeSoft || m == RollbackModeHard
}

// PlanStatus is the lifecycle state of a persisted rollback plan.
type PlanStatus string

const (
	PlanStatusGenerated PlanStatus = "GENERATED"
	PlanStatusExecuted  PlanStatus = "EXECUTED"
	PlanStatusInvalid   PlanStatus = "INVALID"
)

// DependencyType labels a directed edge in the dependency graph.
type DependencyType string

const (
	DependencyTypeReferences DependencyType = "references"
	DependencyTypeIndexes    DependencyType = "indexes"
	DependencyTypeCalls      DependencyType = "calls"
)

const DefaultBranch = "main"
const DefaultNamespace = "public"

// ObjectRef is the logical identity of a schema object. Two rows on different
// branches with the same ObjectRef are versions of the same object.
type ObjectRef struct {
	Type      ObjectType `json:"type"`
	Namespace string     `json:"namespace"`
	Name      string     `json:"name"`
}

func (r ObjectRef) String() string {
	return string(r.Type) + ":" + r.Namespace + "." + r.Name
}

func (r ObjectRef) IsValid() bool {
	return r.Type.IsValid() && r.Namespace != "" && r.Name != ""
}
