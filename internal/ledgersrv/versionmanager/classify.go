package versionmanager

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/schemaledger/schemaledger/pkg/schemadef"
	"github.com/schemaledger/schemaledger/pkg/types"
)

// Conflict records one identity both sides of a merge edited. Resolution
// state lives here too; the whole slice round-trips through the merge row's
// conflicts column.
type Conflict struct {
	Ref                types.ObjectRef              `json:"ref"`
	BaseHash           types.Hash                   `json:"base_hash"`
	SourceHash         types.Hash                   `json:"source_hash"`
	TargetHash         types.Hash                   `json:"target_hash"`
	Classification     types.ConflictClassification `json:"classification"`
	Diff               string                       `json:"diff,omitempty"`
	Resolved           bool                         `json:"resolved"`
	ResolvedDefinition []byte                       `json:"resolved_definition,omitempty"`
	Advisory           *AdvisoryResolution          `json:"advisory_resolution,omitempty"`
}

// AdvisoryResolution is a non-authoritative prediction attached to a
// conflict. It never substitutes for explicit resolution.
type AdvisoryResolution struct {
	Classification types.ConflictClassification `json:"classification"`
	Confidence     float64                      `json:"confidence"`
	Advisor        string                       `json:"advisor"`
}

// MergeChange is one identity's planned contribution to the merge commit.
type MergeChange struct {
	Ref        types.ObjectRef  `json:"ref"`
	ChangeType types.ChangeType `json:"change_type"`
	Definition []byte           `json:"definition,omitempty"`
	IsDrop     bool             `json:"is_drop"`
}

// classifyConflict compares both sides' edits against the base definition.
// For ADDITIVE_COMPATIBLE conflicts the auto-merged definition is returned;
// all other classifications return nil and require explicit resolution.
func classifyConflict(baseDef, sourceDef, targetDef []byte) (types.ConflictClassification, []byte) {
	// A drop racing any edit has no sensible auto-merge.
	if sourceDef == nil || targetDef == nil || baseDef == nil {
		return types.ConflictStructural, nil
	}

	if schemadef.SemanticallyEqual(sourceDef, targetDef) {
		return types.ConflictSemantic, nil
	}

	sourcePaths := schemadef.ChangedSpecPaths(baseDef, sourceDef)
	targetPaths := schemadef.ChangedSpecPaths(baseDef, targetDef)
	if !schemadef.PathsOverlap(sourcePaths, targetPaths) {
		merged, err := schemadef.MergeDisjoint(baseDef, sourceDef, targetDef, sourcePaths, targetPaths)
		if err == nil {
			return types.ConflictAdditiveCompatible, merged
		}
	}
	return types.ConflictStructural, nil
}

// conflictDiff renders a unified diff of the two sides' definitions for
// human review.
func conflictDiff(ref types.ObjectRef, sourceDef, targetDef []byte) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(definitionText(sourceDef)),
		B:        difflib.SplitLines(definitionText(targetDef)),
		FromFile: ref.String() + " (source)",
		ToFile:   ref.String() + " (target)",
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}

func definitionText(def []byte) string {
	if def == nil {
		return "(absent)\n"
	}
	normalized, err := schemadef.NormalizeJSON(def)
	if err != nil {
		normalized = def
	}
	s := string(normalized)
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s
}
