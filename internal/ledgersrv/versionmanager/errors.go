package versionmanager

import (
	"net/http"

	"github.com/schemaledger/schemaledger/internal/common/apperrors"
)

// The four error categories every engine operation resolves into. Callers
// match against the category with errors.Is; the leaves carry the precise
// condition and the ids involved travel in the message chain.
var (
	ErrValidation    apperrors.Error = apperrors.New("validation error").SetStatusCode(http.StatusBadRequest)
	ErrStateConflict apperrors.Error = apperrors.New("state conflict").SetStatusCode(http.StatusConflict)
	ErrIntegrity     apperrors.Error = apperrors.New("integrity error").SetStatusCode(http.StatusInternalServerError)
	ErrNotFound      apperrors.Error = apperrors.New("not found").SetStatusCode(http.StatusNotFound)
)

// Validation leaves.
var (
	ErrInvalidArgument apperrors.Error = ErrValidation.New("invalid argument")
	ErrInvalidName     apperrors.Error = ErrValidation.New("invalid branch name")
	ErrInvalidMode     apperrors.Error = ErrValidation.New("invalid rollback mode")
	ErrInvalidObject   apperrors.Error = ErrValidation.New("invalid object definition")
)

// State-conflict leaves.
var (
	ErrDuplicateName       apperrors.Error = ErrStateConflict.New("branch name already in use")
	ErrEmptyCommit         apperrors.Error = ErrStateConflict.New("no staged changes to commit")
	ErrUnresolvedConflicts apperrors.Error = ErrStateConflict.New("merge has unresolved conflicts")
	ErrStaleBase           apperrors.Error = ErrStateConflict.New("target branch advanced since merge opened")
	ErrStalePlan           apperrors.Error = ErrStateConflict.New("branch advanced since plan was generated")
	ErrHasDependents       apperrors.Error = ErrStateConflict.New("branch has dependents")
	ErrUnsafeCascade       apperrors.Error = ErrStateConflict.New("cascade would drop objects with external dependents")
	ErrAlreadyResolved     apperrors.Error = ErrStateConflict.New("conflict already resolved")
	ErrMergeFinalized      apperrors.Error = ErrStateConflict.New("merge operation already finalized")
	ErrPlanNotExecutable   apperrors.Error = ErrStateConflict.New("plan is not executable")
)

// Integrity leaves. These fail closed: the engine refuses to guess.
var (
	ErrDependencyCycle  apperrors.Error = ErrIntegrity.New("dependency cycle detected")
	ErrMissingReference apperrors.Error = ErrIntegrity.New("referenced object does not exist")
)
