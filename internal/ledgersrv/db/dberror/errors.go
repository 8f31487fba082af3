package dberror

import (
	"net/http"

	"github.com/schemaledger/schemaledger/internal/common/apperrors"
)

var (
	ErrDatabase        apperrors.Error = apperrors.New("db error").SetStatusCode(http.StatusInternalServerError)
	ErrAlreadyExists   apperrors.Error = ErrDatabase.New("already exists").SetStatusCode(http.StatusConflict)
	ErrNotFound        apperrors.Error = ErrDatabase.New("not found").SetStatusCode(http.StatusNotFound)
	ErrInvalidInput    apperrors.Error = ErrDatabase.New("invalid input").SetStatusCode(http.StatusBadRequest)
	ErrInvalidBranch   apperrors.Error = ErrDatabase.New("invalid branch").SetStatusCode(http.StatusBadRequest)
	ErrMissingTenantID apperrors.Error = ErrInvalidInput.New("missing tenant ID").SetStatusCode(http.StatusBadRequest)
	ErrStaleHead       apperrors.Error = ErrDatabase.New("branch head has moved").SetStatusCode(http.StatusConflict)
	ErrImmutableRow    apperrors.Error = ErrDatabase.New("row is immutable").SetStatusCode(http.StatusConflict)
)
