package schemadef

import (
	"net/http"

	"github.com/schemaledger/schemaledger/internal/common/apperrors"
)

var (
	ErrDefinitionError         apperrors.Error = apperrors.New("error in processing definition").SetStatusCode(http.StatusInternalServerError)
	ErrInvalidDefinition       apperrors.Error = ErrDefinitionError.New("invalid definition").SetExpandError(true).SetStatusCode(http.StatusBadRequest)
	ErrDefinitionSerialization apperrors.Error = ErrDefinitionError.New("unable to serialize definition").SetStatusCode(http.StatusInternalServerError)
	ErrSchemaValidation        apperrors.Error = ErrDefinitionError.New("definition failed schema validation").SetExpandError(true).SetStatusCode(http.StatusBadRequest)
)
