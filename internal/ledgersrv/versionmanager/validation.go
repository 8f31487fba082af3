package versionmanager

import (
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/schemaledger/schemaledger/internal/common/apperrors"
)

var validate *validator.Validate

// DNS-label charset: lowercase alphanumeric with interior hyphens.
var branchNameRegex = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("branchName", branchNameValidator); err != nil {
		panic(err)
	}
}

func branchNameValidator(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if len(name) == 0 || len(name) > 63 {
		return false
	}
	return branchNameRegex.MatchString(name)
}

// CreateBranchRequest carries the caller's input into CreateBranch.
type CreateBranchRequest struct {
	Name         string `validate:"required,branchName"`
	Description  string `validate:"max=1024"`
	ParentBranch string `validate:"omitempty,branchName"`
}

func validateStruct(s any) apperrors.Error {
	if err := validate.Struct(s); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			f := verrs[0]
			if f.Tag() == "branchName" {
				return ErrInvalidName.Msg("field " + f.Field() + " must be 1-63 chars of [a-z0-9-], not starting or ending with '-'")
			}
			if f.Tag() == "required" {
				return ErrInvalidArgument.Msg(f.Field() + " cannot be NULL")
			}
			return ErrInvalidArgument.Msg("field " + f.Field() + " failed validation: " + f.Tag())
		}
		return ErrInvalidArgument.Err(err)
	}
	return nil
}
