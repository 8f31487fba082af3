package apperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	ErrBaseErr := New("base error")
	assert.Equal(t, "base error", ErrBaseErr.Error())
	assert.Equal(t, "msg", ErrBaseErr.New("msg").Error())
	assert.ErrorIs(t, ErrBaseErr, ErrBaseErr)

	ErrFirstLevel := ErrBaseErr.New("first level")
	assert.Equal(t, "first level", ErrFirstLevel.Error())
	assert.ErrorIs(t, ErrFirstLevel, ErrBaseErr)

	ErrAnotherErr := New("another error")
	ErrWrappedErr := ErrFirstLevel.Err(ErrAnotherErr)
	assert.Equal(t, "first level", ErrWrappedErr.Error())
	assert.ErrorIs(t, ErrWrappedErr, ErrBaseErr)
	assert.ErrorIs(t, ErrWrappedErr, ErrAnotherErr)

	err := errors.New("error")
	ErrWrappedErr = ErrFirstLevel.Err(err)
	assert.ErrorIs(t, ErrWrappedErr, ErrBaseErr)
	assert.ErrorIs(t, ErrWrappedErr, err)

	ErrWrappedErr = ErrFirstLevel.MsgErr("msg", err)
	assert.Equal(t, "msg", ErrWrappedErr.Error())
	assert.ErrorIs(t, ErrWrappedErr, ErrBaseErr)
	assert.ErrorIs(t, ErrWrappedErr, err)
}

func TestSentinelNotMutated(t *testing.T) {
	ErrSentinel := New("sentinel")
	derived := ErrSentinel.Msg("something specific")
	assert.Equal(t, "sentinel", ErrSentinel.Error())
	assert.Equal(t, "something specific", derived.Error())
	assert.ErrorIs(t, derived, ErrSentinel)
}

func TestExpandError(t *testing.T) {
	base := New("base").SetExpandError(true)
	wrapped := base.Err(errors.New("inner"))
	assert.Equal(t, "base: inner", wrapped.ErrorAll())
	assert.Equal(t, "base", wrapped.Error())
}

func TestStatusCode(t *testing.T) {
	base := New("base").SetStatusCode(500)
	child := base.New("child")
	assert.Equal(t, 500, child.StatusCode())
	assert.Equal(t, 404, child.SetStatusCode(404).StatusCode())
}
