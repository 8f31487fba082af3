// Package apperrors defines the chainable application error type used across
// the ledger. Errors form trees: a sentinel derived with New matches its base
// through errors.Is, so callers can test against broad categories while the
// message carries operation-specific context.
package apperrors

type Error interface {
	Error() string
	ErrorAll() string
	New(msg string) Error
	MsgErr(msg string, err ...error) Error
	Msg(msg string) Error
	Prefix(prefix string) Error
	Suffix(suffix string) Error
	Err(err ...error) Error
	Unwrap() []error
	Is(target error) bool
	SetExpandError(expand bool) Error
	SetStatusCode(code int) Error
	StatusCode() int
}
