package errors

import "errors"

var (
	ErrProvisionFailed   = errors.New("provisioning failed")
	ErrNotFound          = errors.New("no matching container")
	ErrUnsupportedDriver = errors.New("unsupported driver")
	ErrStepExecution     = errors.New("step execution failed")
	ErrTeardown          = errors.New("teardown failed")
	ErrConfigInvalid     = errors.New("configuration invalid")
	ErrScenarioInvalid   = errors.New("scenario invalid")
	ErrRuntimeFailed     = errors.New("runtime operation failed")
	ErrStoreFailed       = errors.New("result store operation failed")
)

// Error carries a taxonomy type plus the context shown to the operator.
type Error struct {
	Type        error
	Context     string
	Cause       string
	Suggestion  string
	OriginalErr error
}

func (e *Error) Error() string {
	if e.OriginalErr == nil {
		return e.Context
	}
	return e.OriginalErr.Error()
}

func (e *Error) Unwrap() error {
	return e.OriginalErr
}

// Is makes errors.Is(err, ErrProvisionFailed) and friends match on Type.
func (e *Error) Is(target error) bool {
	return e.Type == target
}

func New(errorType error, context, cause, suggestion string, originalErr error) *Error {
	if originalErr == nil {
		originalErr = errorType
	}
	return &Error{
		Type:        errorType,
		Context:     context,
		Cause:       cause,
		Suggestion:  suggestion,
		OriginalErr: originalErr,
	}
}

func NewProvisionError(context, cause, suggestion string, originalErr error) *Error {
	return New(ErrProvisionFailed, context, cause, suggestion, originalErr)
}

func NewNotFoundError(context, cause, suggestion string, originalErr error) *Error {
	return New(ErrNotFound, context, cause, suggestion, originalErr)
}

func NewUnsupportedDriverError(context, cause, suggestion string, originalErr error) *Error {
	return New(ErrUnsupportedDriver, context, cause, suggestion, originalErr)
}

func NewStepError(context, cause, suggestion string, originalErr error) *Error {
	return New(ErrStepExecution, context, cause, suggestion, originalErr)
}

func NewTeardownWarning(context, cause, suggestion string, originalErr error) *Error {
	return New(ErrTeardown, context, cause, suggestion, originalErr)
}

func NewConfigError(context, cause, suggestion string, originalErr error) *Error {
	return New(ErrConfigInvalid, context, cause, suggestion, originalErr)
}

func NewScenarioError(context, cause, suggestion string, originalErr error) *Error {
	return New(ErrScenarioInvalid, context, cause, suggestion, originalErr)
}

func NewRuntimeError(context, cause, suggestion string, originalErr error) *Error {
	return New(ErrRuntimeFailed, context, cause, suggestion, originalErr)
}

func NewStoreError(context, cause, suggestion string, originalErr error) *Error {
	return New(ErrStoreFailed, context, cause, suggestion, originalErr)
}

// IsFatal reports whether err ends a run before any step executes.
func IsFatal(err error) bool {
	return errors.Is(err, ErrProvisionFailed) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnsupportedDriver)
}
