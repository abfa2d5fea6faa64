package errors

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrCommandFailed    = errors.New("command failed")
	ErrTransport        = errors.New("transport operation failed")
	ErrConfigInvalid    = errors.New("configuration invalid")
	ErrLaunchFailed     = errors.New("launch failed")
	ErrFileSystemFailed = errors.New("filesystem operation failed")
)

// AIEnvError carries a category plus the human context, cause and
// remediation hint shown to the operator.
type AIEnvError struct {
	Type        error
	Context     string
	Cause       string
	Suggestion  string
	OriginalErr error
}

func (e *AIEnvError) Error() string {
	return e.OriginalErr.Error()
}

func (e *AIEnvError) Unwrap() error {
	return e.OriginalErr
}

// Is lets errors.Is match the category as well as the wrapped chain.
func (e *AIEnvError) Is(target error) bool {
	return e.Type == target
}

func NewAIEnvError(errorType error, context, cause, suggestion string, originalErr error) *AIEnvError {
	return &AIEnvError{
		Type:        errorType,
		Context:     context,
		Cause:       cause,
		Suggestion:  suggestion,
		OriginalErr: originalErr,
	}
}

func NewNotFoundError(context, cause, suggestion string, originalErr error) *AIEnvError {
	return NewAIEnvError(ErrNotFound, context, cause, suggestion, originalErr)
}

func NewCommandError(context, cause, suggestion string, originalErr error) *AIEnvError {
	return NewAIEnvError(ErrCommandFailed, context, cause, suggestion, originalErr)
}

func NewTransportError(context, cause, suggestion string, originalErr error) *AIEnvError {
	return NewAIEnvError(ErrTransport, context, cause, suggestion, originalErr)
}

func NewConfigError(context, cause, suggestion string, originalErr error) *AIEnvError {
	return NewAIEnvError(ErrConfigInvalid, context, cause, suggestion, originalErr)
}

func NewLaunchError(context, cause, suggestion string, originalErr error) *AIEnvError {
	return NewAIEnvError(ErrLaunchFailed, context, cause, suggestion, originalErr)
}

func NewFileSystemError(context, cause, suggestion string, originalErr error) *AIEnvError {
	return NewAIEnvError(ErrFileSystemFailed, context, cause, suggestion, originalErr)
}
