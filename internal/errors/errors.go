package errors

import "sync"

var defaultHandler = sync.OnceValues(NewErrorHandler)

// GetDefaultHandler returns the process-wide handler, opening the log file
// on first use.
func GetDefaultHandler() (*ErrorHandler, error) {
	return defaultHandler()
}

// HandleError logs err to the log file and prints it to the console.
// It reports whether err was non-nil so callers can turn failures into
// exit codes.
func HandleError(err error) bool {
	if err == nil {
		return false
	}
	if handler, handlerErr := GetDefaultHandler(); handlerErr == nil {
		handler.Handle(err)
	}
	return true
}

func resetDefaultHandler() {
	defaultHandler = sync.OnceValues(NewErrorHandler)
}
