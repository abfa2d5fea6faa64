package errors

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"aienv/internal/ui"
)

type ErrorHandler struct {
	logger  *slog.Logger
	console *ui.Console
	logFile io.WriteCloser
}

func NewErrorHandler() (*ErrorHandler, error) {
	return NewErrorHandlerWithConsole(ui.NewConsole())
}

// NewErrorHandlerWithConsole builds a handler printing to the given console.
func NewErrorHandlerWithConsole(console *ui.Console) (*ErrorHandler, error) {
	logFile, err := openLogFile()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	return &ErrorHandler{
		logger:  logger,
		console: console,
		logFile: logFile,
	}, nil
}

// Logger returns the file-backed structured logger.
func (h *ErrorHandler) Logger() *slog.Logger {
	return h.logger
}

// Close releases the log file.
func (h *ErrorHandler) Close() error {
	if h.logFile == nil {
		return nil
	}
	return h.logFile.Close()
}

// Handle records err in the log file and prints it. AIEnvErrors are shown
// with their cause and suggestion.
func (h *ErrorHandler) Handle(err error) {
	if err == nil {
		return
	}

	var envErr *AIEnvError
	if !errors.As(err, &envErr) {
		h.logger.Error("unhandled error", "error", err.Error(), "type", "generic")
		h.console.PrintError(err.Error())
		return
	}

	attrs := []slog.Attr{
		slog.String("error", envErr.Error()),
		slog.String("type", typeName(envErr.Type)),
		slog.String("context", envErr.Context),
	}
	if envErr.Cause != "" {
		attrs = append(attrs, slog.String("cause", envErr.Cause))
	}
	if envErr.Suggestion != "" {
		attrs = append(attrs, slog.String("suggestion", envErr.Suggestion))
	}
	h.logger.LogAttrs(context.Background(), slog.LevelError, "aienv error", attrs...)

	h.console.PrintError(h.console.FormatErrorMessage(envErr.Context, envErr.Cause, envErr.Suggestion))
}

var typeNames = map[error]string{
	ErrNotFound:         "not_found",
	ErrCommandFailed:    "command_failed",
	ErrTransport:        "transport_error",
	ErrConfigInvalid:    "config_invalid",
	ErrLaunchFailed:     "launch_failed",
	ErrFileSystemFailed: "filesystem_failed",
}

func typeName(errType error) string {
	if name, ok := typeNames[errType]; ok {
		return name
	}
	return "unknown"
}
