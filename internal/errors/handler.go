package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"dockbench/internal/ui"
)

const (
	logFileName     = "dockbench.log"
	maxLogSizeBytes = 10 * 1024 * 1024
	maxLogFiles     = 5
)

// ErrorHandler logs errors as JSON records and prints them for the operator.
type ErrorHandler struct {
	logger  *slog.Logger
	console *ui.Console
	closer  io.Closer
}

func NewErrorHandler() (*ErrorHandler, error) {
	logFile, err := createLogFile()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	return &ErrorHandler{
		logger:  logger,
		console: ui.NewConsole(),
		closer:  logFile,
	}, nil
}

// Close closes the log file.
func (h *ErrorHandler) Close() error {
	if h.closer == nil {
		return nil
	}
	return h.closer.Close()
}

// getOSStandardLogDir returns the OS-standard log directory path
func getOSStandardLogDir() (string, error) {
	if customLogDir := os.Getenv("DOCKBENCH_LOG_DIR"); customLogDir != "" {
		return customLogDir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir, "Library", "Logs", "dockbench"), nil
	case "linux", "freebsd", "openbsd", "netbsd":
		// XDG data home
		return filepath.Join(homeDir, ".local", "share", "dockbench", "logs"), nil
	case "windows":
		if appDataDir := os.Getenv("APPDATA"); appDataDir != "" {
			return filepath.Join(appDataDir, "dockbench", "logs"), nil
		}
		return filepath.Join(homeDir, "AppData", "Roaming", "dockbench", "logs"), nil
	default:
		return filepath.Join(homeDir, ".dockbench", "logs"), nil
	}
}

// resolveLogDir creates the standard log directory, falling back to the
// working directory when it is not writable.
func resolveLogDir() (string, error) {
	logDir, err := getOSStandardLogDir()
	if err == nil {
		if err = os.MkdirAll(logDir, 0750); err == nil {
			if err = probeWritable(logDir); err == nil {
				return logDir, nil
			}
		}
	}

	currentDir, cwdErr := os.Getwd()
	if cwdErr != nil {
		return "", fmt.Errorf("cannot determine current directory for fallback logging: %w", cwdErr)
	}
	fmt.Fprintf(os.Stderr, "Warning: cannot use log directory %s (%v). Falling back to current directory for logging.\n", logDir, err)
	return currentDir, nil
}

func probeWritable(dir string) error {
	testFile := filepath.Join(dir, ".test_write")
	f, err := os.Create(testFile)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		slog.Warn("Failed to close test file", "path", testFile, "error", err)
	}
	return os.Remove(testFile)
}

// rotateLogFile shifts dockbench.log -> .1 -> .2 ... dropping the oldest.
func rotateLogFile(logPath string) error {
	oldest := fmt.Sprintf("%s.%d", logPath, maxLogFiles)
	if _, err := os.Stat(oldest); err == nil {
		if err := os.Remove(oldest); err != nil {
			slog.Warn("Failed to remove old log file", "path", oldest, "error", err)
		}
	}

	for i := maxLogFiles - 1; i > 0; i-- {
		oldPath := fmt.Sprintf("%s.%d", logPath, i)
		if _, err := os.Stat(oldPath); err != nil {
			continue
		}
		newPath := fmt.Sprintf("%s.%d", logPath, i+1)
		if err := os.Rename(oldPath, newPath); err != nil {
			slog.Warn("Failed to rotate log file", "old", oldPath, "new", newPath, "error", err)
		}
	}

	if _, err := os.Stat(logPath); err == nil {
		return os.Rename(logPath, logPath+".1")
	}
	return nil
}

func createLogFile() (*os.File, error) {
	logDir, err := resolveLogDir()
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, logFileName)
	if info, err := os.Stat(logPath); err == nil && info.Size() >= maxLogSizeBytes {
		if err := rotateLogFile(logPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to rotate log file: %v\n", err)
		}
	}

	return os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}

// Handle logs err and prints it to the console.
func (h *ErrorHandler) Handle(err error) {
	if err == nil {
		return
	}

	var benchErr *Error
	if errors.As(err, &benchErr) {
		h.logStructured(slog.LevelError, benchErr)
		h.console.PrintError(h.console.FormatErrorMessage(benchErr.Context, benchErr.Cause, benchErr.Suggestion))
		return
	}

	h.logger.Error("Unhandled error occurred",
		"error", err.Error(),
		"type", "generic",
	)
	h.console.PrintError(err.Error())
}

// Warn logs a non-fatal problem such as a teardown warning.
func (h *ErrorHandler) Warn(err error) {
	if err == nil {
		return
	}

	var benchErr *Error
	if errors.As(err, &benchErr) {
		h.logStructured(slog.LevelWarn, benchErr)
		h.console.PrintWarning(h.console.FormatErrorMessage(benchErr.Context, benchErr.Cause, benchErr.Suggestion))
		return
	}
	h.logger.Warn("Warning", "error", err.Error())
	h.console.PrintWarning(err.Error())
}

func (h *ErrorHandler) logStructured(level slog.Level, err *Error) {
	logAttrs := []slog.Attr{
		slog.String("error", err.Error()),
		slog.String("type", typeName(err.Type)),
		slog.String("context", err.Context),
	}
	if err.Cause != "" {
		logAttrs = append(logAttrs, slog.String("cause", err.Cause))
	}
	if err.Suggestion != "" {
		logAttrs = append(logAttrs, slog.String("suggestion", err.Suggestion))
	}
	h.logger.LogAttrs(context.Background(), level, "dockbench error", logAttrs...)
}

func typeName(errType error) string {
	switch errType {
	case ErrProvisionFailed:
		return "provision_failed"
	case ErrNotFound:
		return "not_found"
	case ErrUnsupportedDriver:
		return "unsupported_driver"
	case ErrStepExecution:
		return "step_execution"
	case ErrTeardown:
		return "teardown"
	case ErrConfigInvalid:
		return "config_invalid"
	case ErrScenarioInvalid:
		return "scenario_invalid"
	case ErrRuntimeFailed:
		return "runtime_failed"
	case ErrStoreFailed:
		return "store_failed"
	default:
		return "unknown"
	}
}
