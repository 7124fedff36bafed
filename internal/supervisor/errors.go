package supervisor

import (
	"errors"

	"github.com/loykin/srvkeeper/internal/resource"
)

var (
	// ErrResourceDirUnavailable means the bundled-resource directory could not be determined.
	ErrResourceDirUnavailable = resource.ErrDirUnavailable
	// ErrNotRunning is returned by Status when no server is recorded.
	ErrNotRunning = errors.New("server not running")
	// ErrLockFailure is returned once the supervisor state has been poisoned
	// by a panic inside a critical section.
	ErrLockFailure = errors.New("supervisor state lock is poisoned")
)

// MissingResourceError reports a bundled file that does not exist.
type MissingResourceError struct {
	What string // "node runtime", "server entry point"
	Path string
}

func (e *MissingResourceError) Error() string {
	return e.What + " not found at: " + e.Path
}

// LaunchFailedError reports that the server process could not be created
// or did not survive its warm-up.
type LaunchFailedError struct {
	Reason error
}

func (e *LaunchFailedError) Error() string {
	return "failed to launch server: " + e.Reason.Error()
}

func (e *LaunchFailedError) Unwrap() error { return e.Reason }

// Error codes shared by the command surface, HTTP transport and metrics.
const (
	CodeResourceDirUnavailable = "resource_dir_unavailable"
	CodeMissingResource        = "missing_resource"
	CodeLaunchFailed           = "launch_failed"
	CodeLockFailure            = "lock_failure"
	CodeNotRunning             = "not_running"
	CodeInternal               = "internal"
)

// Code classifies err into one of the Code constants.
func Code(err error) string {
	var (
		missing *MissingResourceError
		launch  *LaunchFailedError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLockFailure):
		return CodeLockFailure
	case errors.Is(err, ErrNotRunning):
		return CodeNotRunning
	case errors.Is(err, ErrResourceDirUnavailable):
		return CodeResourceDirUnavailable
	case errors.As(err, &missing):
		return CodeMissingResource
	case errors.As(err, &launch):
		return CodeLaunchFailed
	default:
		return CodeInternal
	}
}
