package shelf

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAborted is returned when an operation observes a cancelled context.
	// It is not a failure: nothing was persisted.
	ErrAborted = errors.New("operation aborted")

	// ErrNotFound means a file or directory no longer exists.
	ErrNotFound = errors.New("file not found")

	// ErrPermissionDenied means access to a file was refused or revoked.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrHandleUnsupported means the file access in use cannot resolve durable handles.
	ErrHandleUnsupported = errors.New("durable handles not supported")

	// ErrNothingToImport means a selection contained no supported video files.
	ErrNothingToImport = errors.New("no supported video files to import")

	ErrCourseNotFound = errors.New("course not found")
	ErrVideoNotFound  = errors.New("video not found")
)

// checkAborted returns ErrAborted (wrapping the context error) once ctx is done.
func checkAborted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}
	return nil
}

// isRecoverableAccessError reports whether err is an expected, user-recoverable
// file access condition rather than an I/O fault.
func isRecoverableAccessError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrHandleUnsupported)
}
