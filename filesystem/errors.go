package filesystem

import (
	"fmt"
	"path/filepath"

	"emperror.dev/errors"
	"github.com/apex/log"
)

type ErrorCode string

const (
	ErrCodeIsDirectory     ErrorCode = "E_ISDIR"
	ErrCodeDenylistFile    ErrorCode = "E_DENYLIST"
	ErrCodePathResolution  ErrorCode = "E_BADPATH"
	ErrCodeInvalidPath     ErrorCode = "E_INVALIDPATH"
	ErrCodeInvalidArgument ErrorCode = "E_INVALIDARG"
	ErrCodeAlreadyExists   ErrorCode = "E_EXIST"
	ErrCodeAccess          ErrorCode = "E_ACCESS"
	ErrCodeDeletion        ErrorCode = "E_DELETE"
	ErrCodeUnknownError    ErrorCode = "E_UNKNOWN"
	ErrNotExist            ErrorCode = "E_NOTEXIST"
)

// Error is a filesystem error that carries a code describing what went wrong
// along with the path that was requested and the location it resolved to.
type Error struct {
	code ErrorCode
	// Contains the underlying error leading to this. This value may or may
	// not be present, it is dependent on how the error was created.
	err error
	// This contains the path that was requested by the caller.
	path string
	// This contains the resolved path on the disk, or any extra detail for
	// the error when the code does not describe a path resolution.
	resolved string
}

// newFilesystemError returns a new error instance with a stack trace attached.
func newFilesystemError(code ErrorCode, err error) error {
	return errors.WithStackDepth(&Error{code: code, err: err}, 1)
}

// newPathError returns a new error for the given code that also tracks the
// requested path.
func newPathError(code ErrorCode, path string, err error) error {
	return errors.WithStackDepth(&Error{code: code, path: path, err: err}, 1)
}

// NewBadPathResolution returns a new BadPathResolution error for the path that
// escaped the root, and the location it would have resolved to.
func NewBadPathResolution(path string, resolved string) error {
	return errors.WithStackDepth(&Error{code: ErrCodePathResolution, path: path, resolved: resolved}, 1)
}

// newDeletionError returns the error raised when a recursive delete could not
// remove one of the entries it visited.
func newDeletionError(path string, err error) error {
	return errors.WithStackDepth(&Error{code: ErrCodeDeletion, path: path, err: err}, 1)
}

// Code returns the ErrorCode for this specific error instance.
func (e *Error) Code() ErrorCode {
	return e.code
}

// Path returns the path that was requested when the error was raised.
func (e *Error) Path() string {
	return e.path
}

// Returns a human-readable error string to identify the Error by.
func (e *Error) Error() string {
	switch e.code {
	case ErrCodeIsDirectory:
		return fmt.Sprintf("filesystem: cannot perform action: [%s] is a directory", e.path)
	case ErrCodeDenylistFile:
		r := e.path
		if e.resolved != "" {
			r = e.resolved
		}
		return fmt.Sprintf("filesystem: file access prohibited: [%s] is on the denylist", r)
	case ErrCodePathResolution:
		r := e.resolved
		if r == "" {
			r = "<empty>"
		}
		return fmt.Sprintf("filesystem: path [%s] resolves to a location outside the root: %s", e.path, r)
	case ErrCodeInvalidPath:
		return e.withCause(fmt.Sprintf("filesystem: invalid path [%s]", e.path))
	case ErrCodeInvalidArgument:
		return e.withCause("filesystem: invalid argument")
	case ErrCodeAlreadyExists:
		return fmt.Sprintf("filesystem: [%s] already exists", e.path)
	case ErrCodeAccess:
		return e.withCause(fmt.Sprintf("filesystem: failed to access [%s]", e.path))
	case ErrCodeDeletion:
		return e.withCause(fmt.Sprintf("filesystem: failed to delete [%s]", e.path))
	case ErrNotExist:
		return fmt.Sprintf("filesystem: [%s] does not exist", e.path)
	case ErrCodeUnknownError:
		fallthrough
	default:
		return e.withCause("filesystem: an error occurred")
	}
}

func (e *Error) withCause(msg string) string {
	if e.err != nil {
		return msg + ": " + e.err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause of the error, if present.
func (e *Error) Unwrap() error {
	return e.err
}

// IsErrorCode checks if "err" is a filesystem Error type. If so, it will then
// drop in and check that the error code is the same as the provided ErrorCode
// passed in "code".
func IsErrorCode(err error, code ErrorCode) bool {
	var fserr *Error
	if errors.As(err, &fserr) {
		return fserr.code == code
	}
	return false
}

// IsPathError reports whether the error was raised because the request was
// rejected by validation, rather than because the target was absent.
func IsPathError(err error) bool {
	return IsErrorCode(err, ErrCodePathResolution) || IsErrorCode(err, ErrCodeInvalidArgument)
}

// Generates an error logger instance with some basic information.
func (fs *Filesystem) error(err error) *log.Entry {
	return fs.log().WithField("error", err)
}

func (fs *Filesystem) log() *log.Entry {
	return log.WithField("subsystem", "filesystem").WithField("root", filepath.Clean(fs.root))
}
