package models

import "errors"

// Error kinds returned by explorer operations. Callers match them with
// errors.Is; operations wrap them in a *PathError.
var (
	ErrInvalidPath          = errors.New("invalid path")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrInvalidTarget        = errors.New("invalid move target")
	ErrCyclicMove           = errors.New("cannot move a folder into itself")
	ErrInvalidKind          = errors.New("invalid node kind for operation")
	ErrNoActiveWorkspace    = errors.New("no active workspace")
	ErrWorkspaceNotFound    = errors.New("workspace not found")
	ErrInvalidWorkspaceName = errors.New("invalid workspace name")
)

// PathError records the operation and path that caused an error.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	if e.Path == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// NewPathError wraps err with op and path.
func NewPathError(op, path string, err error) error {
	return &PathError{Op: op, Path: path, Err: err}
}
