package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned by Start while a migration is in progress
	ErrBusy = errors.New("a migration is already in progress")

	// ErrProjectRequired is returned by Start when no project is selected
	ErrProjectRequired = errors.New("please select a project before starting migration")

	// ErrProjectNotAccessible is returned by Start for a project outside the
	// user's accessible set
	ErrProjectNotAccessible = errors.New("project is not assigned to you")

	// ErrNoFile is returned by Start when there is nothing to upload
	ErrNoFile = errors.New("no file selected")
)

// PermissionError means the session user lacks a capability. It is raised
// before any network call is made.
type PermissionError struct {
	Permission string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s permission required", e.Permission)
}

// IsPermissionError reports whether err is a *PermissionError
func IsPermissionError(err error) bool {
	var permErr *PermissionError
	return errors.As(err, &permErr)
}
