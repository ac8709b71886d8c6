package directory

import (
	"errors"
	"fmt"
)

// Sentinel errors for the directory error taxonomy. Callers branch with
// errors.Is; APIError carries the raw status and server detail.
var (
	// ErrUnauthorized is returned on any 401. The controller treats it as
	// session expiry from every state.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict covers duplicate identity or room names.
	ErrConflict = errors.New("conflict")
	// ErrNotFound covers unknown rooms, users, invites and requests.
	ErrNotFound = errors.New("not found")
)

// APIError is a non-2xx response from the directory service.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("directory: %s (status %d)", e.Detail, e.Status)
	}
	return fmt.Sprintf("directory: unexpected status %d", e.Status)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case 401:
		return ErrUnauthorized
	case 404:
		return ErrNotFound
	case 400, 409:
		return ErrConflict
	}
	return nil
}
