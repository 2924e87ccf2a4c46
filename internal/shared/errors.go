package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicate indicates a unique constraint conflict.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInvalidMatrix indicates a permission matrix violating the view
	// dependency rule; the save that produced it must be blocked.
	ErrInvalidMatrix = errors.New("invalid permission matrix")
	// ErrIncompleteAuditEntry indicates an audit entry missing required fields.
	ErrIncompleteAuditEntry = errors.New("incomplete audit entry")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
