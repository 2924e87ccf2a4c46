// Package identity models the validator that turns credentials into a
// resolved, already-flattened grant set. The dashboard treats it as an
// opaque call: a transport error and an explicit rejection are different
// things, and callers that revalidate in the background rely on that
// distinction to fail open.
package identity

import "context"

// Result is the validator response. Grants carries flat "module:action"
// tokens only; wildcard syntax never crosses this boundary.
type Result struct {
	Success     bool     `json:"success"`
	Message     string   `json:"error,omitempty"`
	IdentityID  string   `json:"identity_id,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	RoleName    string   `json:"role,omitempty"`
	IsAdmin     bool     `json:"is_admin,omitempty"`
	Grants      []string `json:"grants,omitempty"`
}

// Validator checks a login/credential pair. A non-nil error means the call
// itself failed (network, backend down) and says nothing about the
// credentials; an explicit deny comes back as Success == false.
type Validator interface {
	Validate(ctx context.Context, login, credential string) (Result, error)
}
