// Package auth resolves caller credentials from inbound HTTP requests and
// exchanges them for an authenticated identity.
package auth

import (
	"context"
	"errors"
)

// ErrUnauthenticated indicates the credential is missing, invalid, or belongs
// to a disabled account. Implementations must not distinguish between those
// cases to avoid account-enumeration leakage.
var ErrUnauthenticated = errors.New("unauthenticated")

// AccessMode controls which capabilities a caller may list and invoke.
type AccessMode string

const (
	// AccessModeFull permits all capabilities, including mutations.
	AccessModeFull AccessMode = "full"
	// AccessModeReadOnly hides and rejects capabilities that mutate mail state.
	AccessModeReadOnly AccessMode = "readOnly"
)

// Info is the per-request authentication context. It is created by the
// resolver, never persisted, and discarded when the response completes.
type Info struct {
	// Identity is the opaque user key all mail-store lookups are scoped by.
	Identity string
	// Mode is the effective access mode for this request.
	Mode AccessMode
}

// ReadOnly reports whether the caller is limited to non-mutating capabilities.
func (i *Info) ReadOnly() bool {
	return i.Mode == AccessModeReadOnly
}

// Authenticator exchanges an opaque credential for an authenticated identity.
// It must return ErrUnauthenticated for invalid credentials and for valid
// credentials that resolve to disabled accounts.
type Authenticator interface {
	CheckAuthentication(ctx context.Context, credential string) (*Info, error)
}
