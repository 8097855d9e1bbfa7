package maildata

import (
	"context"
	"fmt"

	"github.com/mailgate/mailgate/auth"
)

// NewAuthenticator adapts a Service's authenticate operation to the gateway's
// Authenticator interface. When forceReadOnly is set, every caller is limited
// to read-only mode regardless of account role.
//
// Bad credentials and disabled accounts both collapse to ErrUnauthenticated
// so the response never reveals whether an account exists.
func NewAuthenticator(svc Service, forceReadOnly bool) auth.Authenticator {
	return &serviceAuthenticator{svc: svc, forceReadOnly: forceReadOnly}
}

type serviceAuthenticator struct {
	svc           Service
	forceReadOnly bool
}

func (a *serviceAuthenticator) CheckAuthentication(ctx context.Context, credential string) (*auth.Info, error) {
	acct, err := a.svc.Authenticate(ctx, credential)
	if err != nil {
		return nil, auth.ErrUnauthenticated
	}
	if acct.Disabled {
		return nil, auth.ErrUnauthenticated
	}
	if acct.Identity == "" {
		return nil, fmt.Errorf("mail service returned empty identity")
	}
	mode := auth.AccessModeFull
	if acct.ReadOnly || a.forceReadOnly {
		mode = auth.AccessModeReadOnly
	}
	return &auth.Info{Identity: acct.Identity, Mode: mode}, nil
}
