package mailcap

import (
	"context"

	"github.com/mailgate/mailgate/gateservice"
	"github.com/mailgate/mailgate/sessions"
)

func (b *binder) completions() *gateservice.CompletionRegistry {
	reg := gateservice.NewCompletionRegistry()
	// "mailbox" is the argument name tools use; "mailbox-path" and
	// "email-address" are the provider names clients can target directly.
	reg.Register("mailbox", b.completeMailboxPath)
	reg.Register("mailbox-path", b.completeMailboxPath)
	reg.Register("email-address", b.completeEmailAddress)
	return reg
}

func (b *binder) completeMailboxPath(ctx context.Context, session sessions.Session, _ string) ([]string, error) {
	return b.cfg.Service.KnownMailboxPaths(ctx, session.Identity())
}

func (b *binder) completeEmailAddress(ctx context.Context, session sessions.Session, _ string) ([]string, error) {
	return b.cfg.Service.KnownAddresses(ctx, session.Identity())
}
