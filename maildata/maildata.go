// Package maildata defines the boundary between the gateway and the mail
// store. The gateway consumes this interface for every mailbox, message and
// attachment operation; actual query, search and MIME handling live behind
// it. MemStore provides an in-memory implementation for tests and demos.
package maildata

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the referenced object does not exist or is not owned
// by the scoping identity. Ownership failures deliberately look identical to
// absence.
var ErrNotFound = errors.New("not found")

// Account is the result of authenticating a credential.
type Account struct {
	// Identity is the opaque user key scoping all subsequent lookups.
	Identity string
	// ReadOnly marks accounts limited to non-mutating operations.
	ReadOnly bool
	// Disabled marks suspended accounts. Callers must treat these the same
	// as failed authentication.
	Disabled bool
}

// Mailbox is a folder in the account's mailbox tree.
type Mailbox struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Total  int    `json:"total"`
	Unseen int    `json:"unseen"`
}

// MessageSummary is the listing view of a message.
type MessageSummary struct {
	ID             string    `json:"id"`
	Mailbox        string    `json:"mailbox"`
	Subject        string    `json:"subject"`
	From           string    `json:"from"`
	To             []string  `json:"to,omitempty"`
	Date           time.Time `json:"date"`
	Flags          []string  `json:"flags,omitempty"`
	Size           int64     `json:"size"`
	HasAttachments bool      `json:"hasAttachments,omitzero"`
}

// Message is the full view of a message, with body text and attachment
// metadata already extracted by the mail store.
type Message struct {
	MessageSummary
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is attachment metadata as listed on a message.
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// AttachmentContent is a fetched attachment body.
type AttachmentContent struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// Flag names accepted by MarkMessage.
const (
	FlagSeen    = "seen"
	FlagFlagged = "flagged"
)

// Service is the mail data service the gateway dispatches into. Every
// identity-scoped operation must resolve and ownership-check its identifiers
// before returning data; unowned objects yield ErrNotFound.
type Service interface {
	// Authenticate exchanges a credential for an account. Unknown credentials
	// return ErrNotFound; callers must collapse that and Disabled into a
	// single unauthenticated outcome.
	Authenticate(ctx context.Context, credential string) (*Account, error)

	ListMailboxes(ctx context.Context, identity string) ([]Mailbox, error)
	ListMessages(ctx context.Context, identity, mailbox string, offset, limit int) ([]MessageSummary, error)
	SearchMessages(ctx context.Context, identity, query string, limit int) ([]MessageSummary, error)
	GetMessage(ctx context.Context, identity, messageID string) (*Message, error)
	GetThread(ctx context.Context, identity, messageID string) ([]MessageSummary, error)

	MarkMessage(ctx context.Context, identity, messageID, flag string, set bool) error
	MoveMessage(ctx context.Context, identity, messageID, mailbox string) error
	DeleteMessage(ctx context.Context, identity, messageID string) error

	// GetOwnedAttachment is the identity-scoped attachment fetch used when
	// issuing signed URLs.
	GetOwnedAttachment(ctx context.Context, identity, messageID, attachmentID string) (*Attachment, error)
	// GetAttachment fetches attachment content without identity scoping. It
	// backs the signed-URL delivery path, where the signature itself is the
	// authorization.
	GetAttachment(ctx context.Context, messageID, attachmentID string) (*AttachmentContent, error)

	// KnownMailboxPaths and KnownAddresses feed argument completion.
	KnownMailboxPaths(ctx context.Context, identity string) ([]string, error)
	KnownAddresses(ctx context.Context, identity string) ([]string, error)
}
