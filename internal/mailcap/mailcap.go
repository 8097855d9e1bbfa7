// Package mailcap binds the mail data service to the gateway's capability
// registry: the concrete tools, resources, prompts and completion providers
// clients see. Every handler scopes its lookups to the session's identity.
package mailcap

import (
	"time"

	"github.com/mailgate/mailgate/gateservice"
	"github.com/mailgate/mailgate/maildata"
	"github.com/mailgate/mailgate/signedurl"
)

// defaultPageSize bounds listMessages when the caller gives no limit.
const defaultPageSize = 50

// maxPageSize bounds listMessages and searchMessages regardless of what the
// caller asks for.
const maxPageSize = 200

// Config carries the collaborators the capability set needs.
type Config struct {
	Service maildata.Service
	Codec   *signedurl.Codec
	// PublicEndpoint is the externally visible origin signed attachment URLs
	// are issued against, e.g. "https://mail.example.com".
	PublicEndpoint string
	// AttachmentTTL overrides the signed URL lifetime. Zero means the codec
	// default.
	AttachmentTTL time.Duration
}

// NewRegistry assembles the full capability registry for the mail domain.
func NewRegistry(cfg Config) *gateservice.Registry {
	b := &binder{cfg: cfg}
	return &gateservice.Registry{
		Tools:       b.tools(),
		Resources:   b.resources(),
		Prompts:     b.prompts(),
		Completions: b.completions(),
	}
}

// binder keeps the config in scope for the capability constructors.
type binder struct {
	cfg Config
}
