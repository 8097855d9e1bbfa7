package mailcap

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mailgate/mailgate/gateservice"
	"github.com/mailgate/mailgate/mcp"
	"github.com/mailgate/mailgate/sessions"
)

const (
	mailboxListURI     = "mailbox:///"
	messageURITemplate = "message:///{messageId}"
)

func (b *binder) resources() *gateservice.ResourcesContainer {
	fixed := []gateservice.StaticResource{
		{
			Descriptor: mcp.Resource{
				URI:         mailboxListURI,
				Name:        "Mailboxes",
				Description: "The account's mailbox tree with message counts.",
				MimeType:    "application/json",
			},
			Handler: b.readMailboxList,
		},
	}
	templates := []gateservice.TemplateResource{
		{
			Descriptor: mcp.ResourceTemplate{
				URITemplate: messageURITemplate,
				Name:        "Message",
				Description: "A single message with full body and attachment metadata.",
				MimeType:    "application/json",
			},
			Handler: b.readMessage,
		},
	}
	return gateservice.NewResourcesContainer(fixed, templates)
}

func (b *binder) readMailboxList(ctx context.Context, session sessions.Session, uri string, _ map[string]string) (*mcp.ReadResourceResult, error) {
	boxes, err := b.cfg.Service.ListMailboxes(ctx, session.Identity())
	if err != nil {
		return nil, err
	}
	raw, err := json.MarshalIndent(map[string]any{"mailboxes": boxes}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal mailbox list: %w", err)
	}
	return &mcp.ReadResourceResult{Contents: []mcp.ResourceContents{
		{URI: uri, MimeType: "application/json", Text: string(raw)},
	}}, nil
}

func (b *binder) readMessage(ctx context.Context, session sessions.Session, uri string, vars map[string]string) (*mcp.ReadResourceResult, error) {
	msg, err := b.cfg.Service.GetMessage(ctx, session.Identity(), vars["messageId"])
	if err != nil {
		return nil, err
	}
	raw, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return &mcp.ReadResourceResult{Contents: []mcp.ResourceContents{
		{URI: uri, MimeType: "application/json", Text: string(raw)},
	}}, nil
}
