package gateservice

import (
	"context"
	"errors"
	"testing"

	"github.com/mailgate/mailgate/auth"
	"github.com/mailgate/mailgate/mcp"
	"github.com/mailgate/mailgate/sessions"
)

func newTestResources() *ResourcesContainer {
	fixed := []StaticResource{{
		Descriptor: mcp.Resource{URI: "mailbox:///", Name: "Mailboxes"},
		Handler: func(ctx context.Context, session sessions.Session, uri string, vars map[string]string) (*mcp.ReadResourceResult, error) {
			return &mcp.ReadResourceResult{Contents: []mcp.ResourceContents{{URI: uri, Text: "fixed"}}}, nil
		},
	}}
	templates := []TemplateResource{{
		Descriptor: mcp.ResourceTemplate{URITemplate: "message:///{messageId}", Name: "Message"},
		Handler: func(ctx context.Context, session sessions.Session, uri string, vars map[string]string) (*mcp.ReadResourceResult, error) {
			return &mcp.ReadResourceResult{Contents: []mcp.ResourceContents{{URI: uri, Text: vars["messageId"]}}}, nil
		},
	}}
	return NewResourcesContainer(fixed, templates)
}

func TestResourceReadFixedURI(t *testing.T) {
	c := newTestResources()
	res, err := c.Read(context.Background(), newStubSession(auth.AccessModeFull), "mailbox:///")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if res.Contents[0].Text != "fixed" {
		t.Fatalf("contents = %q", res.Contents[0].Text)
	}
}

func TestResourceReadTemplateMatch(t *testing.T) {
	c := newTestResources()
	res, err := c.Read(context.Background(), newStubSession(auth.AccessModeFull), "message:///m-42")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if res.Contents[0].Text != "m-42" {
		t.Fatalf("extracted variable = %q, want m-42", res.Contents[0].Text)
	}
}

func TestResourceReadUnknownURI(t *testing.T) {
	c := newTestResources()
	cases := []string{
		"bogus:///x",
		"message:///",         // empty variable
		"message:///a/b",      // variable spans segments
		"messages:///m-42",    // wrong scheme prefix
	}
	for _, uri := range cases {
		if _, err := c.Read(context.Background(), newStubSession(auth.AccessModeFull), uri); !errors.Is(err, ErrUnknownCapability) {
			t.Fatalf("Read(%q) err = %v, want ErrUnknownCapability", uri, err)
		}
	}
}
