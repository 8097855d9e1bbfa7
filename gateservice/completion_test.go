package gateservice

import (
	"context"
	"fmt"
	"testing"

	"github.com/mailgate/mailgate/auth"
	"github.com/mailgate/mailgate/mcp"
	"github.com/mailgate/mailgate/sessions"
)

func TestCompleteUnknownProviderYieldsEmpty(t *testing.T) {
	reg := NewCompletionRegistry()
	res, err := reg.Complete(context.Background(), newStubSession(auth.AccessModeFull), &mcp.CompleteRequest{
		Argument: mcp.CompleteArgument{Name: "nope", Value: "x"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(res.Completion.Values) != 0 {
		t.Fatalf("values = %v, want empty", res.Completion.Values)
	}
}

func TestCompletePrefixFilter(t *testing.T) {
	reg := NewCompletionRegistry()
	reg.Register("mailbox", func(ctx context.Context, session sessions.Session, prefix string) ([]string, error) {
		return []string{"INBOX", "INBOX/Receipts", "Archive", "Sent"}, nil
	})

	res, err := reg.Complete(context.Background(), newStubSession(auth.AccessModeFull), &mcp.CompleteRequest{
		Argument: mcp.CompleteArgument{Name: "mailbox", Value: "in"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(res.Completion.Values) != 2 {
		t.Fatalf("values = %v, want the two INBOX entries", res.Completion.Values)
	}
}

func TestCompleteCapsValues(t *testing.T) {
	all := make([]string, 40)
	for i := range all {
		all[i] = fmt.Sprintf("box-%02d", i)
	}
	reg := NewCompletionRegistry()
	reg.Register("mailbox", func(ctx context.Context, session sessions.Session, prefix string) ([]string, error) {
		return all, nil
	})

	res, err := reg.Complete(context.Background(), newStubSession(auth.AccessModeFull), &mcp.CompleteRequest{
		Argument: mcp.CompleteArgument{Name: "mailbox"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(res.Completion.Values) != maxCompletionValues {
		t.Fatalf("got %d values, want %d", len(res.Completion.Values), maxCompletionValues)
	}
	if !res.Completion.HasMore {
		t.Fatal("hasMore = false, want true")
	}
	if res.Completion.Total != 40 {
		t.Fatalf("total = %d, want 40", res.Completion.Total)
	}
}
