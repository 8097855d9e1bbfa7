package maildata

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seedStore() *MemStore {
	s := NewMemStore()
	s.AddAccount("alice-token", Account{Identity: "alice@example.com"})
	s.AddAccount("bob-token", Account{Identity: "bob@example.com"})
	s.AddMailbox("alice@example.com", Mailbox{Path: "INBOX", Name: "Inbox"})
	s.AddMailbox("alice@example.com", Mailbox{Path: "Archive", Name: "Archive"})

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"m1", "m2", "m3"} {
		s.AddMessage("alice@example.com", Message{
			MessageSummary: MessageSummary{
				ID:      id,
				Mailbox: "INBOX",
				Subject: "status update",
				From:    "carol@example.com",
				To:      []string{"alice@example.com"},
				Date:    base.Add(time.Duration(i) * time.Hour),
			},
			Body: "weekly status",
		}, nil)
	}
	s.AddMessage("alice@example.com", Message{
		MessageSummary: MessageSummary{
			ID:             "m4",
			Mailbox:        "Archive",
			Subject:        "invoice",
			From:           "billing@example.com",
			Date:           base.Add(-24 * time.Hour),
			HasAttachments: true,
		},
		Body: "see attached",
		Attachments: []Attachment{
			{ID: "a1", Filename: "invoice.pdf", ContentType: "application/pdf", Size: 3},
		},
	}, map[string][]byte{"a1": []byte("pdf")})
	return s
}

func TestListMessagesOrderAndPaging(t *testing.T) {
	ctx := context.Background()
	s := seedStore()

	msgs, err := s.ListMessages(ctx, "alice@example.com", "INBOX", 0, 2)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m3" || msgs[1].ID != "m2" {
		t.Fatalf("page 1 = %v", ids(msgs))
	}

	msgs, _ = s.ListMessages(ctx, "alice@example.com", "INBOX", 2, 2)
	if len(msgs) != 1 || msgs[0].ID != "m1" {
		t.Fatalf("page 2 = %v", ids(msgs))
	}

	msgs, _ = s.ListMessages(ctx, "alice@example.com", "INBOX", 10, 2)
	if len(msgs) != 0 {
		t.Fatalf("out-of-range page = %v", ids(msgs))
	}
}

func TestOwnershipLooksLikeAbsence(t *testing.T) {
	ctx := context.Background()
	s := seedStore()

	// m1 belongs to alice; bob sees ErrNotFound, indistinguishable from a
	// message that never existed.
	if _, err := s.GetMessage(ctx, "bob@example.com", "m1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetMessage err = %v", err)
	}
	if _, err := s.GetMessage(ctx, "alice@example.com", "no-such"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetMessage err = %v", err)
	}
	if err := s.DeleteMessage(ctx, "bob@example.com", "m1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("DeleteMessage err = %v", err)
	}
	if _, err := s.GetOwnedAttachment(ctx, "bob@example.com", "m4", "a1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetOwnedAttachment err = %v", err)
	}
}

func TestSearchMessages(t *testing.T) {
	ctx := context.Background()
	s := seedStore()

	hits, err := s.SearchMessages(ctx, "alice@example.com", "invoice", 10)
	if err != nil {
		t.Fatalf("SearchMessages: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "m4" {
		t.Fatalf("hits = %v", ids(hits))
	}

	hits, _ = s.SearchMessages(ctx, "alice@example.com", "status", 2)
	if len(hits) != 2 {
		t.Fatalf("limit not applied: %v", ids(hits))
	}
}

func TestMarkAndMove(t *testing.T) {
	ctx := context.Background()
	s := seedStore()

	if err := s.MarkMessage(ctx, "alice@example.com", "m1", FlagSeen, true); err != nil {
		t.Fatalf("MarkMessage: %v", err)
	}
	m, _ := s.GetMessage(ctx, "alice@example.com", "m1")
	if len(m.Flags) != 1 || m.Flags[0] != FlagSeen {
		t.Fatalf("flags = %v", m.Flags)
	}

	// Setting the same flag twice must not duplicate it.
	_ = s.MarkMessage(ctx, "alice@example.com", "m1", FlagSeen, true)
	m, _ = s.GetMessage(ctx, "alice@example.com", "m1")
	if len(m.Flags) != 1 {
		t.Fatalf("flags duplicated: %v", m.Flags)
	}

	_ = s.MarkMessage(ctx, "alice@example.com", "m1", FlagSeen, false)
	m, _ = s.GetMessage(ctx, "alice@example.com", "m1")
	if len(m.Flags) != 0 {
		t.Fatalf("flag not cleared: %v", m.Flags)
	}

	if err := s.MoveMessage(ctx, "alice@example.com", "m1", "Archive"); err != nil {
		t.Fatalf("MoveMessage: %v", err)
	}
	m, _ = s.GetMessage(ctx, "alice@example.com", "m1")
	if m.Mailbox != "Archive" {
		t.Fatalf("mailbox = %q", m.Mailbox)
	}
}

func TestGetAttachmentUnscoped(t *testing.T) {
	ctx := context.Background()
	s := seedStore()

	content, err := s.GetAttachment(ctx, "m4", "a1")
	if err != nil {
		t.Fatalf("GetAttachment: %v", err)
	}
	if content.Filename != "invoice.pdf" || string(content.Data) != "pdf" {
		t.Fatalf("content = %+v", content)
	}

	if _, err := s.GetAttachment(ctx, "m4", "no-such"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestDeleteMessageRemovesAttachments(t *testing.T) {
	ctx := context.Background()
	s := seedStore()

	if err := s.DeleteMessage(ctx, "alice@example.com", "m4"); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	if _, err := s.GetAttachment(ctx, "m4", "a1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("attachment survived delete: %v", err)
	}
}

func TestAuthenticatorCollapsesFailures(t *testing.T) {
	ctx := context.Background()
	s := seedStore()
	s.AddAccount("sleepy-token", Account{Identity: "sleepy@example.com", Disabled: true})
	s.AddAccount("viewer-token", Account{Identity: "viewer@example.com", ReadOnly: true})

	a := NewAuthenticator(s, false)

	if _, err := a.CheckAuthentication(ctx, "bogus"); err == nil {
		t.Fatal("unknown credential authenticated")
	}
	if _, err := a.CheckAuthentication(ctx, "sleepy-token"); err == nil {
		t.Fatal("disabled account authenticated")
	}

	info, err := a.CheckAuthentication(ctx, "viewer-token")
	if err != nil {
		t.Fatalf("CheckAuthentication: %v", err)
	}
	if !info.ReadOnly() {
		t.Fatal("read-only account got full access")
	}

	// Forced read-only demotes everyone.
	forced := NewAuthenticator(s, true)
	info, err = forced.CheckAuthentication(ctx, "alice-token")
	if err != nil {
		t.Fatalf("CheckAuthentication: %v", err)
	}
	if !info.ReadOnly() {
		t.Fatal("forced read-only did not apply")
	}
}

func ids(msgs []MessageSummary) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
