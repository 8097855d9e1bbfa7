package maildata

import (
	"context"
	"sort"
	"strings"
	"sync"
)

var _ Service = (*MemStore)(nil)

// MemStore is an in-memory Service implementation. It backs tests and the
// demo binary; it is not a mail store.
type MemStore struct {
	mu          sync.RWMutex
	accounts    map[string]*Account            // credential -> account
	mailboxes   map[string][]Mailbox           // identity -> mailboxes
	messages    map[string]map[string]*Message // identity -> message id -> message
	attachments map[string][]byte              // message id + "/" + attachment id -> bytes
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		accounts:    make(map[string]*Account),
		mailboxes:   make(map[string][]Mailbox),
		messages:    make(map[string]map[string]*Message),
		attachments: make(map[string][]byte),
	}
}

// AddAccount registers a credential and its account.
func (s *MemStore) AddAccount(credential string, acct Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := acct
	s.accounts[credential] = &a
}

// AddMailbox registers a mailbox for an identity.
func (s *MemStore) AddMailbox(identity string, mb Mailbox) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mailboxes[identity] = append(s.mailboxes[identity], mb)
}

// AddMessage stores a message owned by identity, along with any attachment
// bodies supplied keyed by attachment id.
func (s *MemStore) AddMessage(identity string, msg Message, attachmentData map[string][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.messages[identity] == nil {
		s.messages[identity] = make(map[string]*Message)
	}
	m := msg
	s.messages[identity][msg.ID] = &m
	for attID, data := range attachmentData {
		s.attachments[msg.ID+"/"+attID] = data
	}
}

func (s *MemStore) Authenticate(ctx context.Context, credential string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[credential]
	if !ok {
		return nil, ErrNotFound
	}
	a := *acct
	return &a, nil
}

func (s *MemStore) ListMailboxes(ctx context.Context, identity string) ([]Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Mailbox, len(s.mailboxes[identity]))
	copy(out, s.mailboxes[identity])
	return out, nil
}

func (s *MemStore) ListMessages(ctx context.Context, identity, mailbox string, offset, limit int) ([]MessageSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []MessageSummary
	for _, m := range s.messages[identity] {
		if mailbox == "" || m.Mailbox == mailbox {
			all = append(all, m.MessageSummary)
		}
	}
	sortSummaries(all)
	return window(all, offset, limit), nil
}

func (s *MemStore) SearchMessages(ctx context.Context, identity, query string, limit int) ([]MessageSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(query)
	var hits []MessageSummary
	for _, m := range s.messages[identity] {
		if strings.Contains(strings.ToLower(m.Subject), q) ||
			strings.Contains(strings.ToLower(m.Body), q) ||
			strings.Contains(strings.ToLower(m.From), q) {
			hits = append(hits, m.MessageSummary)
		}
	}
	sortSummaries(hits)
	return window(hits, 0, limit), nil
}

func (s *MemStore) GetMessage(ctx context.Context, identity, messageID string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[identity][messageID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *m
	return &out, nil
}

func (s *MemStore) GetThread(ctx context.Context, identity, messageID string) ([]MessageSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	root, ok := s.messages[identity][messageID]
	if !ok {
		return nil, ErrNotFound
	}
	// Thread resolution by subject is good enough for a demo store.
	subject := strings.TrimPrefix(strings.ToLower(root.Subject), "re: ")
	var thread []MessageSummary
	for _, m := range s.messages[identity] {
		if strings.TrimPrefix(strings.ToLower(m.Subject), "re: ") == subject {
			thread = append(thread, m.MessageSummary)
		}
	}
	sortSummaries(thread)
	return thread, nil
}

func (s *MemStore) MarkMessage(ctx context.Context, identity, messageID, flag string, set bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[identity][messageID]
	if !ok {
		return ErrNotFound
	}
	flags := m.Flags[:0]
	for _, f := range m.Flags {
		if f != flag {
			flags = append(flags, f)
		}
	}
	if set {
		flags = append(flags, flag)
	}
	m.Flags = flags
	return nil
}

func (s *MemStore) MoveMessage(ctx context.Context, identity, messageID, mailbox string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[identity][messageID]
	if !ok {
		return ErrNotFound
	}
	m.Mailbox = mailbox
	return nil
}

func (s *MemStore) DeleteMessage(ctx context.Context, identity, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[identity][messageID]
	if !ok {
		return ErrNotFound
	}
	for _, att := range m.Attachments {
		delete(s.attachments, messageID+"/"+att.ID)
	}
	delete(s.messages[identity], messageID)
	return nil
}

func (s *MemStore) GetOwnedAttachment(ctx context.Context, identity, messageID, attachmentID string) (*Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[identity][messageID]
	if !ok {
		return nil, ErrNotFound
	}
	for _, att := range m.Attachments {
		if att.ID == attachmentID {
			a := att
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) GetAttachment(ctx context.Context, messageID, attachmentID string) (*AttachmentContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.attachments[messageID+"/"+attachmentID]
	if !ok {
		return nil, ErrNotFound
	}
	for _, msgs := range s.messages {
		m, ok := msgs[messageID]
		if !ok {
			continue
		}
		for _, att := range m.Attachments {
			if att.ID == attachmentID {
				return &AttachmentContent{
					Filename:    att.Filename,
					ContentType: att.ContentType,
					Size:        int64(len(data)),
					Data:        append([]byte(nil), data...),
				}, nil
			}
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) KnownMailboxPaths(ctx context.Context, identity string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.mailboxes[identity]))
	for _, mb := range s.mailboxes[identity] {
		paths = append(paths, mb.Path)
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *MemStore) KnownAddresses(ctx context.Context, identity string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, m := range s.messages[identity] {
		seen[m.From] = struct{}{}
		for _, to := range m.To {
			seen[to] = struct{}{}
		}
	}
	addrs := make([]string, 0, len(seen))
	for a := range seen {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	return addrs, nil
}

func sortSummaries(msgs []MessageSummary) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Date.Equal(msgs[j].Date) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Date.After(msgs[j].Date)
	})
}

func window(msgs []MessageSummary, offset, limit int) []MessageSummary {
	if offset < 0 || offset >= len(msgs) {
		return nil
	}
	msgs = msgs[offset:]
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}
	return msgs
}
