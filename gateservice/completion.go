package gateservice

import (
	"context"
	"strings"
	"sync"

	"github.com/mailgate/mailgate/mcp"
	"github.com/mailgate/mailgate/sessions"
)

// maxCompletionValues caps the number of values returned per completion so
// large mailboxes don't flood the client.
const maxCompletionValues = 25

// CompletionProvider returns candidate values for one argument. The provider
// sees the raw prefix; filtering and capping happen in the registry.
type CompletionProvider func(ctx context.Context, session sessions.Session, prefix string) ([]string, error)

// CompletionRegistry maps argument names to value providers. Argument names
// are shared across tools and prompts, so one provider serves every
// capability using that argument name.
type CompletionRegistry struct {
	mu        sync.RWMutex
	providers map[string]CompletionProvider
}

// NewCompletionRegistry constructs an empty registry.
func NewCompletionRegistry() *CompletionRegistry {
	return &CompletionRegistry{providers: make(map[string]CompletionProvider)}
}

// Register binds a provider to an argument name, replacing any prior binding.
func (r *CompletionRegistry) Register(argumentName string, p CompletionProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[argumentName] = p
}

// Complete resolves candidates for the request. An argument with no provider
// yields an empty completion rather than an error, so clients can probe
// freely.
func (r *CompletionRegistry) Complete(ctx context.Context, session sessions.Session, req *mcp.CompleteRequest) (*mcp.CompleteResult, error) {
	empty := &mcp.CompleteResult{Completion: mcp.Completion{Values: []string{}}}
	if req == nil || req.Argument.Name == "" {
		return empty, nil
	}
	r.mu.RLock()
	p, ok := r.providers[req.Argument.Name]
	r.mu.RUnlock()
	if !ok {
		return empty, nil
	}

	values, err := p(ctx, session, req.Argument.Value)
	if err != nil {
		return nil, err
	}

	matched := make([]string, 0, len(values))
	for _, v := range values {
		if req.Argument.Value != "" && !strings.HasPrefix(strings.ToLower(v), strings.ToLower(req.Argument.Value)) {
			continue
		}
		matched = append(matched, v)
	}
	total := len(matched)
	hasMore := total > maxCompletionValues
	if hasMore {
		matched = matched[:maxCompletionValues]
	}
	return &mcp.CompleteResult{Completion: mcp.Completion{
		Values:  matched,
		Total:   total,
		HasMore: hasMore,
	}}, nil
}
