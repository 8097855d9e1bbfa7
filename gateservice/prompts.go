package gateservice

import (
	"context"
	"fmt"
	"sync"

	"github.com/mailgate/mailgate/mcp"
	"github.com/mailgate/mailgate/sessions"
)

// PromptHandler renders a prompt from validated arguments.
type PromptHandler func(ctx context.Context, session sessions.Session, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error)

// StaticPrompt pairs a prompt descriptor with its handler.
type StaticPrompt struct {
	Descriptor mcp.Prompt
	Handler    PromptHandler
}

// PromptsContainer owns the registered prompt set.
type PromptsContainer struct {
	mu       sync.RWMutex
	prompts  []StaticPrompt
	handlers map[string]*StaticPrompt
}

// NewPromptsContainer constructs a container with the given prompt definitions.
func NewPromptsContainer(defs ...StaticPrompt) *PromptsContainer {
	c := &PromptsContainer{
		prompts:  make([]StaticPrompt, len(defs)),
		handlers: make(map[string]*StaticPrompt, len(defs)),
	}
	copy(c.prompts, defs)
	for i := range c.prompts {
		c.handlers[c.prompts[i].Descriptor.Name] = &c.prompts[i]
	}
	return c
}

// List returns all prompt descriptors. Prompts are read-only renderings, so
// the list is the same under every access mode.
func (c *PromptsContainer) List() []mcp.Prompt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]mcp.Prompt, 0, len(c.prompts))
	for _, p := range c.prompts {
		out = append(out, p.Descriptor)
	}
	return out
}

// Get resolves and renders a prompt, checking that every required argument is
// present before the handler runs.
func (c *PromptsContainer) Get(ctx context.Context, session sessions.Session, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("%w: missing prompt name", ErrInvalidArguments)
	}
	c.mu.RLock()
	p, ok := c.handlers[req.Name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: prompt %q", ErrUnknownCapability, req.Name)
	}
	for _, arg := range p.Descriptor.Arguments {
		if !arg.Required {
			continue
		}
		if v := req.Arguments[arg.Name]; v == "" {
			return nil, fmt.Errorf("%w: prompt %q requires argument %q", ErrInvalidArguments, req.Name, arg.Name)
		}
	}
	return p.Handler(ctx, session, req)
}
