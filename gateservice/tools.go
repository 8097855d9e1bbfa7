package gateservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/mailgate/mailgate/auth"
	"github.com/mailgate/mailgate/mcp"
	"github.com/mailgate/mailgate/sessions"
)

// ToolHandler is the function signature used to handle a tool invocation.
type ToolHandler func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error)

// StaticTool pairs a tool descriptor with its handler and write policy.
type StaticTool struct {
	Descriptor mcp.Tool
	// RequiresWrite hides the tool from read-only listings and rejects
	// read-only invocations.
	RequiresWrite bool
	Handler       ToolHandler
}

// ToolsContainer owns the registered tool set. The set is fixed after
// construction; the lock only guards the map against racing first reads.
type ToolsContainer struct {
	mu       sync.RWMutex
	tools    []StaticTool
	handlers map[string]*StaticTool
}

// NewToolsContainer constructs a container with the given tool definitions.
func NewToolsContainer(defs ...StaticTool) *ToolsContainer {
	c := &ToolsContainer{
		tools:    make([]StaticTool, len(defs)),
		handlers: make(map[string]*StaticTool, len(defs)),
	}
	// Fill the slice completely before taking element pointers so the map
	// never aliases a reallocated backing array.
	copy(c.tools, defs)
	for i := range c.tools {
		// last write wins on duplicate names
		c.handlers[c.tools[i].Descriptor.Name] = &c.tools[i]
	}
	return c
}

// List returns the descriptors visible under the given access mode. Tools
// flagged RequiresWrite are omitted in read-only mode.
func (c *ToolsContainer) List(mode auth.AccessMode) []mcp.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]mcp.Tool, 0, len(c.tools))
	for _, t := range c.tools {
		if t.RequiresWrite && mode == auth.AccessModeReadOnly {
			continue
		}
		out = append(out, t.Descriptor)
	}
	return out
}

// Resolve returns the registered tool or ErrUnknownCapability.
func (c *ToolsContainer) Resolve(name string) (*StaticTool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: tool %q", ErrUnknownCapability, name)
	}
	return t, nil
}

// Call dispatches a request to the named tool, enforcing access mode before
// the handler runs.
func (c *ToolsContainer) Call(ctx context.Context, session sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("%w: missing tool name", ErrInvalidArguments)
	}
	t, err := c.Resolve(req.Name)
	if err != nil {
		return nil, err
	}
	if t.RequiresWrite && session.AccessMode() == auth.AccessModeReadOnly {
		return nil, fmt.Errorf("%w: tool %q", ErrForbidden, req.Name)
	}
	return t.Handler(ctx, session, req)
}

// ToolOption configures NewTool behavior.
type ToolOption func(*toolConfig)

type toolConfig struct {
	description               string
	requiresWrite             bool
	allowAdditionalProperties bool // default false (strict)
}

// WithToolDescription sets the tool description used in listings.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithRequiresWrite marks the tool as mutating: hidden and rejected under
// read-only access mode.
func WithRequiresWrite() ToolOption {
	return func(c *toolConfig) { c.requiresWrite = true }
}

// WithToolAllowAdditionalProperties controls whether unknown fields are allowed.
// When false (default), the generated schema sets additionalProperties=false
// and runtime decoding rejects unknown fields.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditionalProperties = allow }
}

// NewTool constructs a StaticTool from a typed args struct A. It reflects a
// JSON Schema from A, down-converts it to the simplified ToolInputSchema, and
// wraps the handler with runtime JSON decoding.
func NewTool[A any](name string, fn func(ctx context.Context, session sessions.Session, args A) (*mcp.CallToolResult, error), opts ...ToolOption) StaticTool {
	cfg := toolConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	desc := mcp.Tool{
		Name:        name,
		Description: cfg.description,
		InputSchema: reflectInputSchema[A](cfg.allowAdditionalProperties),
	}

	handler := func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var a A
		if len(req.Arguments) > 0 {
			if cfg.allowAdditionalProperties {
				if err := json.Unmarshal(req.Arguments, &a); err != nil {
					return Errorf("invalid arguments: %v", err), nil
				}
			} else {
				dec := json.NewDecoder(bytes.NewReader(req.Arguments))
				dec.DisallowUnknownFields()
				if err := dec.Decode(&a); err != nil {
					return Errorf("invalid arguments: %v", err), nil
				}
			}
		}
		return fn(ctx, session, a)
	}

	return StaticTool{Descriptor: desc, RequiresWrite: cfg.requiresWrite, Handler: handler}
}

// reflectInputSchema reflects a Go type A into a jsonschema.Schema and
// converts it to the simplified mcp.ToolInputSchema.
func reflectInputSchema[A any](allowAdditional bool) mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference:            true, // inline defs
		ExpandedStruct:            true, // put struct at root
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.Reflect(new(A))

	if s == nil || s.Type != "object" {
		return mcp.ToolInputSchema{
			Type:                 "object",
			Properties:           map[string]mcp.SchemaProperty{},
			AdditionalProperties: allowAdditional,
		}
	}

	props := make(map[string]mcp.SchemaProperty)
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			props[el.Key] = toSchemaProperty(el.Value)
		}
	}
	var required []string
	if len(s.Required) > 0 {
		required = append(required, s.Required...)
	}

	return mcp.ToolInputSchema{
		Type:                 "object",
		Properties:           props,
		Required:             required,
		AdditionalProperties: allowAdditional,
	}
}

// toSchemaProperty recursively maps a jsonschema.Schema node to the
// simplified SchemaProperty.
func toSchemaProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
		Default:     s.Default,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toSchemaProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		m := make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			m[el.Key] = toSchemaProperty(el.Value)
		}
		p.Properties = m
	}
	return p
}

// TextResult builds a single-text-block CallToolResult.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: s}}}
}

// JSONResult marshals v into a single text block.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return TextResult(string(b)), nil
}

// Errorf returns an error CallToolResult with a single text block and IsError=true.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: fmt.Sprintf(format, a...)}},
		IsError: true,
	}
}
