package gateservice

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mailgate/mailgate/mcp"
	"github.com/mailgate/mailgate/sessions"
)

// ResourceHandler reads a resource identified by its full URI. For templated
// resources the variable portion has already been extracted into vars.
type ResourceHandler func(ctx context.Context, session sessions.Session, uri string, vars map[string]string) (*mcp.ReadResourceResult, error)

// StaticResource is a fixed-URI resource.
type StaticResource struct {
	Descriptor mcp.Resource
	Handler    ResourceHandler
}

// TemplateResource is a URI-template resource. Only templates whose single
// variable is the trailing path segment are supported, which covers the
// message and attachment URI shapes without pulling in a full RFC 6570
// expander.
type TemplateResource struct {
	Descriptor mcp.ResourceTemplate
	Handler    ResourceHandler
}

// ResourcesContainer owns fixed resources and URI templates.
type ResourcesContainer struct {
	mu        sync.RWMutex
	resources []StaticResource
	templates []TemplateResource
	byURI     map[string]*StaticResource
}

// NewResourcesContainer constructs a container with the given definitions.
func NewResourcesContainer(fixed []StaticResource, templates []TemplateResource) *ResourcesContainer {
	c := &ResourcesContainer{
		resources: fixed,
		templates: templates,
		byURI:     make(map[string]*StaticResource, len(fixed)),
	}
	for i := range c.resources {
		c.byURI[c.resources[i].Descriptor.URI] = &c.resources[i]
	}
	return c
}

// List returns the fixed resource descriptors.
func (c *ResourcesContainer) List() []mcp.Resource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]mcp.Resource, 0, len(c.resources))
	for _, r := range c.resources {
		out = append(out, r.Descriptor)
	}
	return out
}

// ListTemplates returns the resource template descriptors.
func (c *ResourcesContainer) ListTemplates() []mcp.ResourceTemplate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]mcp.ResourceTemplate, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t.Descriptor)
	}
	return out
}

// Read resolves a URI against fixed resources first, then templates. An URI
// matching neither yields ErrUnknownCapability.
func (c *ResourcesContainer) Read(ctx context.Context, session sessions.Session, uri string) (*mcp.ReadResourceResult, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: missing resource uri", ErrInvalidArguments)
	}
	c.mu.RLock()
	r, ok := c.byURI[uri]
	c.mu.RUnlock()
	if ok {
		return r.Handler(ctx, session, uri, nil)
	}
	for i := range c.templates {
		t := &c.templates[i]
		vars, ok := matchTrailingVariable(t.Descriptor.URITemplate, uri)
		if !ok {
			continue
		}
		return t.Handler(ctx, session, uri, vars)
	}
	return nil, fmt.Errorf("%w: resource %q", ErrUnknownCapability, uri)
}

// matchTrailingVariable matches a URI against a template of the form
// "prefix{name}" where {name} is the final segment. The variable value must
// be a single non-empty path segment.
func matchTrailingVariable(template, uri string) (map[string]string, bool) {
	open := strings.LastIndexByte(template, '{')
	if open < 0 || !strings.HasSuffix(template, "}") {
		return nil, false
	}
	prefix := template[:open]
	name := template[open+1 : len(template)-1]
	if name == "" || !strings.HasPrefix(uri, prefix) {
		return nil, false
	}
	value := uri[len(prefix):]
	if value == "" || strings.ContainsRune(value, '/') {
		return nil, false
	}
	return map[string]string{name: value}, true
}
