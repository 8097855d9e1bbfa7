// Package gateservice implements the gateway's capability registry: the
// immutable, process-wide sets of tools, resources and prompts the dispatcher
// advertises and executes, filtered by the caller's access mode.
package gateservice

import (
	"errors"

	"github.com/mailgate/mailgate/mcp"
)

var (
	// ErrUnknownCapability indicates the named tool, prompt or resource URI
	// is not registered.
	ErrUnknownCapability = errors.New("unknown capability")
	// ErrForbidden indicates a write-requiring capability was invoked under
	// read-only access mode.
	ErrForbidden = errors.New("forbidden in read-only mode")
	// ErrInvalidArguments indicates required arguments are missing or malformed.
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Registry aggregates the capability containers. Constructed once at startup
// and immutable thereafter.
type Registry struct {
	Tools       *ToolsContainer
	Resources   *ResourcesContainer
	Prompts     *PromptsContainer
	Completions *CompletionRegistry
}

// Capabilities summarizes the registry for an initialize result.
func (r *Registry) Capabilities() mcp.ServerCapabilities {
	var caps mcp.ServerCapabilities
	if r.Tools != nil {
		caps.Tools = &struct {
			ListChanged bool `json:"listChanged"`
		}{}
	}
	if r.Resources != nil {
		caps.Resources = &struct {
			ListChanged bool `json:"listChanged"`
			Subscribe   bool `json:"subscribe"`
		}{}
	}
	if r.Prompts != nil {
		caps.Prompts = &struct {
			ListChanged bool `json:"listChanged"`
		}{}
	}
	if r.Completions != nil {
		caps.Completions = &struct{}{}
	}
	return caps
}
