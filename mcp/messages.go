package mcp

import "encoding/json"

// InitializeRequest starts the protocol handshake.
type InitializeRequest struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ImplementationInfo `json:"clientInfo"`
}

// InitializeResult returns the negotiated protocol version and the capability
// summary for the session's access mode.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ImplementationInfo `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitzero"`
}

// ListToolsResult returns the tools visible to the session.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolRequest is the received representation of a tool call.
type CallToolRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult wraps tool output in the uniform content envelope.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitzero"`
}

// ListResourcesResult returns the advertised resources.
type ListResourcesResult struct {
	Resources []Resource `json:"resources"`
}

// ListResourceTemplatesResult returns the advertised resource templates.
type ListResourceTemplatesResult struct {
	ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
}

// ReadResourceRequest requests the contents of a resource by URI.
type ReadResourceRequest struct {
	URI string `json:"uri"`
}

// ReadResourceResult wraps resource contents in the uniform envelope.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

// ListPromptsResult returns the advertised prompts.
type ListPromptsResult struct {
	Prompts []Prompt `json:"prompts"`
}

// GetPromptRequest requests a prompt by name with named arguments.
type GetPromptRequest struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// GetPromptResult returns the materialized prompt messages.
type GetPromptResult struct {
	Description string          `json:"description,omitzero"`
	Messages    []PromptMessage `json:"messages"`
}

// CompleteRequest requests completion suggestions for a reference argument.
type CompleteRequest struct {
	Ref      CompletionReference `json:"ref"`
	Argument CompleteArgument    `json:"argument"`
}

// CompleteResult contains completion suggestions.
type CompleteResult struct {
	Completion Completion `json:"completion"`
}
