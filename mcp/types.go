// Package mcp holds the wire-level types of the gateway's JSON-RPC protocol:
// method names, capability descriptors and the request/result payloads that
// travel inside JSON-RPC envelopes.
package mcp

// Method is a protocol method identifier used in JSON-RPC messages.
type Method string

const (
	// Initialization
	InitializeMethod              Method = "initialize"
	InitializedNotificationMethod Method = "notifications/initialized"

	// Tools
	ToolsListMethod Method = "tools/list"
	ToolsCallMethod Method = "tools/call"

	// Resources
	ResourcesListMethod          Method = "resources/list"
	ResourcesReadMethod          Method = "resources/read"
	ResourcesTemplatesListMethod Method = "resources/templates/list"

	// Prompts
	PromptsListMethod Method = "prompts/list"
	PromptsGetMethod  Method = "prompts/get"

	// Completion
	CompletionCompleteMethod Method = "completion/complete"
)

// LatestProtocolVersion is the protocol version the gateway speaks.
const LatestProtocolVersion = "2025-06-18"

// ImplementationInfo describes the implementation name and version.
type ImplementationInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Title   string `json:"title,omitzero"`
}

// ClientCapabilities advertises client features. The gateway accepts but does
// not act on any of them; the struct exists so initialize params round-trip.
type ClientCapabilities struct {
	Roots       map[string]any `json:"roots,omitempty"`
	Sampling    *struct{}      `json:"sampling,omitempty"`
	Elicitation *struct{}      `json:"elicitation,omitempty"`
}

// ServerCapabilities advertises the capability families the gateway serves.
type ServerCapabilities struct {
	Prompts *struct {
		ListChanged bool `json:"listChanged"`
	} `json:"prompts,omitempty"`
	Resources *struct {
		ListChanged bool `json:"listChanged"`
		Subscribe   bool `json:"subscribe"`
	} `json:"resources,omitempty"`
	Tools *struct {
		ListChanged bool `json:"listChanged"`
	} `json:"tools,omitempty"`
	Completions *struct{} `json:"completions,omitempty"`
}

// ContentBlock is a typed content part of a tool or prompt result.
type ContentBlock struct {
	Type string `json:"type"`
	// For text content
	Text string `json:"text,omitzero"`
	// For binary content
	Data     string `json:"data,omitzero"`
	MimeType string `json:"mimeType,omitzero"`
	// For embedded resources
	Resource *ResourceContents `json:"resource,omitempty"`
}

// Tool describes a callable tool and its input schema.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema ToolInputSchema `json:"inputSchema"`
}

// ToolInputSchema is a JSON-schema-like description of tool input.
type ToolInputSchema struct {
	Type                 string                    `json:"type"`
	Properties           map[string]SchemaProperty `json:"properties,omitempty"`
	Required             []string                  `json:"required,omitempty"`
	AdditionalProperties bool                      `json:"additionalProperties,omitzero"`
}

// SchemaProperty is a simplified schema node used in tool schemas.
type SchemaProperty struct {
	Type        string                    `json:"type,omitempty"`
	Description string                    `json:"description,omitzero"`
	Default     any                       `json:"default,omitempty"`
	Items       *SchemaProperty           `json:"items,omitempty"`
	Properties  map[string]SchemaProperty `json:"properties,omitempty"`
	Enum        []any                     `json:"enum,omitempty"`
}

// Resource represents an addressable resource.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitzero"`
	MimeType    string `json:"mimeType,omitzero"`
}

// ResourceTemplate describes a template for resource URIs with positional
// segments, e.g. "message:///{messageId}".
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitzero"`
	MimeType    string `json:"mimeType,omitzero"`
}

// ResourceContents is the value of a resource read: inline text or a
// base64-encoded blob depending on content type.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitzero"`
	Text     string `json:"text,omitzero"`
	Blob     string `json:"blob,omitzero"`
}

// Prompt describes a named prompt the gateway can materialize.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitzero"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes a single named prompt argument.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitzero"`
	Required    bool   `json:"required,omitzero"`
}

// Role indicates the author of a prompt message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PromptMessage is a message used in a prompt.
type PromptMessage struct {
	Role    Role         `json:"role"`
	Content ContentBlock `json:"content"`
}

// CompletionReference identifies the provider a completion request targets.
type CompletionReference struct {
	Type string `json:"type"`
	Name string `json:"name,omitzero"`
	URI  string `json:"uri,omitzero"`
}

// CompleteArgument is the argument being completed.
type CompleteArgument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Completion contains completion suggestions for a reference.
type Completion struct {
	Values  []string `json:"values"`
	Total   int      `json:"total,omitzero"`
	HasMore bool     `json:"hasMore,omitzero"`
}
