// Package dispatch routes parsed JSON-RPC requests to capability handlers and
// maps domain errors onto JSON-RPC error codes. The method set is closed:
// anything outside the enum is method-not-found, never a dynamic lookup.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mailgate/mailgate/gateservice"
	"github.com/mailgate/mailgate/internal/jsonrpc"
	"github.com/mailgate/mailgate/internal/logctx"
	"github.com/mailgate/mailgate/maildata"
	"github.com/mailgate/mailgate/mcp"
	"github.com/mailgate/mailgate/sessions"
)

// Dispatcher executes protocol requests against the capability registry.
type Dispatcher struct {
	registry *gateservice.Registry
	info     mcp.ImplementationInfo
	log      *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// New constructs a Dispatcher over the given registry.
func New(registry *gateservice.Registry, info mcp.ImplementationInfo, opts ...Option) *Dispatcher {
	d := &Dispatcher{registry: registry, info: info, log: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// InitializeResult builds the handshake result advertised to a new session.
func (d *Dispatcher) InitializeResult(protocolVersion string) *mcp.InitializeResult {
	return &mcp.InitializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    d.registry.Capabilities(),
		ServerInfo:      d.info,
	}
}

// Dispatch executes one request against the session. A nil response means the
// request was a notification and has nothing to say back. When the returned
// response carries a JSON-RPC error, the accompanying error is the domain
// error it was derived from so the transport can pick an HTTP status via
// HTTPStatus.
func (d *Dispatcher) Dispatch(ctx context.Context, session sessions.Session, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: req.Method,
		ID:     req.ID.String(),
	})

	result, err := d.execute(ctx, session, req)
	if req.IsNotification() {
		// Notifications never get a response, even on failure.
		if err != nil {
			d.log.WarnContext(ctx, "rpc.notification.failed", slog.String("err", err.Error()))
		}
		return nil, nil
	}
	if err != nil {
		return d.errorResponse(ctx, session, req, err), err
	}
	resp, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		d.log.ErrorContext(ctx, "rpc.result.marshal.failed", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil), err
	}
	return resp, nil
}

func (d *Dispatcher) execute(ctx context.Context, session sessions.Session, req *jsonrpc.Request) (any, error) {
	switch mcp.Method(req.Method) {
	case mcp.InitializedNotificationMethod:
		// Acknowledged implicitly; the session moved to active when it was
		// first loaded.
		return nil, nil

	case mcp.ToolsListMethod:
		return &mcp.ListToolsResult{Tools: d.registry.Tools.List(session.AccessMode())}, nil

	case mcp.ToolsCallMethod:
		var call mcp.CallToolRequest
		if err := unmarshalParams(req.Params, &call); err != nil {
			return nil, err
		}
		return d.registry.Tools.Call(ctx, session, &call)

	case mcp.ResourcesListMethod:
		return &mcp.ListResourcesResult{Resources: d.registry.Resources.List()}, nil

	case mcp.ResourcesTemplatesListMethod:
		return &mcp.ListResourceTemplatesResult{ResourceTemplates: d.registry.Resources.ListTemplates()}, nil

	case mcp.ResourcesReadMethod:
		var read mcp.ReadResourceRequest
		if err := unmarshalParams(req.Params, &read); err != nil {
			return nil, err
		}
		return d.registry.Resources.Read(ctx, session, read.URI)

	case mcp.PromptsListMethod:
		return &mcp.ListPromptsResult{Prompts: d.registry.Prompts.List()}, nil

	case mcp.PromptsGetMethod:
		var get mcp.GetPromptRequest
		if err := unmarshalParams(req.Params, &get); err != nil {
			return nil, err
		}
		return d.registry.Prompts.Get(ctx, session, &get)

	case mcp.CompletionCompleteMethod:
		var complete mcp.CompleteRequest
		if err := unmarshalParams(req.Params, &complete); err != nil {
			return nil, err
		}
		return d.registry.Completions.Complete(ctx, session, &complete)

	case mcp.InitializeMethod:
		// The transport handles initialize before a session exists; reaching
		// it here means the client re-sent it on a live session.
		return nil, fmt.Errorf("%w: session already initialized", gateservice.ErrInvalidArguments)

	default:
		return nil, errMethodNotFound
	}
}

var errMethodNotFound = errors.New("method not found")

// errorResponse converts a domain error into the wire shape. Internal errors
// are laundered: logged with method and identity but surfaced as a generic
// internal error so mail-store details never leak to the client.
func (d *Dispatcher) errorResponse(ctx context.Context, session sessions.Session, req *jsonrpc.Request, err error) *jsonrpc.Response {
	switch {
	case errors.Is(err, errMethodNotFound):
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
	case errors.Is(err, gateservice.ErrInvalidArguments):
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, err.Error(), nil)
	case errors.Is(err, gateservice.ErrUnknownCapability):
		// Unknown names and URIs are absent capabilities, the same class as
		// an unknown method.
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, err.Error(), nil)
	case errors.Is(err, gateservice.ErrForbidden):
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, err.Error(), nil)
	case errors.Is(err, maildata.ErrNotFound):
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "not found", nil)
	default:
		d.log.ErrorContext(ctx, "rpc.internal.error",
			slog.String("method", req.Method),
			slog.String("identity", session.Identity()),
			slog.String("err", err.Error()),
		)
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
}

// HTTPStatus maps a dispatch error onto the HTTP status accompanying the
// JSON-RPC error body.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, gateservice.ErrForbidden):
		return 403
	case errors.Is(err, errMethodNotFound),
		errors.Is(err, gateservice.ErrUnknownCapability),
		errors.Is(err, maildata.ErrNotFound):
		return 404
	case errors.Is(err, gateservice.ErrInvalidArguments):
		return 400
	default:
		return 500
	}
}

func unmarshalParams(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing params", gateservice.ErrInvalidArguments)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%w: %v", gateservice.ErrInvalidArguments, err)
	}
	return nil
}
