// Package gatehttp is the HTTP transport: the JSON-RPC endpoint with its
// session routing and streaming responses, and the unauthenticated signed
// attachment delivery endpoint.
package gatehttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/elnormous/contenttype"

	"github.com/mailgate/mailgate/auth"
	"github.com/mailgate/mailgate/internal/dispatch"
	"github.com/mailgate/mailgate/internal/jsonrpc"
	"github.com/mailgate/mailgate/internal/logctx"
	"github.com/mailgate/mailgate/maildata"
	"github.com/mailgate/mailgate/mcp"
	"github.com/mailgate/mailgate/sessions"
	"github.com/mailgate/mailgate/signedurl"
)

const (
	// SessionIDHeader carries the session id on requests and on initialize
	// responses.
	SessionIDHeader = "Mailgate-Session-Id"

	lastEventIDHeader = "Last-Event-ID"

	// maxRequestBody bounds the JSON-RPC request body.
	maxRequestBody = 4 << 20
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

// Handler serves the gateway's HTTP surface. Construct with New and mount as
// a regular http.Handler.
type Handler struct {
	mux *http.ServeMux
	log *slog.Logger

	authenticator auth.Authenticator
	sources       []auth.CredentialSource
	manager       *sessions.Manager
	dispatcher    *dispatch.Dispatcher
	codec         *signedurl.Codec
	mail          maildata.Service

	rpcPath   string
	stateless bool
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler's logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithRPCPath overrides the JSON-RPC endpoint path (default "/mcp").
func WithRPCPath(path string) Option {
	return func(h *Handler) { h.rpcPath = path }
}

// WithStateless serves every request on a one-shot session: no session ids
// are issued or accepted and nothing is persisted between requests.
func WithStateless() Option {
	return func(h *Handler) { h.stateless = true }
}

// WithCredentialSources overrides the credential resolution chain.
func WithCredentialSources(sources []auth.CredentialSource) Option {
	return func(h *Handler) { h.sources = sources }
}

// New wires the transport around its collaborators.
func New(authenticator auth.Authenticator, manager *sessions.Manager, dispatcher *dispatch.Dispatcher, codec *signedurl.Codec, mail maildata.Service, opts ...Option) *Handler {
	h := &Handler{
		log:           slog.Default(),
		authenticator: authenticator,
		sources:       auth.DefaultSources(),
		manager:       manager,
		dispatcher:    dispatcher,
		codec:         codec,
		mail:          mail,
		rpcPath:       "/mcp",
	}
	for _, opt := range opts {
		opt(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+h.rpcPath, h.handlePost)
	mux.HandleFunc("POST "+h.rpcPath+"/{credential}", h.handlePost)
	mux.HandleFunc("GET "+h.rpcPath, h.handleStream)
	mux.HandleFunc("GET "+h.rpcPath+"/{credential}", h.handleStream)
	mux.HandleFunc("DELETE "+h.rpcPath, h.handleDelete)
	mux.HandleFunc("DELETE "+h.rpcPath+"/{credential}", h.handleDelete)
	mux.HandleFunc(fmt.Sprintf("GET /%s/{messageId}/{attachmentId}/{expires}/{sig}/{filename}", codec.PathPrefix()), h.handleAttachment)
	h.mux = mux
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		Method:     r.Method,
		Path:       r.URL.Path,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
	})
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

// checkAuthentication resolves the credential chain and exchanges the result
// for an identity. It writes the error response itself and returns nil when
// the request must not proceed.
func (h *Handler) checkAuthentication(ctx context.Context, w http.ResponseWriter, r *http.Request) *auth.Info {
	credential, ok := auth.ResolveCredential(r, h.sources)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "missing credentials")
		h.log.InfoContext(ctx, "auth.credential.missing")
		return nil
	}
	info, err := h.authenticator.CheckAuthentication(ctx, credential)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthenticated) {
			writeJSONError(w, http.StatusUnauthorized, "invalid credentials")
			h.log.InfoContext(ctx, "auth.fail")
		} else {
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			h.log.ErrorContext(ctx, "auth.error", slog.String("err", err.Error()))
		}
		return nil
	}
	return info
}

// handlePost serves the JSON-RPC endpoint: initialize handshakes, requests
// and notifications.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.post.start")

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if isJSONArray(body) {
		h.writeRPCError(w, http.StatusBadRequest, nil, jsonrpc.ErrorCodeInvalidRequest, "batch requests are not supported")
		return
	}
	req, err := jsonrpc.Parse(body)
	if err != nil {
		h.writeRPCError(w, http.StatusBadRequest, nil, jsonrpc.ErrorCodeParseError, "parse error")
		h.log.WarnContext(ctx, "jsonrpc.parse.fail", slog.String("err", err.Error()))
		return
	}

	info := h.checkAuthentication(ctx, w, r)
	if info == nil {
		return
	}

	if mcp.Method(req.Method) == mcp.InitializeMethod {
		h.handleInitialize(ctx, w, r, info, req)
		return
	}

	sess, ok := h.routeSession(ctx, w, r, info)
	if !ok {
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{
		SessionID:  sess.SessionID(),
		Identity:   sess.Identity(),
		AccessMode: string(sess.AccessMode()),
		State:      sess.State(),
	})

	resp, dispatchErr := h.dispatcher.Dispatch(ctx, sess, req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "notification.inbound.ok", slog.Duration("dur", time.Since(start)))
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		h.log.ErrorContext(ctx, "response.marshal.fail", slog.String("err", err.Error()))
		return
	}

	if acceptsEventStream(r) {
		eventID := sess.Transport().Publish(payload)
		f, fok := w.(http.Flusher)
		if !fok {
			writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}
		w.Header().Set("Content-Type", eventStreamMediaType.String())
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}
		if err := writeSSEEvent(wf, eventID, payload); err != nil {
			h.log.WarnContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
		}
		h.log.InfoContext(ctx, "http.post.ok", slog.Duration("dur", time.Since(start)))
		return
	}

	status := http.StatusOK
	if dispatchErr != nil {
		status = dispatch.HTTPStatus(dispatchErr)
	}
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_, _ = w.Write(payload)
	h.log.InfoContext(ctx, "http.post.ok", slog.Duration("dur", time.Since(start)))
}

// handleInitialize performs the handshake: mints a session, advertises
// capabilities, and returns the session id in the response header.
func (h *Handler) handleInitialize(ctx context.Context, w http.ResponseWriter, r *http.Request, info *auth.Info, req *jsonrpc.Request) {
	if r.Header.Get(SessionIDHeader) != "" {
		h.writeRPCError(w, http.StatusBadRequest, req.ID, jsonrpc.ErrorCodeInvalidRequest, "initialize must not carry a session id")
		return
	}
	var initReq mcp.InitializeRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &initReq); err != nil {
			h.writeRPCError(w, http.StatusBadRequest, req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid initialize params")
			return
		}
	}
	protocolVersion := initReq.ProtocolVersion
	if protocolVersion != mcp.LatestProtocolVersion {
		// Unknown client version; answer with the version we speak and let
		// the client decide whether to proceed.
		protocolVersion = mcp.LatestProtocolVersion
	}

	var sess *sessions.Handle
	if h.stateless {
		sess = h.manager.Ephemeral(info, protocolVersion)
	} else {
		var err error
		sess, err = h.manager.Initialize(ctx, info, protocolVersion)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			h.log.ErrorContext(ctx, "session.initialize.fail", slog.String("err", err.Error()))
			return
		}
		w.Header().Set(SessionIDHeader, sess.SessionID())
	}

	resp, err := jsonrpc.NewResultResponse(req.ID, h.dispatcher.InitializeResult(protocolVersion))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
	h.log.InfoContext(ctx, "session.initialize.ok",
		slog.String("session_id", sess.SessionID()),
		slog.String("identity", sess.Identity()),
	)
}

// routeSession resolves the session a non-initialize request belongs to. It
// writes the error response itself when routing fails.
func (h *Handler) routeSession(ctx context.Context, w http.ResponseWriter, r *http.Request, info *auth.Info) (*sessions.Handle, bool) {
	if h.stateless {
		return h.manager.Ephemeral(info, mcp.LatestProtocolVersion), true
	}
	sessionID := r.Header.Get(SessionIDHeader)
	if sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "no session, initialize first")
		return nil, false
	}
	sess, err := h.manager.Load(ctx, sessionID, info)
	if err != nil {
		if errors.Is(err, sessions.ErrSessionNotFound) {
			writeJSONError(w, http.StatusBadRequest, "no session, initialize first")
		} else {
			writeJSONError(w, http.StatusInternalServerError, "internal error")
			h.log.ErrorContext(ctx, "session.load.fail", slog.String("err", err.Error()))
		}
		return nil, false
	}
	return sess, true
}

// handleStream serves the long-lived SSE stream for an active session,
// resuming after Last-Event-ID on reconnect.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}
	if h.stateless {
		writeJSONError(w, http.StatusBadRequest, "streaming is unavailable in stateless mode")
		return
	}

	info := h.checkAuthentication(ctx, w, r)
	if info == nil {
		return
	}
	sess, ok := h.routeSession(ctx, w, r, info)
	if !ok {
		return
	}

	f, fok := w.(http.Flusher)
	if !fok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	f.Flush()

	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}
	lastEventID := r.Header.Get(lastEventIDHeader)

	err := sess.Transport().Stream(ctx, lastEventID, func(ctx context.Context, eventID string, data []byte) error {
		return writeSSEEvent(wf, eventID, data)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		h.log.WarnContext(ctx, "sse.stream.end", slog.String("err", err.Error()))
	}
}

// handleDelete tears down the caller's session.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.stateless {
		writeJSONError(w, http.StatusBadRequest, "no sessions in stateless mode")
		return
	}
	info := h.checkAuthentication(ctx, w, r)
	if info == nil {
		return
	}
	// Load first so only the owning identity can close the session.
	sess, ok := h.routeSession(ctx, w, r, info)
	if !ok {
		return
	}
	if err := h.manager.Close(ctx, sess.SessionID()); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		h.log.ErrorContext(ctx, "session.delete.fail", slog.String("err", err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeRPCError writes a JSON-RPC error envelope with the given HTTP status.
func (h *Handler) writeRPCError(w http.ResponseWriter, status int, id *jsonrpc.RequestID, code jsonrpc.ErrorCode, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(jsonrpc.NewErrorResponse(id, code, msg, nil))
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	if ct := w.Header().Get("Content-Type"); ct == "" || ct == jsonMediaType.String() {
		w.Header().Set("Content-Type", jsonMediaType.String())
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

func acceptsEventStream(r *http.Request) bool {
	if r.Header.Get("Accept") == "" {
		return false
	}
	_, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes)
	return err == nil
}

func isJSONArray(body []byte) bool {
	for _, b := range body {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}

// lockedWriteFlusher serializes concurrent writes and flushes on a streaming
// response and refuses to write after the request context is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

func writeSSEEvent(wf *lockedWriteFlusher, eventID string, payload []byte) error {
	if eventID != "" {
		if _, err := fmt.Fprintf(wf, "id: %s\n", eventID); err != nil {
			return fmt.Errorf("failed to write SSE event id: %w", err)
		}
	}
	if _, err := wf.Write([]byte("data: ")); err != nil {
		return fmt.Errorf("failed to write SSE data prefix: %w", err)
	}
	if _, err := wf.Write(payload); err != nil {
		return fmt.Errorf("failed to write SSE payload: %w", err)
	}
	if _, err := wf.Write([]byte("\n\n")); err != nil {
		return fmt.Errorf("failed to write SSE frame terminator: %w", err)
	}
	wf.Flush()
	return nil
}
