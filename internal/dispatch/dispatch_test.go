package dispatch

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mailgate/mailgate/auth"
	"github.com/mailgate/mailgate/internal/jsonrpc"
	"github.com/mailgate/mailgate/internal/mailcap"
	"github.com/mailgate/mailgate/maildata"
	"github.com/mailgate/mailgate/mcp"
	"github.com/mailgate/mailgate/sessions"
	"github.com/mailgate/mailgate/signedurl"
)

type fakeSession struct {
	who  string
	mode auth.AccessMode
}

var _ sessions.Session = (*fakeSession)(nil)

func (s *fakeSession) SessionID() string           { return "sess-1" }
func (s *fakeSession) Identity() string            { return s.who }
func (s *fakeSession) AccessMode() auth.AccessMode { return s.mode }
func (s *fakeSession) State() sessions.State       { return sessions.StateActive }
func (s *fakeSession) PutData(ctx context.Context, key string, value []byte) error {
	return nil
}
func (s *fakeSession) GetData(ctx context.Context, key string) ([]byte, error) {
	return nil, sessions.ErrSessionNotFound
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *maildata.MemStore) {
	t.Helper()
	store := maildata.NewMemStore()
	store.AddAccount("alice-token", maildata.Account{Identity: "alice@example.com"})
	store.AddMessage("alice@example.com", maildata.Message{
		MessageSummary: maildata.MessageSummary{ID: "m1", Mailbox: "INBOX", Subject: "hello", From: "bob@example.com"},
		Body:           "hi",
	}, nil)

	codec, err := signedurl.New(signedurl.StaticSecret("secret"))
	if err != nil {
		t.Fatalf("signedurl.New: %v", err)
	}
	registry := mailcap.NewRegistry(mailcap.Config{
		Service:        store,
		Codec:          codec,
		PublicEndpoint: "http://localhost:8080",
	})
	return New(registry, mcp.ImplementationInfo{Name: "mailgate", Version: "test"}), store
}

func makeRequest(t *testing.T, method string, params any) *jsonrpc.Request {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		raw = b
	}
	id := jsonrpc.NewRequestID("1")
	return &jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, Method: method, Params: raw, ID: id}
}

func TestDispatchUnknownMethod(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := &fakeSession{who: "alice@example.com", mode: auth.AccessModeFull}

	resp, dispatchErr := d.Dispatch(context.Background(), sess, makeRequest(t, "tools/destroy", nil))
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("error = %+v, want method not found", resp.Error)
	}
	// A method outside the protocol is an absent capability, not a malformed
	// request.
	if HTTPStatus(dispatchErr) != 404 {
		t.Fatalf("status = %d, want 404", HTTPStatus(dispatchErr))
	}
}

func TestDispatchUnknownToolIsMethodNotFoundClass(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := &fakeSession{who: "alice@example.com", mode: auth.AccessModeFull}

	resp, dispatchErr := d.Dispatch(context.Background(), sess, makeRequest(t, "tools/call", mcp.CallToolRequest{
		Name:      "noSuchTool",
		Arguments: json.RawMessage(`{}`),
	}))
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("error = %+v, want method-not-found class", resp.Error)
	}
	if HTTPStatus(dispatchErr) != 404 {
		t.Fatalf("status = %d, want 404", HTTPStatus(dispatchErr))
	}
}

func TestDispatchToolsListRespectsAccessMode(t *testing.T) {
	d, _ := newTestDispatcher(t)

	listTools := func(mode auth.AccessMode) []mcp.Tool {
		sess := &fakeSession{who: "alice@example.com", mode: mode}
		resp, err := d.Dispatch(context.Background(), sess, makeRequest(t, "tools/list", nil))
		if err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
		var result mcp.ListToolsResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			t.Fatalf("unmarshal result: %v", err)
		}
		return result.Tools
	}

	names := func(tools []mcp.Tool) map[string]bool {
		m := make(map[string]bool, len(tools))
		for _, tool := range tools {
			m[tool.Name] = true
		}
		return m
	}

	full := names(listTools(auth.AccessModeFull))
	if !full["deleteMessage"] || !full["getMessage"] {
		t.Fatalf("full mode tools = %v", full)
	}

	ro := names(listTools(auth.AccessModeReadOnly))
	if ro["deleteMessage"] || ro["markMessage"] || ro["moveMessage"] {
		t.Fatalf("read-only mode leaked write tools: %v", ro)
	}
	if !ro["getMessage"] || !ro["listMailboxes"] {
		t.Fatalf("read-only mode missing read tools: %v", ro)
	}
}

func TestDispatchWriteToolForbiddenInReadOnly(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := &fakeSession{who: "alice@example.com", mode: auth.AccessModeReadOnly}

	resp, dispatchErr := d.Dispatch(context.Background(), sess, makeRequest(t, "tools/call", mcp.CallToolRequest{
		Name:      "deleteMessage",
		Arguments: json.RawMessage(`{"messageId":"m1"}`),
	}))
	if resp.Error == nil {
		t.Fatal("expected error response")
	}
	if HTTPStatus(dispatchErr) != 403 {
		t.Fatalf("status = %d, want 403", HTTPStatus(dispatchErr))
	}
}

func TestDispatchUnownedMessageIsNotFoundNotForbidden(t *testing.T) {
	d, store := newTestDispatcher(t)
	store.AddAccount("eve-token", maildata.Account{Identity: "eve@example.com"})
	sess := &fakeSession{who: "eve@example.com", mode: auth.AccessModeFull}

	// m1 belongs to alice. Eve must see plain absence, not a permission error.
	resp, dispatchErr := d.Dispatch(context.Background(), sess, makeRequest(t, "tools/call", mcp.CallToolRequest{
		Name:      "getMessage",
		Arguments: json.RawMessage(`{"messageId":"m1"}`),
	}))
	if resp.Error == nil {
		t.Fatal("expected error response")
	}
	if resp.Error.Message != "not found" {
		t.Fatalf("message = %q, want generic not found", resp.Error.Message)
	}
	if strings.Contains(strings.ToLower(resp.Error.Message), "forbidden") {
		t.Fatalf("ownership failure leaked as permission error: %q", resp.Error.Message)
	}
	if HTTPStatus(dispatchErr) != 404 {
		t.Fatalf("status = %d, want 404", HTTPStatus(dispatchErr))
	}
}

func TestDispatchNotificationHasNoResponse(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := &fakeSession{who: "alice@example.com", mode: auth.AccessModeFull}

	req := &jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, Method: "notifications/initialized"}
	resp, err := d.Dispatch(context.Background(), sess, req)
	if resp != nil || err != nil {
		t.Fatalf("Dispatch = (%v, %v), want (nil, nil)", resp, err)
	}
}

func TestDispatchInternalErrorsAreLaundered(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := &fakeSession{who: "alice@example.com", mode: auth.AccessModeFull}

	// Missing params on tools/call is invalid params, not internal.
	resp, _ := d.Dispatch(context.Background(), sess, makeRequest(t, "tools/call", nil))
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeInvalidParams {
		t.Fatalf("error = %+v, want invalid params", resp.Error)
	}
}

func TestDispatchPromptsAndResources(t *testing.T) {
	d, _ := newTestDispatcher(t)
	sess := &fakeSession{who: "alice@example.com", mode: auth.AccessModeFull}

	resp, err := d.Dispatch(context.Background(), sess, makeRequest(t, "prompts/get", mcp.GetPromptRequest{
		Name:      "summarize_message",
		Arguments: map[string]string{"messageId": "m1"},
	}))
	if err != nil {
		t.Fatalf("prompts/get: %v", err)
	}
	var prompt mcp.GetPromptResult
	if err := json.Unmarshal(resp.Result, &prompt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(prompt.Messages) == 0 || !strings.Contains(prompt.Messages[0].Content.Text, "hello") {
		t.Fatalf("prompt did not include the message subject: %+v", prompt)
	}

	resp, err = d.Dispatch(context.Background(), sess, makeRequest(t, "resources/read", mcp.ReadResourceRequest{
		URI: "message:///m1",
	}))
	if err != nil {
		t.Fatalf("resources/read: %v", err)
	}
	var read mcp.ReadResourceResult
	if err := json.Unmarshal(resp.Result, &read); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(read.Contents) != 1 || !strings.Contains(read.Contents[0].Text, "hello") {
		t.Fatalf("resource read = %+v", read)
	}
}
