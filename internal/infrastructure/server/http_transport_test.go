package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arranmoreferry/mcp-server/internal/domain/shared"
	"github.com/arranmoreferry/mcp-server/internal/infrastructure/logging"
)

type transportFixture struct {
	handler  *StreamableHTTPHandler
	registry *SessionRegistry
	catalog  *ToolCatalog
	streamer *NotificationStreamer
	idCalls  *int
}

func newTransportFixture(t *testing.T) *transportFixture {
	t.Helper()

	idCalls := 0
	registry := NewSessionRegistry(logging.NewNop(), WithIDGenerator(func() string {
		idCalls++
		return fmt.Sprintf("session-%d", idCalls)
	}))
	catalog := NewToolCatalog(logging.NewNop())
	streamer := NewNotificationStreamer(registry, catalog, logging.NewNop(),
		WithStreamInterval(10*time.Millisecond),
	)

	catalog.Register(shared.Tool{
		Name:        "get-uptime",
		Description: "Get the amount of time the server has been running",
		InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
	}, func(ctx context.Context, args map[string]interface{}) ([]shared.Content, error) {
		return []shared.Content{shared.NewTextContent("42s")}, nil
	})

	info := shared.ServerInfo{Name: "test-server", Version: "0.0.1"}
	handler := NewStreamableHTTPHandler(registry, catalog, streamer, info, logging.NewNop())

	return &transportFixture{
		handler:  handler,
		registry: registry,
		catalog:  catalog,
		streamer: streamer,
		idCalls:  &idCalls,
	}
}

func (f *transportFixture) post(t *testing.T, sessionID string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(HeaderSessionID, sessionID)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *transportFixture) initialize(t *testing.T) string {
	t.Helper()
	rec := f.post(t, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test-client","version":"1.0.0"}}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := rec.Header().Get(HeaderSessionID)
	require.NotEmpty(t, sessionID)
	return sessionID
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) shared.JSONRPCResponse {
	t.Helper()
	var resp shared.JSONRPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestStreamableHTTPHandler_InitializeCreatesSession(t *testing.T) {
	f := newTransportFixture(t)

	sessionID := f.initialize(t)

	// Exactly one session exists and the generator fired exactly once.
	assert.Equal(t, 1, f.registry.Count())
	assert.Equal(t, 1, *f.idCalls)

	sess, err := f.registry.Lookup(sessionID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, sess.ID())
}

func TestStreamableHTTPHandler_InitializeResult(t *testing.T) {
	f := newTransportFixture(t)

	rec := f.post(t, "", `{"jsonrpc":"2.0","id":"init-1","method":"initialize","params":{}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Equal(t, "init-1", resp.ID)
	assert.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, shared.ProtocolVersion, result["protocolVersion"])

	serverInfo, ok := result["serverInfo"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "test-server", serverInfo["name"])
}

func TestStreamableHTTPHandler_PostWithoutSessionRejected(t *testing.T) {
	f := newTransportFixture(t)

	rec := f.post(t, "", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(shared.BadRequest), resp.Error.Code)
	assert.Equal(t, "Bad Request: no valid session ID provided", resp.Error.Message)

	// No session was created and no identifier was generated.
	assert.Equal(t, 0, f.registry.Count())
	assert.Equal(t, 0, *f.idCalls)
}

func TestStreamableHTTPHandler_PostUnknownSessionRejected(t *testing.T) {
	f := newTransportFixture(t)

	rec := f.post(t, "never-issued", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(shared.BadRequest), resp.Error.Code)
}

func TestStreamableHTTPHandler_MalformedBodyRejected(t *testing.T) {
	f := newTransportFixture(t)

	// A sessionless POST with an unparseable body is a transport-level
	// rejection like any other, not a JSON-RPC parse error.
	rec := f.post(t, "", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, f.registry.Count())

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(shared.BadRequest), resp.Error.Code)
	assert.Equal(t, "Bad Request: no valid session ID provided", resp.Error.Message)
}

func TestStreamableHTTPHandler_UnknownSessionMalformedBodyRejected(t *testing.T) {
	f := newTransportFixture(t)

	// The session gate fires before the body is parsed.
	rec := f.post(t, "never-issued", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(shared.BadRequest), resp.Error.Code)
	assert.Equal(t, "Bad Request: invalid session ID or method", resp.Error.Message)
}

func TestStreamableHTTPHandler_KnownSessionMalformedBodyRejected(t *testing.T) {
	f := newTransportFixture(t)
	sessionID := f.initialize(t)

	rec := f.post(t, sessionID, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(shared.BadRequest), resp.Error.Code)

	// The session itself survives a bad body.
	assert.Equal(t, 1, f.registry.Count())
}

func TestStreamableHTTPHandler_ToolsList(t *testing.T) {
	f := newTransportFixture(t)
	sessionID := f.initialize(t)

	rec := f.post(t, sessionID, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	tools, ok := result["tools"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, tools)

	first, ok := tools[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "get-uptime", first["name"])
}

func TestStreamableHTTPHandler_CallTool(t *testing.T) {
	f := newTransportFixture(t)
	sessionID := f.initialize(t)

	rec := f.post(t, sessionID, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get-uptime","arguments":{}}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)

	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	assert.Contains(t, string(data), "42s")
}

func TestStreamableHTTPHandler_CallToolMissingArguments(t *testing.T) {
	f := newTransportFixture(t)
	sessionID := f.initialize(t)

	// Omitted arguments come back as a failed content payload, not as a
	// protocol error.
	rec := f.post(t, sessionID, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"get-uptime"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)

	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	assert.Contains(t, string(data), "no arguments provided")
}

func TestStreamableHTTPHandler_CallToolUnknownName(t *testing.T) {
	f := newTransportFixture(t)
	sessionID := f.initialize(t)

	rec := f.post(t, sessionID, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"no-such-tool","arguments":{}}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.Nil(t, resp.Error)

	data, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	assert.Contains(t, string(data), "not found")
}

func TestStreamableHTTPHandler_MethodNotFound(t *testing.T) {
	f := newTransportFixture(t)
	sessionID := f.initialize(t)

	rec := f.post(t, sessionID, `{"jsonrpc":"2.0","id":6,"method":"resources/list"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(shared.MethodNotFound), resp.Error.Code)
}

func TestStreamableHTTPHandler_NotificationOnlyBody(t *testing.T) {
	f := newTransportFixture(t)
	sessionID := f.initialize(t)

	rec := f.post(t, sessionID, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestStreamableHTTPHandler_BatchInitialize(t *testing.T) {
	f := newTransportFixture(t)

	// A batch containing an initialize request is a valid way to open a
	// session; the notification in it produces no response entry.
	rec := f.post(t, "", `[{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}},{"jsonrpc":"2.0","method":"notifications/initialized"}]`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderSessionID))

	var responses []shared.JSONRPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &responses))
	require.Len(t, responses, 1)
	assert.Nil(t, responses[0].Error)
}

func TestStreamableHTTPHandler_DeleteTerminatesSession(t *testing.T) {
	f := newTransportFixture(t)
	sessionID := f.initialize(t)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(HeaderSessionID, sessionID)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, f.registry.Count())

	// A request against the terminated session is rejected.
	rec2 := f.post(t, sessionID, `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)

	resp := decodeResponse(t, rec2)
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(shared.BadRequest), resp.Error.Code)
}

func TestStreamableHTTPHandler_DeleteUnknownSessionRejected(t *testing.T) {
	f := newTransportFixture(t)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(HeaderSessionID, "never-issued")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(shared.BadRequest), resp.Error.Code)
}

func TestStreamableHTTPHandler_DeleteWithoutSessionRejected(t *testing.T) {
	f := newTransportFixture(t)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamableHTTPHandler_GetUnknownSessionRejected(t *testing.T) {
	f := newTransportFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set(HeaderSessionID, "never-issued")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(shared.BadRequest), resp.Error.Code)
}

func TestStreamableHTTPHandler_GetWithoutSessionRejected(t *testing.T) {
	f := newTransportFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, int(shared.BadRequest), resp.Error.Code)
}

func TestStreamableHTTPHandler_UnsupportedMethod(t *testing.T) {
	f := newTransportFixture(t)

	req := httptest.NewRequest(http.MethodPut, "/mcp", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStreamableHTTPHandler_PushStream(t *testing.T) {
	f := newTransportFixture(t)

	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	// Initialize over the real server to obtain a session id.
	resp, err := http.Post(srv.URL, "application/json", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`))
	require.NoError(t, err)
	sessionID := resp.Header.Get(HeaderSessionID)
	resp.Body.Close()
	require.NotEmpty(t, sessionID)

	// Open the push channel and read the demo sequence off the wire.
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set(HeaderSessionID, sessionID)

	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	require.Equal(t, http.StatusOK, stream.StatusCode)

	var payloads []string
	scanner := bufio.NewScanner(stream.Body)
	deadline := time.After(5 * time.Second)
	for len(payloads) < 4 {
		select {
		case <-deadline:
			t.Fatalf("timed out; got %d payloads", len(payloads))
		default:
		}
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			payloads = append(payloads, strings.TrimPrefix(line, "data: "))
		}
	}

	require.Len(t, payloads, 4)
	assert.Contains(t, payloads[0], "SSE Connection established")
	assert.Contains(t, payloads[1], "Message 1 at")
	assert.Contains(t, payloads[2], "Message 2 at")
	assert.Contains(t, payloads[3], "Streaming complete!")

	// Dropping the stream counts as transport closure; the registry must
	// clean up on its own.
	stream.Body.Close()
	require.Eventually(t, func() bool {
		return f.registry.Count() == 0
	}, 2*time.Second, 20*time.Millisecond)
}
