package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/tmaxmax/go-sse"

	"github.com/arranmoreferry/mcp-server/internal/domain"
	"github.com/arranmoreferry/mcp-server/internal/domain/shared"
	"github.com/arranmoreferry/mcp-server/internal/infrastructure/logging"
)

// HeaderSessionID is the HTTP header carrying session affinity. It is read
// on every request and written once, when initialization succeeds.
const HeaderSessionID = "mcp-session-id"

// Rejection messages, kept identical across all transport-level refusals.
const (
	msgNoValidSession  = "Bad Request: no valid session ID provided"
	msgInvalidSession  = "Bad Request: invalid session ID or method"
	msgInternalFailure = "Internal server error"
)

// StreamableHTTPHandler routes inbound HTTP requests to sessions. POST
// carries JSON-RPC messages, GET opens the server-push stream, DELETE
// terminates the session. Requests that cannot be attributed to a session
// are rejected before any session state is touched.
type StreamableHTTPHandler struct {
	registry *SessionRegistry
	catalog  *ToolCatalog
	streamer *NotificationStreamer
	info     shared.ServerInfo
	logger   *logging.Logger
}

// NewStreamableHTTPHandler wires the router to its collaborators.
func NewStreamableHTTPHandler(registry *SessionRegistry, catalog *ToolCatalog, streamer *NotificationStreamer, info shared.ServerInfo, logger *logging.Logger) *StreamableHTTPHandler {
	return &StreamableHTTPHandler{
		registry: registry,
		catalog:  catalog,
		streamer: streamer,
		info:     info,
		logger:   logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *StreamableHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, GET, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (h *StreamableHTTPHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(HeaderSessionID)

	// The session gate comes first: a request that cannot be attributed to
	// a session is rejected before its body is even parsed, and every
	// transport-level rejection carries the same -32000 code.
	if sessionID != "" {
		sess, err := h.registry.Lookup(sessionID)
		if err != nil {
			h.writeError(w, nil, shared.BadRequest, msgInvalidSession)
			return
		}

		messages, batch, err := h.readMessages(r)
		if err != nil {
			h.writeError(w, nil, shared.BadRequest, msgInvalidSession)
			return
		}
		h.serveMessages(r.Context(), w, sess, messages, batch)
		return
	}

	// No session header: only a well-formed initialization request may
	// create one.
	messages, batch, err := h.readMessages(r)
	if err != nil || !isInitializeRequest(messages) {
		h.writeError(w, nil, shared.BadRequest, msgNoValidSession)
		return
	}

	sess := h.registry.Create()
	responses := h.processAll(r.Context(), sess, messages)

	// The session is committed only once the handshake succeeded, and the
	// identifier is handed to the client exactly once, here.
	if sess.State() == domain.SessionActive {
		w.Header().Set(HeaderSessionID, sess.ID())
		h.registry.Add(sess)
	}

	h.writeResponses(w, responses, batch)
}

func (h *StreamableHTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		h.writeError(w, nil, shared.BadRequest, msgInvalidSession)
		return
	}
	sess, err := h.registry.Lookup(sessionID)
	if err != nil {
		h.writeError(w, nil, shared.BadRequest, msgInvalidSession)
		return
	}

	conn, err := sse.Upgrade(w, r)
	if err != nil {
		h.logger.Error("failed to upgrade push stream", logging.Fields{
			"sessionID": sessionID,
			"error":     err.Error(),
		})
		http.Error(w, msgInternalFailure, http.StatusInternalServerError)
		return
	}

	h.logger.Info("push stream established", logging.Fields{"sessionID": sessionID})
	h.streamer.StreamDemo(sess)
	h.pump(r.Context(), conn, sess)
}

// pump copies queued notifications onto the SSE connection until the client
// disconnects or the session closes. A client disconnect counts as
// transport closure and removes the session from the registry.
func (h *StreamableHTTPHandler) pump(ctx context.Context, conn *sse.Session, sess *StreamSession) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("push stream client disconnected", logging.Fields{"sessionID": sess.ID()})
			h.registry.Remove(sess.ID())
			return
		case <-sess.Done():
			return
		case notification := <-sess.Notifications():
			data, err := json.Marshal(notification)
			if err != nil {
				h.logger.Error("failed to marshal notification", logging.Fields{
					"sessionID": sess.ID(),
					"error":     err.Error(),
				})
				continue
			}

			msg := &sse.Message{Type: sse.Type("message")}
			msg.AppendData(string(data))
			if err := conn.Send(msg); err != nil {
				h.logger.Warn("push stream write failed", logging.Fields{
					"sessionID": sess.ID(),
					"error":     err.Error(),
				})
				h.registry.Remove(sess.ID())
				return
			}
			if err := conn.Flush(); err != nil {
				h.registry.Remove(sess.ID())
				return
			}
		}
	}
}

func (h *StreamableHTTPHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(HeaderSessionID)
	if sessionID == "" {
		h.writeError(w, nil, shared.BadRequest, msgInvalidSession)
		return
	}
	if _, err := h.registry.Lookup(sessionID); err != nil {
		h.writeError(w, nil, shared.BadRequest, msgInvalidSession)
		return
	}

	h.registry.Remove(sessionID)
	w.WriteHeader(http.StatusOK)
}

// readMessages drains the request body and splits it into its constituent
// JSON-RPC messages.
func (h *StreamableHTTPHandler) readMessages(r *http.Request) ([]json.RawMessage, bool, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to read request body")
	}
	return splitMessages(body)
}

// serveMessages processes a resumed session's POST body and writes the
// responses. Within one session messages are handled strictly in arrival
// order.
func (h *StreamableHTTPHandler) serveMessages(ctx context.Context, w http.ResponseWriter, sess *StreamSession, messages []json.RawMessage, batch bool) {
	responses := h.processAll(ctx, sess, messages)
	h.writeResponses(w, responses, batch)
}

func (h *StreamableHTTPHandler) processAll(ctx context.Context, sess *StreamSession, messages []json.RawMessage) []shared.JSONRPCResponse {
	var responses []shared.JSONRPCResponse
	for _, raw := range messages {
		if resp := h.processMessage(ctx, sess, raw); resp != nil {
			responses = append(responses, *resp)
		}
	}
	return responses
}

// processMessage handles one JSON-RPC message. Notifications produce no
// response; requests always do, even on failure.
func (h *StreamableHTTPHandler) processMessage(ctx context.Context, sess *StreamSession, raw json.RawMessage) *shared.JSONRPCResponse {
	var req shared.JSONRPCRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		resp := shared.NewErrorResponse(nil, shared.ParseError, "Parse error")
		return &resp
	}

	// Notifications receive no response.
	if req.ID == nil {
		h.logger.Debug("notification received", logging.Fields{
			"sessionID": sess.ID(),
			"method":    req.Method,
		})
		return nil
	}

	if req.JSONRPC != shared.JSONRPCVersion || req.Method == "" {
		resp := shared.NewErrorResponse(req.ID, shared.InvalidRequest, "Invalid request")
		return &resp
	}

	if req.Method == shared.MethodInitialize {
		return h.handleInitialize(sess, req)
	}

	if sess.State() != domain.SessionActive {
		resp := shared.NewErrorResponse(req.ID, shared.InvalidRequest, "Session not initialized")
		return &resp
	}

	switch req.Method {
	case shared.MethodPing:
		return h.result(req, struct{}{})
	case shared.MethodListTools:
		return h.result(req, shared.ListToolsResult{Tools: h.catalog.ListTools()})
	case shared.MethodCallTool:
		return h.handleCallTool(ctx, sess, req)
	default:
		resp := shared.NewErrorResponse(req.ID, shared.MethodNotFound, "Method not found")
		return &resp
	}
}

func (h *StreamableHTTPHandler) handleInitialize(sess *StreamSession, req shared.JSONRPCRequest) *shared.JSONRPCResponse {
	var params shared.InitializeParams
	if err := unmarshalParams(req.Params, &params); err != nil {
		resp := shared.NewErrorResponse(req.ID, shared.InvalidParams, "Invalid params")
		return &resp
	}

	sess.Activate()
	h.logger.Info("session initialized", logging.Fields{
		"sessionID": sess.ID(),
		"client":    params.ClientInfo.Name,
	})

	return h.result(req, shared.InitializeResult{
		ProtocolVersion: shared.ProtocolVersion,
		ServerInfo:      h.info,
		Capabilities: shared.Capabilities{
			Tools: &shared.ToolsCapability{ListChanged: true},
		},
	})
}

func (h *StreamableHTTPHandler) handleCallTool(ctx context.Context, sess *StreamSession, req shared.JSONRPCRequest) *shared.JSONRPCResponse {
	var params shared.CallToolParams
	if err := unmarshalParams(req.Params, &params); err != nil {
		resp := shared.NewErrorResponse(req.ID, shared.InvalidParams, "Invalid params")
		return &resp
	}

	h.logger.Debug("tool call", logging.Fields{
		"sessionID": sess.ID(),
		"tool":      params.Name,
	})

	content, err := h.catalog.CallTool(ctx, params.Name, params.Arguments)
	if err != nil {
		// Dispatcher-level refusals surface as a failed content payload,
		// never as an error that tears down the protocol channel.
		content = []shared.Content{shared.NewTextContent(err.Error())}
	}
	return h.result(req, shared.CallToolResult{Content: content})
}

func (h *StreamableHTTPHandler) result(req shared.JSONRPCRequest, result interface{}) *shared.JSONRPCResponse {
	return &shared.JSONRPCResponse{
		JSONRPC: shared.JSONRPCVersion,
		ID:      req.ID,
		Result:  result,
	}
}

func (h *StreamableHTTPHandler) writeResponses(w http.ResponseWriter, responses []shared.JSONRPCResponse, batch bool) {
	// A body of nothing but notifications gets an empty acknowledgement.
	if len(responses) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	var payload interface{}
	if batch {
		payload = responses
	} else {
		payload = responses[0]
	}

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write response", logging.Fields{"error": err.Error()})
	}
}

func (h *StreamableHTTPHandler) writeError(w http.ResponseWriter, id interface{}, code shared.ErrorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	if err := json.NewEncoder(w).Encode(shared.NewErrorResponse(id, code, message)); err != nil {
		h.logger.Error("failed to write error response", logging.Fields{"error": err.Error()})
	}
}

// splitMessages parses a POST body into its constituent JSON-RPC messages,
// accepting either a single message or a batch array.
func splitMessages(body []byte) ([]json.RawMessage, bool, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, false, errors.New("empty request body")
	}

	if trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, false, errors.Wrap(err, "invalid batch")
		}
		return batch, true, nil
	}

	var single json.RawMessage
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, false, errors.Wrap(err, "invalid message")
	}
	return []json.RawMessage{single}, false, nil
}

// isInitializeRequest reports whether any message in the body is an
// initialize request carrying an id.
func isInitializeRequest(messages []json.RawMessage) bool {
	for _, raw := range messages {
		var probe struct {
			ID     interface{} `json:"id"`
			Method string      `json:"method"`
		}
		if err := json.Unmarshal(raw, &probe); err != nil {
			continue
		}
		if probe.Method == shared.MethodInitialize && probe.ID != nil {
			return true
		}
	}
	return false
}

// unmarshalParams round-trips loosely typed params into a concrete struct.
func unmarshalParams(params interface{}, target interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
