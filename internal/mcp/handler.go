package mcp

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"mcpgateway/internal/domain"
	"mcpgateway/internal/gateway"
)

const (
	// SessionHeader correlates requests to entries in the Registry.
	SessionHeader = "Mcp-Session-Id"

	protocolVersion = "2025-06-18"
)

// JSON-RPC error codes used by the handler.
const (
	codeConnectionClosed = -32000
	codeMethodNotFound   = -32601
	codeInternalError    = -32603
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Handler serves the MCP streaming endpoint. Initialization requests
// create a session in the registry; every other request must carry a
// known session id. The access guard runs before this handler, so the
// request context always carries a validated principal and raw token.
type Handler struct {
	registry      *Registry
	errorWriter   gateway.ErrorWriter
	serverName    string
	serverVersion string

	tools     map[string]Tool
	toolOrder []string
}

// NewHandler creates the MCP endpoint handler with the given tools.
func NewHandler(registry *Registry, ew gateway.ErrorWriter, serverName, serverVersion string, tools ...Tool) *Handler {
	h := &Handler{
		registry:      registry,
		errorWriter:   ew,
		serverName:    serverName,
		serverVersion: serverVersion,
		tools:         make(map[string]Tool, len(tools)),
	}
	for _, t := range tools {
		h.tools[t.Name] = t
		h.toolOrder = append(h.toolOrder, t.Name)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.post(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		// The gateway does not offer a server-initiated stream.
		writeRPC(w, http.StatusMethodNotAllowed, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: codeConnectionClosed, Message: "Method not allowed."},
		})
	}
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorWriter.Write(w, r, domain.NewInvalidRequestError("Malformed JSON-RPC request", err.Error()))
		return
	}

	if req.Method == "initialize" {
		h.initialize(w, r, req)
		return
	}

	// Everything except initialize requires an existing session. An
	// unknown or missing id is a client error and never creates one.
	session, ok := h.registry.Get(r.Header.Get(SessionHeader))
	if !ok {
		h.errorWriter.Write(w, r, domain.NewInvalidRequestError("Missing or unknown session identifier", nil))
		return
	}

	switch req.Method {
	case "notifications/initialized":
		w.WriteHeader(http.StatusAccepted)
	case "tools/list":
		h.listTools(w, session, req)
	case "tools/call":
		h.callTool(w, r, session, req)
	default:
		writeRPC(w, http.StatusOK, rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: codeMethodNotFound, Message: "Method not found."},
		})
	}
}

func (h *Handler) initialize(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	var params struct {
		ProtocolVersion string `json:"protocolVersion"`
		ClientInfo      struct {
			Name string `json:"name"`
		} `json:"clientInfo"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			h.errorWriter.Write(w, r, domain.NewInvalidRequestError("Malformed initialize request", err.Error()))
			return
		}
	}

	session := h.registry.Create(r.Context(), params.ProtocolVersion, params.ClientInfo.Name)
	slog.Info("session created", "session_id", session.ID, "client", session.ClientName)

	w.Header().Set(SessionHeader, session.ID)
	writeRPC(w, http.StatusOK, rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    h.serverName,
				"version": h.serverVersion,
			},
		},
	})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(SessionHeader)
	if id == "" || !h.registry.Close(r.Context(), id) {
		h.errorWriter.Write(w, r, domain.NewInvalidRequestError("Missing or unknown session identifier", nil))
		return
	}
	slog.Info("session closed", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTools(w http.ResponseWriter, _ *Session, req rpcRequest) {
	tools := make([]map[string]any, 0, len(h.toolOrder))
	for _, name := range h.toolOrder {
		t := h.tools[name]
		tools = append(tools, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"inputSchema": t.InputSchema,
		})
	}
	writeRPC(w, http.StatusOK, rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  map[string]any{"tools": tools},
	})
}

func (h *Handler) callTool(w http.ResponseWriter, r *http.Request, _ *Session, req rpcRequest) {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			h.errorWriter.Write(w, r, domain.NewInvalidRequestError("Malformed tools/call request", err.Error()))
			return
		}
	}

	tool, ok := h.tools[params.Name]
	if !ok {
		writeRPC(w, http.StatusOK, rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: codeMethodNotFound, Message: "Unknown tool."},
		})
		return
	}

	text, terr := tool.Handler(r.Context(), params.Arguments)
	if terr != nil {
		// Tool failures are returned in-band as tool results. Only the
		// client-facing fields are exposed; the diagnostic detail is
		// logged here, once.
		slog.Info("tool call failed",
			"tool", tool.Name,
			"status", terr.Status,
			"code", terr.Code,
			"message", terr.Message,
			"extra", terr.Extra,
			"request_id", gateway.RequestIDFromContext(r.Context()),
		)
		client, _ := json.Marshal(terr.ClientObject())
		writeRPC(w, http.StatusOK, rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]any{
				"isError": true,
				"content": []map[string]any{{"type": "text", "text": string(client)}},
			},
		})
		return
	}

	writeRPC(w, http.StatusOK, rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]any{
			"content": []map[string]any{{"type": "text", "text": text}},
		},
	})
}

func writeRPC(w http.ResponseWriter, status int, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("encoding json-rpc response", "error", err)
	}
}
