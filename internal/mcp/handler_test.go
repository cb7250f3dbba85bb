package mcp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mcpgateway/internal/domain"
	"mcpgateway/internal/gateway"
	"mcpgateway/internal/mcp"
)

func newTestHandler(tools ...mcp.Tool) (*mcp.Handler, *mcp.Registry) {
	registry := mcp.NewRegistry(nil)
	ew := gateway.ErrorWriter{ResourceMetadataURL: "https://mcp.demo.example/.well-known/oauth-protected-resource"}
	return mcp.NewHandler(registry, ew, "mcp-server", "1.0.0", tools...), registry
}

func postRPC(t *testing.T, h http.Handler, sessionID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(mcp.SessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeRPC(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp
}

func TestInitializeCreatesSession(t *testing.T) {
	h, registry := newTestHandler()

	rec := postRPC(t, h, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"test-client"}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	sessionID := rec.Header().Get(mcp.SessionHeader)
	if sessionID == "" {
		t.Fatal("no session id header on initialize response")
	}
	if _, ok := registry.Get(sessionID); !ok {
		t.Error("session id not present in registry")
	}

	resp := decodeRPC(t, rec)
	result, _ := resp["result"].(map[string]any)
	if result["protocolVersion"] != "2025-06-18" {
		t.Errorf("unexpected protocolVersion %v", result["protocolVersion"])
	}
	serverInfo, _ := result["serverInfo"].(map[string]any)
	if serverInfo["name"] != "mcp-server" {
		t.Errorf("unexpected serverInfo %v", serverInfo)
	}
}

func TestNonInitializeRequiresKnownSession(t *testing.T) {
	h, registry := newTestHandler()

	tests := []struct {
		name      string
		sessionID string
	}{
		{"missing id", ""},
		{"unknown id", "0b51b4b4-0000-0000-0000-000000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postRPC(t, h, tt.sessionID, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			var body map[string]string
			json.NewDecoder(rec.Body).Decode(&body)
			if body["code"] != domain.CodeInvalidRequest {
				t.Errorf("expected invalid_request, got %q", body["code"])
			}
			if registry.Len() != 0 {
				t.Error("request with unknown session id created a registry entry")
			}
		})
	}
}

func TestNotificationsInitializedAccepted(t *testing.T) {
	h, registry := newTestHandler()
	s := registry.Create(context.Background(), "2025-06-18", "c")

	rec := postRPC(t, h, s.ID, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
}

func TestToolsList(t *testing.T) {
	tool := mcp.Tool{
		Name:        "fetch-stock-prices",
		Description: "A tool to fetch secured information about financial stock prices",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	}
	h, registry := newTestHandler(tool)
	s := registry.Create(context.Background(), "2025-06-18", "c")

	rec := postRPC(t, h, s.ID, `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	resp := decodeRPC(t, rec)
	result, _ := resp["result"].(map[string]any)
	tools, _ := result["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	first, _ := tools[0].(map[string]any)
	if first["name"] != "fetch-stock-prices" {
		t.Errorf("unexpected tool %v", first)
	}
}

func TestToolsCallSuccess(t *testing.T) {
	tool := mcp.Tool{
		Name: "echo",
		Handler: func(ctx context.Context, args map[string]any) (string, *domain.Error) {
			s, _ := args["text"].(string)
			return s, nil
		},
	}
	h, registry := newTestHandler(tool)
	s := registry.Create(context.Background(), "2025-06-18", "c")

	rec := postRPC(t, h, s.ID, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hello"}}}`)
	resp := decodeRPC(t, rec)
	result, _ := resp["result"].(map[string]any)
	if result["isError"] != nil {
		t.Fatalf("unexpected tool error: %v", result)
	}
	content, _ := result["content"].([]any)
	if len(content) != 1 {
		t.Fatalf("expected 1 content item, got %d", len(content))
	}
	item, _ := content[0].(map[string]any)
	if item["type"] != "text" || item["text"] != "hello" {
		t.Errorf("unexpected content %v", item)
	}
}

// Tool failures surface in-band as tool results carrying only the
// client-facing error fields.
func TestToolsCallTypedErrorInBand(t *testing.T) {
	tool := mcp.Tool{
		Name: "failing",
		Handler: func(ctx context.Context, args map[string]any) (string, *domain.Error) {
			return "", domain.NewUpstreamAPIError(http.StatusBadGateway, "diagnostic detail")
		},
	}
	h, registry := newTestHandler(tool)
	s := registry.Create(context.Background(), "2025-06-18", "c")

	rec := postRPC(t, h, s.ID, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"failing"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("tool errors must not change the transport status, got %d", rec.Code)
	}

	resp := decodeRPC(t, rec)
	result, _ := resp["result"].(map[string]any)
	if result["isError"] != true {
		t.Fatalf("expected isError result, got %v", result)
	}
	content, _ := result["content"].([]any)
	item, _ := content[0].(map[string]any)
	text, _ := item["text"].(string)

	var clientErr map[string]string
	if err := json.Unmarshal([]byte(text), &clientErr); err != nil {
		t.Fatalf("tool error text is not JSON: %v", err)
	}
	if clientErr["code"] != domain.CodeUpstreamAPIError {
		t.Errorf("expected upstream_api_error, got %q", clientErr["code"])
	}
	if len(clientErr) != 2 {
		t.Errorf("client error must contain only code and message, got %v", clientErr)
	}
	if strings.Contains(text, "diagnostic detail") {
		t.Error("diagnostic detail leaked to client")
	}
}

func TestToolsCallUnknownTool(t *testing.T) {
	h, registry := newTestHandler()
	s := registry.Create(context.Background(), "2025-06-18", "c")

	rec := postRPC(t, h, s.ID, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"nope"}}`)
	resp := decodeRPC(t, rec)
	rpcErr, _ := resp["error"].(map[string]any)
	if rpcErr == nil || rpcErr["code"] != float64(-32601) {
		t.Errorf("expected -32601 error, got %v", resp)
	}
}

func TestUnknownMethod(t *testing.T) {
	h, registry := newTestHandler()
	s := registry.Create(context.Background(), "2025-06-18", "c")

	rec := postRPC(t, h, s.ID, `{"jsonrpc":"2.0","id":7,"method":"resources/list"}`)
	resp := decodeRPC(t, rec)
	rpcErr, _ := resp["error"].(map[string]any)
	if rpcErr == nil || rpcErr["code"] != float64(-32601) {
		t.Errorf("expected -32601 error, got %v", resp)
	}
}

func TestDeleteClosesSession(t *testing.T) {
	h, registry := newTestHandler()
	s := registry.Create(context.Background(), "2025-06-18", "c")

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	req.Header.Set(mcp.SessionHeader, s.ID)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if _, ok := registry.Get(s.ID); ok {
		t.Error("session survived delete")
	}

	// Deleting again is a client error.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 on repeated delete, got %d", rec.Code)
	}
}

func TestGetNotSupported(t *testing.T) {
	h, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
	resp := decodeRPC(t, rec)
	rpcErr, _ := resp["error"].(map[string]any)
	if rpcErr == nil || rpcErr["code"] != float64(-32000) {
		t.Errorf("expected -32000 error, got %v", resp)
	}
}

func TestMalformedRequestBody(t *testing.T) {
	h, _ := newTestHandler()

	rec := postRPC(t, h, "", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body map[string]string
	json.NewDecoder(rec.Body).Decode(&body)
	if body["code"] != domain.CodeInvalidRequest {
		t.Errorf("expected invalid_request, got %q", body["code"])
	}
}
