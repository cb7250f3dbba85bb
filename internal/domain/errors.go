package domain

import (
	"fmt"
	"net/http"
)

// Machine-readable error codes returned to clients.
const (
	CodeInvalidToken             = "invalid_token"
	CodeInsufficientScope        = "insufficient_scope"
	CodeInvalidRequest           = "invalid_request"
	CodeAuthorizationServerError = "authorization_server_error"
	CodeAuthorizationServerConn  = "authorization_server_connection_error"
	CodeUpstreamAPIError         = "upstream_api_error"
	CodeUpstreamAPIConn          = "upstream_api_connection_error"
	CodeServerError              = "server_error"
)

// Error is the gateway's typed error. Code and Message are client-facing;
// Extra is diagnostic detail that is logged but never returned to clients.
// WWWAuthenticate, when set, is emitted as the WWW-Authenticate header on
// 401 responses.
type Error struct {
	Status          int
	Code            string
	Message         string
	Extra           any
	WWWAuthenticate string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ClientObject returns the JSON envelope safe to send to clients.
func (e *Error) ClientObject() ErrorResponse {
	return ErrorResponse{Code: e.Code, Message: e.Message}
}

// ErrorResponse is the standard JSON error envelope returned to clients.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewInvalidTokenError reports a missing, malformed, expired or otherwise
// unverifiable access token. Every verification failure collapses to this
// one client-visible error; the underlying cause goes in extra only.
func NewInvalidTokenError(extra any) *Error {
	return &Error{
		Status:  http.StatusUnauthorized,
		Code:    CodeInvalidToken,
		Message: "Missing, invalid or expired access token",
		Extra:   extra,
	}
}

// NewInsufficientScopeError reports a validated token that cannot be used
// at this API, either because a required claim is absent or because the
// endpoint's required scope is not granted.
func NewInsufficientScopeError(extra any) *Error {
	return &Error{
		Status:  http.StatusForbidden,
		Code:    CodeInsufficientScope,
		Message: "The access token cannot be used at this API",
		Extra:   extra,
	}
}

// NewInvalidRequestError reports malformed protocol usage, such as an
// unknown session identifier.
func NewInvalidRequestError(message string, extra any) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeInvalidRequest,
		Message: message,
		Extra:   extra,
	}
}

// NewAuthorizationServerError reports a failure response from the
// authorization server's token endpoint, mirroring its status.
func NewAuthorizationServerError(status int, extra any) *Error {
	return &Error{
		Status:  status,
		Code:    CodeAuthorizationServerError,
		Message: "Problem encountered calling the authorization server",
		Extra:   extra,
	}
}

// NewUpstreamAPIError reports a failure response from an upstream API,
// mirroring its status.
func NewUpstreamAPIError(status int, extra any) *Error {
	return &Error{
		Status:  status,
		Code:    CodeUpstreamAPIError,
		Message: "Problem encountered calling the upstream API",
		Extra:   extra,
	}
}

// NewConnectionError wraps a transport-level failure reaching an external
// collaborator as a 500 with the given code and message.
func NewConnectionError(code, message string, cause error) *Error {
	var extra any
	if cause != nil {
		extra = cause.Error()
	}
	return &Error{
		Status:  http.StatusInternalServerError,
		Code:    code,
		Message: message,
		Extra:   extra,
	}
}

// AsError returns err as a typed *Error, wrapping anything untyped as a
// generic server_error so no raw failure crosses a component boundary.
func AsError(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	var extra any
	if err != nil {
		extra = err.Error()
	}
	return &Error{
		Status:  http.StatusInternalServerError,
		Code:    CodeServerError,
		Message: "Problem encountered processing the request",
		Extra:   extra,
	}
}
