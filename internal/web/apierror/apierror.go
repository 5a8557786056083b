// Package apierror is the error taxonomy surfaced to HTTP clients: a
// fixed set of machine-readable codes, each mapped to one status code.
package apierror

import "net/http"

// Code is one of the fixed taxonomy values returned in error_code.
type Code string

const (
	CodeNotFound                  Code = "not_found"
	CodeMethodNotAllowed          Code = "method_not_allowed"
	CodeInvalidPath               Code = "invalid_path"
	CodeInvalidQuery              Code = "invalid_query"
	CodeInvalidPayload            Code = "invalid_payload"
	CodeHeaderValueNotUTF8        Code = "header_value_not_utf8"
	CodeMissingHeader             Code = "missing_header"
	CodeInvalidChannelLogin       Code = "invalid_channel_login"
	CodeChannelIgnored            Code = "channel_ignored"
	CodeInvalidAuthorizationCode  Code = "invalid_authorization_code"
	CodeMalformedAuthorizationHdr Code = "malformed_authorization_header"
	CodeUnauthorized              Code = "unauthorized"
	CodeRequestTimeout            Code = "request_timeout"
	CodeInternalServerError       Code = "internal_server_error"
)

var statusByCode = map[Code]int{
	CodeNotFound:                  http.StatusNotFound,
	CodeMethodNotAllowed:          http.StatusMethodNotAllowed,
	CodeInvalidPath:               http.StatusBadRequest,
	CodeInvalidQuery:              http.StatusBadRequest,
	CodeInvalidPayload:            http.StatusBadRequest,
	CodeHeaderValueNotUTF8:        http.StatusBadRequest,
	CodeMissingHeader:             http.StatusBadRequest,
	CodeInvalidChannelLogin:       http.StatusBadRequest,
	CodeChannelIgnored:            http.StatusForbidden,
	CodeInvalidAuthorizationCode:  http.StatusBadRequest,
	CodeMalformedAuthorizationHdr: http.StatusBadRequest,
	CodeUnauthorized:              http.StatusUnauthorized,
	CodeRequestTimeout:            http.StatusRequestTimeout,
	CodeInternalServerError:       http.StatusInternalServerError,
}

// Error is a classified API error with a message safe to return to
// clients.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

// New constructs an Error for code with the given message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Status returns the HTTP status code for an error's taxonomy code.
func (e *Error) Status() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
