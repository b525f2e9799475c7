// Package api implements the gateway's HTTP boundary. Chi routes the four
// public endpoints; handlers translate domain errors to the JSON error
// envelope and never leak internals beyond the error detail string.
package api

import (
	"encoding/json"
	"net/http"
)

// Boundary error codes carried in the error envelope.
const (
	CodeRouteNotFound    = "ROUTE_NOT_FOUND"
	CodeInvalidUUID      = "INVALID_UUID"
	CodeInvalidMultipart = "INVALID_MULTIPART"
	CodeMissingParams    = "MISSING_PARAMS"
	CodeMissingFile      = "MISSING_FILE"
	CodeBadRequest       = "BAD_REQUEST"
	CodeNotFound         = "NOT_FOUND"
	CodeUpstreamError    = "UPSTREAM_ERROR"
)

// envelope is the generic JSON response wrapper.
//
// Success:  {"status":"success","message":"...","data":...}
// Failure:  {"success":false,"message":"...","data":null,"error":{"code":"...","details":"..."}}
type envelope map[string]any

type errorBody struct {
	Code    string `json:"code"`
	Details string `json:"details"`
}

// JSON writes a JSON-encoded response with the given status code.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Success writes a 200 with the success envelope.
func Success(w http.ResponseWriter, message string, data any) {
	JSON(w, http.StatusOK, envelope{
		"status":  "success",
		"message": message,
		"data":    data,
	})
}

// Fail writes the failure envelope with the given status and code.
func Fail(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, envelope{
		"success": false,
		"message": message,
		"data":    nil,
		"error":   errorBody{Code: code, Details: message},
	})
}
