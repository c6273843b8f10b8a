package httputil

import (
	"encoding/json"
	"net/http"
)

// Error codes carried in ErrorResponse.Code
const (
	CodeBadRequest    = "bad_request"
	CodeUnauthorized  = "unauthorized"
	CodeForbidden     = "forbidden"
	CodeNotFound      = "not_found"
	CodeUnprocessable = "unprocessable"
	CodeInternal      = "internal"
)

// ErrorResponse is the body of every error reply. Code is stable and meant
// for clients; Error is human readable. Reason carries the audit-safe
// explanation of a denial.
type ErrorResponse struct {
	Code   string `json:"code"`
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// WriteJSON writes data as JSON with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes data with 200
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes an empty 204
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	_ = WriteJSON(w, status, body)
}

// WriteBadRequest writes a 400
func WriteBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrorResponse{Code: CodeBadRequest, Error: message})
}

// WriteUnauthorized writes a 401
func WriteUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrorResponse{Code: CodeUnauthorized, Error: message})
}

// WriteForbidden writes a 403 with the denial reason
func WriteForbidden(w http.ResponseWriter, reason string) {
	writeError(w, http.StatusForbidden, ErrorResponse{Code: CodeForbidden, Error: "forbidden", Reason: reason})
}

// WriteNotFound writes a 404
func WriteNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrorResponse{Code: CodeNotFound, Error: message})
}

// WriteUnprocessable writes a 422 for a well-formed request that breaks a
// domain rule
func WriteUnprocessable(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnprocessableEntity, ErrorResponse{Code: CodeUnprocessable, Error: message})
}

// WriteInternalError writes a 500 without exposing the cause
func WriteInternalError(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, ErrorResponse{Code: CodeInternal, Error: "internal server error"})
}
