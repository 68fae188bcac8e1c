package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/embedgate/embedgate/internal/ratelimit"
)

// apiVersion is stamped on every response envelope.
const apiVersion = "v1"

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// envelope is the standard response shape shared by every endpoint. Clients
// branch on success and error.code, never on HTTP status alone.
type envelope struct {
	Success    bool           `json:"success"`
	Data       any            `json:"data"`
	Metadata   map[string]any `json:"metadata"`
	Error      *errorDetail   `json:"error"`
	RequestID  string         `json:"request_id"`
	Timestamp  string         `json:"timestamp"`
	APIVersion string         `json:"api_version"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes owned by the HTTP layer. Token validation codes come from the
// token package.
const (
	codeMissingQuery        = "MISSING_QUERY"
	codeValidationError     = "VALIDATION_ERROR"
	codeInvalidFeedbackType = "INVALID_FEEDBACK_TYPE"
	codeInternalError       = "INTERNAL_ERROR"
	codeNotFound            = "NOT_FOUND"
	codeInvalidCredentials  = "INVALID_CREDENTIALS"
)

// writeSuccess writes the success envelope with the given data and optional
// metadata.
func writeSuccess(w http.ResponseWriter, r *http.Request, statusCode int, data any, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	writeJSON(w, statusCode, envelope{
		Success:    true,
		Data:       data,
		Metadata:   metadata,
		RequestID:  RequestIDFromContext(r.Context()),
		Timestamp:  time.Now().Format(time.RFC3339),
		APIVersion: apiVersion,
	})
}

// writeError writes the error envelope with the given code and message.
func writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	writeErrorMeta(w, r, statusCode, code, message, nil)
}

// writeErrorMeta is writeError with extra metadata, used by 429 responses to
// carry rate and quota state.
func writeErrorMeta(w http.ResponseWriter, r *http.Request, statusCode int, code, message string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	writeJSON(w, statusCode, envelope{
		Success:    false,
		Metadata:   metadata,
		Error:      &errorDetail{Code: code, Message: message},
		RequestID:  RequestIDFromContext(r.Context()),
		Timestamp:  time.Now().Format(time.RFC3339),
		APIVersion: apiVersion,
	})
}

// writeJSON writes a JSON response with the given status code and body.
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// readJSON decodes the request body into v, enforcing a size limit.
func readJSON(r *http.Request, v any) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}

// setRateHeaders stamps the window state onto the response so widget clients
// can pace themselves.
func setRateHeaders(w http.ResponseWriter, info ratelimit.Info) {
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetAt.Unix()))
}
