package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nkkko/verse/pkg/proto"
)

// APIError is a non-2xx response from the API
type APIError struct {
	Status  int
	Message string
	Code    string
	Details json.RawMessage

	// Body holds the raw response body when it was not a structured error
	Body string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.Status, http.StatusText(e.Status))
}

// Structured reports whether the response carried a JSON error body
func (e *APIError) Structured() bool {
	return e.Message != "" || e.Code != ""
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var errResp proto.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		apiErr.Message = errResp.Message
		apiErr.Code = errResp.Code
		apiErr.Details = errResp.Details
		if errResp.Message == "" {
			// Some handlers answer with {"error": "..."}
			var legacy struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(body, &legacy) == nil {
				apiErr.Message = legacy.Error
			}
		}
		return apiErr
	}

	apiErr.Body = strings.TrimSpace(string(body))
	return apiErr
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not an API error
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
