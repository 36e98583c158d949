package shopapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx answer from the shop backend.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("shop api: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("shop api: status %d", e.StatusCode)
}

// UserMessage is the text meant for the shopper. Only client errors carry
// one; server errors never leak their message.
func (e *APIError) UserMessage() string {
	if e.StatusCode < 400 || e.StatusCode >= 500 {
		return ""
	}
	return e.Message
}

func (e *APIError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: body}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Message = strings.TrimSpace(payload.Message)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(payload.Error)
		}
	}
	return apiErr
}
