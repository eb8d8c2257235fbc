package llm_service

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// APIError represents the error structure returned by the OpenAI API
type APIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

type HTTPError struct {
	StatusCode int
	Message    string
	ErrorType  string
	RawBody    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("LLM API error (HTTP %d): %s (Type: %s)", e.StatusCode, e.Message, e.ErrorType)
}

// StatusCode extracts the HTTP status from an error chain. The second
// return is false for transport-level failures that never got a
// response.
func StatusCode(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, true
	}
	return 0, false
}

// newHTTPError reads the response body and extracts API error details
// when the body follows the OpenAI error format.
func newHTTPError(resp *http.Response) *HTTPError {
	httpErr := &HTTPError{
		StatusCode: resp.StatusCode,
		Message:    "Unknown error",
		ErrorType:  "unknown",
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return httpErr
	}
	httpErr.RawBody = string(body)

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		httpErr.Message = apiErr.Error.Message
		httpErr.ErrorType = apiErr.Error.Type
	}

	return httpErr
}
