package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Envelope is the JSON shape every REST endpoint responds with: a data
// payload on success, error/message strings on failure.
type Envelope struct {
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Code    string          `json:"code,omitempty"`
}

// APIError is a non-success response from the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Decode interprets an envelope response body. Any non-2xx status is a
// failure regardless of body shape; on success the data payload is decoded
// into out when out is non-nil.
func Decode(status int, body []byte, out any) error {
	var env Envelope
	parseErr := json.Unmarshal(body, &env)

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &APIError{Status: status, Code: env.Code, Message: msg}
	}

	if parseErr != nil {
		return errors.Wrap(parseErr, "decode response envelope")
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.Wrap(err, "decode response payload")
	}
	return nil
}

// IsAPIError reports whether err is a backend failure and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
