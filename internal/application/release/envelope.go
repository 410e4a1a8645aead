package release

import (
	rherrors "github.com/railhead-io/railhead/internal/errors"
)

// Envelope is the uniform response wrapper returned across the service
// boundary. Successful calls carry Data; failures carry Error and the
// HTTP status code derived from the error kind.
type Envelope struct {
	Success    bool   `json:"success"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// OK wraps a successful result.
func OK(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// Fail wraps an error into a failure envelope.
func Fail(err error) Envelope {
	return Envelope{
		Success:    false,
		Error:      rherrors.FormatUserError(err),
		StatusCode: rherrors.GetKind(err).StatusCode(),
	}
}

// Respond builds an envelope from a use case result. A nil error wraps
// data, anything else wraps the error.
func Respond(data any, err error) Envelope {
	if err != nil {
		return Fail(err)
	}
	return OK(data)
}
