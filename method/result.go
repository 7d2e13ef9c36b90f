package method

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"
)

// Generic failure messages returned to clients.
const (
	MessageMalformedRequest = "The request could not be understood. Please try again"
	MessageInvalidSession   = "Invalid session. Please try again"
	MessageUnexpected       = "An unexpected error occurred"
)

// ErrMalformedRequest is returned by Request.Decode.
var ErrMalformedRequest = errors.New("malformed request body")

// Result is the outcome of a verify or register step.
type Result struct {
	Successful bool
	Message    string
	// Context carries extra values for the client, such as the next method
	// to register.
	Context map[string]any
	// Data is the method data to persist. Nil leaves stored data unchanged.
	Data []byte
}

// Success returns a successful result carrying data.
func Success(data []byte) Result {
	return Result{Successful: true, Data: data}
}

// Failure returns an unsuccessful result with a client-safe message.
func Failure(message string) Result {
	return Result{Message: message}
}

// WithContext returns a copy of r with key set in its context.
func (r Result) WithContext(key string, value any) Result {
	ctx := make(map[string]any, len(r.Context)+1)
	for k, v := range r.Context {
		ctx[k] = v
	}
	ctx[key] = value
	r.Context = ctx
	return r
}

// Request is the client's answer to a challenge.
type Request struct {
	Body []byte
}

// NewRequest wraps a raw JSON body.
func NewRequest(body []byte) Request {
	return Request{Body: body}
}

// Decode unmarshals the JSON body into v, rejecting unknown fields and
// trailing data.
func (r Request) Decode(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return errors.Wrap(ErrMalformedRequest, "empty body")
	}
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Mark(errors.Wrap(err, "decode request"), ErrMalformedRequest)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.Wrap(ErrMalformedRequest, "trailing data")
	}
	return nil
}
