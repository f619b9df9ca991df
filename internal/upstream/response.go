package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnavailable wraps every network, read or decode failure talking to upstream.
var ErrUnavailable = errors.New("upstream unavailable")

// Response is an upstream reply kept as opaque bytes. The relay only ever
// looks at the status code and, on errors, the "detail" field.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Detail extracts a string "detail" field from a JSON error body.
// Structured details (e.g. validation error lists) yield "".
func (r *Response) Detail() string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(r.Body, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err != nil {
		return ""
	}
	return detail
}

// Decode unmarshals the body into v. A malformed body is an upstream failure.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: failed to decode response: %w", ErrUnavailable, err)
	}
	return nil
}

type requestIDKey struct{}

// WithRequestID returns a context whose upstream calls carry id as X-Request-ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
