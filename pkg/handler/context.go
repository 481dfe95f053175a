package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

// MaxBodySize bounds the request body kept for handlers (1MB).
const MaxBodySize = 1 << 20

type paramsKey struct{}

type bodyKey struct{}

// WithParams returns r carrying the URL parameters captured by the router.
func WithParams(r *http.Request, params map[string]string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), paramsKey{}, params))
}

// Params returns the URL parameters captured for r.
func Params(r *http.Request) map[string]string {
	if p, ok := r.Context().Value(paramsKey{}).(map[string]string); ok {
		return p
	}
	return map[string]string{}
}

// WithBody returns r carrying an already read copy of its body.
func WithBody(r *http.Request, body []byte) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), bodyKey{}, body))
}

// Body returns the request body. A body captured by WithBody is returned
// as is; otherwise up to MaxBodySize bytes are read and r.Body is replaced
// so later readers still see the full content.
func Body(r *http.Request) []byte {
	if b, ok := r.Context().Value(bodyKey{}).([]byte); ok {
		return b
	}
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize))
	if err != nil {
		return nil
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(data), r.Body))
	return data
}
