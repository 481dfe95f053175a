package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Built-in kind tags.
const (
	KindDefault  = "default"
	KindJSON     = "json"
	KindText     = "text"
	KindFile     = "file"
	KindTemplate = "template"
)

// Response holds the options shared by the built-in kinds.
type Response struct {
	Status  int               `json:"status,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

func (r Response) status() int {
	if r.Status == 0 {
		return http.StatusOK
	}
	return r.Status
}

func (r Response) validate() error {
	if r.Status != 0 && (r.Status < 100 || r.Status > 599) {
		return fmt.Errorf("%w: status %d out of range", ErrInvalidOptions, r.Status)
	}
	return nil
}

func (r Response) writeHeaders(w http.ResponseWriter, contentType string) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	for k, v := range r.Headers {
		w.Header().Set(k, v)
	}
}

// ============================================================================
// json / default
// ============================================================================

type jsonOptions struct {
	Response struct {
		Response
		Body any `json:"body,omitempty"`
	} `json:"response"`
}

type jsonHandler struct {
	resp    Response
	body    any
	encoded []byte
}

// NewJSON builds the handler for the "default" and "json" kinds: a fixed
// status, headers and JSON-encoded body.
func NewJSON(spec Spec) (Handler, error) {
	var opts jsonOptions
	if err := spec.DecodeOptions(&opts); err != nil {
		return nil, err
	}
	if err := opts.Response.validate(); err != nil {
		return nil, err
	}

	h := &jsonHandler{resp: opts.Response.Response, body: opts.Response.Body}
	if h.body != nil {
		encoded, err := json.Marshal(h.body)
		if err != nil {
			return nil, fmt.Errorf("%w: body: %v", ErrInvalidOptions, err)
		}
		h.encoded = encoded
	}
	return h, nil
}

func (h *jsonHandler) Handle(w http.ResponseWriter, _ *http.Request, _ http.Handler) {
	contentType := ""
	if h.encoded != nil {
		contentType = "application/json; charset=utf-8"
	}
	h.resp.writeHeaders(w, contentType)
	w.WriteHeader(h.resp.status())
	if h.encoded != nil {
		_, _ = w.Write(h.encoded)
	}
}

func (h *jsonHandler) Preview() any {
	return map[string]any{"status": h.resp.status(), "body": h.body}
}

// ============================================================================
// text
// ============================================================================

type textOptions struct {
	Response struct {
		Response
		Body string `json:"body,omitempty"`
	} `json:"response"`
}

type textHandler struct {
	resp Response
	body string
}

// NewText builds the handler for the "text" kind: a plain text body.
func NewText(spec Spec) (Handler, error) {
	var opts textOptions
	if err := spec.DecodeOptions(&opts); err != nil {
		return nil, err
	}
	if err := opts.Response.validate(); err != nil {
		return nil, err
	}
	return &textHandler{resp: opts.Response.Response, body: opts.Response.Body}, nil
}

func (h *textHandler) Handle(w http.ResponseWriter, _ *http.Request, _ http.Handler) {
	h.resp.writeHeaders(w, "text/plain; charset=utf-8")
	w.WriteHeader(h.resp.status())
	_, _ = w.Write([]byte(h.body))
}

func (h *textHandler) Preview() any {
	return map[string]any{"status": h.resp.status(), "body": h.body}
}
