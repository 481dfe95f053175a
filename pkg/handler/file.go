package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/varmock/varmock/pkg/httputil"
)

type fileOptions struct {
	Response struct {
		Response
		Path string `json:"path"`
	} `json:"response"`
}

type fileHandler struct {
	resp Response
	path string
}

// NewFile builds the handler for the "file" kind, which serves the content
// of a file read on every request so edits show up without a reload.
func NewFile(spec Spec) (Handler, error) {
	var opts fileOptions
	if err := spec.DecodeOptions(&opts); err != nil {
		return nil, err
	}
	if err := opts.Response.validate(); err != nil {
		return nil, err
	}
	if opts.Response.Path == "" {
		return nil, fmt.Errorf("%w: response.path is required", ErrInvalidOptions)
	}
	return &fileHandler{resp: opts.Response.Response, path: filepath.Clean(opts.Response.Path)}, nil
}

func (h *fileHandler) Handle(w http.ResponseWriter, _ *http.Request, _ http.Handler) {
	f, err := os.Open(h.path)
	if err != nil {
		msg := fmt.Sprintf("file %s not available", filepath.Base(h.path))
		if errors.Is(err, os.ErrNotExist) {
			httputil.WriteNotFound(w, msg)
			return
		}
		httputil.WriteInternalError(w, msg)
		return
	}
	defer func() { _ = f.Close() }()

	contentType := mime.TypeByExtension(filepath.Ext(h.path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.resp.writeHeaders(w, contentType)
	w.WriteHeader(h.resp.status())
	_, _ = io.Copy(w, f)
}

func (h *fileHandler) Preview() any {
	return map[string]any{"status": h.resp.status(), "path": h.path}
}
