package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/varmock/varmock/pkg/handler"
	"github.com/varmock/varmock/pkg/httputil"
	"github.com/varmock/varmock/pkg/logging"
)

// HealthPath answers liveness probes ahead of custom routers and mocks.
const HealthPath = "/__varmock/health"

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-Id"

// build assembles the transport graph. Callers hold s.mu.
func (s *Server) build() http.Handler {
	cfg := s.config()

	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.dispatcher.Dispatch(w, r, http.HandlerFunc(notFound))
	})
	for i := len(s.routers) - 1; i >= 0; i-- {
		h = mount(s.routers[i].path, s.routers[i].handler, h)
	}
	h = health(h)
	h = traceRequest(s.log, h)
	h = jsonBody(h)
	h = commonHeaders(h)
	if cfg.CORS {
		h = cors(h)
	}
	h = requestID(h)
	return recoverer(s.log, h)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	httputil.WriteNotFound(w, fmt.Sprintf("Cannot %s %s", r.Method, r.URL.Path))
}

func recoverer(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.Error("panic serving request",
				"method", r.Method, "path", r.URL.Path,
				logging.KeyRequestID, w.Header().Get(HeaderRequestID),
				logging.KeyError, rec)
			httputil.WriteInternalError(w, fmt.Sprint(rec))
		}()
		next.ServeHTTP(w, r)
	})
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(HeaderRequestID, id)
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r)
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		} else {
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, PUT, PATCH, POST, DELETE")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
			}
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func commonHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Powered-By", "varmock")
		w.Header().Set("Cache-Control", "no-cache")
		next.ServeHTTP(w, r)
	})
}

// jsonBody captures JSON request bodies for handlers and rejects malformed
// ones.
func jsonBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType != "application/json" || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, handler.MaxBodySize+1))
		_ = r.Body.Close()
		if err != nil {
			httputil.WriteBadRequest(w, "unable to read request body")
			return
		}
		if len(body) > handler.MaxBodySize {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		if len(bytes.TrimSpace(body)) > 0 && !json.Valid(body) {
			httputil.WriteBadRequest(w, "request body is not valid JSON")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, handler.WithBody(r, body))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	return rec.ResponseWriter.Write(b)
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter { return rec.ResponseWriter }

func traceRequest(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			logging.KeyRequestID, r.Header.Get(HeaderRequestID))
	})
}

func health(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == HealthPath && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
			httputil.WriteOK(w, map[string]string{"status": "ok"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
