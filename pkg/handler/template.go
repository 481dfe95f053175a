package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/varmock/varmock/internal/matching"
	"github.com/varmock/varmock/pkg/httputil"
)

// placeholder matches {{ expression }} with optional inner whitespace.
var placeholder = regexp.MustCompile(`\{\{\s*(.+?)\s*\}\}`)

type templateOptions struct {
	Response struct {
		Response
		Body string `json:"body"`
	} `json:"response"`
}

// part is either literal text or a compiled expression.
type part struct {
	text    string
	program *vm.Program
}

type templateHandler struct {
	resp  Response
	body  string
	parts []part
}

// NewTemplate builds the handler for the "template" kind. Each {{ expr }} in
// the body is an expr-lang expression evaluated per request against:
//
//	method, path   string
//	params, query  map[string]string
//	headers        map[string]string (canonical header names)
//	body           any (decoded JSON request body, nil otherwise)
//	jsonpath(p)    JSONPath lookup over body
//
// Expressions are compiled here, so syntax errors fail the variant at load
// time.
func NewTemplate(spec Spec) (Handler, error) {
	var opts templateOptions
	if err := spec.DecodeOptions(&opts); err != nil {
		return nil, err
	}
	if err := opts.Response.validate(); err != nil {
		return nil, err
	}

	parts, err := compileTemplate(opts.Response.Body)
	if err != nil {
		return nil, err
	}
	return &templateHandler{resp: opts.Response.Response, body: opts.Response.Body, parts: parts}, nil
}

func compileTemplate(src string) ([]part, error) {
	var parts []part
	last := 0
	for _, loc := range placeholder.FindAllStringSubmatchIndex(src, -1) {
		if loc[0] > last {
			parts = append(parts, part{text: src[last:loc[0]]})
		}
		code := src[loc[2]:loc[3]]
		program, err := expr.Compile(code, expr.Env(templateEnv(nil)))
		if err != nil {
			return nil, fmt.Errorf("%w: template expression %q: %v", ErrInvalidOptions, code, err)
		}
		parts = append(parts, part{program: program})
		last = loc[1]
	}
	if last < len(src) {
		parts = append(parts, part{text: src[last:]})
	}
	return parts, nil
}

// templateEnv builds the evaluation environment. A nil request yields the
// zero-valued environment used for compilation.
func templateEnv(r *http.Request) map[string]any {
	env := map[string]any{
		"method":  "",
		"path":    "",
		"params":  map[string]string{},
		"query":   map[string]string{},
		"headers": map[string]string{},
		"body":    any(nil),
	}
	var body any
	if r != nil {
		env["method"] = r.Method
		env["path"] = r.URL.Path
		env["params"] = Params(r)
		env["query"] = flatten(r.URL.Query())
		env["headers"] = flatten(r.Header)
		body = matching.DecodeJSON(Body(r))
		env["body"] = body
	}
	env["jsonpath"] = func(path string) any {
		v, err := matching.Lookup(path, body)
		if err != nil {
			return nil
		}
		return v
	}
	return env
}

func flatten(values map[string][]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func (h *templateHandler) Handle(w http.ResponseWriter, r *http.Request, _ http.Handler) {
	env := templateEnv(r)

	var sb strings.Builder
	for _, p := range h.parts {
		if p.program == nil {
			sb.WriteString(p.text)
			continue
		}
		out, err := expr.Run(p.program, env)
		if err != nil {
			httputil.WriteInternalError(w, fmt.Sprintf("template error: %v", err))
			return
		}
		sb.WriteString(render(out))
	}

	contentType := "text/plain; charset=utf-8"
	if json.Valid([]byte(sb.String())) {
		contentType = "application/json; charset=utf-8"
	}
	h.resp.writeHeaders(w, contentType)
	w.WriteHeader(h.resp.status())
	_, _ = w.Write([]byte(sb.String()))
}

func render(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any, []any, map[string]string:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

func (h *templateHandler) Preview() any {
	return map[string]any{"status": h.resp.status(), "body": h.body}
}
