package matching

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPattern is returned for URL patterns that cannot be compiled.
var ErrInvalidPattern = errors.New("invalid url pattern")

type segmentKind int

const (
	segLiteral segmentKind = iota
	segParam
	segWildcard
)

type segment struct {
	kind     segmentKind
	value    string // literal text or param name
	optional bool
}

// Pattern is a compiled URL pattern. A Pattern is immutable and safe for
// concurrent use.
type Pattern struct {
	raw      string
	segments []segment
}

// Compile parses a URL pattern.
func Compile(pattern string) (*Pattern, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	if pattern == "*" {
		return &Pattern{raw: pattern, segments: []segment{{kind: segWildcard}}}, nil
	}
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("%w: %q must start with /", ErrInvalidPattern, pattern)
	}

	parts := splitPath(pattern)
	p := &Pattern{raw: pattern, segments: make([]segment, 0, len(parts))}
	for i, part := range parts {
		seg, err := parseSegment(part)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err)
		}
		if seg.optional && i != len(parts)-1 {
			return nil, fmt.Errorf("%w: %q: optional segment must be last", ErrInvalidPattern, pattern)
		}
		p.segments = append(p.segments, seg)
	}
	return p, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

func parseSegment(part string) (segment, error) {
	switch {
	case part == "*":
		return segment{kind: segWildcard}, nil
	case strings.HasPrefix(part, ":"):
		name := strings.TrimPrefix(part, ":")
		optional := strings.HasSuffix(name, "?")
		name = strings.TrimSuffix(name, "?")
		if name == "" {
			return segment{}, errors.New("empty parameter name")
		}
		return segment{kind: segParam, value: name, optional: optional}, nil
	case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
		name := part[1 : len(part)-1]
		if name == "" {
			return segment{}, errors.New("empty parameter name")
		}
		return segment{kind: segParam, value: name}, nil
	default:
		return segment{kind: segLiteral, value: part}, nil
	}
}

// String returns the source pattern.
func (p *Pattern) String() string { return p.raw }

// Match reports whether path matches the pattern and returns the captured
// parameters. Wildcard captures are keyed "0", "1", ... in order.
func (p *Pattern) Match(path string) (map[string]string, bool) {
	parts := splitPath(path)
	params := map[string]string{}
	wildcards := 0

	for i, seg := range p.segments {
		last := i == len(p.segments)-1

		if seg.kind == segWildcard && last {
			params[strconv.Itoa(wildcards)] = strings.Join(parts[min(i, len(parts)):], "/")
			return params, true
		}

		if i >= len(parts) {
			if seg.optional {
				return params, true
			}
			return nil, false
		}

		switch seg.kind {
		case segLiteral:
			if !strings.EqualFold(seg.value, parts[i]) {
				return nil, false
			}
		case segParam:
			params[seg.value] = parts[i]
		case segWildcard:
			params[strconv.Itoa(wildcards)] = parts[i]
			wildcards++
		}
	}

	if len(parts) != len(p.segments) {
		return nil, false
	}
	return params, true
}

// splitPath splits a URL path into its non-empty segments.
func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return []string{}
	}
	return strings.Split(trimmed, "/")
}

// MethodSet is a set of upper-cased HTTP methods. An empty set, or one
// containing "*", matches every method.
type MethodSet []string

// NewMethodSet normalizes methods into a MethodSet.
func NewMethodSet(methods ...string) MethodSet {
	set := make(MethodSet, 0, len(methods))
	for _, m := range methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" {
			continue
		}
		if m == "ALL" {
			m = "*"
		}
		set = append(set, m)
	}
	return set
}

// Match reports whether method is part of the set. HEAD requests match GET
// entries.
func (s MethodSet) Match(method string) bool {
	if len(s) == 0 {
		return true
	}
	method = strings.ToUpper(method)
	for _, m := range s {
		if m == "*" || m == method || (method == "HEAD" && m == "GET") {
			return true
		}
	}
	return false
}
