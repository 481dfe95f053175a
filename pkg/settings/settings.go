// Package settings holds the runtime options of varmock. Values come, in
// increasing precedence, from built-in defaults, a YAML file, VARMOCK_*
// environment variables, command-line flags and the admin API. Subscribers
// are told which key changed.
package settings

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Key names one setting.
type Key string

// Known keys.
const (
	KeyHost      Key = "host"
	KeyPort      Key = "port"
	KeyDelay     Key = "delay"
	KeyMock      Key = "mock"
	KeyPath      Key = "path"
	KeyWatch     Key = "watch"
	KeyCORS      Key = "cors"
	KeyLogLevel  Key = "log.level"
	KeyLogFormat Key = "log.format"
	KeyAdminPath Key = "adminPath"
)

// Source identifies where the current value of a key came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceFile    Source = "file"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
	SourceAPI     Source = "api"
)

var (
	ErrUnknownKey   = errors.New("unknown setting")
	ErrInvalidValue = errors.New("invalid setting value")
)

type kind int

const (
	kindString kind = iota
	kindInt
	kindBool
)

type definition struct {
	kind     kind
	value    any
	env      string
	validate func(any) error
}

var definitions = map[Key]definition{
	KeyHost:      {kind: kindString, value: "0.0.0.0", env: "VARMOCK_HOST"},
	KeyPort:      {kind: kindInt, value: 3100, env: "VARMOCK_PORT", validate: intRange(0, 65535)},
	KeyDelay:     {kind: kindInt, value: 0, env: "VARMOCK_DELAY", validate: intRange(0, math.MaxInt32)},
	KeyMock:      {kind: kindString, value: "", env: "VARMOCK_MOCK"},
	KeyPath:      {kind: kindString, value: "mocks", env: "VARMOCK_PATH", validate: nonEmpty},
	KeyWatch:     {kind: kindBool, value: true, env: "VARMOCK_WATCH"},
	KeyCORS:      {kind: kindBool, value: true, env: "VARMOCK_CORS"},
	KeyLogLevel:  {kind: kindString, value: "info", env: "VARMOCK_LOG_LEVEL"},
	KeyLogFormat: {kind: kindString, value: "text", env: "VARMOCK_LOG_FORMAT", validate: oneOf("text", "json")},
	KeyAdminPath: {kind: kindString, value: "/admin", env: "VARMOCK_ADMIN_PATH", validate: absPath},
}

// Keys returns every known key, sorted.
func Keys() []Key {
	keys := slices.Collect(maps.Keys(definitions))
	slices.Sort(keys)
	return keys
}

// Settings is safe for concurrent use.
type Settings struct {
	mu      sync.RWMutex
	values  map[Key]any
	sources map[Key]Source
	subs    map[int]func(Key)
	nextSub int
}

// New returns settings holding the defaults.
func New() *Settings {
	s := &Settings{
		values:  make(map[Key]any, len(definitions)),
		sources: make(map[Key]Source, len(definitions)),
		subs:    make(map[int]func(Key)),
	}
	for k, d := range definitions {
		s.values[k] = d.value
		s.sources[k] = SourceDefault
	}
	return s
}

// Get returns the value of key, or nil when the key is unknown.
func (s *Settings) Get(key Key) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// String returns a string setting.
func (s *Settings) String(key Key) string {
	v, _ := s.Get(key).(string)
	return v
}

// Int returns an integer setting.
func (s *Settings) Int(key Key) int {
	v, _ := s.Get(key).(int)
	return v
}

// Bool returns a boolean setting.
func (s *Settings) Bool(key Key) bool {
	v, _ := s.Get(key).(bool)
	return v
}

// Source returns where the current value of key came from.
func (s *Settings) Source(key Key) Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sources[key]
}

// All returns a copy of every value keyed by name.
func (s *Settings) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[string(k)] = v
	}
	return out
}

// Set changes key as the admin API would.
func (s *Settings) Set(key Key, value any) error {
	return s.SetFrom(key, value, SourceAPI)
}

// SetFrom coerces value to the type of key and stores it. Subscribers are
// notified only when the stored value changes.
func (s *Settings) SetFrom(key Key, value any, src Source) error {
	v, err := normalize(key, value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	changed := s.values[key] != v
	s.values[key] = v
	s.sources[key] = src
	var subs []func(Key)
	if changed {
		subs = make([]func(Key), 0, len(s.subs))
		for _, id := range slices.Sorted(maps.Keys(s.subs)) {
			subs = append(subs, s.subs[id])
		}
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(key)
	}
	return nil
}

// Check reports whether value is acceptable for key without storing it.
func Check(key Key, value any) error {
	_, err := normalize(key, value)
	return err
}

func normalize(key Key, value any) (any, error) {
	d, ok := definitions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	v, err := coerce(d.kind, value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err)
	}
	if d.validate != nil {
		if err := d.validate(v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err)
		}
	}
	return v, nil
}

// Subscribe registers fn to be called with every changed key. The returned
// function removes the subscription.
func (s *Settings) Subscribe(fn func(Key)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func coerce(k kind, value any) (any, error) {
	switch k {
	case kindString:
		switch v := value.(type) {
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		case int, int64, float64, bool:
			return fmt.Sprint(v), nil
		}
	case kindInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v != math.Trunc(v) {
				return nil, fmt.Errorf("%v is not an integer", v)
			}
			return int(v), nil
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("%q is not an integer", v)
			}
			return n, nil
		}
	case kindBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				switch strings.ToLower(strings.TrimSpace(v)) {
				case "yes", "on":
					return true, nil
				case "no", "off":
					return false, nil
				}
				return nil, fmt.Errorf("%q is not a boolean", v)
			}
			return b, nil
		}
	}
	return nil, fmt.Errorf("unsupported type %T", value)
}

func intRange(lo, hi int) func(any) error {
	return func(v any) error {
		n := v.(int)
		if n < lo || n > hi {
			return fmt.Errorf("%d out of range [%d, %d]", n, lo, hi)
		}
		return nil
	}
}

func oneOf(allowed ...string) func(any) error {
	return func(v any) error {
		if !slices.Contains(allowed, v.(string)) {
			return fmt.Errorf("%q must be one of %s", v, strings.Join(allowed, ", "))
		}
		return nil
	}
}

func nonEmpty(v any) error {
	if v.(string) == "" {
		return errors.New("must not be empty")
	}
	return nil
}

func absPath(v any) error {
	if !strings.HasPrefix(v.(string), "/") {
		return fmt.Errorf("%q must start with /", v)
	}
	return nil
}
