package settings

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// FileName is the settings file looked up in the working directory.
const FileName = "varmock.yaml"

// ErrInvalidFile is returned when the settings file cannot be decoded.
var ErrInvalidFile = errors.New("invalid settings file")

// LoadFile applies the YAML document at path. Nested maps address dotted
// keys, so "log: {level: debug}" sets log.level. A missing file is not an
// error when optional is true.
func (s *Settings) LoadFile(path string, optional bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading settings: %w", err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidFile, path, err)
	}

	flat := Flatten(doc)

	var errs []error
	for _, key := range slices.Sorted(maps.Keys(flat)) {
		if err := s.SetFrom(key, flat[key], SourceFile); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s: %w", ErrInvalidFile, path, errors.Join(errs...))
	}
	return nil
}

// Flatten maps a nested document to dotted keys.
func Flatten(doc map[string]any) map[Key]any {
	out := make(map[Key]any)
	flatten("", doc, out)
	return out
}

func flatten(prefix string, m map[string]any, out map[Key]any) {
	for k, v := range m {
		name := k
		if prefix != "" {
			name = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(name, nested, out)
			continue
		}
		out[Key(name)] = v
	}
}

// LoadEnv applies VARMOCK_* variables found through lookup, which is
// os.LookupEnv when nil.
func (s *Settings) LoadEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var errs []error
	for _, key := range Keys() {
		v, ok := lookup(definitions[key].env)
		if !ok || v == "" {
			continue
		}
		if err := s.SetFrom(key, v, SourceEnv); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EnvName returns the environment variable read for key.
func EnvName(key Key) string {
	return definitions[key].env
}
