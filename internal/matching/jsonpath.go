package matching

import (
	"encoding/json"
	"fmt"

	"github.com/ohler55/ojg/jp"
)

// DecodeJSON decodes body into a generic value. Empty or invalid bodies
// yield nil without error; callers treat them as "no JSON body".
func DecodeJSON(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil
	}
	return data
}

// Lookup evaluates a JSONPath expression against data. A path with a single
// result returns that value; several results are returned as a slice.
func Lookup(path string, data any) (any, error) {
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("parse jsonpath %q: %w", path, err)
	}
	if data == nil {
		return nil, nil
	}

	results := expr.Get(data)
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}
