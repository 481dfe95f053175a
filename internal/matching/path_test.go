package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	t.Parallel()

	invalid := []string{"", "api/users", "/api/:", "/api/{}", "/api/:id?/more"}
	for _, p := range invalid {
		t.Run("rejects "+p, func(t *testing.T) {
			t.Parallel()
			_, err := Compile(p)
			require.ErrorIs(t, err, ErrInvalidPattern)
		})
	}
}

func TestPatternMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pattern    string
		path       string
		wantMatch  bool
		wantParams map[string]string
	}{
		{"exact", "/api/users", "/api/users", true, map[string]string{}},
		{"trailing slash", "/api/users", "/api/users/", true, map[string]string{}},
		{"case insensitive", "/api/Users", "/API/users", true, map[string]string{}},
		{"extra segment", "/api/users", "/api/users/1", false, nil},
		{"colon param", "/api/users/:id", "/api/users/42", true, map[string]string{"id": "42"}},
		{"brace param", "/api/users/{id}", "/api/users/42", true, map[string]string{"id": "42"}},
		{"two params", "/api/:kind/:id", "/api/books/7", true, map[string]string{"kind": "books", "id": "7"}},
		{"missing param", "/api/users/:id", "/api/users", false, nil},
		{"optional present", "/api/users/:id?", "/api/users/3", true, map[string]string{"id": "3"}},
		{"optional absent", "/api/users/:id?", "/api/users", true, map[string]string{}},
		{"trailing wildcard", "/api/*", "/api/a/b/c", true, map[string]string{"0": "a/b/c"}},
		{"trailing wildcard empty", "/api/*", "/api", true, map[string]string{"0": ""}},
		{"inner wildcard", "/api/*/items", "/api/users/items", true, map[string]string{"0": "users"}},
		{"catch all", "*", "/anything/at/all", true, map[string]string{"0": "anything/at/all"}},
		{"root", "/", "/", true, map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := MustCompile(tt.pattern)
			params, ok := p.Match(tt.path)
			assert.Equal(t, tt.wantMatch, ok)
			if tt.wantMatch {
				assert.Equal(t, tt.wantParams, params)
			}
		})
	}
}

func TestMethodSet(t *testing.T) {
	t.Parallel()

	assert.True(t, NewMethodSet().Match("DELETE"))
	assert.True(t, NewMethodSet("*").Match("PATCH"))
	assert.True(t, NewMethodSet("all").Match("PATCH"))
	assert.True(t, NewMethodSet("get").Match("GET"))
	assert.True(t, NewMethodSet("GET").Match("HEAD"))
	assert.False(t, NewMethodSet("GET", "POST").Match("PUT"))
	assert.True(t, NewMethodSet("GET", "put").Match("put"))
}

func TestLookup(t *testing.T) {
	t.Parallel()

	data := DecodeJSON([]byte(`{"user":{"name":"Jane","tags":["a","b"]}}`))

	v, err := Lookup("$.user.name", data)
	require.NoError(t, err)
	assert.Equal(t, "Jane", v)

	v, err = Lookup("$.user.tags[*]", data)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, v)

	v, err = Lookup("$.missing", data)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = Lookup("$.user", nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = Lookup("$[", data)
	assert.Error(t, err)

	assert.Nil(t, DecodeJSON([]byte("not json")))
	assert.Nil(t, DecodeJSON(nil))
}
