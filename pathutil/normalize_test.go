package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"name", "name"},
		{"Name", "name"},
		{"first-name", "first_name"},
		{"2fast", "_f2fast"},
		{"héllo", "h_llo"},
		{"already_ok_123", "already_ok_123"},
	}
	for _, c := range cases {
		got, err := Normalize(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, in := range []string{"Foo Bar!", "2024-report", "über_cool", "x"} {
		once, err := Normalize(in)
		require.NoError(t, err)
		twice, err := Normalize(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestNormalize_EmptyIsError(t *testing.T) {
	_, err := Normalize("")
	assert.ErrorIs(t, err, ErrEmptySegment)
}

func TestResolve_Root(t *testing.T) {
	r, err := Resolve("User-Id", "", false)
	require.NoError(t, err)
	assert.Equal(t, "user_id", r.FullPath)
	assert.Equal(t, "user_id", r.Column)
}

func TestResolve_ObjectNesting(t *testing.T) {
	r, err := Resolve("Id", "user", false)
	require.NoError(t, err)
	assert.Equal(t, "user_id", r.FullPath)
	assert.Equal(t, "user_id", r.Column)
}

func TestResolve_ArrayElement(t *testing.T) {
	r, err := Resolve("SKU", "items", true)
	require.NoError(t, err)
	assert.Equal(t, "items.sku", r.FullPath)
	// column name keeps the raw key so the shredder can re-look it up in the source map
	assert.Equal(t, "SKU", r.Column)
}

func TestLastSegment(t *testing.T) {
	assert.Equal(t, "sku", LastSegment("items.sku"))
	assert.Equal(t, "user_id", LastSegment("user_id"))
}
