package schema

import (
	"testing"

	"github.com/gotitinc/mongo-bigquery/typemode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReducer_FlatScalarsWiden(t *testing.T) {
	store := NewMemStore()
	r := NewReducer(store, nil)

	require.NoError(t, r.ReduceDocument(decode(t, `{"a": 1}`)))
	require.NoError(t, r.ReduceDocument(decode(t, `{"a": 2.5}`)))

	e, ok, err := store.GetField("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, typemode.FloatNullable, e.Type)

	require.NoError(t, r.ReduceDocument(decode(t, `{"a": "x"}`)))
	e, ok, err = store.GetField("a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, typemode.StringNullable, e.Type)
}

func TestReducer_Idempotent(t *testing.T) {
	docs := []map[string]any{
		decode(t, `{"a": 1, "user": {"id": 7}}`),
		decode(t, `{"a": 2.5, "tags": ["x","y"]}`),
		decode(t, `{"a": "z"}`),
	}

	run := func() []FieldEntry {
		store := NewMemStore()
		r := NewReducer(store, nil)
		for _, d := range docs {
			require.NoError(t, r.ReduceDocument(d))
		}
		fields, err := store.Fields()
		require.NoError(t, err)
		return fields
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
}

func TestReducer_ForcedIsFixpoint(t *testing.T) {
	store := NewMemStore()
	require.NoError(t, ApplyPolicies(store, []Policy{
		{Path: "zip", DataType: baseTypePtr(typemode.String)},
	}))
	r := NewReducer(store, nil)
	require.NoError(t, r.ReduceDocument(decode(t, `{"zip": 94107}`)))

	e, ok, err := store.GetField("zip")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, typemode.StringNullable, e.Type)
	assert.True(t, e.Forced)
}

func baseTypePtr(b typemode.BaseType) *typemode.BaseType { return &b }
