package shred

import (
	"bytes"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotitinc/mongo-bigquery/schema"
	"github.com/gotitinc/mongo-bigquery/typemode"
)

func decode(t *testing.T, js string) map[string]any {
	t.Helper()
	d := json.NewDecoder(bytes.NewReader([]byte(js)))
	d.UseNumber()
	var m map[string]any
	require.NoError(t, d.Decode(&m))
	return m
}

func newStoreWithFields(t *testing.T, entries map[string]typemode.TypeMode) schema.Store {
	t.Helper()
	store := schema.NewMemStore()
	for path, tm := range entries {
		require.NoError(t, store.UpsertField(path, tm))
	}
	return store
}

func TestShred_NestedObject(t *testing.T) {
	store := newStoreWithFields(t, map[string]typemode.TypeMode{
		"user":      typemode.RecordNullable,
		"user_id":   typemode.IntegerNullable,
		"user_name": typemode.StringNullable,
	})
	ctx := NewContext(store, Config{}, nil)
	rows, err := Shred(ctx, decode(t, `{"user": {"id": 7, "name": "Zed"}}`))
	require.NoError(t, err)
	require.Len(t, rows["root"], 1)
	root := rows["root"][0]
	assert.NotEmpty(t, root["hash_code"])
	assert.EqualValues(t, 7, root["user_id"])
	assert.Equal(t, "Zed", root["user_name"])
	assert.Len(t, rows, 1, "no child tables expected for object nesting")
}

func TestShred_RepeatedScalars(t *testing.T) {
	store := newStoreWithFields(t, map[string]typemode.TypeMode{
		"tags": typemode.StringRepeated,
	})
	ctx := NewContext(store, Config{}, nil)
	rows, err := Shred(ctx, decode(t, `{"tags": ["a","b"]}`))
	require.NoError(t, err)
	require.Len(t, rows["root"], 1)
	rootHash := rows["root"][0]["hash_code"]
	require.Len(t, rows["tags"], 2)
	assert.Equal(t, "a", rows["tags"][0]["value"])
	assert.Equal(t, rootHash, rows["tags"][0]["parent_hash_code"])
	assert.Equal(t, "b", rows["tags"][1]["value"])
	assert.Equal(t, rootHash, rows["tags"][1]["parent_hash_code"])
}

func TestShred_RepeatedRecords(t *testing.T) {
	store := newStoreWithFields(t, map[string]typemode.TypeMode{
		"items":     typemode.RecordRepeated,
		"items.sku": typemode.StringNullable,
		"items.qty": typemode.IntegerNullable,
	})
	ctx := NewContext(store, Config{}, nil)
	rows, err := Shred(ctx, decode(t, `{"items":[{"sku":"x","qty":1},{"sku":"y","qty":2}]}`))
	require.NoError(t, err)
	require.Len(t, rows["items"], 2)
	assert.Equal(t, "x", rows["items"][0]["sku"])
	assert.EqualValues(t, 1, rows["items"][0]["qty"])
	assert.Equal(t, rows["root"][0]["hash_code"], rows["items"][0]["parent_hash_code"])
	assert.Equal(t, "y", rows["items"][1]["sku"])

	fragments, err := store.ListFragments()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"root", "items"}, fragments)
}

func TestShred_ForcedCoercion(t *testing.T) {
	store := schema.NewMemStore()
	require.NoError(t, store.ForceField("zip", typemode.StringNullable))
	ctx := NewContext(store, Config{}, nil)
	rows, err := Shred(ctx, decode(t, `{"zip": 94107}`))
	require.NoError(t, err)
	assert.Equal(t, "94107", rows["root"][0]["zip"])
}

func TestShred_ForcedCoercionFailureStoresNull(t *testing.T) {
	store := schema.NewMemStore()
	require.NoError(t, store.ForceField("count", typemode.IntegerNullable))
	ctx := NewContext(store, Config{}, nil)
	rows, err := Shred(ctx, decode(t, `{"count": "not-a-number"}`))
	require.NoError(t, err)
	assert.Nil(t, rows["root"][0]["count"])
}

func TestShred_RejectsOnMissingRequiredField(t *testing.T) {
	store := newStoreWithFields(t, map[string]typemode.TypeMode{
		"user":      typemode.RecordNullable,
		"user_name": typemode.StringNullable,
	})
	ctx := NewContext(store, Config{RequiredPaths: map[string]bool{"user.id": true}}, nil)
	_, err := Shred(ctx, decode(t, `{"user":{"name":"n"}}`))
	require.Error(t, err)
	var rejectErr *RejectError
	require.ErrorAs(t, err, &rejectErr)
	assert.Equal(t, "Missing user.id", rejectErr.Error())
}

func TestShred_RejectsOnTypeCoercionFailure(t *testing.T) {
	store := newStoreWithFields(t, map[string]typemode.TypeMode{
		"count": typemode.IntegerNullable,
	})
	ctx := NewContext(store, Config{}, nil)
	_, err := Shred(ctx, decode(t, `{"count": "not-a-number"}`))
	require.Error(t, err)
	var rejectErr *RejectError
	assert.ErrorAs(t, err, &rejectErr)
}

func TestShred_SkipsFieldAbsentFromSchema(t *testing.T) {
	store := newStoreWithFields(t, map[string]typemode.TypeMode{
		"a": typemode.IntegerNullable,
	})
	ctx := NewContext(store, Config{}, nil)
	rows, err := Shred(ctx, decode(t, `{"a": 1, "b": 2}`))
	require.NoError(t, err)
	_, hasB := rows["root"][0]["b"]
	assert.False(t, hasB)
}

func TestShred_ArrayPolicyJSONString(t *testing.T) {
	store := newStoreWithFields(t, map[string]typemode.TypeMode{
		"tags": typemode.StringRepeated,
	})
	ctx := NewContext(store, Config{ArrayPolicy: JSONString}, nil)
	rows, err := Shred(ctx, decode(t, `{"tags": ["a","b"]}`))
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, rows["root"][0]["tags"])
	assert.Len(t, rows, 1)
}

func TestShred_ShardKey(t *testing.T) {
	store := newStoreWithFields(t, map[string]typemode.TypeMode{
		"tenant": typemode.StringNullable,
		"a":      typemode.IntegerNullable,
	})
	ctx := NewContext(store, Config{ShardKeyPath: "tenant"}, nil)
	rows, err := Shred(ctx, decode(t, `{"tenant":"acme","a":1}`))
	require.NoError(t, err)
	require.Len(t, rows["root/acme"], 1)
	shards, err := store.ListShards()
	require.NoError(t, err)
	assert.Equal(t, []string{"acme"}, shards)
}

func TestShred_ShardKeyMissingRejects(t *testing.T) {
	store := newStoreWithFields(t, map[string]typemode.TypeMode{"a": typemode.IntegerNullable})
	ctx := NewContext(store, Config{ShardKeyPath: "tenant"}, nil)
	_, err := Shred(ctx, decode(t, `{"a":1}`))
	require.Error(t, err)
}

func TestShred_ShardKeyTooLongRejects(t *testing.T) {
	store := newStoreWithFields(t, map[string]typemode.TypeMode{"tenant": typemode.StringNullable})
	ctx := NewContext(store, Config{ShardKeyPath: "tenant", MaxShardLen: 4}, nil)
	_, err := Shred(ctx, decode(t, `{"tenant":"too-long-value"}`))
	require.Error(t, err)
}

func TestShred_HashDeterminism(t *testing.T) {
	store := newStoreWithFields(t, map[string]typemode.TypeMode{"a": typemode.IntegerNullable})
	ctx := NewContext(store, Config{}, nil)
	r1, err := Shred(ctx, decode(t, `{"a":1}`))
	require.NoError(t, err)
	r2, err := Shred(ctx, decode(t, `{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, r1["root"][0]["hash_code"], r2["root"][0]["hash_code"])
}

func TestShred_ArrayInsideNestedObjectLinksToRootHash(t *testing.T) {
	store := newStoreWithFields(t, map[string]typemode.TypeMode{
		"user":      typemode.RecordNullable,
		"user_tags": typemode.StringRepeated,
	})
	ctx := NewContext(store, Config{}, nil)
	rows, err := Shred(ctx, decode(t, `{"user":{"tags":["a","b"]}}`))
	require.NoError(t, err)
	rootHash := rows["root"][0]["hash_code"]
	require.Len(t, rows["user_tags"], 2)
	assert.Equal(t, rootHash, rows["user_tags"][0]["parent_hash_code"])
	assert.Equal(t, rootHash, rows["user_tags"][1]["parent_hash_code"])
}

func TestShred_NestedArrayInsideRepeatedRecordLinksToElementHash(t *testing.T) {
	store := newStoreWithFields(t, map[string]typemode.TypeMode{
		"items":          typemode.RecordRepeated,
		"items.sku":      typemode.StringNullable,
		"items.variants": typemode.StringRepeated,
	})
	ctx := NewContext(store, Config{}, nil)
	rows, err := Shred(ctx, decode(t, `{"items":[{"sku":"x","variants":["s","m"]}]}`))
	require.NoError(t, err)
	require.Len(t, rows["items"], 1)
	elemHash := rows["items"][0]["hash_code"]
	require.Len(t, rows["items.variants"], 2)
	assert.Equal(t, elemHash, rows["items.variants"][0]["parent_hash_code"])
}
