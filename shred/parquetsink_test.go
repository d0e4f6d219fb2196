package shred

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotitinc/mongo-bigquery/schema"
	"github.com/gotitinc/mongo-bigquery/typemode"
)

func TestArrowSchemaFor_RootAndShardedRootShareColumns(t *testing.T) {
	fields := []schema.FieldEntry{
		{Path: "tenant", Type: typemode.StringNullable},
		{Path: "n", Type: typemode.IntegerNullable},
		{Path: "tags", Type: typemode.StringRepeated},
	}
	root := ArrowSchemaFor("root", fields)
	sharded := ArrowSchemaFor("root/acme", fields)
	assert.True(t, root.Equal(sharded))

	names := make([]string, 0, root.NumFields())
	for _, f := range root.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"hash_code", "tenant", "n"}, names)
}

func TestArrowSchemaFor_ScalarChildFragment(t *testing.T) {
	fields := []schema.FieldEntry{
		{Path: "tags", Type: typemode.StringRepeated},
	}
	sc := ArrowSchemaFor("tags", fields)
	require.Equal(t, 3, sc.NumFields())
	assert.Equal(t, "value", sc.Field(0).Name)
	assert.Equal(t, "parent_hash_code", sc.Field(1).Name)
	assert.Equal(t, "hash_code", sc.Field(2).Name)
}

func TestArrowSchemaFor_RecordChildFragment(t *testing.T) {
	fields := []schema.FieldEntry{
		{Path: "items", Type: typemode.RecordRepeated},
		{Path: "items.sku", Type: typemode.StringNullable},
		{Path: "items.qty", Type: typemode.IntegerNullable},
	}
	sc := ArrowSchemaFor("items", fields)
	names := make([]string, 0, sc.NumFields())
	for _, f := range sc.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"sku", "qty", "parent_hash_code", "hash_code"}, names)
}
