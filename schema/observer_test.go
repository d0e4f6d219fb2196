package schema

import (
	"bytes"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/gotitinc/mongo-bigquery/typemode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, js string) map[string]any {
	t.Helper()
	d := json.NewDecoder(bytes.NewReader([]byte(js)))
	d.UseNumber()
	var m map[string]any
	require.NoError(t, d.Decode(&m))
	return m
}

func TestObserve_FlatScalars(t *testing.T) {
	obs := Observe(decode(t, `{"a": 1}`))
	assert.Equal(t, []Observation{{Path: "a", Type: typemode.IntegerNullable}}, obs)
}

func TestObserve_NestedObject(t *testing.T) {
	obs := Observe(decode(t, `{"user": {"id": 7, "name": "Zed"}}`))
	byPath := toMap(obs)
	assert.Equal(t, typemode.RecordNullable, byPath["user"])
	assert.Equal(t, typemode.IntegerNullable, byPath["user_id"])
	assert.Equal(t, typemode.StringNullable, byPath["user_name"])
}

func TestObserve_RepeatedScalars(t *testing.T) {
	obs := Observe(decode(t, `{"tags": ["a","b"]}`))
	require.Len(t, obs, 2)
	for _, o := range obs {
		assert.Equal(t, "tags", o.Path)
		assert.Equal(t, typemode.StringRepeated, o.Type)
	}
}

func TestObserve_RepeatedRecords(t *testing.T) {
	obs := Observe(decode(t, `{"items":[{"sku":"x","qty":1},{"sku":"y","qty":2}]}`))
	var recordRepeatedCount int
	byPath := toMap(obs)
	for _, o := range obs {
		if o.Path == "items" && o.Type == typemode.RecordRepeated {
			recordRepeatedCount++
		}
	}
	assert.Equal(t, 2, recordRepeatedCount)
	assert.Equal(t, typemode.StringNullable, byPath["items.sku"])
	assert.Equal(t, typemode.IntegerNullable, byPath["items.qty"])
}

func TestObserve_SkipsEmptyContainersAndNull(t *testing.T) {
	obs := Observe(decode(t, `{"a": null, "b": {}, "c": []}`))
	assert.Empty(t, obs)
}

func toMap(obs []Observation) map[string]typemode.TypeMode {
	m := make(map[string]typemode.TypeMode)
	for _, o := range obs {
		m[o.Path] = o.Type
	}
	return m
}

func TestObserve_JSONStringArraysTypeArraysAsStrings(t *testing.T) {
	doc := decode(t, `{"tags": ["a","b"], "items":[{"sku":"x"}], "n": 1}`)
	obs := Observer{JSONStringArrays: true}.Observe(doc)
	byPath := toMap(obs)
	assert.Equal(t, typemode.StringNullable, byPath["tags"])
	assert.Equal(t, typemode.StringNullable, byPath["items"])
	assert.Equal(t, typemode.IntegerNullable, byPath["n"])
	assert.NotContains(t, byPath, "items.sku")
}
