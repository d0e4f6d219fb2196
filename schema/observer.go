package schema

import (
	"encoding/json"
	"sort"

	"github.com/gotitinc/mongo-bigquery/pathutil"
	"github.com/gotitinc/mongo-bigquery/typemode"
)

// Observation is one (path, type-mode) emission of the Schema Observer:
// the "Mapper" half of the map/reduce-style schema inference pass.
type Observation struct {
	Path string
	Type typemode.TypeMode
}

// observeFrame is one unit of iterative-walker work: a record whose fields
// still need visiting. Using an explicit stack instead of a recursive
// function keeps Observe safe against pathological/deeply-nested input
// (design note "unbounded recursion over nested JSON" — the walker must be
// an explicit iterative/queue-based traversal).
type observeFrame struct {
	record        map[string]any
	parentPath    string
	parentIsArray bool
}

// Observer carries the observation-time configuration. The zero value
// observes arrays structurally (repeated modes, dotted child paths); with
// JSONStringArrays set, arrays are typed as plain strings instead, matching
// a run whose process_array policy serializes arrays to JSON text rather
// than shredding them into child tables.
type Observer struct {
	JSONStringArrays bool
}

// Observe walks one decoded JSON document (as produced by docsource.InputMap
// with UseNumber semantics) and returns every (path, type-mode) observation.
// Empty objects, empty arrays and null values are
// skipped — the warehouse cannot represent a fieldless record, and an
// unpopulated value carries no type information.
func Observe(doc map[string]any) []Observation {
	return Observer{}.Observe(doc)
}

// Observe implements the walk for one Observer configuration.
func (o Observer) Observe(doc map[string]any) []Observation {
	var out []Observation
	stack := []observeFrame{{record: doc}}
	for len(stack) > 0 {
		n := len(stack) - 1
		frame := stack[n]
		stack = stack[:n]

		keys := make([]string, 0, len(frame.record))
		for k := range frame.record {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, rawKey := range keys {
			value := frame.record[rawKey]
			resolved, err := pathutil.Resolve(rawKey, frame.parentPath, frame.parentIsArray)
			if err != nil {
				// A key that normalizes to empty is dropped from inference;
				// the shredder will independently reject/skip it.
				continue
			}
			path := resolved.FullPath

			switch v := value.(type) {
			case nil:
				// null: nothing emitted.
			case map[string]any:
				if len(v) == 0 {
					continue
				}
				out = append(out, Observation{Path: path, Type: typemode.RecordNullable})
				stack = append(stack, observeFrame{record: v, parentPath: path})
			case []any:
				if len(v) == 0 {
					continue
				}
				if o.JSONStringArrays {
					out = append(out, Observation{Path: path, Type: typemode.StringNullable})
					continue
				}
				for _, elem := range v {
					switch e := elem.(type) {
					case map[string]any:
						out = append(out, Observation{Path: path, Type: typemode.RecordRepeated})
						if len(e) > 0 {
							stack = append(stack, observeFrame{record: e, parentPath: path, parentIsArray: true})
						}
					default:
						out = append(out, Observation{Path: path, Type: typemode.TypeMode{Base: scalarBaseType(e), Mode: typemode.Repeated}})
					}
				}
			default:
				out = append(out, Observation{Path: path, Type: typemode.TypeMode{Base: scalarBaseType(v), Mode: typemode.Nullable}})
			}
		}
	}
	return out
}

// scalarBaseType types a decoded JSON leaf value: booleans are
// boolean, json.Number within platform-safe signed 64-bit is integer,
// other numerics are float, everything else (including null elements
// inside an array, which carry no type of their own) is string.
func scalarBaseType(v any) typemode.BaseType {
	switch t := v.(type) {
	case bool:
		return typemode.Boolean
	case json.Number:
		if _, err := t.Int64(); err == nil {
			return typemode.Integer
		}
		return typemode.Float
	case float64:
		return typemode.Float
	case int, int64:
		return typemode.Integer
	default:
		return typemode.String
	}
}
