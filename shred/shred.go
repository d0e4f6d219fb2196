// Package shred implements the relational shredder: given a resolved
// Schema and a decoded document, it rewrites the document into one root
// row plus any number of child-table rows for repeated fields, all linked
// by content-addressed parent/child hash codes.
package shred

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/gotitinc/mongo-bigquery/pathutil"
	"github.com/gotitinc/mongo-bigquery/schema"
	"github.com/gotitinc/mongo-bigquery/typemode"
)

// ArrayPolicy selects how the shredder treats repeated (array) fields.
type ArrayPolicy int

const (
	// ChildTable emits one row per array element into a child fragment.
	ChildTable ArrayPolicy = iota
	// JSONString serializes the whole array as a JSON-text column instead
	// of producing a child table.
	JSONString
)

func (p ArrayPolicy) String() string {
	if p == JSONString {
		return "json_string"
	}
	return "child_table"
}

// defaultMaxShardLen is the inherited shard-value length limit, kept
// configurable via Config.MaxShardLen rather than hard-coded.
const defaultMaxShardLen = 32

// Config is the subset of the run configuration the shredder itself
// consumes.
type Config struct {
	ArrayPolicy   ArrayPolicy
	ShardKeyPath  string
	MaxShardLen   int
	RequiredPaths map[string]bool
}

func (c Config) maxShardLen() int {
	if c.MaxShardLen <= 0 {
		return defaultMaxShardLen
	}
	return c.MaxShardLen
}

// Row is a flat column-name → scalar-value mapping for one row fragment.
type Row map[string]any

// FragmentRows maps a fragment identifier to the rows produced for it.
type FragmentRows map[string][]Row

func (f FragmentRows) merge(other FragmentRows) {
	for id, rows := range other {
		f[id] = append(f[id], rows...)
	}
}

// RejectError carries the reason a document was rejected: a document
// failing to decode at all is handled upstream by the caller; missing
// required fields, type-coercion failures and shape mismatches against the
// resolved schema are all surfaced this way from inside the shredder.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string { return e.Reason }

func reject(format string, args ...any) error {
	return &RejectError{Reason: fmt.Sprintf(format, args...)}
}

// ErrPathNotRecord / ErrPathNotArray back SchemaConflict rejections when the
// document's shape disagrees with the resolved Schema at a path.
var (
	ErrPathNotRecord = errors.New("value is not an object where schema expects a record")
	ErrPathNotArray  = errors.New("value is not an array where schema expects repeated")
)

// Context is the explicit, non-global state a Shred call needs: read access
// to the resolved Schema Store, the run's shredder Config and an optional
// logger. Passing this by value into every call (instead of reaching for
// package-level state) is what keeps Shred safe to call from many
// concurrent worker goroutines, each with its own Context.
type Context struct {
	Store  schema.Store
	Config Config
	Logger *zap.Logger
}

// NewContext returns a ready-to-use Context, defaulting Logger to a no-op
// logger when none is supplied.
func NewContext(store schema.Store, cfg Config, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{Store: store, Config: cfg, Logger: logger}
}

// Shred is the top-level entry point: it computes doc's hash_code, resolves
// the shard fragment (if configured), walks doc's fields against the
// resolved Schema and returns every row fragment produced.
func Shred(ctx *Context, doc map[string]any) (FragmentRows, error) {
	hash, err := hashCode(doc)
	if err != nil {
		return nil, reject("could not compute hash_code: %v", err)
	}

	fragmentID := "root"
	if ctx.Config.ShardKeyPath != "" {
		shardValue, err := resolveShardValue(doc, ctx.Config.ShardKeyPath, ctx.Config.maxShardLen())
		if err != nil {
			return nil, err
		}
		if err := ctx.Store.AddShard(shardValue); err != nil {
			return nil, fmt.Errorf("shred: record shard: %w", err)
		}
		fragmentID = "root/" + shardValue
	}
	if err := ctx.Store.AddFragment(fragmentID); err != nil {
		return nil, fmt.Errorf("shred: record fragment: %w", err)
	}
	if err := checkRequired(doc, ctx.Config.RequiredPaths); err != nil {
		return nil, err
	}

	row, fragments, err := shredRecord(ctx, doc, hash, "", false, "")
	if err != nil {
		return nil, err
	}
	if fragments == nil {
		fragments = FragmentRows{}
	}
	fragments[fragmentID] = append([]Row{row}, fragments[fragmentID]...)
	return fragments, nil
}

// resolveShardValue extracts and validates the shard key per run
// configuration: missing (or null), non-scalar, empty or over-length values
// reject the document. The length is measured on the value's string form as
// it stands; the shard value is not normalized.
func resolveShardValue(doc map[string]any, path string, maxLen int) (string, error) {
	v, ok := lookupDotted(doc, path)
	if !ok || v == nil {
		return "", reject("shard key %q missing", path)
	}
	switch v.(type) {
	case map[string]any, []any:
		return "", reject("shard key %q is not scalar", path)
	}
	s, err := coerceString(v)
	if err != nil {
		return "", reject("shard key %q is not scalar: %v", path, err)
	}
	if s == "" {
		return "", reject("shard key %q is empty", path)
	}
	if len(s) > maxLen {
		return "", reject("shard key %q exceeds %d characters", path, maxLen)
	}
	return s, nil
}

// lookupDotted resolves a dotted path against a raw (un-normalized,
// un-shredded) document, descending through nested objects on '.'.
func lookupDotted(doc map[string]any, path string) (any, bool) {
	cur := any(doc)
	for _, seg := range splitDotted(path) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[seg]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func splitDotted(path string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segs = append(segs, path[start:i])
			start = i + 1
		}
	}
	segs = append(segs, path[start:])
	return segs
}

// shredRecord walks one decoded sub-document's fields against the resolved
// Schema. It returns the flat root row for record (the caller decides
// whether to merge that row into a parent row or append it to a fragment)
// plus every descendant fragment discovered while recursing.
func shredRecord(ctx *Context, record map[string]any, hash, parentPath string, parentIsArray bool, parentHash string) (Row, FragmentRows, error) {
	row := Row{"hash_code": hash}
	if parentHash != "" {
		row["parent_hash_code"] = parentHash
	}
	fragments := FragmentRows{}

	for rawKey, value := range record {
		if value == nil {
			continue
		}
		resolved, err := pathutil.Resolve(rawKey, parentPath, parentIsArray)
		if err != nil {
			// A key normalizing to the empty segment is dropped, matching
			// the Schema Observer's own lossy handling of the same case.
			continue
		}
		path := resolved.FullPath

		switch v := value.(type) {
		case map[string]any:
			if len(v) == 0 {
				continue
			}
		case []any:
			if len(v) == 0 {
				continue
			}
		}

		entry, ok, err := ctx.Store.GetField(path)
		if err != nil {
			return nil, nil, fmt.Errorf("shred: schema lookup %q: %w", path, err)
		}
		if !ok {
			ctx.Logger.Debug("skipping field absent from resolved schema", zap.String("path", path))
			continue
		}
		if err := dispatchField(ctx, row, fragments, resolved, entry, value, hash); err != nil {
			return nil, nil, err
		}
	}

	return row, fragments, nil
}

// dispatchField handles one resolved (path, value) pair per the resolved
// Schema's (base type, mode), mutating row and fragments in place.
func dispatchField(ctx *Context, row Row, fragments FragmentRows, resolved pathutil.Resolved, entry schema.FieldEntry, value any, rowHash string) error {
	path := resolved.FullPath
	switch {
	case entry.Type.Base == typemode.Record && entry.Type.Mode == typemode.Nullable:
		obj, ok := value.(map[string]any)
		if !ok {
			return reject("field %q: %v", path, ErrPathNotRecord)
		}
		// The nested record flattens into the enclosing row, so the walk
		// keeps the enclosing row's hash: any array nested inside obj must
		// link its child rows to a hash_code that is actually emitted.
		childRow, childFragments, err := shredRecord(ctx, obj, rowHash, path, false, "")
		if err != nil {
			return err
		}
		for k, v := range childRow {
			if k == "hash_code" || k == "parent_hash_code" {
				continue
			}
			row[k] = v
		}
		fragments.merge(childFragments)
		return nil

	case entry.Type.Base == typemode.Record && entry.Type.Mode == typemode.Repeated:
		arr, ok := value.([]any)
		if !ok {
			return reject("field %q: %v", path, ErrPathNotArray)
		}
		if ctx.Config.ArrayPolicy == JSONString {
			text, err := json.Marshal(arr)
			if err != nil {
				return reject("field %q: could not serialize array: %v", path, err)
			}
			row[resolved.Column] = string(text)
			return nil
		}
		if err := ctx.Store.AddFragment(path); err != nil {
			return fmt.Errorf("shred: record fragment %q: %w", path, err)
		}
		for _, elem := range arr {
			obj, ok := elem.(map[string]any)
			if !ok {
				return reject("field %q: %v", path, ErrPathNotRecord)
			}
			elemHash, err := hashCode(obj)
			if err != nil {
				return reject("field %q: could not hash array element: %v", path, err)
			}
			elemRow, elemFragments, err := shredRecord(ctx, obj, elemHash, path, true, rowHash)
			if err != nil {
				return err
			}
			fragments[path] = append(fragments[path], elemRow)
			fragments.merge(elemFragments)
		}
		return nil

	case entry.Type.Mode == typemode.Nullable:
		column := resolved.Column
		if column == path {
			// An object field nested inside an array element lives on that
			// element's child table under the suffix after the last '.'.
			column = pathutil.LastSegment(path)
		}
		coerced, err := coerceScalar(entry.Type.Base, value)
		if err != nil {
			if entry.Forced {
				row[column] = nil
				return nil
			}
			return reject("field %q: %v", path, err)
		}
		row[column] = coerced
		return nil

	default: // scalar, repeated
		arr, ok := value.([]any)
		if !ok {
			return reject("field %q: %v", path, ErrPathNotArray)
		}
		if ctx.Config.ArrayPolicy == JSONString {
			text, err := json.Marshal(arr)
			if err != nil {
				return reject("field %q: could not serialize array: %v", path, err)
			}
			row[resolved.Column] = string(text)
			return nil
		}
		if err := ctx.Store.AddFragment(path); err != nil {
			return fmt.Errorf("shred: record fragment %q: %w", path, err)
		}
		for _, elem := range arr {
			coerced, err := coerceScalar(entry.Type.Base, elem)
			if err != nil {
				if entry.Forced {
					coerced = nil
				} else {
					return reject("field %q: %v", path, err)
				}
			}
			fragments[path] = append(fragments[path], Row{"value": coerced, "parent_hash_code": rowHash})
		}
		return nil
	}
}

// checkRequired rejects a document missing any policy-required field.
// Required paths are dotted addresses into the raw document (policies[].path,
// e.g. "user.id"), not normalized Schema paths, so presence is checked with a
// plain recursive map lookup rather than anything the Path Normalizer
// produces.
func checkRequired(doc map[string]any, required map[string]bool) error {
	for path := range required {
		if _, ok := lookupDotted(doc, path); !ok {
			return reject("Missing %s", path)
		}
	}
	return nil
}
