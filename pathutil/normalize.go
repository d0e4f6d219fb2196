// Package pathutil canonicalizes raw JSON object keys into warehouse-safe
// identifiers and builds the dotted/underscored paths the rest of the core
// keys its Schema entries on.
package pathutil

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrEmptySegment is returned when a raw key normalizes to the empty string.
var ErrEmptySegment = errors.New("pathutil: key normalizes to an empty segment")

// Normalize canonicalizes a single raw JSON key: NFKC-fold, lowercase, replace
// every character outside [0-9A-Za-z_] with '_', and prefix with "_f" if the
// result would start with a decimal digit.
func Normalize(key string) (string, error) {
	folded := norm.NFKC.String(key)
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	seg := b.String()
	if seg == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptySegment, key)
	}
	if unicode.IsDigit(rune(seg[0])) {
		seg = "_f" + seg
	}
	return seg, nil
}

// Resolved is the outcome of normalizing one key in the context of a parent path.
type Resolved struct {
	// FullPath is the dotted/underscored schema path.
	FullPath string
	// Column is the in-record column name: the raw key when the parent is an
	// array (so the shredder can still look the value up in the source map),
	// the normalized full path otherwise.
	Column string
}

// Resolve normalizes rawKey and joins it to parent:
//   - no parent: full_path = column_name = segment
//   - parent is an array: full_path = parent + "." + segment, column_name = rawKey
//   - otherwise (object nesting): full_path = parent + "_" + segment, column_name = full_path
func Resolve(rawKey, parent string, parentIsArray bool) (Resolved, error) {
	seg, err := Normalize(rawKey)
	if err != nil {
		return Resolved{}, err
	}
	if parent == "" {
		return Resolved{FullPath: seg, Column: seg}, nil
	}
	if parentIsArray {
		full := parent + "." + seg
		return Resolved{FullPath: full, Column: rawKey}, nil
	}
	full := parent + "_" + seg
	return Resolved{FullPath: full, Column: full}, nil
}

// LastSegment returns the column name a repeated/object field should take on
// its owning table: the path suffix after the last '.', i.e. the portion
// contributed by the most deeply nested array step.
func LastSegment(fullPath string) string {
	if i := strings.LastIndexByte(fullPath, '.'); i >= 0 {
		return fullPath[i+1:]
	}
	return fullPath
}
