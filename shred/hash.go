package shred

import (
	"crypto/sha1"
	"encoding/hex"

	json "github.com/goccy/go-json"
)

// hashCode returns a row's content-addressed hash_code: the hex SHA-1 digest
// of the canonical-JSON serialization (keys sorted) of doc. goccy/go-json's
// Marshal sorts map[string]any keys the same way encoding/json does, which
// is what makes this deterministic regardless of the source map's
// iteration order.
func hashCode(doc map[string]any) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:]), nil
}
