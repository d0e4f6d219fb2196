package shred

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNDJSONSink_WritesOneLinePerRow(t *testing.T) {
	dir := t.TempDir()
	sink := NewNDJSONSink(dir, "w0")
	require.NoError(t, sink.WriteRow("root", Row{"hash_code": "abc", "a": int64(1)}))
	require.NoError(t, sink.WriteRow("root", Row{"hash_code": "def", "a": int64(2)}))
	require.NoError(t, sink.Close())

	b, err := os.ReadFile(filepath.Join(dir, "root", "w0"))
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":1,\"hash_code\":\"abc\"}\n{\"a\":2,\"hash_code\":\"def\"}\n", string(b))
}

func TestNDJSONSink_SeparatesFragmentsAndShards(t *testing.T) {
	dir := t.TempDir()
	sink := NewNDJSONSink(dir, "w0")
	require.NoError(t, sink.WriteRow("root/acme-corp", Row{"hash_code": "h1"}))
	require.NoError(t, sink.WriteRow("tags", Row{"value": "x", "parent_hash_code": "h1"}))
	require.NoError(t, sink.Close())

	_, err := os.Stat(filepath.Join(dir, "root", "acme-corp", "w0"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "tags", "w0"))
	require.NoError(t, err)
}

func TestWriteFragments_DeterministicOrder(t *testing.T) {
	rows := FragmentRows{
		"tags": {{"value": "a"}},
		"root": {{"hash_code": "h"}},
	}
	var order []string
	fake := &recordingSink{onWrite: func(id string, _ Row) { order = append(order, id) }}
	require.NoError(t, WriteFragments(fake, rows))
	assert.Equal(t, []string{"root", "tags"}, order)
}

type recordingSink struct {
	onWrite func(string, Row)
}

func (s *recordingSink) WriteRow(id string, row Row) error {
	s.onWrite(id, row)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func TestFragmentDir_MapsShardedRootToNestedDirectory(t *testing.T) {
	assert.Equal(t, "root", FragmentDir("root"))
	assert.Equal(t, filepath.Join("root", "acme-corp"), FragmentDir("root/acme-corp"))
	assert.Equal(t, "tags", FragmentDir("tags"))
	assert.Equal(t, filepath.Join("root", "x"), FragmentDir("root/../x"))
}
