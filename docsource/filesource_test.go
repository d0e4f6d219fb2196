package docsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSource_IteratesDocumentsWithSortKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.ndjson")
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":2,\"a\":\"x\"}\n{\"id\":1,\"a\":\"y\"}\n"), 0o644))

	docCh, errCh := NewFileSource(path, "id").Iterate(context.Background(), nil)
	var docs []Document
	for d := range docCh {
		docs = append(docs, d)
	}
	require.NoError(t, <-errCh)
	require.Len(t, docs, 2)
	assert.Equal(t, "x", docs[0].Value["a"])
	assert.NotNil(t, docs[0].SortKey)
}

func TestFileSource_ParseErrorSurfacesAsRejectedDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.ndjson")
	require.NoError(t, os.WriteFile(path, []byte("{\"a\":1}\nnot json\n{\"a\":2}\n"), 0o644))

	docCh, errCh := NewFileSource(path, "").Iterate(context.Background(), nil)
	var docs []Document
	for d := range docCh {
		docs = append(docs, d)
	}
	require.NoError(t, <-errCh)
	require.Len(t, docs, 3)
	assert.Nil(t, docs[1].Value)
	require.Error(t, docs[1].Err)
	assert.Contains(t, docs[1].Err.Error(), "JSON parse error")
	assert.Equal(t, []byte("not json"), docs[1].Raw)
}
