package docsource

import (
	"bufio"
	"context"
	"fmt"
	"os"
)

// FileSource reads newline-delimited JSON documents from a local file. It
// stands in for a real document-store cursor (Mongo, Couchbase, ...) —
// useful for local runs and tests, not a production extraction path.
type FileSource struct {
	path       string
	sortKeyKey string
}

// NewFileSource returns a Source reading NDJSON from path. If sortKeyKey is
// non-empty, each decoded document's value at that top-level key becomes its
// Document.SortKey.
func NewFileSource(path, sortKeyKey string) FileSource {
	return FileSource{path: path, sortKeyKey: sortKeyKey}
}

func (s FileSource) Iterate(ctx context.Context, _ any) (<-chan Document, <-chan error) {
	docCh := make(chan Document)
	errCh := make(chan error, 1)

	go func() {
		defer close(docCh)
		defer close(errCh)

		f, err := os.Open(s.path)
		if err != nil {
			errCh <- fmt.Errorf("docsource: open %q: %w", s.path, err)
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			raw := append([]byte(nil), line...)
			doc, err := InputMap(raw)
			if err != nil {
				// One malformed line is that document's problem, not the
				// run's: surface it as a rejected Document and keep going.
				select {
				case docCh <- Document{Raw: raw, Err: fmt.Errorf("JSON parse error: %w", err)}:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
				continue
			}
			var sortKey any
			if s.sortKeyKey != "" {
				sortKey = doc[s.sortKeyKey]
			}
			select {
			case docCh <- Document{Value: doc, SortKey: sortKey, Raw: raw}:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- fmt.Errorf("docsource: scan %q: %w", s.path, err)
		}
	}()

	return docCh, errCh
}
