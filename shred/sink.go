package shred

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/sjson"
)

// Sink is where the shredder's row fragments land. Implementations own
// whatever on-disk or in-memory representation a downstream warehouse load
// step expects; NDJSONSink, ParquetSink and AvroSink are the three shipped
// here.
type Sink interface {
	WriteRow(fragmentID string, row Row) error
	Close() error
}

// WriteFragments writes every row of every fragment in rows to sink, in
// fragment-id sorted order so output is reproducible across runs on the
// same document.
func WriteFragments(sink Sink, rows FragmentRows) error {
	ids := make([]string, 0, len(rows))
	for id := range rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		for _, row := range rows[id] {
			if err := sink.WriteRow(id, row); err != nil {
				return fmt.Errorf("shred: write fragment %q: %w", id, err)
			}
		}
	}
	return nil
}

// NDJSONSink writes each fragment's rows to its own newline-delimited JSON
// file under <baseDir>/<fragment_id>/<workerID>, matching the
// data_transform/output layout a run's shredding pass produces. Each worker
// owns its own file per (fragment_id, worker_id) so concurrent shredder
// goroutines never contend on the same file handle.
type NDJSONSink struct {
	baseDir  string
	workerID string

	mu    sync.Mutex
	files map[string]*os.File
}

// NewNDJSONSink returns a Sink rooted at baseDir for the given workerID.
func NewNDJSONSink(baseDir, workerID string) *NDJSONSink {
	return &NDJSONSink{baseDir: baseDir, workerID: workerID, files: map[string]*os.File{}}
}

func (s *NDJSONSink) fileFor(fragmentID string) (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[fragmentID]; ok {
		return f, nil
	}
	dir := filepath.Join(s.baseDir, FragmentDir(fragmentID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, s.workerID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	s.files[fragmentID] = f
	return f, nil
}

// WriteRow appends row to the fragment's worker file as one JSON line, built
// incrementally with sjson.SetBytes per column rather than map-then-marshal
// so row construction never needs an intermediate map allocation per line.
func (s *NDJSONSink) WriteRow(fragmentID string, row Row) error {
	f, err := s.fileFor(fragmentID)
	if err != nil {
		return err
	}
	line, err := marshalRow(row)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = f.Write(line)
	return err
}

// Close flushes and closes every file this sink opened.
func (s *NDJSONSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func marshalRow(row Row) ([]byte, error) {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf []byte
	var err error
	for _, k := range keys {
		buf, err = sjson.SetBytes(buf, escapeSJSONKey(k), row[k])
		if err != nil {
			return nil, err
		}
	}
	if buf == nil {
		buf = []byte("{}")
	}
	return buf, nil
}

// escapeSJSONKey backslash-escapes sjson path syntax so a column name is
// always set as one literal top-level key, never a nested path. Column names
// are normally normalized identifiers, but array-context columns keep the
// raw document key, which may contain '.' or wildcards.
func escapeSJSONKey(k string) string {
	if !strings.ContainsAny(k, `.*?|\`) {
		return k
	}
	var b strings.Builder
	b.Grow(len(k) + 4)
	for i := 0; i < len(k); i++ {
		switch k[i] {
		case '.', '*', '?', '|', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(k[i])
	}
	return b.String()
}

// isRootFragment reports whether fragmentID targets the root table: "root"
// itself, or any sharded root ("root/<shard_value>") — shard roots share the
// root table's column set and differ only in output directory.
func isRootFragment(fragmentID string) bool {
	return fragmentID == "root" || strings.HasPrefix(fragmentID, "root/")
}

// FragmentDir maps a fragment id ("root", "tags", "root/acme-corp") to its
// relative output directory, made safe as a path component sequence: the
// shard suffix after "root/" is a user-controlled string, so it is kept as
// a nested directory rather than trusted to avoid "..".
func FragmentDir(fragmentID string) string {
	var parts []string
	start := 0
	for i := 0; i <= len(fragmentID); i++ {
		if i == len(fragmentID) || fragmentID[i] == '/' {
			seg := fragmentID[start:i]
			if seg != "" && seg != "." && seg != ".." {
				parts = append(parts, seg)
			}
			start = i + 1
		}
	}
	if len(parts) == 0 {
		return "root"
	}
	return filepath.Join(parts...)
}
