package shred

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/hamba/avro/v2/ocf"

	"github.com/gotitinc/mongo-bigquery/schema"
	"github.com/gotitinc/mongo-bigquery/typemode"
)

// avroType is the Avro primitive a TypeMode's base type renders to; every
// field is rendered nullable ("null" unioned with the base type) since any
// scalar column may hold a coerced-to-null value (forced-field coercion
// failure).
func avroType(base typemode.BaseType) any {
	switch base {
	case typemode.Integer:
		return []any{"null", "long"}
	case typemode.Float:
		return []any{"null", "double"}
	case typemode.Boolean:
		return []any{"null", "boolean"}
	default:
		return []any{"null", "string"}
	}
}

// avroRecordSchema renders a fragment's resolved columns to an Avro record
// schema document, the way a Hive "STORED AS AVRO" table's schema is
// derived from its DDL.
func avroRecordSchema(fragmentID string, fields []schema.FieldEntry) map[string]any {
	recordName := strings.NewReplacer("/", "_", ".", "_").Replace(fragmentID)
	if recordName == "" {
		recordName = "root"
	}
	var avroFields []any
	seen := map[string]bool{}
	add := func(name string, base typemode.BaseType) {
		if seen[name] {
			return
		}
		seen[name] = true
		avroFields = append(avroFields, map[string]any{
			"name": name,
			"type": avroType(base),
		})
	}

	if isRootFragment(fragmentID) {
		add("hash_code", typemode.String)
		for _, f := range fields {
			if f.Type.Base == typemode.Record || f.Type.Mode == typemode.Repeated || containsByte(f.Path, '.') {
				continue
			}
			add(f.Path, f.Type.Base)
		}
	} else {
		for _, f := range fields {
			if f.Path == fragmentID && f.Type.Mode == typemode.Repeated && f.Type.Base != typemode.Record {
				add("value", f.Type.Base)
			}
		}
		prefix := fragmentID + "."
		for _, f := range fields {
			if f.Type.Base == typemode.Record || f.Type.Mode == typemode.Repeated {
				continue
			}
			if len(f.Path) > len(prefix) && f.Path[:len(prefix)] == prefix && !containsByte(f.Path[len(prefix):], '.') {
				add(f.Path[len(prefix):], f.Type.Base)
			}
		}
		add("parent_hash_code", typemode.String)
		add("hash_code", typemode.String)
	}

	return map[string]any{
		"type":   "record",
		"name":   recordName,
		"fields": avroFields,
	}
}

type fragmentEncoder struct {
	file *os.File
	enc  *ocf.Encoder
}

// AvroSink writes each fragment to its own Avro Object Container File under
// baseDir, schema derived the same way ParquetSink derives its Arrow schema.
type AvroSink struct {
	baseDir  string
	workerID string
	fields   []schema.FieldEntry

	mu       sync.Mutex
	encoders map[string]*fragmentEncoder
}

// NewAvroSink returns a Sink writing one OCF file per (fragment, worker)
// under baseDir.
func NewAvroSink(baseDir, workerID string, fields []schema.FieldEntry) *AvroSink {
	return &AvroSink{baseDir: baseDir, workerID: workerID, fields: fields, encoders: map[string]*fragmentEncoder{}}
}

func (s *AvroSink) encoderFor(fragmentID string) (*fragmentEncoder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fe, ok := s.encoders[fragmentID]; ok {
		return fe, nil
	}
	schemaJSON, err := json.Marshal(avroRecordSchema(fragmentID, s.fields))
	if err != nil {
		return nil, fmt.Errorf("shred: marshal avro schema for %q: %w", fragmentID, err)
	}
	path := filepath.Join(s.baseDir, FragmentDir(fragmentID), s.workerID+".avro")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	enc, err := ocf.NewEncoder(string(schemaJSON), f, ocf.WithCodec(ocf.Snappy))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shred: create avro encoder for %q: %w", fragmentID, err)
	}
	fe := &fragmentEncoder{file: f, enc: enc}
	s.encoders[fragmentID] = fe
	return fe, nil
}

// WriteRow Avro-marshals row against the fragment's Avro schema and appends
// it to the container file.
func (s *AvroSink) WriteRow(fragmentID string, row Row) error {
	fe, err := s.encoderFor(fragmentID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fe.enc.Encode(map[string]any(row)); err != nil {
		return fmt.Errorf("shred: encode avro row for %q: %w", fragmentID, err)
	}
	return nil
}

// Close flushes and closes every Avro encoder this sink opened.
func (s *AvroSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.encoders))
	for id := range s.encoders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var firstErr error
	for _, id := range ids {
		fe := s.encoders[id]
		if err := fe.enc.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("shred: close avro encoder for %q: %w", id, err)
		}
		if err := fe.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
