package shred

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/gotitinc/mongo-bigquery/schema"
	"github.com/gotitinc/mongo-bigquery/typemode"
)

const parquetRowGroupByteLimit = 10 * 1024 * 1024

// DefaultWriterProperties sets zstd compression, dictionary encoding, the
// latest V2 format version and column statistics.
var DefaultWriterProperties = parquet.NewWriterProperties(
	parquet.WithDictionaryDefault(true),
	parquet.WithVersion(parquet.V2_LATEST),
	parquet.WithCompression(compress.Codecs.Zstd),
	parquet.WithStats(true),
)

// ArrowSchemaFor builds the *arrow.Schema a fragment's rows will be written
// against: every FieldEntry whose Path belongs to fragmentID's table (root
// columns have no '.', child-table columns are the column names mapped by
// the run's array policy), plus parent_hash_code/hash_code on every
// non-root fragment.
func ArrowSchemaFor(fragmentID string, fields []schema.FieldEntry) *arrow.Schema {
	var arrowFields []arrow.Field
	seen := map[string]bool{}
	add := func(name string, dt arrow.DataType) {
		if seen[name] {
			return
		}
		seen[name] = true
		arrowFields = append(arrowFields, arrow.Field{Name: name, Type: dt, Nullable: true})
	}

	if isRootFragment(fragmentID) {
		add("hash_code", arrow.BinaryTypes.String)
		for _, f := range fields {
			if f.Type.Base == typemode.Record || f.Type.Mode == typemode.Repeated {
				continue
			}
			if containsByte(f.Path, '.') {
				continue
			}
			add(f.Path, arrowType(f.Type.Base))
		}
		return arrow.NewSchema(arrowFields, nil)
	}

	// Child fragment: either a scalar-repeated path (single "value" column)
	// or a record-repeated path (columns are the fields whose path is
	// "<fragmentID>.<column>").
	for _, f := range fields {
		if f.Path == fragmentID && f.Type.Mode == typemode.Repeated && f.Type.Base != typemode.Record {
			add("value", arrowType(f.Type.Base))
		}
	}
	prefix := fragmentID + "."
	for _, f := range fields {
		if f.Type.Base == typemode.Record || f.Type.Mode == typemode.Repeated {
			continue
		}
		if len(f.Path) > len(prefix) && f.Path[:len(prefix)] == prefix && !containsByte(f.Path[len(prefix):], '.') {
			add(f.Path[len(prefix):], arrowType(f.Type.Base))
		}
	}
	add("parent_hash_code", arrow.BinaryTypes.String)
	add("hash_code", arrow.BinaryTypes.String)
	return arrow.NewSchema(arrowFields, nil)
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}

func arrowType(base typemode.BaseType) arrow.DataType {
	switch base {
	case typemode.Integer:
		return arrow.PrimitiveTypes.Int64
	case typemode.Float:
		return arrow.PrimitiveTypes.Float64
	case typemode.Boolean:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}

// fragmentWriter is one fragment's open Parquet file, builder and writer.
type fragmentWriter struct {
	file   *os.File
	sc     *arrow.Schema
	bld    *array.RecordBuilder
	writer *pqarrow.FileWriter
	count  int
}

// ParquetSink appends shredded rows field-by-field into per-fragment Arrow
// record builders and flushes batches through pqarrow.NewFileWriter. Unlike
// a writer that serializes whole documents, it works one relational row at
// a time against the shredder's Row/FragmentRows shapes.
type ParquetSink struct {
	baseDir  string
	workerID string
	fields   []schema.FieldEntry
	wrtp     *parquet.WriterProperties

	mu       sync.Mutex
	writers  map[string]*fragmentWriter
	batchMax int
}

// NewParquetSink returns a Sink writing one Parquet file per
// (fragment, worker) under baseDir, writing a buffered batch every batchMax
// rows and starting a new row group once the current one has reached
// parquetRowGroupByteLimit bytes (checked after each batch).
func NewParquetSink(baseDir, workerID string, fields []schema.FieldEntry, batchMax int) *ParquetSink {
	if batchMax <= 0 {
		batchMax = 10000
	}
	return &ParquetSink{
		baseDir:  baseDir,
		workerID: workerID,
		fields:   fields,
		wrtp:     DefaultWriterProperties,
		writers:  map[string]*fragmentWriter{},
		batchMax: batchMax,
	}
}

func (s *ParquetSink) writerFor(fragmentID string) (*fragmentWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fw, ok := s.writers[fragmentID]; ok {
		return fw, nil
	}
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return nil, err
	}
	sc := ArrowSchemaFor(fragmentID, s.fields)
	path := filepath.Join(s.baseDir, FragmentDir(fragmentID), s.workerID+".parquet")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	artp := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())
	pw, err := pqarrow.NewFileWriter(sc, f, s.wrtp, artp)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("shred: create parquet writer for %q: %w", fragmentID, err)
	}
	fw := &fragmentWriter{
		file:   f,
		sc:     sc,
		bld:    array.NewRecordBuilder(memory.DefaultAllocator, sc),
		writer: pw,
	}
	s.writers[fragmentID] = fw
	return fw, nil
}

// WriteRow appends row field-by-field onto the fragment's RecordBuilder,
// flushing a batch once batchMax rows have accumulated.
func (s *ParquetSink) WriteRow(fragmentID string, row Row) error {
	fw, err := s.writerFor(fragmentID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range fw.sc.Fields() {
		appendField(fw.bld.Field(i), f.Type, row[f.Name])
	}
	fw.count++
	if fw.count >= s.batchMax {
		if err := s.flushLocked(fw); err != nil {
			return err
		}
	}
	return nil
}

func (s *ParquetSink) flushLocked(fw *fragmentWriter) error {
	rec := fw.bld.NewRecord()
	defer rec.Release()
	if err := fw.writer.WriteBuffered(rec); err != nil {
		return fmt.Errorf("shred: write parquet batch: %w", err)
	}
	if fw.writer.RowGroupTotalBytesWritten() >= parquetRowGroupByteLimit {
		fw.writer.NewBufferedRowGroup()
	}
	fw.count = 0
	return nil
}

func appendField(b array.Builder, dt arrow.DataType, v any) {
	if v == nil {
		b.AppendNull()
		return
	}
	switch bd := b.(type) {
	case *array.StringBuilder:
		s, err := coerceString(v)
		if err != nil {
			bd.AppendNull()
			return
		}
		bd.Append(s)
	case *array.Int64Builder:
		n, err := coerceInteger(v)
		if err != nil {
			bd.AppendNull()
			return
		}
		bd.Append(n)
	case *array.Float64Builder:
		f, err := coerceFloat(v)
		if err != nil {
			bd.AppendNull()
			return
		}
		bd.Append(f)
	case *array.BooleanBuilder:
		bd.Append(coerceBoolean(v))
	default:
		b.AppendNull()
	}
}

// Close flushes every fragment's pending batch and closes its file.
func (s *ParquetSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.writers))
	for id := range s.writers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var firstErr error
	for _, id := range ids {
		fw := s.writers[id]
		if fw.count > 0 {
			if err := s.flushLocked(fw); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := fw.writer.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("shred: close parquet writer for %q: %w", id, err)
		}
		fw.bld.Release()
		// The parquet writer owns the file once handed over; closing it
		// again is best-effort.
		fw.file.Close()
	}
	return firstErr
}
