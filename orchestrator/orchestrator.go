package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gotitinc/mongo-bigquery/docsource"
	"github.com/gotitinc/mongo-bigquery/schema"
	"github.com/gotitinc/mongo-bigquery/shred"
	"github.com/gotitinc/mongo-bigquery/storage"
	"github.com/gotitinc/mongo-bigquery/typemode"
	"github.com/gotitinc/mongo-bigquery/warehouse"
)

// SinkFactory builds the Sink one shredder worker writes rows into, rooted
// at the run's staging directory. Exposed so a caller can swap
// shred.NewNDJSONSink for shred.NewParquetSink/shred.NewAvroSink without the
// Orchestrator needing to know which.
type SinkFactory func(stagingDir, workerID string, fields []schema.FieldEntry) shred.Sink

// Orchestrator wires the document source, schema store, warehouse driver and
// storage collaborators together and drives one run's phases in order.
type Orchestrator struct {
	Source      docsource.Source
	Store       schema.Store
	Driver      warehouse.Driver
	Storage     storage.Storage
	TypeMap     warehouse.TypeMap
	SinkFactory SinkFactory
	Logger      *zap.Logger
}

// NewOrchestrator returns an Orchestrator with NDJSON as the default sink and
// a no-op logger when none is supplied.
func NewOrchestrator(source docsource.Source, store schema.Store, driver warehouse.Driver, stor storage.Storage, typeMap warehouse.TypeMap, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		Source:  source,
		Store:   store,
		Driver:  driver,
		Storage: stor,
		TypeMap: typeMap,
		SinkFactory: func(stagingDir, workerID string, _ []schema.FieldEntry) shred.Sink {
			return shred.NewNDJSONSink(stagingDir, workerID)
		},
		Logger: logger,
	}
}

// Run drives extract → schema observation → schema reduction → shredding →
// warehouse create/evolve → load, in that order, and returns the run's
// summary. Per-document errors never fail the run; they are logged, written
// to the reject files and tallied into RecordsRejected. External-collaborator
// errors retry with capped exponential backoff (WithRetry) and fail the run
// once exhausted.
func (o *Orchestrator) Run(ctx context.Context, cfg RunConfig) (*RunSummary, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	summary := &RunSummary{RunID: uuid.New()}
	driver := retryingDriver{d: o.Driver, logger: o.Logger}
	store := retryingStore{ctx: ctx, s: o.Store, logger: o.Logger}

	if cfg.WriteDisposition == Overwrite {
		if err := store.Reset(); err != nil {
			return nil, fmt.Errorf("orchestrator: reset schema store: %w", err)
		}
		o.Logger.Info("schema store reset for overwrite run", zap.String("run_id", summary.RunID.String()))
	}

	if err := schema.ApplyPolicies(store, cfg.Policies); err != nil {
		return nil, fmt.Errorf("orchestrator: apply policies: %w", err)
	}
	required := schema.RequiredPaths(cfg.Policies)

	collectionDir := filepath.Join(cfg.TmpDir, cfg.Collection)
	dataDir := filepath.Join(collectionDir, "data")
	rejectDir := filepath.Join(collectionDir, "rejected")
	stagingDir := filepath.Join(collectionDir, "data_transform", "staging")
	outputDir := filepath.Join(collectionDir, "data_transform", "output")
	// data/rejected/staging are local scratch; only the output tree lives on
	// the Storage collaborator (an object store in a distributed deployment).
	// Staging and output are cleared every run: row fragments are transient,
	// and stale files from a previous run must not be re-loaded.
	if err := os.RemoveAll(stagingDir); err != nil {
		return nil, fmt.Errorf("orchestrator: clear staging dir: %w", err)
	}
	for _, dir := range []string{dataDir, rejectDir, stagingDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("orchestrator: mkdir %q: %w", dir, err)
		}
	}
	err := WithRetry(ctx, o.Logger, DefaultMaxAttempts, "reset_output:"+outputDir, func() error {
		if err := o.Storage.Rmdir(ctx, outputDir); err != nil {
			return err
		}
		return o.Storage.Mkdir(ctx, outputDir)
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: reset output dir %q: %w", outputDir, err)
	}

	rejects := newRejectLog(rejectDir, cfg.RecordsPerPart)
	defer rejects.close()

	docs, err := o.extract(ctx, cfg, dataDir, rejects, summary)
	if err != nil {
		return nil, err
	}

	observer := schema.Observer{JSONStringArrays: cfg.ArrayPolicy == shred.JSONString}
	if cfg.UseDistributed {
		err = o.reduceDistributed(store, observer, docs, cfg.Workers)
	} else {
		reducer := schema.NewReducer(store, o.Logger)
		reducer.Observer = observer
		for _, d := range docs {
			if err = reducer.ReduceDocument(d.Value); err != nil {
				break
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("orchestrator: reduce schema: %w", err)
	}

	fields, err := store.Fields()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: read resolved schema: %w", err)
	}

	if err := o.shredAll(cfg, store, docs, fields, required, stagingDir, rejects, summary); err != nil {
		return nil, err
	}
	if err := rejects.close(); err != nil {
		return nil, fmt.Errorf("orchestrator: close reject log: %w", err)
	}

	if err := o.publish(ctx, stagingDir, outputDir, summary); err != nil {
		return nil, err
	}

	if err := driver.DatasetCreate(ctx, cfg.Database); err != nil {
		return nil, fmt.Errorf("orchestrator: create dataset %q: %w", cfg.Database, err)
	}

	materializer := warehouse.NewMaterializer(driver, o.TypeMap, cfg.RowFormat, o.Logger)
	exists, err := driver.TableExists(ctx, cfg.Database, cfg.Collection)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: check table existence: %w", err)
	}

	if !exists || cfg.WriteDisposition == Overwrite {
		if exists {
			stale, err := driver.ListTables(ctx, cfg.Database, cfg.Collection)
			if err != nil {
				return nil, fmt.Errorf("orchestrator: list tables for overwrite: %w", err)
			}
			for _, name := range stale {
				if err := driver.DropTable(ctx, cfg.Database, name); err != nil {
					return nil, fmt.Errorf("orchestrator: drop table for overwrite: %w", err)
				}
			}
		}
		_, err = materializer.Create(ctx, cfg.Database, cfg.Collection, fields)
	} else {
		_, err = materializer.Evolve(ctx, cfg.Database, cfg.Collection, fields)
	}
	if err != nil {
		return nil, fmt.Errorf("orchestrator: materialize warehouse schema: %w", err)
	}
	summary.DestinationTables = materializer.TableNames(cfg.Collection, fields)

	fragments, err := store.ListFragments()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list fragments: %w", err)
	}
	for _, fragment := range fragments {
		table := warehouse.TableForFragment(cfg.Collection, fragment)
		glob := filepath.Join(outputDir, shred.FragmentDir(fragment), "*")
		if err := driver.LoadTable(ctx, cfg.Database, table, glob); err != nil {
			return nil, fmt.Errorf("orchestrator: load table %q: %w", table, err)
		}
	}

	summary.Duration = time.Since(start)
	return summary, nil
}

// extract drains Source, partitions documents into records_per_part-sized
// files under dataDir, and tracks the run's audit bounds (min/max sort key).
// Documents the source could not decode are written to the reject files and
// tallied without failing the run.
func (o *Orchestrator) extract(ctx context.Context, cfg RunConfig, dataDir string, rejects *rejectLog, summary *RunSummary) ([]docsource.Document, error) {
	docCh, errCh := o.Source.Iterate(ctx, nil)

	var docs []docsource.Document
	var part []docsource.Document
	partN := 0

	flush := func() error {
		if len(part) == 0 {
			return nil
		}
		path := filepath.Join(dataDir, fmt.Sprintf("part_%d", partN))
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		for _, d := range part {
			b, err := json.Marshal(d.Value)
			if err != nil {
				return err
			}
			if _, err := f.Write(append(b, '\n')); err != nil {
				return err
			}
		}
		partN++
		part = part[:0]
		return nil
	}

	for docCh != nil || errCh != nil {
		select {
		case d, ok := <-docCh:
			if !ok {
				docCh = nil
				continue
			}
			summary.RecordsExtracted++
			if d.Err != nil {
				summary.RecordsRejected++
				if werr := rejects.write(d.Err.Error(), d.Raw); werr != nil {
					return nil, fmt.Errorf("orchestrator: write reject line: %w", werr)
				}
				o.Logger.Warn("document rejected during extract", zap.Error(d.Err))
				continue
			}
			docs = append(docs, d)
			part = append(part, d)
			updateSortBounds(summary, d.SortKey)
			if len(part) >= cfg.RecordsPerPart {
				if err := flush(); err != nil {
					return nil, fmt.Errorf("orchestrator: write extract part: %w", err)
				}
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("orchestrator: extract: %w", err)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := flush(); err != nil {
		return nil, fmt.Errorf("orchestrator: write final extract part: %w", err)
	}
	return docs, nil
}

// reduceDistributed is the worker-fan-out schema pass: observer workers each
// own a disjoint slice of the input and emit observations in parallel; the
// observations are then shuffled (grouped by path) and folded sequentially
// per path, matching the map/reduce split. The fold walks workers in index
// order rather than completion order so the resulting field order — and with
// it DDL emission order — is identical to a rerun on the same input.
func (o *Orchestrator) reduceDistributed(store schema.Store, observer schema.Observer, docs []docsource.Document, workers int) error {
	batches := make([][]schema.Observation, workers)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			var batch []schema.Observation
			for i := w; i < len(docs); i += workers {
				batch = append(batch, observer.Observe(docs[i].Value)...)
			}
			batches[w] = batch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	grouped := map[string][]typemode.TypeMode{}
	var order []string
	for _, batch := range batches {
		for _, obs := range batch {
			if _, ok := grouped[obs.Path]; !ok {
				order = append(order, obs.Path)
			}
			grouped[obs.Path] = append(grouped[obs.Path], obs.Type)
		}
	}
	for _, path := range order {
		if err := store.UpsertField(path, typemode.WidenAll(grouped[path])); err != nil {
			return fmt.Errorf("reduce %q: %w", path, err)
		}
	}
	return nil
}

// shredAll runs the shredding pass: one worker on the simple path, a
// cfg.Workers fan-out on the distributed path, each worker owning a disjoint
// slice of the input and its own sink files per (fragment, worker).
func (o *Orchestrator) shredAll(cfg RunConfig, store schema.Store, docs []docsource.Document, fields []schema.FieldEntry, required map[string]bool, stagingDir string, rejects *rejectLog, summary *RunSummary) error {
	workers := 1
	if cfg.UseDistributed {
		workers = cfg.Workers
	}
	shredCfg := shred.Config{
		ArrayPolicy:   cfg.ArrayPolicy,
		ShardKeyPath:  cfg.ShardKeyPath,
		MaxShardLen:   cfg.MaxShardLen,
		RequiredPaths: required,
	}

	var rejected atomic.Int64
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			sink := o.SinkFactory(stagingDir, fmt.Sprintf("w%d", w), fields)
			shredCtx := shred.NewContext(store, shredCfg, o.Logger)
			for i := w; i < len(docs); i += workers {
				doc := docs[i]
				rows, err := shred.Shred(shredCtx, doc.Value)
				if err != nil {
					var rej *shred.RejectError
					if !errors.As(err, &rej) {
						sink.Close()
						return fmt.Errorf("orchestrator: shred: %w", err)
					}
					rejected.Add(1)
					raw := doc.Raw
					if raw == nil {
						raw, _ = json.Marshal(doc.Value)
					}
					if werr := rejects.write(rej.Reason, raw); werr != nil {
						sink.Close()
						return fmt.Errorf("orchestrator: write reject line: %w", werr)
					}
					o.Logger.Warn("document rejected", zap.String("reason", rej.Reason))
					continue
				}
				if err := shred.WriteFragments(sink, rows); err != nil {
					sink.Close()
					return fmt.Errorf("orchestrator: write fragments: %w", err)
				}
			}
			if err := sink.Close(); err != nil {
				return fmt.Errorf("orchestrator: close sink: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	summary.RecordsRejected += int(rejected.Load())
	return nil
}

// publish uploads every staged fragment file into the output directory via
// the Storage collaborator (retried per file), recording the published
// paths in the run summary. On the single-machine path Storage is a local
// copy; a distributed deployment points the same calls at an object store.
func (o *Orchestrator) publish(ctx context.Context, stagingDir, outputDir string, summary *RunSummary) error {
	if _, err := os.Stat(stagingDir); os.IsNotExist(err) {
		// Every document was rejected; there is nothing to publish.
		return nil
	}
	return filepath.WalkDir(stagingDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("orchestrator: walk staging dir: %w", err)
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(stagingDir, path)
		if err != nil {
			return err
		}
		destDir := filepath.Join(outputDir, filepath.Dir(rel))
		putErr := WithRetry(ctx, o.Logger, DefaultMaxAttempts, "put:"+rel, func() error {
			return o.Storage.Put(ctx, path, destDir)
		})
		if putErr != nil {
			return fmt.Errorf("orchestrator: put %q: %w", rel, putErr)
		}
		summary.OutputFiles = append(summary.OutputFiles, filepath.Join(destDir, filepath.Base(path)))
		return nil
	})
}

func updateSortBounds(summary *RunSummary, key any) {
	if key == nil {
		return
	}
	if summary.SortKeyMin == nil || compareSortKeys(key, summary.SortKeyMin) < 0 {
		summary.SortKeyMin = key
	}
	if summary.SortKeyMax == nil || compareSortKeys(key, summary.SortKeyMax) > 0 {
		summary.SortKeyMax = key
	}
}

// compareSortKeys compares two audit-bound values best-effort: numeric types
// compare numerically, everything else compares as its string form.
func compareSortKeys(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
