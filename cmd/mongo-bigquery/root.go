package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gotitinc/mongo-bigquery/docsource"
	"github.com/gotitinc/mongo-bigquery/orchestrator"
	"github.com/gotitinc/mongo-bigquery/schema"
	"github.com/gotitinc/mongo-bigquery/shred"
	"github.com/gotitinc/mongo-bigquery/storage"
	"github.com/gotitinc/mongo-bigquery/typemode"
	"github.com/gotitinc/mongo-bigquery/warehouse"
)

type cliConfig struct {
	input            string
	sortKeyField     string
	collection       string
	database         string
	warehouseDBPath  string
	schemaStorePath  string
	tmpDir           string
	writeDisposition string
	arrayPolicy      string
	shardKeyPath     string
	sink             string
	rowFormat        string
	recordsPerPart   int
	maxShardLen      int
	required         []string
	forced           []string
	useDistributed   bool
	workers          int
}

func newRootCmd() *cobra.Command {
	cfg := &cliConfig{}

	cmd := &cobra.Command{
		Use:           "mongo-bigquery",
		Short:         "Infer a relational schema from a document collection and load it into a warehouse",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.input, "input", "", "path to a newline-delimited JSON file standing in for the document-store cursor (required)")
	flags.StringVar(&cfg.sortKeyField, "sort-key-field", "", "top-level document field used as the run's audit sort key")
	flags.StringVar(&cfg.collection, "collection", "", "source collection name, also used as the destination table base name (required)")
	flags.StringVar(&cfg.database, "database", "default", "destination dataset/database name")
	flags.StringVar(&cfg.warehouseDBPath, "warehouse-db", "warehouse.db", "path to the SQLite file backing the warehouse driver")
	flags.StringVar(&cfg.schemaStorePath, "schema-store", "", "path to a SQLite file for the schema store (empty keeps it in memory)")
	flags.StringVar(&cfg.tmpDir, "tmp-dir", "./mongo-bigquery-tmp", "working directory for extracted data, rejects and shredded fragments")
	flags.StringVar(&cfg.writeDisposition, "write-disposition", "append", "append or overwrite")
	flags.StringVar(&cfg.arrayPolicy, "array-policy", "child_table", "child_table or json_string")
	flags.StringVar(&cfg.shardKeyPath, "shard-key", "", "dotted path used to shard root-fragment output files")
	flags.StringVar(&cfg.sink, "sink", "ndjson", "ndjson, parquet or avro")
	flags.StringVar(&cfg.rowFormat, "row-format", "", "warehouse-specific row format/storage clause passed through to CreateTable")
	flags.IntVar(&cfg.recordsPerPart, "records-per-part", 0, "documents per extract/reject part file (0 uses the built-in default)")
	flags.IntVar(&cfg.maxShardLen, "max-shard-len", 0, "maximum length of a shard key value (0 uses the built-in default of 32)")
	flags.StringArrayVar(&cfg.required, "required", nil, "dotted path that must be present in every document (repeatable)")
	flags.StringArrayVar(&cfg.forced, "force", nil, "pin a path's type, as path=type or path=type:repeated (repeatable)")
	flags.BoolVar(&cfg.useDistributed, "use-distributed", false, "fan observer/shredder work out across parallel workers")
	flags.IntVar(&cfg.workers, "workers", 0, "worker count for --use-distributed (0 uses the built-in default)")

	return cmd
}

func runRoot(cmd *cobra.Command, cfg *cliConfig) error {
	if cfg.input == "" {
		return fmt.Errorf("--input is required")
	}
	if cfg.collection == "" {
		return fmt.Errorf("--collection is required")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	arrayPolicy, err := parseArrayPolicy(cfg.arrayPolicy)
	if err != nil {
		return err
	}
	writeDisposition, err := parseWriteDisposition(cfg.writeDisposition)
	if err != nil {
		return err
	}

	store, err := buildStore(cfg.schemaStorePath, logger)
	if err != nil {
		return fmt.Errorf("build schema store: %w", err)
	}

	warehouseDB, err := sql.Open("sqlite3", cfg.warehouseDBPath)
	if err != nil {
		return fmt.Errorf("open warehouse db %q: %w", cfg.warehouseDBPath, err)
	}
	defer warehouseDB.Close()
	driver := warehouse.NewSQLiteDriver(warehouseDB, logger)

	source := docsource.NewFileSource(cfg.input, cfg.sortKeyField)
	stor := storage.NewLocal()

	o := orchestrator.NewOrchestrator(source, store, driver, stor, warehouse.HiveTypeMap, logger)
	o.SinkFactory = sinkFactoryFor(cfg.sink)

	policies := make([]schema.Policy, 0, len(cfg.required)+len(cfg.forced))
	for _, path := range cfg.required {
		policies = append(policies, schema.Policy{Path: path, Required: true})
	}
	for _, spec := range cfg.forced {
		p, err := parseForcePolicy(spec)
		if err != nil {
			return err
		}
		policies = append(policies, p)
	}

	runCfg := orchestrator.RunConfig{
		Collection:       cfg.collection,
		Database:         cfg.database,
		TmpDir:           cfg.tmpDir,
		WriteDisposition: writeDisposition,
		ArrayPolicy:      arrayPolicy,
		ShardKeyPath:     cfg.shardKeyPath,
		Policies:         policies,
		RecordsPerPart:   cfg.recordsPerPart,
		UseDistributed:   cfg.useDistributed,
		Workers:          cfg.workers,
		RowFormat:        cfg.rowFormat,
		MaxShardLen:      cfg.maxShardLen,
	}

	summary, err := o.Run(cmd.Context(), runCfg)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func buildStore(path string, logger *zap.Logger) (schema.Store, error) {
	if path == "" {
		return schema.NewMemStore(), nil
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	return schema.NewSQLiteStore(db, logger)
}

func sinkFactoryFor(name string) orchestrator.SinkFactory {
	switch name {
	case "parquet":
		return func(stagingDir, workerID string, fields []schema.FieldEntry) shred.Sink {
			return shred.NewParquetSink(stagingDir, workerID, fields, 0)
		}
	case "avro":
		return func(stagingDir, workerID string, fields []schema.FieldEntry) shred.Sink {
			return shred.NewAvroSink(stagingDir, workerID, fields)
		}
	default:
		return func(stagingDir, workerID string, _ []schema.FieldEntry) shred.Sink {
			return shred.NewNDJSONSink(stagingDir, workerID)
		}
	}
}

// parseForcePolicy parses a --force flag value: "path=type" or
// "path=type:repeated".
func parseForcePolicy(spec string) (schema.Policy, error) {
	path, typeSpec, ok := strings.Cut(spec, "=")
	if !ok || path == "" {
		return schema.Policy{}, fmt.Errorf("invalid --force %q: want path=type or path=type:repeated", spec)
	}
	typeName, modeName, hasMode := strings.Cut(typeSpec, ":")

	var base typemode.BaseType
	switch typeName {
	case "string":
		base = typemode.String
	case "integer":
		base = typemode.Integer
	case "float":
		base = typemode.Float
	case "boolean":
		base = typemode.Boolean
	case "record":
		base = typemode.Record
	default:
		return schema.Policy{}, fmt.Errorf("invalid --force %q: unknown type %q", spec, typeName)
	}

	mode := typemode.Nullable
	if hasMode {
		switch modeName {
		case "nullable":
		case "repeated":
			mode = typemode.Repeated
		default:
			return schema.Policy{}, fmt.Errorf("invalid --force %q: unknown mode %q", spec, modeName)
		}
	}
	return schema.Policy{Path: path, DataType: &base, Mode: &mode}, nil
}

func parseArrayPolicy(s string) (shred.ArrayPolicy, error) {
	switch s {
	case "child_table", "":
		return shred.ChildTable, nil
	case "json_string":
		return shred.JSONString, nil
	default:
		return 0, fmt.Errorf("invalid --array-policy %q: want child_table or json_string", s)
	}
}

func parseWriteDisposition(s string) (orchestrator.WriteDisposition, error) {
	switch s {
	case "append", "":
		return orchestrator.Append, nil
	case "overwrite":
		return orchestrator.Overwrite, nil
	default:
		return 0, fmt.Errorf("invalid --write-disposition %q: want append or overwrite", s)
	}
}
