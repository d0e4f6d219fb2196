package warehouse

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteDriver is a Driver backed by database/sql over
// github.com/mattn/go-sqlite3, in the style of schema.SQLiteStore: a local,
// file-backed stand-in for a real warehouse engine (BigQuery, Hive, ...)
// good enough to drive the CLI's single-machine path end to end. db is
// expected to already hold one SQLite database per "dataset" (Database
// argument); DatasetCreate/DatasetDelete are no-ops here because
// database/sql's connection already pins one physical file.
type SQLiteDriver struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteDriver returns a Driver issuing DDL/DML against db.
func NewSQLiteDriver(db *sql.DB, logger *zap.Logger) *SQLiteDriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteDriver{db: db, logger: logger}
}

func (d *SQLiteDriver) DatasetCreate(context.Context, string) error { return nil }
func (d *SQLiteDriver) DatasetDelete(context.Context, string) error { return nil }

func (d *SQLiteDriver) TableExists(_ context.Context, _, name string) (bool, error) {
	var one int
	err := d.db.QueryRow(`SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("warehouse: table exists %q: %w", name, err)
	}
	return true, nil
}

// CreateTable emits a single CREATE TABLE; rowFormat is accepted for
// interface symmetry with engines that need a STORED AS clause and ignored
// here, since SQLite has no such concept.
func (d *SQLiteDriver) CreateTable(_ context.Context, _, name string, columns []Column, _ string) ([]string, error) {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = fmt.Sprintf("%q %s", c.Name, sqliteType(c.Type))
	}
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (%s)`, name, strings.Join(defs, ", "))
	if _, err := d.db.Exec(stmt); err != nil {
		return nil, fmt.Errorf("warehouse: create table %q: %w", name, err)
	}
	return []string{name}, nil
}

func (d *SQLiteDriver) DescribeTable(_ context.Context, _, name string) ([]Column, error) {
	rows, err := d.db.Query(fmt.Sprintf(`PRAGMA table_info(%q)`, name))
	if err != nil {
		return nil, fmt.Errorf("warehouse: describe table %q: %w", name, err)
	}
	defer rows.Close()
	var out []Column
	for rows.Next() {
		var cid int
		var colName, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("warehouse: scan column of %q: %w", name, err)
		}
		out = append(out, Column{Name: colName, Type: colType})
	}
	return out, rows.Err()
}

func (d *SQLiteDriver) ListTables(_ context.Context, _, prefix string) ([]string, error) {
	rows, err := d.db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE ? ORDER BY name`, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("warehouse: list tables %q: %w", prefix, err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("warehouse: scan table name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (d *SQLiteDriver) AlterTableAddColumn(_ context.Context, _, name string, col Column) error {
	stmt := fmt.Sprintf(`ALTER TABLE %q ADD COLUMN %q %s`, name, col.Name, sqliteType(col.Type))
	if _, err := d.db.Exec(stmt); err != nil {
		return fmt.Errorf("warehouse: add column %s.%s: %w", name, col.Name, err)
	}
	return nil
}

// AlterTableChangeType widens an existing column in place via SQLite's
// rename-table -> create-table-as-select-with-cast -> drop-old-table
// workaround, since SQLite (like Hive on older formats) has no native ALTER
// COLUMN TYPE.
func (d *SQLiteDriver) AlterTableChangeType(ctx context.Context, db, name string, col Column) error {
	old := name + "_old_widen"
	if _, err := d.db.Exec(fmt.Sprintf(`ALTER TABLE %q RENAME TO %q`, name, old)); err != nil {
		return fmt.Errorf("warehouse: widen %s.%s: rename: %w", name, col.Name, err)
	}
	cols, err := d.DescribeTable(ctx, db, old)
	if err != nil {
		return fmt.Errorf("warehouse: widen %s.%s: describe renamed table: %w", name, col.Name, err)
	}

	selects := make([]string, len(cols))
	defs := make([]string, len(cols))
	for i, c := range cols {
		if c.Name == col.Name {
			selects[i] = fmt.Sprintf("CAST(%q AS %s) AS %q", c.Name, sqliteType(col.Type), c.Name)
			defs[i] = fmt.Sprintf("%q %s", c.Name, sqliteType(col.Type))
			continue
		}
		selects[i] = fmt.Sprintf("%q", c.Name)
		defs[i] = fmt.Sprintf("%q %s", c.Name, sqliteType(c.Type))
	}

	createStmt := fmt.Sprintf(`CREATE TABLE %q (%s)`, name, strings.Join(defs, ", "))
	if _, err := d.db.Exec(createStmt); err != nil {
		return fmt.Errorf("warehouse: widen %s.%s: create: %w", name, col.Name, err)
	}
	insertStmt := fmt.Sprintf(`INSERT INTO %q SELECT %s FROM %q`, name, strings.Join(selects, ", "), old)
	if _, err := d.db.Exec(insertStmt); err != nil {
		return fmt.Errorf("warehouse: widen %s.%s: backfill: %w", name, col.Name, err)
	}
	if _, err := d.db.Exec(fmt.Sprintf(`DROP TABLE %q`, old)); err != nil {
		return fmt.Errorf("warehouse: widen %s.%s: drop renamed table: %w", name, col.Name, err)
	}
	d.logger.Info("widened column via rename/recreate", zap.String("table", name), zap.String("column", col.Name))
	return nil
}

// LoadTable reads every NDJSON file matched by fileGlob and inserts one row
// per line, using the table's described columns as the load's expected shape
// (matching how the data_transform/output directory lays out one file per
// fragment/worker).
func (d *SQLiteDriver) LoadTable(ctx context.Context, db, name, fileGlob string) error {
	cols, err := d.DescribeTable(ctx, db, name)
	if err != nil {
		return fmt.Errorf("warehouse: load table %q: %w", name, err)
	}
	if len(cols) == 0 {
		return fmt.Errorf("warehouse: load table %q: no such table", name)
	}
	colNames := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		colNames[i] = fmt.Sprintf("%q", c.Name)
		placeholders[i] = "?"
	}
	insertStmt := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`, name, strings.Join(colNames, ", "), strings.Join(placeholders, ", "))

	files, err := filepath.Glob(fileGlob)
	if err != nil {
		return fmt.Errorf("warehouse: load table %q: glob %q: %w", name, fileGlob, err)
	}
	sort.Strings(files)

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("warehouse: load table %q: begin: %w", name, err)
	}
	defer tx.Rollback()
	stmt, err := tx.Prepare(insertStmt)
	if err != nil {
		return fmt.Errorf("warehouse: load table %q: prepare: %w", name, err)
	}
	defer stmt.Close()

	for _, file := range files {
		if err := loadFileInto(ctx, stmt, cols, file); err != nil {
			return fmt.Errorf("warehouse: load table %q: %s: %w", name, file, err)
		}
	}
	return tx.Commit()
}

func loadFileInto(ctx context.Context, stmt *sql.Stmt, cols []Column, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal(line, &row); err != nil {
			return err
		}
		args := make([]any, len(cols))
		for i, c := range cols {
			args[i] = row[c.Name]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (d *SQLiteDriver) DropTable(_ context.Context, _, name string) error {
	if _, err := d.db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %q`, name)); err != nil {
		return fmt.Errorf("warehouse: drop table %q: %w", name, err)
	}
	return nil
}

// sqliteType maps a TypeMap's rendered logical type name to the SQLite
// storage class it affines to, so HiveTypeMap/BigQueryTypeMap output both
// work against this driver unmodified.
func sqliteType(logical string) string {
	switch strings.ToLower(logical) {
	case "bigint", "int64", "integer":
		return "INTEGER"
	case "double", "float64", "float", "real":
		return "REAL"
	case "boolean", "bool":
		return "INTEGER"
	default:
		return "TEXT"
	}
}
