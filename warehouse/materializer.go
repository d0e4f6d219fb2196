package warehouse

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gotitinc/mongo-bigquery/pathutil"
	"github.com/gotitinc/mongo-bigquery/schema"
	"github.com/gotitinc/mongo-bigquery/typemode"
)

// tableSpec is one physical table this package derives from the resolved
// Schema: the parent ("root") table or one child table per repeated path.
type tableSpec struct {
	name    string
	columns []Column
	seen    map[string]bool
}

func newTableSpec(name string) *tableSpec {
	return &tableSpec{name: name, seen: map[string]bool{}}
}

func (t *tableSpec) add(col Column) {
	if t.seen[col.Name] {
		return
	}
	t.seen[col.Name] = true
	t.columns = append(t.columns, col)
}

// Materializer turns a resolved Schema into physical tables via a Driver,
// either creating them from scratch or diffing against what already exists
// and evolving it in place.
type Materializer struct {
	driver    Driver
	typeMap   TypeMap
	rowFormat string
	logger    *zap.Logger
}

// NewMaterializer returns a Materializer that issues DDL through driver using
// typeMap to render logical types. rowFormat is passed through verbatim to
// Driver.CreateTable (e.g. a Hive STORED AS clause); it may be empty.
func NewMaterializer(driver Driver, typeMap TypeMap, rowFormat string, logger *zap.Logger) *Materializer {
	if typeMap == nil {
		typeMap = HiveTypeMap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Materializer{driver: driver, typeMap: typeMap, rowFormat: rowFormat, logger: logger}
}

// TableForFragment returns the physical table a fragment's rows load into:
// the base table for "root" and any sharded root ("root/<shard>"), the
// derived child-table name for everything else.
func TableForFragment(base, fragmentID string) string {
	if fragmentID == "root" || strings.HasPrefix(fragmentID, "root/") {
		return base
	}
	return base + "_" + strings.ReplaceAll(fragmentID, ".", "_")
}

// childTableName derives the physical name of the child table that owns
// path's array per the inherited naming convention: base + "_" + the
// enclosing array path with '.' replaced by '_'.
func (m *Materializer) childTableName(base, arrayPath string) string {
	return base + "_" + strings.ReplaceAll(arrayPath, ".", "_")
}

// buildTables derives every physical table's column set from fields, in
// first-observed order so DDL emission is stable across runs on the same
// input.
func (m *Materializer) buildTables(base string, fields []schema.FieldEntry) []*tableSpec {
	root := newTableSpec(base)
	root.add(Column{Name: "hash_code", Type: m.typeMap(typemode.String)})

	order := []*tableSpec{root}
	byName := map[string]*tableSpec{base: root}

	tableFor := func(name string) *tableSpec {
		if t, ok := byName[name]; ok {
			return t
		}
		t := newTableSpec(name)
		t.add(Column{Name: "parent_hash_code", Type: m.typeMap(typemode.String)})
		// hash_code is appended once the table's own columns are known, at
		// the end of buildTables, so it always sorts last.
		byName[name] = t
		order = append(order, t)
		return t
	}

	for _, f := range fields {
		if f.Type.Base == typemode.Record && f.Type.Mode == typemode.Nullable {
			continue // record entries themselves emit no column
		}
		if f.Type.Mode == typemode.Repeated {
			childName := m.childTableName(base, f.Path)
			child := tableFor(childName)
			if f.Type.Base != typemode.Record {
				child.add(Column{Name: "value", Type: m.typeMap(f.Type.Base)})
			}
			continue
		}
		// Nullable scalar.
		if i := strings.LastIndex(f.Path, "."); i >= 0 {
			childName := m.childTableName(base, f.Path[:i])
			child := tableFor(childName)
			child.add(Column{Name: pathutil.LastSegment(f.Path), Type: m.typeMap(f.Type.Base)})
			continue
		}
		root.add(Column{Name: f.Path, Type: m.typeMap(f.Type.Base)})
	}

	for _, t := range order {
		if t == root {
			continue
		}
		t.add(Column{Name: "hash_code", Type: m.typeMap(typemode.String)})
	}
	return order
}

// TableNames returns the name of every physical table the resolved Schema
// implies, root first, in first-observed order.
func (m *Materializer) TableNames(base string, fields []schema.FieldEntry) []string {
	tables := m.buildTables(base, fields)
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.name
	}
	return names
}

// Create emits CREATE TABLE for every table the resolved Schema implies and
// returns the full set of created table names.
func (m *Materializer) Create(ctx context.Context, db, base string, fields []schema.FieldEntry) ([]string, error) {
	var created []string
	for _, t := range m.buildTables(base, fields) {
		names, err := m.driver.CreateTable(ctx, db, t.name, t.columns, m.rowFormat)
		if err != nil {
			return created, fmt.Errorf("warehouse: create table %q: %w", t.name, err)
		}
		m.logger.Info("created table", zap.String("table", t.name), zap.Int("columns", len(t.columns)))
		created = append(created, names...)
	}
	return created, nil
}

// EvolveResult summarizes the DDL Evolve issued, split by kind for callers
// that want to log or test the three op groups independently.
type EvolveResult struct {
	Changed []string // "table.column" pairs whose type was widened
	Added   []string // "table.column" pairs newly added
	Created []string // tables created because they didn't exist yet
}

// Evolve diffs the resolved Schema's implied table set against what the
// Driver currently reports and issues the minimal set of ALTER/CREATE
// operations to reconcile them, executed in the order (type changes) → (add
// column) → (create new table) to minimize locking windows.
func (m *Materializer) Evolve(ctx context.Context, db, base string, fields []schema.FieldEntry) (EvolveResult, error) {
	var result EvolveResult
	tables := m.buildTables(base, fields)

	existingNames, err := m.driver.ListTables(ctx, db, base)
	if err != nil {
		return result, fmt.Errorf("warehouse: list tables for %q: %w", base, err)
	}
	existingSet := make(map[string]bool, len(existingNames))
	for _, n := range existingNames {
		existingSet[n] = true
	}

	type changeOp struct {
		table string
		col   Column
	}
	var changes, adds []changeOp
	var toCreate []*tableSpec

	for _, t := range tables {
		if !existingSet[t.name] {
			toCreate = append(toCreate, t)
			continue
		}
		cur, err := m.driver.DescribeTable(ctx, db, t.name)
		if err != nil {
			return result, fmt.Errorf("warehouse: describe table %q: %w", t.name, err)
		}
		curByName := make(map[string]Column, len(cur))
		for _, c := range cur {
			curByName[c.Name] = c
		}
		for _, col := range t.columns {
			existing, ok := curByName[col.Name]
			if !ok {
				adds = append(adds, changeOp{t.name, col})
				continue
			}
			curBase := baseTypeFromPhysical(existing.Type)
			newBase := baseTypeFromPhysical(col.Type)
			widened := typemode.Widen(typemode.TypeMode{Base: curBase, Mode: typemode.Nullable}, typemode.TypeMode{Base: newBase, Mode: typemode.Nullable})
			// Narrowing (e.g. existing float, newly observed integer) is a
			// deliberate no-op: only widen when the resolved type differs
			// from what is already stored.
			if widened.Base != curBase {
				changes = append(changes, changeOp{t.name, Column{Name: col.Name, Type: m.typeMap(widened.Base)}})
			}
		}
	}

	for _, c := range changes {
		if err := m.driver.AlterTableChangeType(ctx, db, c.table, c.col); err != nil {
			return result, fmt.Errorf("warehouse: alter %s.%s type: %w", c.table, c.col.Name, err)
		}
		result.Changed = append(result.Changed, c.table+"."+c.col.Name)
	}
	for _, a := range adds {
		if err := m.driver.AlterTableAddColumn(ctx, db, a.table, a.col); err != nil {
			return result, fmt.Errorf("warehouse: add column %s.%s: %w", a.table, a.col.Name, err)
		}
		result.Added = append(result.Added, a.table+"."+a.col.Name)
	}
	for _, t := range toCreate {
		if _, err := m.driver.CreateTable(ctx, db, t.name, t.columns, m.rowFormat); err != nil {
			return result, fmt.Errorf("warehouse: create table %q: %w", t.name, err)
		}
		result.Created = append(result.Created, t.name)
	}

	m.logger.Info("evolved warehouse schema",
		zap.Int("changed", len(result.Changed)), zap.Int("added", len(result.Added)), zap.Int("created", len(result.Created)))
	return result, nil
}
