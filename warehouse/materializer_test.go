package warehouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotitinc/mongo-bigquery/schema"
	"github.com/gotitinc/mongo-bigquery/typemode"
)

type fakeDriver struct {
	tables map[string][]Column
}

func newFakeDriver() *fakeDriver { return &fakeDriver{tables: map[string][]Column{}} }

func (d *fakeDriver) DatasetCreate(context.Context, string) error { return nil }
func (d *fakeDriver) DatasetDelete(context.Context, string) error { return nil }

func (d *fakeDriver) TableExists(_ context.Context, _, name string) (bool, error) {
	_, ok := d.tables[name]
	return ok, nil
}

func (d *fakeDriver) CreateTable(_ context.Context, _, name string, columns []Column, _ string) ([]string, error) {
	d.tables[name] = append([]Column(nil), columns...)
	return []string{name}, nil
}

func (d *fakeDriver) DescribeTable(_ context.Context, _, name string) ([]Column, error) {
	return d.tables[name], nil
}

func (d *fakeDriver) ListTables(_ context.Context, _, prefix string) ([]string, error) {
	var names []string
	for name := range d.tables {
		if len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			names = append(names, name)
		}
	}
	return names, nil
}

func (d *fakeDriver) AlterTableAddColumn(_ context.Context, _, name string, col Column) error {
	d.tables[name] = append(d.tables[name], col)
	return nil
}

func (d *fakeDriver) AlterTableChangeType(_ context.Context, _, name string, col Column) error {
	for i, c := range d.tables[name] {
		if c.Name == col.Name {
			d.tables[name][i].Type = col.Type
			return nil
		}
	}
	return nil
}

func (d *fakeDriver) LoadTable(context.Context, string, string, string) error { return nil }
func (d *fakeDriver) DropTable(_ context.Context, _, name string) error {
	delete(d.tables, name)
	return nil
}

func fieldsFor(t *testing.T, entries map[string]typemode.TypeMode, order []string) []schema.FieldEntry {
	t.Helper()
	out := make([]schema.FieldEntry, 0, len(order))
	for _, path := range order {
		out = append(out, schema.FieldEntry{Path: path, Type: entries[path]})
	}
	return out
}

func TestMaterializer_CreateRepeatedRecords(t *testing.T) {
	driver := newFakeDriver()
	m := NewMaterializer(driver, HiveTypeMap, "", nil)
	fields := fieldsFor(t, map[string]typemode.TypeMode{
		"items":     typemode.RecordRepeated,
		"items.sku": typemode.StringNullable,
		"items.qty": typemode.IntegerNullable,
	}, []string{"items", "items.sku", "items.qty"})

	created, err := m.Create(context.Background(), "db", "events", fields)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"events", "events_items"}, created)

	childCols := driver.tables["events_items"]
	names := columnNames(childCols)
	assert.Contains(t, names, "sku")
	assert.Contains(t, names, "qty")
	assert.Contains(t, names, "parent_hash_code")
	assert.Contains(t, names, "hash_code")

	rootCols := columnNames(driver.tables["events"])
	assert.Equal(t, []string{"hash_code"}, rootCols)
}

func TestMaterializer_CreateRepeatedScalar(t *testing.T) {
	driver := newFakeDriver()
	m := NewMaterializer(driver, HiveTypeMap, "", nil)
	fields := fieldsFor(t, map[string]typemode.TypeMode{
		"tags": typemode.StringRepeated,
	}, []string{"tags"})

	_, err := m.Create(context.Background(), "db", "events", fields)
	require.NoError(t, err)
	names := columnNames(driver.tables["events_tags"])
	assert.Equal(t, []string{"parent_hash_code", "value", "hash_code"}, names)
}

func TestMaterializer_EvolveAddsColumn(t *testing.T) {
	driver := newFakeDriver()
	m := NewMaterializer(driver, HiveTypeMap, "", nil)
	ctx := context.Background()

	v1 := fieldsFor(t, map[string]typemode.TypeMode{"a": typemode.IntegerNullable}, []string{"a"})
	_, err := m.Create(ctx, "db", "events", v1)
	require.NoError(t, err)

	v2 := fieldsFor(t, map[string]typemode.TypeMode{
		"a": typemode.IntegerNullable,
		"b": typemode.StringNullable,
	}, []string{"a", "b"})
	result, err := m.Evolve(ctx, "db", "events", v2)
	require.NoError(t, err)
	assert.Equal(t, []string{"events.b"}, result.Added)
	assert.Empty(t, result.Changed)
	assert.Empty(t, result.Created)
}

func TestMaterializer_EvolveWidensType(t *testing.T) {
	driver := newFakeDriver()
	m := NewMaterializer(driver, HiveTypeMap, "", nil)
	ctx := context.Background()

	v1 := fieldsFor(t, map[string]typemode.TypeMode{"a": typemode.IntegerNullable}, []string{"a"})
	_, err := m.Create(ctx, "db", "events", v1)
	require.NoError(t, err)

	v2 := fieldsFor(t, map[string]typemode.TypeMode{"a": typemode.FloatNullable}, []string{"a"})
	result, err := m.Evolve(ctx, "db", "events", v2)
	require.NoError(t, err)
	assert.Equal(t, []string{"events.a"}, result.Changed)
	assert.Equal(t, "double", driver.tables["events"][1].Type)
}

func TestMaterializer_EvolveNarrowingIsNoOp(t *testing.T) {
	driver := newFakeDriver()
	m := NewMaterializer(driver, HiveTypeMap, "", nil)
	ctx := context.Background()

	v1 := fieldsFor(t, map[string]typemode.TypeMode{"a": typemode.FloatNullable}, []string{"a"})
	_, err := m.Create(ctx, "db", "events", v1)
	require.NoError(t, err)

	v2 := fieldsFor(t, map[string]typemode.TypeMode{"a": typemode.IntegerNullable}, []string{"a"})
	result, err := m.Evolve(ctx, "db", "events", v2)
	require.NoError(t, err)
	assert.Empty(t, result.Changed)
	assert.Equal(t, "double", driver.tables["events"][1].Type)
}

func TestMaterializer_EvolveCreatesMissingTable(t *testing.T) {
	driver := newFakeDriver()
	m := NewMaterializer(driver, HiveTypeMap, "", nil)
	ctx := context.Background()

	v1 := fieldsFor(t, map[string]typemode.TypeMode{"a": typemode.IntegerNullable}, []string{"a"})
	_, err := m.Create(ctx, "db", "events", v1)
	require.NoError(t, err)

	v2 := fieldsFor(t, map[string]typemode.TypeMode{
		"a":    typemode.IntegerNullable,
		"tags": typemode.StringRepeated,
	}, []string{"a", "tags"})
	result, err := m.Evolve(ctx, "db", "events", v2)
	require.NoError(t, err)
	assert.Equal(t, []string{"events_tags"}, result.Created)
}

func columnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func TestTableForFragment(t *testing.T) {
	assert.Equal(t, "events", TableForFragment("events", "root"))
	assert.Equal(t, "events", TableForFragment("events", "root/acme"))
	assert.Equal(t, "events_tags", TableForFragment("events", "tags"))
	assert.Equal(t, "events_items_variants", TableForFragment("events", "items.variants"))
}

func TestMaterializer_TableNames(t *testing.T) {
	m := NewMaterializer(newFakeDriver(), HiveTypeMap, "", nil)
	fields := fieldsFor(t, map[string]typemode.TypeMode{
		"a":         typemode.IntegerNullable,
		"tags":      typemode.StringRepeated,
		"items":     typemode.RecordRepeated,
		"items.sku": typemode.StringNullable,
	}, []string{"a", "tags", "items", "items.sku"})
	assert.Equal(t, []string{"events", "events_tags", "events_items"}, m.TableNames("events", fields))
}
