// Package warehouse translates a resolved Schema into physical tables: it
// creates a parent table plus one child table per repeated path, and on
// reruns diffs against existing columns to issue ADD COLUMN / type-widening
// ALTER operations instead of recreating tables from scratch.
package warehouse

import "context"

// Column is one physical column: a name plus the warehouse-native type
// string a TypeMap produced from a logical BaseType.
type Column struct {
	Name string
	Type string
}

// Driver is the external warehouse collaborator (mkdir/rmdir/put's sibling
// for relational engines): dataset/table DDL plus bulk load, left entirely
// to the caller to implement against a concrete engine (BigQuery, Hive,
// Redshift, ...). The core only drives it through these operations.
type Driver interface {
	DatasetCreate(ctx context.Context, name string) error
	DatasetDelete(ctx context.Context, name string) error

	TableExists(ctx context.Context, db, name string) (bool, error)
	CreateTable(ctx context.Context, db, name string, columns []Column, rowFormat string) ([]string, error)
	DescribeTable(ctx context.Context, db, name string) ([]Column, error)
	ListTables(ctx context.Context, db, prefix string) ([]string, error)

	AlterTableAddColumn(ctx context.Context, db, name string, col Column) error
	// AlterTableChangeType widens an existing column's type in place. On
	// engines that disallow an in-place type change, implementations should
	// perform the documented rename-table → create-table-as-select-with-cast
	// → drop-old-table workaround internally and still satisfy this signature.
	AlterTableChangeType(ctx context.Context, db, name string, col Column) error

	LoadTable(ctx context.Context, db, name, fileGlob string) error
	DropTable(ctx context.Context, db, name string) error
}
