package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/gotitinc/mongo-bigquery/warehouse"
)

// retryingDriver decorates a warehouse.Driver so that every external
// command retries with capped exponential backoff before its failure is
// allowed to fail the run.
type retryingDriver struct {
	d      warehouse.Driver
	logger *zap.Logger
}

func (r retryingDriver) retry(ctx context.Context, op string, fn func() error) error {
	return WithRetry(ctx, r.logger, DefaultMaxAttempts, op, fn)
}

func (r retryingDriver) DatasetCreate(ctx context.Context, name string) error {
	return r.retry(ctx, "dataset_create:"+name, func() error { return r.d.DatasetCreate(ctx, name) })
}

func (r retryingDriver) DatasetDelete(ctx context.Context, name string) error {
	return r.retry(ctx, "dataset_delete:"+name, func() error { return r.d.DatasetDelete(ctx, name) })
}

func (r retryingDriver) TableExists(ctx context.Context, db, name string) (bool, error) {
	var exists bool
	err := r.retry(ctx, "table_exists:"+name, func() error {
		var err error
		exists, err = r.d.TableExists(ctx, db, name)
		return err
	})
	return exists, err
}

func (r retryingDriver) CreateTable(ctx context.Context, db, name string, columns []warehouse.Column, rowFormat string) ([]string, error) {
	var names []string
	err := r.retry(ctx, "create_table:"+name, func() error {
		var err error
		names, err = r.d.CreateTable(ctx, db, name, columns, rowFormat)
		return err
	})
	return names, err
}

func (r retryingDriver) DescribeTable(ctx context.Context, db, name string) ([]warehouse.Column, error) {
	var cols []warehouse.Column
	err := r.retry(ctx, "describe_table:"+name, func() error {
		var err error
		cols, err = r.d.DescribeTable(ctx, db, name)
		return err
	})
	return cols, err
}

func (r retryingDriver) ListTables(ctx context.Context, db, prefix string) ([]string, error) {
	var names []string
	err := r.retry(ctx, "list_tables:"+prefix, func() error {
		var err error
		names, err = r.d.ListTables(ctx, db, prefix)
		return err
	})
	return names, err
}

func (r retryingDriver) AlterTableAddColumn(ctx context.Context, db, name string, col warehouse.Column) error {
	return r.retry(ctx, "add_column:"+name+"."+col.Name, func() error {
		return r.d.AlterTableAddColumn(ctx, db, name, col)
	})
}

func (r retryingDriver) AlterTableChangeType(ctx context.Context, db, name string, col warehouse.Column) error {
	return r.retry(ctx, "change_type:"+name+"."+col.Name, func() error {
		return r.d.AlterTableChangeType(ctx, db, name, col)
	})
}

func (r retryingDriver) LoadTable(ctx context.Context, db, name, fileGlob string) error {
	return r.retry(ctx, "load_table:"+name, func() error { return r.d.LoadTable(ctx, db, name, fileGlob) })
}

func (r retryingDriver) DropTable(ctx context.Context, db, name string) error {
	return r.retry(ctx, "drop_table:"+name, func() error { return r.d.DropTable(ctx, db, name) })
}
