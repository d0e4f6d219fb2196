package orchestrator

import (
	"context"

	"go.uber.org/zap"

	"github.com/gotitinc/mongo-bigquery/schema"
	"github.com/gotitinc/mongo-bigquery/typemode"
)

// retryingStore decorates a schema.Store so its writes — remote upserts in
// a distributed deployment — retry with capped exponential backoff like
// every other external command. Reads pass through: a failed read retries
// implicitly by failing the surrounding write-or-lookup and is not worth a
// backoff loop of its own.
type retryingStore struct {
	ctx    context.Context
	s      schema.Store
	logger *zap.Logger
}

func (r retryingStore) retry(op string, fn func() error) error {
	return WithRetry(r.ctx, r.logger, DefaultMaxAttempts, op, fn)
}

func (r retryingStore) GetField(path string) (schema.FieldEntry, bool, error) {
	return r.s.GetField(path)
}

func (r retryingStore) UpsertField(path string, t typemode.TypeMode) error {
	return r.retry("upsert_field:"+path, func() error { return r.s.UpsertField(path, t) })
}

func (r retryingStore) ForceField(path string, t typemode.TypeMode) error {
	return r.retry("force_field:"+path, func() error { return r.s.ForceField(path, t) })
}

func (r retryingStore) Fields() ([]schema.FieldEntry, error) { return r.s.Fields() }

func (r retryingStore) AddFragment(id string) error {
	return r.retry("add_fragment:"+id, func() error { return r.s.AddFragment(id) })
}

func (r retryingStore) ListFragments() ([]string, error) { return r.s.ListFragments() }

func (r retryingStore) AddShard(value string) error {
	return r.retry("add_shard:"+value, func() error { return r.s.AddShard(value) })
}

func (r retryingStore) ListShards() ([]string, error) { return r.s.ListShards() }

func (r retryingStore) Reset() error {
	return r.retry("reset_store", func() error { return r.s.Reset() })
}
