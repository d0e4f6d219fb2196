package schema

import (
	"fmt"

	"go.uber.org/zap"
)

// Reducer folds Observer output into a Store under the widening lattice
// It is the sequential per-path fold half of the map/reduce pass;
// parallelizing the shuffle that groups observations by path is the
// distributed-execution harness's job — Reduce itself assumes its input
// observations already arrived in an order where that doesn't matter, since
// typemode.Widen is commutative and associative.
type Reducer struct {
	// Observer configures how ReduceDocument observes each document; the
	// zero value observes arrays structurally.
	Observer Observer

	store  Store
	logger *zap.Logger
}

// NewReducer returns a Reducer that persists into store.
func NewReducer(store Store, logger *zap.Logger) *Reducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reducer{store: store, logger: logger}
}

// Reduce upserts every observation into the Store. Forced entries are left
// untouched by Store.UpsertField itself.
func (r *Reducer) Reduce(observations []Observation) error {
	for _, obs := range observations {
		if err := r.store.UpsertField(obs.Path, obs.Type); err != nil {
			return fmt.Errorf("schema: reduce %q: %w", obs.Path, err)
		}
	}
	return nil
}

// ReduceDocument is a convenience that observes and reduces one document in
// a single call — the path the orchestrator's "simple" in-process mode
// takes per document.
func (r *Reducer) ReduceDocument(doc map[string]any) error {
	return r.Reduce(r.Observer.Observe(doc))
}
