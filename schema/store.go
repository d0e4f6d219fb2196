package schema

import "github.com/gotitinc/mongo-bigquery/typemode"

// Store is the Schema Store: a persistent key/value collection holding
// `field` entries keyed by Path, plus the singleton `fragments` and
// `shards` sets. Implementations must make UpsertField linearizable per path
// and AddFragment/AddShard idempotent set-unions safely callable from many
// concurrent shredder workers.
type Store interface {
	// GetField returns the stored entry for path, or ok=false if none exists.
	GetField(path string) (entry FieldEntry, ok bool, err error)

	// UpsertField folds t into the stored value for path under the widening
	// lattice (typemode.Widen). If the stored entry is Forced, the call is a
	// no-op: forced entries are fixpoints. If no entry exists yet,
	// one is created with Forced=false.
	UpsertField(path string, t typemode.TypeMode) error

	// ForceField pins path to exactly (t, forced=true); the reducer will
	// never widen it again.
	ForceField(path string, t typemode.TypeMode) error

	// Fields returns every known field entry, ordered by first-observed path
	// order (the order the ordered-map-backed implementations preserve).
	Fields() ([]FieldEntry, error)

	// AddFragment records id in the cumulative fragment set (set-union).
	AddFragment(id string) error
	// ListFragments returns the fragment set observed so far.
	ListFragments() ([]string, error)

	// AddShard records value in the cumulative shard set (set-union).
	AddShard(value string) error
	// ListShards returns the shard set observed so far.
	ListShards() ([]string, error)

	// Reset clears all field, fragment and shard state. Used when a run's
	// write_disposition is "overwrite".
	Reset() error
}
