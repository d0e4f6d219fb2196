// Package orchestrator drives a run's phases in order — extract, schema
// observation, schema reduction, shredding, warehouse create/evolve, load —
// and aggregates run metadata. It holds the only piece of configuration the
// core's other packages don't own themselves.
package orchestrator

import (
	"errors"
	"fmt"

	"github.com/gotitinc/mongo-bigquery/schema"
	"github.com/gotitinc/mongo-bigquery/shred"
)

// WriteDisposition selects whether a run replaces or appends to existing
// warehouse state.
type WriteDisposition int

const (
	// Append adds to existing tables and widens their schema in place.
	Append WriteDisposition = iota
	// Overwrite resets the Schema Store and drops/recreates every table.
	Overwrite
)

func (d WriteDisposition) String() string {
	if d == Overwrite {
		return "overwrite"
	}
	return "append"
}

// ErrConfiguration reports contradictory or missing required flags,
// surfaced before any side effect runs.
var ErrConfiguration = errors.New("orchestrator: invalid run configuration")

// defaultRecordsPerPart is the partition size for extract and reject files.
const defaultRecordsPerPart = 100000

// defaultWorkers is the distributed path's fan-out width when none is
// configured.
const defaultWorkers = 4

// RunConfig is one run's full configuration: everything that varies
// between invocations of the same core.
type RunConfig struct {
	Collection       string
	Database         string
	TmpDir           string
	WriteDisposition WriteDisposition
	ArrayPolicy      shred.ArrayPolicy
	ShardKeyPath     string
	Policies         []schema.Policy
	RecordsPerPart   int
	UseDistributed   bool
	// Workers is the observer/shredder fan-out width on the distributed
	// path; ignored when UseDistributed is false.
	Workers   int
	RowFormat string
	// MaxShardLen overrides the shard-value length limit (default 32,
	// inherited from the source implementation but kept configurable here).
	MaxShardLen int
}

// Validate checks RunConfig for ConfigurationErrors and fills in defaults.
// It must be called, and must succeed, before a run has any side effect.
func (c *RunConfig) Validate() error {
	if c.Collection == "" {
		return fmt.Errorf("%w: collection is required", ErrConfiguration)
	}
	if c.Database == "" {
		return fmt.Errorf("%w: database is required", ErrConfiguration)
	}
	if c.TmpDir == "" {
		return fmt.Errorf("%w: tmp dir is required", ErrConfiguration)
	}
	if c.RecordsPerPart < 0 {
		return fmt.Errorf("%w: records_per_part cannot be negative", ErrConfiguration)
	}
	if c.RecordsPerPart == 0 {
		c.RecordsPerPart = defaultRecordsPerPart
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers cannot be negative", ErrConfiguration)
	}
	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}
	for _, p := range c.Policies {
		if p.Path == "" {
			return fmt.Errorf("%w: policy with empty path", ErrConfiguration)
		}
	}
	return nil
}
