package orchestrator

import (
	"time"

	"github.com/google/uuid"
)

// RunSummary is what a run prints on success and what the CLI's exit
// behavior is built from: counts, audit bounds and the files/tables the run
// touched.
type RunSummary struct {
	RunID             uuid.UUID
	RecordsExtracted  int
	RecordsRejected   int
	SortKeyMin        any
	SortKeyMax        any
	OutputFiles       []string
	DestinationTables []string
	Duration          time.Duration
}
