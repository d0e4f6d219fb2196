package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// rejectLog writes rejected documents under <rejectDir>/part_<n>, one
// "<reason>\t<original JSON>" line per document, rolling to a new part every
// perPart lines — the same partitioning the extract phase applies to its
// data files. Safe for concurrent shredder workers.
type rejectLog struct {
	dir     string
	perPart int

	mu    sync.Mutex
	part  int
	lines int
	f     *os.File
}

func newRejectLog(dir string, perPart int) *rejectLog {
	return &rejectLog{dir: dir, perPart: perPart}
}

func (r *rejectLog) write(reason string, raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil || r.lines >= r.perPart {
		if r.f != nil {
			if err := r.f.Close(); err != nil {
				return err
			}
			r.part++
		}
		f, err := os.Create(filepath.Join(r.dir, fmt.Sprintf("part_%d", r.part)))
		if err != nil {
			return fmt.Errorf("orchestrator: open reject part: %w", err)
		}
		r.f = f
		r.lines = 0
	}
	if _, err := fmt.Fprintf(r.f, "%s\t%s\n", reason, raw); err != nil {
		return err
	}
	r.lines++
	return nil
}

func (r *rejectLog) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
