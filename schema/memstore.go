package schema

import (
	"sync"

	"github.com/gotitinc/mongo-bigquery/typemode"
	omap "github.com/wk8/go-ordered-map/v2"
)

// MemStore is an in-memory Store, the CLI's default when no schema-store
// file is given (on the simple and the distributed path alike). Field order is preserved with an ordered
// map so that DDL and Fields() output is deterministic across runs on the
// same input. A single mutex makes UpsertField/AddFragment/AddShard
// linearizable; the lock is coarse but correct, which is sufficient for an
// in-process store backing one reducer fold, since the per-key fold is
// single-threaded.
type MemStore struct {
	mu        sync.Mutex
	fields    *omap.OrderedMap[string, FieldEntry]
	fragments *omap.OrderedMap[string, struct{}]
	shards    *omap.OrderedMap[string, struct{}]
}

// NewMemStore returns an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{
		fields:    omap.New[string, FieldEntry](),
		fragments: omap.New[string, struct{}](),
		shards:    omap.New[string, struct{}](),
	}
}

func (s *MemStore) GetField(path string) (FieldEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.fields.Get(path)
	return e, ok, nil
}

func (s *MemStore) UpsertField(path string, t typemode.TypeMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.fields.Get(path)
	if !ok {
		s.fields.Set(path, FieldEntry{Path: path, Type: t})
		return nil
	}
	if cur.Forced {
		return nil
	}
	widened := typemode.Widen(cur.Type, t)
	if widened != cur.Type {
		cur.Type = widened
		s.fields.Set(path, cur)
	}
	return nil
}

func (s *MemStore) ForceField(path string, t typemode.TypeMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields.Set(path, FieldEntry{Path: path, Type: t, Forced: true})
	return nil
}

func (s *MemStore) Fields() ([]FieldEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FieldEntry, 0, s.fields.Len())
	for pair := s.fields.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out, nil
}

func (s *MemStore) AddFragment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fragments.Set(id, struct{}{})
	return nil
}

func (s *MemStore) ListFragments() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, s.fragments.Len())
	for pair := s.fragments.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out, nil
}

func (s *MemStore) AddShard(value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shards.Set(value, struct{}{})
	return nil
}

func (s *MemStore) ListShards() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, s.shards.Len())
	for pair := s.shards.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out, nil
}

func (s *MemStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = omap.New[string, FieldEntry]()
	s.fragments = omap.New[string, struct{}]()
	s.shards = omap.New[string, struct{}]()
	return nil
}
