package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-prefs/layering"
	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store intended for tests and examples. It
// keys records by Ref.Identifier and assigns a fresh ETag and snapshot id on
// every save.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	snapshot map[string]any
	meta     Meta
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]memoryRecord{}, now: time.Now}
}

func (s *MemoryStore) Load(_ context.Context, ref Ref) (map[string]any, Meta, bool, error) {
	key, err := ref.Identifier()
	if err != nil {
		return nil, Meta{}, false, err
	}

	s.mu.RLock()
	record, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return nil, Meta{}, false, nil
	}
	return cloneSnapshot(record.snapshot), cloneMeta(record.meta), true, nil
}

func (s *MemoryStore) Save(_ context.Context, ref Ref, snapshot map[string]any, meta Meta) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.records[key]
	if exists && meta.ETag != "" && current.meta.ETag != "" && meta.ETag != current.meta.ETag {
		return current.meta, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, current.meta.ETag)
	}

	saved := mergeMeta(current.meta, meta)
	saved.SnapshotID = uuid.NewString()
	saved.ETag = uuid.NewString()
	saved.UpdatedAt = s.now()
	s.records[key] = memoryRecord{snapshot: cloneSnapshot(snapshot), meta: cloneMeta(saved)}
	return cloneMeta(saved), nil
}

// Put seeds ref with snapshot without ETag checks.
func (s *MemoryStore) Put(ref Ref, snapshot map[string]any) error {
	key, err := ref.Identifier()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.records[key] = memoryRecord{
		snapshot: cloneSnapshot(snapshot),
		meta:     Meta{SnapshotID: uuid.NewString(), ETag: uuid.NewString(), UpdatedAt: s.now()},
	}
	s.mu.Unlock()
	return nil
}

func cloneSnapshot(snapshot map[string]any) map[string]any {
	out := make(map[string]any, len(snapshot))
	for name, value := range snapshot {
		out[name] = layering.Clone(value)
	}
	return out
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra == nil {
		return out
	}
	out.Extra = make(map[string]string, len(meta.Extra))
	for k, v := range meta.Extra {
		out.Extra[k] = v
	}
	return out
}
