package dedupe

import (
	"context"
	"strconv"
	"sync"

	"github.com/DeafMist/boletin-radar/internal/models"
)

// MemoryStore keeps records in process memory, evicting the oldest keys
// once capacity is exceeded. It is meant for dry runs and tests.
type MemoryStore struct {
	mu       sync.Mutex
	items    map[string]models.Record
	order    []string
	capacity int
	seq      uint64
}

// NewMemoryStore creates a store holding at most capacity records.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemoryStore{
		items:    make(map[string]models.Record, capacity),
		order:    make([]string, 0, capacity),
		capacity: capacity,
	}
}

// Get returns the record stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) (models.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.items[key]
	return rec, ok, nil
}

// Create stores rec unless its key already exists.
func (s *MemoryStore) Create(_ context.Context, rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[rec.Key]; ok {
		return ErrConflict
	}
	rec.Revision = s.nextRevision()
	s.items[rec.Key] = rec
	s.order = append(s.order, rec.Key)
	s.compact()
	return nil
}

// Replace overwrites prev with next if prev is still the current revision.
func (s *MemoryStore) Replace(_ context.Context, prev, next models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.items[prev.Key]
	if !ok || cur.Revision != prev.Revision {
		return ErrConflict
	}
	next.Key = prev.Key
	next.Revision = s.nextRevision()
	s.items[prev.Key] = next
	return nil
}

// Len reports how many records are held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *MemoryStore) nextRevision() string {
	s.seq++
	return strconv.FormatUint(s.seq, 10)
}

func (s *MemoryStore) compact() {
	for len(s.items) > s.capacity && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.items, oldest)
	}
}
