package metrics

import (
	"context"
	"sync"
)

// MemorySink stores records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
	err     error
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// PutMetric implements Sink. Records are kept even when an error is set.
func (s *MemorySink) PutMetric(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return s.err
}

// SetError makes subsequent PutMetric calls return err.
func (s *MemorySink) SetError(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Records returns a copy of all records.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// Named returns records with the given name.
func (s *MemorySink) Named(name string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}

// Reset drops all records.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()
}
