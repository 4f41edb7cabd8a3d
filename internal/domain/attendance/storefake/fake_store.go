// Package storefake provides an in-memory DurableStore with failure injection.
package storefake

import (
	"context"
	"sync"

	"github.com/alem-hub/proximity-attendance/internal/domain/attendance"
)

var _ attendance.DurableStore = (*Store)(nil)

// Store keeps blobs in a map and counts calls.
type Store struct {
	lock    sync.RWMutex
	blobs   map[string][]byte
	putErr  error
	getErr  error
	getFail int
	puts    map[string]int
	gets    int
}

// New returns an empty store.
func New() *Store {
	return &Store{blobs: make(map[string][]byte), puts: make(map[string]int)}
}

// Seed stores a blob without counting it as a put.
func (s *Store) Seed(key string, value []byte) *Store {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.blobs[key] = append([]byte(nil), value...)
	return s
}

// FailPuts makes every Put return err until cleared with nil.
func (s *Store) FailPuts(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.putErr = err
}

// FailGets makes the next n Gets return err.
func (s *Store) FailGets(err error, n int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.getErr, s.getFail = err, n
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.gets++
	if s.getFail > 0 {
		s.getFail--
		return nil, false, s.getErr
	}
	v, ok := s.blobs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.puts[key]++
	s.blobs[key] = append([]byte(nil), value...)
	return nil
}

// Blob returns the raw stored value.
func (s *Store) Blob(key string) ([]byte, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	v, ok := s.blobs[key]
	return v, ok
}

// Puts returns how many successful writes hit key.
func (s *Store) Puts(key string) int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.puts[key]
}

// Gets returns how many reads were attempted.
func (s *Store) Gets() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.gets
}
