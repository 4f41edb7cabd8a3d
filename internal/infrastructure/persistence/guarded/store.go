// Package guarded puts a circuit breaker in front of a durable store so
// that a dead backend fails attendance writes immediately.
package guarded

import (
	"context"

	"github.com/alem-hub/proximity-attendance/internal/domain/attendance"
	"github.com/alem-hub/proximity-attendance/internal/domain/shared"
	"github.com/alem-hub/proximity-attendance/pkg/circuitbreaker"
)

// Backend is a durable store the daemon can health-check and close.
type Backend interface {
	attendance.DurableStore
	Ping(ctx context.Context) error
	Close() error
}

var _ Backend = (*Store)(nil)

// Store forwards to a Backend through a circuit breaker.
type Store struct {
	next    Backend
	breaker *circuitbreaker.CircuitBreaker
}

// New wraps next.
func New(next Backend, breaker *circuitbreaker.CircuitBreaker) *Store {
	return &Store{next: next, breaker: breaker}
}

// Get reads through the breaker.
func (s *Store) Get(ctx context.Context, key string) (blob []byte, ok bool, err error) {
	err = s.breaker.Execute(ctx, func(ctx context.Context) error {
		var inner error
		blob, ok, inner = s.next.Get(ctx, key)
		return inner
	})
	return blob, ok, s.translate("Get", err)
}

// Put writes through the breaker.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.next.Put(ctx, key, value)
	})
	return s.translate("Put", err)
}

// Ping bypasses the breaker so health checks see the real backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.next.Close()
}

// State reports the breaker state.
func (s *Store) State() circuitbreaker.State {
	return s.breaker.State()
}

func (s *Store) translate(op string, err error) error {
	if err != nil && circuitbreaker.IsRejection(err) {
		return shared.WrapError("storage", op, shared.ErrServiceUnavailable, "durable store unavailable", err)
	}
	return err
}
