package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func failing(context.Context) error { return errBackend }
func succeeding(context.Context) error { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New("store", WithFailureThreshold(2))

	assert.ErrorIs(t, cb.Execute(t.Context(), failing), errBackend)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(t.Context(), failing), errBackend)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(t.Context(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.True(t, IsRejection(err))
	assert.False(t, called)
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	var transitions []string
	cb := New("store",
		WithFailureThreshold(1),
		WithSuccessThreshold(1),
		WithTimeout(5*time.Second),
		WithNowTime(clock.Now),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}),
	)

	require.Error(t, cb.Execute(t.Context(), failing))
	require.ErrorIs(t, cb.Execute(t.Context(), succeeding), ErrCircuitOpen)

	clock.Advance(5 * time.Second)
	require.NoError(t, cb.Execute(t.Context(), succeeding))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	cb := New("store", WithFailureThreshold(1), WithTimeout(time.Second), WithNowTime(clock.Now))

	require.Error(t, cb.Execute(t.Context(), failing))
	clock.Advance(time.Second)
	require.ErrorIs(t, cb.Execute(t.Context(), failing), errBackend)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(t.Context(), succeeding), ErrCircuitOpen)
}

func TestBreaker_CallerCancellationIsNotFailure(t *testing.T) {
	cb := New("store", WithFailureThreshold(1))
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Counts().TotalSuccesses)
}

func TestBreaker_IsFailureFilter(t *testing.T) {
	notFound := errors.New("not found")
	cb := New("store", WithFailureThreshold(1), WithIsFailure(func(err error) bool {
		return !errors.Is(err, notFound)
	}))

	assert.ErrorIs(t, cb.Execute(t.Context(), func(context.Context) error { return notFound }), notFound)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_Reset(t *testing.T) {
	cb := DurableStoreBreaker("store", nil)
	for range 3 {
		_ = cb.Execute(t.Context(), failing)
	}
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.Counts().Requests)
	assert.Equal(t, "store", cb.Name())
}
