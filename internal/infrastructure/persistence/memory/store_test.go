package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetPut(t *testing.T) {
	s := New()

	_, ok, err := s.Get(t.Context(), "sessions")
	require.NoError(t, err)
	assert.False(t, ok)

	in := []byte(`[{"id":"a"}]`)
	require.NoError(t, s.Put(t.Context(), "sessions", in))
	in[0] = 'x'

	out, ok, err := s.Get(t.Context(), "sessions")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[{"id":"a"}]`, string(out))

	out[0] = 'y'
	again, _, _ := s.Get(t.Context(), "sessions")
	assert.Equal(t, byte('['), again[0])
}

func TestStore_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	assert.ErrorIs(t, s.Put(ctx, "k", []byte("v")), context.Canceled)
	_, _, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
