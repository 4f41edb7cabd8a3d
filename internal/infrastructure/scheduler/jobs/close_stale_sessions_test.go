package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/proximity-attendance/internal/domain/attendance"
)

type fakeCloser struct {
	sessions []attendance.Session
	failFor  string
	ended    []string
}

func (f *fakeCloser) ActiveSessions() []attendance.Session { return f.sessions }

func (f *fakeCloser) EndSession(_ context.Context, id string) (bool, error) {
	if id == f.failFor {
		return false, errors.New("store unavailable")
	}
	f.ended = append(f.ended, id)
	return true, nil
}

func TestCloseStaleSessionsJob_EndsOnlyOldSessions(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	closer := &fakeCloser{sessions: []attendance.Session{
		{ID: "old", Active: true, CreatedAt: now.Add(-13 * time.Hour)},
		{ID: "fresh", Active: true, CreatedAt: now.Add(-time.Hour)},
		{ID: "older", Active: true, CreatedAt: now.Add(-48 * time.Hour)},
	}}
	job := NewCloseStaleSessionsJob(closer, DefaultCloseStaleSessionsConfig(), nil, func() time.Time { return now })

	require.NoError(t, job.Run(t.Context()))
	assert.Equal(t, []string{"old", "older"}, closer.ended)

	stats := job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.Checked)
	assert.Equal(t, 2, stats.Ended)
	assert.Zero(t, stats.Failed)
}

func TestCloseStaleSessionsJob_ContinuesPastFailures(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	closer := &fakeCloser{
		sessions: []attendance.Session{
			{ID: "a", Active: true, CreatedAt: now.Add(-24 * time.Hour)},
			{ID: "b", Active: true, CreatedAt: now.Add(-24 * time.Hour)},
		},
		failFor: "a",
	}
	job := NewCloseStaleSessionsJob(closer, CloseStaleSessionsConfig{MaxAge: time.Hour}, nil, func() time.Time { return now })

	err := job.Run(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "end session a")
	assert.Equal(t, []string{"b"}, closer.ended)
	assert.Equal(t, 1, job.LastRunStats().Failed)
}

func TestCloseStaleSessionsJob_Metadata(t *testing.T) {
	job := NewCloseStaleSessionsJob(&fakeCloser{}, CloseStaleSessionsConfig{MaxAge: 2 * time.Hour}, nil, nil)
	assert.Equal(t, "close_stale_sessions", job.Name())
	assert.Contains(t, job.Description(), "2h0m0s")
	assert.Nil(t, job.LastRunStats())
}
