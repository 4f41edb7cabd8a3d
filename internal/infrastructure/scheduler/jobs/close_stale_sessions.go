// Package jobs contains the daemon's scheduled maintenance jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alem-hub/proximity-attendance/internal/domain/attendance"
	"github.com/alem-hub/proximity-attendance/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLOSE STALE SESSIONS JOB
// ══════════════════════════════════════════════════════════════════════════════

// SessionCloser is the part of the ledger the job drives.
type SessionCloser interface {
	ActiveSessions() []attendance.Session
	EndSession(ctx context.Context, sessionID string) (bool, error)
}

// CloseStaleSessionsConfig configures the job.
type CloseStaleSessionsConfig struct {
	// MaxAge is how long a session may stay active before it is ended.
	MaxAge time.Duration

	// Timeout bounds one run.
	Timeout time.Duration
}

// DefaultCloseStaleSessionsConfig returns the daemon defaults.
func DefaultCloseStaleSessionsConfig() CloseStaleSessionsConfig {
	return CloseStaleSessionsConfig{
		MaxAge:  12 * time.Hour,
		Timeout: 30 * time.Second,
	}
}

// CloseStaleSessionsStats summarises one run.
type CloseStaleSessionsStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Checked   int
	Ended     int
	Failed    int
}

// CloseStaleSessionsJob ends sessions an admin forgot to close, so a
// forgotten session stops accepting check-ins.
type CloseStaleSessionsJob struct {
	ledger SessionCloser
	config CloseStaleSessionsConfig
	log    *logger.Logger
	now    func() time.Time

	lastRun atomic.Pointer[CloseStaleSessionsStats]
}

// NewCloseStaleSessionsJob creates the job. A nil now uses time.Now.
func NewCloseStaleSessionsJob(ledger SessionCloser, config CloseStaleSessionsConfig, log *logger.Logger, now func() time.Time) *CloseStaleSessionsJob {
	if log == nil {
		log = logger.Nop()
	}
	if now == nil {
		now = time.Now
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultCloseStaleSessionsConfig().Timeout
	}
	return &CloseStaleSessionsJob{
		ledger: ledger,
		config: config,
		log:    log.With(logger.Component("close_stale_sessions")),
		now:    now,
	}
}

// Name implements scheduler.Job.
func (j *CloseStaleSessionsJob) Name() string { return "close_stale_sessions" }

// Description implements scheduler.Job.
func (j *CloseStaleSessionsJob) Description() string {
	return fmt.Sprintf("ends sessions active for longer than %s", j.config.MaxAge)
}

// Run ends every active session older than MaxAge. Failures on one session
// do not stop the others; they are joined into the returned error.
func (j *CloseStaleSessionsJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	stats := &CloseStaleSessionsStats{StartedAt: j.now()}
	defer func() {
		stats.Duration = j.now().Sub(stats.StartedAt)
		j.lastRun.Store(stats)
	}()

	cutoff := stats.StartedAt.Add(-j.config.MaxAge)
	var errs []error
	for _, s := range j.ledger.ActiveSessions() {
		stats.Checked++
		if !s.CreatedAt.Before(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		ended, err := j.ledger.EndSession(ctx, s.ID)
		if err != nil {
			stats.Failed++
			errs = append(errs, fmt.Errorf("end session %s: %w", s.ID, err))
			continue
		}
		if ended {
			stats.Ended++
			j.log.Info("stale session ended",
				logger.SessionID(s.ID),
				logger.Duration("age", stats.StartedAt.Sub(s.CreatedAt)),
			)
		}
	}
	return errors.Join(errs...)
}

// LastRunStats returns the stats of the most recent run, or nil.
func (j *CloseStaleSessionsJob) LastRunStats() *CloseStaleSessionsStats {
	return j.lastRun.Load()
}
