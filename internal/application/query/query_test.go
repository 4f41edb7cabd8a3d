package query

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/proximity-attendance/internal/application/ledger"
	"github.com/alem-hub/proximity-attendance/internal/domain/attendance"
	"github.com/alem-hub/proximity-attendance/internal/domain/attendance/storefake"
	"github.com/alem-hub/proximity-attendance/internal/domain/proximity/detectorfake"
	"github.com/alem-hub/proximity-attendance/internal/domain/shared"
)

type staticPeople struct {
	people []attendance.Person
	err    error
}

func (s staticPeople) Lookup(_ context.Context, id string) (attendance.Person, error) {
	for _, p := range s.people {
		if p.ID == id {
			return p, nil
		}
	}
	return attendance.Person{}, shared.ErrPersonNotFound
}

func (s staticPeople) People(context.Context) ([]attendance.Person, error) {
	return s.people, s.err
}

type fixture struct {
	ledger *ledger.Ledger
	now    time.Time
}

func setupTestFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)}
	seq := 0
	f.ledger = ledger.New(storefake.New(), detectorfake.New(),
		ledger.WithNowTime(func() time.Time { return f.now }),
		ledger.WithIDGenerator(func() string { seq++; return fmt.Sprintf("id-%d", seq) }),
	)
	require.NoError(t, f.ledger.Rehydrate(t.Context()))
	return f
}

func (f *fixture) session(t *testing.T, name string) attendance.Session {
	t.Helper()
	s, err := f.ledger.CreateSession(t.Context(), attendance.NewSessionParams{Name: name, NetworkName: "Net-" + name, OwnerID: "admin"})
	require.NoError(t, err)
	return s
}

func (f *fixture) mark(t *testing.T, person, session string, m attendance.Method) {
	t.Helper()
	_, err := f.ledger.MarkAttendance(t.Context(), person, "Name "+person, session, m)
	require.NoError(t, err)
}

func TestAdminDashboard(t *testing.T) {
	f := setupTestFixture(t)

	yesterday := f.session(t, "Old")
	f.mark(t, "p1", yesterday.ID, attendance.MethodWiFi)
	_, err := f.ledger.EndSession(t.Context(), yesterday.ID)
	require.NoError(t, err)

	f.now = f.now.Add(24 * time.Hour)
	s1 := f.session(t, "Algorithms")
	s2 := f.session(t, "Databases")
	f.mark(t, "p1", s1.ID, attendance.MethodWiFi)
	f.mark(t, "p2", s1.ID, attendance.MethodBluetooth)
	f.mark(t, "p3", s2.ID, attendance.MethodManual)

	h := NewGetAdminDashboardHandler(f.ledger, func() time.Time { return f.now })
	dto, err := h.Handle(t.Context(), GetAdminDashboardQuery{})
	require.NoError(t, err)

	assert.Equal(t, "2026-03-10", dto.Date)
	assert.Equal(t, 2, dto.SessionsToday)
	assert.Equal(t, 3, dto.RecordsToday)
	assert.Equal(t, 3, dto.TotalSessions)
	assert.Equal(t, 4, dto.TotalRecords)
	require.Len(t, dto.ActiveSessions, 2)
	assert.Equal(t, s1.ID, dto.ActiveSessions[0].Session.ID)
	assert.Equal(t, 2, dto.ActiveSessions[0].RecordCount)
	assert.Equal(t, 1, dto.ActiveSessions[0].ByMethod[attendance.MethodBluetooth])

	past, err := h.Handle(t.Context(), GetAdminDashboardQuery{Day: f.now.Add(-24 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 1, past.SessionsToday)
	assert.Equal(t, 1, past.RecordsToday)
}

func TestPersonSummary(t *testing.T) {
	f := setupTestFixture(t)

	var sessions []attendance.Session
	for i := range 7 {
		s := f.session(t, fmt.Sprintf("S%d", i))
		sessions = append(sessions, s)
		f.mark(t, "p1", s.ID, attendance.MethodWiFi)
		if i%3 == 2 {
			f.now = f.now.Add(24 * time.Hour)
		} else {
			f.now = f.now.Add(time.Hour)
		}
	}

	h := NewGetPersonSummaryHandler(f.ledger, func() time.Time { return f.now })
	dto, err := h.Handle(t.Context(), GetPersonSummaryQuery{PersonID: "p1"})
	require.NoError(t, err)

	assert.Equal(t, 7, dto.TotalRecords)
	assert.Equal(t, 3, dto.DaysAttended)
	assert.Equal(t, 1, dto.RecordsToday)
	assert.Equal(t, 7, dto.ByMethod[attendance.MethodWiFi])
	require.Len(t, dto.Recent, DefaultRecentLimit)
	assert.Equal(t, sessions[6].ID, dto.Recent[0].SessionID)
	assert.Equal(t, "S6", dto.Recent[0].SessionName)
	assert.Equal(t, sessions[2].ID, dto.Recent[4].SessionID)
}

func TestPersonSummary_EmptyAndInvalid(t *testing.T) {
	f := setupTestFixture(t)
	h := NewGetPersonSummaryHandler(f.ledger, nil)

	dto, err := h.Handle(t.Context(), GetPersonSummaryQuery{PersonID: "nobody"})
	require.NoError(t, err)
	assert.Zero(t, dto.DaysAttended)
	assert.Empty(t, dto.Recent)

	_, err = h.Handle(t.Context(), GetPersonSummaryQuery{})
	assert.ErrorIs(t, err, shared.ErrPersonRequired)
}

func TestSessionRoster(t *testing.T) {
	f := setupTestFixture(t)
	s := f.session(t, "Algorithms")
	f.mark(t, "p2", s.ID, attendance.MethodBluetooth)
	f.mark(t, "walk-in", s.ID, attendance.MethodManual)

	people := staticPeople{people: []attendance.Person{
		{ID: "admin", Name: "Admin", Role: attendance.RoleAdmin},
		{ID: "p1", Name: "Aru", Role: attendance.RoleStudent},
		{ID: "p2", Name: "Bolat", Role: attendance.RoleEmployee},
	}}
	dto, err := NewGetSessionRosterHandler(f.ledger, people).Handle(t.Context(), GetSessionRosterQuery{SessionID: s.ID})
	require.NoError(t, err)

	assert.Equal(t, 2, dto.Present)
	assert.Equal(t, 1, dto.Absent)
	require.Len(t, dto.Entries, 3)
	assert.Equal(t, "p1", dto.Entries[0].PersonID)
	assert.False(t, dto.Entries[0].Marked)
	assert.True(t, dto.Entries[1].Marked)
	assert.Equal(t, attendance.MethodBluetooth, dto.Entries[1].Method)
	assert.True(t, dto.Entries[2].Unlisted)
	assert.Equal(t, "Name walk-in", dto.Entries[2].Name)
}

func TestSessionRoster_Errors(t *testing.T) {
	f := setupTestFixture(t)
	_, err := NewGetSessionRosterHandler(f.ledger, staticPeople{}).Handle(t.Context(), GetSessionRosterQuery{SessionID: "ghost"})
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)

	s := f.session(t, "S")
	boom := errors.New("directory down")
	_, err = NewGetSessionRosterHandler(f.ledger, staticPeople{err: boom}).Handle(t.Context(), GetSessionRosterQuery{SessionID: s.ID})
	assert.ErrorIs(t, err, boom)
}
