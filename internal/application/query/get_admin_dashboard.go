package query

import (
	"context"
	"time"

	"github.com/alem-hub/proximity-attendance/internal/domain/attendance"
	"github.com/alem-hub/proximity-attendance/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ADMIN DASHBOARD QUERY
// Day-level overview for administrators: what is running now and how many
// people checked in today.
// ══════════════════════════════════════════════════════════════════════════════

// GetAdminDashboardQuery selects the day to report. Zero means today.
type GetAdminDashboardQuery struct {
	Day time.Time
}

// ActiveSessionDTO is an active session with its live counters.
type ActiveSessionDTO struct {
	Session     SessionDTO                `json:"session"`
	RecordCount int                       `json:"record_count"`
	ByMethod    map[attendance.Method]int `json:"by_method"`
}

// AdminDashboardDTO is the dashboard payload.
type AdminDashboardDTO struct {
	Date           string             `json:"date"`
	SessionsToday  int                `json:"sessions_today"`
	RecordsToday   int                `json:"records_today"`
	ActiveSessions []ActiveSessionDTO `json:"active_sessions"`
	TotalSessions  int                `json:"total_sessions"`
	TotalRecords   int                `json:"total_records"`
}

// GetAdminDashboardHandler handles GetAdminDashboardQuery.
type GetAdminDashboardHandler struct {
	reader LedgerReader
	now    func() time.Time
}

// NewGetAdminDashboardHandler creates the handler. A nil now uses time.Now.
func NewGetAdminDashboardHandler(reader LedgerReader, now func() time.Time) *GetAdminDashboardHandler {
	return &GetAdminDashboardHandler{reader: reader, now: nowOr(now)}
}

// Handle builds the dashboard.
func (h *GetAdminDashboardHandler) Handle(ctx context.Context, q GetAdminDashboardQuery) (*AdminDashboardDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	day := q.Day
	if day.IsZero() {
		day = h.now()
	}
	date := timeutil.DateKey(day, h.reader.Location())

	sessions := h.reader.Sessions()
	records := h.reader.Records()

	dto := &AdminDashboardDTO{
		Date:           date,
		ActiveSessions: []ActiveSessionDTO{},
		TotalSessions:  len(sessions),
		TotalRecords:   len(records),
	}

	active := make(map[string]int)
	for _, s := range sessions {
		if s.Date == date {
			dto.SessionsToday++
		}
		if s.Active {
			active[s.ID] = len(dto.ActiveSessions)
			dto.ActiveSessions = append(dto.ActiveSessions, ActiveSessionDTO{
				Session:  NewSessionDTO(s),
				ByMethod: map[attendance.Method]int{},
			})
		}
	}

	for _, r := range records {
		if r.Date == date {
			dto.RecordsToday++
		}
		if i, ok := active[r.SessionID]; ok {
			dto.ActiveSessions[i].RecordCount++
			dto.ActiveSessions[i].ByMethod[r.Method]++
		}
	}

	return dto, nil
}
