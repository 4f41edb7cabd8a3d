package query

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/alem-hub/proximity-attendance/internal/domain/attendance"
	"github.com/alem-hub/proximity-attendance/internal/domain/shared"
	"github.com/alem-hub/proximity-attendance/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PERSON SUMMARY QUERY
// A person's own attendance history: days attended, today's check-ins and
// the most recent records.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultRecentLimit is how many recent records a summary carries.
const DefaultRecentLimit = 5

// GetPersonSummaryQuery selects whose summary to build.
type GetPersonSummaryQuery struct {
	PersonID    string
	Day         time.Time // zero means today
	RecentLimit int
}

// Validate normalizes defaults and checks required fields.
func (q *GetPersonSummaryQuery) Validate() error {
	if strings.TrimSpace(q.PersonID) == "" {
		return shared.ErrPersonRequired
	}
	if q.RecentLimit <= 0 {
		q.RecentLimit = DefaultRecentLimit
	}
	if q.RecentLimit > shared.MaxPageSize {
		q.RecentLimit = shared.MaxPageSize
	}
	return nil
}

// PersonSummaryDTO is the summary payload.
type PersonSummaryDTO struct {
	PersonID     string                    `json:"person_id"`
	Date         string                    `json:"date"`
	DaysAttended int                       `json:"days_attended"`
	RecordsToday int                       `json:"records_today"`
	TotalRecords int                       `json:"total_records"`
	ByMethod     map[attendance.Method]int `json:"by_method"`
	Recent       []RecordDTO               `json:"recent"`
}

// GetPersonSummaryHandler handles GetPersonSummaryQuery.
type GetPersonSummaryHandler struct {
	reader LedgerReader
	now    func() time.Time
}

// NewGetPersonSummaryHandler creates the handler. A nil now uses time.Now.
func NewGetPersonSummaryHandler(reader LedgerReader, now func() time.Time) *GetPersonSummaryHandler {
	return &GetPersonSummaryHandler{reader: reader, now: nowOr(now)}
}

// Handle builds the summary. A person with no records gets zero counters.
func (h *GetPersonSummaryHandler) Handle(ctx context.Context, q GetPersonSummaryQuery) (*PersonSummaryDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	day := q.Day
	if day.IsZero() {
		day = h.now()
	}
	date := timeutil.DateKey(day, h.reader.Location())

	records := h.reader.RecordsForPerson(q.PersonID)
	names := sessionNames(h.reader.Sessions())

	dto := &PersonSummaryDTO{
		PersonID:     q.PersonID,
		Date:         date,
		TotalRecords: len(records),
		ByMethod:     map[attendance.Method]int{},
		Recent:       []RecordDTO{},
	}

	days := make(map[string]struct{})
	for _, r := range records {
		days[r.Date] = struct{}{}
		dto.ByMethod[r.Method]++
		if r.Date == date {
			dto.RecordsToday++
		}
	}
	dto.DaysAttended = len(days)

	// Newest first; marking order breaks ties.
	recent := slices.Clone(records)
	slices.Reverse(recent)
	slices.SortStableFunc(recent, func(a, b attendance.Record) int {
		return b.MarkedAt.Compare(a.MarkedAt)
	})
	for _, r := range recent[:min(len(recent), q.RecentLimit)] {
		dto.Recent = append(dto.Recent, NewRecordDTO(r, names[r.SessionID]))
	}

	return dto, nil
}
