package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/proximity-attendance/internal/domain/attendance"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SESSION ROSTER QUERY
// Everyone who could attend a session and whether they did. Administrators
// use it to spot who needs a manual mark.
// ══════════════════════════════════════════════════════════════════════════════

// GetSessionRosterQuery selects the session.
type GetSessionRosterQuery struct {
	SessionID string
}

// RosterEntryDTO is one person on the roster.
type RosterEntryDTO struct {
	PersonID string            `json:"person_id"`
	Name     string            `json:"name"`
	Role     attendance.Role   `json:"role,omitempty"`
	Marked   bool              `json:"marked"`
	Method   attendance.Method `json:"method,omitempty"`
	MarkedAt *time.Time        `json:"marked_at,omitempty"`
	// Unlisted is set for records whose person the directory does not know.
	Unlisted bool `json:"unlisted,omitempty"`
}

// SessionRosterDTO is the roster payload.
type SessionRosterDTO struct {
	Session SessionDTO       `json:"session"`
	Present int              `json:"present"`
	Absent  int              `json:"absent"`
	Entries []RosterEntryDTO `json:"entries"`
}

// GetSessionRosterHandler handles GetSessionRosterQuery.
type GetSessionRosterHandler struct {
	reader LedgerReader
	people attendance.IdentityProvider
}

// NewGetSessionRosterHandler creates the handler.
func NewGetSessionRosterHandler(reader LedgerReader, people attendance.IdentityProvider) *GetSessionRosterHandler {
	return &GetSessionRosterHandler{reader: reader, people: people}
}

// Handle lists every non-admin person in directory order, followed by
// anyone marked who is not in the directory.
func (h *GetSessionRosterHandler) Handle(ctx context.Context, q GetSessionRosterQuery) (*SessionRosterDTO, error) {
	session, err := h.reader.Session(q.SessionID)
	if err != nil {
		return nil, err
	}
	people, err := h.people.People(ctx)
	if err != nil {
		return nil, fmt.Errorf("roster: list people: %w", err)
	}

	byPerson := make(map[string]attendance.Record)
	records := h.reader.RecordsForSession(session.ID)
	for _, r := range records {
		byPerson[r.PersonID] = r
	}

	dto := &SessionRosterDTO{Session: NewSessionDTO(session), Entries: []RosterEntryDTO{}}
	listed := make(map[string]bool, len(people))
	for _, p := range people {
		if p.IsAdmin() {
			continue
		}
		listed[p.ID] = true
		entry := RosterEntryDTO{PersonID: p.ID, Name: p.Name, Role: p.Role}
		if r, ok := byPerson[p.ID]; ok {
			markedAt := r.MarkedAt
			entry.Marked, entry.Method, entry.MarkedAt = true, r.Method, &markedAt
			dto.Present++
		} else {
			dto.Absent++
		}
		dto.Entries = append(dto.Entries, entry)
	}

	for _, r := range records {
		if listed[r.PersonID] {
			continue
		}
		markedAt := r.MarkedAt
		dto.Entries = append(dto.Entries, RosterEntryDTO{
			PersonID: r.PersonID,
			Name:     r.PersonName,
			Marked:   true,
			Method:   r.Method,
			MarkedAt: &markedAt,
			Unlisted: true,
		})
		dto.Present++
	}

	return dto, nil
}
