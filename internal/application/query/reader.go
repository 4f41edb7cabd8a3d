// Package query contains read operations (CQRS - Queries) over the
// attendance ledger: dashboards, per-person summaries and rosters.
package query

import (
	"time"

	"github.com/alem-hub/proximity-attendance/internal/domain/attendance"
)

// LedgerReader is the read side of the ledger the queries need.
// *ledger.Ledger implements it.
type LedgerReader interface {
	Sessions() []attendance.Session
	Records() []attendance.Record
	Session(id string) (attendance.Session, error)
	RecordsForSession(sessionID string) []attendance.Record
	RecordsForPerson(personID string) []attendance.Record
	Location() *time.Location
}

// SessionDTO is the wire shape of a session.
type SessionDTO struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	BeaconFragment string     `json:"beacon_fragment,omitempty"`
	NetworkName    string     `json:"network_name,omitempty"`
	OwnerID        string     `json:"owner_id"`
	Active         bool       `json:"active"`
	Date           string     `json:"date"`
	CreatedAt      time.Time  `json:"created_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Detectable     bool       `json:"detectable"`
}

// NewSessionDTO converts a session.
func NewSessionDTO(s attendance.Session) SessionDTO {
	return SessionDTO{
		ID:             s.ID,
		Name:           s.Name,
		BeaconFragment: s.BeaconFragment,
		NetworkName:    s.NetworkName,
		OwnerID:        s.OwnerID,
		Active:         s.Active,
		Date:           s.Date,
		CreatedAt:      s.CreatedAt,
		EndedAt:        s.EndedAt,
		Detectable:     !s.Undetectable(),
	}
}

// RecordDTO is the wire shape of an attendance record.
type RecordDTO struct {
	ID          string            `json:"id"`
	PersonID    string            `json:"person_id"`
	PersonName  string            `json:"person_name"`
	SessionID   string            `json:"session_id"`
	SessionName string            `json:"session_name,omitempty"`
	Method      attendance.Method `json:"method"`
	Status      attendance.Status `json:"status"`
	MarkedAt    time.Time         `json:"marked_at"`
	Date        string            `json:"date"`
}

// NewRecordDTO converts a record. sessionName may be empty.
func NewRecordDTO(r attendance.Record, sessionName string) RecordDTO {
	return RecordDTO{
		ID:          r.ID,
		PersonID:    r.PersonID,
		PersonName:  r.PersonName,
		SessionID:   r.SessionID,
		SessionName: sessionName,
		Method:      r.Method,
		Status:      r.Status,
		MarkedAt:    r.MarkedAt,
		Date:        r.Date,
	}
}

func sessionNames(sessions []attendance.Session) map[string]string {
	names := make(map[string]string, len(sessions))
	for _, s := range sessions {
		names[s.ID] = s.Name
	}
	return names
}

func nowOr(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
