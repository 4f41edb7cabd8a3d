// Package attendance contains the session and attendance record entities
// together with the ports the ledger depends on.
// This is a pure domain layer with zero external dependencies.
package attendance

import (
	"math/rand/v2"
	"strings"
	"time"

	"github.com/alem-hub/proximity-attendance/internal/domain/shared"
)

// Method records how a person's presence was established.
type Method string

const (
	MethodBluetooth Method = "bluetooth"
	MethodWiFi      Method = "wifi"
	MethodManual    Method = "manual"
)

// IsValid checks if the method is one of the known methods.
func (m Method) IsValid() bool {
	switch m {
	case MethodBluetooth, MethodWiFi, MethodManual:
		return true
	}
	return false
}

// String returns the string representation of Method.
func (m Method) String() string {
	return string(m)
}

// ParseMethod converts a raw value into a Method.
func ParseMethod(raw string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(raw)))
	if !m.IsValid() {
		return "", shared.ErrInvalidMethod
	}
	return m, nil
}

// Status of an attendance record. Only presence is recorded today.
type Status string

const StatusPresent Status = "present"

// ═══════════════════════════════════════════════════════════════════════════
// Session
// ═══════════════════════════════════════════════════════════════════════════

// Session is a live gathering people can check into. Its only state
// transition is Active -> Ended, which happens at most once.
type Session struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	BeaconFragment string     `json:"beacon_fragment,omitempty"`
	NetworkName    string     `json:"network_name,omitempty"`
	OwnerID        string     `json:"owner_id"`
	CreatedAt      time.Time  `json:"created_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Active         bool       `json:"active"`
	Date           string     `json:"date"`
}

// NewSessionParams carries the inputs for opening a session.
type NewSessionParams struct {
	Name           string `json:"name" validate:"required,max=120"`
	BeaconFragment string `json:"beacon_fragment" validate:"omitempty,max=64"`
	NetworkName    string `json:"network_name" validate:"omitempty,max=64"`
	OwnerID        string `json:"owner_id" validate:"required"`
}

// NewSession creates an active session. The caller supplies id, creation
// time and the precomputed day key.
func NewSession(id string, p NewSessionParams, createdAt time.Time, date string) (Session, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return Session{}, shared.ErrSessionNameRequired
	}
	if strings.TrimSpace(p.OwnerID) == "" {
		return Session{}, shared.ErrOwnerRequired
	}
	if id == "" {
		return Session{}, shared.NewDomainError("attendance", "CreateSession", shared.ErrInvalidID, "session id is required")
	}

	return Session{
		ID:             id,
		Name:           name,
		BeaconFragment: strings.TrimSpace(p.BeaconFragment),
		NetworkName:    strings.TrimSpace(p.NetworkName),
		OwnerID:        p.OwnerID,
		CreatedAt:      createdAt,
		Active:         true,
		Date:           date,
	}, nil
}

// End moves the session to the ended state. It reports false when the
// session had already ended, leaving it untouched.
func (s *Session) End(at time.Time) bool {
	if !s.Active {
		return false
	}
	s.Active = false
	s.EndedAt = &at
	return true
}

// Undetectable reports whether no proximity signal was configured,
// meaning nobody can check in automatically.
func (s Session) Undetectable() bool {
	return shared.NetworkName(s.NetworkName).IsEmpty() && shared.BeaconFragment(s.BeaconFragment).IsEmpty()
}

// Duration returns how long the session ran, or has been running as of now.
func (s Session) Duration(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.CreatedAt)
	}
	return now.Sub(s.CreatedAt)
}

// ═══════════════════════════════════════════════════════════════════════════
// Attendance Record
// ═══════════════════════════════════════════════════════════════════════════

// Record proves one person attended one session. At most one exists per
// (PersonID, SessionID) and it is never modified after creation.
type Record struct {
	ID         string    `json:"id"`
	PersonID   string    `json:"person_id"`
	PersonName string    `json:"person_name"`
	SessionID  string    `json:"session_id"`
	Method     Method    `json:"method"`
	Status     Status    `json:"status"`
	MarkedAt   time.Time `json:"marked_at"`
	// Date is fixed at creation so day aggregation survives clock or zone changes.
	Date string `json:"date"`
}

// NewRecord creates a present record.
func NewRecord(id, personID, personName, sessionID string, method Method, markedAt time.Time, date string) (Record, error) {
	if strings.TrimSpace(personID) == "" {
		return Record{}, shared.ErrPersonRequired
	}
	if !method.IsValid() {
		return Record{}, shared.ErrInvalidMethod
	}
	return Record{
		ID:         id,
		PersonID:   personID,
		PersonName: personName,
		SessionID:  sessionID,
		Method:     method,
		Status:     StatusPresent,
		MarkedAt:   markedAt,
		Date:       date,
	}, nil
}

// Key identifies the (person, session) pair a record belongs to.
func (r Record) Key() PairKey {
	return PairKey{PersonID: r.PersonID, SessionID: r.SessionID}
}

// PairKey is the dedup key for attendance.
type PairKey struct {
	PersonID  string
	SessionID string
}

// ═══════════════════════════════════════════════════════════════════════════
// People
// ═══════════════════════════════════════════════════════════════════════════

// Role of a person in the organisation.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStudent  Role = "student"
	RoleEmployee Role = "employee"
)

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleStudent || r == RoleEmployee
}

// Person is the acting user as supplied by the identity provider.
type Person struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the person may manage sessions.
func (p Person) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// ═══════════════════════════════════════════════════════════════════════════
// Beacon fragments
// ═══════════════════════════════════════════════════════════════════════════

// BeaconPrefix starts every generated beacon fragment.
const BeaconPrefix = "ATD_"

const beaconAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateBeaconFragment returns a fresh fragment such as "ATD_7K2QXA" for
// an administrator to advertise from their device.
func GenerateBeaconFragment() string {
	var b strings.Builder
	b.Grow(len(BeaconPrefix) + 6)
	b.WriteString(BeaconPrefix)
	for range 6 {
		b.WriteByte(beaconAlphabet[rand.IntN(len(beaconAlphabet))])
	}
	return b.String()
}
