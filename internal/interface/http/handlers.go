package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alem-hub/proximity-attendance/internal/application/ledger"
	"github.com/alem-hub/proximity-attendance/internal/application/query"
	"github.com/alem-hub/proximity-attendance/internal/domain/attendance"
	"github.com/alem-hub/proximity-attendance/internal/domain/shared"
	"github.com/alem-hub/proximity-attendance/internal/infrastructure/sensor"
	"github.com/alem-hub/proximity-attendance/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"name":    "Proximity Attendance API",
		"version": s.deps.Version,
		"endpoints": map[string]string{
			"health":    "/health",
			"login":     "/api/v1/login",
			"sessions":  "/api/v1/sessions",
			"checkin":   "/api/v1/checkin",
			"dashboard": "/api/v1/dashboard",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": status.Message,
		})
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// LOGIN
// ══════════════════════════════════════════════════════════════════════════════

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

type loginResponse struct {
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
	Person    attendance.Person `json:"person"`
}

// handleLogin handles POST /api/v1/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}

	person, err := s.deps.Directory.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	token, expires, err := s.deps.Tokens.Issue(person)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expires.UTC(),
		Person:    person,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListSessions handles GET /api/v1/sessions?active=true
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.deps.Attendance.Sessions()
	if getQueryParamBool(r, "active") {
		sessions = s.deps.Attendance.ActiveSessions()
	}

	out := make([]query.SessionDTO, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, query.NewSessionDTO(sess))
	}
	writeJSONWithMeta(w, r, http.StatusOK, out, &ResponseMeta{TotalCount: len(out)})
}

type createSessionRequest struct {
	Name           string `json:"name" validate:"required,max=120"`
	BeaconFragment string `json:"beacon_fragment" validate:"omitempty,max=64"`
	NetworkName    string `json:"network_name" validate:"omitempty,max=64"`
	// GenerateBeacon assigns a fresh fragment when none is given.
	GenerateBeacon bool `json:"generate_beacon"`
}

type sessionResponse struct {
	Session query.SessionDTO `json:"session"`
	Warning string           `json:"warning,omitempty"`
	Ended   *bool            `json:"ended,omitempty"`
}

// handleCreateSession handles POST /api/v1/sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, _ := callerFrom(r.Context())

	fragment := strings.TrimSpace(req.BeaconFragment)
	if fragment == "" && req.GenerateBeacon {
		fragment = attendance.GenerateBeaconFragment()
	}

	session, err := s.deps.Attendance.CreateSession(r.Context(), attendance.NewSessionParams{
		Name:           req.Name,
		BeaconFragment: fragment,
		NetworkName:    req.NetworkName,
		OwnerID:        caller.ID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := sessionResponse{Session: query.NewSessionDTO(session)}
	if session.Undetectable() {
		resp.Warning = "session has neither a network name nor a beacon fragment; only manual marking will work"
	}
	writeJSON(w, r, http.StatusCreated, resp)
}

// handleEndSession handles POST /api/v1/sessions/{id}/end. Ending an
// already ended session succeeds with ended=false.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.deps.Attendance.Session(id); err != nil {
		s.writeError(w, r, err)
		return
	}

	ended, err := s.deps.Attendance.EndSession(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.deps.Attendance.Session(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sessionResponse{Session: query.NewSessionDTO(session), Ended: &ended})
}

// handleSessionRecords handles GET /api/v1/sessions/{id}/records?page=1&page_size=20
func (s *Server) handleSessionRecords(w http.ResponseWriter, r *http.Request) {
	session, err := s.deps.Attendance.Session(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	records := s.deps.Attendance.RecordsForSession(session.ID)
	page := getPagination(r)
	out := make([]query.RecordDTO, 0, page.Limit())
	for _, rec := range shared.Paginate(records, page) {
		out = append(out, query.NewRecordDTO(rec, session.Name))
	}
	writeJSONWithMeta(w, r, http.StatusOK, out, &ResponseMeta{
		TotalCount: len(records),
		Page:       page.Page,
		PageSize:   page.PageSize,
	})
}

// handleSessionRoster handles GET /api/v1/sessions/{id}/roster
func (s *Server) handleSessionRoster(w http.ResponseWriter, r *http.Request) {
	if s.deps.Roster == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "roster is not configured")
		return
	}
	roster, err := s.deps.Roster.Handle(r.Context(), query.GetSessionRosterQuery{SessionID: r.PathValue("id")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, roster)
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type manualMarkRequest struct {
	PersonID string `json:"person_id" validate:"required,max=64"`
	// PersonName is used when the directory does not know the person.
	PersonName string `json:"person_name" validate:"omitempty,max=120"`
}

type markResponse struct {
	Record        query.RecordDTO `json:"record"`
	AlreadyMarked bool            `json:"already_marked"`
	Message       string          `json:"message,omitempty"`
}

// handleManualMark handles POST /api/v1/sessions/{id}/manual. A person
// already marked gets 200 with already_marked and the original record.
func (s *Server) handleManualMark(w http.ResponseWriter, r *http.Request) {
	var req manualMarkRequest
	if !s.decode(w, r, &req) {
		return
	}
	session, err := s.deps.Attendance.Session(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	name := strings.TrimSpace(req.PersonName)
	person, err := s.deps.Directory.Lookup(r.Context(), req.PersonID)
	switch {
	case err == nil:
		name = person.Name
	case shared.IsNotFound(err) && name != "":
		// Walk-in the directory does not know.
	default:
		s.writeError(w, r, err)
		return
	}

	outcome, err := s.deps.Attendance.ManualMark(r.Context(), req.PersonID, name, session.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeMark(w, r, outcome, session.Name)
}

func writeMark(w http.ResponseWriter, r *http.Request, outcome ledger.MarkOutcome, sessionName string) {
	resp := markResponse{
		Record:        query.NewRecordDTO(outcome.Record, sessionName),
		AlreadyMarked: outcome.AlreadyMarked,
	}
	status := http.StatusCreated
	if outcome.AlreadyMarked {
		status = http.StatusOK
		resp.Message = "already checked in"
	}
	writeJSON(w, r, status, resp)
}

// Check-in reasons reported when nothing was detected.
const (
	ReasonNoActiveSessions     = "no_active_sessions"
	ReasonAlreadyCheckedIn     = "already_checked_in"
	ReasonPermissionDenied     = "permission_denied"
	ReasonBluetoothUnavailable = "bluetooth_unavailable"
	ReasonNotDetected          = "not_detected"
)

type checkInFailure struct {
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

type checkInResponse struct {
	Detected      bool              `json:"detected"`
	Retry         bool              `json:"retry"`
	AlreadyMarked bool              `json:"already_marked"`
	Reason        string            `json:"reason,omitempty"`
	Message       string            `json:"message,omitempty"`
	Method        attendance.Method `json:"method,omitempty"`
	Session       *query.SessionDTO `json:"session,omitempty"`
	Record        *query.RecordDTO  `json:"record,omitempty"`
	Attempts      int               `json:"attempts"`
	Skipped       int               `json:"skipped"`
	Failures      []checkInFailure  `json:"failures,omitempty"`
}

// handleCheckIn handles POST /api/v1/checkin. The body is what the
// caller's device observed; detection runs against it for every active
// session. Not detecting anything is a 200 the client can retry.
func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var obs sensor.Observation
	if !s.decode(w, r, &obs) {
		return
	}
	caller, _ := callerFrom(r.Context())

	ctx := sensor.WithObservation(r.Context(), obs)
	result, err := s.deps.Attendance.CheckIn(ctx, caller)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := newCheckInResponse(result)
	if result.Detected {
		logger.FromContext(r.Context()).Info("check-in detected",
			logger.SessionID(result.Session.ID),
			logger.Method(string(result.Method)),
			logger.Bool("already_marked", result.AlreadyMarked),
		)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func newCheckInResponse(result ledger.CheckInResult) checkInResponse {
	resp := checkInResponse{
		Detected:      result.Detected,
		AlreadyMarked: result.AlreadyMarked,
		Attempts:      result.Attempts,
		Skipped:       result.Skipped,
	}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, checkInFailure{SessionID: f.SessionID, Error: f.Err.Error()})
	}

	if result.Detected {
		session := query.NewSessionDTO(result.Session)
		record := query.NewRecordDTO(result.Record, result.Session.Name)
		resp.Method = result.Method
		resp.Session = &session
		resp.Record = &record
		resp.Message = "checked in to " + result.Session.Name
		if result.AlreadyMarked {
			resp.Message = "already checked in to " + result.Session.Name
		}
		return resp
	}

	resp.Retry = true
	switch {
	case result.NoActiveSessions:
		resp.Reason = ReasonNoActiveSessions
		resp.Message = "no active sessions right now"
	case result.Attempts == 0 && result.Skipped > 0:
		resp.Retry = false
		resp.Reason = ReasonAlreadyCheckedIn
		resp.Message = "already checked in to every active session"
	case anyFailure(result.Failures, shared.ErrPermissionDenied):
		resp.Reason = ReasonPermissionDenied
		resp.Message = "location and bluetooth permissions are required to check in"
	case anyFailure(result.Failures, shared.ErrBluetoothUnavailable):
		resp.Reason = ReasonBluetoothUnavailable
		resp.Message = "turn bluetooth on and try again"
	default:
		resp.Reason = ReasonNotDetected
		resp.Message = "no session detected nearby, try again"
	}
	return resp
}

func anyFailure(failures []ledger.SessionFailure, target error) bool {
	for _, f := range failures {
		if errors.Is(f.Err, target) {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// PEOPLE & DASHBOARD HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handlePersonRecords handles GET /api/v1/people/{id}/records?page=1&page_size=20
func (s *Server) handlePersonRecords(w http.ResponseWriter, r *http.Request) {
	id, ok := s.personAccess(w, r)
	if !ok {
		return
	}

	names := make(map[string]string)
	for _, sess := range s.deps.Attendance.Sessions() {
		names[sess.ID] = sess.Name
	}
	records := s.deps.Attendance.RecordsForPerson(id)
	page := getPagination(r)
	out := make([]query.RecordDTO, 0, page.Limit())
	for _, rec := range shared.Paginate(records, page) {
		out = append(out, query.NewRecordDTO(rec, names[rec.SessionID]))
	}
	writeJSONWithMeta(w, r, http.StatusOK, out, &ResponseMeta{
		TotalCount: len(records),
		Page:       page.Page,
		PageSize:   page.PageSize,
	})
}

// handlePersonSummary handles GET /api/v1/people/{id}/summary?limit=5
func (s *Server) handlePersonSummary(w http.ResponseWriter, r *http.Request) {
	if s.deps.Summary == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "summary is not configured")
		return
	}
	id, ok := s.personAccess(w, r)
	if !ok {
		return
	}

	summary, err := s.deps.Summary.Handle(r.Context(), query.GetPersonSummaryQuery{
		PersonID:    id,
		RecentLimit: getQueryParamInt(r, "limit", query.DefaultRecentLimit),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, summary)
}

// personAccess lets people read their own data and administrators read
// anyone's.
func (s *Server) personAccess(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	caller, _ := callerFrom(r.Context())
	if caller.ID != id && !caller.IsAdmin() {
		writeJSONError(w, r, http.StatusForbidden, "forbidden", "cannot read another person's attendance")
		return "", false
	}
	return id, true
}

// handleDashboard handles GET /api/v1/dashboard
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dashboard == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "dashboard is not configured")
		return
	}
	dashboard, err := s.deps.Dashboard.Handle(r.Context(), query.GetAdminDashboardQuery{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dashboard)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST DECODING & ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// decode reads a JSON body into dst and validates it. On failure it writes
// the response and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
		case errors.Is(err, io.EOF):
			writeJSONError(w, r, http.StatusBadRequest, "invalid_body", "request body is required")
		default:
			writeJSONError(w, r, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		}
		return false
	}

	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				details = append(details, fmt.Sprintf("%s: failed %q", fe.Field(), fe.Tag()))
			}
			writeJSONError(w, r, http.StatusBadRequest, "validation_error", "request is invalid", details...)
			return false
		}
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return false
	}
	return true
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "internal_error"
	switch {
	case shared.IsNotFound(err):
		status, code = http.StatusNotFound, "not_found"
	case shared.IsValidation(err):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, shared.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, shared.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case shared.IsAlreadyExists(err):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, shared.ErrServiceUnavailable):
		status, code = http.StatusServiceUnavailable, "service_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		// Client went away; the status is for the log line.
		status, code = 499, "client_closed_request"
	case shared.IsFatal(err):
		status, code = http.StatusInternalServerError, "storage_error"
	}

	message := http.StatusText(status)
	var de *shared.DomainError
	if errors.As(err, &de) && status < http.StatusInternalServerError {
		message = de.Message
	}

	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", logger.Int("status", status), logger.Err(err))
		if status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "10")
		}
	} else {
		log.Debug("request rejected", logger.Int("status", status), logger.Err(err))
	}
	writeJSONError(w, r, status, code, message)
}
