package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/alem-hub/proximity-attendance/internal/application/detection"
	"github.com/alem-hub/proximity-attendance/internal/application/ledger"
	"github.com/alem-hub/proximity-attendance/internal/application/query"
	"github.com/alem-hub/proximity-attendance/internal/domain/attendance"
	"github.com/alem-hub/proximity-attendance/internal/domain/attendance/storefake"
	"github.com/alem-hub/proximity-attendance/internal/domain/proximity"
	"github.com/alem-hub/proximity-attendance/internal/infrastructure/identity"
	"github.com/alem-hub/proximity-attendance/internal/infrastructure/sensor"
	"github.com/alem-hub/proximity-attendance/internal/interface/http/handlers"
	"github.com/alem-hub/proximity-attendance/pkg/logger"
)

const testSecret = "0123456789abcdef-test"

type testFixture struct {
	server  *Server
	handler http.Handler
	store   *storefake.Store
	ledger  *ledger.Ledger
	health  *handlers.CompositeHealthChecker
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	dir := identity.NewDirectory(identity.WithBcryptCost(bcrypt.MinCost))
	_, err := dir.SeedDemo(t.Context())
	require.NoError(t, err)

	store := storefake.New()
	engine := detection.NewEngine(sensor.NewSnapshot(),
		detection.WithSoftDeadline(200*time.Millisecond),
		detection.WithHardCap(time.Second),
		detection.WithLogger(logger.Nop()),
	)
	l := ledger.New(store, engine, ledger.WithLogger(logger.Nop()))
	require.NoError(t, l.Rehydrate(t.Context()))

	health := handlers.NewCompositeHealthChecker("test")
	srv, err := NewServer(Config{MaxBodyBytes: 64 << 10}, Dependencies{
		Attendance:    l,
		Directory:     dir,
		Tokens:        NewTokenIssuer(testSecret, "attendance-test", time.Hour),
		Dashboard:     query.NewGetAdminDashboardHandler(l, nil),
		Summary:       query.NewGetPersonSummaryHandler(l, nil),
		Roster:        query.NewGetSessionRosterHandler(l, dir),
		HealthChecker: health,
		Logger:        logger.Nop(),
		Version:       "test",
	})
	require.NoError(t, err)

	return &testFixture{server: srv, handler: srv.Handler(), store: store, ledger: l, health: health}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *ResponseMeta   `json:"meta"`
}

func (f *testFixture) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func (f *testFixture) login(t *testing.T, email, password string) string {
	t.Helper()
	code, env := f.do(t, http.MethodPost, "/api/v1/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, code)
	return decodeData[loginResponse](t, env).Token
}

func (f *testFixture) createSession(t *testing.T, admin string, body map[string]any) query.SessionDTO {
	t.Helper()
	code, env := f.do(t, http.MethodPost, "/api/v1/sessions", admin, body)
	require.Equal(t, http.StatusCreated, code)
	return decodeData[sessionResponse](t, env).Session
}

func (f *testFixture) checkIn(t *testing.T, token string, obs sensor.Observation) checkInResponse {
	t.Helper()
	code, env := f.do(t, http.MethodPost, "/api/v1/checkin", token, obs)
	require.Equal(t, http.StatusOK, code)
	return decodeData[checkInResponse](t, env)
}

func rssi(v int) *int { return &v }

// ══════════════════════════════════════════════════════════════════════════════
// LOGIN & AUTH
// ══════════════════════════════════════════════════════════════════════════════

func TestLogin(t *testing.T) {
	f := setupTestFixture(t)

	code, env := f.do(t, http.MethodPost, "/api/v1/login", "", map[string]string{"email": "Alice@School.com", "password": "pass123"})
	require.Equal(t, http.StatusOK, code)
	resp := decodeData[loginResponse](t, env)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "std1", resp.Person.ID)

	code, env = f.do(t, http.MethodPost, "/api/v1/login", "", map[string]string{"email": "alice@school.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", env.Error.Code)

	code, env = f.do(t, http.MethodPost, "/api/v1/login", "", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", env.Error.Code)
	assert.Len(t, env.Error.Details, 2)

	code, env = f.do(t, http.MethodPost, "/api/v1/login", "", "{")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_body", env.Error.Code)
}

func TestAuthorization(t *testing.T) {
	f := setupTestFixture(t)
	alice := f.login(t, "alice@school.com", "pass123")

	code, _ := f.do(t, http.MethodGet, "/api/v1/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = f.do(t, http.MethodGet, "/api/v1/sessions", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env := f.do(t, http.MethodPost, "/api/v1/sessions", alice, map[string]any{"name": "Nope"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", env.Error.Code)

	code, _ = f.do(t, http.MethodGet, "/api/v1/dashboard", alice, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.do(t, http.MethodGet, "/api/v1/people/std2/summary", alice, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = f.do(t, http.MethodGet, "/api/v1/people/std1/summary", alice, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestTokenIssuer_Expiry(t *testing.T) {
	now := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	issuer := NewTokenIssuer(testSecret, "attendance-test", time.Hour, WithTokenClock(func() time.Time { return now }))

	token, expires, err := issuer.Issue(attendance.Person{ID: "std1", Name: "Alice Johnson", Role: attendance.RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expires)

	p, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "std1", p.ID)

	now = now.Add(2 * time.Hour)
	_, err = issuer.Verify(token)
	assert.Error(t, err)

	other := NewTokenIssuer("another-secret-of-length", "attendance-test", time.Hour)
	_, err = other.Verify(token)
	assert.Error(t, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

func TestSessionLifecycle(t *testing.T) {
	f := setupTestFixture(t)
	admin := f.login(t, "admin@school.com", "admin123")

	lecture := f.createSession(t, admin, map[string]any{"name": "Lecture", "network_name": "CampusNet"})
	assert.True(t, lecture.Active)
	assert.Equal(t, "admin1", lecture.OwnerID)
	assert.True(t, lecture.Detectable)

	code, env := f.do(t, http.MethodPost, "/api/v1/sessions", admin, map[string]any{"name": "Quiet room"})
	require.Equal(t, http.StatusCreated, code)
	assert.NotEmpty(t, decodeData[sessionResponse](t, env).Warning)

	generated := f.createSession(t, admin, map[string]any{"name": "Lab", "generate_beacon": true})
	assert.Regexp(t, `^ATD_[A-Z0-9]{6}$`, generated.BeaconFragment)

	code, env = f.do(t, http.MethodPost, "/api/v1/sessions/"+lecture.ID+"/end", admin, nil)
	require.Equal(t, http.StatusOK, code)
	ended := decodeData[sessionResponse](t, env)
	require.NotNil(t, ended.Ended)
	assert.True(t, *ended.Ended)
	assert.False(t, ended.Session.Active)

	code, env = f.do(t, http.MethodPost, "/api/v1/sessions/"+lecture.ID+"/end", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, *decodeData[sessionResponse](t, env).Ended)

	code, env = f.do(t, http.MethodPost, "/api/v1/sessions/missing/end", admin, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Error.Code)

	code, env = f.do(t, http.MethodGet, "/api/v1/sessions?active=true", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeData[[]query.SessionDTO](t, env), 2)
	assert.Equal(t, 2, env.Meta.TotalCount)

	code, env = f.do(t, http.MethodGet, "/api/v1/sessions", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeData[[]query.SessionDTO](t, env), 3)
}

func TestCreateSession_StoreFailure(t *testing.T) {
	f := setupTestFixture(t)
	admin := f.login(t, "admin@school.com", "admin123")
	f.store.FailPuts(errors.New("disk full"))

	code, env := f.do(t, http.MethodPost, "/api/v1/sessions", admin, map[string]any{"name": "Lecture", "network_name": "CampusNet"})
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "storage_error", env.Error.Code)
	assert.Empty(t, f.ledger.Sessions())
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECK-IN
// ══════════════════════════════════════════════════════════════════════════════

func TestCheckIn_WiFiThenAlreadyCheckedIn(t *testing.T) {
	f := setupTestFixture(t)
	admin := f.login(t, "admin@school.com", "admin123")
	alice := f.login(t, "alice@school.com", "pass123")
	session := f.createSession(t, admin, map[string]any{"name": "Lecture", "network_name": "CampusNet"})

	obs := sensor.Observation{PermissionsGranted: true, NetworkName: " campusnet "}
	resp := f.checkIn(t, alice, obs)
	assert.True(t, resp.Detected)
	assert.False(t, resp.Retry)
	assert.Equal(t, "wifi", string(resp.Method))
	require.NotNil(t, resp.Record)
	assert.Equal(t, "std1", resp.Record.PersonID)
	assert.Equal(t, session.ID, resp.Session.ID)

	resp = f.checkIn(t, alice, obs)
	assert.False(t, resp.Detected)
	assert.False(t, resp.Retry)
	assert.Equal(t, ReasonAlreadyCheckedIn, resp.Reason)
	assert.Equal(t, 0, resp.Attempts)
	assert.Equal(t, 1, resp.Skipped)
	assert.Len(t, f.ledger.RecordsForSession(session.ID), 1)
}

func TestCheckIn_BeaconReplay(t *testing.T) {
	f := setupTestFixture(t)
	admin := f.login(t, "admin@school.com", "admin123")
	bob := f.login(t, "bob@school.com", "pass123")
	f.createSession(t, admin, map[string]any{"name": "Lab", "beacon_fragment": "ATD_LAB001"})

	resp := f.checkIn(t, bob, sensor.Observation{
		PermissionsGranted: true,
		BluetoothOn:        true,
		Advertisements: []proximity.Advertisement{
			{Name: "Room ATD_LAB001", RSSI: rssi(-90)},
			{LocalName: "ATD_LAB001-admin", RSSI: rssi(-60)},
		},
	})
	assert.True(t, resp.Detected)
	assert.Equal(t, "bluetooth", string(resp.Method))
}

func TestCheckIn_NotDetectedReasons(t *testing.T) {
	f := setupTestFixture(t)
	admin := f.login(t, "admin@school.com", "admin123")
	carol := f.login(t, "carol@school.com", "pass123")

	resp := f.checkIn(t, carol, sensor.Observation{PermissionsGranted: true})
	assert.Equal(t, ReasonNoActiveSessions, resp.Reason)
	assert.True(t, resp.Retry)

	f.createSession(t, admin, map[string]any{"name": "Lecture", "network_name": "CampusNet"})

	resp = f.checkIn(t, carol, sensor.Observation{})
	assert.False(t, resp.Detected)
	assert.True(t, resp.Retry)
	assert.Equal(t, ReasonPermissionDenied, resp.Reason)
	require.Len(t, resp.Failures, 1)

	resp = f.checkIn(t, carol, sensor.Observation{PermissionsGranted: true, NetworkName: "Cafe"})
	assert.Equal(t, ReasonNotDetected, resp.Reason)
	assert.Equal(t, 1, resp.Attempts)
	assert.Empty(t, resp.Failures)

	f.createSession(t, admin, map[string]any{"name": "Lab", "beacon_fragment": "ATD_LAB001"})
	resp = f.checkIn(t, carol, sensor.Observation{PermissionsGranted: true, NetworkName: "Cafe"})
	assert.Equal(t, ReasonBluetoothUnavailable, resp.Reason)
	assert.Equal(t, 2, resp.Attempts)

	assert.Empty(t, f.ledger.RecordsForPerson("std3"))
}

func TestCheckIn_RejectsOversizedObservation(t *testing.T) {
	f := setupTestFixture(t)
	carol := f.login(t, "carol@school.com", "pass123")

	ads := make([]proximity.Advertisement, sensor.MaxAdvertisements+1)
	code, env := f.do(t, http.MethodPost, "/api/v1/checkin", carol, sensor.Observation{PermissionsGranted: true, Advertisements: ads})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation_error", env.Error.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// MANUAL MARKING & READ MODELS
// ══════════════════════════════════════════════════════════════════════════════

func TestManualMark(t *testing.T) {
	f := setupTestFixture(t)
	admin := f.login(t, "admin@school.com", "admin123")
	session := f.createSession(t, admin, map[string]any{"name": "Lecture", "network_name": "CampusNet"})
	path := "/api/v1/sessions/" + session.ID + "/manual"

	code, env := f.do(t, http.MethodPost, path, admin, map[string]string{"person_id": "std2"})
	require.Equal(t, http.StatusCreated, code)
	first := decodeData[markResponse](t, env)
	assert.False(t, first.AlreadyMarked)
	assert.Equal(t, "manual", string(first.Record.Method))
	assert.Equal(t, "Bob Smith", first.Record.PersonName)
	assert.Equal(t, "Lecture", first.Record.SessionName)

	code, env = f.do(t, http.MethodPost, path, admin, map[string]string{"person_id": "std2"})
	require.Equal(t, http.StatusOK, code)
	again := decodeData[markResponse](t, env)
	assert.True(t, again.AlreadyMarked)
	assert.Equal(t, first.Record.ID, again.Record.ID)

	code, _ = f.do(t, http.MethodPost, path, admin, map[string]string{"person_id": "ghost"})
	assert.Equal(t, http.StatusNotFound, code)

	code, env = f.do(t, http.MethodPost, path, admin, map[string]string{"person_id": "guest-1", "person_name": "Visiting Guest"})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Visiting Guest", decodeData[markResponse](t, env).Record.PersonName)

	code, _ = f.do(t, http.MethodPost, "/api/v1/sessions/missing/manual", admin, map[string]string{"person_id": "std2"})
	assert.Equal(t, http.StatusNotFound, code)

	assert.Len(t, f.ledger.RecordsForSession(session.ID), 2)
}

func TestReadModels(t *testing.T) {
	f := setupTestFixture(t)
	admin := f.login(t, "admin@school.com", "admin123")
	alice := f.login(t, "alice@school.com", "pass123")
	session := f.createSession(t, admin, map[string]any{"name": "Lecture", "network_name": "CampusNet"})
	f.checkIn(t, alice, sensor.Observation{PermissionsGranted: true, NetworkName: "CampusNet"})

	code, env := f.do(t, http.MethodGet, "/api/v1/sessions/"+session.ID+"/records", admin, nil)
	require.Equal(t, http.StatusOK, code)
	records := decodeData[[]query.RecordDTO](t, env)
	require.Len(t, records, 1)
	assert.Equal(t, "std1", records[0].PersonID)

	code, env = f.do(t, http.MethodGet, "/api/v1/sessions/"+session.ID+"/roster", admin, nil)
	require.Equal(t, http.StatusOK, code)
	roster := decodeData[query.SessionRosterDTO](t, env)
	assert.Equal(t, 1, roster.Present)
	assert.Equal(t, 3, roster.Absent)

	code, env = f.do(t, http.MethodGet, "/api/v1/people/std1/records", alice, nil)
	require.Equal(t, http.StatusOK, code)
	mine := decodeData[[]query.RecordDTO](t, env)
	require.Len(t, mine, 1)
	assert.Equal(t, "Lecture", mine[0].SessionName)

	code, env = f.do(t, http.MethodGet, "/api/v1/people/std1/records?page=2&page_size=1", alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decodeData[[]query.RecordDTO](t, env))
	assert.Equal(t, 1, env.Meta.TotalCount)
	assert.Equal(t, 2, env.Meta.Page)

	code, env = f.do(t, http.MethodGet, "/api/v1/people/std1/summary", admin, nil)
	require.Equal(t, http.StatusOK, code)
	summary := decodeData[query.PersonSummaryDTO](t, env)
	assert.Equal(t, 1, summary.DaysAttended)
	assert.Equal(t, 1, summary.RecordsToday)

	code, env = f.do(t, http.MethodGet, "/api/v1/dashboard", admin, nil)
	require.Equal(t, http.StatusOK, code)
	dash := decodeData[query.AdminDashboardDTO](t, env)
	assert.Equal(t, 1, dash.SessionsToday)
	assert.Equal(t, 1, dash.RecordsToday)
	require.Len(t, dash.ActiveSessions, 1)
	assert.Equal(t, 1, dash.ActiveSessions[0].RecordCount)
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH, MIDDLEWARE & HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func TestHealthAndReadiness(t *testing.T) {
	f := setupTestFixture(t)
	var breakerOpen bool
	f.health.AddCheck("storage", func(context.Context) error { return nil })
	f.health.AddReadinessCheck("storage_breaker", func(context.Context) error {
		if breakerOpen {
			return errors.New("circuit breaker is open")
		}
		return nil
	})

	code, _ := f.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, code)

	breakerOpen = true
	code, _ = f.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, env := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	status := decodeData[handlers.HealthStatus](t, env)
	assert.True(t, status.Healthy)
	assert.False(t, status.Ready)

	code, _ = f.do(t, http.MethodGet, "/live", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestRequestIDAndSecurityHeaders(t *testing.T) {
	f := setupTestFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var env JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "req-42", env.RequestID)
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	start := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)

	assert.True(t, rl.Allow("a", start))
	assert.True(t, rl.Allow("a", start.Add(time.Second)))
	assert.False(t, rl.Allow("a", start.Add(2*time.Second)))
	assert.True(t, rl.Allow("b", start.Add(2*time.Second)))

	assert.True(t, rl.Allow("a", start.Add(61*time.Second)))
	assert.Len(t, rl.requests, 2)

	// A full window later the idle key is swept.
	assert.True(t, rl.Allow("a", start.Add(125*time.Second)))
	assert.NotContains(t, rl.requests, "b")
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(DefaultConfig(), Dependencies{})
	assert.Error(t, err)
}

func TestServer_ShutdownBeforeStart(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.server.Shutdown(t.Context()))
	assert.NoError(t, f.server.Start())
	assert.False(t, f.server.IsRunning())
}
