// Package ledger owns attendance sessions and records. It is the only writer
// of both collections and the single idempotency gate for attendance.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alem-hub/proximity-attendance/internal/domain/attendance"
	"github.com/alem-hub/proximity-attendance/internal/domain/proximity"
	"github.com/alem-hub/proximity-attendance/internal/domain/shared"
	"github.com/alem-hub/proximity-attendance/pkg/logger"
	"github.com/alem-hub/proximity-attendance/pkg/retry"
	"github.com/alem-hub/proximity-attendance/pkg/timeutil"
)

const tracerName = "github.com/alem-hub/proximity-attendance/ledger"

// DefaultWriteTimeout bounds one durable write.
const DefaultWriteTimeout = 10 * time.Second

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// Ledger holds sessions in creation order and records in marking order.
//
// Every mutation builds the next collection, writes it to the durable
// store, and only then swaps it into memory, so a failed write leaves
// memory exactly as it was. Mutations are serialized by mu; reads take
// the read lock and return copies.
type Ledger struct {
	store    attendance.DurableStore
	detector proximity.Detector

	mu       sync.RWMutex
	sessions []attendance.Session
	records  []attendance.Record
	marked   map[attendance.PairKey]int // index into records
	current  map[string]string          // owner id -> session id

	now          func() time.Time
	newID        func() string
	loc          *time.Location
	loadAttempts int
	writeTimeout time.Duration
	log          *logger.Logger
	events       shared.EventPublisher
	tracer       trace.Tracer
	validate     *validator.Validate
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithNowTime overrides the clock.
func WithNowTime(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIDGenerator overrides how session and record ids are made.
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) {
		if fn != nil {
			l.newID = fn
		}
	}
}

// WithLocation sets the timezone day keys are computed in.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithLoadAttempts sets how many times Rehydrate tries each read.
func WithLoadAttempts(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.loadAttempts = n
		}
	}
}

// WithWriteTimeout bounds each durable write. Writes are detached from the
// caller's cancellation, so this is the only limit on how long one may run.
func WithWriteTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.writeTimeout = d
		}
	}
}

// WithLogger sets the ledger logger.
func WithLogger(log *logger.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

// WithEventPublisher publishes domain events after each committed change.
func WithEventPublisher(p shared.EventPublisher) Option {
	return func(l *Ledger) {
		l.events = p
	}
}

// WithTracerProvider sets where ledger spans go.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(l *Ledger) {
		if tp != nil {
			l.tracer = tp.Tracer(tracerName)
		}
	}
}

// New creates an empty ledger. Call Rehydrate before serving requests.
func New(store attendance.DurableStore, detector proximity.Detector, opts ...Option) *Ledger {
	l := &Ledger{
		store:        store,
		detector:     detector,
		marked:       make(map[attendance.PairKey]int),
		current:      make(map[string]string),
		now:          time.Now,
		newID:        uuid.NewString,
		loc:          time.UTC,
		loadAttempts: 3,
		writeTimeout: DefaultWriteTimeout,
		log:          logger.Nop(),
		tracer:       otel.Tracer(tracerName),
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With(logger.Component("ledger"))
	return l
}

// Location returns the timezone day keys are computed in.
func (l *Ledger) Location() *time.Location {
	return l.loc
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Rehydrate replaces in-memory state with what the durable store holds.
// A missing key is an empty collection. Records pointing at unknown
// sessions and duplicate (person, session) records are dropped.
func (l *Ledger) Rehydrate(ctx context.Context) error {
	sessions, err := loadCollection[attendance.Session](ctx, l, attendance.KeySessions)
	if err != nil {
		return err
	}
	stored, err := loadCollection[attendance.Record](ctx, l, attendance.KeyRecords)
	if err != nil {
		return err
	}

	known := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		known[s.ID] = true
	}

	records := make([]attendance.Record, 0, len(stored))
	marked := make(map[attendance.PairKey]int, len(stored))
	for _, r := range stored {
		if !known[r.SessionID] {
			l.log.Warn("dropping record for unknown session", logger.SessionID(r.SessionID), logger.String("record_id", r.ID))
			continue
		}
		if _, dup := marked[r.Key()]; dup {
			l.log.Warn("dropping duplicate record", logger.PersonID(r.PersonID), logger.SessionID(r.SessionID))
			continue
		}
		marked[r.Key()] = len(records)
		records = append(records, r)
	}

	// The most recent active session of each owner becomes current again.
	current := make(map[string]string)
	for _, s := range sessions {
		if s.Active {
			current[s.OwnerID] = s.ID
		}
	}

	l.mu.Lock()
	l.sessions = sessions
	l.records = records
	l.marked = marked
	l.current = current
	l.mu.Unlock()

	l.log.Info("ledger rehydrated", logger.Int("sessions", len(sessions)), logger.Int("records", len(records)))
	return nil
}

func loadCollection[T any](ctx context.Context, l *Ledger, key string) ([]T, error) {
	var out []T
	err := retry.Do(ctx, func(ctx context.Context) error {
		blob, ok, err := l.store.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok || len(blob) == 0 {
			out = nil
			return nil
		}
		if err := json.Unmarshal(blob, &out); err != nil {
			return retry.Permanent(err)
		}
		return nil
	},
		retry.WithMaxAttempts(l.loadAttempts),
		retry.WithInitialDelay(20*time.Millisecond),
		retry.WithRetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			l.log.Warn("retrying ledger load", logger.String("key", key), logger.Int("attempt", attempt), logger.Err(err), logger.Duration("delay", delay))
		}),
	)
	if err != nil {
		return nil, shared.WrapError("attendance", "Rehydrate", shared.ErrRehydrateFailure, "load "+key, err)
	}
	return out, nil
}

// persist writes a whole collection. Callers hold mu.
// persist writes items under key. A caller that gives up must not abort a
// write the backend may already have committed, or memory and storage would
// disagree; the write runs detached and bounded by the write timeout.
func persist[T any](ctx context.Context, l *Ledger, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	blob, err := json.Marshal(items)
	if err != nil {
		return shared.WrapError("attendance", "Persist", shared.ErrDurableWriteFailure, "encode "+key, err)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.writeTimeout)
	defer cancel()
	if err := l.store.Put(ctx, key, blob); err != nil {
		return shared.WrapError("attendance", "Persist", shared.ErrDurableWriteFailure, "write "+key, err)
	}
	return nil
}

func (l *Ledger) publish(ev shared.Event) {
	if l.events == nil {
		return
	}
	if err := l.events.Publish(ev); err != nil {
		l.log.Warn("publish event failed", logger.String("event", string(ev.EventType())), logger.Err(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

// CreateSession opens a new active session owned by p.OwnerID. Sessions
// without any proximity signal are accepted but logged, since nobody can
// check into them automatically. Other active sessions stay active.
func (l *Ledger) CreateSession(ctx context.Context, p attendance.NewSessionParams) (attendance.Session, error) {
	now := l.now()
	session, err := attendance.NewSession(l.newID(), p, now, timeutil.DateKey(now, l.loc))
	if err != nil {
		return attendance.Session{}, err
	}
	if err := l.validate.Struct(p); err != nil {
		return attendance.Session{}, shared.WrapError("attendance", "CreateSession", shared.ErrValidation, "invalid session parameters", err)
	}

	l.mu.Lock()
	next := append(slices.Clip(l.sessions), session)
	if err := persist(ctx, l, attendance.KeySessions, next); err != nil {
		l.mu.Unlock()
		l.log.Error("create session not persisted", logger.SessionID(session.ID), logger.Err(err))
		return attendance.Session{}, err
	}
	l.sessions = next
	l.current[session.OwnerID] = session.ID
	active := countActive(next)
	l.mu.Unlock()

	log := l.log.With(logger.SessionID(session.ID), logger.String("owner_id", session.OwnerID))
	if session.Undetectable() {
		log.Warn("session has neither network name nor beacon fragment; only manual marking will work")
	}
	log.Info("session created", logger.String("name", session.Name), logger.Int("active_sessions", active))

	l.publish(shared.NewSessionCreatedEvent(session.ID, session.Name, session.OwnerID, !session.Undetectable(), active, now))
	return session, nil
}

// EndSession moves a session to Ended. Unknown or already ended sessions
// are a silent no-op: ended reports whether this call did the transition.
func (l *Ledger) EndSession(ctx context.Context, sessionID string) (ended bool, err error) {
	l.mu.Lock()
	idx := l.sessionIndex(sessionID)
	if idx < 0 || !l.sessions[idx].Active {
		l.mu.Unlock()
		return false, nil
	}

	now := l.now()
	next := slices.Clone(l.sessions)
	next[idx].End(now)
	if err := persist(ctx, l, attendance.KeySessions, next); err != nil {
		l.mu.Unlock()
		l.log.Error("end session not persisted", logger.SessionID(sessionID), logger.Err(err))
		return false, err
	}
	l.sessions = next
	session := next[idx]
	if l.current[session.OwnerID] == session.ID {
		delete(l.current, session.OwnerID)
	}
	count := l.countRecordsLocked(sessionID)
	l.mu.Unlock()

	l.log.Info("session ended", logger.SessionID(sessionID), logger.Int("records", count))
	l.publish(shared.NewSessionEndedEvent(session.ID, session.Name, session.Duration(now), count, now))
	return true, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

// MarkOutcome is the result of a mark. AlreadyMarked is informational:
// Record is then the existing record, unchanged.
type MarkOutcome struct {
	Record        attendance.Record `json:"record"`
	AlreadyMarked bool              `json:"already_marked"`
}

// MarkAttendance records that personID attended sessionID. It is the only
// place records are created; repeated calls for the same pair return the
// first record and have no other effect. Ended sessions can still be
// marked, which is how administrators fix attendance after the fact.
func (l *Ledger) MarkAttendance(ctx context.Context, personID, personName, sessionID string, method attendance.Method) (MarkOutcome, error) {
	if strings.TrimSpace(personID) == "" {
		return MarkOutcome{}, shared.ErrPersonRequired
	}
	if !method.IsValid() {
		return MarkOutcome{}, shared.ErrInvalidMethod
	}

	key := attendance.PairKey{PersonID: personID, SessionID: sessionID}

	l.mu.Lock()
	if l.sessionIndex(sessionID) < 0 {
		l.mu.Unlock()
		return MarkOutcome{}, shared.ErrSessionNotFound
	}
	if i, ok := l.marked[key]; ok {
		existing := l.records[i]
		l.mu.Unlock()
		l.log.Debug("attendance already marked", logger.PersonID(personID), logger.SessionID(sessionID), logger.Method(string(existing.Method)))
		return MarkOutcome{Record: existing, AlreadyMarked: true}, nil
	}

	now := l.now()
	record, err := attendance.NewRecord(l.newID(), personID, personName, sessionID, method, now, timeutil.DateKey(now, l.loc))
	if err != nil {
		l.mu.Unlock()
		return MarkOutcome{}, err
	}
	next := append(slices.Clip(l.records), record)
	if err := persist(ctx, l, attendance.KeyRecords, next); err != nil {
		l.mu.Unlock()
		l.log.Error("attendance not persisted", logger.PersonID(personID), logger.SessionID(sessionID), logger.Err(err))
		return MarkOutcome{}, err
	}
	l.records = next
	l.marked[key] = len(next) - 1
	l.mu.Unlock()

	l.log.Info("attendance marked", logger.PersonID(personID), logger.SessionID(sessionID), logger.Method(string(method)))
	l.publish(shared.NewAttendanceMarkedEvent(sessionID, record.ID, personID, personName, string(method), record.Date, now))
	return MarkOutcome{Record: record}, nil
}

// ManualMark is an administrator override. It goes through the same gate,
// so it never adds a second record for someone already detected.
func (l *Ledger) ManualMark(ctx context.Context, personID, personName, sessionID string) (MarkOutcome, error) {
	return l.MarkAttendance(ctx, personID, personName, sessionID, attendance.MethodManual)
}

// SessionFailure is a detection error absorbed during a check-in.
type SessionFailure struct {
	SessionID string
	Err       error
}

// CheckInResult describes one check-in attempt. Not detecting anything is
// a normal outcome the person can retry, not an error.
type CheckInResult struct {
	Detected      bool
	Session       attendance.Session
	Method        attendance.Method
	Record        attendance.Record
	AlreadyMarked bool

	// Attempts counts detections run; Skipped counts active sessions
	// the person was already marked in.
	Attempts         int
	Skipped          int
	Failures         []SessionFailure
	NoActiveSessions bool
}

// CheckIn tries each active session in creation order, skipping sessions
// the person is already marked in, and marks the first one detected.
// Detection runs one session at a time so at most one scan is in flight,
// and without holding the ledger lock. Detection errors are recorded per
// session and iteration continues. Permissions are requested at most once
// per check-in.
func (l *Ledger) CheckIn(ctx context.Context, person attendance.Person) (result CheckInResult, err error) {
	ctx, span := l.tracer.Start(ctx, "ledger.CheckIn", trace.WithAttributes(attribute.String("person.id", person.ID)))
	defer func() {
		span.SetAttributes(
			attribute.Bool("checkin.detected", result.Detected),
			attribute.Int("checkin.attempts", result.Attempts),
			attribute.Int("checkin.failures", len(result.Failures)),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if strings.TrimSpace(person.ID) == "" {
		return result, shared.ErrPersonRequired
	}

	candidates, active := l.checkInCandidates(person.ID)
	if active == 0 {
		result.NoActiveSessions = true
		return result, nil
	}
	result.Skipped = active - len(candidates)

	ctx = proximity.WithPermissionPrompt(ctx)
	log := l.log.With(logger.PersonID(person.ID))
	for _, session := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Attempts++

		detection, derr := l.detector.Detect(ctx, session.NetworkName, session.BeaconFragment)
		if derr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			result.Failures = append(result.Failures, SessionFailure{SessionID: session.ID, Err: derr})
			log.Warn("detection failed for session", logger.SessionID(session.ID), logger.Err(derr))
			continue
		}
		if !detection.Detected {
			continue
		}

		method := attendance.Method(detection.Method)
		outcome, merr := l.MarkAttendance(ctx, person.ID, person.Name, session.ID, method)
		if merr != nil {
			return result, merr
		}
		result.Detected = true
		result.Session = session
		result.Method = outcome.Record.Method
		result.Record = outcome.Record
		result.AlreadyMarked = outcome.AlreadyMarked
		return result, nil
	}

	log.Info("check-in detected no session", logger.Int("attempts", result.Attempts), logger.Int("failures", len(result.Failures)))
	l.publish(shared.NewCheckInMissedEvent(person.ID, result.Attempts, len(result.Failures), l.now()))
	return result, nil
}

func (l *Ledger) checkInCandidates(personID string) ([]attendance.Session, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []attendance.Session
	active := 0
	for _, s := range l.sessions {
		if !s.Active {
			continue
		}
		active++
		if _, done := l.marked[attendance.PairKey{PersonID: personID, SessionID: s.ID}]; done {
			continue
		}
		out = append(out, s)
	}
	return out, active
}

// ══════════════════════════════════════════════════════════════════════════════
// READS
// ══════════════════════════════════════════════════════════════════════════════

// Sessions returns every session in creation order.
func (l *Ledger) Sessions() []attendance.Session {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.sessions)
}

// ActiveSessions returns the active sessions in creation order.
func (l *Ledger) ActiveSessions() []attendance.Session {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []attendance.Session
	for _, s := range l.sessions {
		if s.Active {
			out = append(out, s)
		}
	}
	return out
}

// Session returns one session by id.
func (l *Ledger) Session(id string) (attendance.Session, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.sessionIndex(id); i >= 0 {
		return l.sessions[i], nil
	}
	return attendance.Session{}, shared.ErrSessionNotFound
}

// CurrentSession returns the session ownerID created most recently, while
// it is still active.
func (l *Ledger) CurrentSession(ownerID string) (attendance.Session, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.current[ownerID]
	if !ok {
		return attendance.Session{}, false
	}
	if i := l.sessionIndex(id); i >= 0 {
		return l.sessions[i], true
	}
	return attendance.Session{}, false
}

// Records returns every record in marking order.
func (l *Ledger) Records() []attendance.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.records)
}

// RecordsForSession returns the records of one session in marking order.
func (l *Ledger) RecordsForSession(sessionID string) []attendance.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []attendance.Record
	for _, r := range l.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out
}

// RecordsForPerson returns the records of one person in marking order.
func (l *Ledger) RecordsForPerson(personID string) []attendance.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []attendance.Record
	for _, r := range l.records {
		if r.PersonID == personID {
			out = append(out, r)
		}
	}
	return out
}

// IsMarked reports whether personID has a record for sessionID.
func (l *Ledger) IsMarked(personID, sessionID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.marked[attendance.PairKey{PersonID: personID, SessionID: sessionID}]
	return ok
}

// sessionIndex must be called with mu held.
func (l *Ledger) sessionIndex(id string) int {
	return slices.IndexFunc(l.sessions, func(s attendance.Session) bool { return s.ID == id })
}

func (l *Ledger) countRecordsLocked(sessionID string) int {
	n := 0
	for _, r := range l.records {
		if r.SessionID == sessionID {
			n++
		}
	}
	return n
}

func countActive(sessions []attendance.Session) int {
	n := 0
	for _, s := range sessions {
		if s.Active {
			n++
		}
	}
	return n
}
