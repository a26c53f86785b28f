package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	apperrors "github.com/target/mmk-sessions/internal/errors"
	"github.com/target/mmk-sessions/internal/ports"
)

// Reasons attached to lifecycle events.
const (
	ReasonDisconnect = "disconnect"
	ReasonTimeout    = "timeout"
	ReasonCleared    = "clear_sessions"
	ReasonAdminKill  = "admin_kill"
)

// DefaultBypassLogin names the subject of a bypassed connect that carries no user id.
const DefaultBypassLogin = "anonymous"

// secretIDBytes yields a 43 character base64url id.
const secretIDBytes = 32

// MinForcedIDLength is the shortest caller-chosen secret id accepted, about
// 128 bits of base64url.
const MinForcedIDLength = 22

// RegistryOptions groups dependencies for SessionRegistry.
type RegistryOptions struct {
	Backend   ports.CredentialBackend // Required: verifies fresh connects
	Clock     ports.Clock             // Optional: defaults to wall clock
	Logger    *slog.Logger            // Optional: structured logger
	Listeners []ports.SessionListener // Optional: notified after each transition
	// AllowBypass permits connects with BypassCredential set. Only trusted
	// internal callers should ever reach a registry with this enabled.
	AllowBypass bool
	// BypassLogin is the subject used by a bypassed connect without a user id.
	BypassLogin string
	// AllowForcedID lets an unknown SecretSessionID become the id of a fresh
	// session. Without it an unknown id fails with session_not_found.
	AllowForcedID bool
}

type sessionRecord struct {
	session        domainauth.Session
	backend        ports.BackendSession // nil for bypassed connects
	ordinal        int
	sameClientOnly bool
}

type subjectRecord struct {
	subject     domainauth.Subject
	sessions    map[string]*sessionRecord // keyed by public name
	nextOrdinal int
}

// SessionRegistry owns every live session. A single mutex guards both the
// secret id index and the subject index so cross-index updates are atomic.
// Credential checks and listener callbacks always run without the lock.
type SessionRegistry struct {
	backend     ports.CredentialBackend
	clock       ports.Clock
	logger      *slog.Logger
	allowBypass bool
	bypassLogin string
	allowForced bool

	mu       sync.Mutex
	sessions map[string]*sessionRecord
	subjects map[string]*subjectRecord
	seq      uint64

	listenersMu sync.RWMutex
	listeners   []ports.SessionListener
}

// NewSessionRegistry constructs an empty registry.
func NewSessionRegistry(opts RegistryOptions) (*SessionRegistry, error) {
	if opts.Backend == nil {
		return nil, apperrors.Configuration("session registry: credential backend is required", nil)
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bypassLogin := strings.TrimSpace(opts.BypassLogin)
	if bypassLogin == "" {
		bypassLogin = DefaultBypassLogin
	}
	return &SessionRegistry{
		backend:     opts.Backend,
		clock:       clock,
		logger:      logger.With("component", "session_registry"),
		allowBypass: opts.AllowBypass,
		bypassLogin: bypassLogin,
		allowForced: opts.AllowForcedID,
		sessions:    make(map[string]*sessionRecord),
		subjects:    make(map[string]*subjectRecord),
		listeners:   slices.Clone(opts.Listeners),
	}, nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// AddListener appends l to the notification list.
func (r *SessionRegistry) AddListener(l ports.SessionListener) {
	if l == nil {
		return
	}
	r.listenersMu.Lock()
	r.listeners = append(r.listeners, l)
	r.listenersMu.Unlock()
}

// Policy reports the policy of the configured credential backend.
func (r *SessionRegistry) Policy() domainauth.Policy { return r.backend.Policy() }

// Connect opens a session, or re-attaches to one when props.SecretSessionID
// names a live session. An unknown id fails with session_not_found unless
// forced ids are allowed and props.Reconnect is unset, in which case it
// becomes the id of a fresh session.
func (r *SessionRegistry) Connect(ctx context.Context, props domainauth.ConnectProperties) (domainauth.Session, error) {
	if props.BypassCredential && !r.allowBypass {
		r.logger.WarnContext(ctx, "credential bypass requested but not permitted", "user_id", props.UserID)
		return domainauth.Session{}, apperrors.InvalidCredential(apperrors.ReasonBypassNotPermitted, nil)
	}

	var forcedID string
	if id := strings.TrimSpace(props.SecretSessionID); id != "" {
		sess, found, err := r.reconnect(ctx, id, props)
		if found || err != nil {
			return sess, err
		}
		if props.Reconnect {
			return domainauth.Session{}, apperrors.SessionNotFound()
		}
		if !r.allowForced {
			r.logger.WarnContext(ctx, "caller-chosen secret id rejected", "user_id", props.UserID)
			return domainauth.Session{}, apperrors.SessionNotFound()
		}
		if len(id) < MinForcedIDLength {
			return domainauth.Session{}, apperrors.ValidationField("SECRET_SESSION_ID",
				fmt.Sprintf("secret session id must be at least %d characters", MinForcedIDLength))
		}
		forcedID = id
	}
	return r.connectFresh(ctx, props, forcedID)
}

func (r *SessionRegistry) reconnect(
	ctx context.Context,
	id string,
	props domainauth.ConnectProperties,
) (domainauth.Session, bool, error) {
	var events []domainauth.SessionEvent

	r.mu.Lock()
	rec := r.lookupLocked(id, r.clock.Now(), &events)
	var (
		backend ports.BackendSession
		login   string
		denied  error
	)
	if rec != nil {
		denied = checkReconnect(rec, props)
		backend = rec.backend
		login = rec.session.Subject.Login
	}
	r.mu.Unlock()
	r.notify(ctx, events)

	if rec == nil {
		return domainauth.Session{}, false, nil
	}
	if denied != nil {
		r.logger.WarnContext(ctx, "reconnect denied",
			"session", domainauth.RedactSecret(id),
			"reason", apperrors.GetReason(denied),
		)
		return domainauth.Session{}, true, denied
	}

	var refreshed ports.BackendSession
	if props.Credential != "" && !props.BypassCredential {
		var err error
		if refreshed, err = r.recheck(ctx, backend, login, props.Credential); err != nil {
			return domainauth.Session{}, true, err
		}
	}

	var after []domainauth.SessionEvent
	r.mu.Lock()
	now := r.clock.Now()
	if cur := r.lookupLocked(id, now, &after); cur != rec {
		// Disconnected or expired while the credential was being checked.
		r.mu.Unlock()
		r.notify(ctx, after)
		return domainauth.Session{}, true, apperrors.SessionNotFound()
	}
	if refreshed != nil {
		rec.backend = refreshed
		subject := refreshed.Subject()
		rec.session.Subject = cloneSubject(subject)
		if subj, ok := r.subjects[login]; ok {
			subj.subject = cloneSubject(subject)
		}
	}
	rec.session.Reconnected = true
	rec.session.State = domainauth.SessionReconnected
	rec.session.LastAccess = now
	snap := rec.session.Clone()
	after = append(after, r.newEvent(domainauth.EventReconnected, snap, "", now))
	r.mu.Unlock()

	r.notify(ctx, after)
	r.logger.DebugContext(ctx, "session reconnected",
		"session", domainauth.RedactSecret(id),
		"name", snap.Name,
		"subject", login,
	)
	return snap, true, nil
}

func checkReconnect(rec *sessionRecord, props domainauth.ConnectProperties) error {
	if (props.ReconnectSameClientOnly || rec.sameClientOnly) && rec.session.ClientIP != props.ClientIP {
		return apperrors.ReconnectDenied(apperrors.ReasonClientMismatch)
	}
	if uid := strings.TrimSpace(props.UserID); uid != "" && uid != rec.session.Subject.Login {
		return apperrors.ReconnectDenied(apperrors.ReasonSubjectMismatch)
	}
	return nil
}

// recheck validates a credential presented on reconnect. Sessions opened with
// bypass have no backend session, so a fresh one is verified for the login.
func (r *SessionRegistry) recheck(
	ctx context.Context,
	bs ports.BackendSession,
	login, credential string,
) (ports.BackendSession, error) {
	if bs != nil {
		if err := bs.CheckCredential(ctx, credential); err != nil {
			return nil, err
		}
		return bs, nil
	}
	fresh, err := r.backend.Verify(ctx, login, credential)
	if err != nil {
		return nil, err
	}
	if fresh.Subject().Login != login {
		return nil, apperrors.ReconnectDenied(apperrors.ReasonSubjectMismatch)
	}
	return fresh, nil
}

func (r *SessionRegistry) connectFresh(
	ctx context.Context,
	props domainauth.ConnectProperties,
	forcedID string,
) (domainauth.Session, error) {
	subject, bs, err := r.authenticate(ctx, props)
	if err != nil {
		return domainauth.Session{}, err
	}

	secretID := forcedID
	if secretID == "" {
		if secretID, err = newSecretID(); err != nil {
			return domainauth.Session{}, fmt.Errorf("generate secret session id: %w", err)
		}
	}

	var events []domainauth.SessionEvent
	r.mu.Lock()
	snap, err := r.admitLocked(admission{
		secretID: secretID,
		subject:  subject,
		backend:  bs,
		props:    props,
		bypass:   bs == nil,
	}, &events)
	r.mu.Unlock()
	r.notify(ctx, events)

	if err != nil {
		return domainauth.Session{}, err
	}
	r.logger.DebugContext(ctx, "session connected",
		"session", domainauth.RedactSecret(snap.SecretID),
		"name", snap.Name,
		"subject", snap.Subject.Login,
		"bypass", bs == nil,
	)
	return snap, nil
}

// authenticate runs before the registry lock is taken.
func (r *SessionRegistry) authenticate(
	ctx context.Context,
	props domainauth.ConnectProperties,
) (domainauth.Subject, ports.BackendSession, error) {
	if props.BypassCredential {
		login := strings.TrimSpace(props.UserID)
		if login == "" {
			login = r.bypassLogin
		}
		r.logger.WarnContext(ctx, "credential check bypassed", "subject", login)
		return domainauth.NewSubject(login), nil, nil
	}
	bs, err := r.backend.Verify(ctx, props.UserID, props.Credential)
	if err != nil {
		return domainauth.Subject{}, nil, err
	}
	subject := bs.Subject()
	if subject.Login == "" {
		return domainauth.Subject{}, nil, apperrors.Internal("credential backend returned an empty subject")
	}
	return subject, bs, nil
}

type admission struct {
	secretID string
	subject  domainauth.Subject
	backend  ports.BackendSession
	props    domainauth.ConnectProperties
	bypass   bool
}

// admitLocked enforces the session quota and publishes the new session.
// The record is fully built before it becomes visible in either index.
func (r *SessionRegistry) admitLocked(a admission, events *[]domainauth.SessionEvent) (domainauth.Session, error) {
	now := r.clock.Now()
	login := a.subject.Login

	if r.lookupLocked(a.secretID, now, events) != nil {
		return domainauth.Session{}, apperrors.Conflict("secret session id already in use")
	}

	subj := r.subjects[login]
	if subj != nil {
		for _, rec := range subj.sessionsOldestFirst() {
			if rec.session.Expired(now) {
				*events = append(*events, r.removeLocked(rec, domainauth.SessionExpired, domainauth.EventExpired, ReasonTimeout, now))
			}
		}
	} else {
		subj = &subjectRecord{subject: cloneSubject(a.subject), sessions: make(map[string]*sessionRecord)}
	}

	victims, err := planEvictions(subj, a.props)
	if err != nil {
		r.pruneSubjectLocked(login)
		return domainauth.Session{}, err
	}

	name := strings.TrimSpace(a.props.SessionName)
	if name != "" {
		if existing, taken := subj.sessions[name]; taken && !slices.Contains(victims, existing) {
			r.pruneSubjectLocked(login)
			return domainauth.Session{}, apperrors.Conflictf("session name %q already in use", name)
		}
	}

	for _, v := range victims {
		*events = append(*events, r.removeLocked(v, domainauth.SessionKilled, domainauth.EventKilled, ReasonCleared, now))
	}

	if !a.bypass || len(subj.subject.Roles) == 0 {
		subj.subject = cloneSubject(a.subject)
	}
	subj.nextOrdinal++
	ordinal := subj.nextOrdinal
	if name == "" {
		name = fmt.Sprintf("%s-%d", login, ordinal)
		// A caller-chosen name may already occupy the next ordinal.
		for subj.sessions[name] != nil {
			subj.nextOrdinal++
			ordinal = subj.nextOrdinal
			name = fmt.Sprintf("%s-%d", login, ordinal)
		}
	}

	rec := &sessionRecord{
		session: domainauth.Session{
			SecretID:    a.secretID,
			Name:        name,
			Subject:     cloneSubject(subj.subject),
			State:       domainauth.SessionPending,
			CreatedAt:   now,
			LastAccess:  now,
			Timeout:     a.props.Timeout,
			ClientIP:    a.props.ClientIP,
			PTPAllowed:  a.props.PTPAllowed,
			ClusterNode: a.props.ClusterNode,
			Refresh:     a.props.Refresh,
			Properties:  maps.Clone(a.props.Properties),
		},
		backend:        a.backend,
		ordinal:        ordinal,
		sameClientOnly: a.props.ReconnectSameClientOnly,
	}
	rec.session.State = domainauth.SessionActive

	subj.sessions[name] = rec
	r.subjects[login] = subj
	r.sessions[a.secretID] = rec

	snap := rec.session.Clone()
	*events = append(*events, r.newEvent(domainauth.EventConnected, snap, "", now))
	return snap, nil
}

// planEvictions returns the sessions to kill so a new one fits under the quota.
func planEvictions(subj *subjectRecord, props domainauth.ConnectProperties) ([]*sessionRecord, error) {
	limit := props.MaxSessions
	live := len(subj.sessions)
	if limit <= 0 || live < limit {
		return nil, nil
	}
	if !props.ClearSessions {
		return nil, apperrors.TooManySessions(limit)
	}
	return subj.sessionsOldestFirst()[:live-limit+1], nil
}

func (s *subjectRecord) sessionsOldestFirst() []*sessionRecord {
	out := make([]*sessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].session.CreatedAt.Equal(out[j].session.CreatedAt) {
			return out[i].session.CreatedAt.Before(out[j].session.CreatedAt)
		}
		return out[i].ordinal < out[j].ordinal
	})
	return out
}

// Check returns the live session for secretID. Expired sessions are evicted
// as part of the same critical section and reported as not found.
func (r *SessionRegistry) Check(ctx context.Context, secretID string) (domainauth.Session, error) {
	return r.withLive(ctx, secretID, func(rec *sessionRecord, now time.Time) error {
		if rec.session.Refresh {
			rec.session.LastAccess = now
		}
		if rec.session.State == domainauth.SessionReconnected {
			rec.session.State = domainauth.SessionActive
		}
		return nil
	})
}

// Refresh pushes the session's timeout back to now.
func (r *SessionRegistry) Refresh(ctx context.Context, secretID string) (domainauth.Session, error) {
	return r.withLive(ctx, secretID, func(rec *sessionRecord, now time.Time) error {
		rec.session.LastAccess = now
		return nil
	})
}

// SetProperties merges props into the session's remote properties.
// An empty value removes the key.
func (r *SessionRegistry) SetProperties(
	ctx context.Context,
	secretID string,
	props map[string]string,
) (domainauth.Session, error) {
	return r.withLive(ctx, secretID, func(rec *sessionRecord, _ time.Time) error {
		if rec.session.Properties == nil {
			rec.session.Properties = make(map[string]string, len(props))
		}
		for k, v := range props {
			if v == "" {
				delete(rec.session.Properties, k)
				continue
			}
			rec.session.Properties[k] = v
		}
		return nil
	})
}

// SubjectRoles returns the roles of the subject owning secretID.
func (r *SessionRegistry) SubjectRoles(ctx context.Context, secretID string) ([]string, error) {
	sess, err := r.withLive(ctx, secretID, nil)
	if err != nil {
		return nil, err
	}
	return sess.Subject.Roles, nil
}

func (r *SessionRegistry) withLive(
	ctx context.Context,
	secretID string,
	fn func(rec *sessionRecord, now time.Time) error,
) (domainauth.Session, error) {
	var events []domainauth.SessionEvent

	r.mu.Lock()
	now := r.clock.Now()
	rec := r.lookupLocked(secretID, now, &events)
	var (
		snap domainauth.Session
		err  error
	)
	switch {
	case rec == nil:
		err = apperrors.SessionNotFound()
	case fn != nil:
		err = fn(rec, now)
	}
	if rec != nil && err == nil {
		snap = rec.session.Clone()
	}
	r.mu.Unlock()

	r.notify(ctx, events)
	if err != nil {
		return domainauth.Session{}, err
	}
	return snap, nil
}

// Disconnect removes the session. Unknown ids are ignored.
// It reports whether a session was removed.
func (r *SessionRegistry) Disconnect(ctx context.Context, secretID, reason string) bool {
	if reason == "" {
		reason = ReasonDisconnect
	}
	var events []domainauth.SessionEvent

	r.mu.Lock()
	now := r.clock.Now()
	rec, ok := r.sessions[secretID]
	if ok {
		login := rec.session.Subject.Login
		events = append(events, r.removeLocked(rec, domainauth.SessionKilled, domainauth.EventDisconnected, reason, now))
		r.pruneSubjectLocked(login)
	}
	r.mu.Unlock()

	r.notify(ctx, events)
	if ok {
		r.logger.DebugContext(ctx, "session disconnected",
			"session", domainauth.RedactSecret(secretID),
			"reason", reason,
		)
	}
	return ok
}

// ChangeSecretSessionID atomically moves a live session to newID.
func (r *SessionRegistry) ChangeSecretSessionID(
	ctx context.Context,
	oldID, newID string,
) (domainauth.Session, error) {
	newID = strings.TrimSpace(newID)
	if newID == "" {
		return domainauth.Session{}, apperrors.ValidationField("secret_session_id", "new secret session id is required")
	}
	var events []domainauth.SessionEvent

	r.mu.Lock()
	now := r.clock.Now()
	rec := r.lookupLocked(oldID, now, &events)
	if rec == nil {
		r.mu.Unlock()
		r.notify(ctx, events)
		return domainauth.Session{}, apperrors.SessionNotFound()
	}
	if oldID == newID {
		snap := rec.session.Clone()
		r.mu.Unlock()
		r.notify(ctx, events)
		return snap, nil
	}
	if r.lookupLocked(newID, now, &events) != nil {
		r.mu.Unlock()
		r.notify(ctx, events)
		return domainauth.Session{}, apperrors.Conflict("secret session id already in use")
	}
	delete(r.sessions, oldID)
	rec.session.SecretID = newID
	r.sessions[newID] = rec
	snap := rec.session.Clone()
	evt := r.newEvent(domainauth.EventRenamed, snap, "", now)
	evt.PreviousSecretID = oldID
	events = append(events, evt)
	r.mu.Unlock()

	r.notify(ctx, events)
	return snap, nil
}

// KillSubject removes a subject and every session it owns.
func (r *SessionRegistry) KillSubject(ctx context.Context, login string) (int, error) {
	var events []domainauth.SessionEvent

	r.mu.Lock()
	subj, ok := r.subjects[login]
	if !ok {
		r.mu.Unlock()
		return 0, apperrors.NotFound("subject not found")
	}
	now := r.clock.Now()
	for _, rec := range subj.sessionsOldestFirst() {
		events = append(events, r.removeLocked(rec, domainauth.SessionKilled, domainauth.EventKilled, ReasonAdminKill, now))
	}
	delete(r.subjects, login)
	r.mu.Unlock()

	r.notify(ctx, events)
	r.logger.InfoContext(ctx, "subject killed", "subject", login, "sessions", len(events))
	return len(events), nil
}

// Sweep evicts every expired session and returns how many were removed.
func (r *SessionRegistry) Sweep(ctx context.Context) int {
	var events []domainauth.SessionEvent

	r.mu.Lock()
	now := r.clock.Now()
	for _, rec := range r.sessions {
		if !rec.session.Expired(now) {
			continue
		}
		login := rec.session.Subject.Login
		events = append(events, r.removeLocked(rec, domainauth.SessionExpired, domainauth.EventExpired, ReasonTimeout, now))
		r.pruneSubjectLocked(login)
	}
	r.mu.Unlock()

	r.notify(ctx, events)
	return len(events)
}

// SessionsInUse counts the unexpired sessions held by login.
func (r *SessionRegistry) SessionsInUse(login string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	subj, ok := r.subjects[login]
	if !ok {
		return 0
	}
	now := r.clock.Now()
	n := 0
	for _, rec := range subj.sessions {
		if !rec.session.Expired(now) {
			n++
		}
	}
	return n
}

// Subjects returns the logins currently holding sessions, sorted.
func (r *SessionRegistry) Subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.subjects))
	for login := range r.subjects {
		out = append(out, login)
	}
	sort.Strings(out)
	return out
}

// SubjectSessions returns snapshots of login's unexpired sessions, oldest first.
func (r *SessionRegistry) SubjectSessions(login string) []domainauth.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	subj, ok := r.subjects[login]
	if !ok {
		return nil
	}
	now := r.clock.Now()
	var out []domainauth.Session
	for _, rec := range subj.sessionsOldestFirst() {
		if !rec.session.Expired(now) {
			out = append(out, rec.session.Clone())
		}
	}
	return out
}

// Len returns the number of sessions held, including any not yet lazily expired.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// lookupLocked returns the live record for id, evicting it first when expired.
func (r *SessionRegistry) lookupLocked(id string, now time.Time, events *[]domainauth.SessionEvent) *sessionRecord {
	if id == "" {
		return nil
	}
	rec, ok := r.sessions[id]
	if !ok {
		return nil
	}
	if rec.session.Expired(now) {
		login := rec.session.Subject.Login
		*events = append(*events, r.removeLocked(rec, domainauth.SessionExpired, domainauth.EventExpired, ReasonTimeout, now))
		r.pruneSubjectLocked(login)
		return nil
	}
	return rec
}

// removeLocked drops rec from both indexes. The subject entry is kept even
// when empty; callers prune it once their mutation is complete.
func (r *SessionRegistry) removeLocked(
	rec *sessionRecord,
	state domainauth.SessionState,
	typ domainauth.EventType,
	reason string,
	now time.Time,
) domainauth.SessionEvent {
	delete(r.sessions, rec.session.SecretID)
	if subj, ok := r.subjects[rec.session.Subject.Login]; ok && subj.sessions[rec.session.Name] == rec {
		delete(subj.sessions, rec.session.Name)
	}
	rec.session.State = state
	return r.newEvent(typ, rec.session.Clone(), reason, now)
}

func (r *SessionRegistry) pruneSubjectLocked(login string) {
	if subj, ok := r.subjects[login]; ok && len(subj.sessions) == 0 {
		delete(r.subjects, login)
	}
}

// newEvent stamps the next sequence number. Callers hold r.mu.
func (r *SessionRegistry) newEvent(
	typ domainauth.EventType,
	sess domainauth.Session,
	reason string,
	now time.Time,
) domainauth.SessionEvent {
	r.seq++
	return domainauth.SessionEvent{
		Seq:     r.seq,
		ID:      uuid.New(),
		Type:    typ,
		Session: sess,
		Reason:  reason,
		At:      now,
	}
}

// notify delivers events to every listener in registration order. Events
// from concurrent calls may interleave; listeners that keep state order by Seq.
func (r *SessionRegistry) notify(ctx context.Context, events []domainauth.SessionEvent) {
	if len(events) == 0 {
		return
	}
	r.listenersMu.RLock()
	listeners := slices.Clone(r.listeners)
	r.listenersMu.RUnlock()

	for _, evt := range events {
		for i, l := range listeners {
			r.deliver(ctx, i, l, evt)
		}
	}
}

func (r *SessionRegistry) deliver(ctx context.Context, idx int, l ports.SessionListener, evt domainauth.SessionEvent) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "session listener panicked",
				"listener", idx,
				"event", evt.Type,
				"name", evt.Session.Name,
				"panic", p,
			)
		}
	}()
	if err := l.OnSessionEvent(ctx, evt); err != nil {
		r.logger.WarnContext(ctx, "session listener failed",
			"listener", idx,
			"event", evt.Type,
			"name", evt.Session.Name,
			"error", err,
		)
	}
}

func cloneSubject(s domainauth.Subject) domainauth.Subject {
	s.Roles = slices.Clone(s.Roles)
	return s
}

func newSecretID() (string, error) {
	var buf [secretIDBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf[:]), nil
}
