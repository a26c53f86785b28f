package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	apperrors "github.com/target/mmk-sessions/internal/errors"
	"github.com/target/mmk-sessions/internal/ports"
)

// Recognized connect request attributes.
const (
	AttrSecretSessionID         = "SECRET_SESSION_ID"
	AttrSessionName             = "SESSION_NAME"
	AttrClusterNode             = "CLUSTER_NODE"
	AttrRefreshSession          = "REFRESH_SESSION"
	AttrReconnect               = "RECONNECT"
	AttrReconnectSameClientOnly = "RECONNECT_SAME_CLIENT_ONLY"
	AttrSessionTimeout          = "SESSION_TIMEOUT"
	AttrMaxSession              = "MAX_SESSION"
	AttrClearSession            = "CLEAR_SESSION"
	AttrBypassCredential        = "BYPASS_CREDENTIAL"
	AttrClientIP                = "CLIENT_IP"
	AttrUserID                  = "USER_ID"
	AttrUserPassword            = "USER_PASSWORD"
	AttrPTP                     = "PTP"
	AttrToken                   = "TOKEN"
)

var recognizedAttrs = map[string]struct{}{
	AttrSecretSessionID: {}, AttrSessionName: {}, AttrClusterNode: {}, AttrRefreshSession: {},
	AttrReconnect: {}, AttrReconnectSameClientOnly: {}, AttrSessionTimeout: {}, AttrMaxSession: {},
	AttrClearSession: {}, AttrBypassCredential: {}, AttrClientIP: {}, AttrUserID: {},
	AttrUserPassword: {}, AttrPTP: {}, AttrToken: {},
}

// ConnectDefaults fills attributes a request leaves out.
type ConnectDefaults struct {
	Timeout     time.Duration
	MaxSessions int
}

// ConnectFailureRecorder observes connect requests that produced no session.
type ConnectFailureRecorder interface {
	ConnectFailed(userID string, err error)
}

// ConnectServiceOptions groups dependencies for ConnectService.
type ConnectServiceOptions struct {
	Registry *SessionRegistry // Required
	Defaults ConnectDefaults
	Clock    ports.Clock              // Optional: defaults to wall clock
	Logger   *slog.Logger             // Optional: structured logger
	Failures []ConnectFailureRecorder // Optional: failure metrics and alerts
}

// ConnectService turns connect requests into registry operations.
// It never checks credentials itself.
type ConnectService struct {
	registry *SessionRegistry
	defaults ConnectDefaults
	clock    ports.Clock
	logger   *slog.Logger
	failures []ConnectFailureRecorder
}

// ConnectResult is the response to a successful connect.
type ConnectResult struct {
	SecretSessionID string    `json:"secret_session_id"`
	SessionName     string    `json:"session_name"`
	Reconnected     bool      `json:"reconnected"`
	SessionsInUse   int       `json:"sessions_in_use"`
	ReceivedAt      time.Time `json:"received_at"`
}

// NewConnectService constructs a ConnectService.
func NewConnectService(opts ConnectServiceOptions) (*ConnectService, error) {
	if opts.Registry == nil {
		return nil, errors.New("SessionRegistry is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectService{
		registry: opts.Registry,
		defaults: opts.Defaults,
		clock:    clock,
		logger:   logger.With("component", "connect_service"),
		failures: opts.Failures,
	}, nil
}

// Connect parses attrs and opens or re-attaches a session.
func (s *ConnectService) Connect(ctx context.Context, attrs map[string]string) (*ConnectResult, error) {
	receivedAt := s.clock.Now()
	props, err := ParseConnectAttributes(attrs, s.defaults, s.registry.Policy())
	if err != nil {
		s.recordFailure(strings.TrimSpace(attrs[AttrUserID]), err)
		return nil, err
	}
	return s.connect(ctx, props, receivedAt)
}

// ConnectWithProperties opens or re-attaches a session from typed properties.
func (s *ConnectService) ConnectWithProperties(
	ctx context.Context,
	props domainauth.ConnectProperties,
) (*ConnectResult, error) {
	return s.connect(ctx, props, s.clock.Now())
}

func (s *ConnectService) connect(
	ctx context.Context,
	props domainauth.ConnectProperties,
	receivedAt time.Time,
) (*ConnectResult, error) {
	sess, err := s.registry.Connect(ctx, props)
	if err != nil {
		s.logConnectFailure(ctx, props, err)
		s.recordFailure(props.UserID, err)
		return nil, err
	}
	return &ConnectResult{
		SecretSessionID: sess.SecretID,
		SessionName:     sess.Name,
		Reconnected:     sess.Reconnected,
		SessionsInUse:   s.registry.SessionsInUse(sess.Subject.Login),
		ReceivedAt:      receivedAt,
	}, nil
}

func (s *ConnectService) logConnectFailure(ctx context.Context, props domainauth.ConnectProperties, err error) {
	attrs := []any{
		"user_id", props.UserID,
		"client_ip", props.ClientIP,
		"code", apperrors.GetCode(err),
	}
	if reason := apperrors.GetReason(err); reason != "" {
		attrs = append(attrs, "reason", reason)
	}
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code == apperrors.ErrCodeUnavailable {
		s.logger.ErrorContext(ctx, "connect failed", append(attrs, "error", err)...)
		return
	}
	s.logger.InfoContext(ctx, "connect rejected", attrs...)
}

func (s *ConnectService) recordFailure(userID string, err error) {
	for _, rec := range s.failures {
		rec.ConnectFailed(userID, err)
	}
}

// Disconnect closes the session and echoes secretID. It never fails.
func (s *ConnectService) Disconnect(ctx context.Context, secretID string) string {
	s.registry.Disconnect(ctx, secretID, ReasonDisconnect)
	return secretID
}

// Check returns the live session for secretID.
func (s *ConnectService) Check(ctx context.Context, secretID string) (domainauth.Session, error) {
	return s.registry.Check(ctx, secretID)
}

// GetSubjectRoles returns the roles of the subject owning secretID.
func (s *ConnectService) GetSubjectRoles(ctx context.Context, secretID string) ([]string, error) {
	return s.registry.SubjectRoles(ctx, secretID)
}

// KillSubject ends every session of login.
func (s *ConnectService) KillSubject(ctx context.Context, login string) (int, error) {
	return s.registry.KillSubject(ctx, login)
}

// ParseConnectAttributes builds ConnectProperties from request attributes.
// Unrecognized attributes become session properties.
func ParseConnectAttributes(
	attrs map[string]string,
	defaults ConnectDefaults,
	policy domainauth.Policy,
) (domainauth.ConnectProperties, error) {
	p := attrParser{attrs: attrs}
	props := domainauth.ConnectProperties{
		UserID:                  p.str(AttrUserID),
		SecretSessionID:         p.str(AttrSecretSessionID),
		SessionName:             p.str(AttrSessionName),
		ClientIP:                p.str(AttrClientIP),
		ClusterNode:             p.boolean(AttrClusterNode, false),
		Refresh:                 p.boolean(AttrRefreshSession, false),
		Reconnect:               p.boolean(AttrReconnect, false),
		ReconnectSameClientOnly: p.boolean(AttrReconnectSameClientOnly, false),
		ClearSessions:           p.boolean(AttrClearSession, false),
		BypassCredential:        p.boolean(AttrBypassCredential, false),
		PTPAllowed:              p.boolean(AttrPTP, true),
		Timeout:                 p.duration(AttrSessionTimeout, defaults.Timeout),
		MaxSessions:             p.integer(AttrMaxSession, defaults.MaxSessions),
	}
	if p.err != nil {
		return domainauth.ConnectProperties{}, p.err
	}

	props.Credential = attrs[AttrUserPassword]
	if policy == domainauth.PolicyToken {
		if tok := strings.TrimSpace(attrs[AttrToken]); tok != "" {
			props.Credential = tok
		}
	}

	for k, v := range attrs {
		if _, known := recognizedAttrs[k]; known {
			continue
		}
		if props.Properties == nil {
			props.Properties = make(map[string]string)
		}
		props.Properties[k] = v
	}

	if err := requireCredentials(props, policy); err != nil {
		return domainauth.ConnectProperties{}, err
	}
	return props, nil
}

// requireCredentials applies to fresh connects only; a reconnect is judged
// by the registry once it knows whether the supplied id is live.
func requireCredentials(props domainauth.ConnectProperties, policy domainauth.Policy) error {
	if props.BypassCredential || props.SecretSessionID != "" {
		return nil
	}
	switch policy {
	case domainauth.PolicyDummy:
		return nil
	case domainauth.PolicyToken:
		if props.Credential == "" {
			return apperrors.ValidationField(AttrToken, "token is required")
		}
		return nil
	default:
		if props.UserID == "" {
			return apperrors.ValidationField(AttrUserID, "user id is required")
		}
		if props.Credential == "" {
			return apperrors.ValidationField(AttrUserPassword, "password is required")
		}
		return nil
	}
}

// attrParser keeps the first conversion error.
type attrParser struct {
	attrs map[string]string
	err   error
}

func (p *attrParser) str(key string) string {
	return strings.TrimSpace(p.attrs[key])
}

func (p *attrParser) boolean(key string, def bool) bool {
	raw := p.str(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, "must be a boolean")
		return def
	}
	return v
}

func (p *attrParser) integer(key string, def int) int {
	raw := p.str(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, "must be an integer")
		return def
	}
	return v
}

// duration accepts a Go duration ("45m") or a bare integer of milliseconds.
func (p *attrParser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key)
	if raw == "" {
		return def
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, "must be a duration")
		return def
	}
	return d
}

func (p *attrParser) fail(key, msg string) {
	if p.err == nil {
		p.err = apperrors.ValidationField(key, key+" "+msg)
	}
}
