// Package httpx exposes the session registry over a small JSON API.
package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	"github.com/target/mmk-sessions/internal/service"
)

// SessionFacade is the connect/disconnect surface the handlers drive.
type SessionFacade interface {
	Connect(ctx context.Context, attrs map[string]string) (*service.ConnectResult, error)
	Disconnect(ctx context.Context, secretID string) string
	Check(ctx context.Context, secretID string) (domainauth.Session, error)
	GetSubjectRoles(ctx context.Context, secretID string) ([]string, error)
	KillSubject(ctx context.Context, login string) (int, error)
}

// SessionHandlers provides HTTP handlers for session operations.
type SessionHandlers struct {
	Svc               SessionFacade
	TrustForwardedFor bool
	Logger            *slog.Logger
}

// SessionView is the public rendering of a session. It never carries the secret id.
type SessionView struct {
	Name        string            `json:"name"`
	Login       string            `json:"login"`
	Roles       []string          `json:"roles"`
	State       string            `json:"state"`
	CreatedAt   time.Time         `json:"created_at"`
	LastAccess  time.Time         `json:"last_access"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	Timeout     string            `json:"timeout"`
	Reconnected bool              `json:"reconnected"`
	ClientIP    string            `json:"client_ip,omitempty"`
	PTPAllowed  bool              `json:"ptp_allowed"`
	ClusterNode bool              `json:"cluster_node"`
	Properties  map[string]string `json:"properties,omitempty"`
}

func newSessionView(s domainauth.Session) SessionView {
	v := SessionView{
		Name:        s.Name,
		Login:       s.Subject.Login,
		Roles:       s.Subject.Roles,
		State:       string(s.State),
		CreatedAt:   s.CreatedAt,
		LastAccess:  s.LastAccess,
		Timeout:     s.Timeout.String(),
		Reconnected: s.Reconnected,
		ClientIP:    s.ClientIP,
		PTPAllowed:  s.PTPAllowed,
		ClusterNode: s.ClusterNode,
		Properties:  s.Properties,
	}
	if exp := s.ExpiresAt(); !exp.IsZero() {
		v.ExpiresAt = &exp
	}
	return v
}

// Connect handles POST /sessions. The body is a JSON object of connect attributes;
// scalar values are accepted and converted to their string form.
func (h *SessionHandlers) Connect(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if !DecodeJSON(w, r, &body) {
		return
	}
	attrs, field, ok := flattenAttributes(body)
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "validation",
			Message: field + " must be a string, number or boolean",
			Field:   field,
		})
		return
	}
	if attrs[service.AttrClientIP] == "" {
		if ip := clientIP(r, h.TrustForwardedFor); ip != "" {
			attrs[service.AttrClientIP] = ip
		}
	}

	res, err := h.Svc.Connect(r.Context(), attrs)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Reconnected {
		status = http.StatusOK
	}
	WriteJSON(w, status, res)
}

// Disconnect handles DELETE /sessions/{id}. It always succeeds and echoes the id.
func (h *SessionHandlers) Disconnect(w http.ResponseWriter, r *http.Request) {
	id := h.Svc.Disconnect(r.Context(), r.PathValue("id"))
	WriteJSON(w, http.StatusOK, map[string]string{"secret_session_id": id})
}

// Get handles GET /sessions/{id}.
func (h *SessionHandlers) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Svc.Check(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, newSessionView(sess))
}

// Roles handles GET /sessions/{id}/roles.
func (h *SessionHandlers) Roles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Svc.GetSubjectRoles(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string][]string{"roles": roles})
}

// KillSubject handles DELETE /admin/subjects/{login}.
func (h *SessionHandlers) KillSubject(w http.ResponseWriter, r *http.Request) {
	login := strings.TrimSpace(r.PathValue("login"))
	n, err := h.Svc.KillSubject(r.Context(), login)
	if err != nil {
		WriteAppError(w, err)
		return
	}
	if h.Logger != nil {
		admin, _ := SessionFromContext(r.Context())
		h.Logger.InfoContext(r.Context(), "subject killed",
			"login", login,
			"sessions", n,
			"by", admin.Subject.Login,
		)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"login": login, "killed": n})
}

func flattenAttributes(body map[string]any) (map[string]string, string, bool) {
	attrs := make(map[string]string, len(body))
	for k, v := range body {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			attrs[k] = val
		case bool:
			attrs[k] = strconv.FormatBool(val)
		case float64:
			attrs[k] = strconv.FormatFloat(val, 'f', -1, 64)
		default:
			return nil, k, false
		}
	}
	return attrs, "", true
}

// clientIP prefers the first X-Forwarded-For hop when the proxy is trusted.
func clientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		var addrErr *net.AddrError
		if errors.As(err, &addrErr) {
			return strings.TrimSpace(r.RemoteAddr)
		}
		return ""
	}
	return host
}
