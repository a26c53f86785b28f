package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"slices"
	"strings"
	"time"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence and transport.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

// Policy names a credential backend implementation.
type Policy string

const (
	PolicyDummy Policy = "dummy"
	PolicyRealm Policy = "realm"
	PolicyToken Policy = "token"
)

// Principal is a single role or permission granted to a subject.
type Principal struct {
	Name string `json:"name"`
}

// Subject is an authenticated login identity and the roles granted to it.
// Credentials carries backend specific metadata and is opaque to the registry.
type Subject struct {
	Login       string   `json:"login"`
	Roles       []string `json:"roles"`
	Credentials any      `json:"-"`
}

// NewSubject builds a subject with trimmed, de-duplicated roles in input order.
func NewSubject(login string, roles ...string) Subject {
	return Subject{Login: login, Roles: NormalizeRoles(roles)}
}

// HasRole reports whether the subject was granted role r.
func (s Subject) HasRole(r string) bool {
	return slices.Contains(s.Roles, r)
}

// HasAnyRole reports whether the subject holds at least one of rs.
func (s Subject) HasAnyRole(rs ...string) bool {
	for _, r := range rs {
		if s.HasRole(r) {
			return true
		}
	}
	return false
}

// Principals returns one Principal per granted role.
func (s Subject) Principals() []Principal {
	out := make([]Principal, 0, len(s.Roles))
	for _, r := range s.Roles {
		out = append(out, Principal{Name: r})
	}
	return out
}

// NormalizeRoles trims blanks and drops duplicates, keeping first-seen order.
func NormalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" || slices.Contains(out, r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// RealmAccount is an entry in a realm principal store.
type RealmAccount struct {
	Login        string   `json:"login" yaml:"login"`
	PasswordHash string   `json:"-" yaml:"password_hash"`
	Roles        []string `json:"roles" yaml:"roles"`
	Groups       []string `json:"groups" yaml:"groups"`
	Locked       bool     `json:"locked" yaml:"locked"`
}

// TokenClaims is the verified payload of a signed token.
type TokenClaims struct {
	Subject   string    `json:"sub"`
	Role      string    `json:"role,omitempty"`
	Issuer    string    `json:"iss,omitempty"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// Roles splits a comma separated role claim into one entry per role.
// An absent claim yields an empty list.
func (c TokenClaims) Roles() []string {
	if strings.TrimSpace(c.Role) == "" {
		return []string{}
	}
	return NormalizeRoles(strings.Split(c.Role, ","))
}
