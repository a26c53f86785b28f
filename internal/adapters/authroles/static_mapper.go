package authroles

import (
	domainauth "github.com/target/mmk-sessions/internal/domain/auth"
	"github.com/target/mmk-sessions/internal/ports"
)

var _ ports.RoleMapper = StaticRoleMapper{}

// StaticRoleMapper maps realm groups to roles by simple string membership rules.
// Groups listed in Extra map to their configured role as well.
type StaticRoleMapper struct {
	AdminGroup string
	UserGroup  string
	Extra      map[string]string
}

// Map returns the roles granted by groups. Members of AdminGroup also hold the user role.
func (m StaticRoleMapper) Map(groups []string) []string {
	var roles []string
	for _, g := range groups {
		switch {
		case m.AdminGroup != "" && g == m.AdminGroup:
			roles = append(roles, string(domainauth.RoleAdmin), string(domainauth.RoleUser))
		case m.UserGroup != "" && g == m.UserGroup:
			roles = append(roles, string(domainauth.RoleUser))
		}
		if r, ok := m.Extra[g]; ok {
			roles = append(roles, r)
		}
	}
	return domainauth.NormalizeRoles(roles)
}
