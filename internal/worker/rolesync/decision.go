package rolesync

import (
	"github.com/robalyx/rolesync/internal/database/types"
	"github.com/robalyx/rolesync/internal/database/types/enum"
)

// Membership maps a repository full name to the logins holding each role kind.
type Membership map[string]map[enum.RoleKind]types.LoginSet

// Set stores the logins for one repository and kind.
func (m Membership) Set(fullName string, kind enum.RoleKind, logins types.LoginSet) {
	byKind, ok := m[fullName]
	if !ok {
		byKind = make(map[enum.RoleKind]types.LoginSet, 2)
		m[fullName] = byKind
	}

	byKind[kind] = logins
}

// Decide reports whether a GitHub login should hold the role of the given kind.
// The login qualifies when it appears in that kind's set of any followed repository.
func Decide(kind enum.RoleKind, login string, guild *types.GuildConfig, membership Membership) bool {
	for _, repo := range guild.Repositories {
		if membership[repo.FullName][kind].Contains(login) {
			return true
		}
	}

	return false
}
