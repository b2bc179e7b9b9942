package types

import (
	"slices"
	"strings"
)

// LoginSet is a set of lowercased GitHub logins.
type LoginSet map[string]struct{}

// NewLoginSet builds a set from the given logins, normalizing case and dropping empties.
func NewLoginSet(logins ...string) LoginSet {
	set := make(LoginSet, len(logins))
	for _, login := range logins {
		set.Add(login)
	}

	return set
}

// NormalizeLogin returns the canonical form of a GitHub login.
func NormalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

// Add inserts a login into the set.
func (s LoginSet) Add(login string) {
	if normalized := NormalizeLogin(login); normalized != "" {
		s[normalized] = struct{}{}
	}
}

// Contains reports whether the login is in the set. Nil sets contain nothing.
func (s LoginSet) Contains(login string) bool {
	_, ok := s[NormalizeLogin(login)]
	return ok
}

// Len returns the number of logins in the set.
func (s LoginSet) Len() int {
	return len(s)
}

// Slice returns the logins in sorted order.
func (s LoginSet) Slice() []string {
	logins := make([]string, 0, len(s))
	for login := range s {
		logins = append(logins, login)
	}

	slices.Sort(logins)

	return logins
}

// Clone returns an independent copy of the set.
func (s LoginSet) Clone() LoginSet {
	if s == nil {
		return nil
	}

	clone := make(LoginSet, len(s))
	for login := range s {
		clone[login] = struct{}{}
	}

	return clone
}
