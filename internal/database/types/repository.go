package types

import (
	"time"

	"github.com/robalyx/rolesync/internal/database/types/enum"
)

// RepositorySyncState tracks fetch freshness for a repository shared by every guild that follows it.
type RepositorySyncState struct {
	FullName             string    `bun:",pk"                   json:"fullName"`
	ContributorsSyncedAt time.Time `bun:",nullzero"             json:"contributorsSyncedAt"`
	StargazersSyncedAt   time.Time `bun:",nullzero"             json:"stargazersSyncedAt"`
	ContributorsETag     string    `bun:"contributors_etag,notnull,default:''" json:"contributorsEtag"`
	StargazersETag       string    `bun:"stargazers_etag,notnull,default:''"   json:"stargazersEtag"`
	LastError            string    `bun:",notnull,default:''"   json:"lastError"`
	LastErrorAt          time.Time `bun:",nullzero"             json:"lastErrorAt"`
	UpdatedAt            time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// ETag returns the stored entity tag for the given kind.
func (s *RepositorySyncState) ETag(kind enum.RoleKind) string {
	if kind == enum.RoleKindStargazer {
		return s.StargazersETag
	}

	return s.ContributorsETag
}

// MembershipCache is the last fetched member list of a repository for one role kind.
// It is only trusted while its ETag matches the one in RepositorySyncState.
type MembershipCache struct {
	FullName  string        `bun:",pk"                    json:"fullName"`
	Kind      enum.RoleKind `bun:",pk"                    json:"kind"`
	Logins    []string      `bun:",array,notnull"         json:"logins"`
	ETag      string        `bun:"etag,notnull,default:''" json:"etag"`
	FetchedAt time.Time     `bun:",nullzero,notnull"      json:"fetchedAt"`
}

// Set returns the cached logins as a set.
func (c *MembershipCache) Set() LoginSet {
	return NewLoginSet(c.Logins...)
}
