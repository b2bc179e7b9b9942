package types

import (
	"errors"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/rolesync/internal/database/types/enum"
)

var (
	ErrGuildConfigNotFound  = errors.New("guild config not found")
	ErrInvalidRepository    = errors.New("repository must be in owner/name form")
	ErrRepositoryNotTracked = errors.New("repository is not followed by this guild")
)

// GuildConfig stores the role synchronization settings of a Discord guild.
type GuildConfig struct {
	GuildID           snowflake.ID          `bun:",pk"                                          json:"guildId"`
	ContributorRoleID snowflake.ID          `bun:",nullzero"                                    json:"contributorRoleId,omitempty"`
	StargazerRoleID   snowflake.ID          `bun:",nullzero"                                    json:"stargazerRoleId,omitempty"`
	CreatedAt         time.Time             `bun:",nullzero,notnull,default:current_timestamp"  json:"createdAt"`
	UpdatedAt         time.Time             `bun:",nullzero,notnull,default:current_timestamp"  json:"updatedAt"`
	Repositories      []*FollowedRepository `bun:"rel:has-many,join:guild_id=guild_id"          json:"repositories"`
}

// RoleID returns the configured role for the given kind, or zero when unset.
func (g *GuildConfig) RoleID(kind enum.RoleKind) snowflake.ID {
	switch kind {
	case enum.RoleKindContributor:
		return g.ContributorRoleID
	case enum.RoleKindStargazer:
		return g.StargazerRoleID
	default:
		return 0
	}
}

// ConfiguredKinds returns the role kinds that have a role assigned.
func (g *GuildConfig) ConfiguredKinds() []enum.RoleKind {
	kinds := make([]enum.RoleKind, 0, 2)
	for _, kind := range enum.RoleKindValues() {
		if g.RoleID(kind) != 0 {
			kinds = append(kinds, kind)
		}
	}

	return kinds
}

// IsEligible reports whether the guild takes part in scheduled syncs.
func (g *GuildConfig) IsEligible() bool {
	return len(g.ConfiguredKinds()) > 0 && len(g.Repositories) > 0
}

// FollowedRepository is a GitHub repository watched by a guild.
// Owner and name are stored lowercased.
type FollowedRepository struct {
	GuildID  snowflake.ID `bun:",pk"                                         json:"guildId"`
	FullName string       `bun:",pk"                                         json:"fullName"`
	Owner    string       `bun:",notnull"                                    json:"owner"`
	Name     string       `bun:",notnull"                                    json:"name"`
	AddedAt  time.Time    `bun:",nullzero,notnull,default:current_timestamp" json:"addedAt"`
}

// ParseRepository splits and normalizes an owner/name reference.
func ParseRepository(fullName string) (owner, name string, err error) {
	owner, name, found := strings.Cut(strings.TrimSpace(fullName), "/")
	owner = strings.ToLower(strings.TrimSpace(owner))
	name = strings.ToLower(strings.TrimSpace(name))

	if !found || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", ErrInvalidRepository
	}

	return owner, name, nil
}

// RepositoryFullName joins owner and name into the canonical lowercased key.
func RepositoryFullName(owner, name string) string {
	return strings.ToLower(owner) + "/" + strings.ToLower(name)
}
