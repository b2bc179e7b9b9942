package types

import (
	"errors"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
)

var ErrLinkedAccountNotFound = errors.New("linked account not found")

// LinkedAccount ties an application user to their GitHub and Discord identities.
// Only accounts with both identities take part in role synchronization.
type LinkedAccount struct {
	ID             uuid.UUID    `bun:",pk,type:uuid,default:gen_random_uuid()" json:"id"`
	UserID         uuid.UUID    `bun:",unique,notnull,type:uuid"               json:"userId"`
	GitHubLogin    string       `bun:"github_login,nullzero,unique"            json:"githubLogin,omitempty"`
	GitHubUsername string       `bun:"github_username,notnull,default:''"      json:"githubUsername"`
	DiscordID      snowflake.ID `bun:",nullzero,unique"                        json:"discordId,omitempty"`
	LinkedAt       time.Time    `bun:",nullzero,notnull,default:current_timestamp" json:"linkedAt"`
	UpdatedAt      time.Time    `bun:",nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// IsSyncable reports whether both identities are linked.
func (a *LinkedAccount) IsSyncable() bool {
	return a.GitHubLogin != "" && a.DiscordID != 0
}
