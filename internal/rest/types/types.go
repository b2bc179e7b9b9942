package types

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	dbTypes "github.com/robalyx/rolesync/internal/database/types"
	"github.com/robalyx/rolesync/internal/github/rate"
	"github.com/robalyx/rolesync/internal/worker/core"
	"github.com/robalyx/rolesync/internal/worker/rolesync"
)

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TriggerResponse is returned when a manual pass was requested.
type TriggerResponse struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
}

// SyncStatusResponse combines the scheduler state with the GitHub quota.
type SyncStatusResponse struct {
	Scheduler rolesync.Status `json:"scheduler"`
	Quota     rate.Quota      `json:"quota"`
}

// WorkerStatus is a worker heartbeat with its staleness resolved.
type WorkerStatus struct {
	core.Status

	Stale bool `json:"stale"`
}

// WorkersResponse lists every known worker.
type WorkersResponse struct {
	Workers []WorkerStatus `json:"workers"`
	AsOf    time.Time      `json:"asOf"`
}

// GuildRolesRequest sets the role of each kind. A zero ID clears that kind.
type GuildRolesRequest struct {
	ContributorRoleID snowflake.ID `json:"contributorRoleId"`
	StargazerRoleID   snowflake.ID `json:"stargazerRoleId"`
}

// FollowRepositoryRequest adds a repository to a guild.
type FollowRepositoryRequest struct {
	Repository string `json:"repository"`
}

// HistoryResponse lists recent passes of a guild, newest first.
type HistoryResponse struct {
	GuildID snowflake.ID           `json:"guildId"`
	History []*dbTypes.SyncHistory `json:"history"`
}

// LinkAccountRequest stores the identities of a user.
type LinkAccountRequest struct {
	GitHubLogin string       `json:"githubLogin"`
	DiscordID   snowflake.ID `json:"discordId"`
}
