package types

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/robalyx/rolesync/internal/database/types/enum"
)

// SyncHistory is the audit record of a single guild reconciliation attempt.
// It is written once at the start and finalized once at the end.
type SyncHistory struct {
	ID                 uuid.UUID       `bun:",pk,type:uuid"       json:"id"`
	GuildID            snowflake.ID    `bun:",notnull"            json:"guildId"`
	StartedAt          time.Time       `bun:",notnull"            json:"startedAt"`
	CompletedAt        time.Time       `bun:",nullzero"           json:"completedAt"`
	Status             enum.SyncStatus `bun:",notnull"            json:"status"`
	Success            bool            `bun:",notnull"            json:"success"`
	Error              string          `bun:",notnull,default:''" json:"error,omitempty"`
	UsersProcessed     int             `bun:",notnull"            json:"usersProcessed"`
	RolesAdded         int             `bun:",notnull"            json:"rolesAdded"`
	RolesRemoved       int             `bun:",notnull"            json:"rolesRemoved"`
	RepositoriesFailed int             `bun:",notnull"            json:"repositoriesFailed"`
}

// NewSyncHistory creates a history record in the started state.
func NewSyncHistory(guildID snowflake.ID, startedAt time.Time) *SyncHistory {
	return &SyncHistory{
		ID:        uuid.New(),
		GuildID:   guildID,
		StartedAt: startedAt,
		Status:    enum.SyncStatusStarted,
	}
}

// Duration returns how long the attempt ran, or zero while it is running.
func (h *SyncHistory) Duration() time.Duration {
	if h.CompletedAt.IsZero() {
		return 0
	}

	return h.CompletedAt.Sub(h.StartedAt)
}
