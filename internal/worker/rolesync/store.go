package rolesync

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/rolesync/internal/database"
	"github.com/robalyx/rolesync/internal/database/service"
	"github.com/robalyx/rolesync/internal/database/types"
	"github.com/robalyx/rolesync/internal/database/types/enum"
	"github.com/robalyx/rolesync/internal/discord/roles"
	"github.com/robalyx/rolesync/internal/github/fetcher"
)

// Store is the persistence used by sync passes.
type Store interface {
	GetEligibleGuildConfigs(ctx context.Context) ([]*types.GuildConfig, error)
	GetSyncableAccounts(ctx context.Context) ([]*types.LinkedAccount, error)
	CreateHistory(ctx context.Context, history *types.SyncHistory) error
	FinalizeHistory(ctx context.Context, history *types.SyncHistory) error
	PurgeExpiredHistory(ctx context.Context, retention time.Duration) (int64, error)
	LoadCachedMembership(ctx context.Context, fullName string, kind enum.RoleKind) (*service.CachedMembership, error)
	RecordFetch(ctx context.Context, fullName string, kind enum.RoleKind, logins types.LoginSet, etag string) error
	RecordNotModified(ctx context.Context, fullName string, kind enum.RoleKind) error
	RecordFailure(ctx context.Context, fullName string, fetchErr error) error
}

// Discord is the guild role API used by the reconciler.
type Discord interface {
	Snapshot(ctx context.Context, guildID snowflake.ID) (*roles.GuildSnapshot, error)
	MemberRoles(ctx context.Context, guildID, userID snowflake.ID) (map[snowflake.ID]struct{}, error)
	AddRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error
	RemoveRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error
}

// Fetcher retrieves repository membership from GitHub.
type Fetcher interface {
	FetchContributors(ctx context.Context, owner, name, etag string) (*fetcher.Result, error)
	FetchStargazers(ctx context.Context, owner, name, etag string) (*fetcher.Result, error)
}

// dbStore adapts the database client to Store.
type dbStore struct {
	db database.Client
}

// NewStore creates a Store backed by the database client.
func NewStore(db database.Client) Store {
	return &dbStore{db: db}
}

func (s *dbStore) GetEligibleGuildConfigs(ctx context.Context) ([]*types.GuildConfig, error) {
	return s.db.Model().Guild().GetEligibleGuildConfigs(ctx)
}

func (s *dbStore) GetSyncableAccounts(ctx context.Context) ([]*types.LinkedAccount, error) {
	return s.db.Model().Account().GetSyncableAccounts(ctx)
}

func (s *dbStore) CreateHistory(ctx context.Context, history *types.SyncHistory) error {
	return s.db.Model().History().CreateHistory(ctx, history)
}

func (s *dbStore) FinalizeHistory(ctx context.Context, history *types.SyncHistory) error {
	return s.db.Model().History().FinalizeHistory(ctx, history)
}

func (s *dbStore) PurgeExpiredHistory(ctx context.Context, retention time.Duration) (int64, error) {
	return s.db.Service().History().PurgeExpired(ctx, retention)
}

func (s *dbStore) LoadCachedMembership(
	ctx context.Context, fullName string, kind enum.RoleKind,
) (*service.CachedMembership, error) {
	return s.db.Service().Membership().LoadCachedMembership(ctx, fullName, kind)
}

func (s *dbStore) RecordFetch(
	ctx context.Context, fullName string, kind enum.RoleKind, logins types.LoginSet, etag string,
) error {
	return s.db.Service().Membership().RecordFetch(ctx, fullName, kind, logins, etag)
}

func (s *dbStore) RecordNotModified(ctx context.Context, fullName string, kind enum.RoleKind) error {
	return s.db.Service().Membership().RecordNotModified(ctx, fullName, kind)
}

func (s *dbStore) RecordFailure(ctx context.Context, fullName string, fetchErr error) error {
	return s.db.Service().Membership().RecordFailure(ctx, fullName, fetchErr)
}
