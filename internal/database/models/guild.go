package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/rolesync/internal/database/dbretry"
	"github.com/robalyx/rolesync/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// GuildModel handles database operations for guild role configurations.
type GuildModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewGuild creates a GuildModel.
func NewGuild(db *bun.DB, logger *zap.Logger) *GuildModel {
	return &GuildModel{
		db:     db,
		logger: logger.Named("db_guild"),
	}
}

// GetGuildConfig retrieves a guild configuration along with its followed repositories.
func (m *GuildModel) GetGuildConfig(ctx context.Context, guildID snowflake.ID) (*types.GuildConfig, error) {
	config, err := dbretry.Operation(ctx, func(ctx context.Context) (*types.GuildConfig, error) {
		var config types.GuildConfig

		err := m.db.NewSelect().
			Model(&config).
			Relation("Repositories", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Order("full_name ASC")
			}).
			Where("guild_config.guild_id = ?", guildID).
			Scan(ctx)

		return &config, err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrGuildConfigNotFound
		}

		return nil, fmt.Errorf("failed to get guild config %d: %w", guildID, err)
	}

	return config, nil
}

// GetEligibleGuildConfigs retrieves guilds that have at least one role configured
// and follow at least one repository.
func (m *GuildModel) GetEligibleGuildConfigs(ctx context.Context) ([]*types.GuildConfig, error) {
	configs, err := dbretry.Operation(ctx, func(ctx context.Context) ([]*types.GuildConfig, error) {
		var configs []*types.GuildConfig

		err := m.db.NewSelect().
			Model(&configs).
			Relation("Repositories", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Order("full_name ASC")
			}).
			WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Where("guild_config.contributor_role_id IS NOT NULL").
					WhereOr("guild_config.stargazer_role_id IS NOT NULL")
			}).
			Where("EXISTS (SELECT 1 FROM followed_repositories fr WHERE fr.guild_id = guild_config.guild_id)").
			Order("guild_config.guild_id ASC").
			Scan(ctx)

		return configs, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get eligible guild configs: %w", err)
	}

	m.logger.Debug("Retrieved eligible guild configs", zap.Int("count", len(configs)))

	return configs, nil
}

// UpsertGuildRoles creates or updates the role assignments of a guild.
// A zero role ID clears that role kind.
func (m *GuildModel) UpsertGuildRoles(
	ctx context.Context, guildID, contributorRoleID, stargazerRoleID snowflake.ID,
) error {
	config := &types.GuildConfig{
		GuildID:           guildID,
		ContributorRoleID: contributorRoleID,
		StargazerRoleID:   stargazerRoleID,
		UpdatedAt:         time.Now(),
	}

	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(config).
			On("CONFLICT (guild_id) DO UPDATE").
			Set("contributor_role_id = EXCLUDED.contributor_role_id").
			Set("stargazer_role_id = EXCLUDED.stargazer_role_id").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert guild roles %d: %w", guildID, err)
	}

	m.logger.Debug("Upserted guild roles",
		zap.Uint64("guildID", uint64(guildID)),
		zap.Uint64("contributorRoleID", uint64(contributorRoleID)),
		zap.Uint64("stargazerRoleID", uint64(stargazerRoleID)))

	return nil
}

// FollowRepository adds a repository to a guild. Following the same repository twice is a no-op.
func (m *GuildModel) FollowRepository(ctx context.Context, guildID snowflake.ID, fullName string) error {
	owner, name, err := types.ParseRepository(fullName)
	if err != nil {
		return err
	}

	repo := &types.FollowedRepository{
		GuildID:  guildID,
		FullName: types.RepositoryFullName(owner, name),
		Owner:    owner,
		Name:     name,
		AddedAt:  time.Now(),
	}

	err = dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		// Make sure the parent row exists so the foreign key holds
		if _, err := tx.NewInsert().
			Model(&types.GuildConfig{GuildID: guildID}).
			On("CONFLICT (guild_id) DO NOTHING").
			Exec(ctx); err != nil {
			return err
		}

		_, err := tx.NewInsert().
			Model(repo).
			On("CONFLICT (guild_id, full_name) DO NOTHING").
			Exec(ctx)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to follow repository %s: %w", repo.FullName, err)
	}

	m.logger.Debug("Followed repository",
		zap.Uint64("guildID", uint64(guildID)),
		zap.String("repository", repo.FullName))

	return nil
}

// UnfollowRepository removes a repository from a guild.
func (m *GuildModel) UnfollowRepository(ctx context.Context, guildID snowflake.ID, fullName string) error {
	owner, name, err := types.ParseRepository(fullName)
	if err != nil {
		return err
	}

	key := types.RepositoryFullName(owner, name)

	affected, err := dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		result, err := m.db.NewDelete().
			Model((*types.FollowedRepository)(nil)).
			Where("guild_id = ?", guildID).
			Where("full_name = ?", key).
			Exec(ctx)
		if err != nil {
			return 0, err
		}

		return result.RowsAffected()
	})
	if err != nil {
		return fmt.Errorf("failed to unfollow repository %s: %w", key, err)
	}

	if affected == 0 {
		return types.ErrRepositoryNotTracked
	}

	return nil
}

// DeleteGuildConfig removes a guild configuration and its followed repositories.
func (m *GuildModel) DeleteGuildConfig(ctx context.Context, guildID snowflake.ID) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewDelete().
			Model((*types.GuildConfig)(nil)).
			Where("guild_id = ?", guildID).
			Exec(ctx)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete guild config %d: %w", guildID, err)
	}

	return nil
}
