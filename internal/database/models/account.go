package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/robalyx/rolesync/internal/database/dbretry"
	"github.com/robalyx/rolesync/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// AccountModel handles database operations for linked GitHub and Discord identities.
type AccountModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewAccount creates an AccountModel.
func NewAccount(db *bun.DB, logger *zap.Logger) *AccountModel {
	return &AccountModel{
		db:     db,
		logger: logger.Named("db_account"),
	}
}

// UpsertLinkedAccount creates or updates the identities of a user.
// Re-linking refreshes the GitHub username and timestamps.
func (m *AccountModel) UpsertLinkedAccount(ctx context.Context, account *types.LinkedAccount) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}

	account.GitHubUsername = account.GitHubLogin
	account.GitHubLogin = types.NormalizeLogin(account.GitHubLogin)
	account.UpdatedAt = time.Now()

	if account.LinkedAt.IsZero() {
		account.LinkedAt = account.UpdatedAt
	}

	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(account).
			On("CONFLICT (user_id) DO UPDATE").
			Set("github_login = EXCLUDED.github_login").
			Set("github_username = EXCLUDED.github_username").
			Set("discord_id = EXCLUDED.discord_id").
			Set("updated_at = EXCLUDED.updated_at").
			Returning("id, linked_at").
			Exec(ctx)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upsert linked account for user %s: %w", account.UserID, err)
	}

	m.logger.Debug("Upserted linked account",
		zap.String("userID", account.UserID.String()),
		zap.String("githubLogin", account.GitHubLogin),
		zap.Uint64("discordID", uint64(account.DiscordID)))

	return nil
}

// GetByUserID retrieves the linked account of a user.
func (m *AccountModel) GetByUserID(ctx context.Context, userID uuid.UUID) (*types.LinkedAccount, error) {
	return m.getOne(ctx, "user_id = ?", userID)
}

// GetByDiscordID retrieves the linked account of a Discord user.
func (m *AccountModel) GetByDiscordID(ctx context.Context, discordID snowflake.ID) (*types.LinkedAccount, error) {
	return m.getOne(ctx, "discord_id = ?", discordID)
}

// GetByGitHubLogin retrieves the linked account of a GitHub login, ignoring case.
func (m *AccountModel) GetByGitHubLogin(ctx context.Context, login string) (*types.LinkedAccount, error) {
	return m.getOne(ctx, "github_login = ?", types.NormalizeLogin(login))
}

// GetSyncableAccounts retrieves every account with both identities linked.
func (m *AccountModel) GetSyncableAccounts(ctx context.Context) ([]*types.LinkedAccount, error) {
	accounts, err := dbretry.Operation(ctx, func(ctx context.Context) ([]*types.LinkedAccount, error) {
		var accounts []*types.LinkedAccount

		err := m.db.NewSelect().
			Model(&accounts).
			Where("github_login IS NOT NULL").
			Where("discord_id IS NOT NULL").
			Order("discord_id ASC").
			Scan(ctx)

		return accounts, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get syncable accounts: %w", err)
	}

	return accounts, nil
}

// DeleteLinkedAccount removes the linked account of a user.
func (m *AccountModel) DeleteLinkedAccount(ctx context.Context, userID uuid.UUID) error {
	affected, err := dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		result, err := m.db.NewDelete().
			Model((*types.LinkedAccount)(nil)).
			Where("user_id = ?", userID).
			Exec(ctx)
		if err != nil {
			return 0, err
		}

		return result.RowsAffected()
	})
	if err != nil {
		return fmt.Errorf("failed to delete linked account for user %s: %w", userID, err)
	}

	if affected == 0 {
		return types.ErrLinkedAccountNotFound
	}

	return nil
}

func (m *AccountModel) getOne(ctx context.Context, where string, arg any) (*types.LinkedAccount, error) {
	account, err := dbretry.Operation(ctx, func(ctx context.Context) (*types.LinkedAccount, error) {
		var account types.LinkedAccount
		err := m.db.NewSelect().Model(&account).Where(where, arg).Limit(1).Scan(ctx)

		return &account, err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrLinkedAccountNotFound
		}

		return nil, fmt.Errorf("failed to get linked account: %w", err)
	}

	return account, nil
}
