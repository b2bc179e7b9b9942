package migrations

import (
	"context"
	"fmt"

	"github.com/robalyx/rolesync/internal/database/types"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			tables := []struct {
				model any
				name  string
			}{
				{(*types.GuildConfig)(nil), "guild_configs"},
				{(*types.FollowedRepository)(nil), "followed_repositories"},
				{(*types.LinkedAccount)(nil), "linked_accounts"},
				{(*types.RepositorySyncState)(nil), "repository_sync_states"},
				{(*types.MembershipCache)(nil), "membership_caches"},
				{(*types.SyncHistory)(nil), "sync_histories"},
			}

			for _, table := range tables {
				if _, err := tx.NewCreateTable().
					Model(table.model).
					IfNotExists().
					Exec(ctx); err != nil {
					return fmt.Errorf("failed to create table %s: %w", table.name, err)
				}
			}

			indexes := []string{
				`ALTER TABLE followed_repositories
				 ADD CONSTRAINT fk_followed_repositories_guild
				 FOREIGN KEY (guild_id) REFERENCES guild_configs (guild_id) ON DELETE CASCADE`,
				`CREATE INDEX IF NOT EXISTS idx_followed_repositories_full_name
				 ON followed_repositories (full_name)`,
				`CREATE INDEX IF NOT EXISTS idx_linked_accounts_syncable
				 ON linked_accounts (discord_id)
				 WHERE github_login IS NOT NULL AND discord_id IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_sync_histories_guild_started
				 ON sync_histories (guild_id, started_at DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_sync_histories_started
				 ON sync_histories (started_at)`,
			}

			for _, index := range indexes {
				if _, err := tx.ExecContext(ctx, index); err != nil {
					return fmt.Errorf("failed to create index: %w", err)
				}
			}

			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			models := []any{
				(*types.SyncHistory)(nil),
				(*types.MembershipCache)(nil),
				(*types.RepositorySyncState)(nil),
				(*types.LinkedAccount)(nil),
				(*types.FollowedRepository)(nil),
				(*types.GuildConfig)(nil),
			}

			for _, model := range models {
				if _, err := tx.NewDropTable().Model(model).IfExists().Cascade().Exec(ctx); err != nil {
					return fmt.Errorf("failed to drop table: %w", err)
				}
			}

			return nil
		})
	})
}
