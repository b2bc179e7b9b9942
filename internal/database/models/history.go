package models

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/rolesync/internal/database/dbretry"
	"github.com/robalyx/rolesync/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// HistoryModel handles database operations for guild sync history.
type HistoryModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewHistory creates a HistoryModel.
func NewHistory(db *bun.DB, logger *zap.Logger) *HistoryModel {
	return &HistoryModel{
		db:     db,
		logger: logger.Named("db_history"),
	}
}

// CreateHistory inserts a new history record.
func (m *HistoryModel) CreateHistory(ctx context.Context, history *types.SyncHistory) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().Model(history).Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create sync history for guild %d: %w", history.GuildID, err)
	}

	return nil
}

// FinalizeHistory writes the outcome of a history record.
// Records that are already finalized are left untouched.
func (m *HistoryModel) FinalizeHistory(ctx context.Context, history *types.SyncHistory) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewUpdate().
			Model(history).
			Column("completed_at", "status", "success", "error",
				"users_processed", "roles_added", "roles_removed", "repositories_failed").
			WherePK().
			Where("completed_at IS NULL").
			Exec(ctx)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to finalize sync history %s: %w", history.ID, err)
	}

	m.logger.Debug("Finalized sync history",
		zap.String("id", history.ID.String()),
		zap.Uint64("guildID", uint64(history.GuildID)),
		zap.String("status", history.Status.String()))

	return nil
}

// GetGuildHistory retrieves the most recent history records of a guild, newest first.
func (m *HistoryModel) GetGuildHistory(
	ctx context.Context, guildID snowflake.ID, limit int,
) ([]*types.SyncHistory, error) {
	histories, err := dbretry.Operation(ctx, func(ctx context.Context) ([]*types.SyncHistory, error) {
		var histories []*types.SyncHistory

		err := m.db.NewSelect().
			Model(&histories).
			Where("guild_id = ?", guildID).
			Order("started_at DESC").
			Limit(limit).
			Scan(ctx)

		return histories, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get sync history for guild %d: %w", guildID, err)
	}

	return histories, nil
}

// PurgeHistoryBefore deletes history records started before the cutoff.
func (m *HistoryModel) PurgeHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	affected, err := dbretry.Operation(ctx, func(ctx context.Context) (int64, error) {
		result, err := m.db.NewDelete().
			Model((*types.SyncHistory)(nil)).
			Where("started_at < ?", cutoff).
			Exec(ctx)
		if err != nil {
			return 0, err
		}

		return result.RowsAffected()
	})
	if err != nil {
		return 0, fmt.Errorf("failed to purge sync history: %w", err)
	}

	if affected > 0 {
		m.logger.Info("Purged old sync history",
			zap.Int64("count", affected),
			zap.Time("cutoff", cutoff))
	}

	return affected, nil
}
