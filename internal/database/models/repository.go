package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robalyx/rolesync/internal/database/dbretry"
	"github.com/robalyx/rolesync/internal/database/types"
	"github.com/robalyx/rolesync/internal/database/types/enum"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// RepositoryModel handles database operations for repository fetch state and cached membership.
type RepositoryModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewRepository creates a RepositoryModel.
func NewRepository(db *bun.DB, logger *zap.Logger) *RepositoryModel {
	return &RepositoryModel{
		db:     db,
		logger: logger.Named("db_repository"),
	}
}

// GetSyncState retrieves the sync state of a repository.
// Returns nil without error when the repository has never been fetched.
func (m *RepositoryModel) GetSyncState(ctx context.Context, fullName string) (*types.RepositorySyncState, error) {
	state, err := dbretry.Operation(ctx, func(ctx context.Context) (*types.RepositorySyncState, error) {
		var state types.RepositorySyncState
		err := m.db.NewSelect().Model(&state).Where("full_name = ?", fullName).Scan(ctx)

		return &state, err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get sync state for %s: %w", fullName, err)
	}

	return state, nil
}

// GetMembershipCache retrieves the cached member list of a repository for one role kind.
// Returns nil without error when nothing is cached.
func (m *RepositoryModel) GetMembershipCache(
	ctx context.Context, fullName string, kind enum.RoleKind,
) (*types.MembershipCache, error) {
	cache, err := dbretry.Operation(ctx, func(ctx context.Context) (*types.MembershipCache, error) {
		var cache types.MembershipCache

		err := m.db.NewSelect().
			Model(&cache).
			Where("full_name = ?", fullName).
			Where("kind = ?", kind).
			Scan(ctx)

		return &cache, err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get membership cache for %s (%s): %w", fullName, kind, err)
	}

	return cache, nil
}

// UpsertMembershipCache replaces the cached member list inside the given transaction.
func (m *RepositoryModel) UpsertMembershipCache(ctx context.Context, tx bun.IDB, cache *types.MembershipCache) error {
	_, err := tx.NewInsert().
		Model(cache).
		On("CONFLICT (full_name, kind) DO UPDATE").
		Set("logins = EXCLUDED.logins").
		Set("etag = EXCLUDED.etag").
		Set("fetched_at = EXCLUDED.fetched_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert membership cache for %s: %w", cache.FullName, err)
	}

	return nil
}

// MarkSynced records a successful fetch for one role kind inside the given transaction.
// An empty etag keeps the stored one, which is the case for not modified responses.
func (m *RepositoryModel) MarkSynced(
	ctx context.Context, tx bun.IDB, fullName string, kind enum.RoleKind, etag string, syncedAt time.Time,
) error {
	syncedColumn, etagColumn := kindColumns(kind)

	state := &types.RepositorySyncState{FullName: fullName, UpdatedAt: syncedAt}

	query := tx.NewInsert().
		Model(state).
		Value(syncedColumn, "?", syncedAt).
		On("CONFLICT (full_name) DO UPDATE").
		Set("? = EXCLUDED.?", bun.Ident(syncedColumn), bun.Ident(syncedColumn)).
		Set("last_error = ''").
		Set("last_error_at = NULL").
		Set("updated_at = EXCLUDED.updated_at")

	if etag != "" {
		query = query.
			Value(etagColumn, "?", etag).
			Set("? = EXCLUDED.?", bun.Ident(etagColumn), bun.Ident(etagColumn))
	}

	if _, err := query.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mark %s synced: %w", fullName, err)
	}

	return nil
}

// RecordError stores the last fetch error of a repository.
func (m *RepositoryModel) RecordError(ctx context.Context, fullName string, message string, at time.Time) error {
	state := &types.RepositorySyncState{
		FullName:    fullName,
		LastError:   message,
		LastErrorAt: at,
		UpdatedAt:   at,
	}

	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(state).
			On("CONFLICT (full_name) DO UPDATE").
			Set("last_error = EXCLUDED.last_error").
			Set("last_error_at = EXCLUDED.last_error_at").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record error for %s: %w", fullName, err)
	}

	m.logger.Debug("Recorded repository fetch error",
		zap.String("repository", fullName),
		zap.String("error", message))

	return nil
}

// kindColumns returns the synced-at and etag columns for a role kind.
func kindColumns(kind enum.RoleKind) (string, string) {
	if kind == enum.RoleKindStargazer {
		return "stargazers_synced_at", "stargazers_etag"
	}

	return "contributors_synced_at", "contributors_etag"
}
