package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robalyx/rolesync/internal/database/dbretry"
	"github.com/robalyx/rolesync/internal/database/models"
	"github.com/robalyx/rolesync/internal/database/types"
	"github.com/robalyx/rolesync/internal/database/types/enum"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// CachedMembership is the persisted view of a repository's members for one role kind.
type CachedMembership struct {
	// ETag of the last successful fetch, empty when never fetched.
	ETag string
	// Logins is nil when there is no cache entry that matches ETag.
	Logins types.LoginSet
}

// MembershipService keeps repository sync state and membership caches consistent.
type MembershipService struct {
	db     *bun.DB
	model  *models.RepositoryModel
	logger *zap.Logger
}

// NewMembership creates a MembershipService.
func NewMembership(db *bun.DB, model *models.RepositoryModel, logger *zap.Logger) *MembershipService {
	return &MembershipService{
		db:     db,
		model:  model,
		logger: logger.Named("membership_service"),
	}
}

// LoadCachedMembership returns the stored ETag and, when the cache agrees with it, the cached logins.
// A cache entry whose ETag differs from the sync state is ignored.
func (s *MembershipService) LoadCachedMembership(
	ctx context.Context, fullName string, kind enum.RoleKind,
) (*CachedMembership, error) {
	state, err := s.model.GetSyncState(ctx, fullName)
	if err != nil {
		return nil, err
	}

	if state == nil || state.ETag(kind) == "" {
		return &CachedMembership{}, nil
	}

	cache, err := s.model.GetMembershipCache(ctx, fullName, kind)
	if err != nil {
		return nil, err
	}

	result := &CachedMembership{ETag: state.ETag(kind)}
	if cache != nil && cache.ETag == result.ETag {
		result.Logins = cache.Set()
	} else {
		s.logger.Debug("Ignoring membership cache with mismatched etag",
			zap.String("repository", fullName),
			zap.String("kind", kind.String()))
	}

	return result, nil
}

// RecordFetch replaces the membership cache and sync state after a full fetch in one transaction.
func (s *MembershipService) RecordFetch(
	ctx context.Context, fullName string, kind enum.RoleKind, logins types.LoginSet, etag string,
) error {
	now := time.Now()
	cache := &types.MembershipCache{
		FullName:  fullName,
		Kind:      kind,
		Logins:    logins.Slice(),
		ETag:      etag,
		FetchedAt: now,
	}

	err := dbretry.Transaction(ctx, s.db, func(ctx context.Context, tx bun.Tx) error {
		if err := s.model.UpsertMembershipCache(ctx, tx, cache); err != nil {
			return err
		}

		// Without an etag the next fetch is unconditional, so clear the stored one
		if etag == "" {
			if err := s.clearETag(ctx, tx, fullName, kind); err != nil {
				return err
			}
		}

		return s.model.MarkSynced(ctx, tx, fullName, kind, etag, now)
	})
	if err != nil {
		return fmt.Errorf("failed to record fetch for %s: %w", fullName, err)
	}

	s.logger.Debug("Recorded repository fetch",
		zap.String("repository", fullName),
		zap.String("kind", kind.String()),
		zap.Int("logins", len(cache.Logins)))

	return nil
}

// RecordNotModified refreshes the sync timestamp after a conditional request matched.
func (s *MembershipService) RecordNotModified(ctx context.Context, fullName string, kind enum.RoleKind) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		return s.model.MarkSynced(ctx, s.db, fullName, kind, "", time.Now())
	})
	if err != nil {
		return fmt.Errorf("failed to record not modified for %s: %w", fullName, err)
	}

	return nil
}

// RecordFailure stores a fetch failure so operators can see it.
func (s *MembershipService) RecordFailure(ctx context.Context, fullName string, fetchErr error) error {
	return s.model.RecordError(ctx, fullName, fetchErr.Error(), time.Now())
}

func (s *MembershipService) clearETag(ctx context.Context, tx bun.IDB, fullName string, kind enum.RoleKind) error {
	column := "contributors_etag"
	if kind == enum.RoleKindStargazer {
		column = "stargazers_etag"
	}

	_, err := tx.NewUpdate().
		Model((*types.RepositorySyncState)(nil)).
		Set("? = ''", bun.Ident(column)).
		Where("full_name = ?", fullName).
		Exec(ctx)

	return err
}
