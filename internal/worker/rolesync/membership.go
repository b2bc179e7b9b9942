package rolesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robalyx/rolesync/internal/database/service"
	"github.com/robalyx/rolesync/internal/database/types"
	"github.com/robalyx/rolesync/internal/database/types/enum"
	"github.com/robalyx/rolesync/internal/github/fetcher"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrRepositoryNotFound is recorded when a followed repository is deleted or private.
var ErrRepositoryNotFound = errors.New("repository not found or not visible")

// resolved is the membership of one repository and kind for the current pass.
type resolved struct {
	logins types.LoginSet
	err    error
}

// ResolverStats counts repository fetch outcomes during a pass.
type ResolverStats struct {
	Fetched     int `json:"fetched"`
	NotModified int `json:"notModified"`
	Failed      int `json:"failed"`
}

// Resolver loads repository membership at most once per repository and kind.
// A new Resolver is created for every pass so guilds following the same
// repository share a single fetch.
type Resolver struct {
	store   Store
	fetcher Fetcher
	logger  *zap.Logger

	group   singleflight.Group
	mu      sync.Mutex
	results map[string]*resolved

	fetched     atomic.Int64
	notModified atomic.Int64
	failed      atomic.Int64
}

// NewResolver creates a Resolver for one pass.
func NewResolver(store Store, fetcher Fetcher, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:   store,
		fetcher: fetcher,
		logger:  logger.Named("membership_resolver"),
		results: make(map[string]*resolved),
	}
}

// Resolve returns the logins holding the kind in the repository.
// A failed fetch yields a nil set and the error; the stored cache is left intact
// so the next pass can still revalidate it.
func (r *Resolver) Resolve(
	ctx context.Context, repo *types.FollowedRepository, kind enum.RoleKind,
) (types.LoginSet, error) {
	key := repo.FullName + "|" + kind.String()

	if result, ok := r.lookup(key); ok {
		return result.logins, result.err
	}

	v, _, _ := r.group.Do(key, func() (any, error) {
		if result, ok := r.lookup(key); ok {
			return result, nil
		}

		result := r.load(ctx, repo, kind)

		r.mu.Lock()
		r.results[key] = result
		r.mu.Unlock()

		return result, nil
	})

	result := v.(*resolved)

	return result.logins, result.err
}

// Stats returns the fetch outcomes so far.
func (r *Resolver) Stats() ResolverStats {
	return ResolverStats{
		Fetched:     int(r.fetched.Load()),
		NotModified: int(r.notModified.Load()),
		Failed:      int(r.failed.Load()),
	}
}

func (r *Resolver) lookup(key string) (*resolved, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, ok := r.results[key]

	return result, ok
}

func (r *Resolver) load(ctx context.Context, repo *types.FollowedRepository, kind enum.RoleKind) *resolved {
	logger := r.logger.With(
		zap.String("repository", repo.FullName),
		zap.String("kind", kind.String()))

	cached, err := r.store.LoadCachedMembership(ctx, repo.FullName, kind)
	if err != nil {
		logger.Warn("Failed to load cached membership, fetching unconditionally", zap.Error(err))

		cached = &service.CachedMembership{}
	}

	// Only send a validator when there is a trusted set to fall back on
	etag := ""
	if cached.Logins != nil {
		etag = cached.ETag
	}

	result, err := r.fetch(ctx, repo, kind, etag)
	if err != nil {
		r.failed.Add(1)

		if fetcher.IsNotFound(err) {
			err = fmt.Errorf("%w: %w", ErrRepositoryNotFound, err)
		}

		if recordErr := r.store.RecordFailure(ctx, repo.FullName, err); recordErr != nil {
			logger.Error("Failed to record repository failure", zap.Error(recordErr))
		}

		logger.Warn("Failed to fetch repository membership", zap.Error(err))

		return &resolved{err: err}
	}

	if result.NotModified {
		r.notModified.Add(1)

		if err := r.store.RecordNotModified(ctx, repo.FullName, kind); err != nil {
			logger.Error("Failed to record not modified", zap.Error(err))
		}

		logger.Debug("Repository membership not modified", zap.Int("logins", cached.Logins.Len()))

		return &resolved{logins: cached.Logins}
	}

	r.fetched.Add(1)

	if err := r.store.RecordFetch(ctx, repo.FullName, kind, result.Logins, result.ETag); err != nil {
		logger.Error("Failed to store repository membership", zap.Error(err))
	}

	logger.Debug("Fetched repository membership", zap.Int("logins", result.Logins.Len()))

	return &resolved{logins: result.Logins}
}

func (r *Resolver) fetch(
	ctx context.Context, repo *types.FollowedRepository, kind enum.RoleKind, etag string,
) (*fetcher.Result, error) {
	if kind == enum.RoleKindStargazer {
		return r.fetcher.FetchStargazers(ctx, repo.Owner, repo.Name, etag)
	}

	return r.fetcher.FetchContributors(ctx, repo.Owner, repo.Name, etag)
}
