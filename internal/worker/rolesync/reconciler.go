package rolesync

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robalyx/rolesync/internal/database/types"
	"github.com/robalyx/rolesync/internal/database/types/enum"
	"github.com/robalyx/rolesync/internal/discord/roles"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// ErrGuildSyncFailed wraps every reason a guild attempt ends in the failed state.
var ErrGuildSyncFailed = errors.New("guild sync failed")

// Reconciler brings the roles of one guild in line with GitHub membership.
type Reconciler struct {
	store           Store
	discord         Discord
	userConcurrency int
	now             func() time.Time
	logger          *zap.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(store Store, discord Discord, userConcurrency int, logger *zap.Logger) *Reconciler {
	if userConcurrency <= 0 {
		userConcurrency = 1
	}

	return &Reconciler{
		store:           store,
		discord:         discord,
		userConcurrency: userConcurrency,
		now:             time.Now,
		logger:          logger.Named("reconciler"),
	}
}

// guildRun carries the state of one guild attempt.
type guildRun struct {
	guild      *types.GuildConfig
	history    *types.SyncHistory
	membership Membership
	kinds      []enum.RoleKind
	logger     *zap.Logger

	usersProcessed atomic.Int64
	rolesAdded     atomic.Int64
	rolesRemoved   atomic.Int64
	usersFailed    atomic.Int64
}

// Reconcile runs one attempt for the guild and returns its finalized history.
// The returned error is non-nil when the attempt ended in the failed state.
func (r *Reconciler) Reconcile(
	ctx context.Context, guild *types.GuildConfig, resolver *Resolver,
) (*types.SyncHistory, error) {
	run := &guildRun{
		guild:      guild,
		history:    types.NewSyncHistory(guild.GuildID, r.now()),
		membership: make(Membership),
		kinds:      guild.ConfiguredKinds(),
		logger:     r.logger.With(zap.Uint64("guildID", uint64(guild.GuildID))),
	}

	if err := r.store.CreateHistory(ctx, run.history); err != nil {
		run.logger.Error("Failed to create sync history", zap.Error(err))
	}

	run.logger.Debug("Guild sync started",
		zap.Int("repositories", len(guild.Repositories)),
		zap.Int("roleKinds", len(run.kinds)))

	if err := r.checkPreconditions(ctx, run); err != nil {
		return r.finish(ctx, run, err)
	}

	run.history.Status = enum.SyncStatusFetchingData
	r.fetchMembership(ctx, run, resolver)

	run.history.Status = enum.SyncStatusProcessingUsers
	if err := r.processUsers(ctx, run); err != nil {
		return r.finish(ctx, run, err)
	}

	return r.finish(ctx, run, nil)
}

// checkPreconditions verifies the bot can assign every configured role before anything is fetched.
func (r *Reconciler) checkPreconditions(ctx context.Context, run *guildRun) error {
	snapshot, err := r.discord.Snapshot(ctx, run.guild.GuildID)
	if err != nil {
		return err
	}

	if !snapshot.CanManageRoles() {
		return roles.ErrMissingPermission
	}

	for _, kind := range run.kinds {
		if err := snapshot.CheckAssignable(run.guild.RoleID(kind)); err != nil {
			return fmt.Errorf("%s role: %w", kind.String(), err)
		}
	}

	return nil
}

// fetchMembership resolves every followed repository for the configured kinds.
// Failed repositories are counted and contribute no logins this pass.
func (r *Reconciler) fetchMembership(ctx context.Context, run *guildRun, resolver *Resolver) {
	failed := make(map[string]struct{})

	for _, repo := range run.guild.Repositories {
		for _, kind := range run.kinds {
			logins, err := resolver.Resolve(ctx, repo, kind)
			if err != nil {
				failed[repo.FullName] = struct{}{}
			}

			run.membership.Set(repo.FullName, kind, logins)
		}
	}

	run.history.RepositoriesFailed = len(failed)
}

// processUsers applies role changes for every linked account in the guild.
func (r *Reconciler) processUsers(ctx context.Context, run *guildRun) error {
	accounts, err := r.store.GetSyncableAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load linked accounts: %w", err)
	}

	p := pool.New().WithMaxGoroutines(r.userConcurrency)

	for _, account := range accounts {
		if !account.IsSyncable() {
			continue
		}

		p.Go(func() {
			r.processUser(ctx, run, account)
		})
	}

	p.Wait()

	return nil
}

// processUser applies the role changes of one member sequentially.
func (r *Reconciler) processUser(ctx context.Context, run *guildRun, account *types.LinkedAccount) {
	guildID := run.guild.GuildID
	logger := run.logger.With(
		zap.Uint64("discordID", uint64(account.DiscordID)),
		zap.String("githubLogin", account.GitHubLogin))

	held, err := r.discord.MemberRoles(ctx, guildID, account.DiscordID)
	if err != nil {
		if !errors.Is(err, roles.ErrMemberNotFound) {
			run.usersFailed.Add(1)
			logger.Warn("Failed to get member roles", zap.Error(err))
		}

		return
	}

	run.usersProcessed.Add(1)

	failed := false
	defer func() {
		if failed {
			run.usersFailed.Add(1)
		}
	}()

	for _, kind := range run.kinds {
		roleID := run.guild.RoleID(kind)
		desired := Decide(kind, account.GitHubLogin, run.guild, run.membership)
		_, has := held[roleID]

		switch {
		case desired && !has:
			if err := r.discord.AddRole(ctx, guildID, account.DiscordID, roleID); err != nil {
				failed = true
				logger.Warn("Failed to grant role", zap.String("kind", kind.String()), zap.Error(err))

				continue
			}

			run.rolesAdded.Add(1)
		case !desired && has:
			if err := r.discord.RemoveRole(ctx, guildID, account.DiscordID, roleID); err != nil {
				failed = true
				logger.Warn("Failed to revoke role", zap.String("kind", kind.String()), zap.Error(err))

				continue
			}

			run.rolesRemoved.Add(1)
		}
	}
}

// finish finalizes the history record in its terminal state.
func (r *Reconciler) finish(ctx context.Context, run *guildRun, cause error) (*types.SyncHistory, error) {
	history := run.history
	history.CompletedAt = r.now()
	history.UsersProcessed = int(run.usersProcessed.Load())
	history.RolesAdded = int(run.rolesAdded.Load())
	history.RolesRemoved = int(run.rolesRemoved.Load())

	var err error
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrGuildSyncFailed, cause)
		history.Status = enum.SyncStatusFailed
		history.Success = false
		history.Error = cause.Error()
	} else {
		history.Status = enum.SyncStatusCompleted
		history.Success = true
	}

	// The record must be written even when the pass is shutting down
	if finalizeErr := r.store.FinalizeHistory(context.WithoutCancel(ctx), history); finalizeErr != nil {
		run.logger.Error("Failed to finalize sync history", zap.Error(finalizeErr))
	}

	fields := []zap.Field{
		zap.String("status", history.Status.String()),
		zap.Int("usersProcessed", history.UsersProcessed),
		zap.Int64("usersFailed", run.usersFailed.Load()),
		zap.Int("rolesAdded", history.RolesAdded),
		zap.Int("rolesRemoved", history.RolesRemoved),
		zap.Int("repositoriesFailed", history.RepositoriesFailed),
		zap.Duration("duration", history.Duration()),
	}

	if cause != nil {
		run.logger.Warn("Guild sync failed", append(fields, zap.Error(cause))...)
	} else {
		run.logger.Info("Guild sync completed", fields...)
	}

	return history, err
}
