package rolesync_test

import (
	"net/http"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/rolesync/internal/database/types"
	"github.com/robalyx/rolesync/internal/database/types/enum"
	"github.com/robalyx/rolesync/internal/discord/roles"
	"github.com/robalyx/rolesync/internal/github/fetcher"
	"github.com/robalyx/rolesync/internal/worker/rolesync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	guildID snowflake.ID = 1000
	aliceID snowflake.ID = 2001
	bobID   snowflake.ID = 2002
	carolID snowflake.ID = 2003
)

type env struct {
	store      *fakeStore
	fetcher    *fakeFetcher
	discord    *fakeDiscord
	reconciler *rolesync.Reconciler
}

func newEnv() *env {
	store := newFakeStore()
	discord := newFakeDiscord()

	return &env{
		store:      store,
		fetcher:    newFakeFetcher(),
		discord:    discord,
		reconciler: rolesync.NewReconciler(store, discord, 3, zap.NewNop()),
	}
}

func (e *env) reconcile(t *testing.T, guild *types.GuildConfig) (*types.SyncHistory, error) {
	t.Helper()

	resolver := rolesync.NewResolver(e.store, e.fetcher, zap.NewNop())

	return e.reconciler.Reconcile(t.Context(), guild, resolver)
}

func contributorGuild(repos ...string) *types.GuildConfig {
	return &types.GuildConfig{
		GuildID:           guildID,
		ContributorRoleID: contributorRole,
		Repositories:      followed(repos...),
	}
}

func TestReconcileGrantsMixedCaseLogin(t *testing.T) {
	t.Parallel()

	e := newEnv()
	e.discord.addGuild(guildID)
	e.discord.addMember(guildID, aliceID)
	e.store.accounts = []*types.LinkedAccount{{GitHubLogin: "alice", DiscordID: aliceID}}
	e.fetcher.set("acme/widgets", enum.RoleKindContributor, upstream{logins: []string{"Alice"}, etag: `"v1"`})

	history, err := e.reconcile(t, contributorGuild("acme/widgets"))
	require.NoError(t, err)

	assert.Equal(t, enum.SyncStatusCompleted, history.Status)
	assert.True(t, history.Success)
	assert.Equal(t, 1, history.RolesAdded)
	assert.Equal(t, 0, history.RolesRemoved)
	assert.Equal(t, 1, history.UsersProcessed)
	assert.False(t, history.CompletedAt.IsZero())
	assert.True(t, e.discord.hasRole(guildID, aliceID, contributorRole))

	// Stargazer data is never requested when no stargazer role is configured
	assert.Equal(t, 0, e.fetcher.callCount("acme/widgets", enum.RoleKindStargazer))
	assert.Equal(t, 1, e.store.created)
	require.Len(t, e.store.histories(), 1)
}

func TestReconcileIsIdempotent(t *testing.T) {
	t.Parallel()

	e := newEnv()
	e.discord.addGuild(guildID)
	e.discord.addMember(guildID, aliceID)
	e.discord.addMember(guildID, bobID, contributorRole)
	e.store.accounts = []*types.LinkedAccount{
		{GitHubLogin: "alice", DiscordID: aliceID},
		{GitHubLogin: "bob", DiscordID: bobID},
	}
	e.fetcher.set("acme/widgets", enum.RoleKindContributor, upstream{logins: []string{"alice"}, etag: `"v1"`})

	first, err := e.reconcile(t, contributorGuild("acme/widgets"))
	require.NoError(t, err)
	assert.Equal(t, 1, first.RolesAdded)
	assert.Equal(t, 1, first.RolesRemoved)

	// Next cycle: GitHub answers 304 and the cached set is reused
	second, err := e.reconcile(t, contributorGuild("acme/widgets"))
	require.NoError(t, err)

	assert.Equal(t, enum.SyncStatusCompleted, second.Status)
	assert.Equal(t, 0, second.RolesAdded)
	assert.Equal(t, 0, second.RolesRemoved)
	assert.Equal(t, 2, e.discord.mutationCount())
	assert.Equal(t, []string{"", `"v1"`}, e.fetcher.etags["acme/widgets|Contributor"])
	assert.Equal(t, 1, e.store.notModified)
	assert.True(t, e.discord.hasRole(guildID, aliceID, contributorRole))
	assert.False(t, e.discord.hasRole(guildID, bobID, contributorRole))
}

func TestReconcileStargazerAndContributorIndependently(t *testing.T) {
	t.Parallel()

	e := newEnv()
	e.discord.addGuild(guildID)
	e.discord.addMember(guildID, aliceID)
	e.discord.addMember(guildID, bobID)
	e.store.accounts = []*types.LinkedAccount{
		{GitHubLogin: "alice", DiscordID: aliceID},
		{GitHubLogin: "bob", DiscordID: bobID},
	}
	e.fetcher.set("acme/widgets", enum.RoleKindContributor, upstream{logins: []string{"alice"}})
	e.fetcher.set("acme/widgets", enum.RoleKindStargazer, upstream{logins: []string{"alice", "bob"}})

	guild := contributorGuild("acme/widgets")
	guild.StargazerRoleID = stargazerRole

	history, err := e.reconcile(t, guild)
	require.NoError(t, err)

	assert.Equal(t, 3, history.RolesAdded)
	assert.True(t, e.discord.hasRole(guildID, aliceID, contributorRole))
	assert.True(t, e.discord.hasRole(guildID, aliceID, stargazerRole))
	assert.False(t, e.discord.hasRole(guildID, bobID, contributorRole))
	assert.True(t, e.discord.hasRole(guildID, bobID, stargazerRole))
}

func TestReconcilePartialRepositoryFailure(t *testing.T) {
	t.Parallel()

	e := newEnv()
	e.discord.addGuild(guildID)
	e.discord.addMember(guildID, aliceID)
	e.discord.addMember(guildID, bobID)
	e.store.accounts = []*types.LinkedAccount{
		{GitHubLogin: "alice", DiscordID: aliceID},
		{GitHubLogin: "bob", DiscordID: bobID},
	}
	e.fetcher.set("acme/broken", enum.RoleKindContributor, upstream{err: errUpstream})
	e.fetcher.set("acme/widgets", enum.RoleKindContributor, upstream{logins: []string{"bob"}})

	history, err := e.reconcile(t, contributorGuild("acme/broken", "acme/widgets"))
	require.NoError(t, err)

	assert.Equal(t, enum.SyncStatusCompleted, history.Status)
	assert.Equal(t, 1, history.RepositoriesFailed)
	assert.Equal(t, 1, history.RolesAdded)
	assert.True(t, e.discord.hasRole(guildID, bobID, contributorRole))
	assert.False(t, e.discord.hasRole(guildID, aliceID, contributorRole))
	assert.Equal(t, 1, e.store.failures["acme/broken"])
}

func TestReconcileFailedFetchCountsRepositoryAsEmpty(t *testing.T) {
	t.Parallel()

	e := newEnv()
	e.discord.addGuild(guildID)
	e.discord.addMember(guildID, aliceID, contributorRole)
	e.store.accounts = []*types.LinkedAccount{{GitHubLogin: "alice", DiscordID: aliceID}}
	require.NoError(t, e.store.RecordFetch(t.Context(), "acme/widgets", enum.RoleKindContributor,
		types.NewLoginSet("alice"), `"v1"`))
	e.fetcher.set("acme/widgets", enum.RoleKindContributor, upstream{err: errUpstream})

	history, err := e.reconcile(t, contributorGuild("acme/widgets"))
	require.NoError(t, err)

	assert.Equal(t, 1, history.RepositoriesFailed)
	assert.Equal(t, 1, history.RolesRemoved)
	assert.False(t, e.discord.hasRole(guildID, aliceID, contributorRole))

	// The cache survives the failure and is revalidated on the next pass
	cached, err := e.store.LoadCachedMembership(t.Context(), "acme/widgets", enum.RoleKindContributor)
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, cached.ETag)
	assert.True(t, cached.Logins.Contains("alice"))
}

func TestReconcileRecordsMissingRepository(t *testing.T) {
	t.Parallel()

	e := newEnv()
	e.discord.addGuild(guildID)
	e.discord.addMember(guildID, aliceID)
	e.store.accounts = []*types.LinkedAccount{{GitHubLogin: "alice", DiscordID: aliceID}}
	e.fetcher.set("acme/gone", enum.RoleKindContributor, upstream{err: &fetcher.APIError{
		Kind:       fetcher.KindNotFound,
		StatusCode: http.StatusNotFound,
		Err:        errUpstream,
	}})
	e.fetcher.set("acme/broken", enum.RoleKindContributor, upstream{err: errUpstream})

	history, err := e.reconcile(t, contributorGuild("acme/gone", "acme/broken"))
	require.NoError(t, err)
	assert.Equal(t, 2, history.RepositoriesFailed)

	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	require.ErrorIs(t, e.store.lastErrors["acme/gone"], rolesync.ErrRepositoryNotFound)
	assert.Contains(t, e.store.lastErrors["acme/gone"].Error(), "repository not found or not visible")
	require.ErrorIs(t, e.store.lastErrors["acme/broken"], errUpstream)
	assert.NotErrorIs(t, e.store.lastErrors["acme/broken"], rolesync.ErrRepositoryNotFound)
}

func TestReconcileCountsFailedUserOnce(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)

	e := newEnv()
	e.reconciler = rolesync.NewReconciler(e.store, e.discord, 3, zap.New(core))
	e.discord.addGuild(guildID)
	e.discord.addMember(guildID, aliceID)
	e.discord.addMember(guildID, bobID)
	e.discord.failUsers[aliceID] = errUpstream
	e.store.accounts = []*types.LinkedAccount{
		{GitHubLogin: "alice", DiscordID: aliceID},
		{GitHubLogin: "bob", DiscordID: bobID},
	}
	e.fetcher.set("acme/widgets", enum.RoleKindContributor, upstream{logins: []string{"alice", "bob"}})
	e.fetcher.set("acme/widgets", enum.RoleKindStargazer, upstream{logins: []string{"alice"}})

	guild := contributorGuild("acme/widgets")
	guild.StargazerRoleID = stargazerRole

	history, err := e.reconcile(t, guild)
	require.NoError(t, err)

	assert.Equal(t, enum.SyncStatusCompleted, history.Status)
	assert.Equal(t, 2, history.UsersProcessed)
	assert.Equal(t, 1, history.RolesAdded)
	assert.True(t, e.discord.hasRole(guildID, bobID, contributorRole))

	// Both of alice's grants failed, but she is one failed user
	completed := logs.FilterMessage("Guild sync completed").All()
	require.Len(t, completed, 1)
	assert.Equal(t, int64(1), completed[0].ContextMap()["usersFailed"])
	assert.Equal(t, 2, logs.FilterMessage("Failed to grant role").Len())
}

func TestReconcileSkipsNonMembers(t *testing.T) {
	t.Parallel()

	e := newEnv()
	e.discord.addGuild(guildID)
	e.discord.addMember(guildID, aliceID)
	e.store.accounts = []*types.LinkedAccount{
		{GitHubLogin: "alice", DiscordID: aliceID},
		{GitHubLogin: "carol", DiscordID: carolID},
		{GitHubLogin: "", DiscordID: bobID},
	}
	e.fetcher.set("acme/widgets", enum.RoleKindContributor, upstream{logins: []string{"alice", "carol"}})

	history, err := e.reconcile(t, contributorGuild("acme/widgets"))
	require.NoError(t, err)

	assert.Equal(t, 1, history.UsersProcessed)
	assert.Equal(t, 1, history.RolesAdded)
}

func TestReconcilePreconditionFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(snapshot *roles.GuildSnapshot)
		noGuild bool
		wantErr error
	}{
		{
			name: "stargazer role above the bot",
			mutate: func(snapshot *roles.GuildSnapshot) {
				role := snapshot.Roles[stargazerRole]
				role.Position = 9
				snapshot.Roles[stargazerRole] = role
			},
			wantErr: roles.ErrRoleHierarchy,
		},
		{
			name: "role at the bot position",
			mutate: func(snapshot *roles.GuildSnapshot) {
				snapshot.BotPosition = 2
			},
			wantErr: roles.ErrRoleHierarchy,
		},
		{
			name: "missing permission",
			mutate: func(snapshot *roles.GuildSnapshot) {
				snapshot.BotPermissions = 0
			},
			wantErr: roles.ErrMissingPermission,
		},
		{
			name: "deleted role",
			mutate: func(snapshot *roles.GuildSnapshot) {
				delete(snapshot.Roles, contributorRole)
			},
			wantErr: roles.ErrRoleNotFound,
		},
		{
			name:    "guild not found",
			noGuild: true,
			wantErr: roles.ErrGuildNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := newEnv()
			if !tt.noGuild {
				snapshot := e.discord.addGuild(guildID)
				tt.mutate(snapshot)
				e.discord.addMember(guildID, aliceID, stargazerRole)
			}

			e.store.accounts = []*types.LinkedAccount{{GitHubLogin: "alice", DiscordID: aliceID}}
			e.fetcher.set("acme/widgets", enum.RoleKindContributor, upstream{logins: []string{"alice"}})

			guild := contributorGuild("acme/widgets")
			guild.StargazerRoleID = stargazerRole

			history, err := e.reconcile(t, guild)
			require.ErrorIs(t, err, rolesync.ErrGuildSyncFailed)
			require.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, enum.SyncStatusFailed, history.Status)
			assert.False(t, history.Success)
			assert.NotEmpty(t, history.Error)
			assert.False(t, history.CompletedAt.IsZero())
			assert.Equal(t, 0, e.discord.mutationCount())
			assert.Equal(t, 0, e.fetcher.callCount("acme/widgets", enum.RoleKindContributor))

			finalized := e.store.histories()
			require.Len(t, finalized, 1)
			assert.Equal(t, enum.SyncStatusFailed, finalized[0].Status)
		})
	}
}
