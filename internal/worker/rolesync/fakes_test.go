package rolesync_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/rolesync/internal/database/service"
	"github.com/robalyx/rolesync/internal/database/types"
	"github.com/robalyx/rolesync/internal/database/types/enum"
	"github.com/robalyx/rolesync/internal/discord/roles"
	"github.com/robalyx/rolesync/internal/github/fetcher"
)

const (
	contributorRole snowflake.ID = 10
	stargazerRole   snowflake.ID = 11
	botRole         snowflake.ID = 12
)

var errUpstream = errors.New("upstream unavailable")

func cacheKey(fullName string, kind enum.RoleKind) string {
	return fullName + "|" + kind.String()
}

func followed(fullNames ...string) []*types.FollowedRepository {
	repos := make([]*types.FollowedRepository, 0, len(fullNames))
	for _, fullName := range fullNames {
		owner, name, _ := types.ParseRepository(fullName)
		repos = append(repos, &types.FollowedRepository{FullName: fullName, Owner: owner, Name: name})
	}

	return repos
}

// fakeStore keeps everything in memory.
type fakeStore struct {
	mu          sync.Mutex
	guilds      []*types.GuildConfig
	guildsErr   error
	accounts    []*types.LinkedAccount
	created     int
	finalized   []types.SyncHistory
	cache       map[string]*service.CachedMembership
	failures    map[string]int
	lastErrors  map[string]error
	notModified int
	purges      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cache:      make(map[string]*service.CachedMembership),
		failures:   make(map[string]int),
		lastErrors: make(map[string]error),
	}
}

func (s *fakeStore) GetEligibleGuildConfigs(context.Context) ([]*types.GuildConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.guilds, s.guildsErr
}

func (s *fakeStore) GetSyncableAccounts(context.Context) ([]*types.LinkedAccount, error) {
	return s.accounts, nil
}

func (s *fakeStore) CreateHistory(context.Context, *types.SyncHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.created++

	return nil
}

func (s *fakeStore) FinalizeHistory(_ context.Context, history *types.SyncHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finalized = append(s.finalized, *history)

	return nil
}

func (s *fakeStore) PurgeExpiredHistory(context.Context, time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purges++

	return 0, nil
}

func (s *fakeStore) LoadCachedMembership(
	_ context.Context, fullName string, kind enum.RoleKind,
) (*service.CachedMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[cacheKey(fullName, kind)]; ok {
		return &service.CachedMembership{ETag: cached.ETag, Logins: cached.Logins.Clone()}, nil
	}

	return &service.CachedMembership{}, nil
}

func (s *fakeStore) RecordFetch(
	_ context.Context, fullName string, kind enum.RoleKind, logins types.LoginSet, etag string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[cacheKey(fullName, kind)] = &service.CachedMembership{ETag: etag, Logins: logins.Clone()}

	return nil
}

func (s *fakeStore) RecordNotModified(context.Context, string, enum.RoleKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notModified++

	return nil
}

func (s *fakeStore) RecordFailure(_ context.Context, fullName string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[fullName]++
	s.lastErrors[fullName] = cause

	return nil
}

func (s *fakeStore) histories() []types.SyncHistory {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]types.SyncHistory(nil), s.finalized...)
}

// upstream is what the fake GitHub returns for one repository and kind.
type upstream struct {
	logins []string
	etag   string
	err    error
}

// fakeFetcher answers conditional requests like GitHub does.
type fakeFetcher struct {
	mu    sync.Mutex
	data  map[string]upstream
	calls map[string]int
	etags map[string][]string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		data:  make(map[string]upstream),
		calls: make(map[string]int),
		etags: make(map[string][]string),
	}
}

func (f *fakeFetcher) set(fullName string, kind enum.RoleKind, data upstream) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.data[cacheKey(fullName, kind)] = data
}

func (f *fakeFetcher) callCount(fullName string, kind enum.RoleKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[cacheKey(fullName, kind)]
}

func (f *fakeFetcher) FetchContributors(_ context.Context, owner, name, etag string) (*fetcher.Result, error) {
	return f.fetch(types.RepositoryFullName(owner, name), enum.RoleKindContributor, etag)
}

func (f *fakeFetcher) FetchStargazers(_ context.Context, owner, name, etag string) (*fetcher.Result, error) {
	return f.fetch(types.RepositoryFullName(owner, name), enum.RoleKindStargazer, etag)
}

func (f *fakeFetcher) fetch(fullName string, kind enum.RoleKind, etag string) (*fetcher.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := cacheKey(fullName, kind)
	f.calls[key]++
	f.etags[key] = append(f.etags[key], etag)

	data := f.data[key]
	if data.err != nil {
		return nil, data.err
	}

	if etag != "" && etag == data.etag {
		return &fetcher.Result{NotModified: true, ETag: etag}, nil
	}

	return &fetcher.Result{Logins: types.NewLoginSet(data.logins...), ETag: data.etag}, nil
}

// fakeDiscord tracks member roles in memory.
type fakeDiscord struct {
	mu        sync.Mutex
	snapshots map[snowflake.ID]*roles.GuildSnapshot
	members   map[snowflake.ID]map[snowflake.ID]map[snowflake.ID]struct{}
	mutations int
	// failUsers rejects every role change for these members
	failUsers map[snowflake.ID]error
}

func newFakeDiscord() *fakeDiscord {
	return &fakeDiscord{
		snapshots: make(map[snowflake.ID]*roles.GuildSnapshot),
		members:   make(map[snowflake.ID]map[snowflake.ID]map[snowflake.ID]struct{}),
		failUsers: make(map[snowflake.ID]error),
	}
}

// addGuild registers a guild where the bot ranks above both sync roles.
func (d *fakeDiscord) addGuild(guildID snowflake.ID) *roles.GuildSnapshot {
	snapshot := &roles.GuildSnapshot{
		GuildID: guildID,
		Roles: map[snowflake.ID]discord.Role{
			contributorRole: {ID: contributorRole, Name: "Contributor", Position: 1},
			stargazerRole:   {ID: stargazerRole, Name: "Stargazer", Position: 2},
			botRole:         {ID: botRole, Name: "RoleSync", Position: 5},
		},
		BotPosition:    5,
		BotPermissions: discord.PermissionManageRoles,
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.snapshots[guildID] = snapshot
	d.members[guildID] = make(map[snowflake.ID]map[snowflake.ID]struct{})

	return snapshot
}

func (d *fakeDiscord) addMember(guildID, userID snowflake.ID, roleIDs ...snowflake.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	held := make(map[snowflake.ID]struct{}, len(roleIDs))
	for _, roleID := range roleIDs {
		held[roleID] = struct{}{}
	}

	d.members[guildID][userID] = held
}

func (d *fakeDiscord) hasRole(guildID, userID, roleID snowflake.ID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.members[guildID][userID][roleID]

	return ok
}

func (d *fakeDiscord) mutationCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.mutations
}

func (d *fakeDiscord) Snapshot(_ context.Context, guildID snowflake.ID) (*roles.GuildSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	snapshot, ok := d.snapshots[guildID]
	if !ok {
		return nil, roles.ErrGuildNotFound
	}

	return snapshot, nil
}

func (d *fakeDiscord) MemberRoles(_ context.Context, guildID, userID snowflake.ID) (map[snowflake.ID]struct{}, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	held, ok := d.members[guildID][userID]
	if !ok {
		return nil, roles.ErrMemberNotFound
	}

	result := make(map[snowflake.ID]struct{}, len(held))
	for roleID := range held {
		result[roleID] = struct{}{}
	}

	return result, nil
}

func (d *fakeDiscord) AddRole(_ context.Context, guildID, userID, roleID snowflake.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.failUsers[userID]; err != nil {
		return err
	}

	d.members[guildID][userID][roleID] = struct{}{}
	d.mutations++

	return nil
}

func (d *fakeDiscord) RemoveRole(_ context.Context, guildID, userID, roleID snowflake.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.failUsers[userID]; err != nil {
		return err
	}

	delete(d.members[guildID][userID], roleID)
	d.mutations++

	return nil
}
