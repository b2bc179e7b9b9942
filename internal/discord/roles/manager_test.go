package roles_test

import (
	"net/http"
	"sync"
	"testing"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/rolesync/internal/discord/roles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	guildID   snowflake.ID = 100
	botID     snowflake.ID = 200
	userID    snowflake.ID = 300
	botRole   snowflake.ID = 400
	lowRole   snowflake.ID = 401
	highRole  snowflake.ID = 402
	otherUser snowflake.ID = 301
)

type fakeRest struct {
	mu      sync.Mutex
	guilds  map[snowflake.ID]*discord.RestGuild
	roles   []discord.Role
	members map[snowflake.ID]*discord.Member
	added   []snowflake.ID
	removed []snowflake.ID
}

func notFound() error {
	return &rest.Error{Response: &http.Response{StatusCode: http.StatusNotFound}, Message: "Unknown"}
}

func (f *fakeRest) GetGuild(id snowflake.ID, _ bool, _ ...rest.RequestOpt) (*discord.RestGuild, error) {
	if guild, ok := f.guilds[id]; ok {
		return guild, nil
	}
	return nil, notFound()
}

func (f *fakeRest) GetRoles(_ snowflake.ID, _ ...rest.RequestOpt) ([]discord.Role, error) {
	return f.roles, nil
}

func (f *fakeRest) GetMember(_ snowflake.ID, id snowflake.ID, _ ...rest.RequestOpt) (*discord.Member, error) {
	if member, ok := f.members[id]; ok {
		return member, nil
	}
	return nil, notFound()
}

func (f *fakeRest) AddMemberRole(_, _, roleID snowflake.ID, _ ...rest.RequestOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, roleID)
	return nil
}

func (f *fakeRest) RemoveMemberRole(_, _, roleID snowflake.ID, _ ...rest.RequestOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, roleID)
	return nil
}

func newFakeRest(botPermissions discord.Permissions) *fakeRest {
	return &fakeRest{
		guilds: map[snowflake.ID]*discord.RestGuild{
			guildID: {Guild: discord.Guild{ID: guildID, Name: "acme", OwnerID: 999}},
		},
		roles: []discord.Role{
			{ID: guildID, Name: "@everyone", Position: 0},
			{ID: lowRole, Name: "Contributor", Position: 1},
			{ID: botRole, Name: "RoleSync", Position: 5, Permissions: botPermissions, Managed: true},
			{ID: highRole, Name: "Stargazer", Position: 9},
		},
		members: map[snowflake.ID]*discord.Member{
			botID:  {User: discord.User{ID: botID}, RoleIDs: []snowflake.ID{botRole}},
			userID: {User: discord.User{ID: userID}, RoleIDs: []snowflake.ID{lowRole}},
		},
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	fake := newFakeRest(discord.PermissionManageRoles)
	manager := roles.New(fake, botID, 0, zap.NewNop())

	snapshot, err := manager.Snapshot(t.Context(), guildID)
	require.NoError(t, err)

	assert.Equal(t, "acme", snapshot.Name)
	assert.Equal(t, 5, snapshot.BotPosition)
	assert.True(t, snapshot.CanManageRoles())
	require.NoError(t, snapshot.CheckAssignable(lowRole))
	require.ErrorIs(t, snapshot.CheckAssignable(highRole), roles.ErrRoleHierarchy)
	require.ErrorIs(t, snapshot.CheckAssignable(botRole), roles.ErrRoleManaged)
	require.ErrorIs(t, snapshot.CheckAssignable(12345), roles.ErrRoleNotFound)
}

func TestSnapshotPermissions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		permissions discord.Permissions
		want        bool
	}{
		{name: "manage roles", permissions: discord.PermissionManageRoles, want: true},
		{name: "administrator", permissions: discord.PermissionAdministrator, want: true},
		{name: "none", permissions: discord.PermissionSendMessages, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			manager := roles.New(newFakeRest(tt.permissions), botID, 0, zap.NewNop())

			snapshot, err := manager.Snapshot(t.Context(), guildID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, snapshot.CanManageRoles())
		})
	}
}

func TestSnapshotGuildNotFound(t *testing.T) {
	t.Parallel()

	manager := roles.New(newFakeRest(discord.PermissionManageRoles), botID, 0, zap.NewNop())

	_, err := manager.Snapshot(t.Context(), 12345)
	require.ErrorIs(t, err, roles.ErrGuildNotFound)
}

func TestMemberRoles(t *testing.T) {
	t.Parallel()

	fake := newFakeRest(discord.PermissionManageRoles)
	manager := roles.New(fake, botID, 0, zap.NewNop())

	held, err := manager.MemberRoles(t.Context(), guildID, userID)
	require.NoError(t, err)
	assert.Contains(t, held, lowRole)

	_, err = manager.MemberRoles(t.Context(), guildID, otherUser)
	require.ErrorIs(t, err, roles.ErrMemberNotFound)

	require.NoError(t, manager.AddRole(t.Context(), guildID, userID, highRole))
	require.NoError(t, manager.RemoveRole(t.Context(), guildID, userID, lowRole))
	assert.Equal(t, []snowflake.ID{highRole}, fake.added)
	assert.Equal(t, []snowflake.ID{lowRole}, fake.removed)
}
