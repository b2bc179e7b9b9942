package types_test

import (
	"testing"

	"github.com/robalyx/rolesync/internal/database/types"
	"github.com/robalyx/rolesync/internal/database/types/enum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginSet(t *testing.T) {
	t.Parallel()

	set := types.NewLoginSet("Alice", "alice", " BOB ", "")

	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Contains("ALICE"))
	assert.True(t, set.Contains("bob"))
	assert.False(t, set.Contains("carol"))
	assert.Equal(t, []string{"alice", "bob"}, set.Slice())

	clone := set.Clone()
	clone.Add("carol")
	assert.False(t, set.Contains("carol"))

	var empty types.LoginSet
	assert.False(t, empty.Contains("alice"))
	assert.Nil(t, empty.Clone())
}

func TestParseRepository(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		wantOwner string
		wantName  string
		wantErr   bool
	}{
		{name: "simple", input: "octo/repo", wantOwner: "octo", wantName: "repo"},
		{name: "mixed case", input: " Octo/Hello-World ", wantOwner: "octo", wantName: "hello-world"},
		{name: "missing slash", input: "octo", wantErr: true},
		{name: "empty owner", input: "/repo", wantErr: true},
		{name: "empty name", input: "octo/", wantErr: true},
		{name: "too many parts", input: "a/b/c", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			owner, name, err := types.ParseRepository(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, types.ErrInvalidRepository)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantOwner+"/"+tt.wantName, types.RepositoryFullName(owner, name))
		})
	}
}

func TestGuildConfigEligibility(t *testing.T) {
	t.Parallel()

	repo := &types.FollowedRepository{FullName: "octo/repo", Owner: "octo", Name: "repo"}

	tests := []struct {
		name     string
		config   types.GuildConfig
		kinds    []enum.RoleKind
		eligible bool
	}{
		{
			name:     "no roles",
			config:   types.GuildConfig{Repositories: []*types.FollowedRepository{repo}},
			kinds:    []enum.RoleKind{},
			eligible: false,
		},
		{
			name:     "no repositories",
			config:   types.GuildConfig{ContributorRoleID: 10},
			kinds:    []enum.RoleKind{enum.RoleKindContributor},
			eligible: false,
		},
		{
			name: "stargazer only",
			config: types.GuildConfig{
				StargazerRoleID: 11,
				Repositories:    []*types.FollowedRepository{repo},
			},
			kinds:    []enum.RoleKind{enum.RoleKindStargazer},
			eligible: true,
		},
		{
			name: "both roles",
			config: types.GuildConfig{
				ContributorRoleID: 10,
				StargazerRoleID:   11,
				Repositories:      []*types.FollowedRepository{repo},
			},
			kinds:    []enum.RoleKind{enum.RoleKindContributor, enum.RoleKindStargazer},
			eligible: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.kinds, tt.config.ConfiguredKinds())
			assert.Equal(t, tt.eligible, tt.config.IsEligible())
		})
	}
}

func TestEnumStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Contributor", enum.RoleKindContributor.String())
	assert.Equal(t, "ProcessingUsers", enum.SyncStatusProcessingUsers.String())

	status, err := enum.SyncStatusString("failed")
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusFailed, status)
}
