package rolesync_test

import (
	"testing"

	"github.com/robalyx/rolesync/internal/database/types"
	"github.com/robalyx/rolesync/internal/database/types/enum"
	"github.com/robalyx/rolesync/internal/worker/rolesync"
	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	t.Parallel()

	guild := &types.GuildConfig{
		ContributorRoleID: contributorRole,
		StargazerRoleID:   stargazerRole,
		Repositories:      followed("acme/widgets", "acme/gadgets"),
	}

	membership := make(rolesync.Membership)
	membership.Set("acme/widgets", enum.RoleKindContributor, types.NewLoginSet("alice"))
	membership.Set("acme/gadgets", enum.RoleKindContributor, types.NewLoginSet("bob", "alice"))
	membership.Set("acme/gadgets", enum.RoleKindStargazer, types.NewLoginSet("carol"))
	membership.Set("other/repo", enum.RoleKindContributor, types.NewLoginSet("dave"))

	tests := []struct {
		name  string
		kind  enum.RoleKind
		login string
		want  bool
	}{
		{name: "contributor in first repository", kind: enum.RoleKindContributor, login: "alice", want: true},
		{name: "contributor in second repository", kind: enum.RoleKindContributor, login: "bob", want: true},
		{name: "case insensitive", kind: enum.RoleKindContributor, login: "ALICE", want: true},
		{name: "stargazer is not a contributor", kind: enum.RoleKindContributor, login: "carol", want: false},
		{name: "stargazer", kind: enum.RoleKindStargazer, login: "Carol", want: true},
		{name: "contributor is not a stargazer", kind: enum.RoleKindStargazer, login: "alice", want: false},
		{name: "unfollowed repository ignored", kind: enum.RoleKindContributor, login: "dave", want: false},
		{name: "unknown login", kind: enum.RoleKindContributor, login: "mallory", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, rolesync.Decide(tt.kind, tt.login, guild, membership))
		})
	}
}

func TestDecideMissingMembership(t *testing.T) {
	t.Parallel()

	guild := &types.GuildConfig{ContributorRoleID: contributorRole, Repositories: followed("acme/widgets")}

	assert.False(t, rolesync.Decide(enum.RoleKindContributor, "alice", guild, nil))
	assert.False(t, rolesync.Decide(enum.RoleKindContributor, "alice", guild, rolesync.Membership{}))
}
