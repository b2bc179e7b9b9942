package roles

import (
	"errors"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
)

var (
	// ErrMissingPermission indicates the bot cannot manage roles in the guild.
	ErrMissingPermission = errors.New("bot lacks the manage roles permission")
	// ErrRoleNotFound indicates a configured role no longer exists.
	ErrRoleNotFound = errors.New("role not found")
	// ErrRoleHierarchy indicates a configured role ranks at or above the bot's highest role.
	ErrRoleHierarchy = errors.New("role is not below the bot's highest role")
	// ErrRoleManaged indicates a configured role is owned by an integration.
	ErrRoleManaged = errors.New("role is managed by an integration")
)

// GuildSnapshot is the role state of a guild as seen by the bot.
type GuildSnapshot struct {
	GuildID        snowflake.ID
	Name           string
	Roles          map[snowflake.ID]discord.Role
	BotPosition    int
	BotPermissions discord.Permissions
	BotIsOwner     bool
}

func newSnapshot(guild *discord.RestGuild, roles []discord.Role, botMember *discord.Member, botID snowflake.ID) *GuildSnapshot {
	snapshot := &GuildSnapshot{
		GuildID:    guild.ID,
		Name:       guild.Name,
		Roles:      make(map[snowflake.ID]discord.Role, len(roles)),
		BotIsOwner: guild.OwnerID == botID,
	}

	for _, role := range roles {
		snapshot.Roles[role.ID] = role
	}

	// @everyone shares the guild's ID
	if everyone, ok := snapshot.Roles[guild.ID]; ok {
		snapshot.BotPermissions |= everyone.Permissions
	}

	for _, roleID := range botMember.RoleIDs {
		role, ok := snapshot.Roles[roleID]
		if !ok {
			continue
		}

		snapshot.BotPermissions |= role.Permissions
		if role.Position > snapshot.BotPosition {
			snapshot.BotPosition = role.Position
		}
	}

	return snapshot
}

// CanManageRoles reports whether the bot may assign roles at all.
func (s *GuildSnapshot) CanManageRoles() bool {
	return s.BotIsOwner ||
		s.BotPermissions.Has(discord.PermissionAdministrator) ||
		s.BotPermissions.Has(discord.PermissionManageRoles)
}

// CheckAssignable returns an error when the bot structurally cannot assign the role.
func (s *GuildSnapshot) CheckAssignable(roleID snowflake.ID) error {
	role, ok := s.Roles[roleID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrRoleNotFound, roleID)
	}

	if role.Managed {
		return fmt.Errorf("%w: %s", ErrRoleManaged, role.Name)
	}

	if !s.BotIsOwner && role.Position >= s.BotPosition {
		return fmt.Errorf("%w: %s (position %d, bot position %d)",
			ErrRoleHierarchy, role.Name, role.Position, s.BotPosition)
	}

	return nil
}
