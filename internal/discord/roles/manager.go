package roles

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

// AuditReason is attached to every role change made by the sync.
const AuditReason = "GitHub role sync"

var (
	// ErrGuildNotFound indicates the guild does not exist or the bot is not in it.
	ErrGuildNotFound = errors.New("guild not found")
	// ErrMemberNotFound indicates the user is not a member of the guild.
	ErrMemberNotFound = errors.New("member not found")
)

// RestClient is the part of the Discord REST API used for role management.
type RestClient interface {
	GetGuild(guildID snowflake.ID, withCounts bool, opts ...rest.RequestOpt) (*discord.RestGuild, error)
	GetRoles(guildID snowflake.ID, opts ...rest.RequestOpt) ([]discord.Role, error)
	GetMember(guildID snowflake.ID, userID snowflake.ID, opts ...rest.RequestOpt) (*discord.Member, error)
	AddMemberRole(guildID snowflake.ID, userID snowflake.ID, roleID snowflake.ID, opts ...rest.RequestOpt) error
	RemoveMemberRole(guildID snowflake.ID, userID snowflake.ID, roleID snowflake.ID, opts ...rest.RequestOpt) error
}

// Manager reads guild role state and applies member role changes.
type Manager struct {
	rest    RestClient
	botID   snowflake.ID
	timeout time.Duration
	client  bot.Client
	logger  *zap.Logger
}

// New creates a Manager over an existing REST client.
func New(restClient RestClient, botID snowflake.ID, timeout time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		rest:    restClient,
		botID:   botID,
		timeout: timeout,
		logger:  logger.Named("discord_roles"),
	}
}

// Connect creates a REST-only Discord client for the bot token.
func Connect(token string, timeout time.Duration, logger *zap.Logger) (*Manager, error) {
	client, err := disgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord client: %w", err)
	}

	m := New(client.Rest(), client.ApplicationID(), timeout, logger)
	m.client = client

	return m, nil
}

// Snapshot loads the guild, its roles, and the bot's own standing in it.
func (m *Manager) Snapshot(ctx context.Context, guildID snowflake.ID) (*GuildSnapshot, error) {
	ctx, cancel := m.requestContext(ctx)
	defer cancel()

	guild, err := m.rest.GetGuild(guildID, false, rest.WithCtx(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %d", ErrGuildNotFound, guildID)
		}

		return nil, fmt.Errorf("failed to get guild: %w", err)
	}

	roles, err := m.rest.GetRoles(guildID, rest.WithCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get guild roles: %w", err)
	}

	botMember, err := m.rest.GetMember(guildID, m.botID, rest.WithCtx(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: bot is not a member of %d", ErrGuildNotFound, guildID)
		}

		return nil, fmt.Errorf("failed to get bot member: %w", err)
	}

	return newSnapshot(guild, roles, botMember, m.botID), nil
}

// MemberRoles returns the role IDs held by a guild member.
func (m *Manager) MemberRoles(ctx context.Context, guildID, userID snowflake.ID) (map[snowflake.ID]struct{}, error) {
	ctx, cancel := m.requestContext(ctx)
	defer cancel()

	member, err := m.rest.GetMember(guildID, userID, rest.WithCtx(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, ErrMemberNotFound
		}

		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	held := make(map[snowflake.ID]struct{}, len(member.RoleIDs))
	for _, roleID := range member.RoleIDs {
		held[roleID] = struct{}{}
	}

	return held, nil
}

// AddRole grants a role to a guild member.
func (m *Manager) AddRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	ctx, cancel := m.requestContext(ctx)
	defer cancel()

	if err := m.rest.AddMemberRole(guildID, userID, roleID, rest.WithCtx(ctx), rest.WithReason(AuditReason)); err != nil {
		return fmt.Errorf("failed to add role %d: %w", roleID, err)
	}

	m.logger.Debug("Added role",
		zap.Uint64("guildID", uint64(guildID)),
		zap.Uint64("userID", uint64(userID)),
		zap.Uint64("roleID", uint64(roleID)))

	return nil
}

// RemoveRole revokes a role from a guild member.
func (m *Manager) RemoveRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	ctx, cancel := m.requestContext(ctx)
	defer cancel()

	if err := m.rest.RemoveMemberRole(guildID, userID, roleID, rest.WithCtx(ctx), rest.WithReason(AuditReason)); err != nil {
		return fmt.Errorf("failed to remove role %d: %w", roleID, err)
	}

	m.logger.Debug("Removed role",
		zap.Uint64("guildID", uint64(guildID)),
		zap.Uint64("userID", uint64(userID)),
		zap.Uint64("roleID", uint64(roleID)))

	return nil
}

// Close releases the underlying Discord client.
func (m *Manager) Close(ctx context.Context) {
	if m.client != nil {
		m.client.Close(ctx)
	}
}

func (m *Manager) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, m.timeout)
}

// isNotFound reports whether a REST error is a 404.
func isNotFound(err error) bool {
	var restErr *rest.Error
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return false
	}

	return restErr.Response.StatusCode == http.StatusNotFound
}
