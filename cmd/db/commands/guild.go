package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// GuildCommands returns commands that manage guild role configuration.
func GuildCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:      "guild-show",
			Usage:     "Show the role configuration of a guild",
			ArgsUsage: "GUILD_ID",
			Action:    handleGuildShow(deps),
		},
		{
			Name:      "guild-roles",
			Usage:     "Set the contributor and stargazer roles of a guild",
			ArgsUsage: "GUILD_ID",
			Description: `Set the roles granted for each relationship. A zero or omitted role
disables that relationship for the guild.

Examples:
  db guild-roles 1234 --contributor 5678
  db guild-roles 1234 --contributor 5678 --stargazer 9012`,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "contributor",
					Usage: "Role granted to contributors of followed repositories",
				},
				&cli.StringFlag{
					Name:  "stargazer",
					Usage: "Role granted to stargazers of followed repositories",
				},
			},
			Action: handleGuildRoles(deps),
		},
		{
			Name:      "guild-follow",
			Usage:     "Follow a repository in a guild",
			ArgsUsage: "GUILD_ID REPOSITORY",
			Action:    handleGuildFollow(deps, true),
		},
		{
			Name:      "guild-unfollow",
			Usage:     "Stop following a repository in a guild",
			ArgsUsage: "GUILD_ID REPOSITORY",
			Action:    handleGuildFollow(deps, false),
		},
		{
			Name:      "guild-remove",
			Usage:     "Remove a guild configuration and its followed repositories",
			ArgsUsage: "GUILD_ID",
			Action:    handleGuildRemove(deps),
		},
		{
			Name:  "purge-history",
			Usage: "Delete sync history older than the retention window",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "days",
					Usage:   "Days of history to keep",
					Value:   30,
					Aliases: []string{"d"},
				},
			},
			Action: handlePurgeHistory(deps),
		},
	}
}

func handleGuildShow(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		guildID, err := guildArg(c)
		if err != nil {
			return err
		}

		config, err := deps.DB.Model().Guild().GetGuildConfig(ctx, guildID)
		if err != nil {
			return err
		}

		repositories := make([]string, 0, len(config.Repositories))
		for _, repo := range config.Repositories {
			repositories = append(repositories, repo.FullName)
		}

		deps.Logger.Info("Guild configuration",
			zap.Uint64("guildID", uint64(config.GuildID)),
			zap.Uint64("contributorRoleID", uint64(config.ContributorRoleID)),
			zap.Uint64("stargazerRoleID", uint64(config.StargazerRoleID)),
			zap.Strings("repositories", repositories),
			zap.Bool("eligible", config.IsEligible()))

		history, err := deps.DB.Model().History().GetGuildHistory(ctx, guildID, 5)
		if err != nil {
			return err
		}

		for _, h := range history {
			deps.Logger.Info("Recent pass",
				zap.Time("startedAt", h.StartedAt),
				zap.String("status", h.Status.String()),
				zap.Int("usersProcessed", h.UsersProcessed),
				zap.Int("rolesAdded", h.RolesAdded),
				zap.Int("rolesRemoved", h.RolesRemoved),
				zap.String("error", h.Error))
		}

		return nil
	}
}

func handleGuildRoles(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		guildID, err := guildArg(c)
		if err != nil {
			return err
		}

		contributor, err := optionalSnowflake(c.String("contributor"))
		if err != nil {
			return fmt.Errorf("invalid contributor role: %w", err)
		}

		stargazer, err := optionalSnowflake(c.String("stargazer"))
		if err != nil {
			return fmt.Errorf("invalid stargazer role: %w", err)
		}

		if err := deps.DB.Model().Guild().UpsertGuildRoles(ctx, guildID, contributor, stargazer); err != nil {
			return err
		}

		deps.Logger.Info("Updated guild roles", zap.Uint64("guildID", uint64(guildID)))

		return nil
	}
}

func handleGuildFollow(deps *CLIDependencies, follow bool) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 2 {
			return ErrRepositoryRequired
		}

		guildID, err := snowflake.Parse(c.Args().Get(0))
		if err != nil {
			return fmt.Errorf("invalid guild ID: %w", err)
		}

		repository := c.Args().Get(1)
		guilds := deps.DB.Model().Guild()

		if follow {
			err = guilds.FollowRepository(ctx, guildID, repository)
		} else {
			err = guilds.UnfollowRepository(ctx, guildID, repository)
		}

		if err != nil {
			return err
		}

		deps.Logger.Info("Updated followed repositories",
			zap.Uint64("guildID", uint64(guildID)),
			zap.String("repository", repository),
			zap.Bool("following", follow))

		return nil
	}
}

func handleGuildRemove(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		guildID, err := guildArg(c)
		if err != nil {
			return err
		}

		if err := deps.DB.Model().Guild().DeleteGuildConfig(ctx, guildID); err != nil {
			return err
		}

		deps.Logger.Info("Removed guild configuration", zap.Uint64("guildID", uint64(guildID)))

		return nil
	}
}

func handlePurgeHistory(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		retention := time.Duration(c.Int("days")) * 24 * time.Hour

		purged, err := deps.DB.Service().History().PurgeExpired(ctx, retention)
		if err != nil {
			return err
		}

		deps.Logger.Info("Purged sync history", zap.Int64("count", purged))

		return nil
	}
}

func guildArg(c *cli.Command) (snowflake.ID, error) {
	if c.Args().Len() != 1 {
		return 0, ErrGuildRequired
	}

	guildID, err := snowflake.Parse(c.Args().First())
	if err != nil {
		return 0, fmt.Errorf("invalid guild ID: %w", err)
	}

	return guildID, nil
}

func optionalSnowflake(raw string) (snowflake.ID, error) {
	if raw == "" {
		return 0, nil
	}

	return snowflake.Parse(raw)
}
