package commands

import (
	"context"

	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// MigrationCommands returns all migration-related commands.
func MigrationCommands(deps *CLIDependencies) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "init",
			Usage: "Create the migration bookkeeping tables",
			Action: func(ctx context.Context, _ *cli.Command) error {
				return deps.Migrator.Init(ctx)
			},
		},
		{
			Name:   "migrate",
			Usage:  "Apply pending migrations",
			Action: handleLocked(deps, "Applied migrations", deps.Migrator.Migrate),
		},
		{
			Name:   "rollback",
			Usage:  "Roll back the last migration group",
			Action: handleLocked(deps, "Rolled back migrations", deps.Migrator.Rollback),
		},
		{
			Name:   "status",
			Usage:  "Show applied and pending migrations",
			Action: handleStatus(deps),
		},
		{
			Name:      "create",
			Usage:     "Create a new Go migration file",
			ArgsUsage: "NAME",
			Action:    handleCreate(deps),
		},
	}
}

// handleLocked runs a migration step while holding the migration lock.
func handleLocked(
	deps *CLIDependencies,
	done string,
	step func(ctx context.Context, opts ...migrate.MigrationOption) (*migrate.MigrationGroup, error),
) cli.ActionFunc {
	return func(ctx context.Context, _ *cli.Command) error {
		if err := deps.Migrator.Lock(ctx); err != nil {
			return err
		}
		defer deps.Migrator.Unlock(ctx) //nolint:errcheck // -

		group, err := step(ctx)
		if err != nil {
			return err
		}

		if group.IsZero() {
			deps.Logger.Info("Nothing to do, schema is current")
			return nil
		}

		deps.Logger.Info(done, zap.String("group", group.String()))

		return nil
	}
}

// handleStatus handles the 'status' command.
func handleStatus(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, _ *cli.Command) error {
		ms, err := deps.Migrator.MigrationsWithStatus(ctx)
		if err != nil {
			return err
		}

		for _, m := range ms {
			deps.Logger.Info("Migration",
				zap.String("name", m.Name),
				zap.Bool("applied", m.IsApplied()),
				zap.Int64("group", m.GroupID))
		}

		deps.Logger.Info("Migration summary",
			zap.Int("pending", len(ms.Unapplied())),
			zap.String("lastGroup", ms.LastGroup().String()))

		return nil
	}
}

// handleCreate handles the 'create' command.
func handleCreate(deps *CLIDependencies) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() != 1 {
			return ErrNameRequired
		}

		mf, err := deps.Migrator.CreateGoMigration(ctx, c.Args().First())
		if err != nil {
			return err
		}

		deps.Logger.Info("Created Go migration",
			zap.String("name", mf.Name),
			zap.String("path", mf.Path))

		return nil
	}
}
