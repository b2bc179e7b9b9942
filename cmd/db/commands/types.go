package commands

import (
	"errors"

	"github.com/robalyx/rolesync/internal/database"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

var (
	ErrNameRequired       = errors.New("NAME argument required")
	ErrGuildRequired      = errors.New("GUILD_ID argument required")
	ErrRepositoryRequired = errors.New("GUILD_ID and REPOSITORY arguments required")
)

// CLIDependencies holds the common dependencies needed by CLI commands.
type CLIDependencies struct {
	DB       database.Client
	Migrator *migrate.Migrator
	Logger   *zap.Logger
}
