package database

import (
	"github.com/robalyx/rolesync/internal/database/models"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	guild      *models.GuildModel
	account    *models.AccountModel
	repository *models.RepositoryModel
	history    *models.HistoryModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		guild:      models.NewGuild(db, logger),
		account:    models.NewAccount(db, logger),
		repository: models.NewRepository(db, logger),
		history:    models.NewHistory(db, logger),
	}
}

// Guild returns the guild model repository.
func (r *Repository) Guild() *models.GuildModel {
	return r.guild
}

// Account returns the linked account model repository.
func (r *Repository) Account() *models.AccountModel {
	return r.account
}

// Repository returns the GitHub repository state model repository.
func (r *Repository) Repository() *models.RepositoryModel {
	return r.repository
}

// History returns the sync history model repository.
func (r *Repository) History() *models.HistoryModel {
	return r.history
}
