package database

import (
	"github.com/robalyx/rolesync/internal/database/service"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Service provides access to all business logic services.
type Service struct {
	membership *service.MembershipService
	history    *service.HistoryService
}

// NewService creates a new service instance with all services.
func NewService(db *bun.DB, repository *Repository, logger *zap.Logger) *Service {
	return &Service{
		membership: service.NewMembership(db, repository.Repository(), logger),
		history:    service.NewHistory(repository.History(), logger),
	}
}

// Membership returns the membership service.
func (s *Service) Membership() *service.MembershipService {
	return s.membership
}

// History returns the history service.
func (s *Service) History() *service.HistoryService {
	return s.history
}
