package service

import (
	"context"
	"time"

	"github.com/robalyx/rolesync/internal/database/models"
	"go.uber.org/zap"
)

// HistoryService handles sync history retention.
type HistoryService struct {
	model  *models.HistoryModel
	logger *zap.Logger
}

// NewHistory creates a HistoryService.
func NewHistory(model *models.HistoryModel, logger *zap.Logger) *HistoryService {
	return &HistoryService{
		model:  model,
		logger: logger.Named("history_service"),
	}
}

// PurgeExpired removes history records older than the retention window.
func (s *HistoryService) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}

	return s.model.PurgeHistoryBefore(ctx, time.Now().Add(-retention))
}
