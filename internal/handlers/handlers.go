package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fs-delta-tracker/internal/database"
	"fs-delta-tracker/internal/metrics"
)

// Store is the read side of the metadata store served by the API.
type Store interface {
	GetScanRun(ctx context.Context, scanID int64) (*database.ScanRun, error)
	ListScanRuns(ctx context.Context, limit int) ([]database.ScanRun, error)
	ListChanges(ctx context.Context, scanID int64, changeType database.ChangeType, limit int) ([]database.FileChange, error)
	ChangeTotals(ctx context.Context, scanID int64) (map[database.ChangeType]database.ChangeTotal, error)
	Ping(ctx context.Context) error
	GetStats() metrics.Stats
}

type Handlers struct {
	store     Store
	logger    *zap.Logger
	startTime time.Time
}

func New(store Store, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		store:     store,
		logger:    logger,
		startTime: time.Now(),
	}
}
