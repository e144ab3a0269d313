package handler

import (
	"log/slog"

	"github.com/optimly/catalog-optimizer/internal/api/storage"
	"github.com/optimly/catalog-optimizer/internal/optimizer"
	"github.com/optimly/catalog-optimizer/shared/rabbitmq"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Storage      *storage.Storage
	RabbitClient *rabbitmq.Client
	UndoEngine   *optimizer.UndoEngine
}

// JobHandler handles job and history HTTP requests
type JobHandler struct {
	logger       *slog.Logger
	storage      *storage.Storage
	rabbitClient *rabbitmq.Client
	undoEngine   *optimizer.UndoEngine
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:       deps.Logger,
		storage:      deps.Storage,
		rabbitClient: deps.RabbitClient,
		undoEngine:   deps.UndoEngine,
	}
}
