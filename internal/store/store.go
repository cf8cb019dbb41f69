package store

import (
	"context"
	"errors"

	"github.com/vijaygupta18/multidb/internal/model"
)

// ErrNotFound is returned when an execution is not in the history.
var ErrNotFound = errors.New("execution not found")

// ListFilter narrows ListExecutions. Empty fields match everything.
type ListFilter struct {
	OwnerID string
	Status  string
	Limit   int
	Offset  int
}

// Store persists finished executions.
type Store interface {
	RecordExecution(ctx context.Context, e model.HistoryEntry) error
	GetExecution(ctx context.Context, id string) (*model.HistoryEntry, error)
	ListExecutions(ctx context.Context, f ListFilter) ([]*model.HistoryEntry, int, error)
	GetStats(ctx context.Context) (*model.HistoryStats, error)
	Close() error
}
