package engine

import (
	"context"

	"github.com/vijaygupta18/multidb/internal/coordinator"
	"github.com/vijaygupta18/multidb/internal/executor"
	"github.com/vijaygupta18/multidb/internal/model"
)

// progressTracker forwards executor reports to the coordinator and mirrors
// progress onto the broker.
type progressTracker struct {
	coord  *coordinator.Coordinator
	broker *ProgressBroker
}

var _ executor.Tracker = (*progressTracker)(nil)

func (p *progressTracker) Track(id string, target model.TargetName, pid uint32, interrupt func(context.Context) error) {
	p.coord.Track(id, target, pid, interrupt)
}

func (p *progressTracker) Untrack(id string, target model.TargetName) {
	p.coord.Untrack(id, target)
}

func (p *progressTracker) RecordProgress(id string, target model.TargetName, current, total int, statement string) {
	p.coord.RecordProgress(id, target, current, total, statement)
	p.broker.Publish(id, Event{
		Type:      EventProgress,
		Target:    target,
		Current:   current,
		Total:     total,
		Statement: statement,
	})
}
