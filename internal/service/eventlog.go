package service

import (
	"context"

	"github.com/lukezbihlyj/icomfort-go/internal/history"
)

// EventLogService exposes the history store read path.
type EventLogService struct {
	events history.Store
}

func NewEventLogService(events history.Store) *EventLogService {
	return &EventLogService{events: events}
}

func (s *EventLogService) List(ctx context.Context, f history.Filter) ([]history.Event, error) {
	return s.events.List(ctx, f)
}
