package scheduler

import (
	"context"

	"github.com/ethyca/fides-sub009/internal/domain/dsr"
	"github.com/ethyca/fides-sub009/pkg/common/logger"
)

// Ensure LogPublisher implements dsr.DomainEventPublisher at compile time.
var _ dsr.DomainEventPublisher = (*LogPublisher)(nil)

// LogPublisher emits task lifecycle events to the structured log. It stands
// in for the privacy request owner's real event transport until one is wired.
type LogPublisher struct {
	logger *logger.Logger
}

// NewLogPublisher creates a publisher that logs each event.
func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{logger: log.With("component", "event_publisher")}
}

// PublishDomainEvent logs the event with its type-specific fields.
func (p *LogPublisher) PublishDomainEvent(ctx context.Context, event dsr.DomainEvent) error {
	switch e := event.(type) {
	case dsr.TaskSuspendedEvent:
		p.logger.Info(ctx, "Domain event", "event_type", e.EventType(),
			"task_id", e.TaskID, "privacy_request_id", e.PrivacyRequestID)
	case dsr.TaskCompletedEvent:
		p.logger.Info(ctx, "Domain event", "event_type", e.EventType(),
			"task_id", e.TaskID, "privacy_request_id", e.PrivacyRequestID,
			"action_type", string(e.ActionType), "row_count", e.RowCount, "rows_masked", e.RowsMasked)
	case dsr.TaskFailedEvent:
		p.logger.Error(ctx, "Domain event", "event_type", e.EventType(),
			"task_id", e.TaskID, "privacy_request_id", e.PrivacyRequestID, "reason", e.Reason)
	default:
		p.logger.Info(ctx, "Domain event", "event_type", event.EventType())
	}
	return nil
}
