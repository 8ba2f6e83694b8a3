package services

import (
	"context"
	"log/slog"

	"sxledger/internal/sx"
)

// Publisher is the outbound half of the AMQP client.
type Publisher interface {
	PublishScheduleEvent(ctx context.Context, eventType, scheduleID string) error
	PublishTransactionCreated(ctx context.Context, id, scheduleID string, version int) error
}

// EventPublisher forwards model notifications and created transactions.
// With a nil Publisher it only logs. Publish failures are logged and never
// returned: the transactions are already committed and the mirror's
// pending sweep picks them up.
type EventPublisher struct {
	pub Publisher
}

func NewEventPublisher(pub Publisher) *EventPublisher {
	return &EventPublisher{pub: pub}
}

func (p *EventPublisher) PublishEvents(ctx context.Context, events []sx.Event) {
	if p == nil {
		return
	}
	for _, e := range events {
		if p.pub == nil {
			slog.DebugContext(ctx, "Schedule event", "event", string(e.Type), "schedule_id", e.ScheduleID)
			continue
		}
		if err := p.pub.PublishScheduleEvent(ctx, string(e.Type), e.ScheduleID); err != nil {
			slog.WarnContext(ctx, "Failed to publish schedule event",
				"event", string(e.Type),
				"schedule_id", e.ScheduleID,
				"error", err)
		}
	}
}

// PublishCreated announces committed transactions. created maps each
// transaction ID to the schedule that produced it.
func (p *EventPublisher) PublishCreated(ctx context.Context, created []CreatedTransaction) {
	if p == nil {
		return
	}
	for _, c := range created {
		if p.pub == nil {
			slog.DebugContext(ctx, "Transaction created", "transaction_id", c.ID, "schedule_id", c.ScheduleID)
			continue
		}
		if err := p.pub.PublishTransactionCreated(ctx, c.ID, c.ScheduleID, 1); err != nil {
			slog.WarnContext(ctx, "Failed to publish created transaction",
				"transaction_id", c.ID,
				"error", err)
		}
	}
}

// CreatedTransaction pairs a committed transaction with its schedule.
type CreatedTransaction struct {
	ID         string `json:"id"`
	ScheduleID string `json:"schedule_id"`
}
