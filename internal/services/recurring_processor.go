package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"sxledger/internal/core"
	"sxledger/internal/sx"
)

// ScheduleStore loads schedules and persists what effecting changes.
type ScheduleStore interface {
	ListSchedules(ctx context.Context, enabledOnly bool) ([]*core.Schedule, error)
	// SaveScheduleState writes the counters of s unless the stored
	// instance count has moved on from prevCount.
	SaveScheduleState(ctx context.Context, s *core.Schedule, prevCount int) error
}

// RunReport summarizes one unattended run.
type RunReport struct {
	Schedules int
	Created   []CreatedTransaction
	// Skipped lists auto-create schedules held back because an instance
	// due for creation still has unresolved variables.
	Skipped []string
	Errors  []error
}

// RecurringProcessor creates the due transactions of auto-create schedules
// without user interaction.
type RecurringProcessor struct {
	store     ScheduleStore
	ledger    sx.Ledger
	eval      sx.Evaluator
	publisher *EventPublisher
}

func NewRecurringProcessor(store ScheduleStore, ledger sx.Ledger, eval sx.Evaluator, publisher *EventPublisher) *RecurringProcessor {
	return &RecurringProcessor{
		store:     store,
		ledger:    ledger,
		eval:      eval,
		publisher: publisher,
	}
}

// ProcessDue generates every enabled schedule up to today and effects the
// auto-create ones. Schedules needing variable values are never guessed
// at; they are skipped and reported.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, today core.Date) (RunReport, error) {
	var report RunReport
	if p.store == nil || p.ledger == nil {
		return report, errors.New("processor not properly initialized")
	}

	all, err := p.store.ListSchedules(ctx, true)
	if err != nil {
		return report, fmt.Errorf("list schedules: %w", err)
	}
	active := make([]*core.Schedule, 0, len(all))
	for _, s := range all {
		if !s.Exhausted() {
			active = append(active, s)
		}
	}
	report.Schedules = len(active)

	opts := []sx.Option{sx.WithLedger(p.ledger)}
	if p.eval != nil {
		opts = append(opts, sx.WithEvaluator(p.eval))
	}
	m, err := sx.Generate(ctx, active, today, opts...)
	if err != nil {
		return report, fmt.Errorf("generate: %w", err)
	}

	held := map[string]bool{}
	for _, need := range m.CheckVariables() {
		g, ok := m.Group(need.Instance.ScheduleID)
		if !ok || !g.Schedule.AutoCreate || held[g.Schedule.ID] {
			continue
		}
		held[g.Schedule.ID] = true
		slog.WarnContext(ctx, "Holding back schedule with unresolved variables",
			"schedule_id", g.Schedule.ID,
			"schedule", g.Schedule.Name,
			"variable", need.Name,
			"instance_date", need.Instance.Date.String())
	}
	for id := range held {
		if err := m.RemoveSchedule(id); err == nil {
			report.Skipped = append(report.Skipped, id)
		}
	}
	sort.Strings(report.Skipped)
	m.DrainEvents()

	prev := instanceCounts(m)
	res := m.EffectChanges(ctx, true)
	report.Errors = append(report.Errors, res.Errors...)
	report.Created = createdFrom(res)

	for _, s := range res.Updated {
		if err := p.store.SaveScheduleState(ctx, s, prev[s.ID]); err != nil {
			slog.ErrorContext(ctx, "Failed to persist schedule state",
				"schedule_id", s.ID,
				"error", err)
			report.Errors = append(report.Errors, fmt.Errorf("save state of %q: %w", s.Name, err))
		}
	}

	p.publisher.PublishEvents(ctx, m.DrainEvents())
	p.publisher.PublishCreated(ctx, report.Created)

	slog.InfoContext(ctx, "Recurring transaction processing complete",
		"processing_date", today.String(),
		"schedules", report.Schedules,
		"created", len(report.Created),
		"skipped", len(report.Skipped),
		"errors", len(report.Errors))
	return report, nil
}

// instanceCounts records the counters the model started from, which is what
// the store must still hold for a state save to be accepted.
func instanceCounts(m *sx.Model) map[string]int {
	out := make(map[string]int)
	for _, g := range m.Groups() {
		out[g.Schedule.ID] = g.Schedule.InstanceCount
	}
	return out
}

func createdFrom(res sx.EffectResult) []CreatedTransaction {
	out := make([]CreatedTransaction, 0, len(res.Created))
	for _, id := range res.Created {
		out = append(out, CreatedTransaction{ID: id, ScheduleID: res.Origin[id]})
	}
	return out
}
