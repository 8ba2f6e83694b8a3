package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"sxledger/internal/core"
	"sxledger/internal/storage"
	"sxledger/internal/sx"
)

// SessionStore is everything an interactive session reads and writes.
type SessionStore interface {
	ScheduleStore
	Schedule(ctx context.Context, id string) (*core.Schedule, error)
	SaveSchedule(ctx context.Context, s *core.Schedule) error
	DeleteSchedule(ctx context.Context, id string) error
}

type (
	VariableView struct {
		Name     string           `json:"name"`
		Value    *decimal.Decimal `json:"value,omitempty"`
		Editable bool             `json:"editable"`
	}

	InstanceView struct {
		ID           string         `json:"id"`
		ScheduleID   string         `json:"schedule_id"`
		ScheduleName string         `json:"schedule_name"`
		Date         core.Date      `json:"date"`
		State        sx.State       `json:"state"`
		Sequence     int            `json:"sequence"`
		Variables    []VariableView `json:"variables"`
	}

	GroupView struct {
		ScheduleID   string         `json:"schedule_id"`
		ScheduleName string         `json:"schedule_name"`
		AutoCreate   bool           `json:"auto_create"`
		NextDate     core.Date      `json:"next_date"`
		Instances    []InstanceView `json:"instances"`
	}

	NeededView struct {
		InstanceID   string    `json:"instance_id"`
		ScheduleName string    `json:"schedule_name"`
		Date         core.Date `json:"date"`
		Variable     string    `json:"variable"`
	}

	EffectReport struct {
		Created []CreatedTransaction `json:"created"`
		Errors  []string             `json:"errors"`
	}
)

// Session owns one instance model for interactive use. Every method holds
// the session lock, so the model only ever has a single writer.
type Session struct {
	mu        sync.Mutex
	store     SessionStore
	ledger    sx.Ledger
	eval      sx.Evaluator
	publisher *EventPublisher
	now       func() time.Time
	model     *sx.Model
}

func NewSession(store SessionStore, ledger sx.Ledger, eval sx.Evaluator, publisher *EventPublisher) *Session {
	return &Session{
		store:     store,
		ledger:    ledger,
		eval:      eval,
		publisher: publisher,
		now:       time.Now,
	}
}

// WithClock overrides the clock that decides the observation window.
func (s *Session) WithClock(now func() time.Time) *Session {
	s.now = now
	return s
}

// Refresh rebuilds the model from the store up to today, discarding
// unsaved edits.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refresh(ctx)
}

func (s *Session) refresh(ctx context.Context) error {
	schedules, err := s.store.ListSchedules(ctx, true)
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}
	opts := []sx.Option{sx.WithLedger(s.ledger)}
	if s.eval != nil {
		opts = append(opts, sx.WithEvaluator(s.eval))
	}
	m, err := sx.Generate(ctx, schedules, core.DateOf(s.now()), opts...)
	if err != nil {
		return err
	}
	s.model = m
	slog.DebugContext(ctx, "Session refreshed", "range_end", m.RangeEnd().String(), "schedules", len(m.Groups()))
	return nil
}

// Advance moves the observation window up to today. Unlike Refresh it keeps
// the state edits and variable bindings of instances still in the window.
func (s *Session) Advance(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model == nil {
		return s.refresh(ctx)
	}
	if err := s.model.SetRangeEnd(ctx, core.DateOf(s.now())); err != nil {
		return err
	}
	s.publisher.PublishEvents(ctx, s.model.DrainEvents())
	return nil
}

func (s *Session) ensure(ctx context.Context) error {
	if s.model != nil {
		return nil
	}
	return s.refresh(ctx)
}

// Groups returns a snapshot of every instance group.
func (s *Session) Groups(ctx context.Context) ([]GroupView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	groups := s.model.Groups()
	out := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupView(g))
	}
	return out, nil
}

// Summary counts what the current model still needs.
func (s *Session) Summary(ctx context.Context) (sx.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensure(ctx); err != nil {
		return sx.Summary{}, err
	}
	return s.model.Summarize(), nil
}

// Inspect runs fn on the live model under the session lock. fn must not
// keep references to the model after returning.
func (s *Session) Inspect(ctx context.Context, fn func(*sx.Model)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensure(ctx); err != nil {
		return err
	}
	fn(s.model)
	return nil
}

func (s *Session) Instance(ctx context.Context, instanceID string) (InstanceView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, g, err := s.lookup(ctx, instanceID)
	if err != nil {
		return InstanceView{}, err
	}
	return instanceView(g, inst), nil
}

func (s *Session) SetState(ctx context.Context, instanceID string, state sx.State) (InstanceView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, g, err := s.lookup(ctx, instanceID)
	if err != nil {
		return InstanceView{}, err
	}
	if err := s.model.SetInstanceState(inst, state); err != nil {
		return InstanceView{}, err
	}
	s.publisher.PublishEvents(ctx, s.model.DrainEvents())
	return instanceView(g, inst), nil
}

func (s *Session) SetVariable(ctx context.Context, instanceID, name string, value decimal.Decimal) (InstanceView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, g, err := s.lookup(ctx, instanceID)
	if err != nil {
		return InstanceView{}, err
	}
	if err := s.model.SetVariable(inst, name, value); err != nil {
		return InstanceView{}, err
	}
	s.publisher.PublishEvents(ctx, s.model.DrainEvents())
	return instanceView(g, inst), nil
}

func (s *Session) lookup(ctx context.Context, instanceID string) (*sx.Instance, *sx.Instances, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, nil, err
	}
	inst, ok := s.model.Instance(instanceID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", sx.ErrInstanceNotFound, instanceID)
	}
	g, _ := s.model.Group(inst.ScheduleID)
	return inst, g, nil
}

// Needed lists the variables that must be set before effecting.
func (s *Session) Needed(ctx context.Context) ([]NeededView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	return neededViews(s.model), nil
}

func neededViews(m *sx.Model) []NeededView {
	var out []NeededView
	for _, n := range m.CheckVariables() {
		name := ""
		if g, ok := m.Group(n.Instance.ScheduleID); ok {
			name = g.Schedule.Name
		}
		out = append(out, NeededView{
			InstanceID:   n.Instance.ID,
			ScheduleName: name,
			Date:         n.Instance.Date,
			Variable:     n.Name,
		})
	}
	return out
}

// NeededError is returned by Effect when instances pending creation still
// have unresolved variables.
type NeededError struct {
	Needed []NeededView
}

func (e *NeededError) Error() string {
	return fmt.Sprintf("%d variable(s) need values before effecting", len(e.Needed))
}

// Effect applies every instance state, persists the schedules it advanced
// and publishes what was created. Unless autoCreateOnly is set, it refuses
// with a *NeededError while any variable is unresolved. Schedules effected
// by another writer since the model was built are reloaded first, so their
// occurrences are not created twice.
func (s *Session) Effect(ctx context.Context, autoCreateOnly bool) (EffectReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensure(ctx); err != nil {
		return EffectReport{}, err
	}
	if err := s.sync(ctx); err != nil {
		return EffectReport{}, err
	}
	if !autoCreateOnly {
		if needed := neededViews(s.model); len(needed) > 0 {
			s.publisher.PublishEvents(ctx, s.model.DrainEvents())
			return EffectReport{}, &NeededError{Needed: needed}
		}
	}

	prev := instanceCounts(s.model)
	res := s.model.EffectChanges(ctx, autoCreateOnly)
	report := EffectReport{Created: createdFrom(res)}
	for _, err := range res.Errors {
		report.Errors = append(report.Errors, err.Error())
	}

	var saveErr error
	for _, sched := range res.Updated {
		if err := s.store.SaveScheduleState(ctx, sched, prev[sched.ID]); err != nil {
			saveErr = errors.Join(saveErr, fmt.Errorf("save state of %q: %w", sched.Name, err))
		}
	}

	s.publisher.PublishEvents(ctx, s.model.DrainEvents())
	s.publisher.PublishCreated(ctx, report.Created)
	return report, saveErr
}

// sync reloads every observed schedule and regenerates the ones whose
// counters or postponed list changed in the store.
func (s *Session) sync(ctx context.Context) error {
	for _, g := range s.model.Groups() {
		id := g.Schedule.ID
		stored, err := s.store.Schedule(ctx, id)
		switch {
		case errors.Is(err, storage.ErrScheduleNotFound):
			if err := s.model.RemoveSchedule(id); err != nil {
				return err
			}
			continue
		case err != nil:
			return fmt.Errorf("reload schedule %s: %w", id, err)
		case sameState(stored, g.Schedule):
			continue
		}

		slog.InfoContext(ctx, "Schedule changed in store, regenerating",
			"schedule_id", id,
			"schedule", stored.Name,
			"instance_count", stored.InstanceCount,
			"last_occurrence", stored.LastOccurrence.String())
		if !stored.Enabled {
			err = s.model.RemoveSchedule(id)
		} else {
			err = s.model.RegenerateSchedule(ctx, stored)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func sameState(a, b *core.Schedule) bool {
	if a.InstanceCount != b.InstanceCount ||
		a.RemainingOccurrences != b.RemainingOccurrences ||
		a.LastOccurrence.Compare(b.LastOccurrence) != 0 ||
		len(a.Postponed) != len(b.Postponed) {
		return false
	}
	seen := make(map[string]int, len(a.Postponed))
	for _, c := range a.Postponed {
		seen[c.Date.String()] = c.Count
	}
	for _, c := range b.Postponed {
		if n, ok := seen[c.Date.String()]; !ok || n != c.Count {
			return false
		}
	}
	return true
}

func (s *Session) Schedules(ctx context.Context) ([]*core.Schedule, error) {
	return s.store.ListSchedules(ctx, false)
}

func (s *Session) Schedule(ctx context.Context, id string) (*core.Schedule, error) {
	return s.store.Schedule(ctx, id)
}

// UpsertSchedule saves sched and brings the model in line: new schedules
// are added, known ones regenerated, and disabled ones dropped.
func (s *Session) UpsertSchedule(ctx context.Context, sched *core.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SaveSchedule(ctx, sched); err != nil {
		return err
	}
	if s.model == nil {
		return s.refresh(ctx)
	}

	_, known := s.model.Group(sched.ID)
	var err error
	switch {
	case !sched.Enabled && known:
		err = s.model.RemoveSchedule(sched.ID)
	case !sched.Enabled:
	default:
		err = s.model.AddSchedule(ctx, sched)
	}
	s.publisher.PublishEvents(ctx, s.model.DrainEvents())
	return err
}

func (s *Session) DeleteSchedule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteSchedule(ctx, id); err != nil {
		return err
	}
	if s.model == nil {
		return nil
	}
	if err := s.model.RemoveSchedule(id); err != nil && !errors.Is(err, sx.ErrScheduleNotFound) {
		return err
	}
	s.publisher.PublishEvents(ctx, s.model.DrainEvents())
	return nil
}

func groupView(g *sx.Instances) GroupView {
	v := GroupView{
		ScheduleID:   g.Schedule.ID,
		ScheduleName: g.Schedule.Name,
		AutoCreate:   g.Schedule.AutoCreate,
		NextDate:     g.NextInstanceDate,
		Instances:    make([]InstanceView, 0, len(g.List)),
	}
	for _, inst := range g.List {
		v.Instances = append(v.Instances, instanceView(g, inst))
	}
	return v
}

func instanceView(g *sx.Instances, inst *sx.Instance) InstanceView {
	v := InstanceView{
		ID:         inst.ID,
		ScheduleID: inst.ScheduleID,
		Date:       inst.Date,
		State:      inst.State,
		Sequence:   inst.Sequence(),
	}
	if g != nil {
		v.ScheduleName = g.Schedule.Name
	}
	for _, name := range inst.Variables.Names() {
		b := inst.Variables[name]
		vv := VariableView{Name: name, Editable: b.Editable}
		if b.Resolved {
			val := b.Value
			vv.Value = &val
		}
		v.Variables = append(v.Variables, vv)
	}
	return v
}
