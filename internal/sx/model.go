// Package sx tracks the dated instances of recurring transactions inside an
// observation window, lets callers edit their state and formula variables,
// and effects pending instances into ledger transactions.
//
// A Model is not safe for concurrent use; callers serialize access.
package sx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"sxledger/internal/core"
	"sxledger/internal/formula"
	"sxledger/internal/recurrence"
)

// Model holds the instance groups of every observed schedule.
type Model struct {
	rangeEnd core.Date
	groups   []*Instances

	ledger          Ledger
	accounts        AccountResolver
	eval            Evaluator
	logger          *slog.Logger
	now             func() time.Time
	includeDisabled bool

	events    []Event
	listeners []func(Event)
}

type Option func(*Model)

// WithLedger sets the store used to resolve accounts and commit transactions.
func WithLedger(l Ledger) Option {
	return func(m *Model) {
		m.ledger = l
		m.accounts = l
	}
}

// WithAccounts sets only the account resolver, for read-only models.
func WithAccounts(a AccountResolver) Option {
	return func(m *Model) { m.accounts = a }
}

func WithEvaluator(e Evaluator) Option {
	return func(m *Model) { m.eval = e }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Model) { m.logger = l }
}

// WithListener registers a callback invoked synchronously for every event.
func WithListener(fn func(Event)) Option {
	return func(m *Model) { m.listeners = append(m.listeners, fn) }
}

// WithClock overrides the time stamped on created transactions.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// IncludeDisabled makes the model observe disabled schedules too.
func IncludeDisabled() Option {
	return func(m *Model) { m.includeDisabled = true }
}

// Generate builds a model holding the instances of every schedule up to
// rangeEnd plus each schedule's advance windows. Schedules whose recurrence
// cannot be compiled are logged and left out.
func Generate(ctx context.Context, schedules []*core.Schedule, rangeEnd core.Date, opts ...Option) (*Model, error) {
	if rangeEnd.IsZero() {
		return nil, errors.New("range end is required")
	}
	m := &Model{rangeEnd: rangeEnd}
	for _, opt := range opts {
		opt(m)
	}
	if m.eval == nil {
		m.eval = formula.NewEvaluator()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}

	for _, s := range schedules {
		if !m.observes(s) {
			continue
		}
		g, err := m.generate(ctx, s)
		if err != nil {
			m.logger.WarnContext(ctx, "Skipping schedule",
				"schedule_id", s.ID,
				"schedule", s.Name,
				"error", err)
			continue
		}
		m.groups = append(m.groups, g)
	}

	m.logger.DebugContext(ctx, "Generated instance model",
		"range_end", rangeEnd.String(),
		"schedules", len(m.groups))
	return m, nil
}

func (m *Model) observes(s *core.Schedule) bool {
	return s != nil && (s.Enabled || m.includeDisabled)
}

// generate classifies the schedule's occurrences into postponed, to-create
// and reminder instances.
func (m *Model) generate(ctx context.Context, s *core.Schedule) (*Instances, error) {
	rule, err := recurrence.Compile(s.Recurrence)
	if err != nil {
		return nil, err
	}

	creationEnd := m.rangeEnd.AddDays(s.AdvanceCreateDays)
	remindEnd := creationEnd.AddDays(s.AdvanceRemindDays)

	g := &Instances{Schedule: s}
	m.discoverVariables(ctx, g)

	for _, snap := range s.Postponed {
		g.List = append(g.List, newInstance(s.ID, snap, Postponed, g.variableNames))
	}

	cur := s.SeedCursor()
	next, ok := rule.Next(cur)
	if ok {
		g.NextInstanceDate = next.Date
	}
	for ok && next.Date.Compare(creationEnd) <= 0 {
		g.List = append(g.List, newInstance(s.ID, next, ToCreate, g.variableNames))
		cur = next
		next, ok = rule.Next(cur)
	}
	for ok && next.Date.Compare(remindEnd) <= 0 {
		g.List = append(g.List, newInstance(s.ID, next, Reminder, g.variableNames))
		cur = next
		next, ok = rule.Next(cur)
	}
	return g, nil
}

// discoverVariables collects the identifiers used by every template split
// formula, plus an exchange-rate variable for each split whose account is
// not denominated in the template's first-split commodity.
func (m *Model) discoverVariables(ctx context.Context, g *Instances) {
	if g.parsed {
		return
	}
	seen := map[string]struct{}{}
	add := func(name string) {
		if name != LoopVariable {
			seen[name] = struct{}{}
		}
	}

	for _, tt := range g.Schedule.Templates {
		var first *core.Commodity
		for _, split := range tt.Splits {
			for _, f := range []string{split.DebitFormula, split.CreditFormula} {
				if strings.TrimSpace(f) == "" {
					continue
				}
				names, err := m.eval.Variables(f)
				if err != nil {
					m.logger.WarnContext(ctx, "Unparseable formula",
						"schedule", g.Schedule.Name,
						"formula", f,
						"error", err)
					continue
				}
				for _, n := range names {
					add(n)
				}
			}

			if m.accounts == nil || strings.TrimSpace(split.AccountID) == "" {
				continue
			}
			acct, err := m.accounts.Account(ctx, split.AccountID)
			if err != nil {
				m.logger.DebugContext(ctx, "Account lookup failed during variable discovery",
					"schedule", g.Schedule.Name,
					"account_id", split.AccountID,
					"error", err)
				continue
			}
			if first == nil {
				c := acct.Commodity
				first = &c
				continue
			}
			if !acct.Commodity.Equal(*first) {
				add(ExchangeVariable(acct.Commodity, *first))
			}
		}
	}

	g.variableNames = make([]string, 0, len(seen))
	for n := range seen {
		g.variableNames = append(g.variableNames, n)
	}
	sort.Strings(g.variableNames)
	g.parsed = true
}

// RangeEnd is the end of the observation window.
func (m *Model) RangeEnd() core.Date { return m.rangeEnd }

// Groups returns the instance groups in observation order.
func (m *Model) Groups() []*Instances {
	return append([]*Instances(nil), m.groups...)
}

// Group returns the instances of one schedule.
func (m *Model) Group(scheduleID string) (*Instances, bool) {
	i := m.groupIndex(scheduleID)
	if i < 0 {
		return nil, false
	}
	return m.groups[i], true
}

// Instance finds an instance by ID.
func (m *Model) Instance(id string) (*Instance, bool) {
	for _, g := range m.groups {
		for _, inst := range g.List {
			if inst.ID == id {
				return inst, true
			}
		}
	}
	return nil, false
}

func (m *Model) groupIndex(scheduleID string) int {
	for i, g := range m.groups {
		if g.Schedule.ID == scheduleID {
			return i
		}
	}
	return -1
}

// locate returns the group holding inst and inst's position in it.
func (m *Model) locate(inst *Instance) (*Instances, int, error) {
	if inst == nil {
		return nil, -1, ErrInstanceNotFound
	}
	g, ok := m.Group(inst.ScheduleID)
	if !ok {
		return nil, -1, ErrInstanceNotFound
	}
	idx := g.index(inst)
	if idx < 0 {
		return nil, -1, ErrInstanceNotFound
	}
	return g, idx, nil
}

// AddSchedule starts observing s. A schedule already in the model is
// regenerated instead.
func (m *Model) AddSchedule(ctx context.Context, s *core.Schedule) error {
	if s == nil {
		return errors.New("nil schedule")
	}
	if m.groupIndex(s.ID) >= 0 {
		return m.RegenerateSchedule(ctx, s)
	}
	if !m.observes(s) {
		return nil
	}
	g, err := m.generate(ctx, s)
	if err != nil {
		return fmt.Errorf("generate %q: %w", s.Name, err)
	}
	m.groups = append(m.groups, g)
	m.emit(EventAdded, s.ID)
	return nil
}

// RegenerateSchedule refreshes the instances of a redefined schedule. The
// leading run of instances whose dates match the regenerated list is kept
// with its edits; everything after the first mismatch is replaced.
func (m *Model) RegenerateSchedule(ctx context.Context, s *core.Schedule) error {
	if s == nil {
		return errors.New("nil schedule")
	}
	idx := m.groupIndex(s.ID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, s.ID)
	}
	existing := m.groups[idx]

	incoming, err := m.generate(ctx, s)
	if err != nil {
		return fmt.Errorf("regenerate %q: %w", s.Name, err)
	}

	n := 0
	for n < len(existing.List) && n < len(incoming.List) &&
		existing.List[n].Date.Compare(incoming.List[n].Date) == 0 {
		n++
	}
	merged := make([]*Instance, 0, len(incoming.List))
	merged = append(merged, existing.List[:n]...)
	merged = append(merged, incoming.List[n:]...)

	existing.List = merged
	existing.Schedule = s
	existing.NextInstanceDate = incoming.NextInstanceDate
	existing.variableNames = incoming.variableNames
	existing.parsed = incoming.parsed

	m.emit(EventUpdated, s.ID)
	return nil
}

// SetRangeEnd moves the end of the observation window and regenerates every
// group. An instance whose occurrence is still in the window keeps its ID,
// state and variable bindings; new occurrences are appended and those that
// fell out of the window are dropped.
func (m *Model) SetRangeEnd(ctx context.Context, end core.Date) error {
	if end.IsZero() {
		return errors.New("range end is required")
	}
	if end.Compare(m.rangeEnd) == 0 {
		return nil
	}
	m.rangeEnd = end

	var errs []error
	for _, g := range m.groups {
		incoming, err := m.generate(ctx, g.Schedule)
		if err != nil {
			errs = append(errs, fmt.Errorf("regenerate %q: %w", g.Schedule.Name, err))
			continue
		}
		kept := make(map[occurrence]*Instance, len(g.List))
		for _, inst := range g.List {
			if inst.State != Created {
				kept[occurrenceOf(inst)] = inst
			}
		}
		for i, inst := range incoming.List {
			if old, ok := kept[occurrenceOf(inst)]; ok {
				incoming.List[i] = old
			}
		}
		g.List = incoming.List
		g.NextInstanceDate = incoming.NextInstanceDate
		m.emit(EventUpdated, g.Schedule.ID)
	}

	m.logger.DebugContext(ctx, "Observation window moved",
		"range_end", end.String(),
		"schedules", len(m.groups))
	return errors.Join(errs...)
}

type occurrence struct {
	date  string
	count int
}

func occurrenceOf(inst *Instance) occurrence {
	return occurrence{date: inst.Date.String(), count: inst.Cursor.Count}
}

// RemoveSchedule stops observing a schedule and drops its instances.
func (m *Model) RemoveSchedule(scheduleID string) error {
	idx := m.groupIndex(scheduleID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, scheduleID)
	}
	m.groups = append(m.groups[:idx], m.groups[idx+1:]...)
	m.emit(EventRemoved, scheduleID)
	return nil
}
