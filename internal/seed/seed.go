// Package seed loads accounts and schedule definitions from YAML files.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"sxledger/internal/core"
	"sxledger/internal/recurrence"
	"sxledger/internal/storage"
)

type (
	File struct {
		Accounts  []Account  `yaml:"accounts" json:"accounts,omitempty"`
		Schedules []Schedule `yaml:"schedules" json:"schedules,omitempty"`
	}

	Account struct {
		ID        string `yaml:"id" json:"id"`
		Name      string `yaml:"name" json:"name"`
		Commodity string `yaml:"commodity" json:"commodity,omitempty"`
		Places    int32  `yaml:"places" json:"places,omitempty"`
	}

	Recurrence struct {
		Frequency string `yaml:"frequency" json:"frequency,omitempty"`
		Interval  int    `yaml:"interval" json:"interval,omitempty"`
		Start     string `yaml:"start" json:"start,omitempty"`
		End       string `yaml:"end" json:"end,omitempty"`
		RRule     string `yaml:"rrule" json:"rrule,omitempty"`
	}

	Split struct {
		Account string `yaml:"account" json:"account,omitempty"`
		Memo    string `yaml:"memo" json:"memo,omitempty"`
		Action  string `yaml:"action" json:"action,omitempty"`
		Debit   string `yaml:"debit" json:"debit,omitempty"`
		Credit  string `yaml:"credit" json:"credit,omitempty"`
	}

	Template struct {
		Description string  `yaml:"description" json:"description,omitempty"`
		Num         string  `yaml:"num" json:"num,omitempty"`
		Notes       string  `yaml:"notes" json:"notes,omitempty"`
		Splits      []Split `yaml:"splits" json:"splits,omitempty"`
	}

	Schedule struct {
		ID                string     `yaml:"id" json:"id"`
		Name              string     `yaml:"name" json:"name"`
		Enabled           *bool      `yaml:"enabled" json:"enabled,omitempty"`
		AutoCreate        bool       `yaml:"auto_create" json:"auto_create,omitempty"`
		AdvanceCreateDays int        `yaml:"advance_create_days" json:"advance_create_days,omitempty"`
		AdvanceRemindDays int        `yaml:"advance_remind_days" json:"advance_remind_days,omitempty"`
		OccurrenceLimit   int        `yaml:"occurrence_limit" json:"occurrence_limit,omitempty"`
		Recurrence        Recurrence `yaml:"recurrence" json:"recurrence,omitempty"`
		Templates         []Template `yaml:"templates" json:"templates,omitempty"`
	}
)

// Store is what Apply writes to.
type Store interface {
	SaveAccount(ctx context.Context, a core.Account) error
	Schedule(ctx context.Context, id string) (*core.Schedule, error)
	SaveSchedule(ctx context.Context, s *core.Schedule) error
}

// Result counts what Apply stored.
type Result struct {
	Accounts  int
	Created   int
	Updated   int
	Schedules []*core.Schedule
}

func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a seed document, rejecting unknown keys.
func Load(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return &f, nil
}

// ToAccount converts a seed account.
func (a Account) ToAccount() core.Account {
	places := a.Places
	if places == 0 {
		places = 2
	}
	return core.Account{
		ID:        strings.TrimSpace(a.ID),
		Name:      strings.TrimSpace(a.Name),
		Commodity: core.Commodity{Mnemonic: strings.ToUpper(strings.TrimSpace(a.Commodity)), Places: places},
	}
}

// ToSchedule converts a seed schedule into a validated definition with
// fresh counters.
func (s Schedule) ToSchedule() (*core.Schedule, error) {
	start, err := core.ParseDate(s.Recurrence.Start)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: start: %w", s.Name, err)
	}
	var end core.Date
	if strings.TrimSpace(s.Recurrence.End) != "" {
		if end, err = core.ParseDate(s.Recurrence.End); err != nil {
			return nil, fmt.Errorf("schedule %q: end: %w", s.Name, err)
		}
	}
	interval := s.Recurrence.Interval
	if interval == 0 {
		interval = 1
	}

	out := &core.Schedule{
		ID:      strings.TrimSpace(s.ID),
		Name:    strings.TrimSpace(s.Name),
		Enabled: s.Enabled == nil || *s.Enabled,
		Recurrence: core.Recurrence{
			Frequency: core.RepetitionTypes(strings.ToLower(strings.TrimSpace(s.Recurrence.Frequency))),
			Interval:  interval,
			Start:     start,
			End:       end,
			RRule:     strings.TrimSpace(s.Recurrence.RRule),
		},
		AdvanceCreateDays:    s.AdvanceCreateDays,
		AdvanceRemindDays:    s.AdvanceRemindDays,
		AutoCreate:           s.AutoCreate,
		OccurrenceLimit:      s.OccurrenceLimit,
		RemainingOccurrences: s.OccurrenceLimit,
	}
	for _, t := range s.Templates {
		tt := core.TemplateTransaction{Description: t.Description, Num: t.Num, Notes: t.Notes}
		for _, sp := range t.Splits {
			tt.Splits = append(tt.Splits, core.TemplateSplit{
				AccountID:     strings.TrimSpace(sp.Account),
				Memo:          sp.Memo,
				Action:        sp.Action,
				DebitFormula:  sp.Debit,
				CreditFormula: sp.Credit,
			})
		}
		out.Templates = append(out.Templates, tt)
	}

	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", s.Name, err)
	}
	if _, err := recurrence.Compile(out.Recurrence); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", s.Name, err)
	}
	return out, nil
}

// FromSchedule is the inverse of ToSchedule. Counters are not part of a
// definition and are dropped.
func FromSchedule(s *core.Schedule) Schedule {
	enabled := s.Enabled
	out := Schedule{
		ID:                s.ID,
		Name:              s.Name,
		Enabled:           &enabled,
		AutoCreate:        s.AutoCreate,
		AdvanceCreateDays: s.AdvanceCreateDays,
		AdvanceRemindDays: s.AdvanceRemindDays,
		OccurrenceLimit:   s.OccurrenceLimit,
		Recurrence: Recurrence{
			Frequency: string(s.Recurrence.Frequency),
			Interval:  s.Recurrence.Interval,
			Start:     s.Recurrence.Start.String(),
			RRule:     s.Recurrence.RRule,
		},
	}
	if !s.Recurrence.End.IsZero() {
		out.Recurrence.End = s.Recurrence.End.String()
	}
	for _, tt := range s.Templates {
		t := Template{Description: tt.Description, Num: tt.Num, Notes: tt.Notes}
		for _, sp := range tt.Splits {
			t.Splits = append(t.Splits, Split{
				Account: sp.AccountID,
				Memo:    sp.Memo,
				Action:  sp.Action,
				Debit:   sp.DebitFormula,
				Credit:  sp.CreditFormula,
			})
		}
		out.Templates = append(out.Templates, t)
	}
	return out
}

// Carry moves the effecting state of existing onto a redefinition of the
// same schedule.
func Carry(dst, existing *core.Schedule) {
	dst.LastOccurrence = existing.LastOccurrence
	dst.InstanceCount = existing.InstanceCount
	dst.Postponed = existing.Postponed
	dst.RemainingOccurrences = remaining(dst.OccurrenceLimit, existing)
}

// Apply stores every account and schedule of f. Re-importing a schedule
// with a known ID replaces its definition but keeps its counters and
// postponed occurrences.
func Apply(ctx context.Context, store Store, f *File) (Result, error) {
	var res Result
	for _, a := range f.Accounts {
		if err := store.SaveAccount(ctx, a.ToAccount()); err != nil {
			return res, fmt.Errorf("account %q: %w", a.ID, err)
		}
		res.Accounts++
	}

	for _, def := range f.Schedules {
		s, err := def.ToSchedule()
		if err != nil {
			return res, err
		}
		if s.ID != "" {
			existing, err := store.Schedule(ctx, s.ID)
			switch {
			case err == nil:
				Carry(s, existing)
				res.Updated++
			case errors.Is(err, storage.ErrScheduleNotFound):
				res.Created++
			default:
				return res, fmt.Errorf("schedule %q: %w", s.Name, err)
			}
		} else {
			res.Created++
		}
		if err := store.SaveSchedule(ctx, s); err != nil {
			return res, fmt.Errorf("schedule %q: %w", s.Name, err)
		}
		res.Schedules = append(res.Schedules, s)
	}

	slog.InfoContext(ctx, "Seed applied",
		"accounts", res.Accounts,
		"schedules_created", res.Created,
		"schedules_updated", res.Updated)
	return res, nil
}

// remaining recomputes the allowance after a limit change, never below
// zero.
func remaining(limit int, existing *core.Schedule) int {
	if limit <= 0 {
		return 0
	}
	used := existing.InstanceCount
	if existing.OccurrenceLimit > 0 {
		used = existing.OccurrenceLimit - existing.RemainingOccurrences
	}
	if n := limit - used; n > 0 {
		return n
	}
	return 0
}
