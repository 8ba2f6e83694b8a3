package core

import (
	"errors"
	"strings"
)

type (
	// Recurrence is the persisted form of a schedule's rule. A raw RFC 5545
	// RRULE, when present, takes precedence over Frequency and Interval.
	Recurrence struct {
		Frequency RepetitionTypes
		Interval  int
		Start     Date
		End       Date // optional, inclusive
		RRule     string
	}

	// Cursor is the temporal state of a schedule at one occurrence. Date is
	// the occurrence the cursor points at (zero before the first one) and
	// Count its 1-based ordinal. Remaining only applies when Limited.
	Cursor struct {
		Date      Date
		Count     int
		Remaining int
		Limited   bool
	}

	Schedule struct {
		ID      string
		Name    string
		Enabled bool

		Recurrence        Recurrence
		AdvanceCreateDays int
		AdvanceRemindDays int
		AutoCreate        bool

		LastOccurrence       Date
		InstanceCount        int
		OccurrenceLimit      int // 0 means unlimited
		RemainingOccurrences int

		Templates []TemplateTransaction
		Postponed []Cursor // ordered by date
	}
)

var (
	ErrEmptyName         = errors.New("empty schedule name")
	ErrInvalidFrequency  = errors.New("invalid repetition type")
	ErrInvalidInterval   = errors.New("interval must be at least 1")
	ErrNegativeAdvance   = errors.New("advance days cannot be negative")
	ErrNoTemplates       = errors.New("schedule has no template transactions")
	ErrScheduleExhausted = errors.New("schedule has no remaining occurrences")
)

func (r Recurrence) Validate() error {
	if err := r.Start.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}
	if !r.End.IsZero() {
		if err := r.End.Validate(); err != nil {
			return errors.New("invalid end date: " + err.Error())
		}
		if r.End.Compare(r.Start) < 0 {
			return errors.New("end date must be after start date")
		}
	}
	if strings.TrimSpace(r.RRule) != "" {
		return nil
	}
	if strings.TrimSpace(string(r.Frequency)) == "" {
		return ErrInvalidFrequency
	}
	if r.Interval < 1 {
		return ErrInvalidInterval
	}
	return nil
}

// Exhausted reports whether the cursor may not advance any further.
func (c Cursor) Exhausted() bool {
	return c.Limited && c.Remaining <= 0
}

// SameInstance reports whether two cursors denote the same occurrence.
func (c Cursor) SameInstance(o Cursor) bool {
	return c.Count == o.Count && c.Date.Compare(o.Date) == 0
}

func (s Schedule) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyName
	}
	if len(s.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if err := s.Recurrence.Validate(); err != nil {
		return err
	}
	if s.AdvanceCreateDays < 0 || s.AdvanceRemindDays < 0 {
		return ErrNegativeAdvance
	}
	if s.OccurrenceLimit < 0 || s.RemainingOccurrences < 0 {
		return errors.New("occurrence counts cannot be negative")
	}
	if len(s.Templates) == 0 {
		return ErrNoTemplates
	}
	for _, t := range s.Templates {
		if err := t.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Exhausted reports whether a limited schedule has used up its occurrences.
func (s Schedule) Exhausted() bool {
	return s.OccurrenceLimit > 0 && s.RemainingOccurrences <= 0
}

// SeedCursor returns the temporal state right after the last effected
// occurrence, from which generation resumes.
func (s Schedule) SeedCursor() Cursor {
	return Cursor{
		Date:      s.LastOccurrence,
		Count:     s.InstanceCount,
		Remaining: s.RemainingOccurrences,
		Limited:   s.OccurrenceLimit > 0,
	}
}

// AddPostponed records a deferred occurrence, keeping the list date-ordered.
func (s *Schedule) AddPostponed(c Cursor) {
	for _, p := range s.Postponed {
		if p.SameInstance(c) {
			return
		}
	}
	i := len(s.Postponed)
	for i > 0 && s.Postponed[i-1].Date.Compare(c.Date) > 0 {
		i--
	}
	s.Postponed = append(s.Postponed, Cursor{})
	copy(s.Postponed[i+1:], s.Postponed[i:])
	s.Postponed[i] = c
}

// RemovePostponed drops a deferred occurrence; it reports whether one was found.
func (s *Schedule) RemovePostponed(c Cursor) bool {
	for i, p := range s.Postponed {
		if p.SameInstance(c) {
			s.Postponed = append(s.Postponed[:i], s.Postponed[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate templates and postponed
// lists without touching the original.
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	out := *s
	out.Templates = make([]TemplateTransaction, len(s.Templates))
	for i, t := range s.Templates {
		t.Splits = append([]TemplateSplit(nil), t.Splits...)
		out.Templates[i] = t
	}
	out.Postponed = append([]Cursor(nil), s.Postponed...)
	return &out
}
