// Package recurrence computes occurrence dates for schedules.
//
// A Rule is compiled once from a core.Recurrence and then advanced over
// immutable core.Cursor values; advancing never mutates a cursor, so every
// instance can keep its own snapshot.
package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"sxledger/internal/core"
)

// Rule is a compiled recurrence.
type Rule struct {
	rr    *rrule.RRule
	start core.Date
	end   core.Date
}

// Compile builds a Rule from the persisted recurrence. A raw RRULE takes
// precedence over the shorthand frequency.
func Compile(rec core.Recurrence) (*Rule, error) {
	if err := rec.Start.Validate(); err != nil {
		return nil, fmt.Errorf("recurrence start: %w", err)
	}

	var opt rrule.ROption
	if raw := strings.TrimSpace(rec.RRule); raw != "" {
		parsed, err := rrule.StrToROption(strings.TrimPrefix(raw, "RRULE:"))
		if err != nil {
			return nil, fmt.Errorf("parse rrule %q: %w", raw, err)
		}
		opt = *parsed
	} else {
		builder, err := frequencyBuilder(rec.Frequency)
		if err != nil {
			return nil, err
		}
		interval := rec.Interval
		if interval < 1 {
			interval = 1
		}
		opt = builder(interval, rec.Start)
	}

	opt.Dtstart = rec.Start.Time
	if !rec.End.IsZero() && (opt.Until.IsZero() || rec.End.Time.Before(opt.Until)) {
		opt.Until = rec.End.Time
	}

	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("build rrule: %w", err)
	}
	return &Rule{rr: rr, start: rec.Start, end: rec.End}, nil
}

// Start returns the first date the rule may produce.
func (r *Rule) Start() core.Date { return r.start }

// String renders the rule in RFC 5545 form.
func (r *Rule) String() string { return r.rr.String() }

// Next advances c to the following occurrence. It reports false when the
// rule has no further date or the cursor has no remaining occurrences.
// The returned cursor is a new value; c is left untouched.
func (r *Rule) Next(c core.Cursor) (core.Cursor, bool) {
	if c.Exhausted() {
		return c, false
	}

	var t time.Time
	if c.Date.IsZero() {
		t = r.rr.After(r.start.Time, true)
	} else {
		t = r.rr.After(c.Date.Time, false)
	}
	if t.IsZero() {
		return c, false
	}

	next := c
	next.Date = core.DateOf(t)
	next.Count++
	if next.Limited {
		next.Remaining--
	}
	return next, true
}

// Occurrences walks the rule from c and returns every cursor dated on or
// before until, capped at limit entries when limit > 0.
func Occurrences(r *Rule, c core.Cursor, until core.Date, limit int) []core.Cursor {
	var out []core.Cursor
	for {
		next, ok := r.Next(c)
		if !ok || next.Date.Compare(until) > 0 {
			return out
		}
		out = append(out, next)
		if limit > 0 && len(out) >= limit {
			return out
		}
		c = next
	}
}
