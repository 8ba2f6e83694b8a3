// Package calendar renders scheduled occurrences as an iCalendar feed.
package calendar

import (
	"fmt"
	"io"
	"sort"
	"time"

	ical "github.com/arran4/golang-ical"

	"sxledger/internal/core"
	"sxledger/internal/recurrence"
	"sxledger/internal/sx"
)

const productID = "-//sxledger//scheduled transactions//EN"

// Occurrence is one dated entry of the feed.
type Occurrence struct {
	UID          string
	ScheduleID   string
	ScheduleName string
	Date         core.Date
	Sequence     int
	// State is the instance state, or "forecast" for dates past the
	// observation window.
	State string
}

// StateForecast marks occurrences computed beyond the model window.
const StateForecast = "forecast"

// FromGroups lists every pending instance of the model groups. Created
// and ignored instances are left out.
func FromGroups(groups []*sx.Instances) []Occurrence {
	var out []Occurrence
	for _, g := range groups {
		for _, inst := range g.List {
			if inst.State == sx.Created || inst.State == sx.Ignored {
				continue
			}
			out = append(out, Occurrence{
				UID:          fmt.Sprintf("%s-%d@sxledger", g.Schedule.ID, inst.Sequence()),
				ScheduleID:   g.Schedule.ID,
				ScheduleName: g.Schedule.Name,
				Date:         inst.Date,
				Sequence:     inst.Sequence(),
				State:        inst.State.String(),
			})
		}
	}
	sortOccurrences(out)
	return out
}

// Forecast walks each schedule past after, up to and including until,
// without touching its counters. At most limit occurrences are produced
// per schedule when limit > 0.
func Forecast(schedules []*core.Schedule, after, until core.Date, limit int) ([]Occurrence, []error) {
	var (
		out  []Occurrence
		errs []error
	)
	for _, s := range schedules {
		if !s.Enabled {
			continue
		}
		rule, err := recurrence.Compile(s.Recurrence)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %q: %w", s.Name, err))
			continue
		}
		count := 0
		for _, c := range recurrence.Occurrences(rule, s.SeedCursor(), until, 0) {
			if c.Date.Compare(after) <= 0 {
				continue
			}
			if limit > 0 && count >= limit {
				break
			}
			count++
			out = append(out, Occurrence{
				UID:          fmt.Sprintf("%s-%d@sxledger", s.ID, c.Count),
				ScheduleID:   s.ID,
				ScheduleName: s.Name,
				Date:         c.Date,
				Sequence:     c.Count,
				State:        StateForecast,
			})
		}
	}
	sortOccurrences(out)
	return out, errs
}

// Merge joins window and forecast occurrences. An instance in the window
// wins over a forecast of the same occurrence.
func Merge(window, forecast []Occurrence) []Occurrence {
	seen := make(map[string]bool, len(window))
	out := append([]Occurrence(nil), window...)
	for _, o := range window {
		seen[o.UID] = true
	}
	for _, o := range forecast {
		if !seen[o.UID] {
			out = append(out, o)
		}
	}
	sortOccurrences(out)
	return out
}

func sortOccurrences(occ []Occurrence) {
	sort.SliceStable(occ, func(i, j int) bool {
		if c := occ[i].Date.Compare(occ[j].Date); c != 0 {
			return c < 0
		}
		return occ[i].ScheduleName < occ[j].ScheduleName
	})
}

// Build turns occurrences into all-day events.
func Build(name string, occ []Occurrence, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, o := range occ {
		ev := cal.AddEvent(o.UID)
		ev.SetDtStampTime(stamp)
		ev.SetAllDayStartAt(o.Date.Time)
		ev.SetAllDayEndAt(o.Date.AddDays(1).Time)
		ev.SetSummary(o.ScheduleName)
		ev.SetDescription(fmt.Sprintf("Occurrence %d of %s (%s)", o.Sequence, o.ScheduleName, o.State))
		ev.SetProperty(ical.ComponentPropertyCategories, o.State)
	}
	return cal
}

// Write serializes the feed to w.
func Write(w io.Writer, name string, occ []Occurrence, stamp time.Time) error {
	_, err := io.WriteString(w, Build(name, occ, stamp).Serialize())
	return err
}
