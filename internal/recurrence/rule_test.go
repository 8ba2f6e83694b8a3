package recurrence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"sxledger/internal/core"
)

func dates(cs []core.Cursor) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Date.String()
	}
	return out
}

func TestCompileShorthand(t *testing.T) {
	tests := []struct {
		name  string
		rec   core.Recurrence
		until core.Date
		want  []string
	}{
		{
			name:  "weekly",
			rec:   core.Recurrence{Frequency: core.Weekly, Interval: 1, Start: core.NewDate(2024, 1, 1)},
			until: core.NewDate(2024, 1, 22),
			want:  []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22"},
		},
		{
			name:  "biweekly",
			rec:   core.Recurrence{Frequency: core.Weekly, Interval: 2, Start: core.NewDate(2024, 1, 1)},
			until: core.NewDate(2024, 1, 31),
			want:  []string{"2024-01-01", "2024-01-15", "2024-01-29"},
		},
		{
			name:  "monthly end of month clamps",
			rec:   core.Recurrence{Frequency: core.Monthly, Interval: 1, Start: core.NewDate(2024, 1, 31)},
			until: core.NewDate(2024, 4, 30),
			want:  []string{"2024-01-31", "2024-02-29", "2024-03-31", "2024-04-30"},
		},
		{
			name:  "monthly mid month",
			rec:   core.Recurrence{Frequency: core.Monthly, Interval: 1, Start: core.NewDate(2024, 1, 15)},
			until: core.NewDate(2024, 3, 31),
			want:  []string{"2024-01-15", "2024-02-15", "2024-03-15"},
		},
		{
			name:  "yearly leap day",
			rec:   core.Recurrence{Frequency: core.Yearly, Interval: 1, Start: core.NewDate(2024, 2, 29)},
			until: core.NewDate(2028, 3, 1),
			want:  []string{"2024-02-29", "2025-02-28", "2026-02-28", "2027-02-28", "2028-02-29"},
		},
		{
			name:  "daily with end date",
			rec:   core.Recurrence{Frequency: core.Daily, Interval: 1, Start: core.NewDate(2024, 1, 1), End: core.NewDate(2024, 1, 3)},
			until: core.NewDate(2024, 12, 31),
			want:  []string{"2024-01-01", "2024-01-02", "2024-01-03"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Compile(tt.rec)
			require.NoError(t, err)
			got := Occurrences(r, core.Cursor{}, tt.until, 0)
			assert.Equal(t, tt.want, dates(got))
			for i, c := range got {
				assert.Equal(t, i+1, c.Count)
			}
		})
	}
}

func TestCompileRawRRule(t *testing.T) {
	r, err := Compile(core.Recurrence{
		Start: core.NewDate(2024, 1, 1),
		RRule: "RRULE:FREQ=WEEKLY;BYDAY=MO,WE",
	})
	require.NoError(t, err)

	got := Occurrences(r, core.Cursor{}, core.NewDate(2024, 1, 10), 0)
	assert.Equal(t, []string{"2024-01-01", "2024-01-03", "2024-01-08", "2024-01-10"}, dates(got))
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile(core.Recurrence{Frequency: "hourly", Interval: 1, Start: core.NewDate(2024, 1, 1)})
	assert.Error(t, err)

	_, err = Compile(core.Recurrence{Frequency: core.Daily, Interval: 1})
	assert.Error(t, err, "zero start must be rejected")

	_, err = Compile(core.Recurrence{Start: core.NewDate(2024, 1, 1), RRule: "FREQ=SOMETIMES"})
	assert.Error(t, err)
}

func TestNextIsPure(t *testing.T) {
	r, err := Compile(core.Recurrence{Frequency: core.Weekly, Interval: 1, Start: core.NewDate(2024, 1, 1)})
	require.NoError(t, err)

	c := core.Cursor{}
	first, ok := r.Next(c)
	require.True(t, ok)
	assert.True(t, c.Date.IsZero(), "input cursor must not change")
	assert.Equal(t, 0, c.Count)

	again, ok := r.Next(c)
	require.True(t, ok)
	assert.Equal(t, first, again)
}

func TestNextResumesFromPersistedState(t *testing.T) {
	r, err := Compile(core.Recurrence{Frequency: core.Weekly, Interval: 1, Start: core.NewDate(2024, 1, 1)})
	require.NoError(t, err)

	next, ok := r.Next(core.Cursor{Date: core.NewDate(2024, 1, 8), Count: 2})
	require.True(t, ok)
	assert.Equal(t, "2024-01-15", next.Date.String())
	assert.Equal(t, 3, next.Count)
}

func TestNextHonorsRemainingCount(t *testing.T) {
	r, err := Compile(core.Recurrence{Frequency: core.Daily, Interval: 1, Start: core.NewDate(2024, 1, 1)})
	require.NoError(t, err)

	got := Occurrences(r, core.Cursor{Limited: true, Remaining: 2}, core.NewDate(2024, 12, 31), 0)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[1].Remaining)

	_, ok := r.Next(got[1])
	assert.False(t, ok)
}

func TestOccurrencesLimit(t *testing.T) {
	r, err := Compile(core.Recurrence{Frequency: core.Daily, Interval: 1, Start: core.NewDate(2024, 1, 1)})
	require.NoError(t, err)
	assert.Len(t, Occurrences(r, core.Cursor{}, core.NewDate(2030, 1, 1), 5), 5)
}

func TestRegisterFrequency(t *testing.T) {
	const fortnightly core.RepetitionTypes = "fortnightly"
	RegisterFrequency(fortnightly, func(_ int, _ core.Date) rrule.ROption {
		return rrule.ROption{Freq: rrule.WEEKLY, Interval: 2}
	})

	r, err := Compile(core.Recurrence{Frequency: fortnightly, Interval: 1, Start: core.NewDate(2024, 1, 1)})
	require.NoError(t, err)
	got := Occurrences(r, core.Cursor{}, core.NewDate(2024, 1, 31), 0)
	assert.Equal(t, []string{"2024-01-01", "2024-01-15", "2024-01-29"}, dates(got))
}
