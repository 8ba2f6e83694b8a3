package seed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sxledger/internal/core"
	"sxledger/internal/storage"
)

const sample = `
accounts:
  - id: bank
    name: Assets:Bank
    commodity: eur
  - id: rent
    name: Expenses:Rent
    commodity: EUR
schedules:
  - id: rent-monthly
    name: Rent
    auto_create: true
    occurrence_limit: 12
    recurrence:
      frequency: monthly
      start: 2024-01-31
    templates:
      - description: Rent
        splits:
          - account: rent
            debit: "800"
          - account: bank
            credit: "800"
  - name: Insurance
    enabled: false
    advance_remind_days: 14
    recurrence:
      rrule: FREQ=YEARLY;BYMONTH=3;BYMONTHDAY=1
      start: 2024-03-01
    templates:
      - description: Car insurance
        splits:
          - account: rent
            debit: premium
          - account: bank
            credit: premium
`

func TestLoad(t *testing.T) {
	f, err := Load(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, f.Accounts, 2)
	require.Len(t, f.Schedules, 2)

	acct := f.Accounts[0].ToAccount()
	assert.Equal(t, core.Commodity{Mnemonic: "EUR", Places: 2}, acct.Commodity)

	rent, err := f.Schedules[0].ToSchedule()
	require.NoError(t, err)
	assert.True(t, rent.Enabled)
	assert.Equal(t, core.Monthly, rent.Recurrence.Frequency)
	assert.Equal(t, 1, rent.Recurrence.Interval)
	assert.Equal(t, core.NewDate(2024, 1, 31), rent.Recurrence.Start)
	assert.Equal(t, 12, rent.RemainingOccurrences)
	require.Len(t, rent.Templates[0].Splits, 2)
	assert.Equal(t, "800", rent.Templates[0].Splits[1].CreditFormula)

	ins, err := f.Schedules[1].ToSchedule()
	require.NoError(t, err)
	assert.False(t, ins.Enabled)
	assert.Equal(t, 14, ins.AdvanceRemindDays)
	assert.Equal(t, "FREQ=YEARLY;BYMONTH=3;BYMONTHDAY=1", ins.Recurrence.RRule)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "accounts: []\nbudgets: []\n"},
		{"not yaml", "schedules: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}

	f, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.Schedules)
}

func TestToScheduleErrors(t *testing.T) {
	tests := []struct {
		name string
		s    Schedule
	}{
		{"bad start", Schedule{Name: "x", Recurrence: Recurrence{Frequency: "monthly", Start: "31/01/2024"}}},
		{"bad end", Schedule{Name: "x", Recurrence: Recurrence{Frequency: "monthly", Start: "2024-01-01", End: "soon"}}},
		{"no templates", Schedule{Name: "x", Recurrence: Recurrence{Frequency: "monthly", Start: "2024-01-01"}}},
		{"no name", Schedule{Recurrence: Recurrence{Frequency: "monthly", Start: "2024-01-01"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.s.ToSchedule()
			assert.Error(t, err)
		})
	}
}

func TestToScheduleRejectsUnregisteredFrequency(t *testing.T) {
	def := Schedule{
		Name:       "x",
		Recurrence: Recurrence{Frequency: "hourly", Start: "2024-01-01"},
		Templates:  []Template{{Splits: []Split{{Account: "bank", Debit: "1"}}}},
	}
	_, err := def.ToSchedule()
	assert.ErrorIs(t, err, core.ErrInvalidFrequency)

	def.Recurrence.Frequency = "monthly"
	_, err = def.ToSchedule()
	assert.NoError(t, err)
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "sx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	f, err := LoadFile(path)
	require.NoError(t, err)

	res, err := Apply(ctx, repo, f)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accounts)
	assert.Equal(t, 2, res.Created)
	assert.Zero(t, res.Updated)

	stored, err := repo.Schedule(ctx, "rent-monthly")
	require.NoError(t, err)
	stored.LastOccurrence = core.NewDate(2024, 2, 29)
	stored.InstanceCount = 2
	stored.RemainingOccurrences = 10
	require.NoError(t, repo.SaveScheduleState(ctx, stored, 0))

	f.Schedules[0].OccurrenceLimit = 6
	res, err = Apply(ctx, repo, f)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Created)

	stored, err = repo.Schedule(ctx, "rent-monthly")
	require.NoError(t, err)
	assert.Equal(t, core.NewDate(2024, 2, 29), stored.LastOccurrence)
	assert.Equal(t, 2, stored.InstanceCount)
	assert.Equal(t, 6, stored.OccurrenceLimit)
	assert.Equal(t, 4, stored.RemainingOccurrences)

	all, err := repo.ListSchedules(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRemaining(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		existing core.Schedule
		want     int
	}{
		{"unlimited", 0, core.Schedule{InstanceCount: 3}, 0},
		{"newly limited", 5, core.Schedule{InstanceCount: 3}, 2},
		{"raised", 10, core.Schedule{OccurrenceLimit: 4, RemainingOccurrences: 1}, 7},
		{"lowered below used", 2, core.Schedule{OccurrenceLimit: 4, RemainingOccurrences: 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, remaining(tt.limit, &tt.existing))
		})
	}
}

func TestFromScheduleInvertsToSchedule(t *testing.T) {
	f, err := Load(strings.NewReader(sample))
	require.NoError(t, err)

	for _, def := range f.Schedules {
		s, err := def.ToSchedule()
		require.NoError(t, err)
		back, err := FromSchedule(s).ToSchedule()
		require.NoError(t, err)
		assert.Equal(t, s, back)
	}
}

func TestCarry(t *testing.T) {
	existing := &core.Schedule{
		LastOccurrence:       core.NewDate(2024, 5, 1),
		InstanceCount:        5,
		OccurrenceLimit:      10,
		RemainingOccurrences: 5,
		Postponed:            []core.Cursor{{Date: core.NewDate(2024, 4, 1), Count: 4}},
	}
	dst := &core.Schedule{OccurrenceLimit: 12}
	Carry(dst, existing)
	assert.Equal(t, existing.LastOccurrence, dst.LastOccurrence)
	assert.Equal(t, 5, dst.InstanceCount)
	assert.Equal(t, 7, dst.RemainingOccurrences)
	assert.Len(t, dst.Postponed, 1)
}
