package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sxledger/internal/core"
	"sxledger/internal/formula"
	"sxledger/internal/sx"
)

var eur = core.Commodity{Mnemonic: "EUR", Places: 2}

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "sx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	require.NoError(t, repo.SaveAccount(ctx, core.Account{ID: "bank", Name: "Assets:Bank", Commodity: eur}))
	require.NoError(t, repo.SaveAccount(ctx, core.Account{ID: "rent", Name: "Expenses:Rent", Commodity: eur}))
	return repo
}

func rentSchedule() *core.Schedule {
	return &core.Schedule{
		Name:    "Rent",
		Enabled: true,
		Recurrence: core.Recurrence{
			Frequency: core.Monthly,
			Interval:  1,
			Start:     core.NewDate(2024, 1, 31),
		},
		AdvanceCreateDays: 0,
		AutoCreate:        true,
		Templates: []core.TemplateTransaction{{
			Description: "Rent",
			Splits: []core.TemplateSplit{
				{AccountID: "rent", DebitFormula: "800", Memo: "flat"},
				{AccountID: "bank", CreditFormula: "800"},
			},
		}},
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sx.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = NewSQLiteRepository(path)
	require.NoError(t, err)
	defer repo.Close()
	assert.NoError(t, repo.Ping(context.Background()))
}

func TestAccounts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a, err := repo.Account(ctx, "bank")
	require.NoError(t, err)
	assert.Equal(t, "Assets:Bank", a.Name)
	assert.Equal(t, eur, a.Commodity)

	_, err = repo.Account(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrAccountNotFound)

	require.NoError(t, repo.SaveAccount(ctx, core.Account{ID: "bank", Name: "Assets:Current", Commodity: eur}))
	all, err := repo.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Assets:Current", all[0].Name)

	assert.Error(t, repo.SaveAccount(ctx, core.Account{ID: "x", Name: "X"}))
}

func TestScheduleRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	s := rentSchedule()
	s.OccurrenceLimit = 12
	s.RemainingOccurrences = 12
	s.Postponed = []core.Cursor{{Date: core.NewDate(2024, 1, 31), Count: 1, Remaining: 12, Limited: true}}
	require.NoError(t, repo.SaveSchedule(ctx, s))
	require.NotEmpty(t, s.ID)

	got, err := repo.Schedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Name, got.Name)
	assert.Equal(t, s.Recurrence, got.Recurrence)
	assert.Equal(t, s.Templates, got.Templates)
	assert.Equal(t, s.Postponed, got.Postponed)
	assert.Equal(t, 12, got.RemainingOccurrences)
	assert.True(t, got.AutoCreate)
	assert.True(t, got.LastOccurrence.IsZero())

	got.Name = "Rent (flat)"
	got.Templates[0].Splits[0].DebitFormula = "850"
	got.Postponed = nil
	require.NoError(t, repo.SaveSchedule(ctx, got))

	again, err := repo.Schedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rent (flat)", again.Name)
	assert.Equal(t, "850", again.Templates[0].Splits[0].DebitFormula)
	assert.Empty(t, again.Postponed)

	_, err = repo.Schedule(ctx, "nope")
	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestListAndDeleteSchedules(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	on := rentSchedule()
	off := rentSchedule()
	off.Name = "Gym"
	off.Enabled = false
	require.NoError(t, repo.SaveSchedule(ctx, on))
	require.NoError(t, repo.SaveSchedule(ctx, off))

	all, err := repo.ListSchedules(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Gym", all[0].Name)
	assert.Len(t, all[1].Templates[0].Splits, 2)

	enabled, err := repo.ListSchedules(ctx, true)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, on.ID, enabled[0].ID)

	require.NoError(t, repo.DeleteSchedule(ctx, off.ID))
	assert.ErrorIs(t, repo.DeleteSchedule(ctx, off.ID), ErrScheduleNotFound)
}

func TestSaveScheduleState(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	s := rentSchedule()
	require.NoError(t, repo.SaveSchedule(ctx, s))

	s.LastOccurrence = core.NewDate(2024, 2, 29)
	s.InstanceCount = 2
	s.AddPostponed(core.Cursor{Date: core.NewDate(2024, 1, 31), Count: 1})
	s.Name = "ignored by state save"
	require.NoError(t, repo.SaveScheduleState(ctx, s, 0))

	got, err := repo.Schedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rent", got.Name)
	assert.Equal(t, "2024-02-29", got.LastOccurrence.String())
	assert.Equal(t, 2, got.InstanceCount)
	require.Len(t, got.Postponed, 1)

	missing := rentSchedule()
	missing.ID = "ghost"
	assert.ErrorIs(t, repo.SaveScheduleState(ctx, missing, 0), ErrScheduleNotFound)
}

func TestSaveScheduleStateRejectsStaleWriter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	s := rentSchedule()
	require.NoError(t, repo.SaveSchedule(ctx, s))

	first, err := repo.Schedule(ctx, s.ID)
	require.NoError(t, err)
	second, err := repo.Schedule(ctx, s.ID)
	require.NoError(t, err)

	first.LastOccurrence = core.NewDate(2024, 1, 31)
	first.InstanceCount = 1
	require.NoError(t, repo.SaveScheduleState(ctx, first, 0))

	second.LastOccurrence = core.NewDate(2024, 1, 31)
	second.InstanceCount = 1
	second.AddPostponed(core.Cursor{Date: core.NewDate(2024, 1, 31), Count: 1})
	assert.ErrorIs(t, repo.SaveScheduleState(ctx, second, 0), ErrStaleScheduleState)

	got, err := repo.Schedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.InstanceCount)
	assert.Empty(t, got.Postponed, "a rejected write leaves the postponed list alone")
}

func TestCommitTransactionsIsAtomic(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	s := rentSchedule()
	require.NoError(t, repo.SaveSchedule(ctx, s))

	good := core.Transaction{
		ScheduleID:  s.ID,
		Description: "Rent",
		PostDate:    core.NewDate(2024, 1, 31),
		Currency:    eur,
		Splits: []core.Split{
			{AccountID: "rent", Value: decimal.RequireFromString("800"), Amount: decimal.RequireFromString("800")},
			{AccountID: "bank", Value: decimal.RequireFromString("-800"), Amount: decimal.RequireFromString("-800")},
		},
	}
	bad := good
	bad.Splits = []core.Split{{AccountID: "unknown", Value: decimal.NewFromInt(1), Amount: decimal.NewFromInt(1)}}

	_, err := repo.CommitTransactions(ctx, []core.Transaction{good, bad})
	require.Error(t, err)
	listed, err := repo.ListTransactionsBySchedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, listed, "first transaction must be rolled back")

	ids, err := repo.CommitTransactions(ctx, []core.Transaction{good})
	require.NoError(t, err)
	require.Len(t, ids, 1)

	txn, err := repo.Transaction(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, s.ID, txn.ScheduleID)
	assert.Equal(t, "2024-01-31", txn.PostDate.String())
	require.Len(t, txn.Splits, 2)
	assert.Equal(t, "rent", txn.Splits[0].AccountID)
	assert.True(t, txn.Splits[1].Value.Equal(decimal.NewFromInt(-800)))
	assert.True(t, txn.Imbalance().IsZero())

	_, err = repo.Transaction(ctx, "nope")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestSyncStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	txn := func(day int) core.Transaction {
		return core.Transaction{
			Description: "Manual",
			PostDate:    core.NewDate(2024, 3, day),
			Currency:    eur,
			CreatedAt:   time.Date(2024, 3, day, 12, 0, 0, 0, time.UTC),
			Splits: []core.Split{
				{AccountID: "bank", Value: decimal.NewFromInt(5), Amount: decimal.NewFromInt(5)},
				{AccountID: "rent", Value: decimal.NewFromInt(-5), Amount: decimal.NewFromInt(-5)},
			},
		}
	}
	ids, err := repo.CommitTransactions(ctx, []core.Transaction{txn(2), txn(1), txn(3)})
	require.NoError(t, err)

	pending, err := repo.GetPendingSyncTransactions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[1], pending[0].ID, "oldest first")
	assert.Equal(t, 1, pending[0].Version)

	require.NoError(t, repo.MarkSynced(ctx, ids[1]))
	require.NoError(t, repo.MarkSyncError(ctx, ids[0]))
	pending, err = repo.GetPendingSyncTransactions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ids[2], pending[0].ID)

	assert.ErrorIs(t, repo.MarkSynced(ctx, "nope"), ErrTransactionNotFound)
}

func TestRepositoryBacksTheModel(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	s := rentSchedule()
	require.NoError(t, repo.SaveSchedule(ctx, s))

	schedules, err := repo.ListSchedules(ctx, true)
	require.NoError(t, err)
	m, err := sx.Generate(ctx, schedules, core.NewDate(2024, 3, 31),
		sx.WithLedger(repo), sx.WithEvaluator(formula.NewEvaluator()))
	require.NoError(t, err)

	res := m.EffectChanges(ctx, false)
	require.Empty(t, res.Errors)
	require.Len(t, res.Created, 3)
	for _, u := range res.Updated {
		require.NoError(t, repo.SaveScheduleState(ctx, u, 0))
	}

	got, err := repo.Schedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-31", got.LastOccurrence.String())
	assert.Equal(t, 3, got.InstanceCount)

	created, err := repo.ListTransactionsBySchedule(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, created, 3)
	assert.Equal(t, []string{"2024-01-31", "2024-02-29", "2024-03-31"},
		[]string{created[0].PostDate.String(), created[1].PostDate.String(), created[2].PostDate.String()})

	// A fresh model over the persisted state has nothing left to create.
	schedules, err = repo.ListSchedules(ctx, true)
	require.NoError(t, err)
	m, err = sx.Generate(ctx, schedules, core.NewDate(2024, 3, 31),
		sx.WithLedger(repo), sx.WithEvaluator(formula.NewEvaluator()))
	require.NoError(t, err)
	assert.Zero(t, m.Summarize().Instances)
}
