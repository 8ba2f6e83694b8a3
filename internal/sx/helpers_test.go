package sx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"sxledger/internal/core"
)

var (
	eur = core.Commodity{Mnemonic: "EUR", Places: 2}
	usd = core.Commodity{Mnemonic: "USD", Places: 2}
)

type fakeLedger struct {
	accounts  map[string]core.Account
	committed [][]core.Transaction
	failNext  error
}

func newFakeLedger(accounts ...core.Account) *fakeLedger {
	l := &fakeLedger{accounts: make(map[string]core.Account)}
	for _, a := range accounts {
		l.accounts[a.ID] = a
	}
	return l
}

func (l *fakeLedger) Account(_ context.Context, id string) (core.Account, error) {
	a, ok := l.accounts[id]
	if !ok {
		return core.Account{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, id)
	}
	return a, nil
}

func (l *fakeLedger) CommitTransactions(_ context.Context, txns []core.Transaction) ([]string, error) {
	if l.failNext != nil {
		err := l.failNext
		l.failNext = nil
		return nil, err
	}
	l.committed = append(l.committed, txns)
	ids := make([]string, len(txns))
	for i, t := range txns {
		ids[i] = t.ID
	}
	return ids, nil
}

func (l *fakeLedger) transactions() []core.Transaction {
	var out []core.Transaction
	for _, batch := range l.committed {
		out = append(out, batch...)
	}
	return out
}

var errCommit = errors.New("disk full")

func defaultAccounts() []core.Account {
	return []core.Account{
		{ID: "bank", Name: "Assets:Bank", Commodity: eur},
		{ID: "rent", Name: "Expenses:Rent", Commodity: eur},
		{ID: "travel", Name: "Expenses:Travel", Commodity: usd},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func rentTemplate(amount string) core.TemplateTransaction {
	return core.TemplateTransaction{
		Description: "Rent",
		Splits: []core.TemplateSplit{
			{AccountID: "rent", DebitFormula: amount},
			{AccountID: "bank", CreditFormula: amount},
		},
	}
}

func schedule(id string, freq core.RepetitionTypes, start core.Date, create, remind int, templates ...core.TemplateTransaction) *core.Schedule {
	if len(templates) == 0 {
		templates = []core.TemplateTransaction{rentTemplate("800")}
	}
	return &core.Schedule{
		ID:                id,
		Name:              "Schedule " + id,
		Enabled:           true,
		AutoCreate:        true,
		Recurrence:        core.Recurrence{Frequency: freq, Interval: 1, Start: start},
		AdvanceCreateDays: create,
		AdvanceRemindDays: remind,
		Templates:         templates,
	}
}

func generate(t *testing.T, ledger *fakeLedger, rangeEnd core.Date, schedules ...*core.Schedule) *Model {
	t.Helper()
	m, err := Generate(context.Background(), schedules, rangeEnd,
		WithLedger(ledger),
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)
	return m
}

type summaryRow struct {
	Date  string
	State State
}

func rows(g *Instances) []summaryRow {
	out := make([]summaryRow, len(g.List))
	for i, inst := range g.List {
		out[i] = summaryRow{Date: inst.Date.String(), State: inst.State}
	}
	return out
}

func states(g *Instances) []State {
	out := make([]State, len(g.List))
	for i, inst := range g.List {
		out[i] = inst.State
	}
	return out
}
