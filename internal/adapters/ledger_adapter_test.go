package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sxledger/internal/core"
)

type fakeRepo struct {
	accounts  map[string]core.Account
	lookups   int
	committed []core.Transaction
}

func (f *fakeRepo) Account(_ context.Context, id string) (core.Account, error) {
	f.lookups++
	a, ok := f.accounts[id]
	if !ok {
		return core.Account{}, errors.New("account not found")
	}
	return a, nil
}

func (f *fakeRepo) SaveAccount(_ context.Context, a core.Account) error {
	f.accounts[a.ID] = a
	return nil
}

func (f *fakeRepo) CommitTransactions(_ context.Context, txns []core.Transaction) ([]string, error) {
	f.committed = append(f.committed, txns...)
	ids := make([]string, len(txns))
	for i := range txns {
		ids[i] = "tx"
	}
	return ids, nil
}

func TestLedgerAdapter_CachesAccounts(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{accounts: map[string]core.Account{"bank": {ID: "bank", Name: "Assets:Bank"}}}
	l, cleaner := NewLedgerAdapter(repo, 8, time.Minute)
	require.NotNil(t, cleaner)

	for range 3 {
		a, err := l.Account(ctx, "bank")
		require.NoError(t, err)
		assert.Equal(t, "Assets:Bank", a.Name)
	}
	assert.Equal(t, 1, repo.lookups)

	_, err := l.Account(ctx, "missing")
	assert.Error(t, err)
}

func TestLedgerAdapter_SaveInvalidates(t *testing.T) {
	ctx := context.Background()
	repo := &fakeRepo{accounts: map[string]core.Account{"bank": {ID: "bank", Name: "Bank"}}}
	l, _ := NewLedgerAdapter(repo, 8, time.Minute)

	name, err := l.AccountName(ctx, "bank")
	require.NoError(t, err)
	assert.Equal(t, "Bank", name)

	require.NoError(t, l.SaveAccount(ctx, core.Account{ID: "bank", Name: "Assets:Checking"}))
	name, err = l.AccountName(ctx, "bank")
	require.NoError(t, err)
	assert.Equal(t, "Assets:Checking", name)
	assert.Equal(t, 2, repo.lookups)
}

func TestLedgerAdapter_Commits(t *testing.T) {
	repo := &fakeRepo{accounts: map[string]core.Account{}}
	l, _ := NewLedgerAdapter(repo, 8, time.Minute)

	ids, err := l.CommitTransactions(context.Background(), []core.Transaction{{Description: "Rent"}})
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.Len(t, repo.committed, 1)
}
