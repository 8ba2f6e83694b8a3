// Package adapters joins the storage layer to the instance model.
package adapters

import (
	"context"
	"time"

	"sxledger/internal/cache"
	"sxledger/internal/core"
	"sxledger/internal/sx"
)

// Repository is the part of the store the ledger adapter needs.
type Repository interface {
	Account(ctx context.Context, id string) (core.Account, error)
	SaveAccount(ctx context.Context, a core.Account) error
	CommitTransactions(ctx context.Context, txns []core.Transaction) ([]string, error)
}

// LedgerAdapter resolves accounts through an LRU cache and commits
// straight to the repository.
type LedgerAdapter struct {
	repo     Repository
	accounts *cache.AccountCache
}

var _ sx.Ledger = (*LedgerAdapter)(nil)

// NewLedgerAdapter wraps repo with an account cache of the given size.
// The returned cleaner is meant for cache.RunCleanup.
func NewLedgerAdapter(repo Repository, size int, ttl time.Duration) (*LedgerAdapter, cache.Cleaner) {
	accounts, lru := cache.NewAccountCache(repo, size, ttl)
	return &LedgerAdapter{repo: repo, accounts: accounts}, lru
}

func (a *LedgerAdapter) Account(ctx context.Context, id string) (core.Account, error) {
	return a.accounts.Account(ctx, id)
}

// SaveAccount writes through and drops the cached copy.
func (a *LedgerAdapter) SaveAccount(ctx context.Context, acct core.Account) error {
	if err := a.repo.SaveAccount(ctx, acct); err != nil {
		return err
	}
	a.accounts.Invalidate(acct.ID)
	return nil
}

func (a *LedgerAdapter) CommitTransactions(ctx context.Context, txns []core.Transaction) ([]string, error) {
	return a.repo.CommitTransactions(ctx, txns)
}

// AccountName resolves id to its display name.
func (a *LedgerAdapter) AccountName(ctx context.Context, id string) (string, error) {
	acct, err := a.Account(ctx, id)
	if err != nil {
		return "", err
	}
	return acct.Name, nil
}
