package sx

import (
	"context"

	"github.com/shopspring/decimal"

	"sxledger/internal/core"
)

// AccountResolver looks up accounts referenced by template splits. It
// returns an error wrapping core.ErrAccountNotFound for unknown IDs.
type AccountResolver interface {
	Account(ctx context.Context, id string) (core.Account, error)
}

// TransactionCommitter persists the transactions built for one instance.
// All of them are committed or none is.
type TransactionCommitter interface {
	CommitTransactions(ctx context.Context, txns []core.Transaction) ([]string, error)
}

// Ledger is the account and transaction store the model effects into.
type Ledger interface {
	AccountResolver
	TransactionCommitter
}

// Evaluator parses and evaluates split formulas.
type Evaluator interface {
	Variables(formula string) ([]string, error)
	Evaluate(formula string, vars map[string]decimal.Decimal) (decimal.Decimal, error)
}
