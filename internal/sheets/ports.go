// Package sheets mirrors ledger transactions to a spreadsheet.
package sheets

import (
	"context"

	"sxledger/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerWriter appends a transaction, one row per split. Appending a
	// transaction that was already mirrored is a no-op.
	LedgerWriter interface {
		AppendTransaction(ctx context.Context, txn core.Transaction) (rowRef string, err error)
	}
)

// Header is the column layout of mirrored rows.
var Header = []string{
	"Date", "Description", "Num", "Account", "Memo", "Value", "Amount", "Currency", "Transaction", "Schedule",
}

// TransactionRows lays a transaction out as spreadsheet rows. accountName
// maps account IDs to display names; nil leaves IDs as they are.
func TransactionRows(txn core.Transaction, accountName func(id string) string) [][]any {
	rows := make([][]any, 0, len(txn.Splits))
	for _, sp := range txn.Splits {
		account := sp.AccountID
		if accountName != nil {
			if name := accountName(sp.AccountID); name != "" {
				account = name
			}
		}
		rows = append(rows, []any{
			txn.PostDate.String(),
			txn.Description,
			txn.Num,
			account,
			sp.Memo,
			sp.Value.StringFixed(txn.Currency.Places),
			sp.Amount.String(),
			txn.Currency.Mnemonic,
			txn.ID,
			txn.ScheduleID,
		})
	}
	return rows
}
