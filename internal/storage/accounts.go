package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"sxledger/internal/core"
)

// SaveAccount inserts or updates an account.
func (r *SQLiteRepository) SaveAccount(ctx context.Context, a core.Account) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, commodity, commodity_places)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			commodity = excluded.commodity,
			commodity_places = excluded.commodity_places`,
		a.ID, a.Name, a.Commodity.Mnemonic, a.Commodity.Places)
	if err != nil {
		return fmt.Errorf("save account %s: %w", a.ID, err)
	}

	slog.DebugContext(ctx, "Account saved", "account_id", a.ID, "commodity", a.Commodity.Mnemonic)
	return nil
}

// Account returns the account with the given ID. Unknown IDs yield an error
// wrapping core.ErrAccountNotFound.
func (r *SQLiteRepository) Account(ctx context.Context, id string) (core.Account, error) {
	var a core.Account
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, commodity, commodity_places FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.Commodity.Mnemonic, &a.Commodity.Places)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("%w: %s", core.ErrAccountNotFound, id)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account %s: %w", id, err)
	}
	return a, nil
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, commodity, commodity_places FROM accounts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		var a core.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Commodity.Mnemonic, &a.Commodity.Places); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
