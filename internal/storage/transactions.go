package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"sxledger/internal/core"
)

// PendingSyncTransaction is a transaction waiting to be mirrored.
type PendingSyncTransaction struct {
	ID        string
	Version   int
	CreatedAt time.Time
}

// CommitTransactions stores the transactions in a single database
// transaction and returns their IDs in order. Missing IDs are assigned.
func (r *SQLiteRepository) CommitTransactions(ctx context.Context, txns []core.Transaction) ([]string, error) {
	if len(txns) == 0 {
		return nil, nil
	}
	ids := make([]string, len(txns))

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for i := range txns {
			t := txns[i]
			if err := t.Validate(); err != nil {
				return fmt.Errorf("transaction %d: %w", i, err)
			}
			if strings.TrimSpace(t.ID) == "" {
				t.ID = uuid.NewString()
			}
			if t.CreatedAt.IsZero() {
				t.CreatedAt = time.Now()
			}

			var scheduleID any
			if t.ScheduleID != "" {
				scheduleID = t.ScheduleID
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO transactions
					(id, schedule_id, description, num, notes, post_date, currency, currency_places, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				t.ID, scheduleID, t.Description, t.Num, t.Notes, t.PostDate.String(),
				t.Currency.Mnemonic, t.Currency.Places, t.CreatedAt.UTC().Format(timeLayout))
			if err != nil {
				return fmt.Errorf("insert transaction %s: %w", t.ID, err)
			}

			for pos, sp := range t.Splits {
				if strings.TrimSpace(sp.ID) == "" {
					sp.ID = uuid.NewString()
				}
				_, err := tx.ExecContext(ctx, `
					INSERT INTO splits (id, transaction_id, position, account_id, memo, action, value, amount)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
					sp.ID, t.ID, pos, sp.AccountID, sp.Memo, sp.Action, sp.Value.String(), sp.Amount.String())
				if err != nil {
					return fmt.Errorf("insert split %d of %s: %w", pos, t.ID, err)
				}
			}
			ids[i] = t.ID
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("commit transactions: %w", err)
	}

	slog.InfoContext(ctx, "Transactions committed", "count", len(ids))
	return ids, nil
}

// Transaction loads one transaction with its splits.
func (r *SQLiteRepository) Transaction(ctx context.Context, id string) (*core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(schedule_id, ''), description, num, notes, post_date, currency, currency_places, created_at
		FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}
	if err := r.loadSplits(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTransactionsBySchedule returns the transactions a schedule created,
// ordered by post date.
func (r *SQLiteRepository) ListTransactionsBySchedule(ctx context.Context, scheduleID string) ([]*core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, COALESCE(schedule_id, ''), description, num, notes, post_date, currency, currency_places, created_at
		FROM transactions WHERE schedule_id = ? ORDER BY post_date, created_at`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", scheduleID, err)
	}
	var out []*core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, t := range out {
		if err := r.loadSplits(ctx, t); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanTransaction(row rowScanner) (*core.Transaction, error) {
	var (
		t                   core.Transaction
		postDate, createdAt string
	)
	if err := row.Scan(&t.ID, &t.ScheduleID, &t.Description, &t.Num, &t.Notes, &postDate,
		&t.Currency.Mnemonic, &t.Currency.Places, &createdAt); err != nil {
		return nil, err
	}
	d, err := core.ParseDate(postDate)
	if err != nil {
		return nil, err
	}
	t.PostDate = d
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}

func (r *SQLiteRepository) loadSplits(ctx context.Context, t *core.Transaction) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, memo, action, value, amount
		FROM splits WHERE transaction_id = ? ORDER BY position`, t.ID)
	if err != nil {
		return fmt.Errorf("load splits for %s: %w", t.ID, err)
	}
	defer rows.Close()

	t.Splits = nil
	for rows.Next() {
		var sp core.Split
		if err := rows.Scan(&sp.ID, &sp.AccountID, &sp.Memo, &sp.Action, &sp.Value, &sp.Amount); err != nil {
			return fmt.Errorf("scan split: %w", err)
		}
		t.Splits = append(t.Splits, sp)
	}
	return rows.Err()
}

// GetPendingSyncTransactions returns up to limit transactions not yet
// mirrored, oldest first.
func (r *SQLiteRepository) GetPendingSyncTransactions(ctx context.Context, limit int) ([]PendingSyncTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, version, created_at FROM transactions
		WHERE sync_status = 'pending'
		ORDER BY created_at
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending sync: %w", err)
	}
	defer rows.Close()

	var out []PendingSyncTransaction
	for rows.Next() {
		var (
			p         PendingSyncTransaction
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("scan pending sync: %w", err)
		}
		p.CreatedAt = parseTime(createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkSynced flags a transaction as mirrored.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	return r.setSyncStatus(ctx, id, "synced", time.Now().UTC().Format(timeLayout))
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	return r.setSyncStatus(ctx, id, "error", nil)
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, id, status string, syncedAt any) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = ?, synced_at = ? WHERE id = ?`, status, syncedAt, id)
	if err != nil {
		return fmt.Errorf("mark transaction %s %s: %w", id, status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	return nil
}
