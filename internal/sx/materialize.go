package sx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"sxledger/internal/core"
)

// AmountKind tells how a split formula was resolved.
type AmountKind int

const (
	AmountUnset AmountKind = iota // empty formula, counts as zero
	AmountError                   // formula failed, counts as zero
	AmountValue
)

// Amount is the outcome of evaluating one split formula.
type Amount struct {
	Kind  AmountKind
	Value decimal.Decimal
	Err   error
}

// Evaluate resolves a split formula against vars.
func Evaluate(eval Evaluator, src string, vars map[string]decimal.Decimal) Amount {
	if strings.TrimSpace(src) == "" {
		return Amount{Kind: AmountUnset}
	}
	v, err := eval.Evaluate(src, vars)
	if err != nil {
		return Amount{Kind: AmountError, Err: err}
	}
	return Amount{Kind: AmountValue, Value: v}
}

// Materializer builds ledger transactions from a schedule's templates for
// one instance. Splits are constructed from the template splits in their
// stored order.
type Materializer struct {
	Accounts  AccountResolver
	Evaluator Evaluator
	Now       func() time.Time
}

// Build returns the transactions for inst together with any non-fatal
// problems (formula errors, missing exchange rates), whose splits were
// built with zero values. A non-nil error means the instance cannot be
// created at all and no transaction must be committed.
func (mt *Materializer) Build(ctx context.Context, s *core.Schedule, inst *Instance) ([]core.Transaction, []error, error) {
	if len(s.Templates) == 0 {
		return nil, nil, creationError(s, inst, ErrNoSplits)
	}

	now := time.Now
	if mt.Now != nil {
		now = mt.Now
	}
	vars := inst.Variables.Values()

	var (
		txns     []core.Transaction
		problems []error
	)
	for _, tt := range s.Templates {
		txn, errs, err := mt.build(ctx, s, inst, tt, vars, now())
		problems = append(problems, errs...)
		if err != nil {
			return nil, problems, err
		}
		txns = append(txns, txn)
	}
	return txns, problems, nil
}

func (mt *Materializer) build(ctx context.Context, s *core.Schedule, inst *Instance, tt core.TemplateTransaction, vars map[string]decimal.Decimal, now time.Time) (core.Transaction, []error, error) {
	txn := core.Transaction{
		ID:          uuid.NewString(),
		ScheduleID:  s.ID,
		Description: tt.Description,
		Num:         tt.Num,
		Notes:       tt.Notes,
		PostDate:    inst.Date,
		CreatedAt:   now,
	}
	if len(tt.Splits) == 0 {
		return txn, nil, creationError(s, inst, ErrNoSplits)
	}

	var problems []error
	for idx, ts := range tt.Splits {
		if strings.TrimSpace(ts.AccountID) == "" {
			return txn, problems, creationError(s, inst, fmt.Errorf("split %d: %w", idx, ErrMissingAccount))
		}
		acct, err := mt.Accounts.Account(ctx, ts.AccountID)
		if err != nil {
			if !errors.Is(err, ErrAccountNotFound) {
				err = fmt.Errorf("%w: %s: %v", ErrAccountNotFound, ts.AccountID, err)
			}
			return txn, problems, creationError(s, inst, err)
		}
		if idx == 0 {
			txn.Currency = acct.Commodity
		}

		value := decimal.Zero
		for _, part := range []struct {
			side    string
			formula string
			sign    int64
		}{
			{"debit", ts.DebitFormula, 1},
			{"credit", ts.CreditFormula, -1},
		} {
			a := Evaluate(mt.Evaluator, part.formula, vars)
			if a.Kind == AmountError {
				problems = append(problems, creationError(s, inst,
					fmt.Errorf("%w: split %d %s formula %q: %v", ErrFormula, idx, part.side, part.formula, a.Err)))
			}
			value = value.Add(a.Value.Mul(decimal.NewFromInt(part.sign)))
		}
		value = value.Round(txn.Currency.Places)

		split := core.Split{
			ID:        uuid.NewString(),
			AccountID: acct.ID,
			Memo:      ts.Memo,
			Action:    ts.Action,
			Value:     value,
			Amount:    value,
		}
		if !acct.Commodity.Equal(txn.Currency) {
			name := ExchangeVariable(acct.Commodity, txn.Currency)
			rate, ok := vars[name]
			if !ok {
				rate = decimal.Zero
				problems = append(problems, creationError(s, inst,
					fmt.Errorf("%w: %q", ErrMissingExchangeRate, name)))
			}
			split.Amount = value.Mul(rate).Round(acct.Commodity.Places)
		}
		split.Scrub(acct, txn.Currency)
		txn.Splits = append(txn.Splits, split)
	}
	return txn, problems, nil
}
