package sx

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"sxledger/internal/core"
	"sxledger/internal/recurrence"
)

// Cashflow projects the split values every enabled schedule would post to
// each account for the occurrences dated in [from, to]. Only the loop
// variable is bound, so formulas needing other variables contribute zero
// and are reported.
func Cashflow(ctx context.Context, eval Evaluator, schedules []*core.Schedule, from, to core.Date) (map[string]decimal.Decimal, []error) {
	totals := make(map[string]decimal.Decimal)
	var errs []error

	for _, s := range schedules {
		if s == nil || !s.Enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return totals, append(errs, err)
		}
		rule, err := recurrence.Compile(s.Recurrence)
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule %q: %w", s.Name, err))
			continue
		}

		for _, c := range recurrence.Occurrences(rule, s.SeedCursor(), to, 0) {
			if c.Date.Compare(from) < 0 {
				continue
			}
			vars := map[string]decimal.Decimal{LoopVariable: decimal.NewFromInt(int64(c.Count))}
			for _, tt := range s.Templates {
				for _, ts := range tt.Splits {
					debit := Evaluate(eval, ts.DebitFormula, vars)
					credit := Evaluate(eval, ts.CreditFormula, vars)
					for _, a := range []Amount{debit, credit} {
						if a.Kind == AmountError {
							errs = append(errs, &CreationError{ScheduleName: s.Name, Date: c.Date, Err: fmt.Errorf("%w: %v", ErrFormula, a.Err)})
						}
					}
					totals[ts.AccountID] = totals[ts.AccountID].Add(debit.Value.Sub(credit.Value))
				}
			}
		}
	}
	return totals, errs
}
