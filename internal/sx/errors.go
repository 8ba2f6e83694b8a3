package sx

import (
	"errors"
	"fmt"

	"sxledger/internal/core"
)

var (
	ErrScheduleNotFound    = errors.New("schedule not found in model")
	ErrInstanceNotFound    = errors.New("instance not found in model")
	ErrVariableNotFound    = errors.New("variable not bound on instance")
	ErrVariableReadOnly    = errors.New("variable is not editable")
	ErrAccountNotFound     = core.ErrAccountNotFound
	ErrMissingAccount      = errors.New("template split has no account")
	ErrNoSplits            = errors.New("template has no splits")
	ErrFormula             = errors.New("formula error")
	ErrMissingExchangeRate = errors.New("missing exchange rate")
	ErrNoLedger            = errors.New("no ledger configured")
)

// CreationError describes a problem met while materializing one instance.
// It wraps one of the sentinel errors above.
type CreationError struct {
	ScheduleName string
	Date         core.Date
	Err          error
}

func (e *CreationError) Error() string {
	return fmt.Sprintf("schedule %q on %s: %v", e.ScheduleName, e.Date, e.Err)
}

func (e *CreationError) Unwrap() error { return e.Err }

func creationError(s *core.Schedule, inst *Instance, err error) *CreationError {
	return &CreationError{ScheduleName: s.Name, Date: inst.Date, Err: err}
}
