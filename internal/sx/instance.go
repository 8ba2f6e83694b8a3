package sx

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"sxledger/internal/core"
)

// Instance is one dated occurrence of a schedule.
type Instance struct {
	ID         string
	ScheduleID string
	Date       core.Date
	OrigState  State
	State      State
	Cursor     core.Cursor
	Variables  Variables

	// counted is set once the instance has consumed one of the schedule's
	// remaining occurrences; postponed snapshots already have.
	counted  bool
	effected bool
}

// Sequence is the 1-based ordinal of the occurrence within its schedule.
func (i *Instance) Sequence() int { return i.Cursor.Count }

func newInstance(scheduleID string, c core.Cursor, state State, names []string) *Instance {
	vars := NewVariables(names)
	vars[LoopVariable] = Variable{
		Value:    decimal.NewFromInt(int64(c.Count)),
		Resolved: true,
	}
	return &Instance{
		ID:         uuid.NewString(),
		ScheduleID: scheduleID,
		Date:       c.Date,
		OrigState:  state,
		State:      state,
		Cursor:     c,
		Variables:  vars,
		counted:    state == Postponed,
	}
}

// Instances groups the instances of one schedule in date order.
type Instances struct {
	Schedule         *core.Schedule
	NextInstanceDate core.Date
	List             []*Instance

	variableNames []string
	parsed        bool
}

func (g *Instances) index(inst *Instance) int {
	for i, x := range g.List {
		if x == inst {
			return i
		}
	}
	return -1
}

// VariableNames returns the formula variables discovered on the schedule's
// template, sorted.
func (g *Instances) VariableNames() []string {
	return append([]string(nil), g.variableNames...)
}
