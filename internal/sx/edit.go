package sx

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SetInstanceState moves inst to state while keeping reminders a trailing
// run of the group: leaving the reminder state demotes every earlier
// reminder to postponed, entering it promotes every later instance.
func (m *Model) SetInstanceState(inst *Instance, state State) error {
	g, idx, err := m.locate(inst)
	if err != nil {
		return err
	}
	if inst.State == state {
		return nil
	}
	inst.State = state

	if state != Reminder {
		for i := idx - 1; i >= 0; i-- {
			if g.List[i].State == Reminder {
				g.List[i].State = Postponed
			}
		}
	} else {
		for _, next := range g.List[idx+1:] {
			next.State = Reminder
		}
	}

	m.emit(EventUpdated, inst.ScheduleID)
	return nil
}

// SetVariable binds name on inst. An equal value is a no-op. Bindings the
// model owns, such as the loop variable, cannot be set.
func (m *Model) SetVariable(inst *Instance, name string, value decimal.Decimal) error {
	if _, _, err := m.locate(inst); err != nil {
		return err
	}
	cur, ok := inst.Variables[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrVariableNotFound, name)
	}
	if !cur.Editable {
		return fmt.Errorf("%w: %q", ErrVariableReadOnly, name)
	}
	if !inst.Variables.Set(name, value) {
		return nil
	}
	m.emit(EventUpdated, inst.ScheduleID)
	return nil
}

// VariableNeeded is an unresolved variable on an instance pending creation.
type VariableNeeded struct {
	Instance *Instance
	Name     string
}

// CheckVariables lists every unresolved variable of every to-create
// instance. EffectChanges expects this to be empty.
func (m *Model) CheckVariables() []VariableNeeded {
	var out []VariableNeeded
	for _, g := range m.groups {
		for _, inst := range g.List {
			if inst.State != ToCreate {
				continue
			}
			for _, name := range inst.Variables.Unresolved() {
				out = append(out, VariableNeeded{Instance: inst, Name: name})
			}
		}
	}
	return out
}
