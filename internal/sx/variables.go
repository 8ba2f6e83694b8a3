package sx

import (
	"sort"

	"github.com/shopspring/decimal"

	"sxledger/internal/core"
)

// LoopVariable is bound on every instance to its sequence number.
const LoopVariable = "i"

// Variable is one formula binding. An unresolved variable has no value yet.
type Variable struct {
	Value    decimal.Decimal
	Resolved bool
	Editable bool
}

// Variables maps formula identifiers to bindings. Entries are plain values;
// copying the map with Clone yields a fully independent table.
type Variables map[string]Variable

// NewVariables returns a table holding every name, unresolved and editable.
func NewVariables(names []string) Variables {
	v := make(Variables, len(names)+1)
	for _, n := range names {
		v[n] = Variable{Editable: true}
	}
	return v
}

func (v Variables) Clone() Variables {
	out := make(Variables, len(v))
	for k, e := range v {
		out[k] = e
	}
	return out
}

// Set binds name to value and reports whether the table changed. Setting an
// equal value on a resolved binding is a no-op.
func (v Variables) Set(name string, value decimal.Decimal) bool {
	cur, ok := v[name]
	if ok && cur.Resolved && cur.Value.Equal(value) {
		return false
	}
	if !ok {
		cur.Editable = true
	}
	cur.Value = value
	cur.Resolved = true
	v[name] = cur
	return true
}

// Names returns all bound names in sorted order.
func (v Variables) Names() []string {
	out := make([]string, 0, len(v))
	for k := range v {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Unresolved returns the sorted names still lacking a value.
func (v Variables) Unresolved() []string {
	var out []string
	for k, e := range v {
		if !e.Resolved {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Values returns the resolved bindings in the form the evaluator takes.
func (v Variables) Values() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(v))
	for k, e := range v {
		if e.Resolved {
			out[k] = e.Value
		}
	}
	return out
}

// ExchangeVariable names the rate converting a split's value in to into an
// amount in from.
func ExchangeVariable(from, to core.Commodity) string {
	return from.Mnemonic + " -> " + to.Mnemonic
}
