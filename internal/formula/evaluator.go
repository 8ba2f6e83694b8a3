package formula

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Evaluator caches parsed expressions by source text. It is safe for
// concurrent use.
type Evaluator struct {
	mu    sync.Mutex
	cache map[string]*Expr
}

func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]*Expr)}
}

func (e *Evaluator) parse(src string) (*Expr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cache == nil {
		e.cache = make(map[string]*Expr)
	}
	if x, ok := e.cache[src]; ok {
		return x, nil
	}
	x, err := Parse(src)
	if err != nil {
		return nil, err
	}
	e.cache[src] = x
	return x, nil
}

// Variables lists the identifiers used by src.
func (e *Evaluator) Variables(src string) ([]string, error) {
	x, err := e.parse(src)
	if err != nil {
		return nil, err
	}
	return x.Variables(), nil
}

// Evaluate parses (or reuses) src and evaluates it against vars.
func (e *Evaluator) Evaluate(src string, vars map[string]decimal.Decimal) (decimal.Decimal, error) {
	x, err := e.parse(src)
	if err != nil {
		return decimal.Zero, err
	}
	return x.Eval(vars)
}
