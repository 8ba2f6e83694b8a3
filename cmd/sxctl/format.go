package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"sxledger/internal/core"
	"sxledger/internal/recurrence"
)

func dateFlag(v string, def core.Date) (core.Date, error) {
	if v == "" {
		return def, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", v)
	}
	return d, nil
}

func dateOrDash(d core.Date) string {
	if d.IsZero() {
		return "-"
	}
	return d.String()
}

func nextOf(s *core.Schedule) string {
	if s.Exhausted() {
		return "-"
	}
	rule, err := recurrence.Compile(s.Recurrence)
	if err != nil {
		return "invalid"
	}
	next, ok := rule.Next(s.SeedCursor())
	if !ok {
		return "-"
	}
	return next.Date.String()
}

func remainingOf(s *core.Schedule) string {
	if s.OccurrenceLimit == 0 {
		return "unlimited"
	}
	return strconv.Itoa(s.RemainingOccurrences)
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
