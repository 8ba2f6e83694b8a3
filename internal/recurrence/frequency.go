package recurrence

import (
	"fmt"
	"sync"

	"github.com/teambition/rrule-go"

	"sxledger/internal/core"
)

// FrequencyBuilder turns a shorthand frequency into rrule options.
// Dtstart and Until are filled in by Compile.
type FrequencyBuilder func(interval int, start core.Date) rrule.ROption

var (
	frequenciesMu sync.RWMutex
	frequencies   = map[core.RepetitionTypes]FrequencyBuilder{
		core.Daily:   simple(rrule.DAILY),
		core.Weekly:  simple(rrule.WEEKLY),
		core.Monthly: monthly,
		core.Yearly:  yearly,
	}
)

func simple(freq rrule.Frequency) FrequencyBuilder {
	return func(interval int, _ core.Date) rrule.ROption {
		return rrule.ROption{Freq: freq, Interval: interval}
	}
}

// monthly clamps a start day past the 28th to the last day of shorter
// months instead of skipping them.
func monthly(interval int, start core.Date) rrule.ROption {
	opt := rrule.ROption{Freq: rrule.MONTHLY, Interval: interval}
	if start.Day() > 28 {
		opt.Bymonthday = []int{start.Day(), -1}
		opt.Bysetpos = []int{1}
	}
	return opt
}

// yearly maps Feb 29 to Feb 28 in common years.
func yearly(interval int, start core.Date) rrule.ROption {
	opt := rrule.ROption{Freq: rrule.YEARLY, Interval: interval}
	if start.Month() == 2 && start.Day() == 29 {
		opt.Bymonth = []int{2}
		opt.Bymonthday = []int{29, -1}
		opt.Bysetpos = []int{1}
	}
	return opt
}

func frequencyBuilder(freq core.RepetitionTypes) (FrequencyBuilder, error) {
	frequenciesMu.RLock()
	defer frequenciesMu.RUnlock()
	b, ok := frequencies[freq]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidFrequency, freq)
	}
	return b, nil
}

// RegisterFrequency adds or replaces a shorthand frequency.
func RegisterFrequency(freq core.RepetitionTypes, b FrequencyBuilder) {
	frequenciesMu.Lock()
	defer frequenciesMu.Unlock()
	frequencies[freq] = b
}
