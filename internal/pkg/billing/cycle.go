package billing

import (
	"strings"
)

// Cycle is the unit a subscription repeats in.
type Cycle string

const (
	CycleDaily     Cycle = "daily"
	CycleWeekly    Cycle = "weekly"
	CycleMonthly   Cycle = "monthly"
	CycleQuarterly Cycle = "quarterly"
	CycleYearly    Cycle = "yearly"
	CycleOneTime   Cycle = "one-time"
)

// Cycles lists every supported cycle.
var Cycles = []Cycle{CycleDaily, CycleWeekly, CycleMonthly, CycleQuarterly, CycleYearly, CycleOneTime}

// ParseCycle maps a stored value to a Cycle. Unknown values are rejected
// instead of falling back to a default.
func ParseCycle(s string) (Cycle, error) {
	switch c := Cycle(strings.ToLower(strings.TrimSpace(s))); c {
	case CycleDaily, CycleWeekly, CycleMonthly, CycleQuarterly, CycleYearly, CycleOneTime:
		return c, nil
	default:
		return "", configErr("billing_cycle", "unrecognized cycle %q", s)
	}
}

func (c Cycle) Valid() bool {
	switch c {
	case CycleDaily, CycleWeekly, CycleMonthly, CycleQuarterly, CycleYearly, CycleOneTime:
		return true
	default:
		return false
	}
}

// UsesCycleDay reports whether occurrences are anchored to a day of month.
func (c Cycle) UsesCycleDay() bool {
	switch c {
	case CycleMonthly, CycleQuarterly, CycleYearly:
		return true
	default:
		return false
	}
}

// monthsPerCycle returns the month length of one cycle for month-based cycles.
func (c Cycle) monthsPerCycle() (int, error) {
	switch c {
	case CycleMonthly:
		return 1, nil
	case CycleQuarterly:
		return 3, nil
	case CycleYearly:
		return 12, nil
	default:
		return 0, configErr("billing_cycle", "cycle %q is not month based", c)
	}
}

// daysPerCycle returns the day length of one cycle for day-based cycles.
func (c Cycle) daysPerCycle() (int, error) {
	switch c {
	case CycleDaily:
		return 1, nil
	case CycleWeekly:
		return 7, nil
	default:
		return 0, configErr("billing_cycle", "cycle %q is not day based", c)
	}
}
