package billing

import (
	"github.com/ayumbro/Remindy/internal/pkg/calendar"
)

// NthBillingDate returns occurrence n (zero based) of the billing schedule.
//
// Month-based cycles always derive the day from the anchor CycleDay and clamp
// it to the length of the target month, so a short month only shortens that
// one occurrence.
func NthBillingDate(cfg Config, n int) (calendar.Date, error) {
	if n < 0 {
		return calendar.Date{}, configErr("occurrence", "index must not be negative, got %d", n)
	}
	if err := cfg.Validate(); err != nil {
		return calendar.Date{}, err
	}
	if n == 0 {
		return cfg.FirstBillingDate, nil
	}

	switch cfg.Cycle {
	case CycleDaily, CycleWeekly:
		days, err := cfg.Cycle.daysPerCycle()
		if err != nil {
			return calendar.Date{}, err
		}
		return cfg.FirstBillingDate.AddDays(n * cfg.Interval * days), nil
	case CycleMonthly, CycleQuarterly, CycleYearly:
		months, err := cfg.Cycle.monthsPerCycle()
		if err != nil {
			return calendar.Date{}, err
		}
		return cfg.FirstBillingDate.AddMonthsClamped(n*cfg.Interval*months, *cfg.CycleDay), nil
	case CycleOneTime:
		return cfg.FirstBillingDate, nil
	default:
		return calendar.Date{}, configErr("billing_cycle", "unrecognized cycle %q", cfg.Cycle)
	}
}

// BillingDates returns the first count occurrences starting at index from.
func BillingDates(cfg Config, from, count int) ([]calendar.Date, error) {
	if count < 0 {
		return nil, configErr("count", "must not be negative, got %d", count)
	}
	if cfg.Cycle == CycleOneTime && count > 1 {
		count = 1
	}
	dates := make([]calendar.Date, 0, count)
	for i := 0; i < count; i++ {
		d, err := NthBillingDate(cfg, from+i)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// firstIndexOnOrAfter returns the smallest occurrence index whose date is not
// before d. For one-time schedules the answer is 0 or 1.
func firstIndexOnOrAfter(cfg Config, d calendar.Date) (int, error) {
	first := cfg.FirstBillingDate
	if !first.Before(d) {
		return 0, nil
	}

	var n int
	switch cfg.Cycle {
	case CycleDaily, CycleWeekly:
		days, err := cfg.Cycle.daysPerCycle()
		if err != nil {
			return 0, err
		}
		step := days * cfg.Interval
		n = (first.DaysUntil(d) + step - 1) / step
	case CycleMonthly, CycleQuarterly, CycleYearly:
		months, err := cfg.Cycle.monthsPerCycle()
		if err != nil {
			return 0, err
		}
		step := months * cfg.Interval
		diff := calendar.MonthOf(d).Index() - calendar.MonthOf(first).Index()
		// start one step early; clamping can put that occurrence on or after d
		n = diff / step
		if n > 0 {
			n--
		}
	case CycleOneTime:
		return 1, nil
	default:
		return 0, configErr("billing_cycle", "unrecognized cycle %q", cfg.Cycle)
	}

	for {
		occ, err := NthBillingDate(cfg, n)
		if err != nil {
			return 0, err
		}
		if !occ.Before(d) {
			return n, nil
		}
		n++
	}
}
