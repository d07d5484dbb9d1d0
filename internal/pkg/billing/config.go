package billing

import (
	"github.com/ayumbro/Remindy/app/models"
	"github.com/ayumbro/Remindy/internal/pkg/calendar"
)

// Config is the billing configuration of one subscription.
//
// CycleDay is the anchor day captured from FirstBillingDate when the
// subscription is created. It is never rewritten from a clamped occurrence,
// which is what lets Jan 31 -> Apr 30 go back to May 31.
type Config struct {
	Cycle            Cycle
	Interval         int
	FirstBillingDate calendar.Date
	CycleDay         *int
	StartDate        calendar.Date
	EndDate          *calendar.Date
}

// NewConfig builds a validated configuration and captures the anchor day for
// month-based cycles. A zero start date defaults to the first billing date.
func NewConfig(cycle Cycle, interval int, first, start calendar.Date, end *calendar.Date) (Config, error) {
	if start.IsZero() {
		start = first
	}
	cfg := Config{
		Cycle:            cycle,
		Interval:         interval,
		FirstBillingDate: first,
		StartDate:        start,
		EndDate:          end,
	}
	if cycle.UsesCycleDay() {
		day := first.Day
		cfg.CycleDay = &day
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ConfigOf reads the billing configuration stored on a subscription.
func ConfigOf(sub *models.Subscription) (Config, error) {
	cycle, err := ParseCycle(sub.BillingCycle)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Cycle:            cycle,
		Interval:         sub.BillingInterval,
		FirstBillingDate: sub.FirstBillingDate,
		CycleDay:         sub.BillingCycleDay,
		StartDate:        sub.StartDate,
		EndDate:          sub.EndDate,
	}
	if cfg.StartDate.IsZero() {
		cfg.StartDate = cfg.FirstBillingDate
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Apply writes the configuration back onto a subscription row.
func (c Config) Apply(sub *models.Subscription) {
	sub.BillingCycle = string(c.Cycle)
	sub.BillingInterval = c.Interval
	sub.FirstBillingDate = c.FirstBillingDate
	sub.BillingCycleDay = c.CycleDay
	sub.StartDate = c.StartDate
	sub.EndDate = c.EndDate
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if !c.Cycle.Valid() {
		return configErr("billing_cycle", "unrecognized cycle %q", c.Cycle)
	}
	if c.Interval < 1 {
		return configErr("billing_interval", "must be positive, got %d", c.Interval)
	}
	if c.FirstBillingDate.IsZero() {
		return configErr("first_billing_date", "is required")
	}
	if c.Cycle.UsesCycleDay() {
		if c.CycleDay == nil {
			return configErr("billing_cycle_day", "is required for %s billing", c.Cycle)
		}
		if *c.CycleDay < 1 || *c.CycleDay > 31 {
			return configErr("billing_cycle_day", "must be between 1 and 31, got %d", *c.CycleDay)
		}
	} else if c.CycleDay != nil {
		return configErr("billing_cycle_day", "must be empty for %s billing", c.Cycle)
	}
	if !c.StartDate.IsZero() && c.StartDate.After(c.FirstBillingDate) {
		return configErr("start_date", "%s is after first billing date %s", c.StartDate, c.FirstBillingDate)
	}
	if c.EndDate != nil && !c.StartDate.IsZero() && c.EndDate.Before(c.StartDate) {
		return configErr("end_date", "%s is before start date %s", *c.EndDate, c.StartDate)
	}
	return nil
}

// HasEnded reports whether the end date lies strictly before today.
func (c Config) HasEnded(today calendar.Date) bool {
	return c.EndDate != nil && c.EndDate.Before(today)
}
