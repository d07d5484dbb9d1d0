package billing

import (
	"github.com/ayumbro/Remindy/internal/pkg/calendar"
)

// Status summarizes where a subscription stands relative to today.
type Status string

const (
	StatusActive    Status = "active"
	StatusUpcoming  Status = "upcoming"
	StatusOverdue   Status = "overdue"
	StatusEnded     Status = "ended"
	StatusCompleted Status = "completed"
)

// NextBillingDate returns the occurrence that paidCount payments lead to, or
// nil when the subscription has ended before today or is a one-time charge
// that has already been paid.
func NextBillingDate(cfg Config, paidCount int, today calendar.Date) (*calendar.Date, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.HasEnded(today) {
		return nil, nil
	}
	if cfg.Cycle == CycleOneTime && paidCount > 0 {
		return nil, nil
	}
	next, err := NthBillingDate(cfg, paidCount)
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// DueBillingDate is NextBillingDate restricted to occurrences on or before the
// end date. Payments and reminders only ever target a due occurrence.
func DueBillingDate(cfg Config, paidCount int, today calendar.Date) (*calendar.Date, error) {
	next, err := NextBillingDate(cfg, paidCount, today)
	if err != nil || next == nil {
		return nil, err
	}
	if cfg.EndDate != nil && next.After(*cfg.EndDate) {
		return nil, nil
	}
	return next, nil
}

// IsOverdue reports whether the next billing date is strictly before today.
func IsOverdue(cfg Config, paidCount int, today calendar.Date) (bool, error) {
	next, err := NextBillingDate(cfg, paidCount, today)
	if err != nil || next == nil {
		return false, err
	}
	return next.Before(today), nil
}

// IsUpcoming reports whether the next billing date falls within
// [today, today+withinDays].
func IsUpcoming(cfg Config, paidCount int, today calendar.Date, withinDays int) (bool, error) {
	if withinDays < 0 {
		return false, configErr("within_days", "must not be negative, got %d", withinDays)
	}
	next, err := NextBillingDate(cfg, paidCount, today)
	if err != nil || next == nil {
		return false, err
	}
	return !next.Before(today) && !next.After(today.AddDays(withinDays)), nil
}

// StatusOf classifies a subscription. Overdue wins over upcoming.
func StatusOf(cfg Config, paidCount int, today calendar.Date, withinDays int) (Status, error) {
	if withinDays < 0 {
		return "", configErr("within_days", "must not be negative, got %d", withinDays)
	}
	next, err := NextBillingDate(cfg, paidCount, today)
	if err != nil {
		return "", err
	}
	switch {
	case next == nil && cfg.HasEnded(today):
		return StatusEnded, nil
	case next == nil:
		return StatusCompleted, nil
	case next.Before(today):
		return StatusOverdue, nil
	case !next.After(today.AddDays(withinDays)):
		return StatusUpcoming, nil
	default:
		return StatusActive, nil
	}
}
