package billing

import (
	"time"

	"github.com/ayumbro/Remindy/internal/pkg/calendar"
)

// Clock supplies the current date. Billing never reads the wall clock
// directly.
type Clock interface {
	Today() calendar.Date
}

// SystemClock reads today's date in Location (time.Local when nil).
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Today() calendar.Date {
	return calendar.Today(c.Location)
}

// FixedClock always returns the same date.
type FixedClock calendar.Date

func (c FixedClock) Today() calendar.Date {
	return calendar.Date(c)
}
