package reminder

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ayumbro/Remindy/internal/pkg/calendar"
)

const (
	KindUpcoming = "upcoming"
	KindOverdue  = "overdue"
)

// Event is the message handed to the notification subsystem.
type Event struct {
	SubscriptionID uint            `json:"subscription_id"`
	UserID         uint            `json:"user_id"`
	Name           string          `json:"name"`
	Kind           string          `json:"kind"`
	BillingDate    calendar.Date   `json:"billing_date"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	GeneratedOn    calendar.Date   `json:"generated_on"`
}

// DedupKey identifies one reminder per occurrence, kind and day.
func (e Event) DedupKey() string {
	return fmt.Sprintf("reminder:sent:%d:%s:%s:%s", e.SubscriptionID, e.BillingDate, e.Kind, e.GeneratedOn)
}
