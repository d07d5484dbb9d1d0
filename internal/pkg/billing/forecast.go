package billing

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ayumbro/Remindy/internal/pkg/calendar"
)

// ForecastItem is one subscription as seen by the forecast.
type ForecastItem struct {
	SubscriptionID uint
	Name           string
	Config         Config
	Price          decimal.Decimal
	Currency       string
	PaidCount      int
}

// ForecastEntry is the share of one subscription in a currency total.
type ForecastEntry struct {
	SubscriptionID uint            `json:"subscription_id"`
	Name           string          `json:"name"`
	Occurrences    []calendar.Date `json:"occurrences"`
	Amount         decimal.Decimal `json:"amount"`
}

// CurrencyForecast aggregates all subscriptions billed in one currency.
type CurrencyForecast struct {
	Currency      string          `json:"currency"`
	Total         decimal.Decimal `json:"total"`
	Count         int             `json:"count"`
	Subscriptions []ForecastEntry `json:"subscriptions"`
}

// Forecast holds the per-currency totals for one month. Amounts in different
// currencies are never added together.
type Forecast struct {
	Month      calendar.Month               `json:"month"`
	Currencies map[string]*CurrencyForecast `json:"currencies"`
}

// MonthlyForecast sums what falls due in month. Every unpaid occurrence whose
// date lies inside the month (and not after the end date) counts once at the
// full price, so a yearly plan shows up in the month it is billed and a
// weekly plan shows up four or five times. Subscriptions that ended before
// today contribute nothing.
//
// Items are evaluated concurrently with at most workers goroutines.
func MonthlyForecast(ctx context.Context, items []ForecastItem, month calendar.Month, today calendar.Date, workers int) (*Forecast, error) {
	if workers < 1 {
		workers = 1
	}

	result := &Forecast{Month: month, Currencies: map[string]*CurrencyForecast{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range items {
		item := items[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			occurrences, err := dueInMonth(item, month, today)
			if err != nil {
				return err
			}
			if len(occurrences) == 0 {
				return nil
			}
			entry := ForecastEntry{
				SubscriptionID: item.SubscriptionID,
				Name:           item.Name,
				Occurrences:    occurrences,
				Amount:         item.Price.Mul(decimal.NewFromInt(int64(len(occurrences)))),
			}

			mu.Lock()
			defer mu.Unlock()
			cf, ok := result.Currencies[item.Currency]
			if !ok {
				cf = &CurrencyForecast{Currency: item.Currency, Total: decimal.Zero}
				result.Currencies[item.Currency] = cf
			}
			cf.Total = cf.Total.Add(entry.Amount)
			cf.Count++
			cf.Subscriptions = append(cf.Subscriptions, entry)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, cf := range result.Currencies {
		sort.Slice(cf.Subscriptions, func(i, j int) bool {
			return cf.Subscriptions[i].SubscriptionID < cf.Subscriptions[j].SubscriptionID
		})
	}
	return result, nil
}

func dueInMonth(item ForecastItem, month calendar.Month, today calendar.Date) ([]calendar.Date, error) {
	cfg := item.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if item.PaidCount < 0 {
		return nil, configErr("paid_count", "must not be negative, got %d", item.PaidCount)
	}
	if cfg.HasEnded(today) {
		return nil, nil
	}

	n, err := firstIndexOnOrAfter(cfg, month.First())
	if err != nil {
		return nil, err
	}
	if n < item.PaidCount {
		n = item.PaidCount
	}
	if cfg.Cycle == CycleOneTime && n > 0 {
		return nil, nil
	}

	last := month.Last()
	if cfg.EndDate != nil && cfg.EndDate.Before(last) {
		last = *cfg.EndDate
	}

	var dates []calendar.Date
	for {
		d, err := NthBillingDate(cfg, n)
		if err != nil {
			return nil, err
		}
		if d.After(last) {
			break
		}
		if month.Contains(d) {
			dates = append(dates, d)
		}
		if cfg.Cycle == CycleOneTime {
			break
		}
		n++
	}
	return dates, nil
}

var (
	daysPerYear   = decimal.NewFromInt(365)
	weeksPerYear  = decimal.NewFromInt(52)
	monthsPerYear = decimal.NewFromInt(12)
)

// MonthlyEquivalent spreads price evenly over months, e.g. a yearly price of
// 120 is 10 per month. One-time charges have no monthly equivalent.
func MonthlyEquivalent(cfg Config, price decimal.Decimal) (decimal.Decimal, error) {
	if err := cfg.Validate(); err != nil {
		return decimal.Zero, err
	}
	interval := decimal.NewFromInt(int64(cfg.Interval))

	var perMonth decimal.Decimal
	switch cfg.Cycle {
	case CycleDaily:
		perMonth = price.Mul(daysPerYear).Div(monthsPerYear)
	case CycleWeekly:
		perMonth = price.Mul(weeksPerYear).Div(monthsPerYear)
	case CycleMonthly, CycleQuarterly, CycleYearly:
		months, err := cfg.Cycle.monthsPerCycle()
		if err != nil {
			return decimal.Zero, err
		}
		perMonth = price.Div(decimal.NewFromInt(int64(months)))
	case CycleOneTime:
		return decimal.Zero, nil
	default:
		return decimal.Zero, configErr("billing_cycle", "unrecognized cycle %q", cfg.Cycle)
	}
	return perMonth.Div(interval).Round(2), nil
}
