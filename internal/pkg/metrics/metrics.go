package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder collects billing, reminder and HTTP metrics on one registry.
type Recorder struct {
	paymentsRecorded *prometheus.CounterVec
	conflicts        *prometheus.CounterVec
	forecastDuration prometheus.Histogram
	remindersSent    *prometheus.CounterVec
	remindersFailed  prometheus.Counter
	remindersSkipped prometheus.Counter
	requestDuration  *prometheus.HistogramVec
}

// NewRecorder registers all collectors on registry.
func NewRecorder(registry prometheus.Registerer) *Recorder {
	factory := promauto.With(registry)

	return &Recorder{
		paymentsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remindy_payments_recorded_total",
				Help: "The total number of paid payments recorded",
			},
			[]string{"currency", "source"},
		),
		conflicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remindy_billing_conflicts_total",
				Help: "The total number of writes rejected because of a concurrent update",
			},
			[]string{"operation"},
		),
		forecastDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "remindy_forecast_duration_seconds",
				Help:    "Time spent computing monthly forecasts",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 6),
			},
		),
		remindersSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "remindy_reminders_sent_total",
				Help: "The total number of reminder events published",
			},
			[]string{"kind"},
		),
		remindersFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "remindy_reminders_failed_total",
				Help: "The total number of reminder events that could not be published",
			},
		),
		remindersSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "remindy_reminders_deduplicated_total",
				Help: "The total number of reminders skipped because they were already sent",
			},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "remindy_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}
}

func (r *Recorder) PaymentRecorded(currency, source string) {
	r.paymentsRecorded.WithLabelValues(currency, source).Inc()
}

func (r *Recorder) Conflict(operation string) {
	r.conflicts.WithLabelValues(operation).Inc()
}

func (r *Recorder) ObserveForecast(d time.Duration) {
	r.forecastDuration.Observe(d.Seconds())
}

func (r *Recorder) ReminderSent(kind string) {
	r.remindersSent.WithLabelValues(kind).Inc()
}

func (r *Recorder) ReminderFailed() {
	r.remindersFailed.Inc()
}

func (r *Recorder) ReminderDeduplicated() {
	r.remindersSkipped.Inc()
}

// Middleware observes the latency of every request. The route label is the
// registered path pattern, never the raw URL.
func (r *Recorder) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		r.requestDuration.
			WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())

		return err
	}
}
