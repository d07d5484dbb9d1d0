package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/ayumbro/Remindy/internal/pkg/billing"
	"github.com/ayumbro/Remindy/internal/pkg/cache"
	"github.com/ayumbro/Remindy/internal/pkg/database"
	"github.com/ayumbro/Remindy/internal/pkg/env"
	"github.com/ayumbro/Remindy/internal/pkg/metrics"
	"github.com/ayumbro/Remindy/internal/pkg/reminder"
	"github.com/ayumbro/Remindy/internal/pkg/router"
)

const shutdownTimeout = 10 * time.Second

// Application bundles the HTTP app with its background workers.
type Application struct {
	App       *fiber.App
	Reminders *reminder.Manager
	Publisher reminder.Publisher
}

func main() {
	application := NewApplication()
	application.Reminders.Start()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := application.App.Listen(addr); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	application.Shutdown()
}

func NewApplication() *Application {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/remindy to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewRecorder(registry)

	store := cache.NewStore(cache.GetClient())
	clock := billing.SystemClock{Location: env.Location()}
	service := billing.NewServiceFromDB(database.GetDB(), billing.Options{
		Locker:          cache.NewRedisLocker(cache.GetClient()),
		Cache:           store,
		Clock:           clock,
		Metrics:         recorder,
		LockTTL:         env.GetDuration("BILLING_LOCK_TTL", billing.DefaultLockTTL),
		ForecastWorkers: env.GetInt("FORECAST_WORKERS", billing.DefaultForecastWorkers),
		ForecastTTL:     env.GetDuration("FORECAST_CACHE_TTL", billing.DefaultForecastTTL),
	})

	publisher := newPublisher()
	scanner := reminder.NewScanner(
		billing.NewRepository(database.GetDB()),
		publisher,
		clock,
		reminder.WithDeduper(store),
		reminder.WithMetrics(recorder),
	)
	reminders := reminder.NewManager(scanner, env.GetDuration("REMINDER_INTERVAL", reminder.DefaultInterval))

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "Remindy",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New(), recorder.Middleware())

	// prometheus metrics
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// fiber monitor
	if user := env.GetEnv("MONITOR_USER", ""); user != "" {
		app.Get("/monitor", basicauth.New(basicauth.Config{
			Users: map[string]string{
				user: env.GetEnv("MONITOR_PASSWORD", ""),
			},
		}), monitor.New())
	}

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app, router.NewApiRouter(
		service,
		service.Today,
		cache.NewLimiterStorage(),
		env.GetInt("API_RATE_LIMIT", router.DefaultRateLimit),
	))

	return &Application{App: app, Reminders: reminders, Publisher: publisher}
}

// newPublisher connects to Kafka when brokers are configured and falls back
// to logging the events otherwise.
func newPublisher() reminder.Publisher {
	brokers := env.GetList("KAFKA_BROKERS", "")
	if len(brokers) == 0 {
		log.Warn("KAFKA_BROKERS not set, reminder events are only logged")
		return reminder.LogPublisher{}
	}

	producer, err := reminder.NewSyncProducer(brokers)
	if err != nil {
		log.Errorf("Failed to create Kafka producer, reminder events are only logged: %v", err)
		return reminder.LogPublisher{}
	}
	return reminder.NewKafkaPublisher(producer, env.GetEnv("KAFKA_REMINDER_TOPIC", reminder.DefaultTopic))
}

func (a *Application) Shutdown() {
	if err := a.App.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Errorf("HTTP shutdown failed: %v", err)
	}
	a.Reminders.Stop()
	if err := a.Publisher.Close(); err != nil {
		log.Errorf("Failed to close reminder publisher: %v", err)
	}
	if err := closeDatabase(database.GetDB()); err != nil {
		log.Errorf("Failed to close database: %v", err)
	}
	if err := cache.GetClient().Close(); err != nil {
		log.Errorf("Failed to close cache client: %v", err)
	}
	log.Info("Shutdown complete")
}

func closeDatabase(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
