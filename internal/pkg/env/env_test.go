package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func withEnv(t *testing.T, values map[string]string) {
	t.Helper()
	prev := Env
	Env = values
	t.Cleanup(func() { Env = prev })
}

func TestGetEnvPrefersLoadedFile(t *testing.T) {
	withEnv(t, map[string]string{"APP_PORT": "8080"})
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_HOST", "0.0.0.0")

	assert.Equal(t, "8080", GetEnv("APP_PORT", "4000"))
	assert.Equal(t, "0.0.0.0", GetEnv("APP_HOST", "localhost"))
	assert.Equal(t, "fallback", GetEnv("REMINDY_UNSET_KEY", "fallback"))
}

func TestTypedGetters(t *testing.T) {
	withEnv(t, map[string]string{
		"FORECAST_WORKERS":  "8",
		"BAD_INT":           "eight",
		"REMINDER_INTERVAL": "90s",
		"BAD_DURATION":      "soon",
		"KAFKA_BROKERS":     "kafka-1:9092, kafka-2:9092,,",
		"APP_TIMEZONE":      "Europe/Berlin",
	})

	assert.Equal(t, 8, GetInt("FORECAST_WORKERS", 4))
	assert.Equal(t, 4, GetInt("BAD_INT", 4))
	assert.Equal(t, 4, GetInt("MISSING_INT", 4))
	assert.Equal(t, 90*time.Second, GetDuration("REMINDER_INTERVAL", time.Hour))
	assert.Equal(t, time.Hour, GetDuration("BAD_DURATION", time.Hour))
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, GetList("KAFKA_BROKERS", ""))
	assert.Equal(t, "Europe/Berlin", Location().String())
}

func TestLocationFallsBackToUTC(t *testing.T) {
	withEnv(t, map[string]string{"APP_TIMEZONE": "Mars/Olympus"})
	assert.Equal(t, time.UTC, Location())
}

func TestIsDev(t *testing.T) {
	withEnv(t, map[string]string{"APP_ENV": "dev"})
	assert.True(t, IsDev())

	withEnv(t, map[string]string{"APP_ENV": "prod"})
	assert.False(t, IsDev())
}
