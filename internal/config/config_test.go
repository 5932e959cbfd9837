package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	config, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, "3000", config.Port)
	assert.Equal(t, "Stability/Errors/EVT", config.Feed.Path)
	assert.Equal(t, 10*time.Second, config.Feed.DebounceWindow)
	assert.Equal(t, 10*time.Second, config.Alerts.Cooldown)
	assert.Equal(t, "open", config.Alerts.FailurePolicy)
	assert.Equal(t, 100, config.Dispatch.TokenMinLength)
	assert.Equal(t, ":", config.Dispatch.TokenSeparator)
	assert.Equal(t, 12, config.Schedule.AnnouncementHour)
	assert.False(t, config.Noop())
}

func TestLoadNoop(t *testing.T) {
	config, err := LoadFrom(context.Background(), envconfig.MapLookuper(map[string]string{
		"FIREBASE_DATABASE_URL": "NOOP",
		"ALERT_COOLDOWN":        "30s",
		"ALERT_FAILURE_POLICY":  "closed",
	}))
	require.NoError(t, err)

	assert.True(t, config.Noop())
	assert.Equal(t, 30*time.Second, config.Alerts.Cooldown)
	assert.Equal(t, "closed", config.Alerts.FailurePolicy)
}

func TestLoadInvalid(t *testing.T) {
	tables := []map[string]string{
		{"FEED_MODE": "carrier-pigeon"},
		{"ALERT_FAILURE_POLICY": "sometimes"},
		{"ALERT_LOCK_BACKEND": "redis"},
		{"STATUS_ARCHIVE": "postgres"},
		{"ANNOUNCEMENT_HOUR": "24"},
	}

	for _, env := range tables {
		_, err := LoadFrom(context.Background(), envconfig.MapLookuper(env))
		assert.Error(t, err, "env %v", env)
	}
}
