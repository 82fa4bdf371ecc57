package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "email", cfg.LoginField)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.DecayWindow)
	assert.True(t, cfg.UnlockViaNotification)
	assert.Equal(t, 24*time.Hour, cfg.UnlockLinkTTL)
	assert.Zero(t, cfg.AutoUnlock, "manual unlock only by default")
	assert.True(t, cfg.Prune.Enabled)
	assert.Equal(t, 90*24*time.Hour, cfg.Prune.AttemptLogRetention)
	assert.Equal(t, 365*24*time.Hour, cfg.Prune.LockRecordRetention)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LOCKOUT_MAX_ATTEMPTS", "3")
	t.Setenv("LOCKOUT_DECAY_MINUTES", "10")
	t.Setenv("LOCKOUT_AUTO_UNLOCK_HOURS", "2")
	t.Setenv("LOCKOUT_UNLOCK_VIA_NOTIFICATION", "false")
	t.Setenv("LOCKOUT_NOTIFICATION_CHANNELS", "mail, sms")
	t.Setenv("LOCKOUT_PRUNE_LOGS_DAYS", "30")

	cfg := FromEnv()

	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.DecayWindow)
	assert.Equal(t, 2*time.Hour, cfg.AutoUnlock)
	assert.False(t, cfg.UnlockViaNotification)
	assert.Equal(t, []string{"mail", "sms"}, cfg.NotificationChannels)
	assert.Equal(t, 30*24*time.Hour, cfg.Prune.AttemptLogRetention)
}

func TestFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("LOCKOUT_MAX_ATTEMPTS", "many")
	t.Setenv("LOCKOUT_PRUNE_ENABLED", "definitely")

	cfg := FromEnv()

	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.True(t, cfg.Prune.Enabled)
}
