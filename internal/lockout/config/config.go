package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds lockout policy configuration.
type Config struct {
	// LoginField is the subject attribute used to resolve an identifier
	// to a subject (e.g. "email", "username").
	LoginField string

	// MaxAttempts is the failed-attempt threshold for escalating the
	// transient counter into a persistent lock.
	MaxAttempts int

	// DecayWindow is the TTL attached to the attempt counter.
	DecayWindow time.Duration

	// CacheStore selects the counter backend ("redis" or "memory").
	CacheStore string

	// UnlockViaNotification toggles the locked-account notification that
	// carries a signed unlock link.
	UnlockViaNotification bool

	// UnlockLinkTTL is the lifetime of the signed unlock URL.
	UnlockLinkTTL time.Duration

	// LockLinkTTL is the lifetime of the signed lock URL sent with login
	// notifications when LockOnLogin is enabled.
	LockLinkTTL time.Duration

	// NotificationChannels are the delivery channels handed to the notifier.
	NotificationChannels []string

	// AutoUnlock controls automatic lock expiry. Zero means locks never
	// expire on their own and require a manual unlock.
	AutoUnlock time.Duration

	// RedirectURL is the destination after the lock/unlock HTTP actions.
	RedirectURL string

	// LockOnLogin enables the successful-login notification with a signed
	// lock link so users can lock a compromised account themselves.
	LockOnLogin bool

	// LogoutOnLogin forces session revocation when a locked-out subject
	// somehow completes a login.
	LogoutOnLogin bool

	// SubjectKind is the default resolver kind for bare identifiers.
	SubjectKind string

	// SubjectTable backs the postgres resolver for the default kind.
	SubjectTable string

	Prune PruneConfig
}

// PruneConfig controls retention pruning.
type PruneConfig struct {
	Enabled             bool
	AttemptLogRetention time.Duration
	LockRecordRetention time.Duration
}

// DefaultConfig returns the package defaults, matching the documented
// environment variable defaults.
func DefaultConfig() *Config {
	return &Config{
		LoginField:            "email",
		MaxAttempts:           5,
		DecayWindow:           30 * time.Minute,
		CacheStore:            "redis",
		UnlockViaNotification: true,
		UnlockLinkTTL:         24 * time.Hour,
		LockLinkTTL:           24 * time.Hour,
		NotificationChannels:  []string{"mail"},
		AutoUnlock:            0,
		RedirectURL:           "/login",
		SubjectKind:           "user",
		SubjectTable:          "subjects",
		Prune: PruneConfig{
			Enabled:             true,
			AttemptLogRetention: 90 * 24 * time.Hour,
			LockRecordRetention: 365 * 24 * time.Hour,
		},
	}
}

// FromEnv overlays LOCKOUT_* environment variables onto the defaults.
func FromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("LOCKOUT_LOGIN_FIELD"); v != "" {
		cfg.LoginField = v
	}
	if v, ok := envInt("LOCKOUT_MAX_ATTEMPTS"); ok {
		cfg.MaxAttempts = v
	}
	if v, ok := envInt("LOCKOUT_DECAY_MINUTES"); ok {
		cfg.DecayWindow = time.Duration(v) * time.Minute
	}
	if v := os.Getenv("LOCKOUT_CACHE_STORE"); v != "" {
		cfg.CacheStore = v
	}
	if v, ok := envBool("LOCKOUT_UNLOCK_VIA_NOTIFICATION"); ok {
		cfg.UnlockViaNotification = v
	}
	if v, ok := envInt("LOCKOUT_UNLOCK_LINK_MINUTES"); ok {
		cfg.UnlockLinkTTL = time.Duration(v) * time.Minute
	}
	if v, ok := envInt("LOCKOUT_LOCK_LINK_MINUTES"); ok {
		cfg.LockLinkTTL = time.Duration(v) * time.Minute
	}
	if v := os.Getenv("LOCKOUT_NOTIFICATION_CHANNELS"); v != "" {
		cfg.NotificationChannels = splitChannels(v)
	}
	if v, ok := envInt("LOCKOUT_AUTO_UNLOCK_HOURS"); ok {
		cfg.AutoUnlock = time.Duration(v) * time.Hour
	}
	if v := os.Getenv("LOCKOUT_UNLOCK_REDIRECT_ROUTE"); v != "" {
		cfg.RedirectURL = v
	}
	if v, ok := envBool("LOCKOUT_LOCK_ON_LOGIN"); ok {
		cfg.LockOnLogin = v
	}
	if v, ok := envBool("LOCKOUT_LOGOUT_ON_LOGIN"); ok {
		cfg.LogoutOnLogin = v
	}
	if v := os.Getenv("LOCKOUT_SUBJECT_KIND"); v != "" {
		cfg.SubjectKind = v
	}
	if v := os.Getenv("LOCKOUT_SUBJECT_TABLE"); v != "" {
		cfg.SubjectTable = v
	}
	if v, ok := envBool("LOCKOUT_PRUNE_ENABLED"); ok {
		cfg.Prune.Enabled = v
	}
	if v, ok := envInt("LOCKOUT_PRUNE_LOGS_DAYS"); ok {
		cfg.Prune.AttemptLogRetention = time.Duration(v) * 24 * time.Hour
	}
	if v, ok := envInt("LOCKOUT_PRUNE_MODEL_LOCKOUTS_DAYS"); ok {
		cfg.Prune.LockRecordRetention = time.Duration(v) * 24 * time.Hour
	}

	return cfg
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

func splitChannels(v string) []string {
	parts := strings.Split(v, ",")
	channels := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			channels = append(channels, p)
		}
	}
	return channels
}
