package authgate

import (
	"errors"
	"time"
)

// Config defines the engine's tunables. Construct via DefaultConfig and
// override fields before Build; the engine treats it as immutable afterwards.
type Config struct {
	// BaseURL is the backend root. Required unless a Backend is injected
	// directly.
	BaseURL string

	Session     SessionConfig
	DeviceTrust DeviceTrustConfig
	Storage     StorageConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes token handling and the periodic validity check.
type SessionConfig struct {
	// CheckInterval is the session-clock poll period.
	CheckInterval time.Duration
	// RequestTimeout bounds every remote call.
	RequestTimeout time.Duration
}

/*
====================================
DEVICE TRUST CONFIG
====================================
*/

// DeviceTrustConfig tunes the facial-validation handshake.
type DeviceTrustConfig struct {
	// PhotoCooldown is the minimum gap between photo uploads. Zero
	// disables the limiter.
	PhotoCooldown time.Duration
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig names the keys the engine persists under.
type StorageConfig struct {
	TokenKey  string
	DeviceKey string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig tunes the buffered audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

/// DefaultConfig returns the production defaults: 30s session checks, 15s
// request timeout, 2s photo cooldown.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			CheckInterval:  30 * time.Second,
			RequestTimeout: 15 * time.Second,
		},
		DeviceTrust: DeviceTrustConfig{
			PhotoCooldown: 2 * time.Second,
		},
		Storage: StorageConfig{
			TokenKey:  "session_token",
			DeviceKey: "device_uuid",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 64,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func (c Config) validate() error {
	if c.Session.CheckInterval <= 0 {
		return errors.New("session check interval must be positive")
	}
	if c.Session.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	if c.DeviceTrust.PhotoCooldown < 0 {
		return errors.New("photo cooldown must not be negative")
	}
	if c.Storage.TokenKey == "" || c.Storage.DeviceKey == "" {
		return errors.New("storage keys must not be empty")
	}
	if c.Storage.TokenKey == c.Storage.DeviceKey {
		return errors.New("token and device storage keys must differ")
	}
	return nil
}
