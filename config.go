package goMFA

import (
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/MrEthical07/goMFA/method"
	"github.com/MrEthical07/goMFA/store"
	"github.com/cockroachdb/errors"
)

// Config defines the engine's method list and flow policy.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	// Methods are catalogue names of the enabled methods, in display order.
	Methods       []string
	Policy        PolicyConfig
	Session       SessionConfig
	Verification  VerificationConfig
	Notifications NotificationConfig
	Metrics       MetricsConfig
	// RoutePrefix is the path the HTTP surface is mounted under. It is used
	// to render endpoint templates in the schema.
	RoutePrefix string
	// Resources are help links relayed to the frontend through the schema.
	Resources map[string]string
}

/*
====================================
POLICY CONFIG
====================================
*/

// PolicyConfig decides when a member must use MFA and when a login is
// fully verified.
type PolicyConfig struct {
	// Required makes MFA mandatory for every member once the grace period
	// has ended.
	Required bool
	// GracePeriodEnd lets members skip registration until this instant even
	// when Required is set. Zero means no grace period.
	GracePeriodEnd time.Time
	// RequiredFactors is the number of distinct methods a login must verify.
	// Members with fewer registered methods verify all of them.
	RequiredFactors int
	// BackupMethod is the URL segment of the recovery method, or "".
	BackupMethod string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls where the flow store lives in the host session.
type SessionConfig struct {
	Key string
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig bounds failed verification attempts per member.
// MaxAttempts of 0 disables lockout.
type VerificationConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
}

/*
====================================
NOTIFICATION CONFIG
====================================
*/

// NotificationConfig controls the asynchronous notification dispatcher.
type NotificationConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig enables the engine's in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns a config with one required factor, lockout after
// five failures for fifteen minutes and notifications enabled.
func DefaultConfig() Config {
	return Config{
		Policy: PolicyConfig{
			RequiredFactors: 1,
		},
		Session: SessionConfig{
			Key: store.DefaultKey,
		},
		Verification: VerificationConfig{
			MaxAttempts: 5,
			Cooldown:    15 * time.Minute,
		},
		Notifications: NotificationConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		RoutePrefix: "/mfa",
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Methods = slices.Clone(cfg.Methods)
	out.Resources = maps.Clone(cfg.Resources)
	return out
}

// Validate checks the config for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Policy.RequiredFactors < 1 {
		return configError("Policy RequiredFactors must be >= 1", "set Policy.RequiredFactors to 1 for single-factor MFA")
	}
	if c.Policy.BackupMethod != "" {
		if err := method.ValidateSegment(c.Policy.BackupMethod); err != nil {
			return configError("Policy BackupMethod is not a valid url segment", "use the URL segment of a configured method, e.g. \"backup-codes\"")
		}
	}
	if strings.TrimSpace(c.Session.Key) == "" {
		return configError("Session Key must not be empty", "leave Session.Key at its default \""+store.DefaultKey+"\"")
	}
	if c.Verification.MaxAttempts < 0 {
		return configError("Verification MaxAttempts must be >= 0", "use 0 to disable verification lockout")
	}
	if c.Verification.MaxAttempts > 0 && c.Verification.Cooldown <= 0 {
		return configError("Verification Cooldown must be > 0 when MaxAttempts is set", "a cooldown of 15m is a common choice")
	}
	if c.Notifications.Enabled && c.Notifications.BufferSize <= 0 {
		return configError("Notifications BufferSize must be > 0", "set Notifications.BufferSize or disable notifications")
	}
	if !strings.HasPrefix(c.RoutePrefix, "/") {
		return configError("RoutePrefix must start with /", "use \"/mfa\"")
	}
	for _, name := range c.Methods {
		if strings.TrimSpace(name) == "" {
			return configError("Methods must not contain empty names", "list catalogue names such as \"basic-math\"")
		}
	}
	return nil
}

func configError(msg, hint string) error {
	return errors.WithHint(errors.Mark(errors.New(msg), ErrConfiguration), hint)
}
