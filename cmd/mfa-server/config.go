package main

import (
	"io/fs"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultAddr = ":8080"
	envPrefix   = "MFA"
)

// ServerConfig is the binary's configuration, read from YAML and MFA_*
// environment variables.
type ServerConfig struct {
	Addr    string   `mapstructure:"addr" validate:"required,hostname_port"`
	Dev     bool     `mapstructure:"dev"`
	Methods []string `mapstructure:"methods" validate:"required,min=1,dive,required"`

	Log      LogConfig      `mapstructure:"log"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Records  RecordsConfig  `mapstructure:"records"`
	Session  SessionConfig  `mapstructure:"session"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	TOTP     TOTPConfig     `mapstructure:"totp"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Identity IdentityConfig `mapstructure:"identity"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
}

// RecordsConfig selects where registered methods are stored.
type RecordsConfig struct {
	Driver    string `mapstructure:"driver" validate:"oneof=memory redis postgres"`
	DSN       string `mapstructure:"dsn" validate:"required_if=Driver postgres"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type SessionConfig struct {
	CookieName string        `mapstructure:"cookie_name"`
	TTL        time.Duration `mapstructure:"ttl" validate:"min=0"`
	Secure     bool          `mapstructure:"secure"`
	SigningKey string        `mapstructure:"signing_key" validate:"required,min=32"`
	Issuer     string        `mapstructure:"issuer"`
}

type PolicyConfig struct {
	Required        bool          `mapstructure:"required"`
	GracePeriodEnd  string        `mapstructure:"grace_period_end" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	RequiredFactors int           `mapstructure:"required_factors" validate:"min=1"`
	BackupMethod    string        `mapstructure:"backup_method"`
	MaxAttempts     int           `mapstructure:"max_attempts" validate:"min=0"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
	RoutePrefix     string        `mapstructure:"route_prefix" validate:"startswith=/"`
}

type TOTPConfig struct {
	Issuer string `mapstructure:"issuer" validate:"required"`
}

type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr" validate:"required_if=Enabled true"`
	From     string `mapstructure:"from" validate:"required_if=Enabled true,omitempty,email"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"startswith=/"`
}

// IdentityConfig names the headers an upstream login proxy sets.
type IdentityConfig struct {
	MemberHeader string `mapstructure:"member_header" validate:"required"`
	EmailHeader  string `mapstructure:"email_header"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", defaultAddr)
	v.SetDefault("dev", false)
	v.SetDefault("methods", []string{"totp", "basic-math", "backup-codes"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("records.driver", "redis")
	v.SetDefault("records.dsn", "")
	v.SetDefault("records.key_prefix", "mfa")

	v.SetDefault("session.cookie_name", "mfa_sid")
	v.SetDefault("session.ttl", 30*time.Minute)
	v.SetDefault("session.secure", true)
	v.SetDefault("session.signing_key", "")
	v.SetDefault("session.issuer", "mfa-server")

	v.SetDefault("policy.required", false)
	v.SetDefault("policy.grace_period_end", "")
	v.SetDefault("policy.required_factors", 1)
	v.SetDefault("policy.backup_method", "backup-codes")
	v.SetDefault("policy.max_attempts", 5)
	v.SetDefault("policy.cooldown", 15*time.Minute)
	v.SetDefault("policy.route_prefix", "/mfa")

	v.SetDefault("totp.issuer", "goMFA")

	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.addr", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("identity.member_header", "X-Member-ID")
	v.SetDefault("identity.email_header", "X-Member-Email")
}

// bindFlags binds every flag of cmd to the viper key of the same name.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var result error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "env-file" {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil {
			result = multierror.Append(result, err)
		}
	})
	return result
}

// loadConfig reads envFile into the process environment, then configFile
// and MFA_* variables into a validated ServerConfig. Missing files named by
// default are ignored.
func loadConfig(v *viper.Viper, configFile, envFile string) (ServerConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ServerConfig{}, errors.Wrapf(err, "load %s", envFile)
		}
	}

	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return ServerConfig{}, errors.Wrapf(err, "read config %s", configFile)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ServerConfig{}, errors.Wrap(err, "decode config")
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return ServerConfig{}, errors.WithHint(errors.Wrap(err, "invalid config"),
			"set values in the YAML file or as MFA_<SECTION>_<KEY> environment variables")
	}
	if !cfg.Dev && cfg.Redis.Addr == "" {
		return ServerConfig{}, errors.New("invalid config: redis.addr is required unless --dev is set")
	}
	return cfg, nil
}

func (c PolicyConfig) gracePeriodEnd() time.Time {
	if c.GracePeriodEnd == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, c.GracePeriodEnd)
	if err != nil {
		return time.Time{}
	}
	return t
}
