package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goMFA/methods/backupcodes"
	"github.com/MrEthical07/goMFA/methods/basicmath"
	"github.com/MrEthical07/goMFA/methods/totp"
	"github.com/spf13/viper"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigFromFileAndEnv(t *testing.T) {
	path := writeFile(t, "mfa.yaml", `
addr: 127.0.0.1:9090
methods: [totp, backup-codes]
records:
  driver: memory
policy:
  required: true
  grace_period_end: "2030-01-01T00:00:00Z"
  max_attempts: 3
  cooldown: 2m
`)
	t.Setenv("MFA_SESSION_SIGNING_KEY", testSigningKey)
	t.Setenv("MFA_POLICY_MAX_ATTEMPTS", "7")

	cfg, err := loadConfig(viper.New(), path, "")
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9090" {
		t.Fatalf("unexpected addr %q", cfg.Addr)
	}
	if len(cfg.Methods) != 2 || cfg.Methods[0] != totp.URLSegment {
		t.Fatalf("unexpected methods %v", cfg.Methods)
	}
	if cfg.Records.Driver != "memory" {
		t.Fatalf("unexpected driver %q", cfg.Records.Driver)
	}
	if cfg.Policy.MaxAttempts != 7 {
		t.Fatalf("expected env to override file, got %d", cfg.Policy.MaxAttempts)
	}
	if cfg.Policy.Cooldown != 2*time.Minute {
		t.Fatalf("unexpected cooldown %v", cfg.Policy.Cooldown)
	}
	if cfg.Session.CookieName != "mfa_sid" || cfg.Session.TTL != 30*time.Minute {
		t.Fatalf("expected session defaults, got %+v", cfg.Session)
	}

	ec := engineConfig(cfg)
	if err := ec.Validate(); err != nil {
		t.Fatalf("engine config invalid: %v", err)
	}
	want := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	if !ec.Policy.GracePeriodEnd.Equal(want) {
		t.Fatalf("expected grace period end %v, got %v", want, ec.Policy.GracePeriodEnd)
	}
	if !ec.Policy.Required || ec.Verification.MaxAttempts != 7 {
		t.Fatalf("policy not carried into engine config: %+v", ec)
	}
}

func TestLoadConfigMethodsFromEnvList(t *testing.T) {
	t.Setenv("MFA_SESSION_SIGNING_KEY", testSigningKey)
	t.Setenv("MFA_METHODS", "basic-math,backup-codes")

	cfg, err := loadConfig(viper.New(), "", "")
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if len(cfg.Methods) != 2 || cfg.Methods[0] != basicmath.URLSegment || cfg.Methods[1] != backupcodes.URLSegment {
		t.Fatalf("unexpected methods %v", cfg.Methods)
	}
}

func TestLoadConfigReadsDotenv(t *testing.T) {
	t.Setenv("MFA_SESSION_SIGNING_KEY", testSigningKey)
	t.Cleanup(func() { _ = os.Unsetenv("MFA_TOTP_ISSUER") })
	envFile := writeFile(t, ".env", "MFA_TOTP_ISSUER=Example Corp\n")

	cfg, err := loadConfig(viper.New(), "", envFile)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.TOTP.Issuer != "Example Corp" {
		t.Fatalf("expected issuer from dotenv, got %q", cfg.TOTP.Issuer)
	}
}

func TestLoadConfigMissingDotenvIgnored(t *testing.T) {
	t.Setenv("MFA_SESSION_SIGNING_KEY", testSigningKey)
	missing := filepath.Join(t.TempDir(), "absent.env")
	if _, err := loadConfig(viper.New(), "", missing); err != nil {
		t.Fatalf("expected missing dotenv to be ignored, got %v", err)
	}
}

func TestLoadConfigRejects(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing signing key", map[string]string{}},
		{"short signing key", map[string]string{"MFA_SESSION_SIGNING_KEY": "short"}},
		{"unknown driver", map[string]string{"MFA_RECORDS_DRIVER": "mongo"}},
		{"postgres without dsn", map[string]string{"MFA_RECORDS_DRIVER": "postgres"}},
		{"smtp without addr", map[string]string{"MFA_SMTP_ENABLED": "true", "MFA_SMTP_FROM": "mfa@example.com"}},
		{"bad log level", map[string]string{"MFA_LOG_LEVEL": "loud"}},
		{"bad grace period", map[string]string{"MFA_POLICY_GRACE_PERIOD_END": "next tuesday"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("MFA_SESSION_SIGNING_KEY", testSigningKey)
			if tc.name == "missing signing key" {
				t.Setenv("MFA_SESSION_SIGNING_KEY", "")
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := loadConfig(viper.New(), "", ""); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}

func TestLoadConfigRequiresRedisOutsideDev(t *testing.T) {
	t.Setenv("MFA_SESSION_SIGNING_KEY", testSigningKey)
	path := writeFile(t, "mfa.yaml", "redis:\n  addr: \"\"\n")

	if _, err := loadConfig(viper.New(), path, ""); err == nil {
		t.Fatal("expected error without redis address")
	}

	t.Setenv("MFA_DEV", "true")
	if _, err := loadConfig(viper.New(), path, ""); err != nil {
		t.Fatalf("dev mode should not need redis: %v", err)
	}
}

func TestCatalogueBuildsEveryMethod(t *testing.T) {
	cfg := ServerConfig{TOTP: TOTPConfig{Issuer: "Example"}}
	catalogue := buildCatalogue(cfg)
	for _, segment := range []string{basicmath.URLSegment, backupcodes.URLSegment, totp.URLSegment} {
		ctor, ok := catalogue[segment]
		if !ok {
			t.Fatalf("catalogue missing %q", segment)
		}
		m, err := ctor()
		if err != nil {
			t.Fatalf("construct %q: %v", segment, err)
		}
		if m.URLSegment() != segment {
			t.Fatalf("expected segment %q, got %q", segment, m.URLSegment())
		}
	}
}

func TestMethodsCommandListsCatalogue(t *testing.T) {
	t.Setenv("MFA_SESSION_SIGNING_KEY", testSigningKey)
	t.Setenv("MFA_METHODS", "totp")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"methods", "--env-file", filepath.Join(t.TempDir(), "none.env")})
	if err := root.Execute(); err != nil {
		t.Fatalf("methods command failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 methods, got %q", out.String())
	}
	for _, line := range lines {
		enabled := strings.HasPrefix(line, "*")
		if strings.Contains(line, " "+totp.URLSegment+" ") != enabled {
			t.Fatalf("only totp should be marked enabled: %q", line)
		}
	}
}
