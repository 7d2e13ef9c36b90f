package password

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
)

func fastConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerify(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	hash, err := hasher.Hash("ABCDEFGHJ")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("ABCDEFGHJ", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("expected verification to succeed")
	}

	ok, err = hasher.Verify("ABCDEFGHK", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong secret verification to fail")
	}
}

func TestHashUsesFreshSalt(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	a, err := hasher.Hash("recovery-code")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	b, err := hasher.Hash("recovery-code")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct hashes for the same secret")
	}
}

func TestSecretLengthBounds(t *testing.T) {
	cfg := fastConfig()
	cfg.MinSecretBytes = 6
	cfg.MaxSecretBytes = 12
	hasher, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	for _, secret := range []string{"", "short", strings.Repeat("x", 13)} {
		if _, err := hasher.Hash(secret); !errors.Is(err, ErrSecretLength) {
			t.Fatalf("expected ErrSecretLength for %q, got %v", secret, err)
		}
	}

	hash, err := hasher.Hash(strings.Repeat("y", 12))
	if err != nil {
		t.Fatalf("expected max-length secret to be accepted: %v", err)
	}
	ok, err := hasher.Verify(strings.Repeat("y", 13), hash)
	if err != nil || ok {
		t.Fatalf("expected over-long secret to be rejected: ok=%v err=%v", ok, err)
	}
}

func TestNeedsUpgrade(t *testing.T) {
	oldHasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2(old) error: %v", err)
	}
	hash, err := oldHasher.Hash("recovery-code")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	stronger := fastConfig()
	stronger.Time = 2
	newHasher, err := NewArgon2(stronger)
	if err != nil {
		t.Fatalf("NewArgon2(new) error: %v", err)
	}

	needsUpgrade, err := newHasher.NeedsUpgrade(hash)
	if err != nil {
		t.Fatalf("NeedsUpgrade error: %v", err)
	}
	if !needsUpgrade {
		t.Fatal("expected NeedsUpgrade for weaker parameters")
	}

	needsUpgrade, err = oldHasher.NeedsUpgrade(hash)
	if err != nil || needsUpgrade {
		t.Fatalf("expected no upgrade for current parameters: %v %v", needsUpgrade, err)
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	hasher, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	if _, err := hasher.Verify("recovery-code", "not-a-phc-hash"); !errors.Is(err, ErrMalformedHash) {
		t.Fatalf("expected ErrMalformedHash, got %v", err)
	}

	hash, err := hasher.Hash("recovery-code")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	wrongVersion := strings.Replace(hash, "$v=19$", "$v=18$", 1)
	if _, err := hasher.Verify("recovery-code", wrongVersion); !errors.Is(err, ErrMalformedHash) {
		t.Fatalf("expected unsupported version to fail, got %v", err)
	}
	reordered := strings.Replace(hash, "$m=8192,t=1,p=1$", "$t=1,m=8192,p=1$", 1)
	if reordered == hash {
		t.Fatalf("unexpected parameter encoding in %q", hash)
	}
	if _, err := hasher.Verify("recovery-code", reordered); !errors.Is(err, ErrMalformedHash) {
		t.Fatalf("expected non-canonical parameters to fail, got %v", err)
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	weak := []Config{
		{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		{Memory: 8192, Time: 0, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 8, KeyLength: 32},
		{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32, MinSecretBytes: 10, MaxSecretBytes: 5},
	}
	for i, cfg := range weak {
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("case %d: expected config to be rejected", i)
		}
	}
	if _, err := NewArgon2(DefaultConfig()); err != nil {
		t.Fatalf("expected default config to be valid: %v", err)
	}
}
