package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"

	defaultMinSecretBytes = 8
	defaultMaxSecretBytes = 1024
)

var (
	// ErrSecretLength is returned when a secret is outside the configured bounds.
	ErrSecretLength = errors.New("secret length out of bounds")
	// ErrMalformedHash is returned for stored hashes this package cannot read.
	ErrMalformedHash = errors.New("malformed argon2 hash")
)

// Config holds the Argon2id cost parameters and the accepted secret length.
// Zero MinSecretBytes and MaxSecretBytes select 8 and 1024.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	MinSecretBytes int
	MaxSecretBytes int
}

// DefaultConfig returns parameters suited to hashing a batch of recovery
// codes at registration time.
func DefaultConfig() Config {
	return Config{
		Memory:      19 * 1024,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2 hashes and verifies secrets. It is safe for concurrent use.
type Argon2 struct {
	config Config
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
	keyLength   uint32
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if cfg.MinSecretBytes == 0 {
		cfg.MinSecretBytes = defaultMinSecretBytes
	}
	if cfg.MaxSecretBytes == 0 {
		cfg.MaxSecretBytes = defaultMaxSecretBytes
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return &Argon2{config: cfg}, nil
}

// Hash returns the PHC encoding of secret under a fresh random salt.
// Secrets are hashed as raw bytes with no Unicode normalization.
func (a *Argon2) Hash(secret string) (string, error) {
	if err := a.checkLength(secret); err != nil {
		return "", err
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey(
		[]byte(secret),
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	)

	saltEncoded := base64.StdEncoding.EncodeToString(salt)
	hashEncoded := base64.StdEncoding.EncodeToString(hash)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		saltEncoded,
		hashEncoded,
	), nil
}

// Verify reports whether secret matches encodedHash. A malformed hash is an
// error; a mismatch is not.
func (a *Argon2) Verify(secret string, encodedHash string) (bool, error) {
	if a.checkLength(secret) != nil {
		return false, nil
	}
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(secret),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		parsed.keyLength,
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker
// parameters than the hasher's configuration.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	stale := a.config.Memory > parsed.memory ||
		a.config.Time > parsed.time ||
		a.config.Parallelism > parsed.parallelism ||
		a.config.KeyLength != parsed.keyLength
	return stale, nil
}

func (a *Argon2) checkLength(secret string) error {
	if len(secret) < a.config.MinSecretBytes || len(secret) > a.config.MaxSecretBytes {
		return errors.Wrapf(ErrSecretLength, "secret must be %d..%d bytes",
			a.config.MinSecretBytes, a.config.MaxSecretBytes)
	}
	return nil
}

// parsePHC decodes "$argon2id$v=19$m=..,t=..,p=..$salt$hash". The parameter
// segment must be in canonical order and form.
func parsePHC(encodedHash string) (*parsedPHC, error) {
	fields := strings.Split(encodedHash, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != algorithmID {
		return nil, errors.Wrap(ErrMalformedHash, "not an argon2id PHC string")
	}
	if fields[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, errors.Wrapf(ErrMalformedHash, "unsupported version %q", fields[2])
	}

	var p parsedPHC
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism); err != nil {
		return nil, errors.Wrapf(ErrMalformedHash, "parameters %q", fields[3])
	}
	if fmt.Sprintf("m=%d,t=%d,p=%d", p.memory, p.time, p.parallelism) != fields[3] {
		return nil, errors.Wrapf(ErrMalformedHash, "parameters %q", fields[3])
	}
	if p.memory < minMemoryKB || p.time < minTimeCost || p.parallelism < minParallelism {
		return nil, errors.Wrap(ErrMalformedHash, "parameters below minimum")
	}

	var err error
	if p.salt, err = base64.StdEncoding.DecodeString(fields[4]); err != nil || uint32(len(p.salt)) < minSaltLength {
		return nil, errors.Wrap(ErrMalformedHash, "salt")
	}
	if p.hash, err = base64.StdEncoding.DecodeString(fields[5]); err != nil || len(p.hash) == 0 {
		return nil, errors.Wrap(ErrMalformedHash, "hash")
	}
	p.keyLength = uint32(len(p.hash))
	return &p, nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.Memory < minMemoryKB:
		return errors.Newf("argon2 memory must be >= %d KB", minMemoryKB)
	case cfg.Time < minTimeCost:
		return errors.New("argon2 time must be >= 1")
	case cfg.Parallelism < minParallelism:
		return errors.New("argon2 parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return errors.Newf("argon2 salt length must be >= %d", minSaltLength)
	case cfg.KeyLength < minKeyLength:
		return errors.Newf("argon2 key length must be >= %d", minKeyLength)
	case cfg.MinSecretBytes < 1 || cfg.MaxSecretBytes < cfg.MinSecretBytes:
		return errors.Newf("invalid secret bounds %d..%d", cfg.MinSecretBytes, cfg.MaxSecretBytes)
	}
	return nil
}
