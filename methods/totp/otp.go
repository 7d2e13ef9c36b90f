package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const secretBytes = 20

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// generator computes and checks RFC 6238 codes.
type generator struct {
	config Config
}

func (g generator) newSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", errors.Wrap(err, "generate totp secret")
	}
	return secretEncoding.EncodeToString(raw), nil
}

func decodeSecret(secretBase32 string) ([]byte, error) {
	raw, err := secretEncoding.DecodeString(strings.ToUpper(strings.TrimSpace(secretBase32)))
	if err != nil {
		return nil, errors.Wrap(err, "decode totp secret")
	}
	if len(raw) == 0 {
		return nil, errors.New("empty totp secret")
	}
	return raw, nil
}

func (g generator) provisionURI(secretBase32, account string) string {
	issuer := g.config.Issuer
	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", issuer)
	v.Set("period", strconv.Itoa(g.config.Period))
	v.Set("digits", strconv.Itoa(g.config.Digits))
	v.Set("algorithm", strings.ToUpper(g.config.Algorithm))

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// verify checks code against the steps around now and returns the matching
// counter. Counters at or below notAfter are treated as already used.
func (g generator) verify(secret []byte, code string, now time.Time, notAfter int64) (bool, int64, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != g.config.Digits || !isNumeric(trimmed) {
		return false, 0, nil
	}

	base := now.Unix() / int64(g.config.Period)
	for step := -g.config.Skew; step <= g.config.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 || counter <= notAfter {
			continue
		}
		generated, err := hotpCode(secret, counter, g.config.Digits, g.config.Algorithm)
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, counter, nil
		}
	}

	return false, 0, nil
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.Newf("unsupported totp algorithm %q", algorithm)
	}
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
