package hostsession

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

const minSigningKeyBytes = 32

// ErrInvalidToken is returned when a session cookie fails verification.
var ErrInvalidToken = errors.New("invalid session token")

// TokenCodec signs and verifies session-id tokens.
type TokenCodec struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenCodec returns a codec. key must be at least 32 bytes.
func NewTokenCodec(key []byte, issuer string, ttl time.Duration) (*TokenCodec, error) {
	if len(key) < minSigningKeyBytes {
		return nil, errors.Newf("session signing key must be at least %d bytes", minSigningKeyBytes)
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be > 0")
	}
	return &TokenCodec{
		key:    append([]byte(nil), key...),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue returns a signed token for sessionID.
func (c *TokenCodec) Issue(sessionID string) (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		ID:        sessionID,
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", errors.Wrap(err, "sign session token")
	}
	return token, nil
}

// Parse verifies token and returns its session id and expiry.
func (c *TokenCodec) Parse(token string) (string, time.Time, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		options = append(options, jwt.WithIssuer(c.issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	}, options...)
	if err != nil {
		return "", time.Time{}, errors.Mark(errors.Wrap(err, "parse session token"), ErrInvalidToken)
	}
	if claims.ID == "" {
		return "", time.Time{}, errors.Wrap(ErrInvalidToken, "session token has no id")
	}
	return claims.ID, claims.ExpiresAt.Time, nil
}
