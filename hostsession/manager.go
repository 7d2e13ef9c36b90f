package hostsession

import (
	"context"
	"net/http"
	"time"

	"github.com/MrEthical07/goMFA/store"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrBackend marks Redis failures.
var ErrBackend = errors.New("host session backend unavailable")

// Config controls cookies and storage.
type Config struct {
	CookieName string
	TTL        time.Duration
	KeyPrefix  string
	Secure     bool
	SigningKey []byte
	Issuer     string
}

// Manager resolves the visitor's session from the request cookie.
type Manager struct {
	redis redis.UniversalClient
	codec *TokenCodec
	cfg   Config
}

// NewManager validates cfg and applies defaults: cookie "mfa_sid", TTL 30
// minutes, key prefix "mhs".
func NewManager(client redis.UniversalClient, cfg Config) (*Manager, error) {
	if client == nil {
		return nil, errors.New("host sessions require a redis client")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "mfa_sid"
	}
	if cfg.TTL == 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "mhs"
	}
	codec, err := NewTokenCodec(cfg.SigningKey, cfg.Issuer, cfg.TTL)
	if err != nil {
		return nil, err
	}
	return &Manager{redis: client, codec: codec, cfg: cfg}, nil
}

// Session returns the visitor's session, starting a new one and setting the
// cookie when the request carries no valid token.
func (m *Manager) Session(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if c, err := r.Cookie(m.cfg.CookieName); err == nil {
		sid, expires, err := m.codec.Parse(c.Value)
		if err == nil {
			if time.Until(expires) < m.cfg.TTL/2 {
				if err := m.setCookie(w, sid); err != nil {
					return nil, err
				}
			}
			return &Session{id: sid, m: m}, nil
		}
	}

	sid := uuid.NewString()
	if err := m.setCookie(w, sid); err != nil {
		return nil, err
	}
	return &Session{id: sid, m: m}, nil
}

// Destroy deletes the session data and expires the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	if err := m.redis.Del(ctx, m.key(s.id)).Err(); err != nil {
		return errors.Mark(errors.Wrap(err, "destroy host session"), ErrBackend)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *Manager) setCookie(w http.ResponseWriter, sid string) error {
	token, err := m.codec.Issue(sid)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.cfg.TTL / time.Second),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *Manager) key(sid string) string {
	return m.cfg.KeyPrefix + ":" + sid
}

// Session is one visitor's storage. It implements store.Session.
type Session struct {
	id string
	m  *Manager
}

var _ store.Session = (*Session)(nil)

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.m.redis.HGet(ctx, s.m.key(s.id), key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, errors.Mark(errors.Wrap(err, "read host session"), ErrBackend)
	}
	return v, true, nil
}

func (s *Session) Set(ctx context.Context, key, value string) error {
	k := s.m.key(s.id)
	_, err := s.m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, key, value)
		pipe.Expire(ctx, k, s.m.cfg.TTL)
		return nil
	})
	if err != nil {
		return errors.Mark(errors.Wrap(err, "write host session"), ErrBackend)
	}
	return nil
}

func (s *Session) Delete(ctx context.Context, key string) error {
	if err := s.m.redis.HDel(ctx, s.m.key(s.id), key).Err(); err != nil {
		return errors.Mark(errors.Wrap(err, "delete host session value"), ErrBackend)
	}
	return nil
}
