package hostsession

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/goMFA/store"
	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newTestManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	m, err := NewManager(client, Config{SigningKey: testKey, Issuer: "goMFA-test"})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, mr
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "mfa_sid" {
			return c
		}
	}
	t.Fatalf("expected mfa_sid cookie to be set")
	return nil
}

func TestTokenCodecRejectsShortKey(t *testing.T) {
	if _, err := NewTokenCodec([]byte("short"), "", time.Minute); err == nil {
		t.Fatalf("expected short key to be rejected")
	}
}

func TestTokenCodecRoundTrip(t *testing.T) {
	codec, err := NewTokenCodec(testKey, "issuer", time.Minute)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	token, err := codec.Issue("sid-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	sid, expires, err := codec.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sid != "sid-1" {
		t.Fatalf("expected sid-1, got %q", sid)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("expected future expiry, got %v", expires)
	}
}

func TestTokenCodecRejectsTampering(t *testing.T) {
	codec, _ := NewTokenCodec(testKey, "issuer", time.Minute)
	other, _ := NewTokenCodec([]byte("ffffffffffffffffffffffffffffffff"), "issuer", time.Minute)

	token, err := other.Issue("sid-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, _, err := codec.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign key, got %v", err)
	}

	wrongIssuer, _ := NewTokenCodec(testKey, "someone-else", time.Minute)
	token, _ = wrongIssuer.Issue("sid-1")
	if _, _, err := codec.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong issuer, got %v", err)
	}
}

func TestTokenCodecRejectsExpired(t *testing.T) {
	codec, _ := NewTokenCodec(testKey, "", time.Minute)
	codec.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err := codec.Issue("sid-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	codec.now = time.Now
	if _, _, err := codec.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestManagerSessionCookieReuse(t *testing.T) {
	m, _ := newTestManager(t)

	rec := httptest.NewRecorder()
	first, err := m.Session(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	cookie := sessionCookie(t, rec)
	if !cookie.HttpOnly {
		t.Fatalf("expected HttpOnly cookie")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec2 := httptest.NewRecorder()
	second, err := m.Session(rec2, req)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if second.ID() != first.ID() {
		t.Fatalf("expected cookie to resolve the same session")
	}
	if len(rec2.Result().Cookies()) != 0 {
		t.Fatalf("expected fresh token not to be re-issued")
	}
}

func TestManagerInvalidCookieStartsNewSession(t *testing.T) {
	m, _ := newTestManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "mfa_sid", Value: "garbage"})
	rec := httptest.NewRecorder()
	s, err := m.Session(rec, req)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if s.ID() == "" {
		t.Fatalf("expected new session id")
	}
	sessionCookie(t, rec)
}

func TestSessionValuesAndTTL(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	s, err := m.Session(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("Session: %v", err)
	}

	if _, ok, err := s.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || v != "v" {
		t.Fatalf("expected v, got %q ok=%v err=%v", v, ok, err)
	}
	if ttl := mr.TTL("mhs:" + s.ID()); ttl != 30*time.Minute {
		t.Fatalf("expected 30m ttl, got %v", ttl)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	a, _ := m.Session(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	b, _ := m.Session(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	st := store.New("member-a")
	if err := st.Save(ctx, a, store.DefaultKey); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := store.Load(ctx, b, store.DefaultKey); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected other visitor to see nothing, got %v", err)
	}
	loaded, err := store.Load(ctx, a, store.DefaultKey)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.MemberID() != "member-a" {
		t.Fatalf("expected member-a, got %q", loaded.MemberID())
	}
}

func TestSessionBackendFailure(t *testing.T) {
	m, mr := newTestManager(t)
	s, _ := m.Session(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	mr.Close()

	if err := s.Set(context.Background(), "k", "v"); !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
}

func TestDestroyExpiresCookie(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	s, _ := m.Session(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	_ = s.Set(ctx, "k", "v")

	rec := httptest.NewRecorder()
	if err := m.Destroy(ctx, rec, s); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if mr.Exists("mhs:" + s.ID()) {
		t.Fatalf("expected session hash to be removed")
	}
	if c := sessionCookie(t, rec); c.MaxAge >= 0 {
		t.Fatalf("expected expired cookie, got MaxAge=%d", c.MaxAge)
	}
}

func TestMemorySession(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Set(ctx, "a", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, _ := m.Get(ctx, "a"); !ok || v != "1" {
		t.Fatalf("expected 1, got %q ok=%v", v, ok)
	}
	_ = m.Delete(ctx, "a")
	if m.Len() != 0 {
		t.Fatalf("expected empty session")
	}
}
