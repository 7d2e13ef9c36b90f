package totp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/MrEthical07/goMFA/method"
	"github.com/MrEthical07/goMFA/store"
)

func newTestMethod(t *testing.T, now *time.Time) *Method {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return *now }
	m, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return m
}

func codeAt(t *testing.T, secretBase32 string, at time.Time) string {
	t.Helper()

	secret, err := decodeSecret(secretBase32)
	if err != nil {
		t.Fatalf("decodeSecret failed: %v", err)
	}
	code, err := hotpCode(secret, at.Unix()/30, 6, "SHA1")
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return code
}

func codeBody(code string) method.Request {
	return method.NewRequest([]byte(`{"code":"` + code + `"}`))
}

func TestRegisterThenLogin(t *testing.T) {
	now := time.Unix(1700000000, 0)
	m := newTestMethod(t, &now)
	ctx := context.Background()
	member := method.Member{ID: "member-1", Email: "ada@example.com"}

	s := store.New(member.ID)
	props, err := m.RegisterHandler().Start(ctx, s, member)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	secret, _ := props["secret"].(string)
	if secret == "" {
		t.Fatalf("expected secret in props, got %v", props)
	}
	if stored, _ := s.StateString("secret"); stored != secret {
		t.Fatalf("expected secret kept in store state")
	}

	good := codeAt(t, secret, now)
	wrong := string('0'+('9'-good[0])) + good[1:]
	if res := m.RegisterHandler().Register(ctx, codeBody(wrong), s, member); res.Successful {
		t.Fatal("expected wrong code to fail registration")
	}

	res := m.RegisterHandler().Register(ctx, codeBody(good), s, member)
	if !res.Successful {
		t.Fatalf("Register failed: %+v", res)
	}
	registered := &method.RegisteredMethod{MemberID: member.ID, Method: URLSegment, Data: res.Data}

	// The registration code cannot be replayed at login.
	login := store.New(member.ID)
	if _, err := m.LoginHandler().Start(ctx, login, registered); err != nil {
		t.Fatalf("login Start failed: %v", err)
	}
	if res := m.LoginHandler().Verify(ctx, codeBody(codeAt(t, secret, now)), login, registered); res.Successful {
		t.Fatal("expected replayed code to be rejected")
	}

	now = now.Add(30 * time.Second)
	res = m.LoginHandler().Verify(ctx, codeBody(codeAt(t, secret, now)), login, registered)
	if !res.Successful {
		t.Fatalf("expected next code to verify, got %+v", res)
	}

	var d Data
	if err := json.Unmarshal(res.Data, &d); err != nil {
		t.Fatalf("decode data failed: %v", err)
	}
	if d.LastCounter != now.Unix()/30 || d.Secret != secret {
		t.Fatalf("unexpected updated data %+v", d)
	}
}

func TestRegisterWithoutStartFails(t *testing.T) {
	now := time.Now()
	m := newTestMethod(t, &now)
	res := m.RegisterHandler().Register(context.Background(), codeBody("123456"), store.New("m"), method.Member{ID: "m"})
	if res.Successful || res.Message != method.MessageInvalidSession {
		t.Fatalf("expected invalid session failure, got %+v", res)
	}
}

func TestLoginRejectsCorruptData(t *testing.T) {
	now := time.Now()
	m := newTestMethod(t, &now)
	registered := &method.RegisteredMethod{Data: []byte(`{"secret":""}`)}
	res := m.LoginHandler().Verify(context.Background(), codeBody("123456"), store.New("m"), registered)
	if res.Successful || res.Message != method.MessageUnexpected {
		t.Fatalf("expected generic failure, got %+v", res)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	bad := []Config{
		{Digits: 6, Period: 30},
		{Issuer: "x", Digits: 7, Period: 30},
		{Issuer: "x", Digits: 6, Period: 0},
		{Issuer: "x", Digits: 6, Period: 30, Algorithm: "MD5"},
		{Issuer: "x", Digits: 6, Period: 30, Skew: 9},
	}
	for i, cfg := range bad {
		if _, err := New(cfg); err == nil {
			t.Fatalf("case %d: expected config to be rejected", i)
		}
	}
}
