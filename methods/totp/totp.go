// Package totp implements RFC 6238 time-based one-time passwords as an MFA
// method. Registration shares a new secret with the member's authenticator
// app and confirms it with a first code; each later login accepts a code
// only once.
package totp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MrEthical07/goMFA/method"
	"github.com/MrEthical07/goMFA/store"
	"github.com/cockroachdb/errors"
)

// URLSegment identifies the method in routes and records.
const URLSegment = "totp"

const (
	stateSecret = "secret"

	messageInvalidCode = "Invalid authentication code"
)

// Config holds the code parameters shared with authenticator apps.
type Config struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	// Skew is the number of periods accepted either side of now.
	Skew int
	// Now overrides the clock in tests.
	Now func() time.Time
}

// DefaultConfig returns the parameters every common authenticator supports.
func DefaultConfig() Config {
	return Config{
		Issuer:    "goMFA",
		Digits:    6,
		Period:    30,
		Algorithm: "SHA1",
		Skew:      1,
	}
}

// Data is the persisted form of an enrolled authenticator.
type Data struct {
	Secret string `json:"secret"`
	// LastCounter is the last accepted time step; it blocks replays.
	LastCounter int64 `json:"lastCounter"`
}

// Method implements method.Method.
type Method struct {
	gen      generator
	login    *loginHandler
	register *registerHandler
}

// New validates cfg and returns the TOTP method.
func New(cfg Config) (*Method, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("totp issuer is required")
	}
	if cfg.Digits != 6 && cfg.Digits != 8 {
		return nil, errors.Newf("totp digits must be 6 or 8, got %d", cfg.Digits)
	}
	if cfg.Period <= 0 {
		return nil, errors.New("totp period must be > 0")
	}
	if cfg.Skew < 0 || cfg.Skew > 3 {
		return nil, errors.New("totp skew must be in 0..3")
	}
	if _, err := hmacFunc(cfg.Algorithm); err != nil {
		return nil, err
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	gen := generator{config: cfg}
	return &Method{
		gen:      gen,
		login:    &loginHandler{gen: gen},
		register: &registerHandler{gen: gen},
	}, nil
}

func (m *Method) URLSegment() string                      { return URLSegment }
func (m *Method) Name() string                            { return "Authenticator app" }
func (m *Method) Description() string                     { return "Use a code from your authenticator app" }
func (m *Method) Thumbnail() string                       { return "/mfa/thumbnails/totp.svg" }
func (m *Method) LoginHandler() method.VerifyHandler      { return m.login }
func (m *Method) RegisterHandler() method.RegisterHandler { return m.register }
func (m *Method) IsAvailable() bool                       { return true }
func (m *Method) UnavailableMessage() string              { return "" }

func decodeData(raw []byte) (Data, error) {
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return Data{}, errors.Wrap(err, "decode totp data")
	}
	if d.Secret == "" {
		return Data{}, errors.New("totp data has no secret")
	}
	return d, nil
}

func readCode(req method.Request) (string, bool) {
	var body struct {
		Code string `json:"code"`
	}
	if err := req.Decode(&body); err != nil {
		return "", false
	}
	return body.Code, true
}

type registerHandler struct {
	gen generator
}

// Start issues a secret. The secret is part of the props because the
// member has to load it into an authenticator app.
func (h *registerHandler) Start(_ context.Context, s *store.Store, member method.Member) (method.Props, error) {
	secret, err := h.gen.newSecret()
	if err != nil {
		return nil, err
	}
	account := member.Email
	if account == "" {
		account = member.ID
	}

	s.SetState(map[string]any{stateSecret: secret})
	return method.Props{
		"secret": secret,
		"uri":    h.gen.provisionURI(secret, account),
		"digits": h.gen.config.Digits,
		"period": h.gen.config.Period,
	}, nil
}

func (h *registerHandler) Register(_ context.Context, req method.Request, s *store.Store, _ method.Member) method.Result {
	secretBase32, ok := s.StateString(stateSecret)
	if !ok {
		return method.Failure(method.MessageInvalidSession)
	}
	code, ok := readCode(req)
	if !ok {
		return method.Failure(method.MessageMalformedRequest)
	}
	secret, err := decodeSecret(secretBase32)
	if err != nil {
		return method.Failure(method.MessageInvalidSession)
	}

	valid, counter, err := h.gen.verify(secret, code, h.gen.config.Now(), -1)
	if err != nil {
		return method.Failure(method.MessageUnexpected)
	}
	if !valid {
		return method.Failure(messageInvalidCode)
	}

	raw, err := json.Marshal(Data{Secret: secretBase32, LastCounter: counter})
	if err != nil {
		return method.Failure(method.MessageUnexpected)
	}
	return method.Success(raw)
}

func (h *registerHandler) Name() string { return "Authenticator app" }
func (h *registerHandler) Description() string {
	return "Scan the code with an authenticator app, then enter the code it shows."
}
func (h *registerHandler) SupportLink() string { return "https://datatracker.ietf.org/doc/html/rfc6238" }
func (h *registerHandler) Component() string   { return "TOTPRegister" }

type loginHandler struct {
	gen generator
}

func (h *loginHandler) Start(_ context.Context, s *store.Store, _ *method.RegisteredMethod) (method.Props, error) {
	s.SetState(map[string]any{})
	return method.Props{"digits": h.gen.config.Digits}, nil
}

// Verify accepts a code once. On success the result carries the data with
// the advanced counter.
func (h *loginHandler) Verify(_ context.Context, req method.Request, _ *store.Store, registered *method.RegisteredMethod) method.Result {
	code, ok := readCode(req)
	if !ok {
		return method.Failure(method.MessageMalformedRequest)
	}
	if registered == nil {
		return method.Failure(method.MessageInvalidSession)
	}
	d, err := decodeData(registered.Data)
	if err != nil {
		return method.Failure(method.MessageUnexpected)
	}
	secret, err := decodeSecret(d.Secret)
	if err != nil {
		return method.Failure(method.MessageUnexpected)
	}

	valid, counter, err := h.gen.verify(secret, code, h.gen.config.Now(), d.LastCounter)
	if err != nil {
		return method.Failure(method.MessageUnexpected)
	}
	if !valid {
		return method.Failure(messageInvalidCode)
	}

	d.LastCounter = counter
	raw, err := json.Marshal(d)
	if err != nil {
		return method.Failure(method.MessageUnexpected)
	}
	return method.Success(raw)
}

func (h *loginHandler) LeadInLabel() string { return "Verify with authenticator app" }
func (h *loginHandler) Component() string   { return "TOTPVerify" }
