// Package backupcodes implements single-use recovery codes. Registration
// shows a batch of freshly generated codes once; only their hashes are kept.
// Each successful login consumes the matching code.
package backupcodes

import (
	"context"
	"encoding/json"

	"github.com/MrEthical07/goMFA/internal/codes"
	"github.com/MrEthical07/goMFA/method"
	"github.com/MrEthical07/goMFA/store"
	"github.com/cockroachdb/errors"
)

// URLSegment identifies the method in routes and records.
const URLSegment = "backup-codes"

const (
	stateHashes = "hashes"

	messageInvalidCode = "Invalid recovery code"
	messageNoCodes     = "No recovery codes remain. Please contact support"
)

// Hasher is the hashing collaborator used to store codes.
// *password.Argon2 satisfies it.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encoded string) (bool, error)
}

// Config tunes code generation.
type Config struct {
	// Count is the number of codes per batch. Defaults to 15.
	Count int
	// Length is the number of characters per code. Defaults to 9.
	Length int
	// RandomIndex overrides the random source in tests.
	RandomIndex codes.IndexFunc
}

// Data is the persisted form of a member's remaining codes.
type Data struct {
	Hashes []string `json:"codes"`
}

// Method implements method.Method.
type Method struct {
	login    *loginHandler
	register *registerHandler
}

// New returns the recovery-code method.
func New(hasher Hasher, cfg Config) (*Method, error) {
	if hasher == nil {
		return nil, errors.New("backup codes require a hasher")
	}
	if cfg.Count <= 0 {
		cfg.Count = 15
	}
	if cfg.Length <= 0 {
		cfg.Length = 9
	}
	if cfg.Length < 6 {
		return nil, errors.Newf("backup code length %d is too short", cfg.Length)
	}
	return &Method{
		login:    &loginHandler{hasher: hasher, length: cfg.Length},
		register: &registerHandler{hasher: hasher, cfg: cfg},
	}, nil
}

func (m *Method) URLSegment() string                      { return URLSegment }
func (m *Method) Name() string                            { return "Recovery codes" }
func (m *Method) Description() string                     { return "Use a single-use recovery code" }
func (m *Method) Thumbnail() string                       { return "/mfa/thumbnails/backup-codes.svg" }
func (m *Method) LoginHandler() method.VerifyHandler      { return m.login }
func (m *Method) RegisterHandler() method.RegisterHandler { return m.register }
func (m *Method) IsAvailable() bool                       { return true }
func (m *Method) UnavailableMessage() string              { return "" }

// DecodeData parses persisted method data.
func DecodeData(raw []byte) (Data, error) {
	var d Data
	if len(raw) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return Data{}, errors.Wrap(err, "decode backup code data")
	}
	return d, nil
}

func (d Data) encode() ([]byte, error) {
	if d.Hashes == nil {
		d.Hashes = []string{}
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, errors.Wrap(err, "encode backup code data")
	}
	return raw, nil
}

type registerHandler struct {
	hasher Hasher
	cfg    Config
}

// Start generates a batch and returns it formatted for display. The store
// keeps only the hashes.
func (h *registerHandler) Start(_ context.Context, s *store.Store, _ method.Member) (method.Props, error) {
	plain := make([]string, 0, h.cfg.Count)
	hashes := make([]string, 0, h.cfg.Count)
	for len(plain) < h.cfg.Count {
		code, err := codes.New(h.cfg.Length, h.cfg.RandomIndex)
		if err != nil {
			return nil, errors.Wrap(err, "generate backup code")
		}
		hash, err := h.hasher.Hash(code)
		if err != nil {
			return nil, errors.Wrap(err, "hash backup code")
		}
		plain = append(plain, codes.Format(code))
		hashes = append(hashes, hash)
	}

	s.SetState(map[string]any{stateHashes: hashes})
	return method.Props{"codes": plain}, nil
}

// Register persists the batch issued by Start. The member only confirms
// having saved the codes, so the body is not inspected.
func (h *registerHandler) Register(_ context.Context, _ method.Request, s *store.Store, _ method.Member) method.Result {
	hashes, ok := s.StateStrings(stateHashes)
	if !ok || len(hashes) == 0 {
		return method.Failure(method.MessageInvalidSession)
	}
	raw, err := Data{Hashes: hashes}.encode()
	if err != nil {
		return method.Failure(method.MessageUnexpected)
	}
	return method.Success(raw)
}

func (h *registerHandler) Name() string { return "Recovery codes" }
func (h *registerHandler) Description() string {
	return "Recovery codes let you sign in when your other methods are unavailable. Keep them somewhere safe."
}
func (h *registerHandler) SupportLink() string { return "" }
func (h *registerHandler) Component() string   { return "BackupCodeRegister" }

type loginHandler struct {
	hasher Hasher
	length int
}

func (h *loginHandler) Start(_ context.Context, s *store.Store, registered *method.RegisteredMethod) (method.Props, error) {
	s.SetState(map[string]any{})
	if registered == nil {
		return method.Props{}, nil
	}
	d, err := DecodeData(registered.Data)
	if err != nil {
		return nil, err
	}
	return method.Props{"remaining": len(d.Hashes)}, nil
}

// Verify consumes the submitted code. The returned result carries the
// remaining hashes as replacement data.
func (h *loginHandler) Verify(_ context.Context, req method.Request, _ *store.Store, registered *method.RegisteredMethod) method.Result {
	var body struct {
		Code string `json:"code"`
	}
	if err := req.Decode(&body); err != nil {
		return method.Failure(method.MessageMalformedRequest)
	}
	code := codes.Canonicalize(body.Code)
	if len(code) != h.length {
		return method.Failure(messageInvalidCode)
	}
	if registered == nil {
		return method.Failure(method.MessageInvalidSession)
	}

	d, err := DecodeData(registered.Data)
	if err != nil {
		return method.Failure(method.MessageUnexpected)
	}
	if len(d.Hashes) == 0 {
		return method.Failure(messageNoCodes)
	}

	for i, hash := range d.Hashes {
		ok, err := h.hasher.Verify(code, hash)
		if err != nil || !ok {
			continue
		}
		remaining := append(d.Hashes[:i:i], d.Hashes[i+1:]...)
		raw, err := Data{Hashes: remaining}.encode()
		if err != nil {
			return method.Failure(method.MessageUnexpected)
		}
		return method.Success(raw).WithContext("remaining", len(remaining))
	}

	return method.Failure(messageInvalidCode)
}

func (h *loginHandler) LeadInLabel() string { return "Verify with a recovery code" }
func (h *loginHandler) Component() string   { return "BackupCodeVerify" }
