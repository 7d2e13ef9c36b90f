package registry

import (
	"context"
	"strings"
	"testing"

	"github.com/MrEthical07/goMFA/method"
	"github.com/MrEthical07/goMFA/store"
	"github.com/cockroachdb/errors"
)

type stubLogin struct{}

func (stubLogin) Start(context.Context, *store.Store, *method.RegisteredMethod) (method.Props, error) {
	return method.Props{}, nil
}
func (stubLogin) Verify(context.Context, method.Request, *store.Store, *method.RegisteredMethod) method.Result {
	return method.Success(nil)
}
func (stubLogin) LeadInLabel() string { return "" }
func (stubLogin) Component() string   { return "" }

type stubRegister struct{}

func (stubRegister) Start(context.Context, *store.Store, method.Member) (method.Props, error) {
	return method.Props{}, nil
}
func (stubRegister) Register(context.Context, method.Request, *store.Store, method.Member) method.Result {
	return method.Success(nil)
}
func (stubRegister) Name() string        { return "" }
func (stubRegister) Description() string { return "" }
func (stubRegister) SupportLink() string { return "" }
func (stubRegister) Component() string   { return "" }

type base struct {
	segment  string
	noLogin  bool
	noRegist bool
}

func (b base) URLSegment() string         { return b.segment }
func (b base) Name() string               { return b.segment }
func (b base) Description() string        { return "" }
func (b base) Thumbnail() string          { return "" }
func (b base) IsAvailable() bool          { return true }
func (b base) UnavailableMessage() string { return "" }
func (b base) LoginHandler() method.VerifyHandler {
	if b.noLogin {
		return nil
	}
	return stubLogin{}
}
func (b base) RegisterHandler() method.RegisterHandler {
	if b.noRegist {
		return nil
	}
	return stubRegister{}
}

type alphaMethod struct{ base }
type betaMethod struct{ base }

func alpha(segment string) *alphaMethod { return &alphaMethod{base{segment: segment}} }
func beta(segment string) *betaMethod   { return &betaMethod{base{segment: segment}} }

func TestNewKeepsConfigurationOrder(t *testing.T) {
	r, err := New(alpha("totp"), beta("basic-math"), alpha("backup-codes"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	got := strings.Join(r.Segments(), ",")
	if got != "totp,basic-math,backup-codes" {
		t.Fatalf("unexpected order %q", got)
	}
	if r.Len() != 3 || len(r.All()) != 3 {
		t.Fatalf("expected 3 methods, got %d", r.Len())
	}
}

func TestNewDeduplicatesSameType(t *testing.T) {
	r, err := New(alpha("basic-math"), beta("totp"), alpha("basic-math"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("expected duplicate to be dropped, got %v", r.Segments())
	}
}

func TestNewRejectsDifferentTypesOnSameSegment(t *testing.T) {
	_, err := New(alpha("basic-math"), beta("basic-math"))
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if len(errors.GetAllHints(err)) == 0 {
		t.Fatal("expected configuration error to carry a hint")
	}
}

func TestNewRejectsBrokenMethods(t *testing.T) {
	var nilMethod *alphaMethod
	cases := []method.Method{
		nil,
		nilMethod,
		alpha(""),
		alpha("Not Safe"),
		&alphaMethod{base{segment: "x", noLogin: true}},
		&alphaMethod{base{segment: "x", noRegist: true}},
	}

	for i, m := range cases {
		if _, err := New(m); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("case %d: expected ErrConfiguration, got %v", i, err)
		}
	}
}

func TestByURLSegment(t *testing.T) {
	r, err := New(alpha("basic-math"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if m, ok := r.ByURLSegment("basic-math"); !ok || m.URLSegment() != "basic-math" {
		t.Fatalf("expected basic-math, got %v %v", m, ok)
	}
	if m, ok := r.ByURLSegment("does-not-exist"); ok || m != nil {
		t.Fatalf("expected not found, got %v", m)
	}
}

func TestFromNames(t *testing.T) {
	built := 0
	catalogue := Catalogue{
		"basic-math": func() (method.Method, error) {
			built++
			return alpha("basic-math"), nil
		},
		"totp": func() (method.Method, error) { return beta("totp"), nil },
		"broken": func() (method.Method, error) {
			return nil, errors.New("missing issuer")
		},
	}

	r, err := FromNames([]string{"basic-math", "totp", "basic-math"}, catalogue)
	if err != nil {
		t.Fatalf("FromNames failed: %v", err)
	}
	if r.Len() != 2 || built != 1 {
		t.Fatalf("expected repeated name to be built once, len=%d built=%d", r.Len(), built)
	}

	if _, err := FromNames([]string{"unknown"}, catalogue); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for unknown name, got %v", err)
	}
	if _, err := FromNames([]string{"broken"}, catalogue); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for failing constructor, got %v", err)
	}
}

func TestDefault(t *testing.T) {
	r, err := New(alpha("totp"), beta("basic-math"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	registered := []method.RegisteredMethod{
		{Method: "retired"},
		{Method: "basic-math"},
		{Method: "totp"},
	}

	if m, ok := r.Default("totp", registered); !ok || m.URLSegment() != "totp" {
		t.Fatalf("expected preferred totp, got %v", m)
	}
	if m, ok := r.Default("", registered); !ok || m.URLSegment() != "totp" {
		t.Fatalf("expected first registered method in registry order, got %v", m)
	}
	if m, ok := r.Default("retired", registered); !ok || m.URLSegment() != "totp" {
		t.Fatalf("expected fallback when preferred is unconfigured, got %v", m)
	}
	if m, ok := r.Default("", registered[:2]); !ok || m.URLSegment() != "basic-math" {
		t.Fatalf("expected the only configured registration, got %v", m)
	}
	if m, ok := r.Default("totp", registered[:1]); ok {
		t.Fatalf("expected no default, got %v", m)
	}
}
