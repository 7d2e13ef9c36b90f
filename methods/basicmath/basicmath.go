// Package basicmath is a demonstration second factor: the member is shown a
// few small numbers and answers with their sum. It offers no security and
// exists to exercise the method contract end to end.
package basicmath

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/MrEthical07/goMFA/internal/codes"
	"github.com/MrEthical07/goMFA/method"
	"github.com/MrEthical07/goMFA/store"
	"github.com/cockroachdb/errors"
)

// URLSegment identifies the method in routes and records.
const URLSegment = "basic-math"

const (
	stateExpected = "expected"

	messageIncorrect = "Your answer was incorrect"
	messageMissing   = "Please enter your answer"
)

// Config tunes the challenge.
type Config struct {
	// Count is how many numbers are summed. Defaults to 3.
	Count int
	// Max is the exclusive upper bound of each number. Defaults to 10.
	Max int
	// RandomIndex overrides the random source in tests.
	RandomIndex codes.IndexFunc
}

// Method implements method.Method.
type Method struct {
	cfg      Config
	login    *loginHandler
	register *registerHandler
}

// New returns the basic math method.
func New(cfg Config) *Method {
	if cfg.Count <= 0 {
		cfg.Count = 3
	}
	if cfg.Max <= 1 {
		cfg.Max = 10
	}
	if cfg.RandomIndex == nil {
		cfg.RandomIndex = codes.RandomIndex
	}
	ch := challenger{cfg: cfg}
	return &Method{
		cfg:      cfg,
		login:    &loginHandler{challenger: ch},
		register: &registerHandler{challenger: ch},
	}
}

func (m *Method) URLSegment() string                      { return URLSegment }
func (m *Method) Name() string                            { return "Math problem" }
func (m *Method) Description() string                     { return "Answer a simple sum" }
func (m *Method) Thumbnail() string                       { return "/mfa/thumbnails/basic-math.svg" }
func (m *Method) LoginHandler() method.VerifyHandler      { return m.login }
func (m *Method) RegisterHandler() method.RegisterHandler { return m.register }
func (m *Method) IsAvailable() bool                       { return true }
func (m *Method) UnavailableMessage() string              { return "" }

type challenger struct {
	cfg Config
}

func (c challenger) start(s *store.Store) (method.Props, error) {
	numbers := make([]int, c.cfg.Count)
	sum := 0
	for i := range numbers {
		n, err := c.cfg.RandomIndex(c.cfg.Max)
		if err != nil {
			return nil, errors.Wrap(err, "generate math challenge")
		}
		numbers[i] = n + 1
		sum += numbers[i]
	}
	s.SetState(map[string]any{stateExpected: sum})
	return method.Props{"numbers": numbers}, nil
}

func (c challenger) check(req method.Request, s *store.Store) method.Result {
	expected, ok := s.StateInt(stateExpected)
	if !ok {
		return method.Failure(method.MessageInvalidSession)
	}

	var body struct {
		Number json.RawMessage `json:"number"`
	}
	if err := req.Decode(&body); err != nil {
		return method.Failure(method.MessageMalformedRequest)
	}
	answer, ok := parseAnswer(body.Number)
	if !ok {
		return method.Failure(messageMissing)
	}
	if answer != expected {
		return method.Failure(messageIncorrect)
	}
	return method.Success(nil)
}

// parseAnswer accepts the sum as a JSON string or number.
func parseAnswer(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		text = string(raw)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

type loginHandler struct {
	challenger
}

func (h *loginHandler) Start(_ context.Context, s *store.Store, _ *method.RegisteredMethod) (method.Props, error) {
	return h.start(s)
}

func (h *loginHandler) Verify(_ context.Context, req method.Request, s *store.Store, _ *method.RegisteredMethod) method.Result {
	return h.check(req, s)
}

func (h *loginHandler) LeadInLabel() string { return "Verify with a math problem" }
func (h *loginHandler) Component() string   { return "BasicMathLogin" }

type registerHandler struct {
	challenger
}

func (h *registerHandler) Start(_ context.Context, s *store.Store, _ method.Member) (method.Props, error) {
	return h.start(s)
}

// Register has no method data to keep; the record itself is the enrolment.
func (h *registerHandler) Register(_ context.Context, req method.Request, s *store.Store, _ method.Member) method.Result {
	return h.check(req, s)
}

func (h *registerHandler) Name() string        { return "Math problem" }
func (h *registerHandler) Description() string { return "Prove you can add a few small numbers." }
func (h *registerHandler) SupportLink() string { return "" }
func (h *registerHandler) Component() string   { return "BasicMathRegister" }
