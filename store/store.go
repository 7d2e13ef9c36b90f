package store

import (
	"math"
	"reflect"
	"slices"

	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidMethod is returned when a flow tries to start a method that
	// it has already verified.
	ErrInvalidMethod = errors.New("method already verified in this flow")
	// ErrEncoding is returned when a store cannot be encoded or decoded
	// without loss.
	ErrEncoding = errors.New("session store cannot be encoded losslessly")
	// ErrNotFound is returned by Load when the host session holds no store.
	ErrNotFound = errors.New("session store not found")
)

// Phase is the coarse position of a store in its state machine.
type Phase uint8

const (
	// PhaseEmpty means no method is in progress and nothing is verified.
	PhaseEmpty Phase = iota
	// PhaseInProgress means a method challenge has been started.
	PhaseInProgress
	// PhaseVerified means at least one method is verified and none is in progress.
	PhaseVerified
)

func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhaseInProgress:
		return "in_progress"
	case PhaseVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// Store tracks one member's MFA flow across requests.
//
// A Store is not safe for concurrent mutation. Each request loads its own
// copy, mutates it and saves it back.
type Store struct {
	memberID string
	method   string
	state    map[string]any
	verified []string
}

// New returns an empty store bound to memberID.
func New(memberID string) *Store {
	return &Store{
		memberID: memberID,
		state:    map[string]any{},
	}
}

// MemberID returns the identity key of the member the flow belongs to.
func (s *Store) MemberID() string {
	return s.memberID
}

// SetMemberID binds the store to memberID. Binding a different member
// resets the in-progress method, the scratch state and the verified set.
// Binding the same member is a no-op.
func (s *Store) SetMemberID(memberID string) *Store {
	if memberID == s.memberID {
		return s
	}
	s.memberID = memberID
	s.reset()
	return s
}

// Method returns the URL segment of the method in progress, or "".
func (s *Store) Method() string {
	return s.method
}

// SetMethod marks segment as the method in progress. It returns
// ErrInvalidMethod when segment was already verified in this flow.
// Scratch state is left untouched; handlers replace it with SetState.
func (s *Store) SetMethod(segment string) error {
	if segment != "" && s.IsVerified(segment) {
		return errors.Wrapf(ErrInvalidMethod, "method %q", segment)
	}
	s.method = segment
	return nil
}

// State returns a deep copy of the scratch state.
func (s *Store) State() map[string]any {
	out, _ := cloneValue(s.state).(map[string]any)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

// StateValue returns a single scratch value.
func (s *Store) StateValue(key string) (any, bool) {
	v, ok := s.state[key]
	if !ok {
		return nil, false
	}
	return cloneValue(v), true
}

// StateString returns a scratch value that holds a string.
func (s *Store) StateString(key string) (string, bool) {
	v, ok := s.state[key].(string)
	return v, ok
}

// StateInt returns a scratch value that holds an integral number.
func (s *Store) StateInt(key string) (int64, bool) {
	f, ok := s.state[key].(float64)
	if !ok || math.Trunc(f) != f || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

// StateStrings returns a scratch value that holds a list of strings.
func (s *Store) StateStrings(key string) ([]string, bool) {
	list, ok := s.state[key].([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		str, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, str)
	}
	return out, true
}

// SetState replaces the scratch state.
func (s *Store) SetState(state map[string]any) *Store {
	s.state = make(map[string]any, len(state))
	for k, v := range state {
		s.state[k] = cloneValue(v)
	}
	return s
}

// AddState merges state into the scratch state, overwriting colliding keys.
func (s *Store) AddState(state map[string]any) *Store {
	if s.state == nil {
		s.state = make(map[string]any, len(state))
	}
	for k, v := range state {
		s.state[k] = cloneValue(v)
	}
	return s
}

// VerifiedMethods returns the segments verified so far, in verification order.
func (s *Store) VerifiedMethods() []string {
	return slices.Clone(s.verified)
}

// AddVerifiedMethod records segment as verified. Adding a segment twice is
// a no-op. When segment is the method in progress, the flow moves out of
// InProgress and its scratch state is dropped.
func (s *Store) AddVerifiedMethod(segment string) *Store {
	if segment == "" {
		return s
	}
	if !slices.Contains(s.verified, segment) {
		s.verified = append(s.verified, segment)
	}
	if s.method == segment {
		s.method = ""
		s.state = map[string]any{}
	}
	return s
}

// IsVerified reports whether segment was verified in this flow.
func (s *Store) IsVerified(segment string) bool {
	return slices.Contains(s.verified, segment)
}

// Phase reports the store's position in the state machine.
func (s *Store) Phase() Phase {
	switch {
	case s.method != "":
		return PhaseInProgress
	case len(s.verified) > 0:
		return PhaseVerified
	default:
		return PhaseEmpty
	}
}

func (s *Store) reset() {
	s.method = ""
	s.state = map[string]any{}
	s.verified = nil
}

// maxExactInt is the largest integer magnitude a float64 holds exactly.
const maxExactInt = 1 << 53

// cloneValue deep-copies v and normalizes it onto the JSON value domain.
// Values that have no exact JSON form ([]byte, structs, channels, integers
// beyond 2^53) are kept as-is so that encoding rejects them with
// ErrEncoding.
func cloneValue(v any) any {
	switch t := v.(type) {
	case nil, bool, string, float64:
		return t
	case []byte:
		return slices.Clone(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = cloneValue(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n := rv.Int(); n >= -maxExactInt && n <= maxExactInt {
			return float64(n)
		}
		return v
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n := rv.Uint(); n <= maxExactInt {
			return float64(n)
		}
		return v
	case reflect.Float32:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = cloneValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = cloneValue(iter.Value().Interface())
		}
		return out
	default:
		return v
	}
}
