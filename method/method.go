package method

import (
	"context"
	"regexp"
	"time"

	"github.com/MrEthical07/goMFA/store"
	"github.com/cockroachdb/errors"
)

// ErrInvalidSegment is returned by ValidateSegment.
var ErrInvalidSegment = errors.New("invalid method url segment")

var segmentPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Props are values returned to the client when a challenge starts. They
// must never contain the expected answer.
type Props map[string]any

// Member is the subject of an MFA flow, as seen by method handlers.
type Member struct {
	ID    string
	Email string
	Name  string
}

// RegisteredMethod is one factor a member has enrolled.
type RegisteredMethod struct {
	ID        string
	MemberID  string
	Method    string
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Method is a pluggable second factor.
type Method interface {
	// URLSegment is the stable identifier used in routes and persistence.
	URLSegment() string
	Name() string
	Description() string
	Thumbnail() string
	LoginHandler() VerifyHandler
	RegisterHandler() RegisterHandler
	// IsAvailable reports whether the method can be used by the current
	// client. It is relayed to the frontend through the schema.
	IsAvailable() bool
	UnavailableMessage() string
}

// VerifyHandler drives the login side of a method.
type VerifyHandler interface {
	// Start issues a challenge. It records whatever it needs to check the
	// answer in s and returns props that are safe to send to the client.
	Start(ctx context.Context, s *store.Store, registered *RegisteredMethod) (Props, error)
	// Verify checks req against the challenge kept in s.
	Verify(ctx context.Context, req Request, s *store.Store, registered *RegisteredMethod) Result
	LeadInLabel() string
	Component() string
}

// RegisterHandler drives the enrolment side of a method.
type RegisterHandler interface {
	Start(ctx context.Context, s *store.Store, member Member) (Props, error)
	// Register completes enrolment. On success Result.Data holds the
	// method data to persist.
	Register(ctx context.Context, req Request, s *store.Store, member Member) Result
	Name() string
	Description() string
	SupportLink() string
	Component() string
}

// ValidateSegment checks that segment is lower-case, URL-safe and non-empty.
func ValidateSegment(segment string) error {
	if !segmentPattern.MatchString(segment) {
		return errors.Wrapf(ErrInvalidSegment, "%q", segment)
	}
	return nil
}
