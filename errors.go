package goMFA

import (
	"github.com/MrEthical07/goMFA/method"
	"github.com/MrEthical07/goMFA/registry"
	"github.com/MrEthical07/goMFA/store"
	"github.com/cockroachdb/errors"
)

var (
	// ErrConfiguration is returned by Build for invalid method lists or policy.
	ErrConfiguration = registry.ErrConfiguration
	// ErrInvalidMethod is returned for unknown method segments and for
	// methods already verified in the current flow.
	ErrInvalidMethod = store.ErrInvalidMethod
	// ErrEncoding is returned when the session store no longer round-trips.
	ErrEncoding = store.ErrEncoding
	// ErrInvalidSession is returned when a finish or verify step has no
	// matching flow in the host session.
	ErrInvalidSession = errors.New("invalid mfa session")
	// ErrMethodNotRegistered is returned when the member has not enrolled
	// the requested method.
	ErrMethodNotRegistered = errors.New("method not registered for member")
	// ErrMethodRequired is returned when policy forbids skipping
	// registration or removing the member's last method.
	ErrMethodRequired = errors.New("mfa method required")
	// ErrVerificationLocked is returned after too many failed verifications.
	ErrVerificationLocked = errors.New("mfa verification locked")
	ErrEngineNotReady     = errors.New("engine not initialized")
	// ErrBackendUnavailable marks failures of the records repository, the
	// host session or the limiter backend.
	ErrBackendUnavailable = errors.New("mfa backend unavailable")
	// ErrMemberNotFound is returned when a flow is started without a member.
	ErrMemberNotFound = errors.New("member not found")
)

// Client-facing messages. They are deliberately generic.
const (
	MessageNoSuchMethod   = "No such method is available"
	MessageInvalidSession = method.MessageInvalidSession
	MessageUnexpected     = method.MessageUnexpected
	MessageLocked         = "Too many attempts. Please try again later"
)

func backendError(err error, op string) error {
	return errors.Mark(errors.Wrap(err, op), ErrBackendUnavailable)
}

func unknownMethod(segment string) error {
	return errors.Wrapf(ErrInvalidMethod, "no configured method %q", segment)
}
