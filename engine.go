package goMFA

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/goMFA/internal/limiters"
	"github.com/MrEthical07/goMFA/method"
	"github.com/MrEthical07/goMFA/notify"
	"github.com/MrEthical07/goMFA/records"
	"github.com/MrEthical07/goMFA/registry"
	"github.com/MrEthical07/goMFA/store"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Engine runs MFA registration and login flows.
//
// Engine instances are immutable after Build and safe for concurrent use.
type Engine struct {
	config   Config
	registry *registry.Registry
	records  records.Repository
	limiter  *limiters.VerificationLimiter
	notifier *notify.Dispatcher
	metrics  *Metrics
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// Close drains queued notifications.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.notifier.Close()
}

// Registry returns the configured methods.
func (e *Engine) Registry() *registry.Registry {
	if e == nil {
		return nil
	}
	return e.registry
}

// Config returns a copy of the engine's config.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// NotificationsDropped returns the number of events discarded by a full
// notification buffer.
func (e *Engine) NotificationsDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.notifier.Dropped()
}

// MetricsSnapshot returns the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// ClearFlow removes the flow store from sess. It is used when a flow is
// aborted and on logout.
func (e *Engine) ClearFlow(ctx context.Context, sess store.Session) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if err := store.Clear(ctx, sess, e.config.Session.Key); err != nil {
		return backendError(err, "clear mfa flow")
	}
	return nil
}

func (e *Engine) ready(member Member) error {
	if e == nil || e.registry == nil {
		return ErrEngineNotReady
	}
	if member.ID == "" {
		return ErrMemberNotFound
	}
	return nil
}

func (e *Engine) lookup(segment string) (method.Method, error) {
	m, ok := e.registry.ByURLSegment(segment)
	if !ok {
		return nil, unknownMethod(segment)
	}
	return m, nil
}

// beginFlow loads the visitor's store for a start step. A missing store
// starts a new flow. A store that no longer decodes is discarded, and a
// store of another member is reset by SetMemberID.
func (e *Engine) beginFlow(ctx context.Context, sess store.Session, memberID string) (*store.Store, error) {
	s, err := store.Load(ctx, sess, e.config.Session.Key)
	switch {
	case err == nil:
		return s.SetMemberID(memberID), nil
	case errors.Is(err, store.ErrNotFound):
		return store.New(memberID), nil
	case errors.Is(err, store.ErrEncoding):
		e.metricInc(MetricEncodingFailure)
		e.logger.Warn("discarding undecodable mfa store",
			zap.String("member", memberID),
			zap.Error(err),
		)
		return store.New(memberID), nil
	default:
		return nil, backendError(err, "load mfa flow")
	}
}

// resumeFlow loads the store a finish step continues. It fails with
// ErrInvalidSession unless the store belongs to memberID and has segment in
// progress.
func (e *Engine) resumeFlow(ctx context.Context, sess store.Session, memberID, segment string) (*store.Store, error) {
	s, err := store.Load(ctx, sess, e.config.Session.Key)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		e.metricInc(MetricInvalidSession)
		return nil, errors.Wrap(ErrInvalidSession, "no mfa flow in session")
	case errors.Is(err, store.ErrEncoding):
		e.metricInc(MetricEncodingFailure)
		e.logger.Warn("mfa store failed to round-trip",
			zap.String("member", memberID),
			zap.String("method", segment),
			zap.Error(err),
		)
		if clearErr := store.Clear(ctx, sess, e.config.Session.Key); clearErr != nil {
			e.logger.Warn("clearing undecodable mfa store failed", zap.Error(clearErr))
		}
		return nil, err
	default:
		return nil, backendError(err, "load mfa flow")
	}

	if s.MemberID() != memberID || s.Method() != segment {
		e.metricInc(MetricInvalidSession)
		return nil, errors.Wrapf(ErrInvalidSession, "flow is not waiting on %q for this member", segment)
	}
	return s, nil
}

func (e *Engine) saveFlow(ctx context.Context, sess store.Session, s *store.Store) error {
	if err := s.Save(ctx, sess, e.config.Session.Key); err != nil {
		if errors.Is(err, store.ErrEncoding) {
			e.metricInc(MetricEncodingFailure)
			e.logger.Warn("mfa store cannot be encoded",
				zap.String("member", s.MemberID()),
				zap.String("method", s.Method()),
				zap.Error(err),
			)
			return err
		}
		return backendError(err, "save mfa flow")
	}
	return nil
}

// registered returns the member's records whose method is still configured.
func (e *Engine) registered(ctx context.Context, memberID string) ([]method.RegisteredMethod, error) {
	list, err := e.records.List(ctx, memberID)
	if err != nil {
		return nil, backendError(err, "list registered methods")
	}
	out := list[:0]
	for _, rm := range list {
		if _, ok := e.registry.ByURLSegment(rm.Method); ok {
			out = append(out, rm)
		}
	}
	return out, nil
}

// requiredFactors is the number of verified methods that completes a
// login for a member with the given registrations.
func (e *Engine) requiredFactors(registered []method.RegisteredMethod) int {
	return min(e.config.Policy.RequiredFactors, max(len(registered), 1))
}

func (e *Engine) fullyVerified(s *store.Store, registered []method.RegisteredMethod) bool {
	verified := 0
	for _, rm := range registered {
		if s.IsVerified(rm.Method) {
			verified++
		}
	}
	return len(registered) > 0 && verified >= e.requiredFactors(registered)
}

// IsFullyVerified reports whether the visitor's flow has verified every
// required factor for member.
func (e *Engine) IsFullyVerified(ctx context.Context, sess store.Session, member Member) (bool, error) {
	if err := e.ready(member); err != nil {
		return false, err
	}
	s, err := store.Load(ctx, sess, e.config.Session.Key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrEncoding) {
			return false, nil
		}
		return false, backendError(err, "load mfa flow")
	}
	if s.MemberID() != member.ID {
		return false, nil
	}
	registered, err := e.registered(ctx, member.ID)
	if err != nil {
		return false, err
	}
	return e.fullyVerified(s, registered), nil
}

func (e *Engine) isBackup(segment string) bool {
	return e.config.Policy.BackupMethod != "" && segment == e.config.Policy.BackupMethod
}

// handlerFailed logs a suppressed handler error and returns the generic
// failure the client sees.
func (e *Engine) handlerFailed(ctx context.Context, segment, memberID string, err error) method.Result {
	e.metricInc(MetricHandlerError)
	e.logger.Warn("mfa handler failed",
		zap.String("method", segment),
		zap.String("member", memberID),
		zap.String("ip", clientIPFromContext(ctx)),
		zap.Error(err),
	)
	return method.Failure(MessageUnexpected)
}

func recoverHandler(segment string, err *error) {
	if r := recover(); r != nil {
		*err = errors.Newf("%s handler panicked: %s", segment, fmt.Sprint(r))
	}
}

func callStart(segment string, fn func() (method.Props, error)) (props method.Props, err error) {
	defer recoverHandler(segment, &err)
	return fn()
}

func callFinish(segment string, fn func() method.Result) (res method.Result, err error) {
	defer recoverHandler(segment, &err)
	return fn(), nil
}
