package goMFA

import (
	"context"
	"time"

	"github.com/MrEthical07/goMFA/internal/limiters"
	"github.com/MrEthical07/goMFA/method"
	"github.com/MrEthical07/goMFA/records"
	"github.com/MrEthical07/goMFA/store"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// StartLogin issues a verification challenge for segment and saves the flow
// in sess.
//
// It returns ErrInvalidMethod when segment is not configured or already
// verified in this flow, ErrMethodNotRegistered when member has not
// enrolled it and ErrVerificationLocked while member is locked out.
func (e *Engine) StartLogin(ctx context.Context, sess store.Session, member Member, segment string) (start LoginStart, err error) {
	if err := e.ready(member); err != nil {
		return LoginStart{}, err
	}
	ctx, span := e.startSpan(ctx, "start_login", member.ID, segment)
	defer func() { endSpan(span, err) }()

	m, err := e.lookup(segment)
	if err != nil {
		return LoginStart{}, err
	}
	if err := e.checkLock(ctx, member.ID); err != nil {
		return LoginStart{}, err
	}
	rm, err := e.registeredMethod(ctx, member.ID, segment)
	if err != nil {
		return LoginStart{}, err
	}
	s, err := e.beginFlow(ctx, sess, member.ID)
	if err != nil {
		return LoginStart{}, err
	}
	if err := s.SetMethod(segment); err != nil {
		return LoginStart{}, err
	}

	handler := m.LoginHandler()
	props, err := callStart(segment, func() (method.Props, error) {
		return handler.Start(ctx, s, rm)
	})
	if err != nil {
		e.handlerFailed(ctx, segment, member.ID, err)
		return LoginStart{}, errors.Wrap(err, "start login")
	}
	if err := e.saveFlow(ctx, sess, s); err != nil {
		return LoginStart{}, err
	}

	e.metricInc(MetricLoginStarted)
	return LoginStart{
		Method:      segment,
		LeadInLabel: handler.LeadInLabel(),
		Component:   handler.Component(),
		Props:       props,
	}, nil
}

// CompleteLogin checks the member's answer to the challenge issued by
// StartLogin.
//
// A wrong answer is an unsuccessful Result with a nil error and counts
// towards the lockout. On success the method is marked verified; when more
// factors are required the result context names the next one under
// "nextMethod". The flow store is kept after full verification so the host
// can confirm it with IsFullyVerified before calling ClearFlow.
func (e *Engine) CompleteLogin(ctx context.Context, sess store.Session, member Member, segment string, body []byte) (out LoginOutcome, err error) {
	if err := e.ready(member); err != nil {
		return LoginOutcome{}, err
	}
	started := time.Now()
	ctx, span := e.startSpan(ctx, "complete_login", member.ID, segment)
	defer func() {
		span.SetAttributes(attrSuccess.Bool(out.Result.Successful))
		endSpan(span, err)
		e.metrics.Observe(MetricVerifyLatency, time.Since(started))
	}()

	m, err := e.lookup(segment)
	if err != nil {
		return LoginOutcome{}, err
	}
	if err := e.checkLock(ctx, member.ID); err != nil {
		return LoginOutcome{}, err
	}
	s, err := e.resumeFlow(ctx, sess, member.ID, segment)
	if err != nil {
		return LoginOutcome{}, err
	}
	rm, err := e.registeredMethod(ctx, member.ID, segment)
	if err != nil {
		return LoginOutcome{}, err
	}

	res, err := callFinish(segment, func() method.Result {
		return m.LoginHandler().Verify(ctx, method.NewRequest(body), s, rm)
	})
	if err != nil {
		res = e.handlerFailed(ctx, segment, member.ID, err)
	}
	if !res.Successful {
		res.Data = nil
		return LoginOutcome{Result: res}, e.recordFailure(ctx, sess, s, member.ID, segment)
	}

	if res.Data != nil {
		err := e.records.SwapData(ctx, member.ID, segment, rm.Data, res.Data)
		if errors.Is(err, records.ErrConflict) {
			// The record was consumed by a concurrent verification.
			res = method.Failure(method.MessageInvalidSession)
			return LoginOutcome{Result: res}, e.recordFailure(ctx, sess, s, member.ID, segment)
		}
		if err != nil {
			return LoginOutcome{}, backendError(err, "update registered method")
		}
		res.Data = nil
	}
	if err := e.limiter.Reset(ctx, member.ID); err != nil {
		e.logger.Warn("resetting verification counter failed", zap.String("member", member.ID), zap.Error(err))
	}

	s.AddVerifiedMethod(segment)
	if err := e.saveFlow(ctx, sess, s); err != nil {
		return LoginOutcome{}, err
	}
	e.metricInc(MetricLoginSuccess)

	registered, err := e.registered(ctx, member.ID)
	if err != nil {
		return LoginOutcome{}, err
	}
	if e.fullyVerified(s, registered) {
		e.metricInc(MetricLoginFullyVerified)
		return LoginOutcome{Result: res, FullyVerified: true}, nil
	}
	if next := e.nextFactor(ctx, member.ID, s, registered); next != "" {
		res = res.WithContext("nextMethod", next)
	}
	return LoginOutcome{Result: res}, nil
}

func (e *Engine) registeredMethod(ctx context.Context, memberID, segment string) (*method.RegisteredMethod, error) {
	rm, err := e.records.Get(ctx, memberID, segment)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return nil, errors.Wrapf(ErrMethodNotRegistered, "method %q", segment)
		}
		return nil, backendError(err, "get registered method")
	}
	return rm, nil
}

func (e *Engine) checkLock(ctx context.Context, memberID string) error {
	if err := e.limiter.Check(ctx, memberID); err != nil {
		if errors.Is(err, limiters.ErrVerificationRateLimited) {
			e.metricInc(MetricVerificationLocked)
			return errors.Mark(err, ErrVerificationLocked)
		}
		return backendError(err, "check verification lock")
	}
	return nil
}

// recordFailure saves the flow for a retry and counts the failure. The
// failure that reaches the threshold is still reported as a wrong answer;
// the lock applies from the next request.
func (e *Engine) recordFailure(ctx context.Context, sess store.Session, s *store.Store, memberID, segment string) error {
	e.metricInc(MetricLoginFailure)
	if err := e.limiter.RecordFailure(ctx, memberID); err != nil {
		if !errors.Is(err, limiters.ErrVerificationRateLimited) {
			return backendError(err, "record verification failure")
		}
		e.logger.Warn("mfa verification locked",
			zap.String("member", memberID),
			zap.String("method", segment),
			zap.String("ip", clientIPFromContext(ctx)),
		)
	}
	return e.saveFlow(ctx, sess, s)
}

// nextFactor picks the method to verify next: the member's default when it
// is still unverified, otherwise the first unverified registration.
func (e *Engine) nextFactor(ctx context.Context, memberID string, s *store.Store, registered []method.RegisteredMethod) string {
	pending := make([]method.RegisteredMethod, 0, len(registered))
	for _, rm := range registered {
		if !s.IsVerified(rm.Method) {
			pending = append(pending, rm)
		}
	}
	preferred, err := e.records.DefaultMethod(ctx, memberID)
	if err != nil {
		e.logger.Warn("reading default method failed", zap.String("member", memberID), zap.Error(err))
	}
	if m, ok := e.registry.Default(preferred, pending); ok {
		return m.URLSegment()
	}
	return ""
}
