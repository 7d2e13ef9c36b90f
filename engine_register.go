package goMFA

import (
	"context"
	"slices"

	"github.com/MrEthical07/goMFA/method"
	"github.com/MrEthical07/goMFA/notify"
	"github.com/MrEthical07/goMFA/records"
	"github.com/MrEthical07/goMFA/store"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StartRegistration issues a registration challenge for segment and saves
// the flow in sess.
//
// It returns ErrInvalidMethod when segment is not configured or was already
// verified in this flow, and ErrMethodRequired when the member already has
// a method that this flow has not verified. The backup method may still be
// added while the member's setup is incomplete.
func (e *Engine) StartRegistration(ctx context.Context, sess store.Session, member Member, segment string) (start RegistrationStart, err error) {
	if err := e.ready(member); err != nil {
		return RegistrationStart{}, err
	}
	ctx, span := e.startSpan(ctx, "start_registration", member.ID, segment)
	defer func() { endSpan(span, err) }()

	m, err := e.lookup(segment)
	if err != nil {
		return RegistrationStart{}, err
	}
	s, err := e.beginFlow(ctx, sess, member.ID)
	if err != nil {
		return RegistrationStart{}, err
	}
	registered, err := e.registered(ctx, member.ID)
	if err != nil {
		return RegistrationStart{}, err
	}
	if !e.mayRegister(s, segment, registered) {
		return RegistrationStart{}, errors.Wrapf(ErrMethodRequired, "verify a registered method before adding %q", segment)
	}
	if err := s.SetMethod(segment); err != nil {
		return RegistrationStart{}, err
	}

	handler := m.RegisterHandler()
	props, err := callStart(segment, func() (method.Props, error) {
		return handler.Start(ctx, s, member.handlerMember())
	})
	if err != nil {
		e.handlerFailed(ctx, segment, member.ID, err)
		return RegistrationStart{}, errors.Wrap(err, "start registration")
	}
	if err := e.saveFlow(ctx, sess, s); err != nil {
		return RegistrationStart{}, err
	}

	e.metricInc(MetricRegistrationStarted)
	return RegistrationStart{
		Method:      segment,
		Name:        handler.Name(),
		Description: handler.Description(),
		SupportLink: handler.SupportLink(),
		Component:   handler.Component(),
		Props:       props,
	}, nil
}

// CompleteRegistration checks the member's answer to the challenge issued by
// StartRegistration.
//
// A wrong answer is an unsuccessful Result with a nil error; the flow stays
// in progress so the member can retry. On success the method is stored
// and a MethodAdded notification is queued. The method is marked verified
// in the flow only when the flow had already verified the member's
// existing methods, so enrolling never stands in for answering them.
// When a backup method is configured but not yet registered, the result
// context carries it under "nextMethod".
func (e *Engine) CompleteRegistration(ctx context.Context, sess store.Session, member Member, segment string, body []byte) (res method.Result, err error) {
	if err := e.ready(member); err != nil {
		return method.Result{}, err
	}
	ctx, span := e.startSpan(ctx, "complete_registration", member.ID, segment)
	defer func() {
		span.SetAttributes(attrSuccess.Bool(res.Successful))
		endSpan(span, err)
	}()

	m, err := e.lookup(segment)
	if err != nil {
		return method.Result{}, err
	}
	s, err := e.resumeFlow(ctx, sess, member.ID, segment)
	if err != nil {
		return method.Result{}, err
	}
	registered, err := e.registered(ctx, member.ID)
	if err != nil {
		return method.Result{}, err
	}
	if !e.mayRegister(s, segment, registered) {
		return method.Result{}, errors.Wrapf(ErrMethodRequired, "verify a registered method before adding %q", segment)
	}
	verifiedFlow := len(registered) == 0 || e.fullyVerified(s, registered)

	handler := m.RegisterHandler()
	res, err = callFinish(segment, func() method.Result {
		return handler.Register(ctx, method.NewRequest(body), s, member.handlerMember())
	})
	if err != nil {
		res = e.handlerFailed(ctx, segment, member.ID, err)
	}
	if !res.Successful {
		e.metricInc(MetricRegistrationFailure)
		res.Data = nil
		return res, e.saveFlow(ctx, sess, s)
	}

	created, err := e.persistRegistration(ctx, member.ID, segment, res.Data)
	if err != nil {
		return method.Result{}, err
	}
	res.Data = nil

	if verifiedFlow {
		s.AddVerifiedMethod(segment)
	} else {
		// Enrolled before an existing factor was answered.
		_ = s.SetMethod("")
		s.SetState(nil)
	}
	if err := e.saveFlow(ctx, sess, s); err != nil {
		return method.Result{}, err
	}

	if created {
		e.emit(ctx, notify.NewMethodAddedEvent(member.handlerMember(), m, e.now()))
	}
	e.metricInc(MetricRegistrationSuccess)
	e.logger.Info("mfa method registered",
		zap.String("member", member.ID),
		zap.String("method", segment),
		zap.Bool("replaced", !created),
	)

	if next, err := e.nextRegistration(ctx, member.ID, segment); err != nil {
		return method.Result{}, err
	} else if next != "" {
		res = res.WithContext("nextMethod", next)
	}
	return res, nil
}

// mayRegister reports whether flow s may enrol segment. A member with no
// registrations may enrol anything; otherwise the flow must be fully
// verified, except for the backup method while setup is incomplete.
func (e *Engine) mayRegister(s *store.Store, segment string, registered []method.RegisteredMethod) bool {
	if len(registered) == 0 || e.fullyVerified(s, registered) {
		return true
	}
	return e.isBackup(segment) && !e.HasCompletedRegistration(registered)
}

// persistRegistration stores a new registration, or replaces the data of
// an existing one. The first non-backup method becomes the default.
func (e *Engine) persistRegistration(ctx context.Context, memberID, segment string, data []byte) (bool, error) {
	now := e.now()
	rm := &method.RegisteredMethod{
		ID:        uuid.NewString(),
		MemberID:  memberID,
		Method:    segment,
		Data:      data,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created := true
	if err := e.records.Create(ctx, rm); err != nil {
		if !errors.Is(err, records.ErrDuplicate) {
			return false, backendError(err, "create registered method")
		}
		created = false
		if err := e.records.UpdateData(ctx, memberID, segment, data); err != nil {
			return false, backendError(err, "replace registered method")
		}
	}

	if e.isBackup(segment) {
		return created, nil
	}
	current, err := e.records.DefaultMethod(ctx, memberID)
	if err != nil {
		return created, backendError(err, "read default method")
	}
	if current == "" {
		if err := e.records.SetDefaultMethod(ctx, memberID, segment); err != nil {
			return created, backendError(err, "set default method")
		}
	}
	return created, nil
}

// nextRegistration returns the backup method when the member has just
// registered a primary method but no backup yet.
func (e *Engine) nextRegistration(ctx context.Context, memberID, justRegistered string) (string, error) {
	backup := e.config.Policy.BackupMethod
	if backup == "" || justRegistered == backup {
		return "", nil
	}
	registered, err := e.registered(ctx, memberID)
	if err != nil {
		return "", err
	}
	if slices.ContainsFunc(registered, func(rm method.RegisteredMethod) bool { return rm.Method == backup }) {
		return "", nil
	}
	return backup, nil
}

// SkipRegistration ends the flow without registering a method. It returns
// ErrMethodRequired when policy does not let member skip. The host is
// responsible for remembering the choice in Member.SkippedRegistration.
func (e *Engine) SkipRegistration(ctx context.Context, sess store.Session, member Member) (err error) {
	if err := e.ready(member); err != nil {
		return err
	}
	ctx, span := e.startSpan(ctx, "skip_registration", member.ID, "")
	defer func() { endSpan(span, err) }()

	registered, err := e.registered(ctx, member.ID)
	if err != nil {
		return err
	}
	if !e.CanSkipMFA(member, registered) {
		return errors.Wrap(ErrMethodRequired, "registration cannot be skipped")
	}
	if err := e.ClearFlow(ctx, sess); err != nil {
		return err
	}
	e.metricInc(MetricRegistrationSkipped)
	return nil
}
