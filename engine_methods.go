package goMFA

import (
	"context"
	"slices"

	"github.com/MrEthical07/goMFA/method"
	"github.com/MrEthical07/goMFA/notify"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// RegisteredMethods returns member's registrations of configured methods,
// oldest first.
func (e *Engine) RegisteredMethods(ctx context.Context, member Member) ([]method.RegisteredMethod, error) {
	if err := e.ready(member); err != nil {
		return nil, err
	}
	return e.registered(ctx, member.ID)
}

// RemoveMethod deletes member's registration of segment.
//
// Removing the last primary method also removes the backup method, and is
// refused with ErrMethodRequired while MFA is required. The backup method
// itself cannot be removed while a primary method remains. A new default is
// chosen when the default method is removed.
func (e *Engine) RemoveMethod(ctx context.Context, member Member, segment string) (err error) {
	if err := e.ready(member); err != nil {
		return err
	}
	ctx, span := e.startSpan(ctx, "remove_method", member.ID, segment)
	defer func() { endSpan(span, err) }()

	m, err := e.lookup(segment)
	if err != nil {
		return err
	}
	registered, err := e.registered(ctx, member.ID)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(registered, func(rm method.RegisteredMethod) bool { return rm.Method == segment }) {
		return errors.Wrapf(ErrMethodNotRegistered, "method %q", segment)
	}

	var primaries []string
	backupRegistered := false
	for _, rm := range registered {
		switch {
		case e.isBackup(rm.Method):
			backupRegistered = true
		case rm.Method != segment:
			primaries = append(primaries, rm.Method)
		}
	}
	if e.isBackup(segment) && len(primaries) > 0 {
		return errors.Wrap(ErrMethodRequired, "backup method is required while other methods are registered")
	}
	if len(primaries) == 0 && e.IsMFARequired(e.now()) {
		return errors.Wrap(ErrMethodRequired, "cannot remove the last method")
	}

	if err := e.records.Delete(ctx, member.ID, segment); err != nil {
		return backendError(err, "delete registered method")
	}
	removedBackup := false
	if len(primaries) == 0 && backupRegistered && !e.isBackup(segment) {
		if err := e.records.Delete(ctx, member.ID, e.config.Policy.BackupMethod); err != nil {
			return backendError(err, "delete backup method")
		}
		removedBackup = true
	}

	current, err := e.records.DefaultMethod(ctx, member.ID)
	if err != nil {
		return backendError(err, "read default method")
	}
	if current == "" && len(primaries) > 0 {
		if err := e.records.SetDefaultMethod(ctx, member.ID, primaries[0]); err != nil {
			return backendError(err, "set default method")
		}
	}

	e.metricInc(MetricMethodRemoved)
	e.logger.Info("mfa method removed",
		zap.String("member", member.ID),
		zap.String("method", segment),
		zap.Bool("backup_removed", removedBackup),
	)
	e.emit(ctx, notify.NewMethodRemovedEvent(member.handlerMember(), m, e.now()))
	if len(primaries) == 0 {
		e.emit(ctx, notify.NewAllMethodsRemovedEvent(member.handlerMember(), e.now()))
	}
	return nil
}

// RemoveAllMethods deletes every registration and the default-method
// preference of member, for example when an administrator resets MFA.
func (e *Engine) RemoveAllMethods(ctx context.Context, member Member) (err error) {
	if err := e.ready(member); err != nil {
		return err
	}
	ctx, span := e.startSpan(ctx, "remove_all_methods", member.ID, "")
	defer func() { endSpan(span, err) }()

	registered, err := e.registered(ctx, member.ID)
	if err != nil {
		return err
	}
	if err := e.records.DeleteAll(ctx, member.ID); err != nil {
		return backendError(err, "delete registered methods")
	}
	if len(registered) > 0 {
		e.emit(ctx, notify.NewAllMethodsRemovedEvent(member.handlerMember(), e.now()))
	}
	return nil
}

// SetDefaultMethod makes segment the method offered first at login. The
// backup method cannot be the default.
func (e *Engine) SetDefaultMethod(ctx context.Context, member Member, segment string) (err error) {
	if err := e.ready(member); err != nil {
		return err
	}
	ctx, span := e.startSpan(ctx, "set_default_method", member.ID, segment)
	defer func() { endSpan(span, err) }()

	if _, err := e.lookup(segment); err != nil {
		return err
	}
	if e.isBackup(segment) {
		return errors.Wrapf(ErrInvalidMethod, "backup method %q cannot be the default", segment)
	}
	if _, err := e.registeredMethod(ctx, member.ID, segment); err != nil {
		return err
	}
	if err := e.records.SetDefaultMethod(ctx, member.ID, segment); err != nil {
		return backendError(err, "set default method")
	}
	e.metricInc(MetricDefaultMethodChanged)
	return nil
}

// DefaultMethod returns the method to offer first at login, or false when
// member has no usable registration.
func (e *Engine) DefaultMethod(ctx context.Context, member Member) (method.Method, bool, error) {
	if err := e.ready(member); err != nil {
		return nil, false, err
	}
	registered, err := e.registered(ctx, member.ID)
	if err != nil {
		return nil, false, err
	}
	preferred, err := e.records.DefaultMethod(ctx, member.ID)
	if err != nil {
		return nil, false, backendError(err, "read default method")
	}
	primaries := slices.DeleteFunc(slices.Clone(registered), func(rm method.RegisteredMethod) bool {
		return e.isBackup(rm.Method)
	})
	if m, ok := e.registry.Default(preferred, primaries); ok {
		return m, true, nil
	}
	m, ok := e.registry.Default(preferred, registered)
	return m, ok, nil
}
