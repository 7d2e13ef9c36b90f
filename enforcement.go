package goMFA

import (
	"slices"
	"time"

	"github.com/MrEthical07/goMFA/method"
)

// IsGracePeriodInEffect reports whether MFA is required but members may
// still skip registration at now.
func (e *Engine) IsGracePeriodInEffect(now time.Time) bool {
	p := e.config.Policy
	return p.Required && !p.GracePeriodEnd.IsZero() && now.Before(p.GracePeriodEnd)
}

// IsMFARequired reports whether members must register at now.
func (e *Engine) IsMFARequired(now time.Time) bool {
	return e.config.Policy.Required && !e.IsGracePeriodInEffect(now)
}

// CanSkipMFA reports whether member may skip registration. Members who
// already registered a method cannot skip verification.
func (e *Engine) CanSkipMFA(member Member, registered []method.RegisteredMethod) bool {
	if e.IsMFARequired(e.now()) {
		return false
	}
	return len(e.configuredOnly(registered)) == 0
}

// ShouldRedirectToMFA reports whether a member who passed the first factor
// must be sent through the MFA flow.
func (e *Engine) ShouldRedirectToMFA(member Member, registered []method.RegisteredMethod) bool {
	if len(e.configuredOnly(registered)) > 0 {
		return true
	}
	now := e.now()
	if e.IsGracePeriodInEffect(now) || e.IsMFARequired(now) {
		return true
	}
	return !member.SkippedRegistration
}

// HasCompletedRegistration reports whether registered holds a primary
// method and, when a backup method is configured, the backup method too.
func (e *Engine) HasCompletedRegistration(registered []method.RegisteredMethod) bool {
	registered = e.configuredOnly(registered)
	hasPrimary := slices.ContainsFunc(registered, func(rm method.RegisteredMethod) bool {
		return !e.isBackup(rm.Method)
	})
	if !hasPrimary {
		return false
	}
	backup := e.config.Policy.BackupMethod
	if backup == "" {
		return true
	}
	return slices.ContainsFunc(registered, func(rm method.RegisteredMethod) bool {
		return rm.Method == backup
	})
}

func (e *Engine) configuredOnly(registered []method.RegisteredMethod) []method.RegisteredMethod {
	out := make([]method.RegisteredMethod, 0, len(registered))
	for _, rm := range registered {
		if _, ok := e.registry.ByURLSegment(rm.Method); ok {
			out = append(out, rm)
		}
	}
	return out
}
