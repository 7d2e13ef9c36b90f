package goMFA

import (
	"context"
	"maps"
	"strings"
)

// Schema describes member's MFA setup for the frontend: registered and
// still available methods, the backup method, endpoint templates and the
// policy flags that decide whether the member may skip.
func (e *Engine) Schema(ctx context.Context, member Member) (Schema, error) {
	if err := e.ready(member); err != nil {
		return Schema{}, err
	}
	registered, err := e.registered(ctx, member.ID)
	if err != nil {
		return Schema{}, err
	}
	defaultMethod := ""
	if m, ok, err := e.DefaultMethod(ctx, member); err != nil {
		return Schema{}, err
	} else if ok {
		defaultMethod = m.URLSegment()
	}

	isRegistered := make(map[string]bool, len(registered))
	for _, rm := range registered {
		isRegistered[rm.Method] = true
	}

	schema := Schema{
		RegisteredMethods: []MethodDescription{},
		AvailableMethods:  []MethodDescription{},
		DefaultMethod:     defaultMethod,
		Endpoints:         e.endpoints(),
		CanSkip:           e.CanSkipMFA(member, registered),
		IsFullyRegistered: e.HasCompletedRegistration(registered),
		ShouldRedirect:    e.ShouldRedirectToMFA(member, registered),
		Resources:         maps.Clone(e.config.Resources),
	}
	if schema.Resources == nil {
		schema.Resources = map[string]string{}
	}

	for _, m := range e.registry.All() {
		d := describe(m)
		if e.isBackup(m.URLSegment()) {
			schema.BackupMethod = &d
			continue
		}
		if isRegistered[m.URLSegment()] {
			schema.RegisteredMethods = append(schema.RegisteredMethods, d)
		} else {
			schema.AvailableMethods = append(schema.AvailableMethods, d)
		}
	}
	return schema, nil
}

func (e *Engine) endpoints() Endpoints {
	prefix := strings.TrimSuffix(e.config.RoutePrefix, "/")
	return Endpoints{
		Register:   prefix + "/register/{urlSegment}",
		Login:      prefix + "/login/{urlSegment}",
		Remove:     prefix + "/method/{urlSegment}",
		SetDefault: prefix + "/method/{urlSegment}/default",
		Skip:       prefix + "/skip",
	}
}

// Describe returns the frontend description of a configured method.
func (e *Engine) Describe(segment string) (MethodDescription, error) {
	m, err := e.lookup(segment)
	if err != nil {
		return MethodDescription{}, err
	}
	return describe(m), nil
}
