// Package goMFA orchestrates second-factor registration and login flows on
// top of pluggable MFA methods.
//
// An [Engine] ties together the method [registry.Registry], the per-visitor
// [store.Store] state machine kept in the host session, the
// [records.Repository] of enrolled methods and the [notify.Dispatcher].
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goMFA is the public surface. It exposes [Engine], [Builder], [Config] and
// the flow value types (RegistrationStart, LoginOutcome, Schema). Method
// handlers never persist records themselves: the engine performs the single
// create or update after a successful step.
//
// # What this package must NOT do
//
//   - Leak handler error detail to clients. Wrong answers are Result values
//     and unexpected handler failures become a generic failure.
//   - Put its own TTL on the session store; the host session owns expiry.
//   - Import any sub-package that re-imports goMFA (no import cycles).
package goMFA
