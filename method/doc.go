// Package method defines the contract every MFA method plugin implements.
//
// A [Method] identifies itself by a URL-safe segment and hands out two
// strategy objects: a [VerifyHandler] for login and a [RegisterHandler] for
// enrolment. Handlers keep their challenge data in the flow's session store
// and report outcomes as [Result] values; a wrong answer is a Result, never
// an error.
//
// # Architecture boundaries
//
// Handlers never persist [RegisteredMethod] records. A successful
// registration returns the method data in [Result.Data] and the engine
// performs the single write. Login handlers that need to rewrite their data
// (consumed recovery codes, TOTP replay counters) return the replacement in
// [Result.Data] as well.
//
// # What this package must NOT do
//
//   - Import goMFA, registry, records, or any concrete method.
//   - Hold mutable package-level state.
package method
