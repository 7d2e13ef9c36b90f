// Package registry indexes the configured MFA methods by URL segment.
//
// A [Registry] is built once from an ordered list of methods and is
// read-only afterwards, so one instance is shared by every request.
// Construction fails fast with [ErrConfiguration] when two different method
// types claim the same segment or a method cannot provide its handlers.
// The same method type listed twice under the same segment is kept once.
//
// # What this package must NOT do
//
//   - Import goMFA or persistence packages.
//   - Mutate the index after construction.
package registry
