// Package httpapi exposes an [goMFA.Engine] as JSON endpoints on a
// gorilla/mux router.
//
// # Routes
//
// Relative to Config.RoutePrefix (default "/mfa"):
//
//	GET    /schema
//	GET    /register/{urlSegment}      start registration
//	POST   /register/{urlSegment}      complete registration (201)
//	POST   /skip
//	GET    /login/{urlSegment}         start verification
//	POST   /login/{urlSegment}         complete verification
//	DELETE /method/{urlSegment}
//	PUT    /method/{urlSegment}/default
//	POST   /cancel                     abort the current flow
//
// Rejections are written as {"errors": [message]} with deliberately generic
// messages.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Member identity
// comes from a [MemberResolver] and the host session from a
// [SessionProvider]; neither is implemented by the Engine.
//
// # What this package must NOT do
//
//   - Decide flow or policy outcomes (delegates to Engine).
//   - Return internal error detail to clients.
package httpapi
