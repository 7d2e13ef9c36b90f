// Package hostsession is the host-side session storage that the MFA session
// store is persisted into.
//
// # Design
//
// A visitor is identified by a random session id carried in an HS256-signed
// JWT cookie. Session values live in one Redis hash per session id, so two
// visitors (and therefore two members) never share a key space. Every write
// slides the hash TTL; the cookie token is re-issued once it is past half of
// its lifetime.
//
// [Memory] offers the same [store.Session] contract without Redis for tests
// and single-process hosts.
//
// # What this package must NOT do
//
//   - Interpret session values; they are opaque strings.
//   - Decide whether a visitor is authenticated.
package hostsession
