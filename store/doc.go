// Package store provides the MFA session store: a small serializable state
// machine that carries a member's progress through a multi-request
// registration or login flow.
//
// # State machine
//
//	Empty ──SetMethod(x)──▶ InProgress(x) ──AddVerifiedMethod(x)──▶ Verified
//	Verified ──SetMethod(y), y not verified──▶ InProgress(y)
//	any ──SetMemberID(other)──▶ Empty
//
// SetMethod rejects a method that was already verified in the same flow
// with [ErrInvalidMethod]. Switching the member resets the method, the
// scratch state and the verified set.
//
// # Encoding
//
// A store encodes to a one-byte format version followed by JSON. Scratch
// state is restricted to JSON values (nil, bool, float64, string, []any and
// map[string]any); integers are normalized to float64 when set. Strings must
// be valid UTF-8 and raw []byte values are refused: either case fails with
// [ErrEncoding] instead of being silently rewritten by the encoder.
//
// # Architecture boundaries
//
// The store is persisted through the host's [Session] abstraction under a
// fixed key. It does NOT own expiry: the host session lifetime bounds it.
//
// # What this package must NOT do
//
//   - Import goMFA, registry, or any method implementation.
//   - Persist registered-method records.
//   - Synchronize concurrent requests of one flow (last write wins).
package store
