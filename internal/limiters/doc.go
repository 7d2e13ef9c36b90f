// Package limiters counts failed MFA verification attempts per member and
// locks verification once a threshold is reached.
//
// Counters live in Redis under "mvl:<member>" and expire after the
// configured cooldown, counted from the first failure in a window.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import goMFA or any sibling internal package.
//   - Make policy decisions beyond counting; the engine decides consequences.
package limiters
