// Package records persists the methods each member has registered, along
// with the member's preferred default method.
//
// Three [Repository] implementations are provided: [Memory] for tests and
// single-process demos, [Redis] for shared deployments, and [Gorm] for a
// relational store (Postgres in production). All of them enforce at most one
// record per (member, method) pair at write time: [Repository.Create] fails
// with [ErrDuplicate] rather than overwriting.
//
// # What this package must NOT do
//
//   - Import goMFA or any method implementation.
//   - Interpret method data; it is stored as opaque bytes.
package records
