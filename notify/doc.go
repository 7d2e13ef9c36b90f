// Package notify delivers MFA account-change events (a method was added, a
// method was removed, every method was removed) to notification handlers
// such as email.
//
// # Delivery
//
// [Dispatcher] queues events in a bounded buffer and delivers them from one
// background goroutine, so request handling never waits on SMTP. With
// DropIfFull the producer never blocks and overflow is counted by
// [Dispatcher.Dropped]; otherwise the producer blocks until there is room or
// its context ends. [Dispatcher.Close] drains the queue before returning.
//
// Each event is offered to every handler. Handler failures and panics are
// collected per event and logged; they never reach the request that
// produced the event.
//
// # What this package must NOT do
//
//   - Import goMFA or any method implementation.
//   - Retry failed deliveries.
package notify
