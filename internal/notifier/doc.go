// Package notifier fans a record out to every configured sink.
//
// A sink is one delivery channel (Telegram chat, mailbox, log). For each
// record all sinks run concurrently, each bounded by its own timeout, and the
// dispatcher waits for all of them before returning. A failing or panicking
// sink never affects the others and is never retried: the record has already
// been committed to history when dispatch starts.
//
// # Alerts
//
// Alert pushes an operator message through every sink's SendError. It is used
// for sustained failure escalation.
//
// Status carries routine reports such as the periodic heartbeat. Sinks that
// implement StatusSink render them apart from alerts; others get SendError.
package notifier
