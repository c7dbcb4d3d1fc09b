// Package signal defines the RemoteValue capability the positioner core
// composes: read, write with optional put-completion acknowledgement, and
// change subscription.
//
// The transport that backs a RemoteValue is out of scope for this module;
// Soft provides a complete in-memory implementation used by simulators and
// tests. Each Soft signal owns a single notification goroutine on which
// all change handlers and put-completion callbacks are delivered in order,
// mirroring how a real control-system client library delivers monitor
// callbacks on a dedicated dispatch thread.
//
// A Hub is a named collection of Soft signals implementing Connector, the
// name-to-signal resolution interface positioner constructors accept.
package signal
