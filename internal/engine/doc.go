// Package engine runs SQL scripts against one or more targets asynchronously.
//
// StartExecution validates the request, registers it with the coordinator
// and returns the execution id before any database work begins. A driver
// goroutine then fans the script out to every addressed target, collects
// the per-target outcomes into one response, attaches it to the record and
// hands the finished execution to history logging. Progress is published
// on a broker so callers can stream it.
package engine
