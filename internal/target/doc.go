// Package target provides the named database targets executions run against.
//
// A Registry is built once at process start, normally from a YAML targets
// file through Open, and injected into the engine. Each PostgreSQL target
// owns a pgx pool shared by all executions; a run leases one connection from
// it for its whole duration. Closing the registry releases every pool.
package target
