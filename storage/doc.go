// Package storage provides the durable key-value stores the engine persists
// its session token and device identifier into.
//
// # Design
//
// Store is a minimal string key-value contract. Absence is a normal result
// (ErrNotFound), not a failure: the engine treats any read problem as "no
// value" and logs it, so implementations must return errors rather than
// panic. Three implementations are provided: an atomic-rename JSON file store
// for local installs, an in-memory store for tests, and a Redis store for
// server-mediated agents.
//
// # What this package must NOT do
//
//   - Import the engine or any sibling package.
//   - Interpret the values it stores; tokens and device IDs are opaque here.
package storage
