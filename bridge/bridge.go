// Package bridge holds the process-wide forced-logout hook.
//
// # Design
//
// The transport layer must be able to terminate the session when the backend
// reports an expired session, but the transport cannot import the engine
// without creating an import cycle. This package is the single leaf both
// sides depend on: the engine registers its logout function here, and the
// transport invokes it blindly.
//
// # What this package must NOT do
//
//   - Import any sibling package.
//   - Hold more than one callback; re-registration replaces the previous one.
package bridge

import "sync"

var (
	mu       sync.Mutex
	logoutFn func()
)

// Register stores fn as the process-wide logout callback, replacing any
// previously registered callback. Passing nil clears the slot.
func Register(fn func()) {
	mu.Lock()
	logoutFn = fn
	mu.Unlock()
}

// ForceLogout invokes the registered callback. It is a safe no-op when no
// callback is registered. The callback runs outside the package lock, so a
// callback that re-registers (or unregisters) itself does not deadlock.
func ForceLogout() {
	mu.Lock()
	fn := logoutFn
	mu.Unlock()
	if fn != nil {
		fn()
	}
}
