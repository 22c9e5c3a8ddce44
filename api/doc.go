// Package api wraps the portal backend's authentication and device-trust
// endpoints in typed client calls.
//
// # Design
//
// Every call resolves to one of four outcomes, modelled by Error.Kind:
// network/timeout failure, session expiry (which the engine must turn into a
// forced logout, never a retry prompt), a malformed response body, or an
// application-level rejection. Business negatives — wrong credentials, face
// not recognized, device not authorized — are NOT errors here; they come back
// as ordinary result values so the engine can route them to the matching
// untrusted state.
//
// # What this package must NOT do
//
//   - Decide trust. A transport problem during device validation is returned
//     as an error; the fail-closed interpretation belongs to the engine.
//   - Store or decode tokens; it only carries them via the injected
//     *http.Client.
package api
