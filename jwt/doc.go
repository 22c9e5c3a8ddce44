// Package jwt decodes session-token payloads into untrusted local claim
// projections. No signature verification happens here: the token is an opaque
// bearer credential validated server-side on every request, and the decoded
// claims exist only for display and flow routing, never for authorization
// decisions.
package jwt
