// Package authgate implements the session and device-trust core of the
// investment-portal mobile client: token persistence, unverified claim
// decode, periodic expiry checking, per-install device identity, and the
// device-binding / facial-validation handshake that gates app access after
// login.
//
// # Design
//
// The entry point is Engine, built once at startup via the Builder and
// treated as immutable afterwards. The Engine is the single writer of
// session and device-trust state; UI layers read it through Snapshot and
// Subscribe and drive it through the imperative actions (Login, Restore,
// Logout, RegisterFaceAndCompleteValidation, SubmitPhotoValidation,
// CompleteDeviceValidation, RefreshToken).
//
// Device trust is fail-closed throughout: any ambiguity during validation
// leaves the install untrusted and routes the user to re-validation. The
// token itself is decoded without signature verification — the backend is
// the authority and re-validates the bearer token on every call; decoded
// claims are an untrusted local projection used only for display and flow
// routing.
//
// # Architecture boundaries
//
// Remote calls live in package api, durable state in package storage, the
// bearer transport in package transport, and the forced-logout hook in
// package bridge. This package owns orchestration and nothing else.
package authgate
