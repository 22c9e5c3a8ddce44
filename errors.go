package authgate

import "errors"

var (
	// ErrEngineNotReady is returned when an action runs on a nil or
	// closed engine.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrInvalidCredentials is returned by Login when the backend
	// rejected the document/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrConnection is returned when a remote call failed at the network
	// level; callers may retry.
	ErrConnection = errors.New("connection failure")
	// ErrSessionExpired is returned when the backend signalled that the
	// held session is no longer valid.
	ErrSessionExpired = errors.New("session expired")
	// ErrNotAuthenticated is returned by actions that require an active
	// session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrLoginInFlight is returned when Login is called while another
	// login is still running.
	ErrLoginInFlight = errors.New("login already in flight")
	// ErrMissingPersonID is returned when a token decodes without a
	// person identifier; the session is unusable and must be
	// re-authenticated.
	ErrMissingPersonID = errors.New("token missing person id")
	// ErrDeviceSaveFailed is returned when the backend refused to persist
	// a freshly validated device.
	ErrDeviceSaveFailed = errors.New("device save failed")
	// ErrWrongDevicePhase is returned when a face action runs in a
	// device-trust phase that does not allow it.
	ErrWrongDevicePhase = errors.New("action not allowed in current device phase")
	// ErrNoValidationPending is returned by CompleteDeviceValidation when
	// no successful register-or-validate sequence is awaiting completion.
	ErrNoValidationPending = errors.New("no device validation pending completion")
	// ErrPhotoRateLimited is returned when photo submissions exceed the
	// configured cooldown.
	ErrPhotoRateLimited = errors.New("photo submission rate limited")
)
