package authgate

import (
	"context"
	"io"

	"github.com/investaapp/authgate/api"
)

// State is the top-level session lifecycle state.
type State uint8

const (
	// StateUninitialized is the state before Restore or Login has run.
	StateUninitialized State = iota
	// StateRestoring is the transient state while a stored token is being
	// re-read and validated at app start.
	StateRestoring
	// StateUnauthenticated means no valid session is held.
	StateUnauthenticated
	// StateAuthenticated means a token is held and was valid at last check.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRestoring:
		return "restoring"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

// DevicePhase is the device-trust sub-state of an authenticated session.
type DevicePhase uint8

const (
	// DeviceUnchecked means no validation attempt has run yet.
	DeviceUnchecked DevicePhase = iota
	// DeviceValidating means a validation round trip is in flight.
	DeviceValidating
	// DeviceTrusted means the backend authorized this install for the
	// session's person.
	DeviceTrusted
	// NeedsFaceRegistration means the person has no face template yet;
	// the next action is enrollment, not validation.
	NeedsFaceRegistration
	// NeedsDeviceValidation means a template exists but this install is
	// not authorized; the next action is a face match.
	NeedsDeviceValidation
)

func (p DevicePhase) String() string {
	switch p {
	case DeviceUnchecked:
		return "unchecked"
	case DeviceValidating:
		return "validating"
	case DeviceTrusted:
		return "trusted"
	case NeedsFaceRegistration:
		return "needs_face_registration"
	case NeedsDeviceValidation:
		return "needs_device_validation"
	}
	return "unknown"
}

// User is the identity decoded from the session token. It is an untrusted
// local projection for display purposes, never an authorization input.
type User struct {
	ID       string
	Name     string
	Email    string
	Document string
	PersonID string
	Manager  bool
}

// Snapshot is a point-in-time copy of the engine's observable state. The
// boolean fields mirror what the UI binds to; they are derived from State
// and DevicePhase and always mutually consistent.
type Snapshot struct {
	State       State
	DevicePhase DevicePhase
	User        *User

	IsAuthenticated bool
	IsLoading       bool

	DeviceValidated       bool
	NeedsDeviceValidation bool
	HasFace               bool

	// TrustPending means the backend already persisted this device as
	// trusted but CompleteDeviceValidation has not been called yet, so
	// the UI can hold the user on a confirmation screen.
	TrustPending bool
}

// FaceEnrollment is the outcome of RegisterFaceAndCompleteValidation. A
// false Registered is a normal negative (no face detected in the photo),
// not an error.
type FaceEnrollment struct {
	Registered bool
	Message    string
}

// PhotoValidation is the outcome of SubmitPhotoValidation. A false
// Validated is a normal negative (face did not match), not an error.
type PhotoValidation struct {
	Validated bool
	Distance  float64
}

// Backend is the remote surface the engine orchestrates. *api.Client is the
// production implementation; tests substitute fakes.
type Backend interface {
	Login(ctx context.Context, document, password string) (string, error)
	ValidateDevice(ctx context.Context, personID, deviceUUID string) (api.ValidateResult, error)
	RegisterFace(ctx context.Context, personID string, photo io.Reader, filename string) (api.RegisterFaceResult, error)
	SubmitPhotoValidation(ctx context.Context, personID string, photo io.Reader, filename string) (api.PhotoValidationResult, error)
	SaveDevice(ctx context.Context, personID, deviceUUID string) (api.SaveDeviceResult, error)
}
