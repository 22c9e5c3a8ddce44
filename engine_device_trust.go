package authgate

import (
	"context"
	"fmt"
	"io"

	"github.com/investaapp/authgate/api"
)

// ValidateDevice asks the backend whether this install is authorized for
// the session's person and routes the result:
//
//   - authorized → DeviceTrusted
//   - not authorized, no face template → NeedsFaceRegistration
//   - not authorized, template exists → NeedsDeviceValidation
//
// Any error fails closed into NeedsDeviceValidation with HasFace=false and
// is returned so the UI can offer a retry; the install is never silently
// trusted. A session-expiry signal logs the session out instead.
func (e *Engine) ValidateDevice(ctx context.Context) (Snapshot, error) {
	if err := e.ready(); err != nil {
		return Snapshot{}, err
	}

	personID, ok := e.currentPersonID()
	if !ok {
		return e.Snapshot(), ErrNotAuthenticated
	}

	e.mu.Lock()
	e.devicePhase = DeviceValidating
	e.trustPending = false
	e.notifyLocked()
	e.mu.Unlock()

	deviceUUID := e.deviceUUID(ctx)

	result, err := e.backend.ValidateDevice(ctx, personID, deviceUUID)
	if err != nil {
		if api.IsSessionExpired(err) {
			return e.expireSession(ctx, auditEventDeviceValidate)
		}

		e.mu.Lock()
		e.devicePhase = NeedsDeviceValidation
		e.hasFace = false
		e.notifyLocked()
		snap := e.snapshotLocked()
		e.mu.Unlock()

		e.metricInc(MetricDeviceValidationError)
		e.emitAudit(ctx, auditEventDeviceValidate, false, err, map[string]string{"device_uuid": deviceUUID})
		if api.IsNetwork(err) {
			return snap, fmt.Errorf("%w: %v", ErrConnection, err)
		}
		return snap, fmt.Errorf("device validation: %w", err)
	}

	e.mu.Lock()
	e.hasFace = result.HasFace
	switch {
	case result.Valid:
		e.devicePhase = DeviceTrusted
		e.metricInc(MetricDeviceTrusted)
	case result.HasFace:
		e.devicePhase = NeedsDeviceValidation
	default:
		e.devicePhase = NeedsFaceRegistration
	}
	e.notifyLocked()
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emitAudit(ctx, auditEventDeviceValidate, true, nil, map[string]string{
		"device_uuid": deviceUUID,
		"phase":       snap.DevicePhase.String(),
	})
	return snap, nil
}

// RegisterFaceAndCompleteValidation enrolls the person's face from photo and,
// when the backend confirms a descriptor, persists this device as trusted.
// A photo with no detectable face is a normal negative result, not an error.
//
// The trust flag does NOT flip here: the successful sequence parks the
// engine in a trust-pending state and the UI flips it by calling
// CompleteDeviceValidation once the user confirms.
func (e *Engine) RegisterFaceAndCompleteValidation(ctx context.Context, photo io.Reader, filename string) (FaceEnrollment, error) {
	if err := e.ready(); err != nil {
		return FaceEnrollment{}, err
	}
	personID, ok := e.currentPersonID()
	if !ok {
		return FaceEnrollment{}, ErrNotAuthenticated
	}
	if err := e.requirePhase(NeedsFaceRegistration); err != nil {
		return FaceEnrollment{}, err
	}
	if err := e.allowPhoto(ctx); err != nil {
		return FaceEnrollment{}, err
	}

	result, err := e.backend.RegisterFace(ctx, personID, photo, filename)
	if err != nil {
		if api.IsSessionExpired(err) {
			_, err := e.expireSession(ctx, auditEventFaceRegister)
			return FaceEnrollment{}, err
		}
		e.emitAudit(ctx, auditEventFaceRegister, false, err, nil)
		if api.IsNetwork(err) {
			return FaceEnrollment{}, fmt.Errorf("%w: %v", ErrConnection, err)
		}
		return FaceEnrollment{}, fmt.Errorf("face registration: %w", err)
	}

	if !result.Registered {
		e.metricInc(MetricFaceRegisterRejected)
		e.emitAudit(ctx, auditEventFaceRegister, false, nil, map[string]string{"message": result.Message})
		return FaceEnrollment{Registered: false, Message: result.Message}, nil
	}

	e.metricInc(MetricFaceRegisterAccepted)
	e.emitAudit(ctx, auditEventFaceRegister, true, nil, nil)

	if err := e.saveDevice(ctx, personID); err != nil {
		return FaceEnrollment{}, err
	}

	e.mu.Lock()
	e.hasFace = true
	e.trustPending = true
	e.notifyLocked()
	e.mu.Unlock()

	return FaceEnrollment{Registered: true, Message: result.Message}, nil
}

// SubmitPhotoValidation matches photo against the person's enrolled face
// and, on an explicit positive match, persists this device as trusted. A
// non-matching face is a normal negative result, not an error. Completion
// is two-phase, as with RegisterFaceAndCompleteValidation.
func (e *Engine) SubmitPhotoValidation(ctx context.Context, photo io.Reader, filename string) (PhotoValidation, error) {
	if err := e.ready(); err != nil {
		return PhotoValidation{}, err
	}
	personID, ok := e.currentPersonID()
	if !ok {
		return PhotoValidation{}, ErrNotAuthenticated
	}
	if err := e.requirePhase(NeedsDeviceValidation); err != nil {
		return PhotoValidation{}, err
	}
	if err := e.allowPhoto(ctx); err != nil {
		return PhotoValidation{}, err
	}

	result, err := e.backend.SubmitPhotoValidation(ctx, personID, photo, filename)
	if err != nil {
		if api.IsSessionExpired(err) {
			_, err := e.expireSession(ctx, auditEventFaceValidate)
			return PhotoValidation{}, err
		}
		e.emitAudit(ctx, auditEventFaceValidate, false, err, nil)
		if api.IsNetwork(err) {
			return PhotoValidation{}, fmt.Errorf("%w: %v", ErrConnection, err)
		}
		return PhotoValidation{}, fmt.Errorf("photo validation: %w", err)
	}

	if !result.Validated {
		e.metricInc(MetricFaceMatchRejected)
		e.emitAudit(ctx, auditEventFaceValidate, false, nil, map[string]string{
			"distance": fmt.Sprintf("%.4f", result.Distance),
		})
		return PhotoValidation{Validated: false, Distance: result.Distance}, nil
	}

	e.metricInc(MetricFaceMatchAccepted)
	e.emitAudit(ctx, auditEventFaceValidate, true, nil, nil)

	if err := e.saveDevice(ctx, personID); err != nil {
		return PhotoValidation{}, err
	}

	e.mu.Lock()
	e.trustPending = true
	e.notifyLocked()
	e.mu.Unlock()

	return PhotoValidation{Validated: true, Distance: result.Distance}, nil
}

// CompleteDeviceValidation flips the device-trust state to trusted after a
// successful register-or-validate sequence. It is the explicit second phase
// driven by the UI's confirmation action.
func (e *Engine) CompleteDeviceValidation(ctx context.Context) (Snapshot, error) {
	if err := e.ready(); err != nil {
		return Snapshot{}, err
	}

	e.mu.Lock()
	if !e.trustPending {
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap, ErrNoValidationPending
	}
	e.trustPending = false
	e.devicePhase = DeviceTrusted
	e.hasFace = true
	e.notifyLocked()
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.metricInc(MetricTrustCompleted)
	e.emitAudit(ctx, auditEventTrustCompleted, true, nil, nil)
	return snap, nil
}

// saveDevice persists the trusted device server-side. Only called after a
// successful RegisterFace or SubmitPhotoValidation; that ordering is the
// core sequencing invariant of this file.
func (e *Engine) saveDevice(ctx context.Context, personID string) error {
	deviceUUID := e.deviceUUID(ctx)

	result, err := e.backend.SaveDevice(ctx, personID, deviceUUID)
	if err != nil {
		if api.IsSessionExpired(err) {
			_, err := e.expireSession(ctx, auditEventDeviceSaved)
			return err
		}
		e.emitAudit(ctx, auditEventDeviceSaved, false, err, nil)
		if api.IsNetwork(err) {
			return fmt.Errorf("%w: %v", ErrConnection, err)
		}
		return fmt.Errorf("%w: %v", ErrDeviceSaveFailed, err)
	}
	if !result.Success {
		e.emitAudit(ctx, auditEventDeviceSaved, false, ErrDeviceSaveFailed, nil)
		return ErrDeviceSaveFailed
	}

	e.metricInc(MetricDeviceSaved)
	e.emitAudit(ctx, auditEventDeviceSaved, true, nil, map[string]string{"device_id": result.DeviceID})
	return nil
}

func (e *Engine) deviceUUID(ctx context.Context) string {
	uuid, err := e.device.DeviceUUID(ctx)
	if err != nil {
		// The generated UUID is still usable for this run.
		e.log.Warn().Err(err).Msg("device identifier persistence degraded")
	}
	return uuid
}

func (e *Engine) currentPersonID() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateAuthenticated || e.user == nil || e.user.PersonID == "" {
		return "", false
	}
	return e.user.PersonID, true
}

func (e *Engine) requirePhase(phase DevicePhase) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.devicePhase != phase {
		return fmt.Errorf("%w: in %s", ErrWrongDevicePhase, e.devicePhase)
	}
	return nil
}

func (e *Engine) allowPhoto(ctx context.Context) error {
	if e.photoLimiter == nil {
		return nil
	}
	if !e.photoLimiter.Allow() {
		e.metricInc(MetricPhotoRateLimited)
		e.emitAudit(ctx, auditEventPhotoRateLimited, false, ErrPhotoRateLimited, nil)
		return ErrPhotoRateLimited
	}
	return nil
}

// expireSession handles a backend session-expiry signal observed mid-flow.
func (e *Engine) expireSession(ctx context.Context, eventType string) (Snapshot, error) {
	e.metricInc(MetricSessionExpired)
	e.emitAudit(ctx, eventType, false, ErrSessionExpired, nil)
	e.emitAudit(ctx, auditEventSessionExpired, false, ErrSessionExpired, nil)
	e.Logout(ctx)
	return e.Snapshot(), ErrSessionExpired
}
