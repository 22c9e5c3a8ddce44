package authgate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/investaapp/authgate/api"
)

func loggedInEngine(t *testing.T, backend *fakeBackend, opts ...engineOption) *Engine {
	t.Helper()
	engine, _ := newTestEngine(t, backend, opts...)
	if _, err := engine.Login(context.Background(), "12345678900", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	return engine
}

func TestDeviceValidationFailsClosed(t *testing.T) {
	failures := map[string]error{
		"timeout":   &api.Error{Kind: api.KindNetwork, Err: errors.New("request timeout")},
		"http 500":  &api.Error{Kind: api.KindApplication, Status: 500, Message: "internal"},
		"malformed": &api.Error{Kind: api.KindMalformed, Message: "bad body"},
	}
	for name, failure := range failures {
		t.Run(name, func(t *testing.T) {
			backend := &fakeBackend{
				loginToken:  liveToken(t, "77"),
				validateErr: failure,
			}
			engine, _ := newTestEngine(t, backend)

			snap, err := engine.Login(context.Background(), "doc", "pw")
			if err != nil {
				t.Fatalf("login itself must succeed: %v", err)
			}
			if snap.DeviceValidated {
				t.Fatal("device must never be trusted on a validation error")
			}
			if !snap.NeedsDeviceValidation {
				t.Fatalf("expected fail-closed needs-device-validation, got %+v", snap)
			}
			if snap.HasFace {
				t.Fatal("expected HasFace=false on a validation error")
			}

			// The condition is recoverable: a retry must reach the
			// backend again.
			if _, err := engine.ValidateDevice(context.Background()); err == nil {
				t.Fatal("expected retry to surface the error")
			}
			if backend.validateCalls != 2 {
				t.Fatalf("expected retry to call the backend, calls=%d", backend.validateCalls)
			}
		})
	}
}

func TestDeviceValidationRouting(t *testing.T) {
	cases := []struct {
		name      string
		result    api.ValidateResult
		wantPhase DevicePhase
	}{
		{"trusted", api.ValidateResult{Valid: true, HasFace: true}, DeviceTrusted},
		{"first time", api.ValidateResult{Valid: false, HasFace: false}, NeedsFaceRegistration},
		{"new device", api.ValidateResult{Valid: false, HasFace: true}, NeedsDeviceValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := &fakeBackend{loginToken: liveToken(t, "77"), validate: tc.result}
			engine := loggedInEngine(t, backend)

			snap := engine.Snapshot()
			if snap.DevicePhase != tc.wantPhase {
				t.Fatalf("expected phase %s, got %s", tc.wantPhase, snap.DevicePhase)
			}
			if snap.HasFace != tc.result.HasFace {
				t.Fatalf("expected HasFace=%v, got %v", tc.result.HasFace, snap.HasFace)
			}
		})
	}
}

func TestFullRegistrationScenario(t *testing.T) {
	backend := &fakeBackend{
		loginToken: liveToken(t, "77"),
		validate:   api.ValidateResult{Valid: false, HasFace: false},
		register:   api.RegisterFaceResult{Registered: true, Message: "ok"},
		save:       api.SaveDeviceResult{Success: true, DeviceID: "dev-1"},
	}
	engine := loggedInEngine(t, backend)

	if phase := engine.Snapshot().DevicePhase; phase != NeedsFaceRegistration {
		t.Fatalf("expected needs-face-registration, got %s", phase)
	}

	enrollment, err := engine.RegisterFaceAndCompleteValidation(context.Background(), strings.NewReader("jpeg"), "selfie.jpg")
	if err != nil {
		t.Fatalf("register face: %v", err)
	}
	if !enrollment.Registered {
		t.Fatal("expected registered enrollment")
	}
	if backend.saveCount() != 1 {
		t.Fatalf("expected one SaveDevice call, got %d", backend.saveCount())
	}

	// Network success alone must not flip trust: the UI confirms first.
	mid := engine.Snapshot()
	if mid.DeviceValidated {
		t.Fatal("trust must stay pending until CompleteDeviceValidation")
	}
	if !mid.TrustPending {
		t.Fatal("expected trust-pending state")
	}

	snap, err := engine.CompleteDeviceValidation(context.Background())
	if err != nil {
		t.Fatalf("complete validation: %v", err)
	}
	if !snap.DeviceValidated || snap.NeedsDeviceValidation || snap.TrustPending {
		t.Fatalf("expected trusted terminal state, got %+v", snap)
	}
}

func TestRejectedEnrollmentNeverSavesDevice(t *testing.T) {
	backend := &fakeBackend{
		loginToken: liveToken(t, "77"),
		validate:   api.ValidateResult{Valid: false, HasFace: false},
		register:   api.RegisterFaceResult{Registered: false, Message: "no face detected"},
	}
	engine := loggedInEngine(t, backend)

	enrollment, err := engine.RegisterFaceAndCompleteValidation(context.Background(), strings.NewReader("jpeg"), "selfie.jpg")
	if err != nil {
		t.Fatalf("soft negative must not be an error: %v", err)
	}
	if enrollment.Registered {
		t.Fatal("expected negative enrollment")
	}
	if backend.saveCount() != 0 {
		t.Fatalf("SaveDevice must not run after a rejected enrollment, calls=%d", backend.saveCount())
	}
	if engine.Snapshot().DeviceValidated {
		t.Fatal("device must stay untrusted")
	}
}

func TestRevalidationNegativeMatch(t *testing.T) {
	backend := &fakeBackend{
		loginToken: liveToken(t, "77"),
		validate:   api.ValidateResult{Valid: false, HasFace: true},
		submit:     api.PhotoValidationResult{Validated: false, Distance: 0.92},
	}
	engine := loggedInEngine(t, backend)

	snap := engine.Snapshot()
	if !snap.NeedsDeviceValidation || !snap.HasFace {
		t.Fatalf("expected needs-device-validation with enrolled face, got %+v", snap)
	}

	validation, err := engine.SubmitPhotoValidation(context.Background(), strings.NewReader("jpeg"), "selfie.jpg")
	if err != nil {
		t.Fatalf("negative match must not be an error: %v", err)
	}
	if validation.Validated {
		t.Fatal("expected negative match")
	}
	if backend.saveCount() != 0 {
		t.Fatalf("SaveDevice must not run after a negative match, calls=%d", backend.saveCount())
	}
	if engine.Snapshot().DeviceValidated {
		t.Fatal("device must stay untrusted")
	}
}

func TestPositiveMatchCompletesTwoPhase(t *testing.T) {
	backend := &fakeBackend{
		loginToken: liveToken(t, "77"),
		validate:   api.ValidateResult{Valid: false, HasFace: true},
		submit:     api.PhotoValidationResult{Validated: true, Distance: 0.21},
		save:       api.SaveDeviceResult{Success: true},
	}
	engine := loggedInEngine(t, backend)

	validation, err := engine.SubmitPhotoValidation(context.Background(), strings.NewReader("jpeg"), "selfie.jpg")
	if err != nil {
		t.Fatalf("submit photo: %v", err)
	}
	if !validation.Validated {
		t.Fatal("expected positive match")
	}
	if backend.saveCount() != 1 {
		t.Fatalf("expected SaveDevice after positive match, calls=%d", backend.saveCount())
	}

	if _, err := engine.CompleteDeviceValidation(context.Background()); err != nil {
		t.Fatalf("complete validation: %v", err)
	}
	if !engine.Snapshot().DeviceValidated {
		t.Fatal("expected trusted device")
	}
}

func TestSaveFailureKeepsTrustPendingOff(t *testing.T) {
	backend := &fakeBackend{
		loginToken: liveToken(t, "77"),
		validate:   api.ValidateResult{Valid: false, HasFace: true},
		submit:     api.PhotoValidationResult{Validated: true},
		save:       api.SaveDeviceResult{Success: false},
	}
	engine := loggedInEngine(t, backend)

	_, err := engine.SubmitPhotoValidation(context.Background(), strings.NewReader("jpeg"), "selfie.jpg")
	if !errors.Is(err, ErrDeviceSaveFailed) {
		t.Fatalf("expected ErrDeviceSaveFailed, got %v", err)
	}
	snap := engine.Snapshot()
	if snap.TrustPending || snap.DeviceValidated {
		t.Fatalf("failed save must leave trust untouched, got %+v", snap)
	}
}

func TestCompleteWithoutPendingValidation(t *testing.T) {
	backend := &fakeBackend{
		loginToken: liveToken(t, "77"),
		validate:   api.ValidateResult{Valid: false, HasFace: true},
	}
	engine := loggedInEngine(t, backend)

	if _, err := engine.CompleteDeviceValidation(context.Background()); !errors.Is(err, ErrNoValidationPending) {
		t.Fatalf("expected ErrNoValidationPending, got %v", err)
	}
}

func TestFaceActionsRequireMatchingPhase(t *testing.T) {
	backend := &fakeBackend{
		loginToken: liveToken(t, "77"),
		validate:   api.ValidateResult{Valid: false, HasFace: true},
	}
	engine := loggedInEngine(t, backend)

	if _, err := engine.RegisterFaceAndCompleteValidation(context.Background(), strings.NewReader("jpeg"), "s.jpg"); !errors.Is(err, ErrWrongDevicePhase) {
		t.Fatalf("expected ErrWrongDevicePhase for registration in validation phase, got %v", err)
	}
}

func TestSessionExpiredDuringValidationForcesLogout(t *testing.T) {
	backend := &fakeBackend{
		loginToken:  liveToken(t, "77"),
		validateErr: &api.Error{Kind: api.KindSessionExpired, Status: 401},
	}
	engine, _ := newTestEngine(t, backend)

	if _, err := engine.Login(context.Background(), "doc", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if engine.Snapshot().IsAuthenticated {
		t.Fatal("expected forced logout on session-expired signal")
	}
}

func TestPhotoSubmissionCooldown(t *testing.T) {
	backend := &fakeBackend{
		loginToken: liveToken(t, "77"),
		validate:   api.ValidateResult{Valid: false, HasFace: true},
		submit:     api.PhotoValidationResult{Validated: false, Distance: 0.9},
	}
	cfg := DefaultConfig()
	cfg.DeviceTrust.PhotoCooldown = time.Hour

	store, b := newBuilderWithConfig(t, cfg, backend)
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)
	_ = store

	if _, err := engine.Login(context.Background(), "doc", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := engine.SubmitPhotoValidation(context.Background(), strings.NewReader("jpeg"), "s.jpg"); err != nil {
		t.Fatalf("first submission must pass the limiter: %v", err)
	}
	if _, err := engine.SubmitPhotoValidation(context.Background(), strings.NewReader("jpeg"), "s.jpg"); !errors.Is(err, ErrPhotoRateLimited) {
		t.Fatalf("expected ErrPhotoRateLimited, got %v", err)
	}
	if backend.submitCalls != 1 {
		t.Fatalf("rate-limited submission must not reach the backend, calls=%d", backend.submitCalls)
	}
}
