package authgate

import (
	"context"
	"testing"
	"time"

	"github.com/investaapp/authgate/api"
	"github.com/investaapp/authgate/bridge"
	"github.com/investaapp/authgate/storage"
)

func TestBuildRequiresStore(t *testing.T) {
	if _, err := New().WithBackend(&fakeBackend{}).Build(); err == nil {
		t.Fatal("expected store requirement error")
	}
}

func TestBuildRequiresBackendOrBaseURL(t *testing.T) {
	if _, err := New().WithStore(storage.NewMemoryStore()).Build(); err == nil {
		t.Fatal("expected backend/base-url requirement error")
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.CheckInterval = 0
	_, b := newBuilderWithConfig(t, cfg, &fakeBackend{})
	if _, err := b.Build(); err == nil {
		t.Fatal("expected config validation error")
	}

	cfg = DefaultConfig()
	cfg.Storage.DeviceKey = cfg.Storage.TokenKey
	_, b = newBuilderWithConfig(t, cfg, &fakeBackend{})
	if _, err := b.Build(); err == nil {
		t.Fatal("expected colliding-keys validation error")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	b := New().WithStore(storage.NewMemoryStore()).WithBackend(&fakeBackend{})
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second build to fail")
	}
}

func TestBridgeForcesLogout(t *testing.T) {
	backend := &fakeBackend{
		loginToken: liveToken(t, "77"),
		validate:   api.ValidateResult{Valid: true, HasFace: true},
	}
	engine, _ := newTestEngine(t, backend)

	if _, err := engine.Login(context.Background(), "doc", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}

	bridge.ForceLogout()
	if engine.Snapshot().IsAuthenticated {
		t.Fatal("expected bridge-driven logout")
	}

	// Second invocation must stay a safe no-op.
	bridge.ForceLogout()
}

func TestCloseReleasesBridgeSlot(t *testing.T) {
	backend := &fakeBackend{
		loginToken: liveToken(t, "77"),
		validate:   api.ValidateResult{Valid: true, HasFace: true},
	}
	engine, _ := newTestEngine(t, backend)

	engine.Close()
	// With the slot released this must not panic or touch the engine.
	bridge.ForceLogout()
}

func TestAuditEventsReachSink(t *testing.T) {
	backend := &fakeBackend{
		loginToken: liveToken(t, "77"),
		validate:   api.ValidateResult{Valid: true, HasFace: true},
	}

	cfg := DefaultConfig()
	cfg.DeviceTrust.PhotoCooldown = 0
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 32

	sink := NewChannelSink(32)
	_, b := newBuilderWithConfig(t, cfg, backend)
	engine, err := b.WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := WithCorrelationID(context.Background(), "flow-1")
	if _, err := engine.Login(ctx, "doc", "pw"); err != nil {
		t.Fatalf("login: %v", err)
	}
	engine.Logout(ctx)

	want := map[string]bool{
		auditEventLogin:          false,
		auditEventDeviceValidate: false,
		auditEventLogout:         false,
	}
	deadline := time.After(2 * time.Second)
	for {
		missing := false
		for _, seen := range want {
			if !seen {
				missing = true
			}
		}
		if !missing {
			break
		}
		select {
		case ev := <-sink.Events():
			if _, tracked := want[ev.EventType]; tracked {
				want[ev.EventType] = true
			}
			if ev.EventType == auditEventLogin && ev.Metadata["correlation_id"] != "flow-1" {
				t.Fatalf("expected correlation id on login event, got %+v", ev.Metadata)
			}
		case <-deadline:
			t.Fatalf("missing audit events: %+v", want)
		}
	}
}
