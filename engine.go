package authgate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/investaapp/authgate/bridge"
	"github.com/investaapp/authgate/device"
	"github.com/investaapp/authgate/jwt"
	"github.com/investaapp/authgate/storage"
)

// Engine coordinates the session lifecycle and the device-trust handshake.
//
// Engine instances are built once via the Builder and treated as immutable
// afterwards. The Engine is the single writer of session and device-trust
// state; every mutation happens under one lock and is published to
// subscribers as a Snapshot. Remote calls always run outside that lock, so
// a forced logout arriving mid-call never deadlocks.
type Engine struct {
	config       Config
	log          zerolog.Logger
	codec        *jwt.Codec
	store        storage.Store
	device       *device.Identity
	backend      Backend
	audit        *auditDispatcher
	metrics      *Metrics
	photoLimiter *rate.Limiter
	now          func() time.Time

	mu           sync.Mutex
	state        State
	devicePhase  DevicePhase
	user         *User
	token        string
	loading      bool
	hasFace      bool
	trustPending bool
	clockStop    chan struct{}

	subMu   sync.Mutex
	subs    map[uint64]chan Snapshot
	nextSub uint64

	closed atomic.Bool
}

// Close tears the engine down: the session clock stops, the audit
// dispatcher drains, and the logout bridge slot is released. Close does not
// log the session out; a stored token survives for the next start.
func (e *Engine) Close() {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return
	}
	bridge.Register(nil)

	e.mu.Lock()
	e.stopClockLocked()
	e.mu.Unlock()

	e.audit.close()
}

// Snapshot returns a copy of the current observable state.
func (e *Engine) Snapshot() Snapshot {
	if e == nil {
		return Snapshot{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe registers a state observer. Every transition is published as a
// Snapshot on the returned channel; when the subscriber lags behind the
// buffer, intermediate snapshots are dropped in favor of newer ones. The
// cancel function releases the subscription.
func (e *Engine) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Snapshot, buffer)

	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	if e.subs == nil {
		e.subs = map[uint64]chan Snapshot{}
	}
	e.subs[id] = ch
	e.subMu.Unlock()

	cancel := func() {
		e.subMu.Lock()
		delete(e.subs, id)
		e.subMu.Unlock()
	}
	return ch, cancel
}

// Token returns the currently held session token, "" when none. It feeds
// the transport layer's bearer header.
func (e *Engine) Token() string {
	if e == nil {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.token
}

// AuditDropped reports how many audit events the dispatcher discarded.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.droppedCount()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

// snapshotLocked derives the UI-facing booleans from the state machine.
// Callers must hold e.mu.
func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:                 e.state,
		DevicePhase:           e.devicePhase,
		IsAuthenticated:       e.state == StateAuthenticated,
		IsLoading:             e.loading,
		DeviceValidated:       e.devicePhase == DeviceTrusted,
		NeedsDeviceValidation: e.devicePhase == NeedsDeviceValidation,
		HasFace:               e.hasFace,
		TrustPending:          e.trustPending,
	}
	if e.user != nil {
		u := *e.user
		snap.User = &u
	}
	return snap
}

// notifyLocked publishes the current snapshot to all subscribers without
// blocking. Callers must hold e.mu.
func (e *Engine) notifyLocked() {
	snap := e.snapshotLocked()

	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- snap:
		default:
			// Lagging subscriber: make room for the newest state.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: e.now(),
		EventType: eventType,
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}
	if cid := correlationIDFromContext(ctx); cid != "" {
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		event.Metadata["correlation_id"] = cid
	}

	e.mu.Lock()
	if e.user != nil {
		event.UserID = e.user.ID
		event.PersonID = e.user.PersonID
	}
	e.mu.Unlock()

	e.audit.emit(ctx, event)
}

func (e *Engine) ready() error {
	if e == nil || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}
