package authgate

import (
	"context"
	"errors"
	"fmt"

	"github.com/investaapp/authgate/api"
	"github.com/investaapp/authgate/jwt"
	"github.com/investaapp/authgate/storage"
)

// Restore re-establishes the session persisted by a previous run. A missing,
// unreadable, or expired token is not an error: the engine simply lands in
// StateUnauthenticated. When the token is alive, the session is populated,
// the session clock starts, and device trust is evaluated before returning.
func (e *Engine) Restore(ctx context.Context) (Snapshot, error) {
	if err := e.ready(); err != nil {
		return Snapshot{}, err
	}

	e.mu.Lock()
	e.state = StateRestoring
	e.loading = true
	e.notifyLocked()
	e.mu.Unlock()

	token, err := e.store.Get(ctx, e.config.Storage.TokenKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		// Unreadable storage is treated as absence, never a crash.
		e.log.Warn().Err(err).Msg("token storage unreadable, treating as logged out")
	}
	if token == "" {
		e.metricInc(MetricRestoreFailure)
		return e.finishUnauthenticated(ctx, auditEventRestore, nil), nil
	}

	if e.codec.IsExpiredAt(token, e.now()) {
		e.removeStoredToken(ctx)
		e.metricInc(MetricRestoreFailure)
		return e.finishUnauthenticated(ctx, auditEventRestore, ErrSessionExpired), nil
	}

	payload := e.codec.Decode(token)
	if payload == nil {
		e.removeStoredToken(ctx)
		e.metricInc(MetricRestoreFailure)
		return e.finishUnauthenticated(ctx, auditEventRestore, errors.New("stored token undecodable")), nil
	}
	if payload.PersonID == "" {
		e.removeStoredToken(ctx)
		e.metricInc(MetricRestoreFailure)
		return e.finishUnauthenticated(ctx, auditEventRestore, ErrMissingPersonID), ErrMissingPersonID
	}

	e.activateSession(token, payload)
	e.metricInc(MetricRestoreSuccess)
	e.emitAudit(ctx, auditEventRestore, true, nil, nil)

	snap, _ := e.ValidateDevice(ctx)

	e.mu.Lock()
	e.loading = false
	e.notifyLocked()
	snap = e.snapshotLocked()
	e.mu.Unlock()
	return snap, nil
}

// Login authenticates the user's document identifier and password. On
// success the token is persisted, the session clock starts, and device
// trust is evaluated; the returned Snapshot carries the resulting
// device-trust routing. Failures are typed: ErrInvalidCredentials for a
// backend rejection, ErrConnection for network problems.
func (e *Engine) Login(ctx context.Context, document, password string) (Snapshot, error) {
	if err := e.ready(); err != nil {
		return Snapshot{}, err
	}

	e.mu.Lock()
	if e.loading {
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap, ErrLoginInFlight
	}
	e.loading = true
	e.notifyLocked()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.loading = false
		e.notifyLocked()
		e.mu.Unlock()
	}()

	token, err := e.backend.Login(ctx, document, password)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		mapped := mapLoginError(err)
		e.emitAudit(ctx, auditEventLogin, false, mapped, nil)
		e.mu.Lock()
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap, mapped
	}

	payload := e.codec.Decode(token)
	if payload == nil {
		e.metricInc(MetricLoginFailure)
		err := fmt.Errorf("%w: backend returned undecodable token", ErrInvalidCredentials)
		e.emitAudit(ctx, auditEventLogin, false, err, nil)
		e.mu.Lock()
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap, err
	}
	if payload.PersonID == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLogin, false, ErrMissingPersonID, nil)
		e.mu.Lock()
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap, ErrMissingPersonID
	}

	if err := e.store.Set(ctx, e.config.Storage.TokenKey, token); err != nil {
		// The session still works for this run; it just will not
		// survive a restart.
		e.log.Warn().Err(err).Msg("token persist failed")
	}

	e.activateSession(token, payload)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLogin, true, nil, nil)

	e.ValidateDevice(ctx)

	e.mu.Lock()
	snap := e.snapshotLocked()
	e.mu.Unlock()
	return snap, nil
}

// RefreshToken re-reads and re-decodes the persisted token, refreshing the
// decoded user claims. When the token is gone or expired the session is
// logged out and ErrSessionExpired is returned.
func (e *Engine) RefreshToken(ctx context.Context) (Snapshot, error) {
	if err := e.ready(); err != nil {
		return Snapshot{}, err
	}

	e.mu.Lock()
	authenticated := e.state == StateAuthenticated
	e.mu.Unlock()
	if !authenticated {
		return e.Snapshot(), ErrNotAuthenticated
	}

	token, err := e.store.Get(ctx, e.config.Storage.TokenKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		e.log.Warn().Err(err).Msg("token storage unreadable during refresh")
	}
	if token == "" || e.codec.IsExpiredAt(token, e.now()) {
		e.metricInc(MetricSessionExpired)
		e.emitAudit(ctx, auditEventRefresh, false, ErrSessionExpired, nil)
		e.Logout(ctx)
		return e.Snapshot(), ErrSessionExpired
	}

	payload := e.codec.Decode(token)
	if payload == nil || payload.PersonID == "" {
		e.emitAudit(ctx, auditEventRefresh, false, ErrMissingPersonID, nil)
		e.Logout(ctx)
		return e.Snapshot(), ErrSessionExpired
	}

	e.mu.Lock()
	e.token = token
	e.user = userFromPayload(payload)
	e.notifyLocked()
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emitAudit(ctx, auditEventRefresh, true, nil, nil)
	return snap, nil
}

// Logout clears the session, the device-trust state, and the persisted
// token, and cancels the session clock. It is idempotent: calling it while
// already logged out is a no-op.
func (e *Engine) Logout(ctx context.Context) {
	if e == nil {
		return
	}

	e.mu.Lock()
	hadSession := e.state == StateAuthenticated || e.token != ""
	e.state = StateUnauthenticated
	e.devicePhase = DeviceUnchecked
	e.user = nil
	e.token = ""
	e.hasFace = false
	e.trustPending = false
	e.stopClockLocked()
	e.notifyLocked()
	e.mu.Unlock()

	if !hadSession {
		return
	}

	e.removeStoredToken(ctx)
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, nil, nil)
}

// activateSession populates the session from a decoded token and starts the
// session clock.
func (e *Engine) activateSession(token string, payload *jwt.Payload) {
	e.mu.Lock()
	e.state = StateAuthenticated
	e.token = token
	e.user = userFromPayload(payload)
	e.devicePhase = DeviceUnchecked
	e.hasFace = false
	e.trustPending = false
	e.startClockLocked()
	e.notifyLocked()
	e.mu.Unlock()
}

func (e *Engine) finishUnauthenticated(ctx context.Context, eventType string, reason error) Snapshot {
	e.mu.Lock()
	e.state = StateUnauthenticated
	e.devicePhase = DeviceUnchecked
	e.user = nil
	e.token = ""
	e.hasFace = false
	e.trustPending = false
	e.loading = false
	e.stopClockLocked()
	e.notifyLocked()
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.emitAudit(ctx, eventType, false, reason, nil)
	return snap
}

func (e *Engine) removeStoredToken(ctx context.Context) {
	if err := e.store.Delete(ctx, e.config.Storage.TokenKey); err != nil {
		e.log.Warn().Err(err).Msg("token removal failed")
	}
}

func userFromPayload(p *jwt.Payload) *User {
	return &User{
		ID:       p.UserID,
		Name:     p.Username,
		Email:    p.Email,
		Document: p.Document,
		PersonID: p.PersonID,
		Manager:  p.Manager,
	}
}

func mapLoginError(err error) error {
	if api.IsNetwork(err) {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
}
