package authgate

import (
	"context"
	"time"
)

// The session clock is a background poll of token validity. It runs only
// while a session is authenticated, checks are serialized by construction
// (one goroutine, one tick at a time), and the first failed check logs the
// session out exactly once. Checks are skipped while a login or restore is
// in flight so a clock-triggered logout never races a session being built.

// startClockLocked launches the clock goroutine. Callers must hold e.mu.
func (e *Engine) startClockLocked() {
	if e.clockStop != nil {
		return
	}
	stop := make(chan struct{})
	e.clockStop = stop
	go e.runClock(stop)
}

// stopClockLocked cancels the clock goroutine. Callers must hold e.mu.
// Idempotent: a second call before the next start is a no-op.
func (e *Engine) stopClockLocked() {
	if e.clockStop == nil {
		return
	}
	close(e.clockStop)
	e.clockStop = nil
}

func (e *Engine) runClock(stop <-chan struct{}) {
	ticker := time.NewTicker(e.config.Session.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if e.checkSessionOnce() {
				return
			}
		}
	}
}

// checkSessionOnce runs one validity check. It reports true when the check
// ended the session, which also ends the clock goroutine.
func (e *Engine) checkSessionOnce() bool {
	e.mu.Lock()
	if e.loading || e.state != StateAuthenticated || e.token == "" {
		e.mu.Unlock()
		return false
	}
	token := e.token
	e.mu.Unlock()

	if !e.codec.IsExpiredAt(token, e.now()) {
		return false
	}

	ctx := context.Background()
	e.metricInc(MetricSessionExpired)
	e.emitAudit(ctx, auditEventSessionExpired, false, ErrSessionExpired, nil)
	e.log.Info().Msg("session token expired, logging out")
	e.Logout(ctx)
	return true
}
