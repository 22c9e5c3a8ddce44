package authgate

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	auditEventLogin            = "login"
	auditEventRestore          = "session_restore"
	auditEventLogout           = "logout"
	auditEventSessionExpired   = "session_expired"
	auditEventDeviceValidate   = "device_validate"
	auditEventFaceRegister     = "face_register"
	auditEventFaceValidate     = "face_validate"
	auditEventDeviceSaved      = "device_saved"
	auditEventTrustCompleted   = "device_trust_completed"
	auditEventRefresh          = "token_refresh"
	auditEventPhotoRateLimited = "photo_rate_limited"
)

// AuditEvent records one auth or device-trust transition.
type AuditEvent struct {
	Timestamp  time.Time         `json:"timestamp"`
	EventType  string            `json:"event_type"`
	UserID     string            `json:"user_id,omitempty"`
	PersonID   string            `json:"person_id,omitempty"`
	DeviceUUID string            `json:"device_uuid,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives audit events from the engine's dispatcher. Emit must
// be safe for concurrent use and should return quickly; slow sinks cause
// drops (or backpressure, depending on AuditConfig.DropIfFull).
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

// Emit implements AuditSink.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a buffered channel, mainly for tests and
// in-app event feeds.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink returns a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

// Emit implements AuditSink.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the sink's channel.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line to an io.Writer.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink returns a JSONWriterSink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit implements AuditSink.
func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// ZerologSink logs every event through a zerolog logger at info (success)
// or warn (failure) level.
type ZerologSink struct {
	log zerolog.Logger
}

// NewZerologSink returns a ZerologSink writing through log.
func NewZerologSink(log zerolog.Logger) *ZerologSink {
	return &ZerologSink{log: log}
}

// Emit implements AuditSink.
func (s *ZerologSink) Emit(_ context.Context, event AuditEvent) {
	if s == nil {
		return
	}
	entry := s.log.Info()
	if !event.Success {
		entry = s.log.Warn()
	}
	entry = entry.
		Str("event", event.EventType).
		Bool("success", event.Success)
	if event.UserID != "" {
		entry = entry.Str("user_id", event.UserID)
	}
	if event.PersonID != "" {
		entry = entry.Str("person_id", event.PersonID)
	}
	if event.DeviceUUID != "" {
		entry = entry.Str("device_uuid", event.DeviceUUID)
	}
	if event.Error != "" {
		entry = entry.Str("error", event.Error)
	}
	for k, v := range event.Metadata {
		entry = entry.Str(k, v)
	}
	entry.Msg("audit")
}
