package authgate

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/investaapp/authgate/api"
	"github.com/investaapp/authgate/bridge"
	"github.com/investaapp/authgate/device"
	"github.com/investaapp/authgate/jwt"
	"github.com/investaapp/authgate/storage"
	"github.com/investaapp/authgate/transport"
)

// Builder assembles an Engine. Configure it with the With methods and call
// Build exactly once; each Builder produces one Engine.
type Builder struct {
	config     Config
	store      storage.Store
	backend    Backend
	httpClient *http.Client
	log        zerolog.Logger
	auditSink  AuditSink
	now        func() time.Time

	built bool
}

// New returns a Builder loaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		log:    zerolog.Nop(),
		now:    time.Now,
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the durable key-value store. Required.
func (b *Builder) WithStore(store storage.Store) *Builder {
	b.store = store
	return b
}

// WithBackend injects a remote client directly, bypassing the built-in
// transport wiring. Intended for tests and embedded deployments.
func (b *Builder) WithBackend(backend Backend) *Builder {
	b.backend = backend
	return b
}

// WithHTTPClient overrides the HTTP client used to construct the default
// api backend. Ignored when WithBackend is used.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithLogger sets the engine logger. Defaults to a nop logger.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.log = log
	return b
}

// WithAuditSink sets the audit destination. Only consulted when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithNowTime injects the time source, primarily for tests.
func (b *Builder) WithNowTime(now func() time.Time) *Builder {
	if now != nil {
		b.now = now
	}
	return b
}

// Build validates the configuration, wires the default transport and api
// client when no Backend was injected, registers the engine's logout on the
// global bridge, and returns the ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if err := b.config.validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("a storage.Store is required")
	}
	if b.backend == nil && b.config.BaseURL == "" {
		return nil, errors.New("either a BaseURL or a Backend is required")
	}
	b.built = true

	e := &Engine{
		config:  b.config,
		log:     b.log,
		codec:   jwt.NewCodec(),
		store:   b.store,
		device:  device.NewIdentity(b.store, b.config.Storage.DeviceKey),
		metrics: NewMetrics(b.config.Metrics),
		audit:   newAuditDispatcher(b.config.Audit, b.auditSink),
		now:     b.now,
		state:   StateUninitialized,
	}

	if cooldown := b.config.DeviceTrust.PhotoCooldown; cooldown > 0 {
		e.photoLimiter = rate.NewLimiter(rate.Every(cooldown), 1)
	}

	e.backend = b.backend
	if e.backend == nil {
		httpClient := b.httpClient
		if httpClient == nil {
			httpClient = transport.NewClient(transport.Options{
				Token:   e.Token,
				Timeout: b.config.Session.RequestTimeout,
			})
		}
		e.backend = api.NewClient(b.config.BaseURL, httpClient, b.log)
	}

	// The transport layer forces logout through the bridge when the
	// backend reports an expired session mid-call.
	bridge.Register(func() {
		e.metricInc(MetricSessionExpired)
		e.Logout(context.Background())
	})

	return e, nil
}
