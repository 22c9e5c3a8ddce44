// Package device produces the stable per-install device identifier the
// backend binds trust decisions to. The identifier is a UUID generated on
// first use and persisted; a reinstall (or a wiped store) yields a new one,
// which is exactly the event that should force device re-validation.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/investaapp/authgate/storage"
)

// Identity hands out the install's device UUID.
//
// Identity is safe for concurrent use: racing first calls serialize on an
// internal lock, so every caller observes the single value that was
// persisted.
type Identity struct {
	mu    sync.Mutex
	store storage.Store
	key   string

	cached string
	newID  func() string
}

// NewIdentity returns an Identity persisting under key in store.
func NewIdentity(store storage.Store, key string) *Identity {
	return &Identity{
		store: store,
		key:   key,
		newID: uuid.NewString,
	}
}

// DeviceUUID returns the persisted device UUID, generating and persisting
// one on first call. A store read failure is treated as absence. When the
// persist write fails the freshly generated UUID is still returned (and kept
// for the life of the process) together with the error, so the caller can
// log it without losing the session flow.
func (i *Identity) DeviceUUID(ctx context.Context) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.cached != "" {
		return i.cached, nil
	}

	stored, err := i.store.Get(ctx, i.key)
	if err == nil && stored != "" {
		i.cached = stored
		return stored, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		// Unreadable store: fall through and mint a new identifier.
		err = fmt.Errorf("device: read identifier: %w", err)
	} else {
		err = nil
	}

	generated := i.newID()
	i.cached = generated
	if setErr := i.store.Set(ctx, i.key, generated); setErr != nil {
		return generated, fmt.Errorf("device: persist identifier: %w", setErr)
	}
	return generated, err
}
