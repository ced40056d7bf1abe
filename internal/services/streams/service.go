package streamsvc

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/PortoLucas1/zerobus-station/internal/zerobus"
	logpkg "github.com/PortoLucas1/zerobus-station/pkg/log"
)

const (
	// maxInflightRecords is the per-stream unacknowledged-record ceiling
	// passed to the provider on every creation.
	maxInflightRecords = 50000
	// closeTimeout bounds the best-effort stream close on the teardown paths.
	closeTimeout = 5 * time.Second
)

// Manager multiplexes concurrent ingestion onto long-lived streams, one per
// table key. Creation runs under a per-key lock so that exactly one stream is
// built per key no matter how many callers race; ingestion reads the cache
// without taking any per-key lock.
type Manager struct {
	provider zerobus.Provider
	creds    zerobus.Credentials
	logger   logpkg.Logger

	// mu guards both maps. Key locks are created lazily and are never
	// removed: a caller holding a stale lock pointer must still exclude
	// every later caller for the same key.
	mu      sync.Mutex
	handles map[string]*Handle
	locks   map[string]*sync.Mutex
}

// New returns a Manager using a default logger.
func New(provider zerobus.Provider, creds zerobus.Credentials) *Manager {
	return NewWithLogger(provider, creds, nil)
}

// NewWithLogger constructs the manager with an injected logger.
func NewWithLogger(provider zerobus.Provider, creds zerobus.Credentials, logger logpkg.Logger) *Manager {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Manager{
		provider: provider,
		creds:    creds,
		logger:   logger.WithComponent("streams"),
		handles:  map[string]*Handle{},
		locks:    map[string]*sync.Mutex{},
	}
}

func (m *Manager) keyLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lk, ok := m.locks[key]
	if !ok {
		lk = &sync.Mutex{}
		m.locks[key] = lk
	}
	return lk
}

func (m *Manager) lookup(key string) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handles[key]
}

// GetOrCreateStream returns the cached handle for key when it is open,
// otherwise closes any stale handle and creates a fresh stream. The per-key
// lock is held across the whole check → close-stale → create → publish
// sequence, so concurrent callers for one key trigger exactly one creation;
// callers for other keys are unaffected.
//
// On failure nothing is cached and a *CreationError is returned; a later call
// retries from scratch.
func (m *Manager) GetOrCreateStream(ctx context.Context, key string, desc Descriptor) (*Handle, error) {
	lk := m.keyLock(key)
	lk.Lock()
	defer lk.Unlock()

	if h := m.lookup(key); h != nil {
		if h.State() == StateOpen {
			return h, nil
		}
		m.closeAndForget(h)
	}

	if desc.Message == nil {
		return nil, &CreationError{Key: key, Err: &SchemaResolutionError{Key: key}}
	}
	table := zerobus.TableProperties{TableName: desc.TableName, Descriptor: desc.Message}
	if table.TableName == "" {
		table.TableName = key
	}

	disp := newAckDispatcher(key, m.logger)
	stream, err := m.provider.CreateStream(ctx, m.creds, table, zerobus.StreamOptions{
		MaxInflightRecords: maxInflightRecords,
		Recovery:           true,
		AckCallback:        disp.Enqueue,
	})
	if err != nil {
		disp.Close()
		return nil, &CreationError{Key: key, Err: err}
	}

	h := newHandle(key, stream, disp)
	m.mu.Lock()
	m.handles[key] = h
	m.mu.Unlock()
	m.logger.Info("stream created",
		logpkg.Str("table", key),
		logpkg.Str("stream_id", h.ID()),
	)
	return h, nil
}

// IngestRecord appends one encoded record to the cached stream for key. No
// per-key lock is taken; a missing handle yields *NotFoundError and is never
// created implicitly.
func (m *Manager) IngestRecord(ctx context.Context, key string, payload []byte) (*zerobus.Ack, error) {
	h := m.lookup(key)
	if h == nil {
		return nil, &NotFoundError{Key: key}
	}
	return h.Submit(ctx, payload)
}

// Flush drains the cached stream for key.
func (m *Manager) Flush(ctx context.Context, key string) error {
	h := m.lookup(key)
	if h == nil {
		return &NotFoundError{Key: key}
	}
	return h.Flush(ctx)
}

// CloseStream closes and removes the cached stream for key. Best-effort:
// close failures are logged and the handle is removed regardless. No-op when
// nothing is cached.
func (m *Manager) CloseStream(key string) {
	lk := m.keyLock(key)
	lk.Lock()
	defer lk.Unlock()
	if h := m.lookup(key); h != nil {
		m.closeAndForget(h)
	}
}

// RemoveTable closes and removes any stream for key. Used when a table is
// removed from the configuration surface. The key's creation lock is
// retained: the same key may come back, and creation for it must stay
// serialized with callers that fetched the lock before the removal.
func (m *Manager) RemoveTable(key string) {
	m.CloseStream(key)
}

// CloseAll closes every cached stream. Failures are logged per stream and do
// not stop the sweep; after the call the registry is empty.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	keys := make([]string, 0, len(m.handles))
	for k := range m.handles {
		keys = append(keys, k)
	}
	m.mu.Unlock()
	for _, k := range keys {
		m.CloseStream(k)
	}
}

// ActiveTables returns a sorted snapshot of keys with a cached stream.
func (m *Manager) ActiveTables() []string {
	m.mu.Lock()
	out := make([]string, 0, len(m.handles))
	for k := range m.handles {
		out = append(out, k)
	}
	m.mu.Unlock()
	sort.Strings(out)
	return out
}

// StreamState reports the registry state for key's cached stream.
func (m *Manager) StreamState(key string) (State, bool) {
	h := m.lookup(key)
	if h == nil {
		return StateClosed, false
	}
	return h.State(), true
}

// closeAndForget closes the handle and then removes it from the cache. The
// handle stays routable until its close has been attempted; removal is
// unconditional, so a failed close never leaves a dead handle cached.
func (m *Manager) closeAndForget(h *Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	err := h.close(ctx)

	m.mu.Lock()
	if m.handles[h.key] == h {
		delete(m.handles, h.key)
	}
	m.mu.Unlock()

	if err != nil {
		cerr := &CloseError{Key: h.key, StreamID: h.ID(), Err: err}
		m.logger.Warn("stream close failed", logpkg.Err(cerr))
		return
	}
	m.logger.Info("stream closed",
		logpkg.Str("table", h.key),
		logpkg.Str("stream_id", h.ID()),
	)
}
