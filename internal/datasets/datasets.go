// Package datasets caches loaded performance tables behind TTL handles so
// every tool call reads the same immutable table without reparsing the
// source.
package datasets

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vinodismyname/crcalc/config"
	"github.com/vinodismyname/crcalc/internal/perfdata"
	"github.com/vinodismyname/crcalc/internal/textnorm"
	"golang.org/x/sync/singleflight"
)

// Handle pairs a loaded table with metadata for TTL eviction.
type Handle struct {
	ID        string
	Path      string
	Sheet     string
	Table     *perfdata.Table
	LoadedAt  time.Time
	ExpiresAt time.Time
	mu        sync.RWMutex
}

// Info is a snapshot of a handle.
type Info struct {
	ID        string    `json:"dataset_id"`
	Path      string    `json:"path"`
	Sheet     string    `json:"sheet,omitempty"`
	Rows      int       `json:"rows"`
	LoadedAt  time.Time `json:"loaded_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DatasetGate coordinates capacity for open dataset handles (backed by runtime.Controller).
type DatasetGate interface {
	AcquireDataset(ctx context.Context) error
	ReleaseDataset()
}

// PathValidator abstracts filesystem path validation. Implementations
// return a canonical absolute path if allowed, or an error when denied.
type PathValidator interface {
	ValidateOpenPath(path string) (string, error)
}

// Loader reads a table from a canonical path.
type Loader func(path string, opts perfdata.LoadOptions) (*perfdata.Table, error)

// ErrHandleNotFound indicates an unknown or expired handle ID.
var ErrHandleNotFound = errors.New("datasets: handle not found")

// Manager provides lifecycle hooks for opening and closing datasets and a TTL handle cache.
type Manager struct {
	mu           sync.RWMutex
	handles      map[string]*Handle
	ttl          time.Duration
	cleanupEvery time.Duration
	clock        func() time.Time
	gate         DatasetGate
	stopCh       chan struct{}
	stopOnce     sync.Once
	cleanupWG    sync.WaitGroup
	validator    PathValidator
	loader       Loader
	maxRows      int
	logger       zerolog.Logger
	opening      singleflight.Group
}

// Option customizes a Manager.
type Option func(*Manager)

// WithValidator enforces path validation on Open.
func WithValidator(v PathValidator) Option { return func(m *Manager) { m.validator = v } }

// WithLoader replaces perfdata.Load.
func WithLoader(l Loader) Option { return func(m *Manager) { m.loader = l } }

// WithMaxRows caps rows per loaded dataset.
func WithMaxRows(n int) Option { return func(m *Manager) { m.maxRows = n } }

// WithLogger sets the logger for lifecycle events.
func WithLogger(l zerolog.Logger) Option { return func(m *Manager) { m.logger = l } }

// NewManager constructs a lifecycle manager with TTL-bearing handle cache.
// Pass ttl or cleanupEvery <= 0 to use defaults from config.
// Gate can be nil for tests; clock defaults to time.Now when nil.
func NewManager(ttl, cleanupEvery time.Duration, gate DatasetGate, clock func() time.Time, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = config.DefaultDatasetIdleTTL
	}
	if cleanupEvery <= 0 {
		cleanupEvery = config.DefaultDatasetCleanupPeriod
	}
	if clock == nil {
		clock = time.Now
	}
	m := &Manager{
		handles:      make(map[string]*Handle),
		ttl:          ttl,
		cleanupEvery: cleanupEvery,
		clock:        clock,
		gate:         gate,
		stopCh:       make(chan struct{}),
		loader:       perfdata.Load,
		logger:       zerolog.Nop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start launches periodic eviction of expired handles.
func (m *Manager) Start() {
	m.cleanupWG.Add(1)
	ticker := time.NewTicker(m.cleanupEvery)
	go func() {
		defer m.cleanupWG.Done()
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.EvictExpired()
			}
		}
	}()
}

// Close stops background cleanup and drops all handles.
func (m *Manager) Close(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	done := make(chan struct{})
	go func() { m.cleanupWG.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.handles {
		delete(m.handles, id)
		m.release()
	}
	return nil
}

// Open loads a dataset from path, registers a TTL-bearing handle, and
// returns its ID and the canonical path. Capacity is enforced via the gate.
func (m *Manager) Open(ctx context.Context, path, sheet string) (string, string, error) {
	if err := m.acquire(ctx); err != nil {
		return "", "", err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm", ".xltx", ".xltm", ".csv":
	default:
		m.release()
		return "", "", fmt.Errorf("%w: %s", perfdata.ErrUnsupportedFormat, ext)
	}

	if m.validator != nil {
		canonical, err := m.validator.ValidateOpenPath(path)
		if err != nil {
			m.release()
			return "", "", err
		}
		path = canonical
	}

	start := m.clock()
	tbl, err := m.loader(path, perfdata.LoadOptions{Sheet: sheet, MaxRows: m.maxRows})
	if err != nil {
		m.release()
		return "", "", err
	}
	id := m.register(path, sheet, tbl)
	st := tbl.Stats()
	m.logger.Info().
		Str("dataset_id", id).
		Str("path", path).
		Int("rows", st.KeptRows).
		Int("dropped_non_real", st.DroppedNonReal).
		Int("malformed_volumes", st.MalformedVolumes).
		Dur("elapsed", m.clock().Sub(start)).
		Msg("dataset opened")
	return id, path, nil
}

// GetOrOpenByPath returns the handle already serving path and sheet, or
// opens a new one.
func (m *Manager) GetOrOpenByPath(ctx context.Context, path, sheet string) (string, string, error) {
	canonical := path
	if m.validator != nil {
		c, err := m.validator.ValidateOpenPath(path)
		if err != nil {
			return "", "", err
		}
		canonical = c
	}
	if id, ok := m.lookup(canonical, sheet); ok {
		return id, canonical, nil
	}
	// concurrent opens of one source share a single load
	key := canonical + "\x00" + textnorm.Normalize(sheet)
	v, err, _ := m.opening.Do(key, func() (any, error) {
		if id, ok := m.lookup(canonical, sheet); ok {
			return id, nil
		}
		id, _, err := m.Open(ctx, path, sheet)
		return id, err
	})
	if err != nil {
		return "", "", err
	}
	return v.(string), canonical, nil
}

func (m *Manager) lookup(path, sheet string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, h := range m.handles {
		if h.Path == path && textnorm.Equal(h.Sheet, sheet) {
			return id, true
		}
	}
	return "", false
}

func (m *Manager) register(path, sheet string, tbl *perfdata.Table) string {
	id := uuid.NewString()
	loadedAt := m.clock()
	h := &Handle{
		ID:        id,
		Path:      path,
		Sheet:     sheet,
		Table:     tbl,
		LoadedAt:  loadedAt,
		ExpiresAt: loadedAt.Add(m.ttl),
	}
	m.mu.Lock()
	m.handles[id] = h
	m.mu.Unlock()
	return id
}

// Get returns the handle when present and refreshes its TTL.
func (m *Manager) Get(id string) (*Handle, bool) {
	m.mu.RLock()
	h, ok := m.handles[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	// idle timeout semantics
	now := m.clock()
	h.mu.Lock()
	h.ExpiresAt = now.Add(m.ttl)
	h.mu.Unlock()
	return h, true
}

// Table returns the table behind id.
func (m *Manager) Table(id string) (*perfdata.Table, error) {
	h, ok := m.Get(strings.TrimSpace(id))
	if !ok {
		return nil, ErrHandleNotFound
	}
	return h.Table, nil
}

// CloseHandle removes a handle by ID, releasing capacity via the gate.
func (m *Manager) CloseHandle(_ context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.handles[id]
	if ok {
		delete(m.handles, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrHandleNotFound
	}
	m.release()
	m.logger.Info().Str("dataset_id", id).Msg("dataset closed")
	return nil
}

// EvictExpired drops handles past their TTL.
func (m *Manager) EvictExpired() {
	now := m.clock()
	var expired []string

	m.mu.RLock()
	for id, h := range m.handles {
		if h.Expired(now) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		m.mu.Lock()
		_, ok := m.handles[id]
		delete(m.handles, id)
		m.mu.Unlock()
		if ok {
			m.release()
			m.logger.Info().Str("dataset_id", id).Msg("dataset evicted")
		}
	}
}

// Count returns the current number of cached handles.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handles)
}

// List returns handle snapshots ordered by load time.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.handles))
	for _, h := range m.handles {
		out = append(out, h.Info())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].LoadedAt.Before(out[j].LoadedAt) })
	return out
}

func (m *Manager) acquire(ctx context.Context) error {
	if m.gate == nil {
		return nil
	}
	return m.gate.AcquireDataset(ctx)
}

func (m *Manager) release() {
	if m.gate == nil {
		return
	}
	m.gate.ReleaseDataset()
}

// Info snapshots the handle.
func (h *Handle) Info() Info {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Info{
		ID:        h.ID,
		Path:      h.Path,
		Sheet:     h.Sheet,
		Rows:      h.Table.Len(),
		LoadedAt:  h.LoadedAt,
		ExpiresAt: h.ExpiresAt,
	}
}

// Expired reports whether the handle has reached its TTL.
func (h *Handle) Expired(now time.Time) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return now.After(h.ExpiresAt)
}
