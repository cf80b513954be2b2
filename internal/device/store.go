package device

import (
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Store.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ChangeFunc is invoked after every non-empty merge with a fresh snapshot.
// It is called synchronously, outside the per-device lock; implementations
// should not block for extended periods.
type ChangeFunc func(deviceID string, snapshot Snapshot)

// Store is the canonical in-memory representation of all known devices.
//
// Mutations run through Apply, which serializes merges per device. The
// surrounding map is guarded separately so updates to one device never
// block reads of another.
//
// All public methods are thread-safe.
type Store struct {
	mu      sync.RWMutex
	devices map[string]*deviceEntry

	degradedMu sync.RWMutex
	degraded   bool

	changeMu sync.RWMutex
	onChange ChangeFunc

	logger Logger
}

// deviceEntry pairs a device with its single-writer lock.
type deviceEntry struct {
	mu  sync.Mutex
	dev *Device
}

// NewStore creates an empty device store.
func NewStore() *Store {
	return &Store{
		devices: make(map[string]*deviceEntry),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// OnChange registers the callback invoked after every non-empty merge.
func (s *Store) OnChange(fn ChangeFunc) {
	s.changeMu.Lock()
	s.onChange = fn
	s.changeMu.Unlock()
}

// Ensure creates the device if it is not yet known.
// It reports whether the device was created by this call.
func (s *Store) Ensure(id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[id]; ok {
		return false, nil
	}

	s.devices[id] = &deviceEntry{dev: &Device{ID: id, State: State{
		OperatingMode: ModeUnknown,
		FanMode:       FanUnknown,
	}}}
	s.logger.Info("device created", "id", id)
	return true, nil
}

// Known reports whether the device identifier is present in the store.
func (s *Store) Known(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.devices[id]
	return ok
}

// IDs returns the identifiers of all known devices, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of known devices.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}

// Apply runs a merge function against the device under its lock.
//
// The merge function returns the field paths it changed; Apply fires the
// change callback (with a fresh snapshot, outside the lock) only when that
// set is non-empty. Callers must do all decoding and normalization before
// calling Apply so the critical section stays short.
//
// Returns ErrDeviceNotFound for unknown identifiers.
func (s *Store) Apply(id string, merge func(*Device) []string) ([]string, error) {
	entry, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	entry.mu.Lock()
	changed := merge(entry.dev)
	var snap Snapshot
	if len(changed) > 0 {
		entry.dev.StateUpdatedAt = time.Now().UTC()
		snap = s.snapshotLocked(entry.dev)
	}
	entry.mu.Unlock()

	if len(changed) == 0 {
		return nil, nil
	}

	sort.Strings(changed)
	s.notify(id, snap)
	return changed, nil
}

// Snapshot returns a deep-copied view of the device with derived
// attributes recomputed.
func (s *Store) Snapshot(id string) (Snapshot, error) {
	entry, err := s.entry(id)
	if err != nil {
		return Snapshot{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return s.snapshotLocked(entry.dev), nil
}

// Snapshots returns snapshots for all known devices, ordered by ID.
func (s *Store) Snapshots() []Snapshot {
	ids := s.IDs()

	snaps := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		if snap, err := s.Snapshot(id); err == nil {
			snaps = append(snaps, snap)
		}
	}
	return snaps
}

// SetDegraded flips the staleness flag carried on snapshots. The flag is
// set when the transport has failed past its threshold and cleared on the
// next successful connection.
func (s *Store) SetDegraded(degraded bool) {
	s.degradedMu.Lock()
	changed := s.degraded != degraded
	s.degraded = degraded
	s.degradedMu.Unlock()

	if changed {
		s.logger.Warn("data staleness flag changed", "stale", degraded)
	}
}

// Degraded returns the current staleness flag.
func (s *Store) Degraded() bool {
	s.degradedMu.RLock()
	defer s.degradedMu.RUnlock()
	return s.degraded
}

func (s *Store) entry(id string) (*deviceEntry, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	s.mu.RLock()
	entry, ok := s.devices[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrDeviceNotFound
	}
	return entry, nil
}

// snapshotLocked builds a snapshot. The caller must hold the entry lock.
func (s *Store) snapshotLocked(dev *Device) Snapshot {
	cp := dev.Clone()

	return Snapshot{
		ID:           cp.ID,
		Registration: cp.Registration,
		Info:         cp.Info,
		Capabilities: cp.Capabilities,
		State:        cp.State,
		Derived:      computeDerived(cp.State, cp.Capabilities),
		Stale:        s.Degraded(),
		UpdatedAt:    cp.StateUpdatedAt,
	}
}

func (s *Store) notify(id string, snap Snapshot) {
	s.changeMu.RLock()
	fn := s.onChange
	s.changeMu.RUnlock()

	if fn != nil {
		fn(id, snap)
	}
}
