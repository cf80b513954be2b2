package command

import "sync"

// pendingWrite tracks one in-flight command until it is acked, confirmed
// by a server update, superseded, or rolled back.
type pendingWrite struct {
	id       string
	deviceID string
	paths    []string

	confirmed   chan struct{}
	confirmOnce sync.Once
}

// confirm marks the write as covered by an authoritative server update.
func (w *pendingWrite) confirm() {
	w.confirmOnce.Do(func() { close(w.confirmed) })
}

// pendingSet indexes in-flight writes per device and field path. A newer
// write on the same path supersedes the older entry: the old command can
// no longer roll that field back.
type pendingSet struct {
	mu       sync.Mutex
	byDevice map[string]map[string]*pendingWrite
}

func newPendingSet() *pendingSet {
	return &pendingSet{byDevice: make(map[string]map[string]*pendingWrite)}
}

func (s *pendingSet) register(w *pendingWrite) {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := s.byDevice[w.deviceID]
	if paths == nil {
		paths = make(map[string]*pendingWrite)
		s.byDevice[w.deviceID] = paths
	}
	for _, path := range w.paths {
		paths[path] = w
	}
}

// remove drops the write's entries, skipping any path a newer write has
// taken over.
func (s *pendingSet) remove(w *pendingWrite) {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := s.byDevice[w.deviceID]
	for _, path := range w.paths {
		if paths[path] == w {
			delete(paths, path)
		}
	}
	if len(paths) == 0 {
		delete(s.byDevice, w.deviceID)
	}
}

// owns reports whether the write still holds at least one of its paths.
// A write that owns nothing has been confirmed or superseded and must not
// roll back.
func (s *pendingSet) owns(w *pendingWrite) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := s.byDevice[w.deviceID]
	for _, path := range w.paths {
		if paths[path] == w {
			return true
		}
	}
	return false
}

// confirmPaths retires every pending write covering one of the updated
// paths. The server value is authoritative; the optimistic value must not
// outlive it.
func (s *pendingSet) confirmPaths(deviceID string, updated []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := s.byDevice[deviceID]
	if paths == nil {
		return
	}

	for _, path := range updated {
		w, ok := paths[path]
		if !ok {
			continue
		}
		w.confirm()
		for _, p := range w.paths {
			if paths[p] == w {
				delete(paths, p)
			}
		}
	}
	if len(paths) == 0 {
		delete(s.byDevice, deviceID)
	}
}
