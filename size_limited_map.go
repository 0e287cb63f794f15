package posthog

import "sync"

// sizeLimitedMap tracks which flag keys have already been reported for each
// subject. Once maxSize subjects are tracked the whole structure resets,
// trading occasional duplicate reports for a hard memory bound. This is a
// full reset on purpose, not LRU eviction.
type sizeLimitedMap struct {
	store   map[string]map[string]struct{}
	mu      sync.Mutex
	maxSize int
}

func newSizeLimitedMap(maxSize int) *sizeLimitedMap {
	return &sizeLimitedMap{
		store:   make(map[string]map[string]struct{}),
		maxSize: maxSize,
	}
}

// add records (id, key) and reports whether the pair was newly added.
func (s *sizeLimitedMap) add(id, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, ok := s.store[id]
	if !ok {
		if len(s.store) >= s.maxSize {
			s.store = make(map[string]map[string]struct{})
		}
		keys = make(map[string]struct{})
		s.store[id] = keys
	}
	if _, exists := keys[key]; exists {
		return false
	}
	keys[key] = struct{}{}
	return true
}

func (s *sizeLimitedMap) contains(id, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.store[id][key]
	return exists
}

func (s *sizeLimitedMap) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.store)
}
