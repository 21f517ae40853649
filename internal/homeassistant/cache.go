package homeassistant

import (
	"sort"
	"sync"
)

// stateCache holds the latest known state of every entity and the
// per-entity change listeners.
type stateCache struct {
	mu     sync.RWMutex
	states map[string]State

	listenerMu sync.RWMutex
	listeners  map[string]map[uint64]func(string)
	nextID     uint64
}

func newStateCache() *stateCache {
	return &stateCache{
		states:    make(map[string]State),
		listeners: make(map[string]map[uint64]func(string)),
	}
}

func (s *stateCache) get(entityID string) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[entityID]
	return st, ok
}

func (s *stateCache) set(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.EntityID] = st
}

func (s *stateCache) remove(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, entityID)
}

func (s *stateCache) replace(states []State) {
	fresh := make(map[string]State, len(states))
	for _, st := range states {
		if st.EntityID != "" {
			fresh[st.EntityID] = st
		}
	}

	s.mu.Lock()
	s.states = fresh
	s.mu.Unlock()
}

func (s *stateCache) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

func (s *stateCache) entityIDs(domains ...string) []string {
	want := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		want[d] = struct{}{}
	}

	s.mu.RLock()
	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		if len(want) > 0 {
			if _, ok := want[Domain(id)]; !ok {
				continue
			}
		}
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// withAttribute lists entities whose string attribute key equals value, sorted.
func (s *stateCache) withAttribute(key, value string) []string {
	s.mu.RLock()
	var ids []string
	for id, st := range s.states {
		if v, ok := st.Attributes[key].(string); ok && v == value {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

func (s *stateCache) track(entityIDs []string, handler func(string)) func() {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	id := s.nextID
	s.nextID++

	tracked := make([]string, 0, len(entityIDs))
	for _, entityID := range entityIDs {
		byID, ok := s.listeners[entityID]
		if !ok {
			byID = make(map[uint64]func(string))
			s.listeners[entityID] = byID
		}
		if _, dup := byID[id]; dup {
			continue
		}
		byID[id] = handler
		tracked = append(tracked, entityID)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenerMu.Lock()
			defer s.listenerMu.Unlock()
			for _, entityID := range tracked {
				delete(s.listeners[entityID], id)
				if len(s.listeners[entityID]) == 0 {
					delete(s.listeners, entityID)
				}
			}
		})
	}
}

// notify calls every listener registered for entityID.
func (s *stateCache) notify(entityID string) {
	s.listenerMu.RLock()
	handlers := make([]func(string), 0, len(s.listeners[entityID]))
	for _, h := range s.listeners[entityID] {
		handlers = append(handlers, h)
	}
	s.listenerMu.RUnlock()

	for _, h := range handlers {
		h(entityID)
	}
}

// notifyAll calls every listener once per tracked entity.
func (s *stateCache) notifyAll() {
	s.listenerMu.RLock()
	ids := make([]string, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	s.listenerMu.RUnlock()

	sort.Strings(ids)
	for _, id := range ids {
		s.notify(id)
	}
}
