package recovery

import "sync"

// AlternativeRegistry maps a service to its fallback services in
// priority order. Populated at startup, read-heavy afterwards.
type AlternativeRegistry struct {
	mutex        sync.RWMutex
	alternatives map[string][]string
}

// NewAlternativeRegistry creates an empty registry
func NewAlternativeRegistry() *AlternativeRegistry {
	return &AlternativeRegistry{
		alternatives: make(map[string][]string),
	}
}

// Register sets the ordered alternatives for serviceID, replacing any
// previous entry
func (r *AlternativeRegistry) Register(serviceID string, alternatives ...string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	out := make([]string, len(alternatives))
	copy(out, alternatives)
	r.alternatives[serviceID] = out
}

// For returns the alternatives for serviceID in priority order, empty
// when none are registered
func (r *AlternativeRegistry) For(serviceID string) []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	alts := r.alternatives[serviceID]
	out := make([]string, len(alts))
	copy(out, alts)
	return out
}

// OfflineCapabilities is the set of services that can keep working
// without connectivity
type OfflineCapabilities struct {
	mutex    sync.RWMutex
	services map[string]bool
}

// NewOfflineCapabilities creates an empty capability set
func NewOfflineCapabilities() *OfflineCapabilities {
	return &OfflineCapabilities{
		services: make(map[string]bool),
	}
}

// Mark flags services as offline-capable
func (s *OfflineCapabilities) Mark(serviceIDs ...string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, id := range serviceIDs {
		s.services[id] = true
	}
}

// IsCapable reports whether serviceID can operate offline
func (s *OfflineCapabilities) IsCapable(serviceID string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.services[serviceID]
}
