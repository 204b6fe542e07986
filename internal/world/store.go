package world

import (
	"sync"

	"github.com/pscheid92/worldsync/internal/adapter/metrics"
	"github.com/pscheid92/worldsync/internal/domain"
)

const (
	opUpdate = "update"
	opSet    = "set"
	opClear  = "clear"
)

// Store is the in-memory World. The zero value is not usable; call NewStore.
type Store struct {
	mu       sync.RWMutex
	entities domain.World
	notifier domain.Notifier
	metrics  *metrics.WorldMetrics
}

// NewStore creates an empty world. notifier receives the resolved state of
// entities replaced via Set and may be nil.
func NewStore(notifier domain.Notifier, m *metrics.WorldMetrics) *Store {
	return &Store{
		entities: make(domain.World),
		notifier: notifier,
		metrics:  m,
	}
}

// Update merges a single property into entity, creating the entity if absent.
func (s *Store) Update(entity, key string, value any) {
	s.mu.Lock()
	s.put(entity, key, value)
	count := len(s.entities)
	s.mu.Unlock()

	s.record(opUpdate, count)
}

// Merge applies every property in props as if by Update, under one lock
// acquisition, and returns the resolved property map.
func (s *Store) Merge(entity string, props domain.Properties) domain.Properties {
	s.mu.Lock()
	for key, value := range props {
		s.put(entity, key, value)
	}
	resolved := s.entities[entity].Clone()
	count := len(s.entities)
	s.mu.Unlock()

	if len(props) > 0 {
		s.record(opUpdate, count)
	}
	return resolved
}

// Set replaces the whole property map of entity and notifies with the new
// state. data is copied; later changes by the caller are not observed.
func (s *Store) Set(entity string, data domain.Properties) {
	props := data.Clone()

	s.mu.Lock()
	s.entities[entity] = props
	count := len(s.entities)
	s.mu.Unlock()

	s.record(opSet, count)
	if s.notifier != nil {
		s.notifier.NotifyEntity(entity, props.Clone())
	}
}

// Clear empties the world. Subscribers are not notified.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entities = make(domain.World)
	s.mu.Unlock()

	s.record(opClear, 0)
}

// Get returns a copy of the entity's properties, or an empty map when the
// entity does not exist.
func (s *Store) Get(entity string) domain.Properties {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entities[entity].Clone()
}

// Snapshot returns a copy of the whole world.
func (s *Store) Snapshot() domain.World {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entities.Clone()
}

// Len returns the number of entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// put must be called with mu held.
func (s *Store) put(entity, key string, value any) {
	props, ok := s.entities[entity]
	if !ok {
		props = make(domain.Properties)
		s.entities[entity] = props
	}
	props[key] = value
}

func (s *Store) record(op string, entities int) {
	if s.metrics == nil {
		return
	}
	s.metrics.Mutations.WithLabelValues(op).Inc()
	s.metrics.Entities.Set(float64(entities))
}
