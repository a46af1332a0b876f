// Package store implements the Entity Store, Groups, and History
// (spec.md §4.9): stored/active index views over the live entity set,
// named groups, and a per-entity snapshot ring supporting rollback.
// Grounded on the teacher's in-memory registry pattern (internal/world
// population tracking), generalized from a single settlement roster to
// disjoint stored/active views plus arbitrary named groups.
package store

import (
	"github.com/talgya/synthesis/internal/cascade"
	"github.com/talgya/synthesis/internal/entity"
	"github.com/talgya/synthesis/internal/event"
	"github.com/talgya/synthesis/internal/synerr"
)

// Snapshot is a deep clone of an entity's mutable, cascade-relevant
// fields, captured at a point in time for later rollback.
type Snapshot struct {
	Timestamp int64
	Attributes map[string]float64
	Variables  map[string]entity.VarState
	Contexts   map[string]any
	Layers     map[string][]string
	Modifiers  []string
	Compounds  []string
	Derived    map[string]float64
}

// Store holds every entity this engine instance knows about, keyed by
// id, plus the stored/active views and group/history bookkeeping.
type Store struct {
	cascade     *cascade.Runner
	events      *event.Bus
	maxEntities int

	entities map[string]*entity.Entity
	stored   map[string]bool
	active   map[string]bool
	groups   map[string]map[string]bool
	history  map[string][]Snapshot

	maxHistory int
}

// New returns an empty Store capped at maxEntities (0 means unbounded),
// keeping up to maxHistory snapshots per entity (0 uses the spec
// default of 50).
func New(runner *cascade.Runner, events *event.Bus, maxEntities, maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = 50
	}
	return &Store{
		cascade:     runner,
		events:      events,
		maxEntities: maxEntities,
		entities:    make(map[string]*entity.Entity),
		stored:      make(map[string]bool),
		active:      make(map[string]bool),
		groups:      make(map[string]map[string]bool),
		history:     make(map[string][]Snapshot),
		maxHistory:  maxHistory,
	}
}

// Store inserts ent into the stored view, auto-joining the synthetic
// config:<configId> group. Rejects with CapacityExceeded (and emits
// storageLimitReached) once stored.size reaches maxEntities.
func (s *Store) Store(ent *entity.Entity) error {
	if s.maxEntities > 0 && len(s.stored) >= s.maxEntities {
		if s.events != nil {
			s.events.Emit(event.StorageLimitReached, event.Payload{"limit": s.maxEntities})
		}
		return &synerr.CapacityExceeded{Resource: "entities", Limit: s.maxEntities}
	}
	s.entities[ent.ID] = ent
	s.stored[ent.ID] = true
	if ent.ConfigID != "" {
		s.AddToGroup("config:"+ent.ConfigID, ent.ID)
	}
	if s.events != nil {
		s.events.Emit(event.EntityStored, event.Payload{"entityId": ent.ID})
	}
	return nil
}

// Get returns the entity with id, if stored.
func (s *Store) Get(id string) (*entity.Entity, bool) {
	e, ok := s.entities[id]
	return e, ok
}

// Activate inserts id into the active view.
func (s *Store) Activate(id string) error {
	if _, ok := s.entities[id]; !ok {
		return &synerr.NotFound{Kind: "entity", ID: id}
	}
	s.active[id] = true
	if s.events != nil {
		s.events.Emit(event.EntityActivated, event.Payload{"entityId": id})
	}
	return nil
}

// Deactivate removes id from the active view without dropping it from
// storage.
func (s *Store) Deactivate(id string) {
	delete(s.active, id)
	if s.events != nil {
		s.events.Emit(event.EntityDeactivated, event.Payload{"entityId": id})
	}
}

// IsActive reports whether id is currently in the active view.
func (s *Store) IsActive(id string) bool { return s.active[id] }

// Remove drops id from stored, active, history, and every group.
func (s *Store) Remove(id string) {
	delete(s.entities, id)
	delete(s.stored, id)
	delete(s.active, id)
	delete(s.history, id)
	for _, members := range s.groups {
		delete(members, id)
	}
	if s.events != nil {
		s.events.Emit(event.EntityRemoved, event.Payload{"entityId": id})
	}
}

// All returns every stored entity, in no particular order.
func (s *Store) All() []*entity.Entity {
	out := make([]*entity.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	return out
}

// --- groups ---

// CreateGroup ensures an empty named group exists.
func (s *Store) CreateGroup(name string) {
	if _, ok := s.groups[name]; !ok {
		s.groups[name] = make(map[string]bool)
		if s.events != nil {
			s.events.Emit(event.GroupCreated, event.Payload{"group": name})
		}
	}
}

// AddToGroup adds id to a named group, creating it if absent.
func (s *Store) AddToGroup(name, id string) {
	s.CreateGroup(name)
	s.groups[name][id] = true
	if s.events != nil {
		s.events.Emit(event.AddedToGroup, event.Payload{"group": name, "entityId": id})
	}
}

// RemoveFromGroup removes id from a named group, a no-op if either is
// absent.
func (s *Store) RemoveFromGroup(name, id string) {
	if members, ok := s.groups[name]; ok {
		delete(members, id)
	}
}

// GetGroup returns the ids currently in a named group.
func (s *Store) GetGroup(name string) []string {
	members := s.groups[name]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// ListGroups returns every known group name.
func (s *Store) ListGroups() []string {
	out := make([]string, 0, len(s.groups))
	for name := range s.groups {
		out = append(out, name)
	}
	return out
}

// DeleteGroup removes a named group entirely.
func (s *Store) DeleteGroup(name string) { delete(s.groups, name) }
