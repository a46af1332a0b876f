package store

import (
	"github.com/talgya/synthesis/internal/entity"
	"github.com/talgya/synthesis/internal/event"
)

// Snapshot deep-clones id's cascade-relevant fields and pushes the
// result onto its history ring, evicting the oldest entry past
// maxHistory (spec.md §4.9).
func (s *Store) Snapshot(id string, timestamp int64) {
	e, ok := s.entities[id]
	if !ok {
		return
	}
	snap := Snapshot{
		Timestamp:  timestamp,
		Attributes: cloneFloatMap(e.Attributes),
		Variables:  cloneVarMap(e.Variables),
		Contexts:   cloneAnyMap(e.Contexts),
		Layers:     cloneLayerMap(e.Layers),
		Modifiers:  append([]string(nil), e.Modifiers...),
		Compounds:  append([]string(nil), e.Compounds...),
		Derived:    cloneFloatMap(e.Derived),
	}
	ring := append(s.history[id], snap)
	if len(ring) > s.maxHistory {
		ring = ring[len(ring)-s.maxHistory:]
	}
	s.history[id] = ring
	if s.events != nil {
		s.events.Emit(event.SnapshotTaken, event.Payload{"entityId": id, "timestamp": timestamp})
	}
}

// GetHistory returns id's snapshot ring, oldest first.
func (s *Store) GetHistory(id string) []Snapshot { return s.history[id] }

// Rollback restores the newest snapshot at or before t onto id's
// entity, re-deriving variable rates via cascade rather than restoring
// them verbatim (spec.md §4.9). Returns false if no such snapshot
// exists.
func (s *Store) Rollback(id string, t int64) bool {
	e, ok := s.entities[id]
	if !ok {
		return false
	}
	var best *Snapshot
	for i := range s.history[id] {
		snap := &s.history[id][i]
		if snap.Timestamp <= t && (best == nil || snap.Timestamp > best.Timestamp) {
			best = snap
		}
	}
	if best == nil {
		return false
	}

	e.Attributes = cloneFloatMap(best.Attributes)
	e.Contexts = cloneAnyMap(best.Contexts)
	e.Modifiers = append([]string(nil), best.Modifiers...)
	e.Compounds = append([]string(nil), best.Compounds...)
	e.Derived = cloneFloatMap(best.Derived)

	e.Variables = make(map[string]*entity.VarState, len(best.Variables))
	for id, vs := range best.Variables {
		v := vs
		e.Variables[id] = &v
	}
	e.Layers = make(map[string]*entity.LayerState, len(best.Layers))
	for id, active := range best.Layers {
		e.Layers[id] = &entity.LayerState{Active: append([]string(nil), active...)}
	}

	s.cascade.Run(e)
	if s.events != nil {
		s.events.Emit(event.EntityRolledBack, event.Payload{"entityId": id, "timestamp": t})
	}
	return true
}

func cloneFloatMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneAnyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneVarMap(m map[string]*entity.VarState) map[string]entity.VarState {
	out := make(map[string]entity.VarState, len(m))
	for k, v := range m {
		out[k] = *v
	}
	return out
}

func cloneLayerMap(m map[string]*entity.LayerState) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v.Active...)
	}
	return out
}
