// Package entity defines the stateful record the engine evolves over
// ticks: the Entity struct and its sub-states, exactly as shaped in
// spec.md §3.
package entity

import "github.com/talgya/synthesis/internal/node"

// VarState is the runtime state of one variable on an entity.
type VarState struct {
	Value       float64
	BaseRate    float64
	CurrentRate float64
	Min, Max    float64
	ChangeMode  node.ChangeMode
	Direction   node.Direction
}

// ModState is the runtime state of one applied modifier.
type ModState struct {
	AppliedAt      int64 // host-monotonic milliseconds
	Stacks         int
	IsStatic       bool
	ExpiresAt      *int64 // set only for timed, non-static modifiers
	TicksRemaining *int   // set only for tick-counted modifiers
}

// LayerState is the runtime state of one layer on an entity.
type LayerState struct {
	Active  []string
	LastRoll int64
}

// ActionState is the runtime state of one action on an entity.
type ActionState struct {
	CooldownRemaining float64
}

// Entity is a generated, stateful record evolving over ticks.
type Entity struct {
	ID        string
	ConfigID  string
	CreatedAt int64
	PresetID  string // empty if spawned via generate(), not a preset

	Attributes map[string]float64
	Variables  map[string]*VarState
	Contexts   map[string]any
	Layers     map[string]*LayerState

	Modifiers      []string
	ModifierStates map[string]*ModState

	Compounds []string
	Derived   map[string]float64
	Actions   map[string]*ActionState

	PoolID string

	Internal InternalState
}

// InternalState holds bookkeeping fields not part of the public data
// model proper: a bounded log of lifecycle notes and the last tick this
// entity observed, used by the Runtime Tick Loop to compute Δs.
type InternalState struct {
	Log      []string
	LastTick int64
}

// New allocates an entity with empty collections, ready for the
// Spawner to populate (spec.md §4.5 step 1).
func New(id, configID string, createdAt int64) *Entity {
	return &Entity{
		ID:             id,
		ConfigID:       configID,
		CreatedAt:      createdAt,
		Attributes:     make(map[string]float64),
		Variables:      make(map[string]*VarState),
		Contexts:       make(map[string]any),
		Layers:         make(map[string]*LayerState),
		ModifierStates: make(map[string]*ModState),
		Derived:        make(map[string]float64),
		Actions:        make(map[string]*ActionState),
	}
}

// HasTrait reports whether traitID is active in any layer.
func (e *Entity) HasTrait(traitID string) bool {
	for _, ls := range e.Layers {
		for _, id := range ls.Active {
			if id == traitID {
				return true
			}
		}
	}
	return false
}

// HasModifier reports whether modID is currently applied.
func (e *Entity) HasModifier(modID string) bool {
	for _, id := range e.Modifiers {
		if id == modID {
			return true
		}
	}
	return false
}

// HasCompound reports whether compoundID has currently emerged.
func (e *Entity) HasCompound(compoundID string) bool {
	for _, id := range e.Compounds {
		if id == compoundID {
			return true
		}
	}
	return false
}

// IsActive reports membership for any of the three "active" kinds in a
// single call, used by condition.ValueSource implementations.
func (e *Entity) IsActive(id string) bool {
	return e.HasTrait(id) || e.HasModifier(id) || e.HasCompound(id)
}

func (e *Entity) removeFromSlice(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// RemoveModifier splices modID out of Modifiers and ModifierStates.
func (e *Entity) RemoveModifier(modID string) {
	e.Modifiers = e.removeFromSlice(e.Modifiers, modID)
	delete(e.ModifierStates, modID)
}

// RemoveCompound splices compoundID out of Compounds.
func (e *Entity) RemoveCompound(compoundID string) {
	e.Compounds = e.removeFromSlice(e.Compounds, compoundID)
}

// RemoveTraitFromLayer splices traitID out of a layer's active list.
func (e *Entity) RemoveTraitFromLayer(layerID, traitID string) {
	ls, ok := e.Layers[layerID]
	if !ok {
		return
	}
	ls.Active = e.removeFromSlice(ls.Active, traitID)
}

// Log appends a bounded lifecycle note, mirroring the teacher's Memory
// ring (internal/agents/memory.go) but sized for engine diagnostics
// rather than narrative recall: capped at 200 entries, oldest dropped.
func (e *Entity) Log(note string) {
	const cap = 200
	e.Internal.Log = append(e.Internal.Log, note)
	if len(e.Internal.Log) > cap {
		e.Internal.Log = e.Internal.Log[len(e.Internal.Log)-cap:]
	}
}
