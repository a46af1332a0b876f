// Package event implements the engine's synchronous typed publish/
// subscribe bus (spec.md §4's Event Bus, §6's event taxonomy). Dispatch
// is ordered per-listener by subscription order; a failing listener is
// recovered, logged, and does not abort emission — per spec.md §5's
// "a failing listener does not abort emission" guarantee.
package event

import "log/slog"

// Name is one of the event taxonomy's fixed event names (spec.md §6).
type Name string

const (
	EntitySpawned       Name = "entitySpawned"
	EntityStored        Name = "entityStored"
	EntityActivated     Name = "entityActivated"
	EntityDeactivated   Name = "entityDeactivated"
	EntityRemoved       Name = "entityRemoved"
	VariableChanged     Name = "variableChanged"
	ModifierApplied     Name = "modifierApplied"
	ModifierRemoved     Name = "modifierRemoved"
	TraitActivated      Name = "traitActivated"
	TraitDeactivated    Name = "traitDeactivated"
	CompoundActivated   Name = "compoundActivated"
	CompoundDeactivated Name = "compoundDeactivated"
	Tick                Name = "tick"
	AutoTickStarted     Name = "autoTickStarted"
	AutoTickStopped     Name = "autoTickStopped"
	SnapshotTaken       Name = "snapshotTaken"
	EntityRolledBack    Name = "entityRolledBack"
	SpawnContextUpdated Name = "spawnContextUpdated"
	PresetRegistered    Name = "presetRegistered"
	GroupCreated        Name = "groupCreated"
	AddedToGroup        Name = "addedToGroup"
	EntityAcquired      Name = "entityAcquired"
	EntityReleased      Name = "entityReleased"
	PoolCreated         Name = "poolCreated"
	PoolRemoved         Name = "poolRemoved"
	PoolConfigured      Name = "poolConfigured"
	PoolRulesUpdated    Name = "poolRulesUpdated"
	EntityMovedPool     Name = "entityMovedPool"
	StorageLimitReached Name = "storageLimitReached"
	ActionExecuted      Name = "actionExecuted"
)

// Payload carries whatever data a listener needs for a given event;
// callers type-assert the fields they expect for that Name.
type Payload map[string]any

// Listener receives one emitted event.
type Listener func(name Name, payload Payload)

// Unsubscribe removes a listener previously returned by Bus.On.
type Unsubscribe func()

type subscription struct {
	id     uint64
	fn     Listener
}

// Bus is a per-engine-instance event dispatcher. The zero value is not
// usable; use New.
type Bus struct {
	listeners map[Name][]subscription
	nextID    uint64
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{listeners: make(map[Name][]subscription)}
}

// On subscribes fn to name, returning a handle that removes it.
func (b *Bus) On(name Name, fn Listener) Unsubscribe {
	b.nextID++
	id := b.nextID
	b.listeners[name] = append(b.listeners[name], subscription{id: id, fn: fn})
	return func() { b.Off(name, id) }
}

// Off removes the subscription with the given id from name, a no-op if
// not found.
func (b *Bus) Off(name Name, id uint64) {
	subs := b.listeners[name]
	for i, s := range subs {
		if s.id == id {
			b.listeners[name] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Emit dispatches payload to every listener subscribed to name, in
// subscription order. A panicking listener is recovered and logged; it
// never prevents subsequent listeners from running.
func (b *Bus) Emit(name Name, payload Payload) {
	for _, s := range b.listeners[name] {
		b.dispatch(s, name, payload)
	}
}

func (b *Bus) dispatch(s subscription, name Name, payload Payload) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event listener panicked", "event", name, "recovered", r)
		}
	}()
	s.fn(name, payload)
}
