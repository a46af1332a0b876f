// Package pool implements the Pool Manager (spec.md §4.10): named
// object pools with rule-based assignment sitting above the Entity
// Spawner for high-churn workloads. Grounded on the teacher's
// settlement population recycling (internal/world population.go's
// spawn/retire churn), generalized from one implicit pool to many named
// pools with glob/condition-scored routing.
package pool

import (
	"path"
	"sort"

	"github.com/google/uuid"

	"github.com/talgya/synthesis/internal/condition"
	"github.com/talgya/synthesis/internal/config"
	"github.com/talgya/synthesis/internal/entity"
	"github.com/talgya/synthesis/internal/event"
	"github.com/talgya/synthesis/internal/spawn"
	"github.com/talgya/synthesis/internal/store"
	"github.com/talgya/synthesis/internal/synerr"
)

const defaultPoolID = "default"

// Stats tracks one pool's lifetime and point-in-time counters.
type Stats struct {
	InUse         int
	Available     int
	TotalCreated  int
	TotalAcquired int
}

// Instance is one named pool: its static configuration, its idle
// entities, and its running stats.
type Instance struct {
	ID              string
	Name            string
	MaxSize         int
	PreWarm         int
	PreWarmPreset   string
	ShrinkThreshold float64
	ShrinkDelay     float64
	Rules           *config.PoolRules

	Entities     []*entity.Entity
	Stats        Stats
	lastActivity int64
}

// Manager owns every pool instance for one engine, routing acquire/
// release through the shared Spawner and Entity Store.
type Manager struct {
	cfg     *config.Store
	events  *event.Bus
	spawner *spawn.Spawner
	store   *store.Store
	pools   map[string]*Instance
}

// New returns a Manager with the mandatory "default" pool plus every
// named pool declared in cfg.
func New(cfg *config.Store, events *event.Bus, spawner *spawn.Spawner, st *store.Store) *Manager {
	m := &Manager{
		cfg: cfg, events: events, spawner: spawner, store: st,
		pools: make(map[string]*Instance),
	}
	m.pools[defaultPoolID] = &Instance{ID: defaultPoolID, Name: defaultPoolID}
	for _, spec := range cfg.Pools() {
		m.pools[spec.ID] = &Instance{
			ID: spec.ID, Name: spec.Name, MaxSize: spec.MaxSize,
			PreWarm: spec.PreWarm, PreWarmPreset: spec.PreWarmPreset,
			ShrinkThreshold: spec.ShrinkThreshold, ShrinkDelay: spec.ShrinkDelay,
			Rules: spec.Rules,
		}
	}
	return m
}

// CreatePool registers a new empty pool. Returns a ConfigError if id is
// already taken.
func (m *Manager) CreatePool(id, name string, maxSize int) error {
	if _, ok := m.pools[id]; ok {
		return &synerr.ConfigError{Reason: "pool id already exists: " + id}
	}
	m.pools[id] = &Instance{ID: id, Name: name, MaxSize: maxSize}
	if m.events != nil {
		m.events.Emit(event.PoolCreated, event.Payload{"poolId": id})
	}
	return nil
}

// RemovePool deletes a non-default pool, discarding its idle entities.
func (m *Manager) RemovePool(id string) error {
	if id == defaultPoolID {
		return &synerr.ConfigError{Reason: "the default pool cannot be removed"}
	}
	if _, ok := m.pools[id]; !ok {
		return &synerr.NotFound{Kind: "pool", ID: id}
	}
	delete(m.pools, id)
	if m.events != nil {
		m.events.Emit(event.PoolRemoved, event.Payload{"poolId": id})
	}
	return nil
}

// ConfigurePool updates a pool's static knobs in place.
func (m *Manager) ConfigurePool(id string, maxSize int, shrinkThreshold, shrinkDelay float64) error {
	p, ok := m.pools[id]
	if !ok {
		return &synerr.NotFound{Kind: "pool", ID: id}
	}
	p.MaxSize = maxSize
	p.ShrinkThreshold = shrinkThreshold
	p.ShrinkDelay = shrinkDelay
	if m.events != nil {
		m.events.Emit(event.PoolConfigured, event.Payload{"poolId": id})
	}
	return nil
}

// SetPoolRules replaces a pool's rule-based assignment configuration.
func (m *Manager) SetPoolRules(id string, rules *config.PoolRules) error {
	p, ok := m.pools[id]
	if !ok {
		return &synerr.NotFound{Kind: "pool", ID: id}
	}
	p.Rules = rules
	if m.events != nil {
		m.events.Emit(event.PoolRulesUpdated, event.Payload{"poolId": id})
	}
	return nil
}

// GetPoolStats returns one pool's current counters.
func (m *Manager) GetPoolStats(id string) (Stats, bool) {
	p, ok := m.pools[id]
	if !ok {
		return Stats{}, false
	}
	st := p.Stats
	st.Available = len(p.Entities)
	return st, true
}

// GetAllPoolStats returns every pool's stats keyed by id.
func (m *Manager) GetAllPoolStats() map[string]Stats {
	out := make(map[string]Stats, len(m.pools))
	for id, p := range m.pools {
		st := p.Stats
		st.Available = len(p.Entities)
		out[id] = st
	}
	return out
}

// ListPools returns every registered pool id.
func (m *Manager) ListPools() []string {
	out := make([]string, 0, len(m.pools))
	for id := range m.pools {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ClearPool discards every idle entity in a pool without touching
// in-use ones.
func (m *Manager) ClearPool(id string) error {
	p, ok := m.pools[id]
	if !ok {
		return &synerr.NotFound{Kind: "pool", ID: id}
	}
	p.Entities = nil
	return nil
}

// PreWarmPool spawns up to n idle entities into a pool ahead of demand.
func (m *Manager) PreWarmPool(id string, n int, now int64) error {
	p, ok := m.pools[id]
	if !ok {
		return &synerr.NotFound{Kind: "pool", ID: id}
	}
	for i := 0; i < n; i++ {
		ent, err := m.spawnNew(p.PreWarmPreset, nil, now)
		if err != nil {
			return err
		}
		ent.PoolID = p.ID
		p.Entities = append(p.Entities, ent)
		p.Stats.TotalCreated++
	}
	return nil
}

func (m *Manager) spawnNew(presetID string, overrides map[string]float64, now int64) (*entity.Entity, error) {
	id := uuid.NewString()
	if presetID != "" {
		return m.spawner.FromPreset(presetID, id, now, overrides)
	}
	return m.spawner.Generate(id, now, overrides)
}

// Acquire produces an entity ready for use, preferring a pool's idle
// stock over spawning fresh (spec.md §4.10 acquire). targetPoolID
// pins the pool explicitly; an empty string lets the pool be decided
// later by rule-based reassignment once the entity exists.
func (m *Manager) Acquire(presetID string, overrides map[string]float64, targetPoolID string, now int64) (*entity.Entity, error) {
	poolID := targetPoolID
	if poolID == "" {
		poolID = defaultPoolID
	}
	p, ok := m.pools[poolID]
	if !ok {
		return nil, &synerr.NotFound{Kind: "pool", ID: poolID}
	}

	var ent *entity.Entity
	var err error
	if n := len(p.Entities); n > 0 {
		ent, err = m.resetPooled(p, presetID, overrides, now)
	} else {
		ent, err = m.spawnNew(presetID, overrides, now)
		p.Stats.TotalCreated++
	}
	if err != nil {
		return nil, err
	}

	if targetPoolID == "" {
		if routed := m.getPoolForEntity(ent); routed != "" && routed != poolID {
			p = m.pools[routed]
			poolID = routed
		}
	}
	ent.PoolID = poolID

	if err := m.store.Store(ent); err != nil {
		return nil, err
	}
	if err := m.store.Activate(ent.ID); err != nil {
		return nil, err
	}
	p.Stats.InUse++
	p.Stats.TotalAcquired++
	p.lastActivity = now
	if m.events != nil {
		m.events.Emit(event.EntityAcquired, event.Payload{"entityId": ent.ID, "poolId": poolID})
	}
	return ent, nil
}

// resetPooled pops the pool's newest idle entity, discards it, and
// spawns a fresh replacement in its place: new uuid id and createdAt,
// re-rolled attributes, reset variables, freshly initialized layers,
// forced initial traits, and a fresh cascade pass, keeping the popped
// entity's pool id (spec.md §4.10 acquire step 2). totalCreated is left
// untouched (step 3 is the only path that increments it).
func (m *Manager) resetPooled(p *Instance, presetID string, overrides map[string]float64, now int64) (*entity.Entity, error) {
	n := len(p.Entities)
	old := p.Entities[n-1]
	p.Entities = p.Entities[:n-1]

	fresh, err := m.spawnNew(presetID, overrides, now)
	if err != nil {
		return nil, err
	}
	fresh.PoolID = old.PoolID
	return fresh, nil
}

// Release deactivates an entity and, if its pool has room, clears its
// transient state and returns it to that pool's idle stock; otherwise
// the entity is dropped entirely (spec.md §4.10 release).
func (m *Manager) Release(id string, now int64) error {
	ent, ok := m.store.Get(id)
	if !ok {
		return &synerr.NotFound{Kind: "entity", ID: id}
	}
	poolID := ent.PoolID
	if poolID == "" {
		poolID = defaultPoolID
	}
	p, ok := m.pools[poolID]
	if !ok {
		p = m.pools[defaultPoolID]
	}

	m.store.Deactivate(id)
	m.store.Remove(id)
	if p.Stats.InUse > 0 {
		p.Stats.InUse--
	}
	p.lastActivity = now

	toPool := p.MaxSize <= 0 || len(p.Entities) < p.MaxSize
	if toPool {
		ent.Layers = make(map[string]*entity.LayerState)
		ent.Modifiers = nil
		ent.ModifierStates = make(map[string]*entity.ModState)
		ent.Compounds = nil
		ent.Derived = make(map[string]float64)
		ent.Internal.Log = nil
		p.Entities = append(p.Entities, ent)
	}

	if m.events != nil {
		m.events.Emit(event.EntityReleased, event.Payload{"entityId": id, "poolId": poolID, "recycled": toPool})
	}
	m.maybeShrink(p, now)
	return nil
}

// MoveToPool reassigns an entity held in the store from its current
// pool (idle pooled entities are not in the store and are not found) to targetPoolID without releasing or reacquiring it:
// debits the source pool's inUse counter, credits the destination's,
// and updates entity.PoolID in place.
func (m *Manager) MoveToPool(id, targetPoolID string, now int64) error {
	ent, ok := m.store.Get(id)
	if !ok {
		return &synerr.NotFound{Kind: "entity", ID: id}
	}
	target, ok := m.pools[targetPoolID]
	if !ok {
		return &synerr.NotFound{Kind: "pool", ID: targetPoolID}
	}

	fromID := ent.PoolID
	if fromID == "" {
		fromID = defaultPoolID
	}
	if from, ok := m.pools[fromID]; ok && from.Stats.InUse > 0 {
		from.Stats.InUse--
		from.lastActivity = now
	}

	ent.PoolID = targetPoolID
	target.Stats.InUse++
	target.lastActivity = now

	if m.events != nil {
		m.events.Emit(event.EntityMovedPool, event.Payload{"entityId": id, "fromPoolId": fromID, "toPoolId": targetPoolID})
	}
	return nil
}

// maybeShrink trims a pool's idle stock to max(10, available/2) when
// utilization is below ShrinkThreshold and more than 10 entities are
// idle. It runs right after each Release; ShrinkThreshold and
// ShrinkDelay must both be positive to enable it, but no waiting period
// is applied and the time since the pool's last activity is not checked.
func (m *Manager) maybeShrink(p *Instance, now int64) {
	if p.ShrinkThreshold <= 0 || p.ShrinkDelay <= 0 {
		return
	}
	available := len(p.Entities)
	total := available + p.Stats.InUse
	if total == 0 || available <= 10 {
		return
	}
	if float64(p.Stats.InUse)/float64(total) >= p.ShrinkThreshold {
		return
	}
	target := available / 2
	if target < 10 {
		target = 10
	}
	p.Entities = p.Entities[:target]
}

// getPoolForEntity scores every rule-bearing pool's conditions against
// ent and returns the id of the best match (highest rule priority,
// ties broken by score), or "" if nothing matched.
func (m *Manager) getPoolForEntity(ent *entity.Entity) string {
	bestID := ""
	bestPriority := 0
	bestScore := 0.0
	first := true
	for id, p := range m.pools {
		if id == defaultPoolID || p.Rules == nil {
			continue
		}
		score := 0.0
		for _, cond := range p.Rules.Conditions {
			if conditionSatisfied(ent, cond) {
				score += cond.Weight
			}
		}
		if score <= 0 {
			continue
		}
		if first || p.Rules.Priority > bestPriority || (p.Rules.Priority == bestPriority && score > bestScore) {
			bestID, bestPriority, bestScore, first = id, p.Rules.Priority, score, false
		}
	}
	return bestID
}

func conditionSatisfied(ent *entity.Entity, cond config.PoolCondition) bool {
	switch cond.Source {
	case "preset":
		ok, _ := path.Match(cond.Match, ent.PresetID)
		return ok
	case "trait":
		return ent.HasTrait(cond.Match)
	case "modifier":
		return ent.HasModifier(cond.Match)
	case "compound":
		return ent.HasCompound(cond.Match)
	case "attribute":
		v, ok := ent.Attributes[cond.Match]
		if !ok {
			return false
		}
		return compareOp(v, condition.Operator(cond.Operator), cond.Value)
	case "variable":
		vs, ok := ent.Variables[cond.Match]
		if !ok {
			return false
		}
		return compareOp(vs.Value, condition.Operator(cond.Operator), cond.Value)
	default:
		return false
	}
}

func compareOp(v float64, op condition.Operator, target float64) bool {
	switch op {
	case condition.OpLT:
		return v < target
	case condition.OpLTE:
		return v <= target
	case condition.OpGT:
		return v > target
	case condition.OpGTE:
		return v >= target
	case condition.OpEQ:
		return v == target
	case condition.OpNEQ:
		return v != target
	default:
		return false
	}
}
