// Package engine composes the Config Store, Entity Spawner, Cascade
// Engine, Runtime Tick Loop, Action Runner, Entity Store, and Pool
// Manager into the single composition root spec.md §6 describes as
// "External Interfaces": one operation group per concern, all sharing
// one loaded configuration and one event bus.
//
// Grounded on the teacher's own Simulation type (formerly
// internal/engine/simulation.go), which wired world/agents/economy/
// social into one struct and exposed per-tick orchestration methods;
// generalized from settlement-simulation-specific state (WorldMap,
// Settlements, Factions, Seasons) to this engine's generic entity
// model, with the settlement-domain bodies (cognition, crime,
// factions, governance, market, seasons, production, relationships,
// population churn, settlement lifecycle) removed — see DESIGN.md for
// why none of that survives generalization.
package engine

import (
	"path"
	"sync"
	"time"

	"github.com/talgya/synthesis/internal/action"
	"github.com/talgya/synthesis/internal/cascade"
	"github.com/talgya/synthesis/internal/config"
	"github.com/talgya/synthesis/internal/entity"
	"github.com/talgya/synthesis/internal/event"
	"github.com/talgya/synthesis/internal/pool"
	"github.com/talgya/synthesis/internal/rng"
	"github.com/talgya/synthesis/internal/runtime"
	"github.com/talgya/synthesis/internal/selection"
	"github.com/talgya/synthesis/internal/spawn"
	"github.com/talgya/synthesis/internal/store"
	"github.com/talgya/synthesis/internal/synerr"
)

// Options configures a new Engine. Zero-valued fields take the
// spec.md defaults (unbounded entity storage, 50-deep history, a
// crypto/rand-backed RNG).
type Options struct {
	MaxEntities int
	MaxHistory  int
	Source      rng.Source
}

// Engine is the one mutex-guarded composition root every external
// interface (CLI, a future HTTP/gRPC surface) calls through. Per
// spec.md §5, a single sync.Mutex sits at this boundary: every
// exported method takes it for its whole body, except StartAutoTick and
// StopAutoTick, which hold it only while checking or swapping the
// auto-tick stop channel. The subsystem fields
// below are unexported on purpose — Config (immutable once loaded) and
// Events (its own synchronous pub/sub, meant to be subscribed to
// directly per spec.md §6's Events group) are the only state this type
// lets a caller reach without going through the mutex.
type Engine struct {
	mu sync.Mutex

	Config *config.Store
	Events *event.Bus

	cascade *cascade.Runner
	spawner *spawn.Spawner
	rt      *runtime.Runtime
	actions *action.Runner
	store   *store.Store
	pools   *pool.Manager

	src rng.Source

	autoTickStop chan struct{}
	autoTickWG   sync.WaitGroup
}

// New builds an Engine from an already-loaded configuration.
func New(cfg *config.Store, opts Options) *Engine {
	src := opts.Source
	if src == nil {
		src = rng.Default()
	}
	events := event.New()
	cascadeRunner := cascade.New(cfg, events)
	spawner := spawn.New(cfg, events, cascadeRunner, src)
	st := store.New(cascadeRunner, events, opts.MaxEntities, opts.MaxHistory)

	return &Engine{
		Config:  cfg,
		Events:  events,
		cascade: cascadeRunner,
		spawner: spawner,
		rt:      runtime.New(cfg, events, cascadeRunner),
		actions: action.New(cfg, events, cascadeRunner, src),
		store:   st,
		pools:   pool.New(cfg, events, spawner, st),
		src:     src,
	}
}

// --- Generation ---

// Generate spawns a freeform entity (no preset), stores, and
// activates it.
func (e *Engine) Generate(id string, createdAt int64, overrides map[string]float64) (*entity.Entity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.spawner.Generate(id, createdAt, overrides)
	if err != nil {
		return nil, err
	}
	return ent, e.storeAndActivate(ent)
}

// GenerateFromPreset spawns an entity from a named preset, stores, and
// activates it.
func (e *Engine) GenerateFromPreset(presetID, id string, createdAt int64, overrides map[string]float64) (*entity.Entity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, err := e.spawner.FromPreset(presetID, id, createdAt, overrides)
	if err != nil {
		return nil, err
	}
	return ent, e.storeAndActivate(ent)
}

// SpawnWhere spawns from the first configured preset whose id matches
// the query glob, falling back to a freeform generate when no preset
// matches (spec.md §6 "Generation" group). Grounded on the Pool
// Manager's own glob-on-presetId rule scoring
// (internal/pool/pool.go's conditionSatisfied "preset" source),
// repurposed here to pick a preset instead of routing an
// already-spawned entity.
func (e *Engine) SpawnWhere(query, id string, createdAt int64, overrides map[string]float64) (*entity.Entity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, presetID := range e.Config.PresetIDs() {
		matched, err := path.Match(query, presetID)
		if err != nil {
			return nil, &synerr.ConfigError{Reason: err.Error()}
		}
		if !matched {
			continue
		}
		ent, err := e.spawner.FromPreset(presetID, id, createdAt, overrides)
		if err != nil {
			return nil, err
		}
		return ent, e.storeAndActivate(ent)
	}
	ent, err := e.spawner.Generate(id, createdAt, overrides)
	if err != nil {
		return nil, err
	}
	return ent, e.storeAndActivate(ent)
}

func (e *Engine) storeAndActivate(ent *entity.Entity) error {
	if err := e.store.Store(ent); err != nil {
		return err
	}
	return e.store.Activate(ent.ID)
}

// --- Runtime ---

// Tick advances one stored, active entity by deltaSeconds.
func (e *Engine) Tick(id string, deltaSeconds float64, now int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.store.Get(id)
	if !ok {
		return &notFoundErr{"entity", id}
	}
	e.rt.Tick(ent, deltaSeconds, now)
	return nil
}

// TickAll advances every active entity by deltaSeconds, in no
// particular order.
func (e *Engine) TickAll(deltaSeconds float64, now int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ent := range e.store.All() {
		if e.store.IsActive(ent.ID) {
			e.rt.Tick(ent, deltaSeconds, now)
		}
	}
}

// StartAutoTick begins a background timer calling TickAll every rate
// (the config's tickRate if rate<=0) until StopAutoTick is called.
// Idempotent: calling it again while already running is a no-op
// (spec.md §5 "startAutoTick is idempotent"). Grounded on the teacher's
// tick dispatch (internal/engine/tick.go), generalized from its fixed
// calendar cadence to a single platform timer driving this engine's
// arbitrary tickRate.
func (e *Engine) StartAutoTick(rate time.Duration) {
	e.mu.Lock()
	if e.autoTickStop != nil {
		e.mu.Unlock()
		return
	}
	if rate <= 0 {
		rate = e.Config.TickRate
	}
	stop := make(chan struct{})
	e.autoTickStop = stop
	e.mu.Unlock()

	if e.Events != nil {
		e.Events.Emit(event.AutoTickStarted, event.Payload{"rateMs": rate.Milliseconds()})
	}
	e.autoTickWG.Add(1)
	go e.runAutoTick(rate, stop)
}

func (e *Engine) runAutoTick(rate time.Duration, stop chan struct{}) {
	defer e.autoTickWG.Done()
	ticker := time.NewTicker(rate)
	defer ticker.Stop()
	deltaSeconds := rate.Seconds()
	for {
		select {
		case t := <-ticker.C:
			e.TickAll(deltaSeconds, t.UnixMilli())
		case <-stop:
			return
		}
	}
}

// StopAutoTick halts a running auto-tick timer, blocking until its
// goroutine has exited. A no-op if no timer is running.
func (e *Engine) StopAutoTick() {
	e.mu.Lock()
	stop := e.autoTickStop
	e.autoTickStop = nil
	e.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	e.autoTickWG.Wait()
	if e.Events != nil {
		e.Events.Emit(event.AutoTickStopped, event.Payload{})
	}
}

// --- Variables ---

// SetVariable sets an entity's variable to v, clamped to its configured
// range, then runs the threshold/cascade sequence a timed tick would
// (spec.md §6 "Variables" group).
func (e *Engine) SetVariable(id, varID string, v float64, now int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.store.Get(id)
	if !ok {
		return &notFoundErr{"entity", id}
	}
	return e.rt.SetVariable(ent, varID, v, now)
}

// ModifyVariable adds delta to an entity's variable and applies it
// through the same path as SetVariable.
func (e *Engine) ModifyVariable(id, varID string, delta float64, now int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.store.Get(id)
	if !ok {
		return &notFoundErr{"entity", id}
	}
	return e.rt.ModifyVariable(ent, varID, delta, now)
}

// --- Traits ---

// RollLayer runs one Selection Core draw for an entity's layer.
func (e *Engine) RollLayer(id, layerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.store.Get(id)
	if !ok {
		return &notFoundErr{"entity", id}
	}
	if err := selection.Roll(e.Config, ent, layerID, e.src); err != nil {
		return err
	}
	e.cascade.Run(ent)
	return nil
}

// RollOutcome previews n independent weighted draws against an
// entity's layer without mutating its active trait list (spec.md §6
// "Traits" group).
func (e *Engine) RollOutcome(id, layerID string, n int) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.store.Get(id)
	if !ok {
		return nil, &notFoundErr{"entity", id}
	}
	return selection.RollOutcome(e.Config, ent, layerID, n, e.src)
}

// ActivateTrait force-activates traitID on an entity by id, outside the
// normal weighted/pickN draw — the same selection.Activate path the
// Threshold Arbiter uses to force a trait on (internal/runtime/
// threshold.go's checkThresholds).
func (e *Engine) ActivateTrait(id, traitID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.store.Get(id)
	if !ok {
		return &notFoundErr{"entity", id}
	}
	n, ok := e.Config.Node(traitID)
	if !ok || n.Trait == nil {
		return &notFoundErr{"trait", traitID}
	}
	selection.Activate(e.Config, ent, n.Trait.LayerID, traitID)
	e.cascade.Run(ent)
	if e.Events != nil {
		e.Events.Emit(event.TraitActivated, event.Payload{"entityId": id, "traitId": traitID})
	}
	return nil
}

// DeactivateTrait removes traitID from an entity's layer.
func (e *Engine) DeactivateTrait(id, traitID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.store.Get(id)
	if !ok {
		return &notFoundErr{"entity", id}
	}
	n, ok := e.Config.Node(traitID)
	if !ok || n.Trait == nil {
		return &notFoundErr{"trait", traitID}
	}
	ent.RemoveTraitFromLayer(n.Trait.LayerID, traitID)
	e.cascade.Run(ent)
	if e.Events != nil {
		e.Events.Emit(event.TraitDeactivated, event.Payload{"entityId": id, "traitId": traitID})
	}
	return nil
}

// GetWeights exposes an entity's currently-eligible trait weights for
// a layer without rolling.
func (e *Engine) GetWeights(id, layerID string) (map[string]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.store.Get(id)
	if !ok {
		return nil, &notFoundErr{"entity", id}
	}
	return selection.GetWeights(e.Config, ent, layerID)
}

// PreviewInfluences reports every relationship targeting a node.
func (e *Engine) PreviewInfluences(id, nodeID string) ([]selection.Influence, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.store.Get(id)
	if !ok {
		return nil, &notFoundErr{"entity", id}
	}
	return selection.PreviewInfluences(e.Config, ent, nodeID), nil
}

// --- Modifiers ---

// ApplyModifier applies modID to an entity by id.
func (e *Engine) ApplyModifier(id, modID string, now int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.store.Get(id)
	if !ok {
		return &notFoundErr{"entity", id}
	}
	return e.rt.ApplyModifier(ent, modID, now)
}

// RemoveModifier removes modID from an entity by id.
func (e *Engine) RemoveModifier(id, modID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.store.Get(id)
	if !ok {
		return &notFoundErr{"entity", id}
	}
	return e.rt.RemoveModifier(ent, modID)
}

// --- Actions ---

// IsActionAvailable reports whether an entity can currently execute
// actionID.
func (e *Engine) IsActionAvailable(id, actionID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.store.Get(id)
	if !ok {
		return false, &notFoundErr{"entity", id}
	}
	return e.actions.IsActionAvailable(ent, actionID), nil
}

// GetAvailableActions returns every action id an entity can currently
// execute.
func (e *Engine) GetAvailableActions(id string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.store.Get(id)
	if !ok {
		return nil, &notFoundErr{"entity", id}
	}
	return e.actions.GetAvailableActions(ent), nil
}

// SelectAction draws one available action weighted by baseWeight.
func (e *Engine) SelectAction(id string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.store.Get(id)
	if !ok {
		return "", &notFoundErr{"entity", id}
	}
	return e.actions.SelectAction(ent), nil
}

// ExecuteAction executes actionID on an entity, returning its
// configured (opaque) effects.
func (e *Engine) ExecuteAction(id, actionID string) (map[string]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.store.Get(id)
	if !ok {
		return nil, &notFoundErr{"entity", id}
	}
	return e.actions.ExecuteAction(ent, actionID)
}

// GetActionCooldown returns an entity's remaining cooldown on
// actionID.
func (e *Engine) GetActionCooldown(id, actionID string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.store.Get(id)
	if !ok {
		return 0, &notFoundErr{"entity", id}
	}
	return e.actions.GetActionCooldown(ent, actionID), nil
}

// --- Pools ---

// Acquire pulls (or spawns) an entity through the Pool Manager.
func (e *Engine) Acquire(presetID string, overrides map[string]float64, targetPoolID string, now int64) (*entity.Entity, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pools.Acquire(presetID, overrides, targetPoolID, now)
}

// Release returns an entity to its pool (or drops it).
func (e *Engine) Release(id string, now int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pools.Release(id, now)
}

// MoveToPool reassigns a stored entity to a different pool without
// releasing and reacquiring it (spec.md §6 "Pools" group).
func (e *Engine) MoveToPool(id, targetPoolID string, now int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pools.MoveToPool(id, targetPoolID, now)
}

// CreatePool registers a new empty pool.
func (e *Engine) CreatePool(id, name string, maxSize int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pools.CreatePool(id, name, maxSize)
}

// RemovePool deletes a non-default pool.
func (e *Engine) RemovePool(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pools.RemovePool(id)
}

// ConfigurePool updates a pool's static knobs in place.
func (e *Engine) ConfigurePool(id string, maxSize int, shrinkThreshold, shrinkDelay float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pools.ConfigurePool(id, maxSize, shrinkThreshold, shrinkDelay)
}

// SetPoolRules replaces a pool's rule-based assignment configuration.
func (e *Engine) SetPoolRules(id string, rules *config.PoolRules) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pools.SetPoolRules(id, rules)
}

// ClearPool discards every idle entity in a pool.
func (e *Engine) ClearPool(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pools.ClearPool(id)
}

// PreWarmPool spawns up to n idle entities into a pool ahead of demand.
func (e *Engine) PreWarmPool(id string, n int, now int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pools.PreWarmPool(id, n, now)
}

// GetPoolStats returns one pool's current counters.
func (e *Engine) GetPoolStats(id string) (pool.Stats, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pools.GetPoolStats(id)
}

// GetAllPoolStats returns every pool's stats keyed by id.
func (e *Engine) GetAllPoolStats() map[string]pool.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pools.GetAllPoolStats()
}

// ListPools returns every registered pool id.
func (e *Engine) ListPools() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pools.ListPools()
}

// --- Query and storage ---

// GetState returns the stored entity with id.
func (e *Engine) GetState(id string) (*entity.Entity, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Get(id)
}

// IsActive reports whether id is in the Store's active view.
func (e *Engine) IsActive(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.IsActive(id)
}

// Activate inserts id into the Store's active view.
func (e *Engine) Activate(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Activate(id)
}

// Deactivate removes id from the Store's active view.
func (e *Engine) Deactivate(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.Deactivate(id)
}

// Remove drops id from storage, history, and every group.
func (e *Engine) Remove(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.Remove(id)
}

// Query runs a Store.Filter search.
func (e *Engine) Query(f store.Filter) []*entity.Entity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Query(f)
}

// Snapshot captures an entity's current state into its history ring.
func (e *Engine) Snapshot(id string, timestamp int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.Snapshot(id, timestamp)
}

// Rollback restores the newest snapshot at or before t.
func (e *Engine) Rollback(id string, t int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Rollback(id, t)
}

// GetHistory returns an entity's snapshot history.
func (e *Engine) GetHistory(id string) []store.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.GetHistory(id)
}

// --- Groups ---

// CreateGroup ensures an empty named group exists.
func (e *Engine) CreateGroup(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.CreateGroup(name)
}

// AddToGroup adds id to a named group, creating it if absent.
func (e *Engine) AddToGroup(name, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.AddToGroup(name, id)
}

// RemoveFromGroup removes id from a named group.
func (e *Engine) RemoveFromGroup(name, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.RemoveFromGroup(name, id)
}

// GetGroup returns the ids currently in a named group.
func (e *Engine) GetGroup(name string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.GetGroup(name)
}

// ListGroups returns every known group name.
func (e *Engine) ListGroups() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.ListGroups()
}

// DeleteGroup removes a named group entirely.
func (e *Engine) DeleteGroup(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.DeleteGroup(name)
}

type notFoundErr struct {
	kind, id string
}

func (e *notFoundErr) Error() string { return e.kind + " not found: " + e.id }
