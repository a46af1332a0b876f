package pool

import (
	"strings"
	"testing"

	"github.com/talgya/synthesis/internal/cascade"
	"github.com/talgya/synthesis/internal/config"
	"github.com/talgya/synthesis/internal/event"
	"github.com/talgya/synthesis/internal/rng"
	"github.com/talgya/synthesis/internal/spawn"
	"github.com/talgya/synthesis/internal/store"
)

const poolDoc = `
nodes:
  - id: strength
    kind: attribute
    min: 1
    max: 10
    precision: 0

presets:
  - id: veteran
    attributes:
      strength: 9

pools:
  - id: veterans
    maxSize: 5
    shrinkThreshold: 0.5
    shrinkDelay: 10
    rules:
      priority: 1
      conditions:
        - source: preset
          match: "veteran*"
          weight: 1
`

func newManager(t *testing.T, yamlDoc string) (*Manager, *store.Store) {
	t.Helper()
	cfg, err := config.Load(strings.NewReader(yamlDoc))
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	bus := event.New()
	runner := cascade.New(cfg, bus)
	sp := spawn.New(cfg, bus, runner, rng.NewSeeded(7))
	st := store.New(runner, bus, 0, 0)
	return New(cfg, bus, sp, st), st
}

func TestAcquireFromDefaultPoolSpawnsFresh(t *testing.T) {
	m, st := newManager(t, poolDoc)
	ent, err := m.Acquire("", nil, defaultPoolID, 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, ok := st.Get(ent.ID); !ok {
		t.Fatalf("expected acquired entity to be stored")
	}
	if !st.IsActive(ent.ID) {
		t.Fatalf("expected acquired entity to be active")
	}
	stats, _ := m.GetPoolStats(defaultPoolID)
	if stats.InUse != 1 || stats.TotalAcquired != 1 {
		t.Fatalf("unexpected default pool stats: %+v", stats)
	}
}

func TestAcquireRoutesByPresetRule(t *testing.T) {
	m, _ := newManager(t, poolDoc)
	ent, err := m.Acquire("veteran", nil, "", 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if ent.PoolID != "veterans" {
		t.Fatalf("expected preset glob rule to route into veterans pool, got %q", ent.PoolID)
	}
}

func TestReleaseRecyclesIntoPoolWithinMaxSize(t *testing.T) {
	m, st := newManager(t, poolDoc)
	ent, err := m.Acquire("veteran", nil, "veterans", 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := m.Release(ent.ID, 1); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, ok := st.Get(ent.ID); ok {
		t.Fatalf("expected entity removed from store after release")
	}
	p := m.pools["veterans"]
	if len(p.Entities) != 1 {
		t.Fatalf("expected released entity recycled into pool, got %d idle", len(p.Entities))
	}
	if p.Stats.InUse != 0 {
		t.Fatalf("expected InUse to drop back to 0, got %d", p.Stats.InUse)
	}
}

func TestAcquireReusesRecycledEntityBeforeSpawningFresh(t *testing.T) {
	m, _ := newManager(t, poolDoc)
	first, _ := m.Acquire("veteran", nil, "veterans", 0)
	m.Release(first.ID, 1)

	before, _ := m.GetPoolStats("veterans")
	second, err := m.Acquire("veteran", nil, "veterans", 2)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	after, _ := m.GetPoolStats("veterans")
	if after.TotalCreated != before.TotalCreated {
		t.Fatalf("expected popping a recycled entity to leave totalCreated unchanged, got %d -> %d", before.TotalCreated, after.TotalCreated)
	}
	if after.Available != 0 {
		t.Fatalf("expected the idle entity to be consumed, got %d idle", after.Available)
	}
	if second.ID == first.ID {
		t.Fatalf("expected a freshly identified entity after reset")
	}
}

func TestMoveToPoolReassignsWithoutReleasing(t *testing.T) {
	m, st := newManager(t, poolDoc)
	ent, err := m.Acquire("", nil, defaultPoolID, 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := m.MoveToPool(ent.ID, "veterans", 5); err != nil {
		t.Fatalf("MoveToPool: %v", err)
	}
	if ent.PoolID != "veterans" {
		t.Fatalf("expected entity PoolID updated to veterans, got %q", ent.PoolID)
	}
	if _, ok := st.Get(ent.ID); !ok {
		t.Fatalf("expected entity to remain stored after moving pools")
	}
	from, _ := m.GetPoolStats(defaultPoolID)
	to, _ := m.GetPoolStats("veterans")
	if from.InUse != 0 {
		t.Fatalf("expected source pool InUse to drop to 0, got %d", from.InUse)
	}
	if to.InUse != 1 {
		t.Fatalf("expected destination pool InUse to rise to 1, got %d", to.InUse)
	}
}

func TestMoveToPoolRejectsUnknownTarget(t *testing.T) {
	m, _ := newManager(t, poolDoc)
	ent, err := m.Acquire("", nil, defaultPoolID, 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := m.MoveToPool(ent.ID, "nope", 0); err == nil {
		t.Fatalf("expected moving to an unknown pool to fail")
	}
}

func TestRemoveDefaultPoolRejected(t *testing.T) {
	m, _ := newManager(t, poolDoc)
	if err := m.RemovePool(defaultPoolID); err == nil {
		t.Fatalf("expected removing the default pool to be rejected")
	}
}
