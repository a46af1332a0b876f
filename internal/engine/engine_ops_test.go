package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/talgya/synthesis/internal/config"
	"github.com/talgya/synthesis/internal/rng"
)

const opsDoc = `
nodes:
  - id: strength
    kind: attribute
    min: 1
    max: 10
    precision: 0

  - id: mood
    kind: layer
    selection: {mode: weighted, maxItems: 1}
    traitIds: [happy, sad]
  - id: happy
    kind: trait
    layerId: mood
    selection: {baseWeight: 10}
  - id: sad
    kind: trait
    layerId: mood
    selection: {baseWeight: 10}

  - id: focus
    kind: layer
    selection: {mode: weighted, maxItems: 1}
    traitIds: [sharp]
  - id: sharp
    kind: trait
    layerId: focus
    selection: {baseWeight: 10}

  - id: stamina
    kind: variable
    initial: 100
    min: 0
    max: 100
    changeMode: manual

presets:
  - id: veteran
    attributes:
      strength: 9
`

func newOpsEngine(t *testing.T) *Engine {
	t.Helper()
	cfg, err := config.Load(strings.NewReader(opsDoc))
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return New(cfg, Options{Source: rng.NewSeeded(11)})
}

func TestEngineSetVariableAndModifyVariable(t *testing.T) {
	e := newOpsEngine(t)
	ent, err := e.Generate("e1", 0, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := e.SetVariable(ent.ID, "stamina", 40, 0); err != nil {
		t.Fatalf("SetVariable: %v", err)
	}
	if ent.Variables["stamina"].Value != 40 {
		t.Fatalf("expected stamina 40, got %v", ent.Variables["stamina"].Value)
	}
	if err := e.ModifyVariable(ent.ID, "stamina", 15, 0); err != nil {
		t.Fatalf("ModifyVariable: %v", err)
	}
	if ent.Variables["stamina"].Value != 55 {
		t.Fatalf("expected stamina 55 after +15, got %v", ent.Variables["stamina"].Value)
	}
}

func TestEngineActivateAndDeactivateTrait(t *testing.T) {
	e := newOpsEngine(t)
	ent, err := e.Generate("e1", 0, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := e.ActivateTrait(ent.ID, "sharp"); err != nil {
		t.Fatalf("ActivateTrait: %v", err)
	}
	if !ent.HasTrait("sharp") {
		t.Fatalf("expected sharp active after ActivateTrait")
	}
	if err := e.DeactivateTrait(ent.ID, "sharp"); err != nil {
		t.Fatalf("DeactivateTrait: %v", err)
	}
	if ent.HasTrait("sharp") {
		t.Fatalf("expected sharp inactive after DeactivateTrait")
	}
}

func TestEngineRollOutcomeDoesNotMutate(t *testing.T) {
	e := newOpsEngine(t)
	ent, err := e.Generate("e1", 0, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	picks, err := e.RollOutcome(ent.ID, "mood", 5)
	if err != nil {
		t.Fatalf("RollOutcome: %v", err)
	}
	if len(picks) != 5 {
		t.Fatalf("expected 5 previewed picks, got %d", len(picks))
	}
	if len(ent.Layers["mood"].Active) != 0 {
		t.Fatalf("expected RollOutcome to leave active traits untouched, got %v", ent.Layers["mood"].Active)
	}
}

func TestEngineSpawnWhereMatchesPresetGlob(t *testing.T) {
	e := newOpsEngine(t)
	ent, err := e.SpawnWhere("vet*", "e1", 0, nil)
	if err != nil {
		t.Fatalf("SpawnWhere: %v", err)
	}
	if ent.Attributes["strength"] != 9 {
		t.Fatalf("expected preset override applied via glob match, got %v", ent.Attributes["strength"])
	}
}

func TestEngineSpawnWhereFallsBackToGenerate(t *testing.T) {
	e := newOpsEngine(t)
	ent, err := e.SpawnWhere("nomatch*", "e1", 0, nil)
	if err != nil {
		t.Fatalf("SpawnWhere: %v", err)
	}
	if ent.Attributes["strength"] == 9 {
		t.Fatalf("expected no preset match to fall back to freeform generate")
	}
}

func TestEngineStartStopAutoTickIsIdempotent(t *testing.T) {
	e := newOpsEngine(t)
	e.StartAutoTick(5 * time.Millisecond)
	e.StartAutoTick(5 * time.Millisecond) // second call is a no-op.
	time.Sleep(20 * time.Millisecond)
	e.StopAutoTick()
	e.StopAutoTick() // second call is also a no-op.
}

func TestEngineMoveToPool(t *testing.T) {
	e := newOpsEngine(t)
	ent, err := e.Acquire("", nil, "default", 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := e.CreatePool("overflow", "overflow", 0); err != nil {
		t.Fatalf("CreatePool: %v", err)
	}
	if err := e.MoveToPool(ent.ID, "overflow", 1); err != nil {
		t.Fatalf("MoveToPool: %v", err)
	}
	if ent.PoolID != "overflow" {
		t.Fatalf("expected entity moved to overflow pool, got %q", ent.PoolID)
	}
}

func TestEngineGroups(t *testing.T) {
	e := newOpsEngine(t)
	ent, err := e.Generate("e1", 0, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	e.AddToGroup("party", ent.ID)
	if got := e.GetGroup("party"); len(got) != 1 || got[0] != ent.ID {
		t.Fatalf("expected party group to contain %s, got %v", ent.ID, got)
	}
	if names := e.ListGroups(); len(names) != 1 || names[0] != "party" {
		t.Fatalf("expected ListGroups to report party, got %v", names)
	}
	e.RemoveFromGroup("party", ent.ID)
	if got := e.GetGroup("party"); len(got) != 0 {
		t.Fatalf("expected party group empty after removal, got %v", got)
	}
	e.DeleteGroup("party")
	if names := e.ListGroups(); len(names) != 0 {
		t.Fatalf("expected no groups after DeleteGroup, got %v", names)
	}
}
