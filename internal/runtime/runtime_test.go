package runtime

import (
	"strings"
	"testing"

	"github.com/talgya/synthesis/internal/cascade"
	"github.com/talgya/synthesis/internal/config"
	"github.com/talgya/synthesis/internal/entity"
	"github.com/talgya/synthesis/internal/event"
)

func newRuntime(t *testing.T, yamlDoc string) (*Runtime, *config.Store) {
	t.Helper()
	cfg, err := config.Load(strings.NewReader(yamlDoc))
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	bus := event.New()
	runner := cascade.New(cfg, bus)
	return New(cfg, bus, runner), cfg
}

const tickDoc = `
nodes:
  - id: health
    kind: variable
    initial: 100
    min: 0
    max: 100
    baseRate: -10
    changeMode: timed
    direction: deplete
`

func TestTickIntegratesVariableAndClamps(t *testing.T) {
	rt, cfg := newRuntime(t, tickDoc)
	ent := entity.New("e", "cfg", 0)
	n, _ := cfg.Node("health")
	ent.Variables["health"] = &entity.VarState{
		Value: 100, BaseRate: -10, CurrentRate: -10,
		Min: n.Variable.Min, Max: n.Variable.Max,
		ChangeMode: n.Variable.ChangeMode, Direction: n.Variable.Direction,
	}
	rt.Tick(ent, 1, 1000)
	if ent.Variables["health"].Value != 90 {
		t.Fatalf("expected health 90 after one tick, got %v", ent.Variables["health"].Value)
	}
	for i := 0; i < 20; i++ {
		rt.Tick(ent, 1, int64(1000+i))
	}
	if ent.Variables["health"].Value != 0 {
		t.Fatalf("expected health clamped at 0, got %v", ent.Variables["health"].Value)
	}
}

const thresholdTraitDoc = `
nodes:
  - id: mana
    kind: variable
    initial: 0
    min: 0
    max: 100
    baseRate: 5
    changeMode: timed
    direction: accumulate
  - id: spells
    kind: layer
    selection: {mode: threshold}
    traitIds: [arcane]
  - id: arcane
    kind: trait
    layerId: spells
    selection:
      trigger:
        conditions:
          - {type: variable, target: mana, operator: ">=", value: 50}
`

func TestThresholdTraitActivatesOnCross(t *testing.T) {
	rt, cfg := newRuntime(t, thresholdTraitDoc)
	ent := entity.New("e", "cfg", 0)
	n, _ := cfg.Node("mana")
	ent.Variables["mana"] = &entity.VarState{
		Value: 45, BaseRate: 5, CurrentRate: 5, Min: 0, Max: 100,
		ChangeMode: n.Variable.ChangeMode, Direction: n.Variable.Direction,
	}
	ent.Layers["spells"] = &entity.LayerState{}

	rt.Tick(ent, 1, 1000) // mana -> 50, crosses threshold.
	if !ent.HasTrait("arcane") {
		t.Fatalf("expected arcane trait activated once mana reaches 50, got %v", ent.Layers["spells"].Active)
	}
}

const modifierDoc = `
nodes:
  - id: poisoned
    kind: modifier
    durationType: timed
    duration: 5
    stacking: refresh
`

const exclusiveModifierDoc = `
nodes:
  - id: rage
    kind: variable
    initial: 0
    min: 0
    max: 100
    changeMode: manual
  - id: calm
    kind: modifier
    durationType: timed
    duration: 5
    exclusiveWith: [furious]
    trigger:
      conditions:
        - {type: variable, target: rage, operator: "<=", value: 30}
  - id: furious
    kind: modifier
    durationType: timed
    duration: 5
    exclusiveWith: [calm]
    trigger:
      conditions:
        - {type: variable, target: rage, operator: ">=", value: 50}
`

func TestApplyModifierTimedExpiry(t *testing.T) {
	rt, _ := newRuntime(t, modifierDoc)
	ent := entity.New("e", "cfg", 0)
	if err := rt.ApplyModifier(ent, "poisoned", 1000); err != nil {
		t.Fatalf("ApplyModifier: %v", err)
	}
	if !ent.HasModifier("poisoned") {
		t.Fatalf("expected poisoned applied")
	}
	rt.Tick(ent, 1, 6001) // now past expiresAt (1000 + 5*1000 = 6000).
	if ent.HasModifier("poisoned") {
		t.Fatalf("expected poisoned expired by tick, got modifiers %v", ent.Modifiers)
	}
}

func TestApplyModifierStackingRefreshResetsExpiry(t *testing.T) {
	rt, _ := newRuntime(t, modifierDoc)
	ent := entity.New("e", "cfg", 0)
	rt.ApplyModifier(ent, "poisoned", 1000)
	rt.ApplyModifier(ent, "poisoned", 4000) // refresh before original expiry.
	st := ent.ModifierStates["poisoned"]
	if *st.ExpiresAt != 9000 {
		t.Fatalf("expected refreshed expiresAt 9000, got %v", *st.ExpiresAt)
	}
}

func TestSetVariableClampsAndEmits(t *testing.T) {
	rt, _ := newRuntime(t, tickDoc)
	ent := entity.New("e", "cfg", 0)
	ent.Variables["health"] = &entity.VarState{Value: 50, Min: 0, Max: 100}

	var seen event.Payload
	rt.events.On(event.VariableChanged, func(name event.Name, p event.Payload) { seen = p })

	if err := rt.SetVariable(ent, "health", 500, 1000); err != nil {
		t.Fatalf("SetVariable: %v", err)
	}
	if ent.Variables["health"].Value != 100 {
		t.Fatalf("expected health clamped to 100, got %v", ent.Variables["health"].Value)
	}
	if seen["variableId"] != "health" || seen["value"] != 100.0 {
		t.Fatalf("expected variableChanged emitted with clamped value, got %+v", seen)
	}
}

func TestSetVariableUnknownVariableErrors(t *testing.T) {
	rt, _ := newRuntime(t, tickDoc)
	ent := entity.New("e", "cfg", 0)
	if err := rt.SetVariable(ent, "nope", 1, 0); err == nil {
		t.Fatalf("expected SetVariable on an unknown variable to error")
	}
}

func TestModifyVariableAppliesDelta(t *testing.T) {
	rt, _ := newRuntime(t, tickDoc)
	ent := entity.New("e", "cfg", 0)
	ent.Variables["health"] = &entity.VarState{Value: 50, Min: 0, Max: 100}

	if err := rt.ModifyVariable(ent, "health", -20, 1000); err != nil {
		t.Fatalf("ModifyVariable: %v", err)
	}
	if ent.Variables["health"].Value != 30 {
		t.Fatalf("expected health 30 after -20 delta, got %v", ent.Variables["health"].Value)
	}
}

func TestSetVariableDrivesExclusiveGroupArbitration(t *testing.T) {
	rt, _ := newRuntime(t, exclusiveModifierDoc)
	ent := entity.New("e", "cfg", 0)
	ent.Variables["rage"] = &entity.VarState{Value: 0, Min: 0, Max: 100}

	if err := rt.SetVariable(ent, "rage", 100, 1000); err != nil {
		t.Fatalf("SetVariable: %v", err)
	}
	active := 0
	for _, id := range []string{"calm", "furious"} {
		if ent.HasModifier(id) {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one exclusive modifier active after setVariable crosses both thresholds, got %d (%v)", active, ent.Modifiers)
	}
}
