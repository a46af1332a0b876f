package action

import (
	"strings"
	"testing"

	"github.com/talgya/synthesis/internal/cascade"
	"github.com/talgya/synthesis/internal/config"
	"github.com/talgya/synthesis/internal/entity"
	"github.com/talgya/synthesis/internal/event"
	"github.com/talgya/synthesis/internal/rng"
)

const actionDoc = `
nodes:
  - id: stamina
    kind: variable
    initial: 100
    min: 0
    max: 100
    changeMode: manual

  - id: sprint
    kind: action
    baseWeight: 10
    cooldown: 30
    costs:
      stamina: 20
    effects:
      speedBoost: 2

  - id: rest
    kind: action
    baseWeight: 5
    cooldown: 0
    blockedBy: ["sprint"]
`

func newRunner(t *testing.T) (*Runner, *entity.Entity) {
	t.Helper()
	cfg, err := config.Load(strings.NewReader(actionDoc))
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	bus := event.New()
	runner := cascade.New(cfg, bus)
	r := New(cfg, bus, runner, rng.NewSeeded(1))

	ent := entity.New("e1", "", 0)
	ent.Variables["stamina"] = &entity.VarState{Value: 100, Min: 0, Max: 100}
	return r, ent
}

func TestIsActionAvailableRespectsCooldownAndCost(t *testing.T) {
	r, ent := newRunner(t)
	if !r.IsActionAvailable(ent, "sprint") {
		t.Fatalf("expected sprint available with full stamina and no cooldown")
	}

	ent.Variables["stamina"].Value = 5
	if r.IsActionAvailable(ent, "sprint") {
		t.Fatalf("expected sprint unavailable once stamina is below cost")
	}
}

func TestExecuteActionDeductsCostsAndStartsCooldown(t *testing.T) {
	r, ent := newRunner(t)
	effects, err := r.ExecuteAction(ent, "sprint")
	if err != nil {
		t.Fatalf("ExecuteAction: %v", err)
	}
	if effects["speedBoost"] != 2 {
		t.Fatalf("expected opaque effects to pass through, got %v", effects)
	}
	if ent.Variables["stamina"].Value != 80 {
		t.Fatalf("expected stamina cost deducted, got %v", ent.Variables["stamina"].Value)
	}
	if r.GetActionCooldown(ent, "sprint") != 30 {
		t.Fatalf("expected cooldown started at 30, got %v", r.GetActionCooldown(ent, "sprint"))
	}
	if r.IsActionAvailable(ent, "sprint") {
		t.Fatalf("expected sprint unavailable while on cooldown")
	}
}

func TestBlockedByPreventsAvailability(t *testing.T) {
	r, ent := newRunner(t)
	ent.Layers["x"] = &entity.LayerState{Active: []string{"sprint"}}
	if r.IsActionAvailable(ent, "rest") {
		t.Fatalf("expected rest blocked while sprint is active")
	}
}

func TestSelectActionPicksFromAvailable(t *testing.T) {
	r, ent := newRunner(t)
	id := r.SelectAction(ent)
	if id != "sprint" && id != "rest" {
		t.Fatalf("expected a known action id, got %q", id)
	}
}
