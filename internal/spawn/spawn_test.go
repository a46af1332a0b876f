package spawn

import (
	"strings"
	"testing"

	"github.com/talgya/synthesis/internal/cascade"
	"github.com/talgya/synthesis/internal/config"
	"github.com/talgya/synthesis/internal/event"
	"github.com/talgya/synthesis/internal/rng"
)

func newSpawner(t *testing.T, yamlDoc string) *Spawner {
	t.Helper()
	cfg, err := config.Load(strings.NewReader(yamlDoc))
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	bus := event.New()
	runner := cascade.New(cfg, bus)
	return New(cfg, bus, runner, rng.NewSeeded(42))
}

const basicDoc = `
nodes:
  - id: strength
    kind: attribute
    min: 1
    max: 10
    precision: 0
  - id: health
    kind: variable
    initial: 100
    baseRate: -1
    changeMode: timed
    direction: deplete
  - id: mood
    kind: layer
    selection: {mode: weighted, initialRolls: 1}
    traitIds: [happy, sad]
  - id: happy
    kind: trait
    layerId: mood
    selection: {baseWeight: 10}
  - id: sad
    kind: trait
    layerId: mood
    selection: {baseWeight: 10}
`

func TestGeneratePopulatesAttributesVariablesAndLayers(t *testing.T) {
	s := newSpawner(t, basicDoc)
	ent, err := s.Generate("e1", 0, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if v := ent.Attributes["strength"]; v < 1 || v > 10 {
		t.Fatalf("strength out of range: %v", v)
	}
	if ent.Variables["health"].Value != 100 {
		t.Fatalf("expected health initial 100, got %v", ent.Variables["health"].Value)
	}
	if len(ent.Layers["mood"].Active) != 1 {
		t.Fatalf("expected exactly one initial roll, got %v", ent.Layers["mood"].Active)
	}
	found := false
	for _, note := range ent.Internal.Log {
		if note == "generated" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a 'generated' log entry, got %v", ent.Internal.Log)
	}
}

func TestGenerateOverrideWins(t *testing.T) {
	s := newSpawner(t, basicDoc)
	ent, err := s.Generate("e1", 0, map[string]float64{"strength": 7})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if ent.Attributes["strength"] != 7 {
		t.Fatalf("expected override to win, got %v", ent.Attributes["strength"])
	}
}

const presetDoc = `
nodes:
  - id: strength
    kind: attribute
    min: 1
    max: 10
  - id: mood
    kind: layer
    selection: {mode: weighted}
    traitIds: [happy, sad]
  - id: happy
    kind: trait
    layerId: mood
  - id: sad
    kind: trait
    layerId: mood
presets:
  - id: cheerful
    attributes:
      strength: {value: 9}
    traits:
      mood: happy
`

func TestFromPresetForcesFixedAttributeAndTrait(t *testing.T) {
	s := newSpawner(t, presetDoc)
	ent, err := s.FromPreset("cheerful", "e1", 0, nil)
	if err != nil {
		t.Fatalf("FromPreset: %v", err)
	}
	if ent.Attributes["strength"] != 9 {
		t.Fatalf("expected preset fixed value 9, got %v", ent.Attributes["strength"])
	}
	if !ent.HasTrait("happy") {
		t.Fatalf("expected happy to be force-activated, got %v", ent.Layers["mood"].Active)
	}
}

func TestFromPresetUnknownPresetErrors(t *testing.T) {
	s := newSpawner(t, presetDoc)
	if _, err := s.FromPreset("nope", "e1", 0, nil); err == nil {
		t.Fatalf("expected NotFound error for unknown preset")
	}
}
