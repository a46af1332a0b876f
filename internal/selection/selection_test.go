package selection

import (
	"strings"
	"testing"

	"github.com/talgya/synthesis/internal/config"
	"github.com/talgya/synthesis/internal/entity"
	"github.com/talgya/synthesis/internal/rng"
)

func mustLoad(t *testing.T, yamlDoc string) *config.Store {
	t.Helper()
	s, err := config.Load(strings.NewReader(yamlDoc))
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return s
}

const basicLayerYAML = `
nodes:
  - id: mood
    kind: layer
    selection: {mode: weighted, maxItems: 10}
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

func TestRollWeightedConvergesToWeights(t *testing.T) {
	cfg := mustLoad(t, basicLayerYAML)
	counts := map[string]int{}
	const trials = 2000
	for i := 0; i < trials; i++ {
		ent := entity.New("e", "cfg", 0)
		ent.Layers["mood"] = &entity.LayerState{}
		src := rng.NewSeeded(uint64(i))
		if err := Roll(cfg, ent, "mood", src); err != nil {
			t.Fatalf("Roll: %v", err)
		}
		for _, id := range ent.Layers["mood"].Active {
			counts[id]++
		}
	}
	if counts["happy"] == 0 || counts["sad"] == 0 {
		t.Fatalf("expected both traits to be drawn, got %v", counts)
	}
	ratio := float64(counts["happy"]) / float64(counts["sad"])
	if ratio < 0.7 || ratio > 1.4 {
		t.Fatalf("equal weights should converge near 1:1, got ratio %v (%v)", ratio, counts)
	}
}

func TestRollSkipsAlreadyActiveAndIncompatible(t *testing.T) {
	const yamlDoc = `
nodes:
  - id: mood
    kind: layer
    selection: {mode: firstMatch}
    traitIds: [happy, sad]
  - id: happy
    kind: trait
    layerId: mood
    incompatibleWith: [sad]
  - id: sad
    kind: trait
    layerId: mood
`
	cfg := mustLoad(t, yamlDoc)
	ent := entity.New("e", "cfg", 0)
	ent.Layers["mood"] = &entity.LayerState{Active: []string{"happy"}}
	if err := Roll(cfg, ent, "mood", rng.NewSeeded(1)); err != nil {
		t.Fatalf("Roll: %v", err)
	}
	if len(ent.Layers["mood"].Active) != 1 {
		t.Fatalf("sad should stay excluded while happy (incompatible) is active, got %v", ent.Layers["mood"].Active)
	}
}

func TestRollAllMatchingSelectsEveryEligible(t *testing.T) {
	const yamlDoc = `
nodes:
  - id: traits
    kind: layer
    selection: {mode: allMatching}
    traitIds: [a, b, c]
  - {id: a, kind: trait, layerId: traits}
  - {id: b, kind: trait, layerId: traits}
  - {id: c, kind: trait, layerId: traits}
`
	cfg := mustLoad(t, yamlDoc)
	ent := entity.New("e", "cfg", 0)
	ent.Layers["traits"] = &entity.LayerState{}
	if err := Roll(cfg, ent, "traits", rng.NewSeeded(1)); err != nil {
		t.Fatalf("Roll: %v", err)
	}
	if len(ent.Layers["traits"].Active) != 3 {
		t.Fatalf("expected all 3 traits active, got %v", ent.Layers["traits"].Active)
	}
}

func TestRollWeightedNoEligibleTraitsWhenZeroWeight(t *testing.T) {
	const yamlDoc = `
nodes:
  - id: mood
    kind: layer
    selection: {mode: weighted}
    traitIds: [happy]
  - id: happy
    kind: trait
    layerId: mood
    selection: {baseWeight: 0}
`
	cfg := mustLoad(t, yamlDoc)
	ent := entity.New("e", "cfg", 0)
	ent.Layers["mood"] = &entity.LayerState{}
	err := Roll(cfg, ent, "mood", rng.NewSeeded(1))
	if err == nil {
		t.Fatalf("expected NoEligibleTraits error")
	}
}

func TestDiminishingReturnsMatchesSpecExample(t *testing.T) {
	// S4: baseWeight=16, two active sources each contributing
	// weight_influence add value=9, diminishingReturns=true.
	// Effective weight = 16 + 2*(sqrt(9)*sqrt(16)) = 16 + 2*12 = 40.
	const yamlDoc = `
nodes:
  - id: traits
    kind: layer
    selection: {mode: weighted, diminishingReturns: true}
    traitIds: [target]
  - id: target
    kind: trait
    layerId: traits
    selection: {baseWeight: 16}
  - id: src1
    kind: trait
    layerId: other
  - id: src2
    kind: trait
    layerId: other
  - id: other
    kind: layer
    selection: {mode: allMatching}
    traitIds: [src1, src2]
relationships:
  - {sourceId: src1, targetId: target, type: weight_influence, config: {operation: add, value: 9}}
  - {sourceId: src2, targetId: target, type: weight_influence, config: {operation: add, value: 9}}
`
	cfg := mustLoad(t, yamlDoc)
	ent := entity.New("e", "cfg", 0)
	ent.Layers["other"] = &entity.LayerState{Active: []string{"src1", "src2"}}
	ent.Layers["traits"] = &entity.LayerState{}

	n, _ := cfg.Node("target")
	layerNode, _ := cfg.Node("traits")
	w := effectiveWeight(cfg, ent, "target", n.Trait, layerNode.Layer.Selection.DiminishingReturns)
	if w != 40 {
		t.Fatalf("expected effective weight 40, got %v", w)
	}
}

func TestGetWeightsReturnsEveryEligibleCandidate(t *testing.T) {
	cfg := mustLoad(t, basicLayerYAML)
	ent := entity.New("e", "cfg", 0)
	ent.Layers["mood"] = &entity.LayerState{}

	weights, err := GetWeights(cfg, ent, "mood")
	if err != nil {
		t.Fatalf("GetWeights: %v", err)
	}
	if weights["happy"] != 10 || weights["sad"] != 10 {
		t.Fatalf("expected both candidates at weight 10, got %v", weights)
	}
}

func TestPreviewInfluencesReportsActiveAndInactiveSources(t *testing.T) {
	yamlDoc := `
nodes:
  - id: target
    kind: trait
    layerId: traits
    selection: {baseWeight: 10}
  - id: traits
    kind: layer
    selection: {mode: weighted}
    traitIds: [target]
  - id: src1
    kind: trait
    layerId: other
    selection: {baseWeight: 5}
  - id: src2
    kind: trait
    layerId: other
    selection: {baseWeight: 5}
  - id: other
    kind: layer
    selection: {mode: allMatching}
    traitIds: [src1, src2]
relationships:
  - {sourceId: src1, targetId: target, type: weight_influence, config: {operation: add, value: 9}}
  - {sourceId: src2, targetId: target, type: weight_influence, config: {operation: add, value: 9}}
`
	cfg := mustLoad(t, yamlDoc)
	ent := entity.New("e", "cfg", 0)
	ent.Layers["other"] = &entity.LayerState{Active: []string{"src1"}}
	ent.Layers["traits"] = &entity.LayerState{}

	influences := PreviewInfluences(cfg, ent, "target")
	if len(influences) != 2 {
		t.Fatalf("expected 2 influences on target, got %d", len(influences))
	}
	byID := map[string]Influence{}
	for _, inf := range influences {
		byID[inf.SourceID] = inf
	}
	if !byID["src1"].Active || byID["src1"].Delta != 9 {
		t.Fatalf("expected src1 active with delta 9, got %+v", byID["src1"])
	}
	if byID["src2"].Active {
		t.Fatalf("expected src2 inactive since it is not in other's active list, got %+v", byID["src2"])
	}
}
