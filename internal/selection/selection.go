// Package selection implements the Selection Core (spec.md §4.3): the
// weighted/pickN/allMatching/firstMatch draw a layer uses to populate
// its active trait list, including eligibility, incompatibility, weight
// influence folding, and diminishing returns. Grounded on the teacher's
// weighted-encounter-table draw (internal/world generation) generalized
// from a fixed loot table to a config-driven, relationship-influenced
// candidate pool.
package selection

import (
	"math"
	"sort"

	"github.com/talgya/synthesis/internal/condition"
	"github.com/talgya/synthesis/internal/config"
	"github.com/talgya/synthesis/internal/entity"
	"github.com/talgya/synthesis/internal/node"
	"github.com/talgya/synthesis/internal/resolve"
	"github.com/talgya/synthesis/internal/rng"
	"github.com/talgya/synthesis/internal/synerr"
)

// candidate is one trait in a weighted pool, carrying its resolved
// weight and original insertion order for tie-breaking.
type candidate struct {
	id     string
	weight float64
	order  int
}

// Roll runs one full selection pass for layer layerID against ent,
// mutating ent.Layers[layerID].Active according to the layer's
// selection.mode. Returns NoEligibleTraits if mode is weighted/pickN
// and the candidate pool's total weight is zero.
func Roll(cfg *config.Store, ent *entity.Entity, layerID string, src rng.Source) error {
	n, ok := cfg.Node(layerID)
	if !ok || n.Layer == nil {
		return &synerr.NotFound{Kind: "layer", ID: layerID}
	}
	layer := n.Layer

	switch layer.Selection.Mode {
	case node.SelectionAllMatching:
		return rollAllMatching(cfg, ent, layerID, layer)
	case node.SelectionPickN:
		return rollPickN(cfg, ent, layerID, layer, src)
	case node.SelectionFirstMatch:
		return rollFirstMatch(cfg, ent, layerID, layer)
	case node.SelectionThreshold:
		return nil // handled by the Threshold Arbiter, not rolled here.
	default: // weighted
		return rollWeighted(cfg, ent, layerID, layer, src)
	}
}

func rollWeighted(cfg *config.Store, ent *entity.Entity, layerID string, layer *node.LayerPayload, src rng.Source) error {
	pool := buildPool(cfg, ent, layerID, layer)
	picked, err := drawOne(pool, layerID, src)
	if err != nil {
		return err
	}
	Activate(cfg, ent, layerID, picked)
	return nil
}

// rollPickN performs N weighted draws without replacement, reweighting
// the remaining pool after each pick (spec.md §4.3).
func rollPickN(cfg *config.Store, ent *entity.Entity, layerID string, layer *node.LayerPayload, src rng.Source) error {
	n := layer.Selection.PickN
	pool := buildPool(cfg, ent, layerID, layer)
	for i := 0; i < n && len(pool) > 0; i++ {
		picked, err := drawOne(pool, layerID, src)
		if err != nil {
			if i == 0 {
				return err
			}
			break // partial pool exhaustion after at least one pick is not an error.
		}
		Activate(cfg, ent, layerID, picked)
		pool = removeCandidate(pool, picked)
	}
	return nil
}

func rollAllMatching(cfg *config.Store, ent *entity.Entity, layerID string, layer *node.LayerPayload) error {
	active := ent.Layers[layerID]
	for _, traitID := range layer.TraitIDs {
		if !eligible(cfg, ent, traitID, active) {
			continue
		}
		Activate(cfg, ent, layerID, traitID)
	}
	return nil
}

func rollFirstMatch(cfg *config.Store, ent *entity.Entity, layerID string, layer *node.LayerPayload) error {
	active := ent.Layers[layerID]
	for _, traitID := range layer.TraitIDs {
		if !eligible(cfg, ent, traitID, active) {
			continue
		}
		Activate(cfg, ent, layerID, traitID)
		return nil
	}
	return nil
}

// buildPool resolves the weighted candidate list for a layer: filters
// out ineligible/incompatible/already-active/threshold traits, then
// computes each remaining candidate's effective weight.
func buildPool(cfg *config.Store, ent *entity.Entity, layerID string, layer *node.LayerPayload) []candidate {
	active := ent.Layers[layerID]
	var pool []candidate
	for i, traitID := range layer.TraitIDs {
		if !eligible(cfg, ent, traitID, active) {
			continue
		}
		n, ok := cfg.Node(traitID)
		if !ok || n.Trait == nil || n.Trait.Selection.Trigger != nil {
			continue // threshold-mode traits are never rolled.
		}
		w := effectiveWeight(cfg, ent, traitID, n.Trait, layer.Selection.DiminishingReturns)
		if w < 0 {
			w = 0 // weightFloor default 0.
		}
		pool = append(pool, candidate{id: traitID, weight: w, order: i})
	}
	return pool
}

// eligible reports whether traitID may be added to layerID's active
// list: not already active, eligibility conditions pass, no
// incompatibleWith entry is currently active, and no active trait lists
// traitID in its own incompatibleWith.
func eligible(cfg *config.Store, ent *entity.Entity, traitID string, active *entity.LayerState) bool {
	if active != nil {
		for _, id := range active.Active {
			if id == traitID {
				return false
			}
		}
	}
	n, ok := cfg.Node(traitID)
	if !ok || n.Trait == nil {
		return false
	}
	for _, cond := range n.Trait.Eligibility {
		if !resolve.ConditionEval(cond, cfg, ent) {
			return false
		}
	}
	for _, incompatID := range n.Trait.IncompatibleWith {
		if ent.IsActive(incompatID) {
			return false
		}
	}
	for _, ls := range ent.Layers {
		for _, activeID := range ls.Active {
			an, ok := cfg.Node(activeID)
			if !ok || an.Trait == nil {
				continue
			}
			for _, x := range an.Trait.IncompatibleWith {
				if x == traitID {
					return false
				}
			}
		}
	}
	return true
}

// effectiveWeight computes a trait's draw weight: baseWeight, folded
// through selection.weightModifiers in order, then through every
// active, condition-passing weight_influence relationship targeting it.
func effectiveWeight(cfg *config.Store, ent *entity.Entity, traitID string, trait *node.TraitPayload, diminishing bool) float64 {
	base := trait.Selection.BaseWeight
	w := base

	for _, mod := range trait.Selection.WeightModifiers {
		if mod.Condition != nil && !resolve.ConditionEval(mod.Condition, cfg, ent) {
			continue
		}
		w = applyWeightOp(w, mod.Operation, mod.Value)
	}

	for _, rel := range cfg.RelationshipsByTarget(traitID) {
		if rel.Type != node.RelWeightInfluence {
			continue
		}
		if !relationshipActive(cfg, ent, rel) {
			continue
		}
		delta := scaledValue(cfg, ent, rel)
		switch rel.Config.Operation {
		case node.OpMultiply:
			w *= delta
		default: // add
			if diminishing {
				delta = diminish(delta, base)
			}
			w += delta
		}
	}
	return w
}

// diminish applies sign(Δ)·√|Δ|·√baseWeight, anchored on the trait's
// original baseWeight regardless of how many influences have already
// been folded (spec.md §9 design note: source follows the original
// base, not a running total).
func diminish(delta, baseWeight float64) float64 {
	sign := 1.0
	if delta < 0 {
		sign = -1.0
	}
	return sign * math.Sqrt(math.Abs(delta)) * math.Sqrt(baseWeight)
}

func applyWeightOp(w float64, op node.Operation, value float64) float64 {
	if op == node.OpMultiply {
		return w * value
	}
	return w + value
}

// GetWeights exposes buildPool's resolved candidate weights for
// layerID, supplementing spec.md §6's query group with the
// getWeights(entity, layerId) inspection operation: every eligible
// trait's fully-folded draw weight, without performing a draw.
func GetWeights(cfg *config.Store, ent *entity.Entity, layerID string) (map[string]float64, error) {
	n, ok := cfg.Node(layerID)
	if !ok || n.Layer == nil {
		return nil, &synerr.NotFound{Kind: "layer", ID: layerID}
	}
	pool := buildPool(cfg, ent, layerID, n.Layer)
	out := make(map[string]float64, len(pool))
	for _, c := range pool {
		out[c.id] = c.weight
	}
	return out, nil
}

// Influence describes one relationship's contribution toward nodeID at
// inspection time, used by previewInfluences.
type Influence struct {
	SourceID string
	Type     node.RelationshipType
	Active   bool
	Delta    float64
}

// PreviewInfluences reports every relationship targeting nodeID along
// with whether it is currently active and the delta it would
// contribute, supplementing spec.md §6's previewInfluences(nodeId)
// inspection operation. Relationships whose source is inactive are
// still listed (Active: false, Delta: 0) so an operator can see the
// full influence graph, not just the live one.
func PreviewInfluences(cfg *config.Store, ent *entity.Entity, nodeID string) []Influence {
	rels := cfg.RelationshipsByTarget(nodeID)
	out := make([]Influence, 0, len(rels))
	for _, rel := range rels {
		inf := Influence{SourceID: rel.SourceID, Type: rel.Type}
		if relationshipActive(cfg, ent, rel) {
			inf.Active = true
			inf.Delta = scaledValue(cfg, ent, rel)
		}
		out = append(out, inf)
	}
	return out
}

func relationshipActive(cfg *config.Store, ent *entity.Entity, rel *node.Relationship) bool {
	n, ok := cfg.Node(rel.SourceID)
	if !ok {
		return false
	}
	switch n.Kind {
	case node.KindTrait, node.KindModifier, node.KindCompound:
		if !ent.IsActive(rel.SourceID) {
			return false
		}
	}
	if len(rel.Conditions) == 0 {
		return true
	}
	return resolve.ConditionEval(&condition.Condition{Leaves: rel.Conditions}, cfg, ent)
}

func scaledValue(cfg *config.Store, ent *entity.Entity, rel *node.Relationship) float64 {
	v := rel.Config.Value
	if rel.Config.Scaling != node.ScalingPerPoint {
		return v
	}
	srcID := rel.Config.PerPointSource
	if srcID == "" {
		srcID = rel.SourceID
	}
	sv, ok := resolve.RelationshipValue(cfg, ent, srcID)
	if !ok {
		return 0
	}
	if rel.Config.Invert {
		sv = nodeMax(cfg, srcID) - sv
	}
	return v * sv
}

func nodeMax(cfg *config.Store, id string) float64 {
	n, ok := cfg.Node(id)
	if !ok {
		return 0
	}
	switch n.Kind {
	case node.KindAttribute:
		return n.Attribute.Max
	case node.KindVariable:
		return n.Variable.Max
	default:
		return 0
	}
}

// RollOutcome simulates n independent weighted draws against layerID's
// current candidate pool without mutating ent, supplementing rollLayer
// (which mutates) with a side-effect-free "what would this roll
// produce" preview (spec.md §6 "Traits" group). Grounded on
// xtding233-gacha-backend's BannerOutcome draw-result reporting, here
// returning the raw sequence of picked trait ids instead of a single
// banner result.
func RollOutcome(cfg *config.Store, ent *entity.Entity, layerID string, n int, src rng.Source) ([]string, error) {
	n2, ok := cfg.Node(layerID)
	if !ok || n2.Layer == nil {
		return nil, &synerr.NotFound{Kind: "layer", ID: layerID}
	}
	if n <= 0 {
		n = 1
	}
	pool := buildPool(cfg, ent, layerID, n2.Layer)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		picked, err := drawOne(pool, layerID, src)
		if err != nil {
			return out, err
		}
		out = append(out, picked)
	}
	return out, nil
}

// drawOne draws uniformly in [0,totalWeight) and walks the pool in
// insertion order until the cumulative weight exceeds the draw,
// matching spec.md §4.3 step 5's tie-break rule.
func drawOne(pool []candidate, layerID string, src rng.Source) (string, error) {
	sorted := make([]candidate, len(pool))
	copy(sorted, pool)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].order < sorted[j].order })

	total := 0.0
	for _, c := range sorted {
		total += c.weight
	}
	if total <= 0 {
		return "", &synerr.NoEligibleTraits{LayerID: layerID}
	}

	draw := src.Float64() * total
	cumulative := 0.0
	for _, c := range sorted {
		cumulative += c.weight
		if draw < cumulative {
			return c.id, nil
		}
	}
	return sorted[len(sorted)-1].id, nil
}

func removeCandidate(pool []candidate, id string) []candidate {
	out := pool[:0]
	for _, c := range pool {
		if c.id != id {
			out = append(out, c)
		}
	}
	return out
}

// Activate appends traitID to layerID's active list after deactivating
// every trait it replaces, enforcing maxItems. Exported so the
// Threshold Arbiter can activate threshold traits through the same
// replaces/maxItems path a weighted draw uses (spec.md §4.3 last line).
// Cascade and traitActivated bookkeeping are the caller's
// responsibility.
func Activate(cfg *config.Store, ent *entity.Entity, layerID, traitID string) {
	n, ok := cfg.Node(traitID)
	if !ok || n.Trait == nil {
		return
	}
	ls, ok := ent.Layers[layerID]
	if !ok {
		ls = &entity.LayerState{}
		ent.Layers[layerID] = ls
	}
	for _, replacedID := range n.Trait.Selection.Replaces {
		ent.RemoveTraitFromLayer(layerID, replacedID)
	}
	layerNode, _ := cfg.Node(layerID)
	maxItems := 10
	if layerNode != nil && layerNode.Layer != nil && layerNode.Layer.Selection.MaxItems > 0 {
		maxItems = layerNode.Layer.Selection.MaxItems
	}
	if len(ls.Active) >= maxItems {
		return
	}
	ls.Active = append(ls.Active, traitID)
}
