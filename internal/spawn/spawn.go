// Package spawn implements the Entity Spawner (spec.md §4.5 and §4.6):
// ordered attribute/layer resolution with trait feedback on ranges, and
// preset-driven trait force-resolution. Grounded on the teacher's
// generation pipeline (internal/world population/settlement_lifecycle
// ordered-pass shape), generalized from fixed world-gen steps to a
// config-declared spawnOrder.
package spawn

import (
	"math"
	"sort"

	"github.com/talgya/synthesis/internal/cascade"
	"github.com/talgya/synthesis/internal/condition"
	"github.com/talgya/synthesis/internal/config"
	"github.com/talgya/synthesis/internal/entity"
	"github.com/talgya/synthesis/internal/event"
	"github.com/talgya/synthesis/internal/node"
	"github.com/talgya/synthesis/internal/resolve"
	"github.com/talgya/synthesis/internal/rng"
	"github.com/talgya/synthesis/internal/selection"
	"github.com/talgya/synthesis/internal/synerr"
)

// Spawner generates entities against one Config Store, routing trait
// draws through an injected rng.Source and cascade transitions through
// a shared cascade.Runner.
type Spawner struct {
	cfg     *config.Store
	events  *event.Bus
	cascade *cascade.Runner
	src     rng.Source
}

// New returns a Spawner bound to cfg, emitting lifecycle events on
// events and running the cascade triple via runner after generation.
func New(cfg *config.Store, events *event.Bus, runner *cascade.Runner, src rng.Source) *Spawner {
	return &Spawner{cfg: cfg, events: events, cascade: runner, src: src}
}

// orderedItem is one entry of the computed spawnOrder: either an
// attribute or a layer node, tagged with its resolved sequencing key.
type orderedItem struct {
	n     *node.Node
	order int
}

// Generate allocates and populates a new entity directly from the
// config graph (no preset), honoring id-keyed overrides (spec.md §4.5
// step 5's "extension fields" are any override id absent from the
// sorted spawnOrder list).
func (s *Spawner) Generate(id string, createdAt int64, overrides map[string]float64) (*entity.Entity, error) {
	ent := entity.New(id, "", createdAt)
	s.initVariables(ent)
	s.initContexts(ent)
	s.initLayers(ent)

	order := s.spawnOrder()
	applied := make(map[string]bool, len(order))
	for _, item := range order {
		applied[item.n.ID] = true
		switch item.n.Kind {
		case node.KindAttribute:
			s.resolveAttribute(ent, item.n, overrides)
		case node.KindLayer:
			s.rollLayerInitial(ent, item.n)
		}
	}

	for id, v := range overrides {
		if applied[id] {
			continue
		}
		if n, ok := s.cfg.Node(id); ok && n.Kind == node.KindAttribute {
			ent.Attributes[id] = v
		}
	}

	s.finish(ent)
	return ent, nil
}

// FromPreset merges a preset's attribute specs and forced/resolved
// traits with overrides, generates the entity, then force-activates the
// collected trait ids (spec.md §4.5 "Spawn from preset").
func (s *Spawner) FromPreset(presetID, id string, createdAt int64, overrides map[string]float64) (*entity.Entity, error) {
	preset, ok := s.cfg.Preset(presetID)
	if !ok {
		return nil, &synerr.NotFound{Kind: "preset", ID: presetID}
	}

	merged := make(map[string]float64, len(overrides))
	for k, v := range overrides {
		merged[k] = v
	}

	ent := entity.New(id, "", createdAt)
	ent.PresetID = presetID
	s.initVariables(ent)
	s.initContexts(ent)
	for k, v := range preset.Contexts {
		ent.Contexts[k] = v
	}
	s.initLayers(ent)

	order := s.spawnOrder()
	applied := make(map[string]bool, len(order))
	for _, item := range order {
		applied[item.n.ID] = true
		switch item.n.Kind {
		case node.KindAttribute:
			if spec, ok := preset.Attributes[item.n.ID]; ok {
				s.resolvePresetAttribute(ent, item.n, spec, merged)
				continue
			}
			s.resolveAttribute(ent, item.n, merged)
		case node.KindLayer:
			s.rollLayerInitial(ent, item.n)
		}
	}
	for id, v := range merged {
		if applied[id] {
			continue
		}
		if n, ok := s.cfg.Node(id); ok && n.Kind == node.KindAttribute {
			ent.Attributes[id] = v
		}
	}

	s.finish(ent)

	for _, traitID := range preset.ForceTraits {
		n, ok := s.cfg.Node(traitID)
		if !ok || n.Trait == nil {
			continue
		}
		forceActivate(s.cfg, ent, n.Trait.LayerID, traitID)
	}
	byLayer := ResolveTraitIDs(s.cfg, ent, preset, s.src)
	for layerID, traitIDs := range byLayer {
		for _, traitID := range traitIDs {
			forceActivate(s.cfg, ent, layerID, traitID)
		}
	}
	s.cascade.Run(ent)
	return ent, nil
}

func (s *Spawner) initVariables(ent *entity.Entity) {
	for _, n := range s.cfg.NodesByKind(node.KindVariable.String()) {
		v := n.Variable
		ent.Variables[n.ID] = &entity.VarState{
			Value:       v.Initial,
			BaseRate:    v.BaseRate,
			CurrentRate: v.BaseRate,
			Min:         v.Min,
			Max:         v.Max,
			ChangeMode:  v.ChangeMode,
			Direction:   v.Direction,
		}
	}
}

func (s *Spawner) initContexts(ent *entity.Entity) {
	for _, n := range s.cfg.NodesByKind(node.KindContext.String()) {
		ent.Contexts[n.ID] = n.Context.Default
	}
}

func (s *Spawner) initLayers(ent *entity.Entity) {
	for _, n := range s.cfg.NodesByKind(node.KindLayer.String()) {
		ent.Layers[n.ID] = &entity.LayerState{}
	}
}

// spawnOrder concatenates attributes (keyed by spawnOrder) with layers
// whose timing.rollAt is spawn or create (keyed by order), then sorts
// the combined list ascending by that key (spec.md §4.5 step 3).
func (s *Spawner) spawnOrder() []orderedItem {
	var items []orderedItem
	for _, n := range s.cfg.NodesByKind(node.KindAttribute.String()) {
		items = append(items, orderedItem{n: n, order: n.Attribute.SpawnOrder})
	}
	for _, n := range s.cfg.NodesByKind(node.KindLayer.String()) {
		switch n.Layer.Timing.RollAt {
		case node.RollAtSpawn, node.RollAtCreate:
			items = append(items, orderedItem{n: n, order: n.Layer.Order})
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].order < items[j].order })
	return items
}

// resolveAttribute rolls one attribute's value: an override wins
// outright; otherwise fold value_modifier relationships over the
// default range, then draw uniformly and round to precision.
func (s *Spawner) resolveAttribute(ent *entity.Entity, n *node.Node, overrides map[string]float64) {
	if v, ok := overrides[n.ID]; ok {
		ent.Attributes[n.ID] = v
		return
	}
	min, max := s.foldAttributeRange(ent, n)
	ent.Attributes[n.ID] = roll(s.src, min, max, n.Attribute.Precision)
}

// resolvePresetAttribute applies a preset's attribute spec: Fixed wins
// outright; Min/Max or Base/Variance replace the config's default
// range before folding and rolling.
func (s *Spawner) resolvePresetAttribute(ent *entity.Entity, n *node.Node, spec config.AttributeSpec, overrides map[string]float64) {
	if v, ok := overrides[n.ID]; ok {
		ent.Attributes[n.ID] = v
		return
	}
	if spec.Fixed != nil {
		ent.Attributes[n.ID] = *spec.Fixed
		return
	}
	min, max := n.Attribute.DefaultRange[0], n.Attribute.DefaultRange[1]
	switch {
	case spec.Min != nil && spec.Max != nil:
		min, max = *spec.Min, *spec.Max
	case spec.Base != nil && spec.Variance != nil:
		min, max = *spec.Base-*spec.Variance, *spec.Base+*spec.Variance
	}
	min, max = foldValueModifiers(s.cfg, ent, n.ID, min, max)
	ent.Attributes[n.ID] = roll(s.src, min, max, n.Attribute.Precision)
}

func (s *Spawner) foldAttributeRange(ent *entity.Entity, n *node.Node) (float64, float64) {
	min, max := n.Attribute.DefaultRange[0], n.Attribute.DefaultRange[1]
	return foldValueModifiers(s.cfg, ent, n.ID, min, max)
}

// foldValueModifiers applies every value_modifier relationship
// targeting nodeID whose source is active: add shifts both bounds,
// multiply scales them.
func foldValueModifiers(cfg *config.Store, ent *entity.Entity, nodeID string, min, max float64) (float64, float64) {
	for _, rel := range cfg.RelationshipsByTarget(nodeID) {
		if rel.Type != node.RelValueModifier {
			continue
		}
		if !sourceActive(cfg, ent, rel.SourceID) {
			continue
		}
		if len(rel.Conditions) > 0 && !resolve.ConditionEval(&condition.Condition{Leaves: rel.Conditions}, cfg, ent) {
			continue
		}
		switch rel.Config.Operation {
		case node.OpMultiply:
			min *= rel.Config.Value
			max *= rel.Config.Value
		case node.OpSet:
			min, max = rel.Config.Value, rel.Config.Value
		default:
			min += rel.Config.Value
			max += rel.Config.Value
		}
	}
	return min, max
}

func sourceActive(cfg *config.Store, ent *entity.Entity, sourceID string) bool {
	n, ok := cfg.Node(sourceID)
	if !ok {
		return false
	}
	switch n.Kind {
	case node.KindTrait, node.KindModifier, node.KindCompound:
		return ent.IsActive(sourceID)
	default:
		return true
	}
}

// roll draws uniformly in [min,max] and rounds per precision: 0 rounds
// to the nearest integer, n>0 rounds to the nearest 1/10^n.
func roll(src rng.Source, min, max float64, precision int) float64 {
	v := min + src.Float64()*(max-min)
	scale := math.Pow(10, float64(precision))
	return math.Round(v*scale) / scale
}

func (s *Spawner) rollLayerInitial(ent *entity.Entity, n *node.Node) {
	for i := 0; i < n.Layer.Selection.InitialRolls; i++ {
		_ = selection.Roll(s.cfg, ent, n.ID, s.src) // NoEligibleTraits on an exhausted pool is non-fatal here.
	}
}

func (s *Spawner) finish(ent *entity.Entity) {
	for _, n := range s.cfg.NodesByKind(node.KindAction.String()) {
		ent.Actions[n.ID] = &entity.ActionState{CooldownRemaining: 0}
	}
	s.cascade.Run(ent)
	ent.Log("generated")
	if s.events != nil {
		s.events.Emit(event.EntitySpawned, event.Payload{"entityId": ent.ID})
	}
}

func forceActivate(cfg *config.Store, ent *entity.Entity, layerID, traitID string) {
	n, ok := cfg.Node(traitID)
	if !ok || n.Trait == nil {
		return
	}
	ls, ok := ent.Layers[layerID]
	if !ok {
		ls = &entity.LayerState{}
		ent.Layers[layerID] = ls
	}
	for _, id := range ls.Active {
		if id == traitID {
			return
		}
	}
	for _, replacedID := range n.Trait.Selection.Replaces {
		ent.RemoveTraitFromLayer(layerID, replacedID)
	}
	ls.Active = append(ls.Active, traitID)
}
