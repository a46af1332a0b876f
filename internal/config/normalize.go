package config

import (
	"fmt"
	"math"

	"github.com/talgya/synthesis/internal/condition"
	"github.com/talgya/synthesis/internal/node"
)

// Defaults per spec.md §4.1.
const (
	DefaultTickRateMS     = 1000
	DefaultBaseWeight     = 20.0
	DefaultMaxItems       = 10
	DefaultInitialValue   = 100.0
	DefaultMaxStacks      = 99
	DefaultHistoryLimit   = 50
)

func normalizeCondition(r RawCondition) *condition.Condition {
	c := &condition.Condition{
		Type:      condition.Type(r.Type),
		Target:    r.Target,
		Operator:  condition.Operator(r.Operator),
		Value:     r.Value,
		Connector: condition.Connector(r.Connector),
		Logic:     r.Logic,
	}
	for _, a := range r.All {
		c.All = append(c.All, normalizeCondition(a))
	}
	for _, a := range r.Any {
		c.Any = append(c.Any, normalizeCondition(a))
	}
	if r.Not != nil {
		c.Not = normalizeCondition(*r.Not)
	}
	for _, l := range r.Leaves {
		c.Leaves = append(c.Leaves, normalizeCondition(l))
	}
	return c
}

func normalizeConditions(rs []RawCondition) []*condition.Condition {
	if len(rs) == 0 {
		return nil
	}
	out := make([]*condition.Condition, 0, len(rs))
	for _, r := range rs {
		out = append(out, normalizeCondition(r))
	}
	return out
}

// normalizeTrigger folds the legacy single-target shape and the
// autoRemove shorthand into the canonical Conditions/RemoveConditions
// form described in spec.md §4.1.
func normalizeTrigger(r *RawTrigger) *node.Trigger {
	if r == nil {
		return nil
	}
	t := &node.Trigger{
		Static:      r.Static,
		Logic:       r.Logic,
		RemoveLogic: r.RemoveLogic,
	}
	conds := normalizeConditions(r.Conditions)
	if len(conds) == 0 && r.Target != "" {
		conds = []*condition.Condition{{
			Type:     condition.TypeVariable,
			Target:   r.Target,
			Operator: condition.Operator(r.Operator),
			Value:    r.Value,
		}}
	}
	t.Conditions = conds

	removeConds := normalizeConditions(r.RemoveConditions)
	if r.AutoRemove != nil {
		removeConds = append(removeConds, normalizeCondition(*r.AutoRemove))
		t.Static = true
	}
	t.RemoveConditions = removeConds

	return t
}

func normalizeOperation(s string) node.Operation {
	if s == "" {
		return node.OpAdd
	}
	return node.Operation(s)
}

func normalizeDurationType(s string) node.DurationType {
	if s == "manual" {
		return node.DurationPermanent
	}
	if s == "" {
		return node.DurationPermanent
	}
	return node.DurationType(s)
}

func normalizeWeightModifiers(rs []RawWeightModifier) []node.WeightModifier {
	if len(rs) == 0 {
		return nil
	}
	out := make([]node.WeightModifier, 0, len(rs))
	for _, r := range rs {
		out = append(out, node.WeightModifier{
			Condition: normalizeCondition(derefCondition(r.Condition)),
			Operation: normalizeOperation(r.Operation),
			Value:     r.Value,
		})
	}
	return out
}

func derefCondition(c *RawCondition) RawCondition {
	if c == nil {
		return RawCondition{}
	}
	return *c
}

// normalizeNode converts one decoded RawNode into its typed node.Node,
// dispatching on Kind. "item" is accepted as a synonym for "trait" per
// the GLOSSARY's backward-compatibility note.
func normalizeNode(r RawNode) (node.Node, error) {
	kind := node.Kind(r.Kind)
	if kind == "item" {
		kind = node.KindTrait
	}
	if !kind.Valid() {
		return node.Node{}, fmt.Errorf("unknown node kind %q for node %q", r.Kind, r.ID)
	}

	n := node.Node{ID: r.ID, Kind: kind}

	switch kind {
	case node.KindAttribute:
		defaultRange := [2]float64{}
		if len(r.DefaultRange) == 2 {
			defaultRange = [2]float64{r.DefaultRange[0], r.DefaultRange[1]}
		} else if r.Min != nil && r.Max != nil {
			defaultRange = [2]float64{*r.Min, *r.Max}
		}
		n.Attribute = &node.AttributePayload{
			Min:          valOr(r.Min, 0),
			Max:          valOr(r.Max, 0),
			DefaultRange: defaultRange,
			Precision:    intOr(r.Precision, 0),
			SpawnOrder:   intOr(r.SpawnOrder, 0),
		}

	case node.KindVariable:
		changeMode := node.ChangeMode(r.ChangeMode)
		if changeMode == "" {
			changeMode = node.ChangeManual
		}
		direction := node.Direction(r.Direction)
		if direction == "" {
			direction = node.DirectionNone
		}
		n.Variable = &node.VariablePayload{
			Min:        valOr(r.Min, 0),
			Max:        valOr(r.Max, 0),
			Initial:    valOr(r.Initial, DefaultInitialValue),
			BaseRate:   valOr(r.BaseRate, 0),
			ChangeMode: changeMode,
			Direction:  direction,
		}

	case node.KindContext:
		n.Context = &node.ContextPayload{Default: r.Default}

	case node.KindLayer:
		sel := node.LayerSelectionConfig{
			Mode:               node.SelectionWeighted,
			MaxItems:           DefaultMaxItems,
			DiminishingReturns: false,
		}
		if r.Selection != nil {
			if r.Selection.Mode != "" {
				sel.Mode = node.SelectionMode(r.Selection.Mode)
			}
			if r.Selection.MaxItems != nil {
				sel.MaxItems = *r.Selection.MaxItems
			}
			sel.DiminishingReturns = r.Selection.DiminishingReturns
			if r.Selection.InitialRolls != nil {
				sel.InitialRolls = *r.Selection.InitialRolls
			}
			if r.Selection.PickN != nil {
				sel.PickN = *r.Selection.PickN
			}
		}
		timing := node.TimingConfig{RollAt: node.RollAtSpawn}
		if r.Timing != nil {
			if r.Timing.RollAt != "" {
				timing.RollAt = node.RollAt(r.Timing.RollAt)
			}
			timing.RerollAllowed = r.Timing.RerollAllowed
		}
		n.Layer = &node.LayerPayload{
			Order:     intOr(r.Order, 0),
			Selection: sel,
			Timing:    timing,
			TraitIDs:  r.TraitIDs,
		}

	case node.KindTrait:
		sel := node.TraitSelectionConfig{BaseWeight: DefaultBaseWeight}
		var replaces []string
		if r.Selection != nil {
			if r.Selection.BaseWeight != nil {
				sel.BaseWeight = *r.Selection.BaseWeight
			}
			sel.WeightModifiers = normalizeWeightModifiers(r.Selection.WeightModifiers)
			sel.Trigger = normalizeTrigger(r.Selection.Trigger)
			replaces = []string(r.Selection.Replaces)
		}
		sel.Replaces = replaces
		n.Trait = &node.TraitPayload{
			LayerID:          r.LayerID,
			Selection:        sel,
			IncompatibleWith: r.IncompatibleWith,
			Eligibility:      normalizeConditions(r.Eligibility),
			Taxonomy:         r.Taxonomy,
		}

	case node.KindModifier:
		maxStacks := DefaultMaxStacks
		if r.MaxStacks != nil {
			maxStacks = *r.MaxStacks
		}
		n.Modifier = &node.ModifierPayload{
			DurationType:  normalizeDurationType(r.DurationType),
			Duration:      valOr(r.Duration, 0),
			Stacking:      stackingOr(r.Stacking),
			MaxStacks:     maxStacks,
			Trigger:       normalizeTrigger(r.Trigger),
			ExclusiveWith: []string(r.ExclusiveWith),
		}

	case node.KindCompound:
		reqs := make([]node.Requirement, 0, len(r.Requires))
		for _, rr := range r.Requires {
			req := node.Requirement{ID: rr.ID}
			switch {
			case rr.Condition != nil:
				req.Kind = node.RequirementCondition
				req.Condition = normalizeCondition(*rr.Condition)
			case rr.Operator != "":
				req.Kind = node.RequirementThreshold
				req.Operator = condition.Operator(rr.Operator)
				req.Value = rr.Value
			default:
				req.Kind = node.RequirementID
			}
			reqs = append(reqs, req)
		}
		logic := node.RequireAll
		if r.RequirementLogic == string(node.RequireAny) {
			logic = node.RequireAny
		}
		n.Compound = &node.CompoundPayload{Requires: reqs, RequirementLogic: logic}

	case node.KindDerived:
		// Unbounded unless the config explicitly supplies min/max, so
		// calculateDerived's clamp step is a no-op by default.
		n.Derived = &node.DerivedPayload{
			Formula: r.Formula,
			Min:     valOr(r.Min, math.Inf(-1)),
			Max:     valOr(r.Max, math.Inf(1)),
		}

	case node.KindAction:
		n.Action = &node.ActionPayload{
			BaseWeight:   valOr(r.BaseWeight, DefaultBaseWeight),
			Cooldown:     valOr(r.Cooldown, 0),
			Costs:        r.Costs,
			Requirements: normalizeConditions(r.Requirements),
			BlockedBy:    r.BlockedBy,
			Eligibility:  foldLegacyList(normalizeConditions(r.Requirements)),
			Effects:      r.Effects,
		}
	}

	return n, nil
}

// foldLegacyList is a convenience used where a single combined
// eligibility condition is useful alongside the raw requirement list.
func foldLegacyList(conds []*condition.Condition) *condition.Condition {
	if len(conds) == 0 {
		return nil
	}
	if len(conds) == 1 {
		return conds[0]
	}
	return &condition.Condition{All: conds}
}

func normalizeRelationship(r RawRel) node.Relationship {
	cfg := node.RelationshipConfig{
		Operation:      normalizeOperation(r.Config.Operation),
		Value:          r.Config.Value,
		Scaling:        node.Scaling(r.Config.Scaling),
		PerPointSource: r.Config.PerPointSource,
		Invert:         r.Config.Invert,
	}
	if cfg.Scaling == "" {
		cfg.Scaling = node.ScalingFlat
	}
	return node.Relationship{
		SourceID:   r.SourceID,
		TargetID:   r.TargetID,
		Type:       node.RelationshipType(r.Type),
		Config:     cfg,
		Conditions: normalizeConditions(r.Conditions),
	}
}

func normalizePreset(r RawPreset) Preset {
	p := Preset{
		ID:          r.ID,
		ForceTraits: r.ForceTraits,
		Contexts:    r.Contexts,
		Attributes:  map[string]AttributeSpec{},
		Traits:      map[string]TraitSpec{},
	}
	for id, a := range r.Attributes {
		p.Attributes[id] = AttributeSpec{
			Fixed: a.Fixed, Min: a.Min, Max: a.Max, Base: a.Base, Variance: a.Variance,
		}
		if a.Value != nil {
			p.Attributes[id] = AttributeSpec{Fixed: a.Value}
		}
	}
	for id, t := range r.Traits {
		pool := make([]PoolEntry, 0, len(t.Pool))
		for _, pe := range t.Pool {
			pool = append(pool, PoolEntry{ID: pe.ID, Weight: pe.Weight})
		}
		p.Traits[id] = TraitSpec{
			ForceID: t.ForceID, ForceIDs: t.ForceIDs,
			Mode: t.Mode, Pool: pool, Chance: t.Chance, N: t.N, Filter: t.Filter,
		}
	}
	return p
}

func normalizePool(r RawPool) PoolSpec {
	spec := PoolSpec{
		ID: r.ID, Name: r.Name, MaxSize: r.MaxSize, PreWarm: r.PreWarm,
		PreWarmPreset: r.PreWarmPreset, ShrinkThreshold: r.ShrinkThreshold,
		ShrinkDelay: r.ShrinkDelay,
	}
	if spec.Name == "" {
		spec.Name = spec.ID
	}
	if r.Rules != nil {
		rules := &PoolRules{Priority: r.Rules.Priority}
		for _, c := range r.Rules.Conditions {
			weight := c.Weight
			if weight == 0 {
				weight = 1
			}
			rules.Conditions = append(rules.Conditions, PoolCondition{
				Source: c.Source, Match: c.Match, Operator: c.Operator, Value: c.Value, Weight: weight,
			})
		}
		spec.Rules = rules
	}
	return spec
}

func valOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func stackingOr(s string) node.StackingMode {
	if s == "" {
		return node.StackIgnore
	}
	return node.StackingMode(s)
}
