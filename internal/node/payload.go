package node

import "github.com/talgya/synthesis/internal/condition"

// AttributePayload describes a static-range numeric node resolved once
// at spawn time.
type AttributePayload struct {
	Min, Max     float64
	DefaultRange [2]float64
	Precision    int
	SpawnOrder   int
}

// VariablePayload describes a numeric node that may drift over ticks.
type VariablePayload struct {
	Min, Max   float64
	Initial    float64
	BaseRate   float64
	ChangeMode ChangeMode
	Direction  Direction
}

// ContextPayload describes an opaque per-entity value with a config
// default, overridable at spawn.
type ContextPayload struct {
	Default any
}

// TimingConfig governs when a layer performs its initial trait rolls.
type TimingConfig struct {
	RollAt         RollAt
	RerollAllowed  bool
}

// LayerSelectionConfig is the layer-level half of "selection": the
// policy a layer uses to pick among its traits.
type LayerSelectionConfig struct {
	Mode               SelectionMode
	MaxItems           int // default 10
	DiminishingReturns bool
	InitialRolls       int
	PickN              int // count for SelectionPickN
}

// LayerPayload describes a container of traits with a selection policy.
type LayerPayload struct {
	Order     int
	Selection LayerSelectionConfig
	Timing    TimingConfig
	TraitIDs  []string
}

// WeightModifier is one entry of a trait's selection.weightModifiers
// list, applied in order before relationship-driven weight influences.
type WeightModifier struct {
	Condition *condition.Condition
	Operation Operation
	Value     float64
}

// Trigger is the condition set gating a threshold trait or modifier,
// along with its removal counterpart.
type Trigger struct {
	Static           bool
	Conditions       []*condition.Condition
	Logic            string // "all" | "any", folds Conditions when set
	RemoveConditions []*condition.Condition
	RemoveLogic      string
}

// AsCondition folds Trigger.Conditions into a single evaluable tree
// using Logic (default "all").
func (t *Trigger) AsCondition() *condition.Condition {
	if t == nil {
		return nil
	}
	return foldConditions(t.Conditions, t.Logic)
}

// RemoveAsCondition folds Trigger.RemoveConditions the same way.
func (t *Trigger) RemoveAsCondition() *condition.Condition {
	if t == nil || len(t.RemoveConditions) == 0 {
		return nil
	}
	return foldConditions(t.RemoveConditions, t.RemoveLogic)
}

func foldConditions(conds []*condition.Condition, logic string) *condition.Condition {
	if len(conds) == 0 {
		return nil
	}
	if len(conds) == 1 {
		return conds[0]
	}
	if logic == "any" {
		return &condition.Condition{Any: conds}
	}
	return &condition.Condition{All: conds}
}

// TraitSelectionConfig is the trait-level half of "selection": how this
// particular trait competes within its layer's weighted draw.
type TraitSelectionConfig struct {
	BaseWeight      float64 // default 20
	WeightModifiers []WeightModifier
	Trigger         *Trigger // non-nil marks this a threshold trait
	Replaces        []string
}

// TraitPayload describes a discrete boolean state belonging to a layer.
type TraitPayload struct {
	LayerID          string
	Selection        TraitSelectionConfig
	IncompatibleWith []string
	Eligibility      []*condition.Condition
	Taxonomy         map[string]string
}

// ModifierPayload describes a time-limited or threshold-bound entity
// state that injects rate/weight/value influences.
type ModifierPayload struct {
	DurationType DurationType
	Duration     float64 // seconds (timed) or tick count (ticks)
	Stacking     StackingMode
	MaxStacks    int // default 99
	Trigger      *Trigger
	ExclusiveWith []string
}

// RequirementKind discriminates the three forms a compound requirement
// entry may take.
type RequirementKind string

const (
	RequirementID        RequirementKind = "id"
	RequirementThreshold RequirementKind = "threshold"
	RequirementCondition RequirementKind = "condition"
)

// Requirement is one element of a compound's requires[] list.
type Requirement struct {
	Kind      RequirementKind
	ID        string
	Operator  condition.Operator
	Value     float64
	Condition *condition.Condition
}

// CompoundPayload describes an emergent boolean derived from a
// requirements set.
type CompoundPayload struct {
	Requires         []Requirement
	RequirementLogic RequirementLogic
}

// DerivedPayload describes a numeric value computed from other node
// values via an arithmetic formula.
type DerivedPayload struct {
	Formula  string
	Min, Max float64
}

// ActionPayload describes a cooldown-gated operation with costs and
// eligibility.
type ActionPayload struct {
	BaseWeight   float64
	Cooldown     float64
	Costs        map[string]float64
	Requirements []*condition.Condition
	BlockedBy    []string
	Eligibility  *condition.Condition
	Effects      map[string]any
}
