// Package config implements the Config Store: it decodes a YAML
// configuration document (gopkg.in/yaml.v3), normalizes
// legacy shapes and fills defaults, and builds the eager indexes the
// rest of the engine reads from. Modeled on xtding233-gacha-backend's
// internal/game loader — RawConfig decoded from YAML, then folded into
// a normalized runtime structure — generalized from a three-file
// default/game/pool hierarchy to this engine's single document.
package config

import "gopkg.in/yaml.v3"

// RawDocument is the top-level shape of a configuration document.
type RawDocument struct {
	TickRate      *int           `yaml:"tickRate"`
	Nodes         []RawNode      `yaml:"nodes"`
	Relationships []RawRel       `yaml:"relationships"`
	Presets       []RawPreset    `yaml:"presets"`
	Pools         []RawPool      `yaml:"pools"`
}

// RawCondition mirrors condition.Condition's shape with YAML tags; it is
// translated 1:1 by normalize.go.
type RawCondition struct {
	Type      string         `yaml:"type"`
	Target    string         `yaml:"target"`
	Operator  string         `yaml:"operator"`
	Value     float64        `yaml:"value"`
	Connector string         `yaml:"connector"`
	All       []RawCondition `yaml:"all"`
	Any       []RawCondition `yaml:"any"`
	Not       *RawCondition  `yaml:"not"`
	Leaves    []RawCondition `yaml:"conditions"`
	Logic     string         `yaml:"logic"`
}

// RawTrigger mirrors node.Trigger, plus the legacy single-target shape
// and the legacy autoRemove shorthand normalize.go folds in.
type RawTrigger struct {
	Static bool `yaml:"static"`

	// Legacy single-condition shorthand.
	Target   string  `yaml:"target"`
	Operator string  `yaml:"operator"`
	Value    float64 `yaml:"value"`

	Conditions []RawCondition `yaml:"conditions"`
	Logic      string         `yaml:"logic"`

	RemoveConditions []RawCondition `yaml:"removeConditions"`
	RemoveLogic      string         `yaml:"removeLogic"`

	// Legacy autoRemove shorthand: a single condition, folded into
	// RemoveConditions with Static forced true.
	AutoRemove *RawCondition `yaml:"autoRemove"`
}

// StringList decodes either a bare scalar or a YAML sequence into a
// slice, normalizing the `exclusiveWith` scalar-or-list shape.
type StringList []string

func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*s = StringList{single}
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*s = StringList(list)
	return nil
}

// RawWeightModifier mirrors node.WeightModifier.
type RawWeightModifier struct {
	Condition *RawCondition `yaml:"condition"`
	Operation string        `yaml:"operation"`
	Value     float64       `yaml:"value"`
}

// RawSelection is a superset of the layer-level and trait-level
// "selection" shapes; normalize.go reads the subset relevant to the
// node's kind.
type RawSelection struct {
	// Layer-level.
	Mode               string `yaml:"mode"`
	MaxItems           *int   `yaml:"maxItems"`
	DiminishingReturns bool   `yaml:"diminishingReturns"`
	InitialRolls       *int   `yaml:"initialRolls"`
	PickN              *int   `yaml:"pickN"`

	// Trait-level.
	BaseWeight      *float64            `yaml:"baseWeight"`
	WeightModifiers []RawWeightModifier `yaml:"weightModifiers"`
	Trigger         *RawTrigger         `yaml:"trigger"`
	Replaces        StringList          `yaml:"replaces"`
}

// RawTiming mirrors node.TimingConfig.
type RawTiming struct {
	RollAt        string `yaml:"rollAt"`
	RerollAllowed bool   `yaml:"rerollAllowed"`
}

// RawRequirement accepts the three forms spec.md describes for a
// compound's requires[] entries: a bare string id, a {id,operator,value}
// threshold mapping, or a mapping with a nested `condition` key.
type RawRequirement struct {
	ID        string        `yaml:"id"`
	Operator  string        `yaml:"operator"`
	Value     float64       `yaml:"value"`
	Condition *RawCondition `yaml:"condition"`
}

func (r *RawRequirement) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var id string
		if err := value.Decode(&id); err != nil {
			return err
		}
		*r = RawRequirement{ID: id}
		return nil
	}
	type plain RawRequirement
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*r = RawRequirement(p)
	return nil
}

// RawNode carries every field any node kind might use; normalize.go
// extracts the relevant subset based on Kind.
type RawNode struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`

	// attribute
	Min          *float64  `yaml:"min"`
	Max          *float64  `yaml:"max"`
	DefaultRange []float64 `yaml:"defaultRange"`
	Precision    *int      `yaml:"precision"`
	SpawnOrder   *int      `yaml:"spawnOrder"`

	// variable
	Initial    *float64 `yaml:"initial"`
	BaseRate   *float64 `yaml:"baseRate"`
	ChangeMode string   `yaml:"changeMode"`
	Direction  string   `yaml:"direction"`

	// context
	Default any `yaml:"default"`

	// layer
	Order     *int          `yaml:"order"`
	Selection *RawSelection `yaml:"selection"`
	Timing    *RawTiming    `yaml:"timing"`
	TraitIDs  []string      `yaml:"traitIds"`

	// trait
	LayerID          string           `yaml:"layerId"`
	IncompatibleWith []string         `yaml:"incompatibleWith"`
	Eligibility      []RawCondition   `yaml:"eligibility"`
	Taxonomy         map[string]string `yaml:"taxonomy"`

	// modifier
	DurationType  string      `yaml:"durationType"`
	Duration      *float64    `yaml:"duration"`
	Stacking      string      `yaml:"stacking"`
	MaxStacks     *int        `yaml:"maxStacks"`
	Trigger       *RawTrigger `yaml:"trigger"`
	ExclusiveWith StringList  `yaml:"exclusiveWith"`

	// compound
	Requires         []RawRequirement `yaml:"requires"`
	RequirementLogic string           `yaml:"requirementLogic"`

	// derived
	Formula string `yaml:"formula"`

	// action
	BaseWeight   *float64           `yaml:"baseWeight"`
	Cooldown     *float64           `yaml:"cooldown"`
	Costs        map[string]float64 `yaml:"costs"`
	Requirements []RawCondition     `yaml:"requirements"`
	BlockedBy    []string           `yaml:"blockedBy"`
	Effects      map[string]any     `yaml:"effects"`
}

// RawRelConfig mirrors node.RelationshipConfig.
type RawRelConfig struct {
	Operation      string  `yaml:"operation"`
	Value          float64 `yaml:"value"`
	Scaling        string  `yaml:"scaling"`
	PerPointSource string  `yaml:"perPointSource"`
	Invert         bool    `yaml:"invert"`
}

// RawRel mirrors node.Relationship.
type RawRel struct {
	SourceID   string         `yaml:"sourceId"`
	TargetID   string         `yaml:"targetId"`
	Type       string         `yaml:"type"`
	Config     RawRelConfig   `yaml:"config"`
	Conditions []RawCondition `yaml:"conditions"`
}

// RawAttributeSpec accepts the four shapes a preset's attribute entry
// may take: a bare number (fixed value), {min,max} (range), {base,
// variance}, or {value} (explicit fixed value as a mapping).
type RawAttributeSpec struct {
	Fixed    *float64 `yaml:"-"`
	Min      *float64 `yaml:"min"`
	Max      *float64 `yaml:"max"`
	Base     *float64 `yaml:"base"`
	Variance *float64 `yaml:"variance"`
	Value    *float64 `yaml:"value"`
}

func (a *RawAttributeSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var f float64
		if err := value.Decode(&f); err != nil {
			return err
		}
		*a = RawAttributeSpec{Fixed: &f}
		return nil
	}
	type plain RawAttributeSpec
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	*a = RawAttributeSpec(p)
	return nil
}

// RawPoolEntry accepts either a bare trait id or {id, weight}.
type RawPoolEntry struct {
	ID     string  `yaml:"id"`
	Weight float64 `yaml:"weight"`
}

func (p *RawPoolEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var id string
		if err := value.Decode(&id); err != nil {
			return err
		}
		*p = RawPoolEntry{ID: id, Weight: 1}
		return nil
	}
	type plain RawPoolEntry
	pl := plain{Weight: 1}
	if err := value.Decode(&pl); err != nil {
		return err
	}
	*p = RawPoolEntry(pl)
	return nil
}

// RawTraitSpec accepts the preset trait-resolution shapes from §4.6: a
// bare string (force one id), an array of strings (force all), or a
// mapping with a `mode`.
type RawTraitSpec struct {
	ForceID  string
	ForceIDs []string

	Mode     string         `yaml:"mode"`
	Pool     []RawPoolEntry `yaml:"pool"`
	Chance   float64        `yaml:"chance"`
	N        int            `yaml:"n"`
	Filter   map[string]string `yaml:"filter"`
}

func (t *RawTraitSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var id string
		if err := value.Decode(&id); err != nil {
			return err
		}
		*t = RawTraitSpec{ForceID: id}
		return nil
	case yaml.SequenceNode:
		var ids []string
		if err := value.Decode(&ids); err != nil {
			return err
		}
		*t = RawTraitSpec{ForceIDs: ids}
		return nil
	default:
		type plain RawTraitSpec
		var p plain
		if err := value.Decode(&p); err != nil {
			return err
		}
		*t = RawTraitSpec(p)
		return nil
	}
}

// RawPreset mirrors the preset document shape consumed by the Entity
// Spawner (spawn-from-preset, §4.5) and Preset Trait Resolution (§4.6).
type RawPreset struct {
	ID          string                      `yaml:"id"`
	Attributes  map[string]RawAttributeSpec `yaml:"attributes"`
	Traits      map[string]RawTraitSpec     `yaml:"traits"`
	ForceTraits []string                    `yaml:"forceTraits"`
	Contexts    map[string]any              `yaml:"contexts"`
}

// RawPoolCondition mirrors one scoring condition in a pool's rule set.
type RawPoolCondition struct {
	Source   string  `yaml:"source"`
	Match    string  `yaml:"match"`
	Operator string  `yaml:"operator"`
	Value    float64 `yaml:"value"`
	Weight   float64 `yaml:"weight"`
}

// RawPoolRules mirrors a pool's rule-based assignment configuration.
type RawPoolRules struct {
	Priority   int                `yaml:"priority"`
	Conditions []RawPoolCondition `yaml:"conditions"`
}

// RawPool mirrors one pool instance's static configuration.
type RawPool struct {
	ID              string        `yaml:"id"`
	Name            string        `yaml:"name"`
	MaxSize         int           `yaml:"maxSize"`
	PreWarm         int           `yaml:"preWarm"`
	PreWarmPreset   string        `yaml:"preWarmPreset"`
	ShrinkThreshold float64       `yaml:"shrinkThreshold"`
	ShrinkDelay     float64       `yaml:"shrinkDelay"`
	Rules           *RawPoolRules `yaml:"rules"`
}
