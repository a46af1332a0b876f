package config

// AttributeSpec is a normalized preset attribute override: a fixed
// value, a {min,max} range, or a {base,variance} spread.
type AttributeSpec struct {
	Fixed    *float64
	Min, Max *float64
	Base     *float64
	Variance *float64
}

// PoolEntry is one weighted candidate in a trait-spec selection pool.
type PoolEntry struct {
	ID     string
	Weight float64
}

// TraitSpec is a normalized preset trait-resolution entry (§4.6).
type TraitSpec struct {
	ForceID  string
	ForceIDs []string
	Mode     string // weighted | chance | pickN | all | taxonomyFilter
	Pool     []PoolEntry
	Chance   float64
	N        int
	Filter   map[string]string
}

// Preset bundles attribute and trait overrides applied during
// spawn-from-preset (§4.5).
type Preset struct {
	ID          string
	Attributes  map[string]AttributeSpec
	Traits      map[string]TraitSpec
	ForceTraits []string
	Contexts    map[string]any
}

// PoolCondition is one scoring rule in a pool's rule-based assignment
// configuration (§4.10 getPoolForEntity).
type PoolCondition struct {
	Source   string // preset | trait | attribute | variable | modifier | compound
	Match    string // glob pattern, used when Source == "preset"
	Operator string
	Value    float64
	Weight   float64
}

// PoolRules is a pool's full rule-based assignment configuration.
type PoolRules struct {
	Priority   int
	Conditions []PoolCondition
}

// PoolSpec is a pool instance's static configuration.
type PoolSpec struct {
	ID              string
	Name            string
	MaxSize         int
	PreWarm         int
	PreWarmPreset   string
	ShrinkThreshold float64
	ShrinkDelay     float64
	Rules           *PoolRules
}
