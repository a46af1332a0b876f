package node

import "github.com/talgya/synthesis/internal/condition"

// Node is a config-graph vertex identified by ID, discriminated by Kind.
// Exactly one of the payload fields is populated, matching Kind.
type Node struct {
	ID   string
	Kind Kind

	// DeclIndex is the node's position in its source document's nodes
	// list, assigned once at load time. Used to break ties in config
	// declaration order (spec.md §4.7) without relying on map iteration.
	DeclIndex int

	Attribute *AttributePayload
	Variable  *VariablePayload
	Context   *ContextPayload
	Layer     *LayerPayload
	Trait     *TraitPayload
	Modifier  *ModifierPayload
	Compound  *CompoundPayload
	Derived   *DerivedPayload
	Action    *ActionPayload
}

// RelationshipConfig is the arithmetic shape of a Relationship's effect.
type RelationshipConfig struct {
	Operation      Operation
	Value          float64
	Scaling        Scaling
	PerPointSource string
	Invert         bool
}

// Relationship connects two nodes: an influence flowing from a source
// (usually a trait or modifier) to a target (attribute, variable, or
// trait weight). Relationships form a DAG by construction — indexes
// store ids, not object references, so there is no cycle to detect.
type Relationship struct {
	SourceID   string
	TargetID   string
	Type       RelationshipType
	Config     RelationshipConfig
	Conditions []*condition.Condition
}
